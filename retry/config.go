// Copyright (c) 2024 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package retry classifies call failures and computes backoff delays for the
// client's retry loop.
package retry

import "time"

// Config carries the retry parameters. Zero fields are filled from
// DefaultConfig, except JitterFactor: a zero JitterFactor is kept and means
// no jitter.
type Config struct {
	// MaxAttempts bounds the total attempts, including the first.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the backoff before jitter.
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt.
	Multiplier float64
	// JitterFactor scales the symmetric jitter applied to each delay.
	JitterFactor float64
	// RetryOnTimeout controls whether deadline failures are retryable.
	RetryOnTimeout bool

	// retryOnTimeoutSet distinguishes an explicit false from the zero value.
	retryOnTimeoutSet bool
}

// DefaultConfig returns the stock retry parameters.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		Multiplier:        2,
		JitterFactor:      0.5,
		RetryOnTimeout:    true,
		retryOnTimeoutSet: true,
	}
}

// NoRetryOnTimeout returns a copy of the config with timeout retries
// disabled.
func (c Config) NoRetryOnTimeout() Config {
	c.RetryOnTimeout = false
	c.retryOnTimeoutSet = true
	return c
}

// WithDefaults fills unset fields from DefaultConfig. JitterFactor is left
// as given, so zero stays zero.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = d.Multiplier
	}
	if !c.retryOnTimeoutSet {
		c.RetryOnTimeout = d.RetryOnTimeout
		c.retryOnTimeoutSet = true
	}
	return c
}
