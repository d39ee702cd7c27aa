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

package adaptive

import (
	"math"
	"time"

	"go.uber.org/atomic"
)

// Config carries the timeout derivation parameters. The zero value is
// replaced by DefaultConfig.
type Config struct {
	// MinTimeout floors the derived timeout.
	MinTimeout time.Duration
	// MaxTimeout caps the derived timeout.
	MaxTimeout time.Duration
	// DefaultTimeout is published until MinimumSamples latencies have been
	// recorded.
	DefaultTimeout time.Duration
	// SafetyFactor multiplies the percentile latency.
	SafetyFactor float64
	// Percentile selects which latency percentile drives the timeout.
	Percentile float64
	// MinimumSamples gates derivation.
	MinimumSamples int
	// SampleWindowSize bounds the latency ring buffer.
	SampleWindowSize int
}

// DefaultConfig returns the stock derivation parameters.
func DefaultConfig() Config {
	return Config{
		MinTimeout:       100 * time.Millisecond,
		MaxTimeout:       30 * time.Second,
		DefaultTimeout:   10 * time.Second,
		SafetyFactor:     1.5,
		Percentile:       99,
		MinimumSamples:   10,
		SampleWindowSize: 1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinTimeout == 0 {
		c.MinTimeout = d.MinTimeout
	}
	if c.MaxTimeout == 0 {
		c.MaxTimeout = d.MaxTimeout
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.SafetyFactor == 0 {
		c.SafetyFactor = d.SafetyFactor
	}
	if c.Percentile == 0 {
		c.Percentile = d.Percentile
	}
	if c.MinimumSamples == 0 {
		c.MinimumSamples = d.MinimumSamples
	}
	if c.SampleWindowSize == 0 {
		c.SampleWindowSize = d.SampleWindowSize
	}
	return c
}

// Timeout derives a call deadline for one endpoint from its recent latency
// distribution. The published value is recomputed synchronously after every
// recorded sample; readers observe it through an atomic load.
type Timeout struct {
	name    string
	config  Config
	stats   *Stats
	current atomic.Int64 // milliseconds
}

// NewTimeout builds an adaptive timeout named after its endpoint key.
func NewTimeout(name string, config Config) *Timeout {
	t := &Timeout{
		name:   name,
		config: config.withDefaults(),
	}
	t.stats = NewStats(t.config.SampleWindowSize)
	t.current.Store(t.config.DefaultTimeout.Milliseconds())
	return t
}

// RecordLatency stores one successful-call latency and republishes the
// timeout.
func (t *Timeout) RecordLatency(d time.Duration) {
	t.stats.Record(d.Milliseconds())
	t.update()
}

// Timeout returns the current deadline.
func (t *Timeout) Timeout() time.Duration {
	return time.Duration(t.current.Load()) * time.Millisecond
}

// TimeoutSeconds returns the current deadline in whole seconds, rounded up.
func (t *Timeout) TimeoutSeconds() int {
	return int(math.Ceil(float64(t.current.Load()) / 1000))
}

// Name returns the endpoint key.
func (t *Timeout) Name() string { return t.name }

// Stats exposes the latency window.
func (t *Timeout) Stats() *Stats { return t.stats }

// Reset discards all samples and restores the default timeout.
func (t *Timeout) Reset() {
	t.stats.Reset()
	t.current.Store(t.config.DefaultTimeout.Milliseconds())
}

func (t *Timeout) update() {
	if t.stats.Count() < t.config.MinimumSamples {
		t.current.Store(t.config.DefaultTimeout.Milliseconds())
		return
	}
	percentile := t.stats.Percentile(t.config.Percentile)
	if percentile <= 0 {
		t.current.Store(t.config.DefaultTimeout.Milliseconds())
		return
	}
	derived := int64(float64(percentile) * t.config.SafetyFactor)
	min := t.config.MinTimeout.Milliseconds()
	max := t.config.MaxTimeout.Milliseconds()
	if derived < min {
		derived = min
	}
	if derived > max {
		derived = max
	}
	t.current.Store(derived)
}
