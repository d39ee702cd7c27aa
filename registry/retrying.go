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

package registry

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aicore/aicall/retry"
)

const _defaultRegisterAttempts = 10

// Retrying decorates a Registry so that Register survives transient backend
// errors by retrying with exponential backoff. Deregister stays best-effort
// (a single attempt, as callers treat its errors as non-fatal), and Discover
// passes through.
type Retrying struct {
	inner    Registry
	attempts int
	backoff  *retry.Backoff
	logger   *zap.Logger
}

// RetryingOption customizes a Retrying registry.
type RetryingOption func(*Retrying)

// RetryingAttempts bounds the register attempts. Defaults to 10.
func RetryingAttempts(n int) RetryingOption {
	return func(r *Retrying) {
		r.attempts = n
	}
}

// RetryingBackoff sets the backoff strategy between register attempts.
func RetryingBackoff(b *retry.Backoff) RetryingOption {
	return func(r *Retrying) {
		r.backoff = b
	}
}

// RetryingLogger sets the logger used for retry warnings.
func RetryingLogger(logger *zap.Logger) RetryingOption {
	return func(r *Retrying) {
		r.logger = logger
	}
}

// NewRetrying wraps a registry with register-retry. The default schedule is
// ten attempts backing off from 1s, doubling, capped at 10s, without jitter.
func NewRetrying(inner Registry, opts ...RetryingOption) *Retrying {
	r := &Retrying{
		inner:    inner,
		attempts: _defaultRegisterAttempts,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backoff == nil {
		r.backoff = retry.NewBackoff(retry.Config{
			BaseDelay:    time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			JitterFactor: 0,
		})
	}
	return r
}

// Register announces an endpoint, retrying transient failures until the
// attempt budget runs out.
func (r *Retrying) Register(serviceName string, e Endpoint) error {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		lastErr = r.inner.Register(serviceName, e)
		if lastErr == nil {
			return nil
		}
		if attempt >= r.attempts-1 {
			break
		}
		delay := r.backoff.Delay(attempt)
		r.logger.Warn("register attempt failed, backing off",
			zap.String("service", serviceName),
			zap.String("endpoint", e.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		time.Sleep(delay)
	}
	return fmt.Errorf("failed to register %s at %s after %d attempts: %w",
		serviceName, e.String(), r.attempts, lastErr)
}

// Deregister withdraws an endpoint in a single best-effort attempt.
func (r *Retrying) Deregister(serviceName string, e Endpoint) error {
	return r.inner.Deregister(serviceName, e)
}

// Discover returns the currently healthy endpoints for a service.
func (r *Retrying) Discover(serviceName string) ([]Endpoint, error) {
	return r.inner.Discover(serviceName)
}
