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

package retry

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/aicore/aicall/aicallerrors"
)

// Operation is one attempt of the work being retried.
type Operation func() (interface{}, error)

// Executor runs operations under the retry policy: retryable failures back
// off and run again, non-retryable ones propagate immediately, and exhausted
// attempts wrap the last cause in a retry-exhausted error.
//
// The executor keeps retry statistics across calls: how many retries it has
// issued, how many of them went on to succeed, and the resulting success
// rate.
type Executor struct {
	config  Config
	backoff *Backoff

	totalRetries      atomic.Int32
	successfulRetries atomic.Int32
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// ExecutorBackoff sets the backoff strategy, for deterministic tests.
func ExecutorBackoff(b *Backoff) ExecutorOption {
	return func(e *Executor) {
		e.backoff = b
	}
}

// NewExecutor builds an executor from a config.
func NewExecutor(config Config, opts ...ExecutorOption) *Executor {
	e := &Executor{config: config.WithDefaults()}
	for _, opt := range opts {
		opt(e)
	}
	if e.backoff == nil {
		e.backoff = NewBackoff(e.config)
	}
	return e
}

// Execute runs op up to MaxAttempts times, sleeping the backoff delay
// between retryable failures. The context aborts a pending sleep.
func (e *Executor) Execute(ctx context.Context, op Operation) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			if attempt > 0 {
				e.successfulRetries.Inc()
			}
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err, e.config) {
			return nil, err
		}
		if attempt >= e.config.MaxAttempts-1 {
			break
		}

		e.totalRetries.Inc()
		select {
		case <-time.After(e.backoff.Delay(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, aicallerrors.Wrap(aicallerrors.CodeRetryExhausted, lastErr)
}

// TotalRetryCount returns how many retries the executor has issued.
func (e *Executor) TotalRetryCount() int {
	return int(e.totalRetries.Load())
}

// SuccessfulRetryCount returns how many retried operations eventually
// succeeded.
func (e *Executor) SuccessfulRetryCount() int {
	return int(e.successfulRetries.Load())
}

// RetrySuccessRate returns successful retries over total retries, or 1.0
// when no retry has been issued yet.
func (e *Executor) RetrySuccessRate() float64 {
	total := e.totalRetries.Load()
	if total == 0 {
		return 1.0
	}
	return float64(e.successfulRetries.Load()) / float64(total)
}

// Config returns the executor's retry parameters.
func (e *Executor) Config() Config {
	return e.config
}
