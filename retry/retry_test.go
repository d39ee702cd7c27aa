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
	"errors"
	"fmt"
	"math/rand"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aicore/aicall/aicallerrors"
)

func TestBackoffDelaysWithoutJitter(t *testing.T) {
	b := NewBackoff(Config{
		BaseDelay:    100 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     500 * time.Millisecond,
		JitterFactor: 0,
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, b.Delay(attempt), "attempt %d", attempt)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(Config{
		BaseDelay:    100 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.5,
	}, BackoffSource(rand.NewSource(42)))

	for i := 0; i < 1000; i++ {
		d := b.Delay(1)
		// 200ms +/- 50%.
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestBackoffFullJitterBounds(t *testing.T) {
	b := NewBackoff(Config{
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2,
		MaxDelay:   500 * time.Millisecond,
	}, BackoffSource(rand.NewSource(42)))

	for i := 0; i < 1000; i++ {
		d := b.FullJitter(2)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 400*time.Millisecond)
	}
	for i := 0; i < 1000; i++ {
		d := b.FullJitter(10)
		assert.Less(t, d, 500*time.Millisecond, "cap applies before the draw")
	}
}

func TestBackoffDecorrelatedBounds(t *testing.T) {
	b := NewBackoff(Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
	}, BackoffSource(rand.NewSource(42)))

	prev := 200 * time.Millisecond
	for i := 0; i < 1000; i++ {
		d := b.Decorrelated(prev)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 600*time.Millisecond)
	}

	// Degenerate range collapses to the base delay.
	assert.Equal(t, 100*time.Millisecond, b.Decorrelated(10*time.Millisecond))
}

func TestIsRetryable(t *testing.T) {
	defaults := DefaultConfig()
	noTimeoutRetry := DefaultConfig().NoRetryOnTimeout()

	tests := []struct {
		msg    string
		give   error
		config Config
		want   bool
	}{
		{
			msg:    "nil error",
			give:   nil,
			config: defaults,
			want:   false,
		},
		{
			msg:    "circuit open never retries",
			give:   aicallerrors.Newf(aicallerrors.CodeCircuitOpen, "open"),
			config: defaults,
			want:   false,
		},
		{
			msg:    "timeout retries by default",
			give:   aicallerrors.Newf(aicallerrors.CodeTimeout, "deadline"),
			config: defaults,
			want:   true,
		},
		{
			msg:    "timeout honors the flag",
			give:   aicallerrors.Newf(aicallerrors.CodeTimeout, "deadline"),
			config: noTimeoutRetry,
			want:   false,
		},
		{
			msg:    "connection refused always retries",
			give:   aicallerrors.Newf(aicallerrors.CodeConnectionRefused, "refused"),
			config: noTimeoutRetry,
			want:   true,
		},
		{
			msg:    "io error retries",
			give:   aicallerrors.Newf(aicallerrors.CodeIO, "reset"),
			config: defaults,
			want:   true,
		},
		{
			msg:    "business error never retries",
			give:   aicallerrors.Newf(aicallerrors.CodeBusiness, "bad input"),
			config: defaults,
			want:   false,
		},
		{
			msg:    "no provider never retries",
			give:   aicallerrors.Newf(aicallerrors.CodeNoProvider, "empty"),
			config: defaults,
			want:   false,
		},
		{
			msg:    "retry exhausted is terminal",
			give:   aicallerrors.Wrap(aicallerrors.CodeRetryExhausted, aicallerrors.Newf(aicallerrors.CodeIO, "reset")),
			config: defaults,
			want:   false,
		},
		{
			msg:    "raw deadline exceeded is a timeout",
			give:   context.DeadlineExceeded,
			config: noTimeoutRetry,
			want:   false,
		},
		{
			msg:    "raw connection refused",
			give:   &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			config: defaults,
			want:   true,
		},
		{
			msg:    "raw connection reset",
			give:   syscall.ECONNRESET,
			config: defaults,
			want:   true,
		},
		{
			msg:    "nested cause is classified",
			give:   fmt.Errorf("attempt failed: %w", aicallerrors.Newf(aicallerrors.CodeIO, "broken pipe")),
			config: defaults,
			want:   true,
		},
		{
			msg:    "unclassified error does not retry",
			give:   errors.New("mystery"),
			config: defaults,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.give, tt.config))
		})
	}
}
