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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aicore/aicall/retry"
)

// flaky fails Register a fixed number of times before delegating.
type flaky struct {
	*InMemory
	failures  int
	attempts  int
	permanent bool
}

func (f *flaky) Register(serviceName string, e Endpoint) error {
	f.attempts++
	if f.permanent || f.attempts <= f.failures {
		return errors.New("registry unavailable")
	}
	return f.InMemory.Register(serviceName, e)
}

func fastBackoff() *retry.Backoff {
	return retry.NewBackoff(retry.Config{
		BaseDelay:    time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		JitterFactor: 0,
	})
}

func TestRetryingRegisterSurvivesTransientErrors(t *testing.T) {
	inner := &flaky{InMemory: NewInMemory(), failures: 2}
	r := NewRetrying(inner,
		RetryingBackoff(fastBackoff()),
		RetryingLogger(zaptest.NewLogger(t)))

	e := Endpoint{Host: "127.0.0.1", Port: 1}
	require.NoError(t, r.Register("echo", e))
	assert.Equal(t, 3, inner.attempts)

	eps, err := r.Discover("echo")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{e}, eps)
}

func TestRetryingRegisterGivesUp(t *testing.T) {
	inner := &flaky{InMemory: NewInMemory(), permanent: true}
	r := NewRetrying(inner,
		RetryingAttempts(4),
		RetryingBackoff(fastBackoff()),
		RetryingLogger(zaptest.NewLogger(t)))

	err := r.Register("echo", Endpoint{Host: "127.0.0.1", Port: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, 4, inner.attempts)
}

func TestRetryingRegisterFirstAttemptSucceeds(t *testing.T) {
	inner := &flaky{InMemory: NewInMemory()}
	r := NewRetrying(inner, RetryingBackoff(fastBackoff()))

	require.NoError(t, r.Register("echo", Endpoint{Host: "127.0.0.1", Port: 1}))
	assert.Equal(t, 1, inner.attempts)
}

func TestRetryingPassesThrough(t *testing.T) {
	inner := NewInMemory()
	r := NewRetrying(inner, RetryingBackoff(fastBackoff()))

	e := Endpoint{Host: "127.0.0.1", Port: 1}
	require.NoError(t, r.Register("echo", e))
	require.NoError(t, r.Deregister("echo", e))

	eps, err := r.Discover("echo")
	require.NoError(t, err)
	assert.Empty(t, eps)
}
