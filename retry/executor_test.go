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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicore/aicall/aicallerrors"
)

func newTestExecutor(maxAttempts int) *Executor {
	return NewExecutor(Config{
		MaxAttempts:  maxAttempts,
		BaseDelay:    time.Millisecond,
		JitterFactor: 0,
	})
}

func TestExecutorFirstAttemptSucceeds(t *testing.T) {
	e := newTestExecutor(3)

	result, err := e.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	assert.Zero(t, e.TotalRetryCount())
	assert.Zero(t, e.SuccessfulRetryCount())
	assert.Equal(t, 1.0, e.RetrySuccessRate(), "rate is 1.0 before any retry")
}

func TestExecutorRetryThenSuccess(t *testing.T) {
	e := newTestExecutor(3)

	calls := 0
	result, err := e.Execute(context.Background(), func() (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, aicallerrors.Newf(aicallerrors.CodeIO, "flaky")
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, calls)

	assert.Equal(t, 2, e.TotalRetryCount())
	assert.Equal(t, 1, e.SuccessfulRetryCount())
	assert.Equal(t, 0.5, e.RetrySuccessRate())
}

func TestExecutorExhaustsAttempts(t *testing.T) {
	e := newTestExecutor(3)

	calls := 0
	_, err := e.Execute(context.Background(), func() (interface{}, error) {
		calls++
		return nil, aicallerrors.Newf(aicallerrors.CodeIO, "down")
	})
	assert.Equal(t, aicallerrors.CodeRetryExhausted, aicallerrors.ErrorCode(err))
	assert.Equal(t, 3, calls)

	assert.Equal(t, 2, e.TotalRetryCount(), "only sleeps between attempts count as retries")
	assert.Zero(t, e.SuccessfulRetryCount())
	assert.Zero(t, e.RetrySuccessRate())
}

func TestExecutorNonRetryablePropagatesImmediately(t *testing.T) {
	e := newTestExecutor(3)

	calls := 0
	_, err := e.Execute(context.Background(), func() (interface{}, error) {
		calls++
		return nil, aicallerrors.Newf(aicallerrors.CodeCircuitOpen, "open")
	})
	assert.Equal(t, aicallerrors.CodeCircuitOpen, aicallerrors.ErrorCode(err))
	assert.Equal(t, 1, calls)
	assert.Zero(t, e.TotalRetryCount())
}

func TestExecutorContextCancelsBackoff(t *testing.T) {
	e := NewExecutor(Config{
		MaxAttempts:  3,
		BaseDelay:    time.Hour,
		JitterFactor: 0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, func() (interface{}, error) {
		return nil, aicallerrors.Newf(aicallerrors.CodeIO, "down")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutorStatsAccumulateAcrossCalls(t *testing.T) {
	e := newTestExecutor(2)

	fail := func() (interface{}, error) {
		return nil, aicallerrors.Newf(aicallerrors.CodeIO, "down")
	}
	_, err := e.Execute(context.Background(), fail)
	require.Error(t, err)

	calls := 0
	_, err = e.Execute(context.Background(), func() (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, aicallerrors.Newf(aicallerrors.CodeIO, "flaky")
		}
		return "ok", nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, e.TotalRetryCount())
	assert.Equal(t, 1, e.SuccessfulRetryCount())
	assert.Equal(t, 0.5, e.RetrySuccessRate())
}
