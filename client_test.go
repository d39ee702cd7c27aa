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

package aicall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"

	"github.com/aicore/aicall/aicallerrors"
	"github.com/aicore/aicall/breaker"
	"github.com/aicore/aicall/registry"
	"github.com/aicore/aicall/retry"
	"github.com/aicore/aicall/transport"
)

func startProvider(t *testing.T, reg registry.Registry, invocations *atomic.Int32) *transport.Server {
	t.Helper()
	srv := transport.NewServer(0, reg, transport.ServerLogger(zaptest.NewLogger(t)))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	require.NoError(t, srv.RegisterService("echo", transport.HandlerFunc(
		func(_ context.Context, method string, params []interface{}) (interface{}, error) {
			if invocations != nil {
				invocations.Inc()
			}
			switch method {
			case "Say":
				return params[0], nil
			case "Fail":
				return nil, errors.New("echo exploded")
			default:
				return nil, errors.New("unknown method: " + method)
			}
		})))
	return srv
}

func newTestClient(t *testing.T, reg registry.Registry, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithPlaintext(),
		WithBalancerName("random"),
		WithLogger(zaptest.NewLogger(t)),
		WithRetryConfig(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, JitterFactor: 0}),
	}, opts...)
	c, err := New(reg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown() })
	return c
}

func TestClientInvoke(t *testing.T) {
	reg := registry.NewInMemory()
	srv := startProvider(t, reg, nil)
	c := newTestClient(t, reg)

	result, err := c.Invoke(context.Background(), "echo", "Say", []string{"string"}, []interface{}{"hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)

	// The terminated call fed the per-endpoint state.
	key := registry.Key("echo", srv.Endpoint())
	require.NotNil(t, c.Timeouts().Get(key))
	assert.Equal(t, 1, c.Timeouts().Get(key).Stats().Count())
	require.NotNil(t, c.Breakers().Get(key))
	assert.Equal(t, 1, c.Breakers().Get(key).Metrics().TotalCalls())
	assert.Zero(t, c.Breakers().Get(key).Metrics().FailedCalls())
}

func TestClientBusinessErrorNotRetried(t *testing.T) {
	reg := registry.NewInMemory()
	var invocations atomic.Int32
	srv := startProvider(t, reg, &invocations)
	c := newTestClient(t, reg)

	_, err := c.Invoke(context.Background(), "echo", "Fail", nil, nil)
	assert.Equal(t, aicallerrors.CodeBusiness, aicallerrors.ErrorCode(err))
	assert.Contains(t, err.Error(), "echo exploded")
	assert.Equal(t, int32(1), invocations.Load(), "business errors are not retried")

	key := registry.Key("echo", srv.Endpoint())
	assert.Equal(t, 1, c.Breakers().Get(key).Metrics().FailedCalls())
}

func TestClientNoProvider(t *testing.T) {
	c := newTestClient(t, registry.NewInMemory())

	_, err := c.Invoke(context.Background(), "missing", "Say", nil, nil)
	assert.Equal(t, aicallerrors.CodeNoProvider, aicallerrors.ErrorCode(err))
}

func TestClientCircuitOpenFailsFastWithoutRetry(t *testing.T) {
	reg := registry.NewInMemory()
	srv := startProvider(t, reg, nil)
	// A backoff sleep would hang this test well past the deadline check.
	c := newTestClient(t, reg, WithRetryConfig(retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Hour,
	}))

	key := registry.Key("echo", srv.Endpoint())
	br := c.Breakers().GetOrCreateWithConfig(key, breaker.Config{WaitDurationInOpenState: time.Hour})
	br.ForceState(breaker.StateOpen)
	recorded := br.Metrics().TotalCalls()

	start := time.Now()
	_, err := c.Invoke(context.Background(), "echo", "Say", nil, []interface{}{"x"})
	assert.Equal(t, aicallerrors.CodeCircuitOpen, aicallerrors.ErrorCode(err))
	assert.Less(t, time.Since(start), time.Second, "no backoff sleep on circuit-open")
	assert.Equal(t, recorded, br.Metrics().TotalCalls(), "admission refusal does not touch the window")
}

func TestClientRetriesExhaustOnDeadEndpoint(t *testing.T) {
	reg := registry.NewInMemory()
	require.NoError(t, reg.Register("echo", deadEndpoint(t)))
	c := newTestClient(t, reg)

	_, err := c.Invoke(context.Background(), "echo", "Say", nil, []interface{}{"x"})
	assert.Equal(t, aicallerrors.CodeRetryExhausted, aicallerrors.ErrorCode(err))
}

func TestClientRetryMovesToHealthyEndpoint(t *testing.T) {
	reg := registry.NewInMemory()
	srv := startProvider(t, reg, nil)
	dead := deadEndpoint(t)

	// First selection lands on the dead endpoint, the retry on the live one.
	c := newTestClient(t, reg, WithBalancer(&scriptedBalancer{
		sequence: []registry.Endpoint{dead, srv.Endpoint()},
	}))

	result, err := c.Invoke(context.Background(), "echo", "Say", nil, []interface{}{"recovered"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)

	assert.Equal(t, 1, c.TotalRetryCount())
	assert.Equal(t, 1, c.SuccessfulRetryCount())
	assert.Equal(t, 1.0, c.RetrySuccessRate())
}

func TestClientRetryStats(t *testing.T) {
	reg := registry.NewInMemory()
	require.NoError(t, reg.Register("echo", deadEndpoint(t)))
	c := newTestClient(t, reg)

	assert.Equal(t, 1.0, c.RetrySuccessRate(), "rate is 1.0 before any retry")

	_, err := c.Invoke(context.Background(), "echo", "Say", nil, []interface{}{"x"})
	require.Error(t, err)

	assert.Equal(t, 2, c.TotalRetryCount(), "two backoffs across three attempts")
	assert.Zero(t, c.SuccessfulRetryCount())
	assert.Zero(t, c.RetrySuccessRate())
}

func TestClientAdaptiveTimeoutLearns(t *testing.T) {
	reg := registry.NewInMemory()
	srv := startProvider(t, reg, nil)
	c := newTestClient(t, reg)

	for i := 0; i < 3; i++ {
		_, err := c.Invoke(context.Background(), "echo", "Say", nil, []interface{}{"x"})
		require.NoError(t, err)
	}

	key := registry.Key("echo", srv.Endpoint())
	assert.Equal(t, 3, c.Timeouts().Get(key).Stats().Count())
}

func TestServiceClient(t *testing.T) {
	reg := registry.NewInMemory()
	startProvider(t, reg, nil)
	c := newTestClient(t, reg)

	echo := c.Service("echo")
	result, err := echo.Call(context.Background(), "Say", "bound")
	require.NoError(t, err)
	assert.Equal(t, "bound", result)
}

// deadEndpoint reserves a loopback port with nothing listening on it.
func deadEndpoint(t *testing.T) registry.Endpoint {
	t.Helper()
	srv := transport.NewServer(0, registry.NewInMemory())
	require.NoError(t, srv.Start())
	e := srv.Endpoint()
	require.NoError(t, srv.Stop())
	return e
}

// scriptedBalancer replays a fixed endpoint sequence, then sticks on the
// last entry.
type scriptedBalancer struct {
	sequence []registry.Endpoint
	next     atomic.Int32
}

func (s *scriptedBalancer) Select(_ string, endpoints []registry.Endpoint) (registry.Endpoint, bool) {
	if len(s.sequence) == 0 {
		return registry.Endpoint{}, false
	}
	i := int(s.next.Inc()) - 1
	if i >= len(s.sequence) {
		i = len(s.sequence) - 1
	}
	return s.sequence[i], true
}
