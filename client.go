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
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aicore/aicall/adaptive"
	"github.com/aicore/aicall/aicallerrors"
	"github.com/aicore/aicall/breaker"
	"github.com/aicore/aicall/config"
	"github.com/aicore/aicall/internal/observability"
	"github.com/aicore/aicall/loadbalance"
	"github.com/aicore/aicall/registry"
	"github.com/aicore/aicall/retry"
	"github.com/aicore/aicall/transport"
	"github.com/aicore/aicall/wire"
)

// Client is the consumer-side entry point: it owns the per-endpoint
// breakers, adaptive timeouts, and connection pools, and drives the
// discover -> balance -> admit -> acquire -> send -> await -> record ->
// retry pipeline for every call.
type Client struct {
	reg      registry.Registry
	balancer loadbalance.Balancer
	pools    *transport.Manager
	breakers *breaker.Registry
	timeouts *adaptive.Registry
	retrier  *retry.Executor

	defaultTimeout time.Duration
	serializer     wire.SerializerType
	logger         *zap.Logger
	graph          *observability.Graph

	ownsBalancer bool
}

// New builds a client over a service registry.
func New(reg registry.Registry, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.config == nil {
		o.config = config.New(nil)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	breakers := breaker.NewRegistry(
		breaker.RegistryDefaults(o.breakerConfig),
		breaker.RegistryLogger(o.logger),
	)
	timeouts := adaptive.NewRegistry(o.timeoutConfig)

	balancer := o.balancer
	ownsBalancer := false
	if balancer == nil {
		name := o.balancerName
		if name == "" {
			name = o.config.LoadBalancerType()
		}
		factory := o.factory
		if factory == nil {
			factory = loadbalance.NewFactory()
		}
		var err error
		balancer, err = factory.Get(name, loadbalance.Deps{
			Breakers: breakers,
			Timeouts: timeouts,
			Config:   o.config,
			Logger:   o.logger,
		})
		if err != nil {
			return nil, err
		}
		ownsBalancer = true
	}

	managerOpts := []transport.ManagerOption{
		transport.ManagerSerializer(o.serializer),
		transport.ManagerLogger(o.logger),
	}
	if o.plaintext {
		managerOpts = append(managerOpts, transport.ManagerPlaintext())
	} else if o.tlsConfig != nil {
		managerOpts = append(managerOpts, transport.ManagerTLS(o.tlsConfig))
	}
	if o.poolCapacity > 0 {
		managerOpts = append(managerOpts, transport.ManagerPoolCapacity(o.poolCapacity))
	}

	var graph *observability.Graph
	if o.meter != nil {
		graph = observability.NewGraph(o.meter, o.logger)
	}

	return &Client{
		reg:            reg,
		balancer:       balancer,
		pools:          transport.NewManager(managerOpts...),
		breakers:       breakers,
		timeouts:       timeouts,
		retrier:        retry.NewExecutor(o.retryConfig),
		defaultTimeout: time.Duration(o.config.RequestTimeoutSeconds()) * time.Second,
		serializer:     o.serializer,
		logger:         o.logger,
		graph:          graph,
		ownsBalancer:   ownsBalancer,
	}, nil
}

// Invoke calls method on service, retrying retryable failures with
// exponential backoff. Circuit-open refusals propagate immediately; once
// attempts are exhausted the last cause is wrapped in a retry-exhausted
// error.
func (c *Client) Invoke(ctx context.Context, service, method string, paramTypes []string, params []interface{}) (interface{}, error) {
	attempts := 0
	return c.retrier.Execute(ctx, func() (interface{}, error) {
		attempts++
		if attempts > 1 {
			c.graph.Retry(service, method)
		}
		result, err := c.attempt(ctx, service, method, paramTypes, params)
		if err != nil {
			c.graph.Failure(service, method, aicallerrors.ErrorCode(err).String())
			c.logger.Warn("call attempt failed",
				zap.String("service", service),
				zap.String("method", method),
				zap.Int("attempt", attempts),
				zap.Error(err))
		}
		return result, err
	})
}

// TotalRetryCount returns how many retries the client has issued.
func (c *Client) TotalRetryCount() int {
	return c.retrier.TotalRetryCount()
}

// SuccessfulRetryCount returns how many retried calls eventually succeeded.
func (c *Client) SuccessfulRetryCount() int {
	return c.retrier.SuccessfulRetryCount()
}

// RetrySuccessRate returns successful retries over total retries, or 1.0
// when no retry has been issued yet.
func (c *Client) RetrySuccessRate() float64 {
	return c.retrier.RetrySuccessRate()
}

// attempt runs one pass of the pipeline.
func (c *Client) attempt(ctx context.Context, service, method string, paramTypes []string, params []interface{}) (interface{}, error) {
	c.graph.Call(service, method)

	endpoints, err := c.reg.Discover(service)
	if err != nil {
		return nil, aicallerrors.Wrap(aicallerrors.CodeIO, err)
	}
	if len(endpoints) == 0 {
		return nil, aicallerrors.Newf(aicallerrors.CodeNoProvider, "no available provider for service %q", service)
	}

	endpoint, ok := c.balancer.Select(service, endpoints)
	if !ok {
		return nil, aicallerrors.Newf(aicallerrors.CodeNoProvider, "balancer produced no endpoint for service %q", service)
	}

	key := registry.Key(service, endpoint)
	br := c.breakers.GetOrCreate(key)
	at := c.timeouts.GetOrCreate(key)

	if !br.AllowRequest() {
		return nil, aicallerrors.Newf(aicallerrors.CodeCircuitOpen, "circuit breaker for %s is %s", key, br.State())
	}

	pool := c.pools.GetOrCreate(endpoint)
	conn, err := pool.Acquire(ctx)
	if err != nil {
		br.RecordFailure()
		return nil, err
	}

	timeout := at.Timeout()
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	id := wire.NextMessageID()
	msg := &wire.Message{
		Type:       wire.TypeRequest,
		Serializer: c.serializer,
		ID:         id,
		Body: &wire.Request{
			RequestID:  strconv.FormatInt(int64(id), 10),
			ClassName:  service,
			MethodName: method,
			ParamTypes: paramTypes,
			Params:     params,
		},
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	res, err := conn.RoundTrip(callCtx, msg)
	cancel()
	pool.Release(conn)
	elapsed := time.Since(start)

	if err != nil {
		br.RecordFailure()
		return nil, err
	}
	if res.Error != "" {
		br.RecordFailure()
		return nil, aicallerrors.Newf(aicallerrors.CodeBusiness, "%s", res.Error)
	}

	br.RecordSuccess(elapsed)
	at.RecordLatency(elapsed)
	c.graph.Success(service, method, elapsed)
	return res.Result, nil
}

// Service returns a thin bound caller for one service, the hand-written
// analog of a generated per-interface client.
func (c *Client) Service(name string) *ServiceClient {
	return &ServiceClient{client: c, service: name}
}

// Breakers exposes the client's breaker registry for observability.
func (c *Client) Breakers() *breaker.Registry { return c.breakers }

// Timeouts exposes the client's adaptive-timeout registry for
// observability.
func (c *Client) Timeouts() *adaptive.Registry { return c.timeouts }

// Shutdown releases the client's pooled connections and stops any balancer
// it constructed.
func (c *Client) Shutdown() error {
	var err error
	err = multierr.Append(err, c.pools.Shutdown())
	if c.ownsBalancer {
		if stopper, ok := c.balancer.(interface{ Stop() }); ok {
			stopper.Stop()
		}
	}
	return err
}

// ServiceClient binds a Client to one service name.
type ServiceClient struct {
	client  *Client
	service string
}

// Call invokes a method with positional arguments.
func (s *ServiceClient) Call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	return s.client.Invoke(ctx, s.service, method, nil, args)
}
