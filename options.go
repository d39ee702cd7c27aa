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
	"crypto/tls"

	"go.uber.org/net/metrics"
	"go.uber.org/zap"

	"github.com/aicore/aicall/adaptive"
	"github.com/aicore/aicall/breaker"
	"github.com/aicore/aicall/config"
	"github.com/aicore/aicall/loadbalance"
	"github.com/aicore/aicall/retry"
	"github.com/aicore/aicall/wire"
)

type options struct {
	config        *config.Config
	logger        *zap.Logger
	meter         *metrics.Scope
	balancer      loadbalance.Balancer
	balancerName  string
	factory       *loadbalance.Factory
	retryConfig   retry.Config
	breakerConfig breaker.Config
	timeoutConfig adaptive.Config
	tlsConfig     *tls.Config
	plaintext     bool
	serializer    wire.SerializerType
	poolCapacity  int
}

func defaultOptions() options {
	return options{
		retryConfig: retry.DefaultConfig(),
		serializer:  wire.DefaultSerializer,
	}
}

// Option customizes a Client.
type Option func(*options)

// WithConfig supplies the process configuration. Defaults to an empty
// configuration resolving every key to its default.
func WithConfig(c *config.Config) Option {
	return func(o *options) { o.config = c }
}

// WithLogger sets the logger shared by the client and its subsystems.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics enables call instrumentation under the given scope.
func WithMetrics(meter *metrics.Scope) Option {
	return func(o *options) { o.meter = meter }
}

// WithBalancer supplies a balancer instance directly, bypassing the factory.
func WithBalancer(b loadbalance.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBalancerName selects a factory strategy by name, overriding the
// configured one.
func WithBalancerName(name string) Option {
	return func(o *options) { o.balancerName = name }
}

// WithBalancerFactory supplies the factory consulted for named strategies,
// letting applications register their own.
func WithBalancerFactory(f *loadbalance.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithRetryConfig overrides the retry parameters.
func WithRetryConfig(c retry.Config) Option {
	return func(o *options) { o.retryConfig = c.WithDefaults() }
}

// WithBreakerConfig overrides the defaults for breakers created by this
// client.
func WithBreakerConfig(c breaker.Config) Option {
	return func(o *options) { o.breakerConfig = c }
}

// WithTimeoutConfig overrides the defaults for adaptive timeouts created by
// this client.
func WithTimeoutConfig(c adaptive.Config) Option {
	return func(o *options) { o.timeoutConfig = c }
}

// WithTLS sets the client TLS configuration. The default trusts any server
// certificate.
func WithTLS(c *tls.Config) Option {
	return func(o *options) { o.tlsConfig = c }
}

// WithPlaintext dials providers without TLS.
func WithPlaintext() Option {
	return func(o *options) { o.plaintext = true }
}

// WithSerializer sets the wire serializer for outbound requests.
func WithSerializer(s wire.SerializerType) Option {
	return func(o *options) { o.serializer = s }
}

// WithPoolCapacity bounds open connections per endpoint.
func WithPoolCapacity(n int) Option {
	return func(o *options) { o.poolCapacity = n }
}
