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

// Package observability instruments the call pipeline with net/metrics
// counters and latency histograms.
package observability

import (
	"time"

	"go.uber.org/net/metrics"
	"go.uber.org/zap"
)

var _bucketsMs = []int64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Graph holds the client-side call instruments. A nil *Graph is a no-op, so
// callers never branch on whether metrics are configured.
type Graph struct {
	calls     *metrics.CounterVector
	successes *metrics.CounterVector
	failures  *metrics.CounterVector
	retries   *metrics.CounterVector
	latencies *metrics.HistogramVector
}

// NewGraph constructs the metric instruments under the given scope.
func NewGraph(meter *metrics.Scope, logger *zap.Logger) *Graph {
	g := &Graph{}

	var err error
	g.calls, err = meter.CounterVector(metrics.Spec{
		Name:    "rpc_client_calls",
		Help:    "Total number of RPC attempts.",
		VarTags: []string{"service", "method"},
	})
	if err != nil {
		logger.Error("failed to create calls counter", zap.Error(err))
	}
	g.successes, err = meter.CounterVector(metrics.Spec{
		Name:    "rpc_client_successes",
		Help:    "Number of successful RPC attempts.",
		VarTags: []string{"service", "method"},
	})
	if err != nil {
		logger.Error("failed to create successes counter", zap.Error(err))
	}
	g.failures, err = meter.CounterVector(metrics.Spec{
		Name:    "rpc_client_failures",
		Help:    "Number of failed RPC attempts by error kind.",
		VarTags: []string{"service", "method", "error"},
	})
	if err != nil {
		logger.Error("failed to create failures counter", zap.Error(err))
	}
	g.retries, err = meter.CounterVector(metrics.Spec{
		Name:    "rpc_client_retries",
		Help:    "Number of retried RPC attempts.",
		VarTags: []string{"service", "method"},
	})
	if err != nil {
		logger.Error("failed to create retries counter", zap.Error(err))
	}
	g.latencies, err = meter.HistogramVector(metrics.HistogramSpec{
		Spec: metrics.Spec{
			Name:    "rpc_client_success_latency_ms",
			Help:    "Latency distribution of successful RPCs.",
			VarTags: []string{"service", "method"},
		},
		Unit:    time.Millisecond,
		Buckets: _bucketsMs,
	})
	if err != nil {
		logger.Error("failed to create latency histogram", zap.Error(err))
	}
	return g
}

// Call records one attempt.
func (g *Graph) Call(service, method string) {
	if g == nil {
		return
	}
	g.inc(g.calls, "service", service, "method", method)
}

// Success records one successful call and its latency.
func (g *Graph) Success(service, method string, elapsed time.Duration) {
	if g == nil {
		return
	}
	g.inc(g.successes, "service", service, "method", method)
	if g.latencies == nil {
		return
	}
	if h, err := g.latencies.Get("service", service, "method", method); err == nil {
		h.Observe(elapsed)
	}
}

// Failure records one failed call under its error kind.
func (g *Graph) Failure(service, method, kind string) {
	if g == nil {
		return
	}
	g.inc(g.failures, "service", service, "method", method, "error", kind)
}

// Retry records one retried attempt.
func (g *Graph) Retry(service, method string) {
	if g == nil {
		return
	}
	g.inc(g.retries, "service", service, "method", method)
}

func (g *Graph) inc(vec *metrics.CounterVector, tags ...string) {
	if vec == nil {
		return
	}
	if c, err := vec.Get(tags...); err == nil {
		c.Inc()
	}
}
