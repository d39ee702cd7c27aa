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

package loadbalance

import (
	"github.com/aicore/aicall/adaptive"
	"github.com/aicore/aicall/breaker"
	"github.com/aicore/aicall/registry"
)

// EndpointMetrics is the locally observed health snapshot of one endpoint.
type EndpointMetrics struct {
	Endpoint     registry.Endpoint
	BreakerState breaker.State
	FailureRate  float64
	SlowCallRate float64
	TotalCalls   int
	P50Latency   int64
	P99Latency   int64
	AvgLatency   float64
	SampleCount  int
}

// Collector reads per-endpoint client metrics out of the breaker and
// adaptive-timeout registries.
type Collector struct {
	breakers *breaker.Registry
	timeouts *adaptive.Registry
}

// NewCollector builds a collector over the given registries. Either may be
// nil, in which case its signals read as healthy defaults.
func NewCollector(breakers *breaker.Registry, timeouts *adaptive.Registry) *Collector {
	return &Collector{breakers: breakers, timeouts: timeouts}
}

// Collect snapshots the metrics of every endpoint for a service.
func (c *Collector) Collect(service string, endpoints []registry.Endpoint) map[registry.Endpoint]EndpointMetrics {
	out := make(map[registry.Endpoint]EndpointMetrics, len(endpoints))
	for _, e := range endpoints {
		out[e] = c.collectOne(registry.Key(service, e), e)
	}
	return out
}

func (c *Collector) collectOne(key string, e registry.Endpoint) EndpointMetrics {
	m := EndpointMetrics{
		Endpoint:     e,
		BreakerState: breaker.StateClosed,
	}
	if c.breakers != nil {
		if b := c.breakers.Get(key); b != nil {
			m.BreakerState = b.State()
			m.FailureRate = b.Metrics().FailureRate()
			m.SlowCallRate = b.Metrics().SlowCallRate()
			m.TotalCalls = b.Metrics().TotalCalls()
		}
	}
	if c.timeouts != nil {
		if t := c.timeouts.Get(key); t != nil {
			stats := t.Stats()
			m.P50Latency = stats.P50()
			m.P99Latency = stats.P99()
			m.AvgLatency = stats.Average()
			m.SampleCount = stats.Count()
		}
	}
	return m
}

// LocalWeight folds an endpoint's local signals into the multiplier applied
// to its predicted weight. An open breaker excludes the endpoint outright.
func (c *Collector) LocalWeight(m EndpointMetrics) float64 {
	weight := 1.0
	switch m.BreakerState {
	case breaker.StateOpen:
		return 0
	case breaker.StateHalfOpen:
		weight *= 0.3
	}

	switch {
	case m.FailureRate > 50:
		weight *= 0.2
	case m.FailureRate > 20:
		weight *= 0.5
	case m.FailureRate > 10:
		weight *= 0.8
	}

	switch {
	case m.SlowCallRate > 50:
		weight *= 0.5
	case m.SlowCallRate > 20:
		weight *= 0.8
	}
	return weight
}
