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

// Package aicall is an RPC framework whose client routes calls through a
// predictive, resilience-aware core: a weight-driven load balancer fusing
// externally predicted health scores with local breaker and latency signals,
// a per-endpoint circuit breaker, an adaptive percentile-based timeout, and
// a smart retry wrapper with exponential backoff.
//
// A call flows discover -> balance -> admit -> acquire -> send -> await ->
// record -> retry: the client discovers endpoints through a registry, asks
// the balancer for one, checks its circuit breaker, borrows a pooled
// connection, frames the request on the wire, and awaits the correlated
// response under a deadline derived from that endpoint's recent latency
// percentiles. Every terminal outcome feeds the breaker and latency windows
// that steer the next selection.
package aicall
