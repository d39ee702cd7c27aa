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
	"math/rand"
	"sync"
	"time"

	"github.com/aicore/aicall/registry"
)

// Random selects uniformly among the discovered endpoints.
type Random struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// RandomOption customizes a Random balancer.
type RandomOption func(*Random)

// RandomSource sets the randomness source, for deterministic tests.
func RandomSource(source rand.Source) RandomOption {
	return func(r *Random) {
		r.rand = rand.New(source)
	}
}

// NewRandom builds a uniform random balancer.
func NewRandom(opts ...RandomOption) *Random {
	r := &Random{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select picks one endpoint uniformly.
func (r *Random) Select(_ string, endpoints []registry.Endpoint) (registry.Endpoint, bool) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, false
	}
	r.mu.Lock()
	idx := r.rand.Intn(len(endpoints))
	r.mu.Unlock()
	return endpoints[idx], true
}
