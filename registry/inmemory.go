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
	"sync"

	"go.uber.org/zap"
)

// InMemory is a process-local Registry. It backs the examples and tests, and
// doubles as the reference semantics for real registry clients: Register is
// idempotent, Deregister of an unknown endpoint is a no-op, Discover returns
// a copy of the current membership.
type InMemory struct {
	mu       sync.RWMutex
	services map[string][]Endpoint
	logger   *zap.Logger
}

// InMemoryOption customizes an in-memory registry.
type InMemoryOption func(*InMemory)

// InMemoryLogger sets the logger used for membership changes.
func InMemoryLogger(logger *zap.Logger) InMemoryOption {
	return func(r *InMemory) {
		r.logger = logger
	}
}

// NewInMemory builds an empty in-memory registry.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	r := &InMemory{
		services: make(map[string][]Endpoint),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an endpoint to a service's membership.
func (r *InMemory) Register(serviceName string, e Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.services[serviceName] {
		if existing == e {
			return nil
		}
	}
	r.services[serviceName] = append(r.services[serviceName], e)
	r.logger.Info("registered service endpoint",
		zap.String("service", serviceName),
		zap.String("endpoint", e.String()))
	return nil
}

// Deregister removes an endpoint from a service's membership.
func (r *InMemory) Deregister(serviceName string, e Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	endpoints := r.services[serviceName]
	for i, existing := range endpoints {
		if existing == e {
			r.services[serviceName] = append(endpoints[:i:i], endpoints[i+1:]...)
			r.logger.Info("deregistered service endpoint",
				zap.String("service", serviceName),
				zap.String("endpoint", e.String()))
			return nil
		}
	}
	return nil
}

// Discover returns a copy of the service's current endpoints.
func (r *InMemory) Discover(serviceName string) ([]Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoints := r.services[serviceName]
	out := make([]Endpoint, len(endpoints))
	copy(out, endpoints)
	return out, nil
}
