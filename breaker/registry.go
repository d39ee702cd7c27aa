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

package breaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry holds one breaker per endpoint key, created on first use and kept
// for the life of the process.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
	logger   *zap.Logger
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// RegistryDefaults sets the config applied to breakers created without one.
func RegistryDefaults(config Config) RegistryOption {
	return func(r *Registry) {
		r.defaults = config.withDefaults()
	}
}

// RegistryLogger sets the logger handed to created breakers.
func RegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry builds an empty breaker registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*Breaker),
		defaults: DefaultConfig(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the breaker for a key, creating it with the registry
// defaults on first use.
func (r *Registry) GetOrCreate(name string) *Breaker {
	return r.GetOrCreateWithConfig(name, r.defaults)
}

// GetOrCreateWithConfig returns the breaker for a key, creating it with the
// given config on first use. An existing breaker keeps its original config.
func (r *Registry) GetOrCreateWithConfig(name string, config Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, config, Logger(r.logger))
	r.breakers[name] = b
	return b
}

// Get returns the breaker for a key, or nil if none exists yet.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Remove drops the breaker for a key.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}

// All returns a snapshot of the registered breakers keyed by endpoint key.
func (r *Registry) All() map[string]*Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Breaker, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b
	}
	return out
}

// Clear drops every breaker.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*Breaker)
}
