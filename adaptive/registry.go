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

package adaptive

import "sync"

// Registry holds one adaptive timeout per endpoint key, created on first use
// and kept for the life of the process.
type Registry struct {
	mu       sync.RWMutex
	timeouts map[string]*Timeout
	defaults Config
}

// NewRegistry builds an empty timeout registry. The config applies to
// timeouts created without one.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		timeouts: make(map[string]*Timeout),
		defaults: defaults.withDefaults(),
	}
}

// GetOrCreate returns the timeout for a key, creating it with the registry
// defaults on first use.
func (r *Registry) GetOrCreate(name string) *Timeout {
	return r.GetOrCreateWithConfig(name, r.defaults)
}

// GetOrCreateWithConfig returns the timeout for a key, creating it with the
// given config on first use. An existing timeout keeps its original config.
func (r *Registry) GetOrCreateWithConfig(name string, config Config) *Timeout {
	r.mu.RLock()
	t, ok := r.timeouts[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timeouts[name]; ok {
		return t
	}
	t = NewTimeout(name, config)
	r.timeouts[name] = t
	return t
}

// Get returns the timeout for a key, or nil if none exists yet.
func (r *Registry) Get(name string) *Timeout {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeouts[name]
}

// All returns a snapshot of the registered timeouts keyed by endpoint key.
func (r *Registry) All() map[string]*Timeout {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Timeout, len(r.timeouts))
	for name, t := range r.timeouts {
		out[name] = t
	}
	return out
}

// Clear drops every timeout.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = make(map[string]*Timeout)
}
