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

// Package loadbalance selects which endpoint serves each call. The default
// strategy fuses externally predicted health scores with locally observed
// breaker and latency signals.
package loadbalance

import (
	"sync"

	"go.uber.org/zap"

	"github.com/aicore/aicall/adaptive"
	"github.com/aicore/aicall/aicallerrors"
	"github.com/aicore/aicall/breaker"
	"github.com/aicore/aicall/config"
	"github.com/aicore/aicall/registry"
)

// Balancer picks one endpoint from the currently discovered list. The
// second return is false when the list is empty.
type Balancer interface {
	Select(service string, endpoints []registry.Endpoint) (registry.Endpoint, bool)
}

// Deps carries the process-wide collaborators a strategy may draw local
// signals from.
type Deps struct {
	Breakers *breaker.Registry
	Timeouts *adaptive.Registry
	Config   *config.Config
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Config == nil {
		d.Config = config.New(nil)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// Constructor builds a strategy from its dependencies.
type Constructor func(Deps) (Balancer, error)

// Factory resolves strategies by name, holding one process-wide instance per
// name.
type Factory struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	instances    map[string]Balancer
}

// NewFactory builds a factory with the built-in strategies ("random",
// "aipredictive") registered.
func NewFactory() *Factory {
	f := &Factory{
		constructors: make(map[string]Constructor),
		instances:    make(map[string]Balancer),
	}
	f.Register("random", func(Deps) (Balancer, error) {
		return NewRandom(), nil
	})
	f.Register("aipredictive", func(deps Deps) (Balancer, error) {
		return NewPredictive(deps), nil
	})
	return f
}

// Register adds a strategy constructor under a name, replacing any previous
// registration.
func (f *Factory) Register(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

// Get returns the singleton strategy instance for a name, constructing it on
// first use. An empty name resolves to "random"; an unknown one is a
// configuration error.
func (f *Factory) Get(name string, deps Deps) (Balancer, error) {
	if name == "" {
		name = "random"
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.instances[name]; ok {
		return b, nil
	}
	ctor, ok := f.constructors[name]
	if !ok {
		return nil, aicallerrors.Newf(aicallerrors.CodeInternal, "no load balancer registered under %q", name)
	}
	b, err := ctor(deps.withDefaults())
	if err != nil {
		return nil, err
	}
	f.instances[name] = b
	return b, nil
}
