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

package transport

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aicore/aicall/registry"
	"github.com/aicore/aicall/wire"
)

// Manager owns one pool per endpoint, created on first use and destroyed at
// process shutdown.
type Manager struct {
	tlsConfig         *tls.Config
	serializer        wire.SerializerType
	capacity          int
	heartbeatInterval time.Duration
	logger            *zap.Logger

	mu     sync.Mutex
	pools  map[registry.Endpoint]*Pool
	closed bool
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// ManagerTLS sets the client TLS configuration for dialed connections.
func ManagerTLS(config *tls.Config) ManagerOption {
	return func(m *Manager) { m.tlsConfig = config }
}

// ManagerPlaintext disables TLS on dialed connections.
func ManagerPlaintext() ManagerOption {
	return func(m *Manager) { m.tlsConfig = nil }
}

// ManagerSerializer sets the serializer for outbound messages.
func ManagerSerializer(s wire.SerializerType) ManagerOption {
	return func(m *Manager) { m.serializer = s }
}

// ManagerPoolCapacity bounds open connections per endpoint.
func ManagerPoolCapacity(n int) ManagerOption {
	return func(m *Manager) { m.capacity = n }
}

// ManagerHeartbeatInterval sets the writer-idle heartbeat period for dialed
// connections.
func ManagerHeartbeatInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.heartbeatInterval = d }
}

// ManagerLogger sets the logger handed to pools and connections.
func ManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager builds an empty pool manager. By default connections are dialed
// over TLS trusting any server certificate; production deployments supply a
// real trust store through ManagerTLS.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		tlsConfig:         &tls.Config{InsecureSkipVerify: true},
		serializer:        wire.DefaultSerializer,
		capacity:          DefaultPoolCapacity,
		heartbeatInterval: _defaultHeartbeatInterval,
		logger:            zap.NewNop(),
		pools:             make(map[registry.Endpoint]*Pool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the pool for an endpoint, creating it on first use.
func (m *Manager) GetOrCreate(e registry.Endpoint) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pool, ok := m.pools[e]; ok {
		return pool
	}
	dial := func(ctx context.Context) (*Conn, error) {
		return Dial(ctx, e, m.tlsConfig,
			ConnSerializer(m.serializer),
			ConnHeartbeatInterval(m.heartbeatInterval),
			ConnLogger(m.logger))
	}
	pool := NewPool(e, dial, PoolCapacity(m.capacity), PoolLogger(m.logger))
	m.pools[e] = pool
	return pool
}

// Shutdown closes every pool, releasing all connections.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pools := m.pools
	m.pools = make(map[registry.Endpoint]*Pool)
	m.mu.Unlock()

	var err error
	for _, pool := range pools {
		err = multierr.Append(err, pool.Close())
	}
	return err
}
