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
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aicore/aicall/aicallerrors"
	"github.com/aicore/aicall/registry"
)

// DefaultPoolCapacity bounds open connections per endpoint.
const DefaultPoolCapacity = 10

// grant is what a queued acquirer receives: a pooled connection, or
// permission to dial into a freed slot. The zero grant means the pool
// closed.
type grant struct {
	conn *Conn
	dial bool
}

// Pool is a bounded pool of multiplexed connections to one endpoint.
// Acquires beyond capacity queue; cancelling a queued acquire releases its
// slot.
type Pool struct {
	endpoint registry.Endpoint
	dial     func(ctx context.Context) (*Conn, error)
	capacity int
	logger   *zap.Logger

	mu      sync.Mutex
	idle    []*Conn
	open    int
	waiters []chan grant
	closed  bool
}

// PoolOption customizes a pool.
type PoolOption func(*Pool)

// PoolCapacity bounds the open connections. Defaults to
// DefaultPoolCapacity.
func PoolCapacity(n int) PoolOption {
	return func(p *Pool) { p.capacity = n }
}

// PoolLogger sets the pool's logger.
func PoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool builds a pool that opens connections with dial.
func NewPool(e registry.Endpoint, dial func(ctx context.Context) (*Conn, error), opts ...PoolOption) *Pool {
	p := &Pool{
		endpoint: e,
		dial:     dial,
		capacity: DefaultPoolCapacity,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a pooled connection, dialing a fresh one while under
// capacity, or queueing until one frees up.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, aicallerrors.Newf(aicallerrors.CodeIO, "pool for %s is closed", p.endpoint.String())
	}

	// Reuse an idle connection, discarding any that died while parked.
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if conn.Healthy() {
			p.mu.Unlock()
			return conn, nil
		}
		p.open--
	}

	if p.open < p.capacity {
		p.open++
		p.mu.Unlock()
		return p.dialSlot(ctx)
	}

	w := make(chan grant, 1)
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case g := <-w:
		switch {
		case g.conn != nil:
			return g.conn, nil
		case g.dial:
			return p.dialSlot(ctx)
		default:
			return nil, aicallerrors.Newf(aicallerrors.CodeIO, "pool for %s is closed", p.endpoint.String())
		}
	case <-ctx.Done():
		p.abandon(w)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, aicallerrors.Wrap(aicallerrors.CodeTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Release returns a connection to the pool. Callers release every acquired
// connection exactly once, whether the call succeeded or failed; dead
// connections free their slot for the next acquire.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.open--
		p.mu.Unlock()
		conn.Close()
		return
	}
	if !conn.Healthy() {
		p.open--
		// The freed slot goes to the oldest waiter, which dials for itself.
		if w := p.popWaiterLocked(); w != nil {
			p.open++
			p.mu.Unlock()
			w <- grant{dial: true}
			return
		}
		p.mu.Unlock()
		return
	}
	if w := p.popWaiterLocked(); w != nil {
		p.mu.Unlock()
		w <- grant{conn: conn}
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Close tears down the pool, closing idle connections and failing queued
// acquires.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w <- grant{}
	}
	var err error
	for _, conn := range idle {
		err = multierr.Append(err, conn.Close())
	}
	return err
}

func (p *Pool) dialSlot(ctx context.Context) (*Conn, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.open--
		// The slot this dial consumed goes back to a waiter, if any.
		if w := p.popWaiterLocked(); w != nil {
			p.open++
			p.mu.Unlock()
			w <- grant{dial: true}
		} else {
			p.mu.Unlock()
		}
		return nil, err
	}
	return conn, nil
}

// abandon removes a cancelled waiter, returning any grant that raced in.
func (p *Pool) abandon(w chan grant) {
	p.mu.Lock()
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// A grant was already issued; undo it.
	g := <-w
	switch {
	case g.conn != nil:
		p.Release(g.conn)
	case g.dial:
		p.mu.Lock()
		p.open--
		if next := p.popWaiterLocked(); next != nil {
			p.open++
			p.mu.Unlock()
			next <- grant{dial: true}
			return
		}
		p.mu.Unlock()
	}
}

func (p *Pool) popWaiterLocked() chan grant {
	if len(p.waiters) == 0 {
		return nil
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	return w
}
