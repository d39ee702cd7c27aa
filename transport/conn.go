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

// Package transport owns the client connections, the per-endpoint bounded
// pools, and the provider-side server speaking the framed wire protocol.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/aicore/aicall/aicallerrors"
	"github.com/aicore/aicall/registry"
	"github.com/aicore/aicall/wire"
)

const (
	// _defaultHeartbeatInterval is the writer-idle period after which a
	// heartbeat probe is sent.
	_defaultHeartbeatInterval = 5 * time.Second

	// _heartbeatGraceFactor scales the interval into the grace period a
	// probe may remain unanswered before the connection is closed.
	_heartbeatGraceFactor = 3
)

type result struct {
	res *wire.Response
	err error
}

// Conn is one multiplexed client connection to an endpoint. Concurrent calls
// share it; responses are correlated back to callers by message id.
type Conn struct {
	endpoint   registry.Endpoint
	nc         net.Conn
	reader     *bufio.Reader
	serializer wire.SerializerType
	logger     *zap.Logger

	heartbeatInterval time.Duration

	writeMu   sync.Mutex
	lastWrite atomic.Int64 // unix nanos

	mu       sync.Mutex
	pending  map[int32]chan result
	closed   bool
	closeErr error

	done chan struct{}
}

type connOptions struct {
	serializer        wire.SerializerType
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func defaultConnOptions() connOptions {
	return connOptions{
		serializer:        wire.DefaultSerializer,
		heartbeatInterval: _defaultHeartbeatInterval,
		logger:            zap.NewNop(),
	}
}

// ConnOption customizes a connection.
type ConnOption func(*connOptions)

// ConnSerializer sets the serializer used for outbound messages.
func ConnSerializer(s wire.SerializerType) ConnOption {
	return func(o *connOptions) { o.serializer = s }
}

// ConnHeartbeatInterval sets the writer-idle period between heartbeats.
func ConnHeartbeatInterval(d time.Duration) ConnOption {
	return func(o *connOptions) { o.heartbeatInterval = d }
}

// ConnLogger sets the connection's logger.
func ConnLogger(logger *zap.Logger) ConnOption {
	return func(o *connOptions) { o.logger = logger }
}

// Dial opens a connection to an endpoint. A nil tlsConfig dials plaintext
// TCP; otherwise the connection is wrapped in TLS before use.
func Dial(ctx context.Context, e registry.Endpoint, tlsConfig *tls.Config, opts ...ConnOption) (*Conn, error) {
	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, "tcp", e.String())
	if err != nil {
		return nil, classifyDialError(e, err)
	}
	if tlsConfig != nil {
		tc := tls.Client(nc, tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, aicallerrors.Wrap(aicallerrors.CodeIO, err)
		}
		nc = tc
	}
	return NewConn(nc, e, opts...), nil
}

// NewConn wraps an established net.Conn, starting its read and heartbeat
// loops. Primarily useful to tests; production code dials.
func NewConn(nc net.Conn, e registry.Endpoint, opts ...ConnOption) *Conn {
	options := defaultConnOptions()
	for _, opt := range opts {
		opt(&options)
	}
	c := &Conn{
		endpoint:          e,
		nc:                nc,
		reader:            bufio.NewReader(nc),
		serializer:        options.serializer,
		logger:            options.logger,
		heartbeatInterval: options.heartbeatInterval,
		pending:           make(map[int32]chan result),
		done:              make(chan struct{}),
	}
	c.lastWrite.Store(time.Now().UnixNano())
	go c.readLoop()
	go c.heartbeatLoop()
	return c
}

// Endpoint returns the remote endpoint.
func (c *Conn) Endpoint() registry.Endpoint { return c.endpoint }

// Healthy reports whether the connection is still usable.
func (c *Conn) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// RoundTrip registers a pending completion for the message, writes it, and
// blocks until the response arrives, the context expires, or the connection
// dies. A response arriving after the context expired is dropped.
func (c *Conn) RoundTrip(ctx context.Context, m *wire.Message) (*wire.Response, error) {
	ch := make(chan result, 1)
	if err := c.register(m.ID, ch); err != nil {
		return nil, err
	}
	if err := c.write(m); err != nil {
		c.unregister(m.ID)
		return nil, err
	}

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		c.unregister(m.ID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, aicallerrors.Newf(aicallerrors.CodeTimeout,
				"call %d to %s timed out", m.ID, c.endpoint.String())
		}
		return nil, ctx.Err()
	}
}

// Close tears the connection down, failing every pending call.
func (c *Conn) Close() error {
	return c.closeWithError(nil)
}

func (c *Conn) register(id int32, ch chan result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return aicallerrors.Wrap(aicallerrors.CodeIO, c.closeErr)
	}
	c.pending[id] = ch
	return nil
}

func (c *Conn) unregister(id int32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) write(m *wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.lastWrite.Store(time.Now().UnixNano())
	if err := wire.Encode(c.nc, m); err != nil {
		c.closeWithError(err)
		return err
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		m, err := wire.Decode(c.reader)
		if err != nil {
			if aicallerrors.ErrorCode(err) == aicallerrors.CodeProtocol {
				c.logger.Warn("protocol violation on connection, closing",
					zap.String("endpoint", c.endpoint.String()),
					zap.Error(err))
			}
			c.closeWithError(err)
			return
		}
		switch {
		case m.Type.IsResponse():
			c.complete(m.ID, m.Response())
		default:
			c.logger.Warn("unexpected inbound message on client connection",
				zap.String("endpoint", c.endpoint.String()),
				zap.Int32("id", m.ID))
		}
	}
}

func (c *Conn) complete(id int32, res *wire.Response) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		// Late response after a timeout: the pending entry is gone.
		c.logger.Debug("dropping late response",
			zap.String("endpoint", c.endpoint.String()),
			zap.Int32("id", id))
		return
	}
	ch <- result{res: res}
}

func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			idle := time.Duration(time.Now().UnixNano() - c.lastWrite.Load())
			if idle < c.heartbeatInterval {
				continue
			}
			go c.heartbeat()
		}
	}
}

// heartbeat sends one probe and closes the connection if the PONG does not
// arrive within the grace period.
func (c *Conn) heartbeat() {
	grace := c.heartbeatInterval * _heartbeatGraceFactor
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	probe := wire.NewHeartbeatRequest(c.serializer)
	if _, err := c.RoundTrip(ctx, probe); err != nil {
		if c.Healthy() {
			c.logger.Warn("heartbeat went unanswered, closing connection",
				zap.String("endpoint", c.endpoint.String()),
				zap.Error(err))
			c.closeWithError(aicallerrors.Newf(aicallerrors.CodeIO,
				"heartbeat to %s went unanswered", c.endpoint.String()))
		}
	}
}

func (c *Conn) closeWithError(cause error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if cause == nil {
		cause = aicallerrors.Newf(aicallerrors.CodeIO, "connection to %s closed", c.endpoint.String())
	}
	c.closeErr = cause
	pending := c.pending
	c.pending = make(map[int32]chan result)
	close(c.done)
	c.mu.Unlock()

	err := c.nc.Close()
	for _, ch := range pending {
		ch <- result{err: cause}
	}
	return err
}

func classifyDialError(e registry.Endpoint, err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return aicallerrors.Wrap(aicallerrors.CodeConnectionRefused, err)
	case errors.Is(err, context.DeadlineExceeded):
		return aicallerrors.Wrap(aicallerrors.CodeTimeout, err)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return aicallerrors.Wrap(aicallerrors.CodeTimeout, err)
		}
		return aicallerrors.Wrap(aicallerrors.CodeIO, err)
	}
}
