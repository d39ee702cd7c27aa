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
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aicore/aicall/aicallerrors"
	"github.com/aicore/aicall/registry"
	"github.com/aicore/aicall/wire"
)

// Handler executes one service method on the provider side.
type Handler interface {
	Invoke(ctx context.Context, method string, params []interface{}) (interface{}, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, method string, params []interface{}) (interface{}, error)

// Invoke calls the function.
func (f HandlerFunc) Invoke(ctx context.Context, method string, params []interface{}) (interface{}, error) {
	return f(ctx, method, params)
}

// Server accepts framed connections and dispatches requests to registered
// service handlers. Heartbeat probes are answered with PONG on the same
// message id.
type Server struct {
	host      string
	port      int
	reg       registry.Registry
	tlsConfig *tls.Config
	logger    *zap.Logger
	drain     time.Duration

	mu       sync.Mutex
	services map[string]Handler
	ln       net.Listener
	conns    map[net.Conn]struct{}
	started  bool
	stopped  bool

	wg sync.WaitGroup
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// ServerTLS serves connections over TLS with the given configuration.
func ServerTLS(config *tls.Config) ServerOption {
	return func(s *Server) { s.tlsConfig = config }
}

// ServerLogger sets the server's logger.
func ServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// ServerDrainTimeout bounds the quiet period Stop waits for in-flight
// handlers. Defaults to 5s.
func ServerDrainTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.drain = d }
}

// ServerAdvertiseHost sets the host under which services are registered.
// Defaults to 127.0.0.1.
func ServerAdvertiseHost(host string) ServerOption {
	return func(s *Server) { s.host = host }
}

// NewServer builds a provider server listening on the given port. Port 0
// picks an ephemeral port; register services after Start so the chosen port
// is advertised.
func NewServer(port int, reg registry.Registry, opts ...ServerOption) *Server {
	s := &Server{
		host:     "127.0.0.1",
		port:     port,
		reg:      reg,
		logger:   zap.NewNop(),
		drain:    5 * time.Second,
		services: make(map[string]Handler),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return aicallerrors.Newf(aicallerrors.CodeInternal, "server already started")
	}

	addr := net.JoinHostPort("", strconv.Itoa(s.port))
	var (
		ln  net.Listener
		err error
	)
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return aicallerrors.Wrap(aicallerrors.CodeIO, err)
	}
	s.ln = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.started = true

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("server listening", zap.Int("port", s.port))
	return nil
}

// Endpoint returns the endpoint under which services are advertised. Only
// meaningful after Start.
func (s *Server) Endpoint() registry.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return registry.Endpoint{Host: s.host, Port: s.port}
}

// RegisterService exposes a handler under a service name and announces it to
// the registry.
func (s *Server) RegisterService(name string, h Handler) error {
	s.mu.Lock()
	s.services[name] = h
	e := registry.Endpoint{Host: s.host, Port: s.port}
	s.mu.Unlock()

	s.logger.Info("registered service handler", zap.String("service", name))
	return s.reg.Register(name, e)
}

// Stop deregisters services, stops accepting, closes live connections, and
// waits out in-flight handlers within the drain timeout. Deregistration
// failures are logged and ignored.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	ln := s.ln
	e := registry.Endpoint{Host: s.host, Port: s.port}
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.reg.Deregister(name, e); err != nil {
			s.logger.Warn("failed to deregister service",
				zap.String("service", name), zap.Error(err))
		}
	}

	var err error
	err = multierr.Append(err, ln.Close())
	for _, conn := range conns {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.drain):
		s.logger.Warn("drain timeout elapsed with handlers still in flight")
	}
	s.logger.Info("server stopped")
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	var writeMu sync.Mutex
	for {
		m, err := wire.Decode(reader)
		if err != nil {
			if aicallerrors.ErrorCode(err) == aicallerrors.CodeProtocol {
				s.logger.Warn("protocol violation from client, closing connection",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.Error(err))
			}
			return
		}

		switch m.Type {
		case wire.TypeHeartbeatRequest:
			s.write(conn, &writeMu, wire.NewHeartbeatResponse(m))
		case wire.TypeRequest:
			req := m.Request()
			s.wg.Add(1)
			go func(m *wire.Message, req *wire.Request) {
				defer s.wg.Done()
				res := s.dispatch(req)
				s.write(conn, &writeMu, &wire.Message{
					Type:       wire.TypeResponse,
					Serializer: m.Serializer,
					ID:         m.ID,
					Body:       res,
				})
			}(m, req)
		default:
			s.logger.Warn("unexpected message type from client",
				zap.Int32("id", m.ID))
		}
	}
}

func (s *Server) dispatch(req *wire.Request) *wire.Response {
	res := &wire.Response{RequestID: req.RequestID}

	s.mu.Lock()
	h, ok := s.services[req.ClassName]
	s.mu.Unlock()
	if !ok {
		res.Error = "service not found: " + req.ClassName
		return res
	}

	result, err := h.Invoke(context.Background(), req.MethodName, req.Params)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Result = result
	return res
}

func (s *Server) write(conn net.Conn, mu *sync.Mutex, m *wire.Message) {
	mu.Lock()
	defer mu.Unlock()
	if err := wire.Encode(conn, m); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}
