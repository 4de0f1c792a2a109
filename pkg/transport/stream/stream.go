// Package stream implements ferry transports over any net.Conn that can
// half-close its write side: TCP, TLS over TCP, and Windows message-mode
// named pipes.
package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// DialFunc opens a connection, including any handshake it performs.
type DialFunc func(ctx context.Context) (net.Conn, error)

// ListenFunc binds the listening endpoint.
type ListenFunc func() (net.Listener, error)

// HandshakeFunc upgrades an accepted connection, e.g. TLS server handshake.
type HandshakeFunc func(ctx context.Context, c net.Conn) (net.Conn, error)

type halfCloser interface {
	CloseWrite() error
}

// ---- Client ----

type Client struct {
	kind transport.Kind
	dial DialFunc
	opts transport.Options
}

// NewClient builds a client from a substrate dial function.
func NewClient(kind transport.Kind, dial DialFunc, opts transport.Options) *Client {
	return &Client{kind: kind, dial: dial, opts: opts.WithDefaults()}
}

func (c *Client) Connect(ctx context.Context) (transport.Transport, error) {
	op := c.kind.String() + ".connect"
	hctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	nc, err := c.dial(hctx)
	if err != nil {
		return nil, errs.E(errs.KindConnect, op, err)
	}
	t, err := newConn(nc, c.opts)
	if err != nil {
		_ = nc.Close()
		return nil, errs.E(errs.KindConnect, op, err)
	}
	c.opts.Logger.Debug("connected",
		zap.Stringer("kind", c.kind),
		zap.String("remote", addrString(nc.RemoteAddr())))
	return t, nil
}

// ---- Server ----

type Server struct {
	kind      transport.Kind
	listen    ListenFunc
	handshake HandshakeFunc
	opts      transport.Options

	mu      sync.Mutex
	ln      net.Listener
	newCh   chan net.Conn
	closeCh chan struct{}
	closed  bool

	// dead is closed when the accept loop stops for a reason other than
	// Close; deadErr holds that reason.
	dead     chan struct{}
	deadOnce sync.Once
	deadErr  error
}

// NewServer builds a server from a substrate listen function. handshake may
// be nil.
func NewServer(kind transport.Kind, listen ListenFunc, handshake HandshakeFunc, opts transport.Options) *Server {
	return &Server{
		kind:      kind,
		listen:    listen,
		handshake: handshake,
		opts:      opts.WithDefaults(),
		newCh:     make(chan net.Conn, 8),
		closeCh:   make(chan struct{}),
		dead:      make(chan struct{}),
	}
}

// Listen binds once; later calls are no-ops.
func (s *Server) Listen(ctx context.Context) error {
	op := s.kind.String() + ".listen"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	}
	if s.ln != nil {
		return nil
	}
	ln, err := s.listen()
	if err != nil {
		return errs.E(errs.KindConnect, op, err)
	}
	s.ln = ln
	go s.acceptLoop(ln)
	s.opts.Logger.Info("listening", zap.Stringer("kind", s.kind), zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			s.opts.Logger.Warn("accept loop stopped", zap.Stringer("kind", s.kind), zap.Error(err))
			s.markDead(err)
			return
		}
		select {
		case s.newCh <- c:
		case <-s.closeCh:
			_ = c.Close()
			return
		}
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) markDead(err error) {
	s.deadOnce.Do(func() {
		s.deadErr = err
		close(s.dead)
	})
}

// Accept waits for the next connection and completes its handshake. Once the
// listener has failed underneath the server, Accept drains what was already
// queued and then fails with ErrServerClosed wrapping the cause.
func (s *Server) Accept(ctx context.Context) (transport.Transport, error) {
	op := s.kind.String() + ".accept"
	s.mu.Lock()
	ln, closed := s.ln, s.closed
	s.mu.Unlock()
	switch {
	case closed:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	case ln == nil:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrNotListening)
	}

	var nc net.Conn
	select {
	case <-ctx.Done():
		return nil, errs.E(errs.KindConnect, op, ctx.Err())
	case <-s.closeCh:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	case nc = <-s.newCh:
	case <-s.dead:
		select {
		case nc = <-s.newCh:
		default:
			return nil, errs.E(errs.KindPrecondition, op, s.deathCause())
		}
	}

	if s.handshake != nil {
		hctx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
		upgraded, err := s.handshake(hctx, nc)
		cancel()
		if err != nil {
			_ = nc.Close()
			return nil, errs.E(errs.KindConnect, op, err)
		}
		nc = upgraded
	}
	t, err := newConn(nc, s.opts)
	if err != nil {
		_ = nc.Close()
		return nil, errs.E(errs.KindConnect, op, err)
	}
	s.opts.Logger.Debug("accepted", zap.Stringer("kind", s.kind), zap.String("remote", addrString(nc.RemoteAddr())))
	return t, nil
}

func (s *Server) deathCause() error {
	if errors.Is(s.deadErr, net.ErrClosed) {
		return transport.ErrServerClosed
	}
	return fmt.Errorf("%w: %w", transport.ErrServerClosed, s.deadErr)
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops the accept loop and drops queued connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closeCh)
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	for {
		select {
		case c := <-s.newCh:
			_ = c.Close()
		default:
			return err
		}
	}
}

// ---- Transport ----

type conn struct {
	c    net.Conn
	hc   halfCloser
	opts transport.Options

	sent   atomic.Bool
	closed atomic.Bool
}

func newConn(c net.Conn, opts transport.Options) (*conn, error) {
	hc, ok := c.(halfCloser)
	if !ok {
		return nil, errors.New("connection cannot half-close")
	}
	return &conn{c: c, hc: hc, opts: opts}, nil
}

func (c *conn) Send(ctx context.Context, data []byte) error {
	const op = "stream.send"
	if c.closed.Load() {
		return errs.E(errs.KindStream, op, transport.ErrClosed)
	}
	if !c.sent.CompareAndSwap(false, true) {
		return errs.E(errs.KindStream, op, transport.ErrAlreadySent)
	}
	if err := transport.WriteMessage(ctx, c.c, c.c.SetWriteDeadline, data); err != nil {
		return errs.E(errs.KindStream, op, err)
	}
	if err := c.hc.CloseWrite(); err != nil {
		return errs.E(errs.KindStream, op, err)
	}
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	const op = "stream.receive"
	if c.closed.Load() {
		return nil, errs.E(errs.KindStream, op, transport.ErrClosed)
	}
	b, err := transport.ReadMessage(ctx, c.c, c.c.SetReadDeadline, c.opts.MaxMessageBytes)
	if err != nil {
		return nil, errs.E(errs.KindStream, op, err)
	}
	return b, nil
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.c.Close()
}

func (c *conn) LocalAddr() net.Addr  { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

// ConnectionState exposes the TLS state when the substrate is TLS.
func (c *conn) ConnectionState() (tls.ConnectionState, bool) {
	tc, ok := c.c.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
