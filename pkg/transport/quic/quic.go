// Package quic implements ferry transports over QUIC (github.com/quic-go/quic-go).
//
// Every Transport is one QUIC connection carrying one bidirectional stream.
// The client opens the stream; it becomes visible to the server with the
// client's first bytes, so the client is expected to send first.
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/identity"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// Application error codes used when closing a connection.
const (
	codeOK       quicgo.ApplicationErrorCode = 0
	codeNoStream quicgo.ApplicationErrorCode = 1
)

func quicConfig(o transport.Options) *quicgo.Config {
	return &quicgo.Config{
		HandshakeIdleTimeout: o.HandshakeTimeout,
		MaxIdleTimeout:       o.IdleTimeout,
		KeepAlivePeriod:      o.IdleTimeout / 3,
	}
}

// ---- Client ----

// Client dials one target. The local UDP endpoint is bound on the first
// Connect and shared by every later connection.
type Client struct {
	target string
	policy identity.Policy
	opts   transport.Options

	mu   sync.Mutex
	udp  *net.UDPConn
	tr   *quicgo.Transport
	warn sync.Once
}

// NewClient returns a client for target ("host:port").
func NewClient(target string, policy identity.Policy, opts transport.Options) *Client {
	return &Client{target: target, policy: policy, opts: opts.WithDefaults()}
}

func (c *Client) endpoint() (*quicgo.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr != nil {
		return c.tr, nil
	}
	udp, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	c.udp = udp
	c.tr = &quicgo.Transport{Conn: udp}
	c.opts.Logger.Debug("quic client endpoint bound", zap.String("local", udp.LocalAddr().String()))
	return c.tr, nil
}

// Connect dials a new connection and opens its stream.
func (c *Client) Connect(ctx context.Context) (transport.Transport, error) {
	const op = "quic.connect"
	if c.policy.Insecure() {
		c.warn.Do(func() { identity.LogInsecure(c.opts.Logger, "quic") })
	}
	tlsConf, err := c.policy.ClientTLS(identity.ServerName(c.target))
	if err != nil {
		return nil, errs.E(errs.KindConfig, op, err)
	}
	raddr, err := net.ResolveUDPAddr("udp", c.target)
	if err != nil {
		return nil, errs.E(errs.KindConnect, op, err)
	}
	tr, err := c.endpoint()
	if err != nil {
		return nil, errs.E(errs.KindConnect, op, err)
	}

	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	qc, err := tr.Dial(dctx, raddr, tlsConf, quicConfig(c.opts))
	if err != nil {
		return nil, errs.E(errs.KindConnect, op, err)
	}
	st, err := qc.OpenStreamSync(dctx)
	if err != nil {
		_ = qc.CloseWithError(codeNoStream, "stream open failed")
		return nil, errs.E(errs.KindConnect, op, err)
	}
	c.opts.Logger.Debug("quic connected",
		zap.String("remote", qc.RemoteAddr().String()),
		zap.String("local", qc.LocalAddr().String()))
	return newConn(qc, st, c.opts), nil
}

// Close releases the shared local endpoint. Open transports are torn down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return nil
	}
	err := c.tr.Close()
	_ = c.udp.Close()
	c.tr, c.udp = nil, nil
	return err
}

// ---- Server ----

// Server accepts QUIC connections presenting a self-signed identity.
type Server struct {
	bind string
	id   *identity.Identity
	opts transport.Options

	mu     sync.Mutex
	udp    *net.UDPConn
	tr     *quicgo.Transport
	ln     *quicgo.Listener
	closed bool
}

// NewServer returns a server that will bind to bind ("host:port") on Listen.
func NewServer(bind string, id *identity.Identity, opts transport.Options) *Server {
	return &Server{bind: bind, id: id, opts: opts.WithDefaults()}
}

// Listen binds the endpoint once; later calls are no-ops.
func (s *Server) Listen(ctx context.Context) error {
	const op = "quic.listen"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	}
	if s.ln != nil {
		return nil
	}
	laddr, err := net.ResolveUDPAddr("udp", s.bind)
	if err != nil {
		return errs.E(errs.KindConfig, op, err)
	}
	udp, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return errs.E(errs.KindConnect, op, err)
	}
	tr := &quicgo.Transport{Conn: udp}
	ln, err := tr.Listen(s.id.ServerTLS(), quicConfig(s.opts))
	if err != nil {
		_ = udp.Close()
		return errs.E(errs.KindConnect, op, err)
	}
	s.udp, s.tr, s.ln = udp, tr, ln
	s.opts.Logger.Info("quic listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("fingerprint", s.id.Fingerprint()))
	return nil
}

// Accept waits for a connection to complete its handshake and open its stream.
func (s *Server) Accept(ctx context.Context) (transport.Transport, error) {
	const op = "quic.accept"
	s.mu.Lock()
	ln, closed := s.ln, s.closed
	s.mu.Unlock()
	switch {
	case closed:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	case ln == nil:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrNotListening)
	}

	qc, err := ln.Accept(ctx)
	if err != nil {
		switch {
		case s.isClosed(), errors.Is(err, quicgo.ErrServerClosed):
			return nil, errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
		case ctx.Err() != nil:
			return nil, errs.E(errs.KindConnect, op, err)
		}
		// the listener only fails for good: its endpoint went away under us
		s.opts.Logger.Warn("quic listener stopped", zap.Error(err))
		return nil, errs.E(errs.KindPrecondition, op, fmt.Errorf("%w: %w", transport.ErrServerClosed, err))
	}
	st, err := qc.AcceptStream(ctx)
	if err != nil {
		_ = qc.CloseWithError(codeNoStream, "no stream")
		return nil, errs.E(errs.KindConnect, op, err)
	}
	s.opts.Logger.Debug("quic accepted", zap.String("remote", qc.RemoteAddr().String()))
	return newConn(qc, st, s.opts), nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting and releases the endpoint. Accept fails afterwards.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	_ = s.tr.Close()
	_ = s.udp.Close()
	return err
}

// ---- Transport ----

type conn struct {
	qc   quicgo.Connection
	st   quicgo.Stream
	opts transport.Options

	sent atomic.Bool
	// unread is set by Send and cleared by a completed Receive: the peer may
	// still be reading what we sent last.
	unread    atomic.Bool
	closeOnce sync.Once
	closed    atomic.Bool
}

func newConn(qc quicgo.Connection, st quicgo.Stream, opts transport.Options) *conn {
	return &conn{qc: qc, st: st, opts: opts}
}

func (c *conn) Send(ctx context.Context, data []byte) error {
	const op = "quic.send"
	if c.closed.Load() {
		return errs.E(errs.KindStream, op, transport.ErrClosed)
	}
	if !c.sent.CompareAndSwap(false, true) {
		return errs.E(errs.KindStream, op, transport.ErrAlreadySent)
	}
	if err := transport.WriteMessage(ctx, c.st, c.st.SetWriteDeadline, data); err != nil {
		return errs.E(errs.KindStream, op, err)
	}
	// FIN: the peer's Receive completes once it has read everything
	if err := c.st.Close(); err != nil {
		return errs.E(errs.KindStream, op, err)
	}
	c.unread.Store(true)
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	const op = "quic.receive"
	if c.closed.Load() {
		return nil, errs.E(errs.KindStream, op, transport.ErrClosed)
	}
	b, err := transport.ReadMessage(ctx, c.st, c.st.SetReadDeadline, c.opts.MaxMessageBytes)
	if err != nil {
		if errors.Is(err, transport.ErrMessageTooLarge) {
			c.st.CancelRead(0)
		}
		return nil, errs.E(errs.KindStream, op, err)
	}
	c.unread.Store(false)
	return b, nil
}

// Close waits up to Linger for the peer to finish reading our last message,
// then closes the connection.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.unread.Load() {
			t := time.NewTimer(c.opts.Linger)
			select {
			case <-c.qc.Context().Done():
			case <-t.C:
			}
			t.Stop()
		}
		err = c.qc.CloseWithError(codeOK, "")
	})
	return err
}

func (c *conn) LocalAddr() net.Addr  { return c.qc.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }

// ConnectionState exposes the negotiated TLS state.
func (c *conn) ConnectionState() tls.ConnectionState {
	return c.qc.ConnectionState().TLS
}
