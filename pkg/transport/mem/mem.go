// Package mem is an in-process transport: servers register a name on a Hub
// and clients connect to it without touching the network. Each direction
// carries one message, like the network substrates.
package mem

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

var (
	ErrAddrInUse  = errors.New("mem: name already has a listener")
	ErrNoListener = errors.New("mem: no such listener")
)

// Hub is a namespace of in-process listeners.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]*Server
}

func NewHub() *Hub { return &Hub{listeners: make(map[string]*Server)} }

// NewServer returns an unbound server for name.
func (h *Hub) NewServer(name string, opts transport.Options) *Server {
	return &Server{
		hub:     h,
		name:    name,
		opts:    opts.WithDefaults(),
		newCh:   make(chan *conn, 8),
		closeCh: make(chan struct{}),
	}
}

// NewClient returns a client for the listener registered as name.
func (h *Hub) NewClient(name string, opts transport.Options) *Client {
	return &Client{hub: h, name: name, opts: opts.WithDefaults()}
}

func (h *Hub) lookup(name string) *Server {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listeners[name]
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// ---- Client ----

type Client struct {
	hub  *Hub
	name string
	opts transport.Options
	seq  atomic.Uint64
}

func (c *Client) Connect(ctx context.Context) (transport.Transport, error) {
	const op = "mem.connect"
	srv := c.hub.lookup(c.name)
	if srv == nil {
		return nil, errs.E(errs.KindConnect, op, ErrNoListener)
	}
	local := memAddr(fmt.Sprintf("%s#client-%d", c.name, c.seq.Add(1)))
	cli, peer := newPair(local, memAddr(c.name), c.opts, srv.opts)
	select {
	case srv.newCh <- peer:
	case <-srv.closeCh:
		return nil, errs.E(errs.KindConnect, op, ErrNoListener)
	case <-ctx.Done():
		return nil, errs.E(errs.KindConnect, op, ctx.Err())
	}
	c.opts.Logger.Debug("connected", zap.String("kind", "mem"), zap.String("remote", c.name))
	return cli, nil
}

// ---- Server ----

type Server struct {
	hub  *Hub
	name string
	opts transport.Options

	mu        sync.Mutex
	listening bool
	closed    bool
	newCh     chan *conn
	closeCh   chan struct{}
}

// Listen registers the name on the hub; later calls are no-ops.
func (s *Server) Listen(context.Context) error {
	const op = "mem.listen"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	}
	if s.listening {
		return nil
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, taken := s.hub.listeners[s.name]; taken {
		return errs.E(errs.KindConnect, op, ErrAddrInUse)
	}
	s.hub.listeners[s.name] = s
	s.listening = true
	return nil
}

func (s *Server) Accept(ctx context.Context) (transport.Transport, error) {
	const op = "mem.accept"
	s.mu.Lock()
	listening, closed := s.listening, s.closed
	s.mu.Unlock()
	switch {
	case closed:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	case !listening:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrNotListening)
	}
	select {
	case <-ctx.Done():
		return nil, errs.E(errs.KindConnect, op, ctx.Err())
	case <-s.closeCh:
		return nil, errs.E(errs.KindPrecondition, op, transport.ErrServerClosed)
	case c := <-s.newCh:
		return c, nil
	}
}

// Addr is nil until Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening {
		return nil
	}
	return memAddr(s.name)
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closeCh)
	if s.listening {
		s.hub.mu.Lock()
		if s.hub.listeners[s.name] == s {
			delete(s.hub.listeners, s.name)
		}
		s.hub.mu.Unlock()
	}
	for {
		select {
		case c := <-s.newCh:
			_ = c.Close()
		default:
			return nil
		}
	}
}

// ---- Transport ----

// half is one direction: at most one message, then end of stream.
type half struct {
	msg  chan []byte
	eof  chan struct{}
	once sync.Once
}

func newHalf() *half { return &half{msg: make(chan []byte, 1), eof: make(chan struct{})} }

func (h *half) finish() { h.once.Do(func() { close(h.eof) }) }

type conn struct {
	in, out       *half
	local, remote memAddr
	opts          transport.Options

	sent   atomic.Bool
	closed atomic.Bool
}

func newPair(clientAddr, serverAddr memAddr, clientOpts, serverOpts transport.Options) (*conn, *conn) {
	up, down := newHalf(), newHalf()
	cli := &conn{in: down, out: up, local: clientAddr, remote: serverAddr, opts: clientOpts}
	srv := &conn{in: up, out: down, local: serverAddr, remote: clientAddr, opts: serverOpts}
	return cli, srv
}

func (c *conn) Send(ctx context.Context, data []byte) error {
	const op = "mem.send"
	if c.closed.Load() {
		return errs.E(errs.KindStream, op, transport.ErrClosed)
	}
	if !c.sent.CompareAndSwap(false, true) {
		return errs.E(errs.KindStream, op, transport.ErrAlreadySent)
	}
	if err := ctx.Err(); err != nil {
		return errs.E(errs.KindStream, op, err)
	}
	c.out.msg <- append([]byte{}, data...)
	c.out.finish()
	return nil
}

// Receive returns the peer's message, or an empty one when the peer closed
// without sending.
func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	const op = "mem.receive"
	if c.closed.Load() {
		return nil, errs.E(errs.KindStream, op, transport.ErrClosed)
	}
	var b []byte
	select {
	case <-ctx.Done():
		return nil, errs.E(errs.KindStream, op, ctx.Err())
	case b = <-c.in.msg:
	case <-c.in.eof:
		select {
		case b = <-c.in.msg:
		default:
			b = []byte{}
		}
	}
	if int64(len(b)) > c.opts.MaxMessageBytes {
		return nil, errs.E(errs.KindStream, op, transport.ErrMessageTooLarge)
	}
	return b, nil
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.out.finish()
	return nil
}

func (c *conn) LocalAddr() net.Addr  { return c.local }
func (c *conn) RemoteAddr() net.Addr { return c.remote }
