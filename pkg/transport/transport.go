package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind identifies the transport substrate.
type Kind int

const (
	KindUnknown Kind = iota
	KindQUIC
	KindTLS
	KindTCP
	KindWinPipe
	// KindMem is in-process only and not selectable from configuration.
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindQUIC:
		return "quic"
	case KindTLS:
		return "tls"
	case KindTCP:
		return "tcp"
	case KindMem:
		return "mem"
	case KindWinPipe:
		return "winpipe"
	default:
		return "unknown"
	}
}

// Encrypted reports whether the substrate authenticates with a certificate.
func (k Kind) Encrypted() bool { return k == KindQUIC || k == KindTLS }

// ParseKind maps a configuration value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quic", "":
		return KindQUIC, nil
	case "tls":
		return KindTLS, nil
	case "tcp":
		return KindTCP, nil
	case "winpipe", "pipe":
		return KindWinPipe, nil
	}
	return KindUnknown, fmt.Errorf("unknown transport kind %q", s)
}

var (
	// ErrNotListening is returned by Accept before Listen.
	ErrNotListening = errors.New("server is not listening")
	// ErrServerClosed is returned by Accept after Close.
	ErrServerClosed = errors.New("server closed")
	// ErrClosed is returned by operations on a closed Transport.
	ErrClosed = errors.New("transport closed")
	// ErrAlreadySent is returned by a second Send; the send side is half-closed.
	ErrAlreadySent = errors.New("message already sent on this transport")
	// ErrMessageTooLarge is returned by Receive when the peer exceeds the limit.
	ErrMessageTooLarge = errors.New("message exceeds size limit")
)

// DefaultMaxMessageBytes bounds a single received message.
const DefaultMaxMessageBytes = 16 << 20

// Transport is one established connection with one bidirectional stream.
// A Transport is owned by a single goroutine.
type Transport interface {
	// Send writes data and half-closes the send direction.
	Send(ctx context.Context, data []byte) error
	// Receive blocks until the peer half-closes, then returns everything it sent.
	Receive(ctx context.Context) ([]byte, error)
	// Close tears the connection down; the handle is unusable afterwards.
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Client establishes outbound transports to one target.
type Client interface {
	// Connect opens a new connection and completes the substrate handshake.
	Connect(ctx context.Context) (Transport, error)
}

// Server accepts inbound transports.
type Server interface {
	// Listen binds the endpoint. Calling it again while listening is a no-op.
	Listen(ctx context.Context) error
	// Accept waits for the next inbound connection to finish its handshake.
	Accept(ctx context.Context) (Transport, error)
	// Addr is the bound address, nil before Listen.
	Addr() net.Addr
	Close() error
}
