// Package session runs the greeting exchanged on a fresh transport: the
// client sends one hello frame, the server answers with one welcome (or
// reject) frame.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/protocol"
	"github.com/AriBhuiya/ferry/pkg/protocol/codec"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// ProtocolVersion is the greeting version this build speaks.
const ProtocolVersion = 1

// DefaultMaxSkew bounds the clock difference accepted in a hello.
const DefaultMaxSkew = 5 * time.Minute

var (
	ErrRejected       = errors.New("session rejected by peer")
	ErrUnexpectedType = errors.New("unexpected frame type")
)

// Hello is sent by the connecting side.
type Hello struct {
	Version   int    `json:"ver" cbor:"ver"`
	Name      string `json:"name" cbor:"name"`
	ID        string `json:"id" cbor:"id"`
	Timestamp int64  `json:"ts_unix_ms" cbor:"ts_unix_ms"`
}

// Welcome is the server's acceptance.
type Welcome struct {
	Version int    `json:"ver" cbor:"ver"`
	Name    string `json:"name" cbor:"name"`
	ID      string `json:"id" cbor:"id"`
	Session string `json:"session" cbor:"session"`
}

// Reject carries the reason a hello was refused.
type Reject struct {
	Reason string `json:"reason" cbor:"reason"`
}

// Greeter holds the local side of the exchange.
type Greeter struct {
	Name     string
	ID       string
	Format   protocol.Format
	Registry *codec.Registry
	MaxSkew  time.Duration
	Logger   *zap.Logger

	now func() time.Time
}

// NewGreeter returns a greeter for name with a fresh random id.
func NewGreeter(name string, format protocol.Format, reg *codec.Registry) *Greeter {
	return &Greeter{
		Name:     name,
		ID:       uuid.NewString(),
		Format:   format,
		Registry: reg,
		MaxSkew:  DefaultMaxSkew,
		Logger:   zap.L(),
	}
}

func (g *Greeter) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

func (g *Greeter) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.L()
	}
	return g.Logger
}

// Dial sends hello over tr and waits for the reply.
func (g *Greeter) Dial(ctx context.Context, tr transport.Transport) (Welcome, error) {
	const op = "session.dial"
	hello := Hello{
		Version:   ProtocolVersion,
		Name:      g.Name,
		ID:        g.ID,
		Timestamp: g.clock().UnixMilli(),
	}
	if err := g.send(ctx, tr, protocol.MsgHello, g.Format, hello); err != nil {
		return Welcome{}, errs.E(errs.KindStream, op, err)
	}
	fr, err := g.receive(ctx, tr)
	if err != nil {
		return Welcome{}, errs.E(errs.KindStream, op, err)
	}
	switch fr.Header.Type {
	case protocol.MsgWelcome:
		var w Welcome
		if err := fr.Decode(&w, g.Registry); err != nil {
			return Welcome{}, errs.E(errs.KindStream, op, fmt.Errorf("decode welcome: %w", err))
		}
		return w, nil
	case protocol.MsgReject:
		var r Reject
		_ = fr.Decode(&r, g.Registry)
		return Welcome{}, errs.E(errs.KindConnect, op, fmt.Errorf("%w: %s", ErrRejected, r.Reason))
	default:
		return Welcome{}, errs.E(errs.KindStream, op, fmt.Errorf("%w %d", ErrUnexpectedType, fr.Header.Type))
	}
}

// Answer reads the peer's hello and replies in the same format: a welcome
// with a fresh session id, or a reject when the hello is invalid.
func (g *Greeter) Answer(ctx context.Context, tr transport.Transport) (Hello, Welcome, error) {
	const op = "session.answer"
	fr, err := g.receive(ctx, tr)
	if err != nil {
		return Hello{}, Welcome{}, errs.E(errs.KindStream, op, err)
	}
	if fr.Header.Type != protocol.MsgHello {
		return Hello{}, Welcome{}, errs.E(errs.KindStream, op, fmt.Errorf("%w %d", ErrUnexpectedType, fr.Header.Type))
	}
	var h Hello
	if err := fr.Decode(&h, g.Registry); err != nil {
		return Hello{}, Welcome{}, errs.E(errs.KindStream, op, fmt.Errorf("decode hello: %w", err))
	}
	if err := g.verify(h); err != nil {
		g.logger().Warn("rejecting hello", zap.String("peer", h.Name), zap.Error(err))
		if serr := g.send(ctx, tr, protocol.MsgReject, fr.Header.Format, Reject{Reason: err.Error()}); serr != nil {
			g.logger().Debug("send reject failed", zap.Error(serr))
		}
		return h, Welcome{}, errs.E(errs.KindConnect, op, err)
	}
	w := Welcome{
		Version: ProtocolVersion,
		Name:    g.Name,
		ID:      g.ID,
		Session: uuid.NewString(),
	}
	if err := g.send(ctx, tr, protocol.MsgWelcome, fr.Header.Format, w); err != nil {
		return h, Welcome{}, errs.E(errs.KindStream, op, err)
	}
	return h, w, nil
}

// verify checks version and freshness of a hello.
func (g *Greeter) verify(h Hello) error {
	if h.Version != ProtocolVersion {
		return fmt.Errorf("unsupported version %d", h.Version)
	}
	if strings.TrimSpace(h.Name) == "" {
		return errors.New("empty peer name")
	}
	maxSkew := g.MaxSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	dt := g.clock().Sub(time.UnixMilli(h.Timestamp))
	if dt > maxSkew || dt < -maxSkew {
		return fmt.Errorf("hello timestamp skewed by %s", dt.Round(time.Second))
	}
	return nil
}

func (g *Greeter) send(ctx context.Context, tr transport.Transport, typ uint8, f protocol.Format, v any) error {
	fr, err := protocol.NewFrame(typ, f, v, g.Registry)
	if err != nil {
		return err
	}
	b, err := fr.MarshalBinary()
	if err != nil {
		return err
	}
	return tr.Send(ctx, b)
}

func (g *Greeter) receive(ctx context.Context, tr transport.Transport) (protocol.Frame, error) {
	var fr protocol.Frame
	b, err := tr.Receive(ctx)
	if err != nil {
		return fr, err
	}
	if err := fr.UnmarshalBinary(b); err != nil {
		return fr, err
	}
	return fr, nil
}
