// Package serve is the announce-and-accept entry point behind `ferry serve`.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/core/netstack"
	"github.com/AriBhuiya/ferry/pkg/discovery"
	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/identity"
	"github.com/AriBhuiya/ferry/pkg/names"
	"github.com/AriBhuiya/ferry/pkg/protocol"
	"github.com/AriBhuiya/ferry/pkg/protocol/codec"
	"github.com/AriBhuiya/ferry/pkg/session"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// Version is advertised in the "ver" attribute.
const Version = "0.1.0"

// Options configures one Run.
type Options struct {
	// Name is the instance name; empty means a generated one.
	Name string
	Host string
	Port uint16
	// Pipe is the pipe name for the winpipe kind.
	Pipe string
	// Dir is the session root directory.
	Dir string
	// Once returns after the first session.
	Once bool

	Kind      transport.Kind
	Transport transport.Options
	Metrics   *transport.Metrics
	// Identity is generated when nil and the kind is encrypted.
	Identity *identity.Identity

	// Announcer publishes the service; nil disables announcement.
	Announcer *discovery.Announcer
	Format    protocol.Format
	Logger    *zap.Logger

	// Ready is called once the server is listening and announced.
	Ready func(Info)
}

// Info describes a running server.
type Info struct {
	Name        string
	Fullname    string
	Addr        net.Addr
	Fingerprint string
}

// Run listens, announces, and serves greetings one connection at a time
// until ctx ends (or after one session with Once). The announcement is
// withdrawn on every exit path.
func Run(ctx context.Context, o Options) error {
	const op = "serve.run"
	log := o.Logger
	if log == nil {
		log = zap.L()
	}
	name := o.Name
	if name == "" {
		name = names.Random()
	}
	dir := o.Dir
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	id := o.Identity
	if id == nil && o.Kind.Encrypted() {
		var err error
		if id, err = identity.Generate(o.Host); err != nil {
			return errs.E(errs.KindConfig, op, err)
		}
	}

	bind := net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
	if o.Kind == transport.KindWinPipe {
		bind = o.Pipe
		if bind == "" {
			bind = `\\.\pipe\ferry-` + name
		}
	}
	topts := o.Transport
	topts.Logger = log
	srv, err := netstack.NewServer(netstack.ServerSpec{
		Kind:     o.Kind,
		Bind:     bind,
		Identity: id,
		Options:  topts,
		Metrics:  o.Metrics,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(ctx); err != nil {
		return err
	}
	defer srv.Close()

	info := Info{Name: name, Addr: srv.Addr()}
	if id != nil {
		info.Fingerprint = id.Fingerprint()
	}

	if o.Announcer != nil {
		ann, err := o.Announcer.Announce(name, boundPort(srv.Addr(), o.Port), announceAttrs(o.Kind, info.Fingerprint))
		if err != nil {
			return err
		}
		defer ann.Close()
		info.Fullname = ann.Fullname()
	}

	log.Info("starting ferry server",
		zap.String("name", name),
		zap.String("addr", addrString(info.Addr)),
		zap.String("dir", dir),
		zap.Stringer("kind", o.Kind))
	if o.Ready != nil {
		o.Ready(info)
	}

	reg, err := codec.NewRegistry()
	if err != nil {
		return errs.E(errs.KindConfig, op, err)
	}
	greeter := session.NewGreeter(name, o.Format, reg)
	greeter.Logger = log

	for {
		tr, err := srv.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrServerClosed) {
				return err
			}
			// a failed handshake only loses that peer
			log.Warn("accept failed", zap.Error(err))
			continue
		}
		served := serveOne(ctx, greeter, tr, dir, log)
		if o.Once && served {
			return nil
		}
	}
}

func serveOne(ctx context.Context, g *session.Greeter, tr transport.Transport, dir string, log *zap.Logger) bool {
	defer tr.Close()
	hello, welcome, err := g.Answer(ctx, tr)
	if err != nil {
		log.Warn("greeting failed", zap.String("remote", addrString(tr.RemoteAddr())), zap.Error(err))
		return false
	}
	log.Info("session started",
		zap.String("peer", hello.Name),
		zap.String("peer_id", hello.ID),
		zap.String("session", welcome.Session),
		zap.String("dir", dir),
		zap.String("remote", addrString(tr.RemoteAddr())))
	return true
}

func announceAttrs(kind transport.Kind, fp string) map[string]string {
	attrs := map[string]string{
		discovery.AttrID:      uuid.NewString(),
		discovery.AttrProto:   kind.String(),
		discovery.AttrVersion: Version,
	}
	if fp != "" {
		attrs[discovery.AttrFingerprint] = fp
	}
	return attrs
}

// boundPort prefers the port actually bound, so port 0 announces the
// ephemeral one.
func boundPort(a net.Addr, fallback uint16) uint16 {
	switch v := a.(type) {
	case *net.TCPAddr:
		return uint16(v.Port)
	case *net.UDPAddr:
		return uint16(v.Port)
	}
	if a != nil {
		if _, p, err := net.SplitHostPort(a.String()); err == nil {
			if n, err := strconv.ParseUint(p, 10, 16); err == nil {
				return uint16(n)
			}
		}
	}
	return fallback
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Describe renders info for humans, e.g. in CLI output.
func (i Info) Describe() string {
	s := fmt.Sprintf("%s on %s", i.Name, addrString(i.Addr))
	if i.Fingerprint != "" {
		s += " (fp " + i.Fingerprint + ")"
	}
	return s
}
