// Package netstack builds transport clients and servers for a configured
// substrate, and offers caller-side retry around Connect.
package netstack

import (
	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/identity"
	"github.com/AriBhuiya/ferry/pkg/transport"
	tquic "github.com/AriBhuiya/ferry/pkg/transport/quic"
	"github.com/AriBhuiya/ferry/pkg/transport/stream"
)

// ErrUnknownKind is returned for a kind without a substrate.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }

// ServerSpec describes the listening side.
type ServerSpec struct {
	Kind transport.Kind
	// Bind is "host:port", or the pipe name for winpipe.
	Bind string
	// Identity is required for encrypted kinds.
	Identity *identity.Identity
	Options  transport.Options
	Metrics  *transport.Metrics
}

// ClientSpec describes the dialing side.
type ClientSpec struct {
	Kind transport.Kind
	// Target is "host:port", or the pipe name for winpipe.
	Target  string
	Policy  identity.Policy
	Options transport.Options
	Metrics *transport.Metrics
}

// NewServer returns an unbound server for spec.Kind.
func NewServer(spec ServerSpec) (transport.Server, error) {
	const op = "netstack.server"
	if spec.Kind.Encrypted() && spec.Identity == nil {
		return nil, errs.Errorf(errs.KindConfig, op, "%s server needs an identity", spec.Kind)
	}
	var (
		srv transport.Server
		err error
	)
	switch spec.Kind {
	case transport.KindQUIC:
		srv = tquic.NewServer(spec.Bind, spec.Identity, spec.Options)
	case transport.KindTLS:
		srv = stream.NewTLSServer(spec.Bind, spec.Identity, spec.Options)
	case transport.KindTCP:
		srv = stream.NewTCPServer(spec.Bind, spec.Options)
	case transport.KindWinPipe:
		srv, err = newWinPipeServer(spec.Bind, spec.Options)
	default:
		err = ErrUnknownKind(spec.Kind.String())
	}
	if err != nil {
		return nil, errs.E(errs.KindConfig, op, err)
	}
	return transport.InstrumentServer(srv, spec.Kind, spec.Metrics), nil
}

// NewClient returns a client for spec.Kind. The caller owns the client and
// must Close it when it implements io.Closer (quic does).
func NewClient(spec ClientSpec) (transport.Client, error) {
	const op = "netstack.client"
	var (
		c   transport.Client
		err error
	)
	switch spec.Kind {
	case transport.KindQUIC:
		c = tquic.NewClient(spec.Target, spec.Policy, spec.Options)
	case transport.KindTLS:
		c, err = stream.NewTLSClient(spec.Target, spec.Policy, spec.Options)
	case transport.KindTCP:
		c = stream.NewTCPClient(spec.Target, spec.Options)
	case transport.KindWinPipe:
		c, err = newWinPipeClient(spec.Target, spec.Options)
	default:
		err = ErrUnknownKind(spec.Kind.String())
	}
	if err != nil {
		return nil, errs.E(errs.KindConfig, op, err)
	}
	return transport.InstrumentClient(c, spec.Kind, spec.Metrics), nil
}
