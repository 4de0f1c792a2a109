package stream

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/AriBhuiya/ferry/pkg/identity"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

// NewTCPClient dials plain TCP. There is no peer authentication at all.
func NewTCPClient(target string, opts transport.Options) *Client {
	d := &net.Dialer{}
	return NewClient(transport.KindTCP, func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", target)
	}, opts)
}

// NewTCPServer listens on bind with plain TCP.
func NewTCPServer(bind string, opts transport.Options) *Server {
	return NewServer(transport.KindTCP, func() (net.Listener, error) {
		return net.Listen("tcp", bind)
	}, nil, opts)
}

// NewTLSClient dials TLS 1.3 over TCP, verifying the server per policy.
func NewTLSClient(target string, policy identity.Policy, opts transport.Options) (*Client, error) {
	cfg, err := policy.ClientTLS(identity.ServerName(target))
	if err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	var warn sync.Once
	d := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
	return NewClient(transport.KindTLS, func(ctx context.Context) (net.Conn, error) {
		if policy.Insecure() {
			warn.Do(func() { identity.LogInsecure(opts.Logger, "tls") })
		}
		return d.DialContext(ctx, "tcp", target)
	}, opts), nil
}

// NewTLSServer listens on bind and serves TLS 1.3 with id.
func NewTLSServer(bind string, id *identity.Identity, opts transport.Options) *Server {
	cfg := id.ServerTLS()
	return NewServer(transport.KindTLS, func() (net.Listener, error) {
		return net.Listen("tcp", bind)
	}, func(ctx context.Context, c net.Conn) (net.Conn, error) {
		tc := tls.Server(c, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		return tc, nil
	}, opts)
}
