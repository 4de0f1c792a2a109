//go:build windows

// Package winpipe carries ferry transports over Windows named pipes in
// message mode, whose connections support CloseWrite.
package winpipe

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"

	"github.com/AriBhuiya/ferry/pkg/transport"
	"github.com/AriBhuiya/ferry/pkg/transport/stream"
)

// NewClient dials the pipe, e.g. `\\.\pipe\ferry`.
func NewClient(pipe string, opts transport.Options) *stream.Client {
	return stream.NewClient(transport.KindWinPipe, func(ctx context.Context) (net.Conn, error) {
		return winio.DialPipeContext(ctx, pipe)
	}, opts)
}

// NewServer listens on pipe in message mode.
func NewServer(pipe string, opts transport.Options) *stream.Server {
	return stream.NewServer(transport.KindWinPipe, func() (net.Listener, error) {
		return winio.ListenPipe(pipe, &winio.PipeConfig{MessageMode: true})
	}, nil, opts)
}
