//go:build windows

package netstack

import (
	"github.com/AriBhuiya/ferry/pkg/transport"
	"github.com/AriBhuiya/ferry/pkg/transport/winpipe"
)

func newWinPipeClient(pipe string, opts transport.Options) (transport.Client, error) {
	return winpipe.NewClient(pipe, opts), nil
}

func newWinPipeServer(pipe string, opts transport.Options) (transport.Server, error) {
	return winpipe.NewServer(pipe, opts), nil
}
