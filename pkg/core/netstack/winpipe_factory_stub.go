//go:build !windows

package netstack

import (
	"fmt"

	"github.com/AriBhuiya/ferry/pkg/transport"
)

var errWinPipeUnsupported = fmt.Errorf("winpipe transport is not supported on this platform")

func newWinPipeClient(string, transport.Options) (transport.Client, error) {
	return nil, errWinPipeUnsupported
}

func newWinPipeServer(string, transport.Options) (transport.Server, error) {
	return nil, errWinPipeUnsupported
}
