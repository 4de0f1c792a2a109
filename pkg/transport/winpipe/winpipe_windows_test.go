//go:build windows

package winpipe

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/transport"
)

func TestPipeRoundTrip(t *testing.T) {
	opts := transport.Options{Logger: zap.NewNop()}
	pipe := fmt.Sprintf(`\\.\pipe\ferry-test-%d`, os.Getpid())
	srv := NewServer(pipe, opts)
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		tr, err := srv.Accept(ctx)
		if err != nil {
			done <- err
			return
		}
		defer tr.Close()
		msg, err := tr.Receive(ctx)
		if err != nil {
			done <- err
			return
		}
		done <- tr.Send(ctx, append(msg, '!'))
	}()

	tr, err := NewClient(pipe, opts).Connect(ctx)
	require.NoError(t, err)
	defer tr.Close()
	require.NoError(t, tr.Send(ctx, []byte("pipe")))
	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, []byte("pipe!"), got)
}
