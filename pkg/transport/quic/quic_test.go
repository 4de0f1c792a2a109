package quic

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/identity"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

func testOpts() transport.Options {
	return transport.Options{
		HandshakeTimeout: 2 * time.Second,
		Linger:           500 * time.Millisecond,
		Logger:           zap.NewNop(),
	}
}

func startServer(t *testing.T) (*Server, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	srv := NewServer("127.0.0.1:0", id, testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })
	return srv, id
}

// echo accepts one connection and answers with the reversed payload.
func echo(ctx context.Context, srv *Server) <-chan error {
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
		out := make([]byte, len(msg))
		for i := range msg {
			out[len(msg)-1-i] = msg[i]
		}
		done <- tr.Send(ctx, out)
	}()
	return done
}

func TestRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := startServer(t)
	done := echo(ctx, srv)

	payload := make([]byte, 256<<10)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	client := NewClient(srv.Addr().String(), identity.Policy{}, testOpts())
	defer client.Close()
	tr, err := client.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Send(ctx, payload))
	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, <-done)

	require.Len(t, got, len(payload))
	for i := range payload {
		if got[len(got)-1-i] != payload[i] {
			t.Fatalf("byte %d differs", i)
		}
	}
}

func TestClientReusesEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := startServer(t)
	client := NewClient(srv.Addr().String(), identity.Policy{}, testOpts())
	defer client.Close()

	var locals []string
	for i := 0; i < 2; i++ {
		done := echo(ctx, srv)
		tr, err := client.Connect(ctx)
		require.NoError(t, err)
		require.NoError(t, tr.Send(ctx, []byte("hi")))
		got, err := tr.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("ih"), got)
		locals = append(locals, tr.LocalAddr().String())
		require.NoError(t, tr.Close())
		require.NoError(t, <-done)
	}
	assert.Equal(t, locals[0], locals[1])
}

func TestFingerprintPinning(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, id := startServer(t)

	t.Run("match", func(t *testing.T) {
		done := echo(ctx, srv)
		client := NewClient(srv.Addr().String(), identity.Policy{}.Pin(id.Fingerprint()), testOpts())
		defer client.Close()
		tr, err := client.Connect(ctx)
		require.NoError(t, err)
		require.NoError(t, tr.Send(ctx, []byte("ok")))
		_, err = tr.Receive(ctx)
		require.NoError(t, err)
		require.NoError(t, tr.Close())
		require.NoError(t, <-done)
	})

	t.Run("mismatch", func(t *testing.T) {
		other, err := identity.Generate()
		require.NoError(t, err)
		client := NewClient(srv.Addr().String(), identity.Policy{}.Pin(other.Fingerprint()), testOpts())
		defer client.Close()
		_, err = client.Connect(ctx)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.KindConnect), "got %v", err)
	})
}

func TestSecondSendFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := startServer(t)
	done := echo(ctx, srv)

	client := NewClient(srv.Addr().String(), identity.Policy{}, testOpts())
	defer client.Close()
	tr, err := client.Connect(ctx)
	require.NoError(t, err)
	defer tr.Close()
	require.NoError(t, tr.Send(ctx, []byte("one")))
	err = tr.Send(ctx, []byte("two"))
	assert.True(t, errs.Is(err, errs.KindStream))
	assert.ErrorIs(t, err, transport.ErrAlreadySent)
	_, err = tr.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestReceiveLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := identity.Generate()
	require.NoError(t, err)
	opts := testOpts()
	opts.MaxMessageBytes = 8
	srv := NewServer("127.0.0.1:0", id, opts)
	require.NoError(t, srv.Listen(ctx))
	defer srv.Close()

	errc := make(chan error, 1)
	go func() {
		tr, err := srv.Accept(ctx)
		if err != nil {
			errc <- err
			return
		}
		defer tr.Close()
		_, err = tr.Receive(ctx)
		errc <- err
	}()

	client := NewClient(srv.Addr().String(), identity.Policy{}, testOpts())
	defer client.Close()
	tr, err := client.Connect(ctx)
	require.NoError(t, err)
	defer tr.Close()
	_ = tr.Send(ctx, bytes.Repeat([]byte("x"), 64))

	err = <-errc
	assert.True(t, errs.Is(err, errs.KindStream))
	assert.ErrorIs(t, err, transport.ErrMessageTooLarge)
}

func TestAcceptBeforeListen(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)
	srv := NewServer("127.0.0.1:0", id, testOpts())

	_, err = srv.Accept(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindPrecondition))
	assert.ErrorIs(t, err, transport.ErrNotListening)
	assert.Nil(t, srv.Addr())
}

func TestListenIsIdempotent(t *testing.T) {
	srv, _ := startServer(t)
	addr := srv.Addr().String()
	require.NoError(t, srv.Listen(context.Background()))
	assert.Equal(t, addr, srv.Addr().String())
}

func TestAcceptAfterClose(t *testing.T) {
	srv, _ := startServer(t)
	require.NoError(t, srv.Close())

	_, err := srv.Accept(context.Background())
	assert.True(t, errs.Is(err, errs.KindPrecondition))
	assert.ErrorIs(t, err, transport.ErrServerClosed)

	err = srv.Listen(context.Background())
	assert.ErrorIs(t, err, transport.ErrServerClosed)
}

func TestCloseUnblocksAccept(t *testing.T) {
	srv, _ := startServer(t)
	errc := make(chan error, 1)
	go func() {
		_, err := srv.Accept(context.Background())
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, transport.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not return after close")
	}
}

func TestAcceptFailsWhenEndpointDies(t *testing.T) {
	srv, _ := startServer(t)
	// the endpoint goes away without Server.Close
	require.NoError(t, srv.tr.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		_, err := srv.Accept(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, transport.ErrServerClosed)
		assert.True(t, errs.Is(err, errs.KindPrecondition), "attempt %d: %v", i, err)
	}
	assert.NoError(t, ctx.Err())
}

func TestAcceptHonoursContext(t *testing.T) {
	srv, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := srv.Accept(ctx)
	assert.True(t, errs.Is(err, errs.KindConnect))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
