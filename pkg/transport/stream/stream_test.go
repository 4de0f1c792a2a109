package stream

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
	"github.com/AriBhuiya/ferry/pkg/identity"
	"github.com/AriBhuiya/ferry/pkg/transport"
)

func testOpts() transport.Options {
	return transport.Options{HandshakeTimeout: 2 * time.Second, Logger: zap.NewNop()}
}

// serveOnce accepts one connection and answers with prefix+payload.
func serveOnce(ctx context.Context, srv transport.Server, prefix string) <-chan error {
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
		done <- tr.Send(ctx, append([]byte(prefix), msg...))
	}()
	return done
}

func roundTrip(t *testing.T, srv transport.Server, client transport.Client, payload []byte) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := serveOnce(ctx, srv, "re:")

	tr, err := client.Connect(ctx)
	require.NoError(t, err)
	defer tr.Close()
	require.NoError(t, tr.Send(ctx, payload))
	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)
	return got
}

func TestTCPRoundTrip(t *testing.T) {
	defer leaktest.Check(t)()

	srv := NewTCPServer("127.0.0.1:0", testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()

	payload := bytes.Repeat([]byte{0, 1, 2, 0xff}, 1<<16)
	got := roundTrip(t, srv, NewTCPClient(srv.Addr().String(), testOpts()), payload)
	assert.Equal(t, append([]byte("re:"), payload...), got)
}

func TestTCPEmptyMessage(t *testing.T) {
	defer leaktest.Check(t)()

	srv := NewTCPServer("127.0.0.1:0", testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()

	got := roundTrip(t, srv, NewTCPClient(srv.Addr().String(), testOpts()), nil)
	assert.Equal(t, []byte("re:"), got)
}

func TestTLSRoundTripWithPinning(t *testing.T) {
	defer leaktest.Check(t)()

	id, err := identity.Generate()
	require.NoError(t, err)
	srv := NewTLSServer("127.0.0.1:0", id, testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()

	client, err := NewTLSClient(srv.Addr().String(), identity.Policy{}.Pin(id.Fingerprint()), testOpts())
	require.NoError(t, err)
	got := roundTrip(t, srv, client, []byte("hello"))
	assert.Equal(t, []byte("re:hello"), got)
}

func TestTLSFingerprintMismatch(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)
	other, err := identity.Generate()
	require.NoError(t, err)

	srv := NewTLSServer("127.0.0.1:0", id, testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	acceptErr := make(chan error, 1)
	go func() {
		_, err := srv.Accept(ctx)
		acceptErr <- err
	}()

	client, err := NewTLSClient(srv.Addr().String(), identity.Policy{}.Pin(other.Fingerprint()), testOpts())
	require.NoError(t, err)
	_, err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConnect))
	assert.ErrorIs(t, err, identity.ErrFingerprintMismatch)

	err = <-acceptErr
	assert.True(t, errs.Is(err, errs.KindConnect), "server sees a failed handshake: %v", err)
}

func TestTLSClientRequiresFingerprint(t *testing.T) {
	_, err := NewTLSClient("127.0.0.1:1", identity.Policy{Mode: identity.VerifyFingerprint}, testOpts())
	assert.ErrorIs(t, err, identity.ErrNoFingerprint)
}

func TestAcceptPreconditions(t *testing.T) {
	defer leaktest.Check(t)()

	srv := NewTCPServer("127.0.0.1:0", testOpts())
	_, err := srv.Accept(context.Background())
	assert.True(t, errs.Is(err, errs.KindPrecondition))
	assert.ErrorIs(t, err, transport.ErrNotListening)

	require.NoError(t, srv.Listen(context.Background()))
	require.NoError(t, srv.Listen(context.Background()), "listen is idempotent")
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	_, err = srv.Accept(context.Background())
	assert.ErrorIs(t, err, transport.ErrServerClosed)
}

func TestCloseUnblocksAccept(t *testing.T) {
	defer leaktest.Check(t)()

	srv := NewTCPServer("127.0.0.1:0", testOpts())
	require.NoError(t, srv.Listen(context.Background()))

	errc := make(chan error, 1)
	go func() {
		_, err := srv.Accept(context.Background())
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, <-errc, transport.ErrServerClosed)
}

// brokenListener fails every Accept, like a listener that ran out of file
// descriptors or whose pipe went away.
type brokenListener struct{ err error }

func (l brokenListener) Accept() (net.Conn, error) { return nil, l.err }
func (l brokenListener) Close() error              { return nil }
func (l brokenListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
}

func TestAcceptFailsWhenListenerDies(t *testing.T) {
	defer leaktest.Check(t)()

	cause := errors.New("too many open files")
	srv := NewServer(transport.KindTCP, func() (net.Listener, error) {
		return brokenListener{err: cause}, nil
	}, nil, testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	_, err := srv.Accept(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, transport.ErrServerClosed)
	assert.ErrorIs(t, err, cause)
	assert.True(t, errs.Is(err, errs.KindPrecondition))

	// stays failed
	_, err = srv.Accept(ctx)
	assert.ErrorIs(t, err, transport.ErrServerClosed)
}

func TestReceiveHonoursContext(t *testing.T) {
	defer leaktest.Check(t)()

	srv := NewTCPServer("127.0.0.1:0", testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accepted := make(chan transport.Transport, 1)
	go func() {
		tr, err := srv.Accept(ctx)
		if err == nil {
			accepted <- tr
		}
		close(accepted)
	}()

	tr, err := NewTCPClient(srv.Addr().String(), testOpts()).Connect(ctx)
	require.NoError(t, err)
	defer tr.Close()
	peer, ok := <-accepted
	require.True(t, ok)
	defer peer.Close()

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	_, err = tr.Receive(short)
	assert.True(t, errs.Is(err, errs.KindStream))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendAfterCloseFails(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	// net.Pipe cannot half-close
	_, err := newConn(a, testOpts())
	assert.Error(t, err)

	srv := NewTCPServer("127.0.0.1:0", testOpts())
	require.NoError(t, srv.Listen(context.Background()))
	defer srv.Close()
	tr, err := NewTCPClient(srv.Addr().String(), testOpts()).Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	err = tr.Send(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewTCPClient(addr, testOpts()).Connect(context.Background())
	assert.True(t, errs.Is(err, errs.KindConnect))
}
