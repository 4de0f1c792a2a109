package transport

import (
	"context"
	"io"
	"net"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "transport"

const (
	roleClient = "client"
	roleServer = "server"
)

// Metrics contains metrics exposed by this package.
// All of them are labelled by "kind" and "role".
type Metrics struct {
	// Number of established connections.
	Connections metrics.Counter
	// Number of failed dials and handshakes.
	HandshakeFailures metrics.Counter
	// Payload bytes sent.
	BytesSent metrics.Counter
	// Payload bytes received.
	BytesReceived metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	labels := []string{"kind", "role"}
	return &Metrics{
		Connections: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "connections_total",
			Help:      "Number of established connections.",
		}, labels),
		HandshakeFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "handshake_failures_total",
			Help:      "Number of failed dials and handshakes.",
		}, labels),
		BytesSent: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sent_bytes_total",
			Help:      "Payload bytes sent.",
		}, labels),
		BytesReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "received_bytes_total",
			Help:      "Payload bytes received.",
		}, labels),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Connections:       discard.NewCounter(),
		HandshakeFailures: discard.NewCounter(),
		BytesSent:         discard.NewCounter(),
		BytesReceived:     discard.NewCounter(),
	}
}

// InstrumentClient records connection and byte counters for c.
func InstrumentClient(c Client, kind Kind, m *Metrics) Client {
	if m == nil {
		return c
	}
	return &instrumentedClient{next: c, kind: kind.String(), m: m}
}

// InstrumentServer records connection and byte counters for s.
func InstrumentServer(s Server, kind Kind, m *Metrics) Server {
	if m == nil {
		return s
	}
	return &instrumentedServer{next: s, kind: kind.String(), m: m}
}

type instrumentedClient struct {
	next Client
	kind string
	m    *Metrics
}

func (c *instrumentedClient) Connect(ctx context.Context) (Transport, error) {
	t, err := c.next.Connect(ctx)
	if err != nil {
		c.m.HandshakeFailures.With("kind", c.kind, "role", roleClient).Add(1)
		return nil, err
	}
	c.m.Connections.With("kind", c.kind, "role", roleClient).Add(1)
	return &instrumentedTransport{Transport: t, kind: c.kind, role: roleClient, m: c.m}, nil
}

// Close releases the wrapped client's resources when it holds any.
func (c *instrumentedClient) Close() error {
	if cl, ok := c.next.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

type instrumentedServer struct {
	next Server
	kind string
	m    *Metrics
}

func (s *instrumentedServer) Listen(ctx context.Context) error { return s.next.Listen(ctx) }
func (s *instrumentedServer) Addr() net.Addr                   { return s.next.Addr() }
func (s *instrumentedServer) Close() error                     { return s.next.Close() }

func (s *instrumentedServer) Accept(ctx context.Context) (Transport, error) {
	t, err := s.next.Accept(ctx)
	if err != nil {
		return nil, err
	}
	s.m.Connections.With("kind", s.kind, "role", roleServer).Add(1)
	return &instrumentedTransport{Transport: t, kind: s.kind, role: roleServer, m: s.m}, nil
}

type instrumentedTransport struct {
	Transport
	kind, role string
	m          *Metrics
}

func (t *instrumentedTransport) Send(ctx context.Context, data []byte) error {
	if err := t.Transport.Send(ctx, data); err != nil {
		return err
	}
	t.m.BytesSent.With("kind", t.kind, "role", t.role).Add(float64(len(data)))
	return nil
}

func (t *instrumentedTransport) Receive(ctx context.Context) ([]byte, error) {
	b, err := t.Transport.Receive(ctx)
	if err != nil {
		return nil, err
	}
	t.m.BytesReceived.With("kind", t.kind, "role", t.role).Add(float64(len(b)))
	return b, nil
}
