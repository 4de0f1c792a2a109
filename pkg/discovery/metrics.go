package discovery

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "discovery"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of browse sessions opened.
	BrowseSessions metrics.Counter
	// Number of resolved events folded into a store.
	EventsResolved metrics.Counter
	// Number of removed events applied to a store.
	EventsRemoved metrics.Counter
	// Services known at the end of the last browse.
	ServicesFound metrics.Gauge
	// Announcements currently registered by this process.
	Announcements metrics.Gauge
	// Number of failed registrations.
	AnnounceFailures metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		BrowseSessions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "browse_sessions_total",
			Help:      "Number of browse sessions opened.",
		}, []string{}),
		EventsResolved: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "events_resolved_total",
			Help:      "Number of resolved discovery events.",
		}, []string{}),
		EventsRemoved: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "events_removed_total",
			Help:      "Number of removed discovery events.",
		}, []string{}),
		ServicesFound: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "services_found",
			Help:      "Services known at the end of the last browse.",
		}, []string{}),
		Announcements: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "announcements",
			Help:      "Announcements currently registered.",
		}, []string{}),
		AnnounceFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "announce_failures_total",
			Help:      "Number of failed registrations.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BrowseSessions:   discard.NewCounter(),
		EventsResolved:   discard.NewCounter(),
		EventsRemoved:    discard.NewCounter(),
		ServicesFound:    discard.NewGauge(),
		Announcements:    discard.NewGauge(),
		AnnounceFailures: discard.NewCounter(),
	}
}
