package discovery

import (
	"context"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
)

// DefaultPollInterval bounds a single wait for the next backend event.
const DefaultPollInterval = 200 * time.Millisecond

// Browser collects services of one namespace for a bounded time.
type Browser struct {
	Source      Source
	ServiceType string
	Domain      string
	// PollInterval is the per-poll timeout; zero means DefaultPollInterval.
	PollInterval time.Duration
	Logger       *zap.Logger
	Metrics      *Metrics
}

// NewBrowser returns a browser for the default ferry namespace.
func NewBrowser(src Source) *Browser {
	return &Browser{Source: src, ServiceType: ServiceType, Domain: Domain}
}

// withDefaults returns a copy with empty settings filled in. Browse never
// writes to b, so a Browser may be shared between goroutines.
func (b *Browser) withDefaults() *Browser {
	c := *b
	if c.ServiceType == "" {
		c.ServiceType = ServiceType
	}
	if c.Domain == "" {
		c.Domain = Domain
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = zap.L()
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics()
	}
	return &c
}

// Browse runs one browse session for budget and returns every service that
// resolved within it. A service only shows up if at least one resolved event
// for it arrived in time; silence is not an error.
//
// If ctx ends before the budget, the services gathered so far are returned
// together with the context error. The backend session is shut down on every
// return path.
func (b *Browser) Browse(ctx context.Context, budget time.Duration) ([]Service, error) {
	return b.withDefaults().browse(ctx, budget)
}

func (b *Browser) browse(ctx context.Context, budget time.Duration) ([]Service, error) {
	const op = "discovery.browse"

	sessCtx, stop := context.WithCancel(ctx)
	defer stop()

	events, err := b.Source.Browse(sessCtx, b.ServiceType, b.Domain)
	if err != nil {
		return nil, errs.E(errs.KindDiscovery, op, err)
	}
	b.Metrics.BrowseSessions.Add(1)
	b.Logger.Debug("browse started",
		zap.String("service", b.ServiceType),
		zap.String("domain", b.Domain),
		zap.Duration("budget", budget))

	store := NewStore()
	start := time.Now()
	for {
		remaining := budget - time.Since(start)
		if remaining <= 0 {
			break
		}
		ev, ok, err := b.poll(ctx, events, min(b.PollInterval, remaining))
		if err != nil {
			b.Metrics.ServicesFound.Set(float64(store.Len()))
			return store.Snapshot(), errs.E(errs.KindDiscovery, op, err)
		}
		if ok {
			b.apply(store, ev)
		}
	}

	b.Metrics.ServicesFound.Set(float64(store.Len()))
	b.Logger.Debug("browse finished", zap.Int("services", store.Len()))
	return store.Snapshot(), nil
}

// poll waits up to wait for the next event. ok is false on a per-poll
// timeout, and also once the backend has closed its channel.
func (b *Browser) poll(ctx context.Context, events <-chan Event, wait time.Duration) (Event, bool, error) {
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	case ev, ok := <-events:
		if !ok {
			// backend finished early; wait out the poll so the loop doesn't spin
			select {
			case <-ctx.Done():
				return Event{}, false, ctx.Err()
			case <-t.C:
			}
			return Event{}, false, nil
		}
		return ev, true, nil
	case <-t.C:
		return Event{}, false, nil
	}
}

func (b *Browser) apply(store *Store, ev Event) {
	switch ev.Kind {
	case EventResolved:
		svc := b.decode(ev)
		store.Upsert(svc)
		b.Metrics.EventsResolved.Add(1)
		b.Logger.Debug("service resolved",
			zap.String("fullname", svc.Fullname),
			zap.String("host", svc.Host),
			zap.Uint16("port", svc.Port),
			zap.Int("addrs", len(svc.Addrs)))
	case EventRemoved:
		store.Remove(ev.Fullname)
		b.Metrics.EventsRemoved.Add(1)
		b.Logger.Debug("service removed", zap.String("fullname", ev.Fullname))
	}
}

func (b *Browser) decode(ev Event) Service {
	svc := Service{
		Instance:   InstanceFromFullname(ev.Fullname, b.ServiceType, b.Domain),
		Fullname:   ev.Fullname,
		Host:       ev.Host,
		Port:       ev.Port,
		Attributes: ParseTXT(ev.TXT),
	}
	for _, ip := range ev.IPs {
		if !ip.IsValid() {
			continue
		}
		svc.Addrs = append(svc.Addrs, netip.AddrPortFrom(ip.Unmap(), ev.Port))
	}
	return svc
}
