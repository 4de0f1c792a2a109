// Package hashimdns backs discovery with github.com/hashicorp/mdns.
//
// hashicorp/mdns has no continuous browse and never reports goodbyes, so a
// session is a single query that runs until the session ends or Window
// elapses; only resolved events are produced.
package hashimdns

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/discovery"
)

const (
	// DefaultWindow caps a query when the session context has no deadline.
	DefaultWindow = 30 * time.Second
	entryBuffer   = 32
)

// Source queries with hashicorp/mdns.
type Source struct {
	Window time.Duration
	// IPv4Only skips AAAA traffic, useful on hosts without multicast v6.
	IPv4Only bool
	Logger   *zap.Logger
}

func NewSource() *Source { return &Source{Window: DefaultWindow, Logger: zap.L()} }

func (s *Source) Browse(ctx context.Context, serviceType, domain string) (<-chan discovery.Event, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.L()
	}
	window := s.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if dl, ok := ctx.Deadline(); ok {
		window = min(window, time.Until(dl))
	}

	// mdns drops entries when this buffer is full rather than blocking
	entries := make(chan *mdns.ServiceEntry, entryBuffer)
	params := mdns.DefaultParams(serviceType)
	params.Domain = strings.Trim(domain, ".")
	params.Timeout = window
	params.Entries = entries
	params.DisableIPv6 = s.IPv4Only

	done := make(chan error, 1)
	go func() { done <- mdns.QueryContext(ctx, params) }()

	out := make(chan discovery.Event)
	go func() {
		defer close(out)
		forward := func(e *mdns.ServiceEntry) bool {
			ev, ok := eventFromEntry(e)
			if !ok {
				return true
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case e := <-entries:
				if !forward(e) {
					return
				}
			case err := <-done:
				if err != nil && ctx.Err() == nil {
					logger.Warn("mdns query failed", zap.Error(err))
				}
				// the query is over, nothing else writes to entries
				for {
					select {
					case e := <-entries:
						if !forward(e) {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func eventFromEntry(e *mdns.ServiceEntry) (discovery.Event, bool) {
	if e == nil || e.Name == "" {
		return discovery.Event{}, false
	}
	var ips []net.IP
	if e.AddrV4 != nil {
		ips = append(ips, e.AddrV4)
	}
	if e.AddrV6 != nil {
		ips = append(ips, e.AddrV6)
	}
	return discovery.Event{
		Kind:     discovery.EventResolved,
		Fullname: e.Name,
		Host:     e.Host,
		Port:     uint16(e.Port),
		IPs:      discovery.AddrsFromIPs(ips, ""),
		TXT:      e.InfoFields,
	}, true
}

// Registrar runs an mdns responder per registration. Advertised addresses
// come from LocalIPs.
type Registrar struct {
	// Host overrides the advertised hostname; empty uses os.Hostname.
	Host string
}

func NewRegistrar() *Registrar { return &Registrar{} }

func (r *Registrar) Register(instance, serviceType, domain string, port uint16, txt []string) (discovery.Registration, error) {
	ips, err := LocalIPs()
	if err != nil {
		return nil, err
	}
	svc, err := mdns.NewMDNSService(instance, serviceType, domain, r.Host, int(port), ips, txt)
	if err != nil {
		return nil, err
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, err
	}
	return srv, nil
}
