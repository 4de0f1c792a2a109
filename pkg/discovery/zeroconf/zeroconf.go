// Package zeroconf backs discovery with github.com/grandcat/zeroconf.
//
// The resolver delivers each instance once per session: it drops goodbye
// (TTL 0) records and repeat observations before they reach its entries
// channel. This backend therefore produces resolved events only; a service
// that leaves, or comes back on another port, is seen by the next session.
package zeroconf

import (
	"context"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/discovery"
)

// entryBuffer absorbs bursts while the browser is between polls.
const entryBuffer = 32

// Source browses with a fresh zeroconf resolver per session.
type Source struct {
	Logger *zap.Logger
}

func NewSource() *Source { return &Source{Logger: zap.L()} }

// Browse starts a browse session that ends when ctx is done.
func (s *Source) Browse(ctx context.Context, serviceType, domain string) (<-chan discovery.Event, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}
	entries := make(chan *zeroconf.ServiceEntry, entryBuffer)
	if err := resolver.Browse(ctx, serviceType, domain, entries); err != nil {
		return nil, err
	}

	out := make(chan discovery.Event)
	go func() {
		defer close(out)
		// the resolver closes entries once ctx is done; keep draining so it
		// never blocks on a send after we stop forwarding
		defer func() {
			for range entries {
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-entries:
				if !ok {
					return
				}
				ev, ok := eventFromEntry(e)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// eventFromEntry maps a zeroconf entry to a resolved event.
func eventFromEntry(e *zeroconf.ServiceEntry) (discovery.Event, bool) {
	if e == nil {
		return discovery.Event{}, false
	}
	return discovery.Event{
		Kind:     discovery.EventResolved,
		Fullname: e.ServiceInstanceName(),
		Host:     e.HostName,
		Port:     uint16(e.Port),
		TXT:      e.Text,
		IPs:      append(discovery.AddrsFromIPs(e.AddrIPv4, ""), discovery.AddrsFromIPs(e.AddrIPv6, "")...),
	}, true
}

// Registrar announces through a zeroconf responder bound to every interface.
type Registrar struct{}

func NewRegistrar() *Registrar { return &Registrar{} }

func (Registrar) Register(instance, serviceType, domain string, port uint16, txt []string) (discovery.Registration, error) {
	// nil interfaces: the responder picks the addresses to advertise
	srv, err := zeroconf.Register(instance, serviceType, domain, int(port), txt, nil)
	if err != nil {
		return nil, err
	}
	return registration{srv}, nil
}

type registration struct{ srv *zeroconf.Server }

// Shutdown sends goodbye packets and stops the responder.
func (r registration) Shutdown() error {
	r.srv.Shutdown()
	return nil
}
