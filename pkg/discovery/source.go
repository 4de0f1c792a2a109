package discovery

import (
	"context"
	"net/netip"
)

// EventKind classifies a backend discovery event.
type EventKind int

const (
	EventOther EventKind = iota
	EventResolved
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventResolved:
		return "resolved"
	case EventRemoved:
		return "removed"
	default:
		return "other"
	}
}

// Event is one raw observation from a backend. Only Fullname is meaningful
// for EventRemoved.
type Event struct {
	Kind     EventKind
	Fullname string
	Host     string
	Port     uint16
	IPs      []netip.Addr
	TXT      []string
}

// Source is a discovery backend able to run a browse session. The session
// lives until ctx is done; the backend must then stop sending and release
// its sockets. The returned channel may be closed early when the backend has
// nothing more to report.
type Source interface {
	Browse(ctx context.Context, serviceType, domain string) (<-chan Event, error)
}

// Registration is a live registration held by a backend.
type Registration interface {
	Shutdown() error
}

// Registrar publishes a discovery record on the local network. The backend
// chooses which interface addresses to advertise.
type Registrar interface {
	Register(instance, serviceType, domain string, port uint16, txt []string) (Registration, error)
}
