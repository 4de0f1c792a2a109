package discovery

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/AriBhuiya/ferry/pkg/errs"
)

const (
	maxInstanceLen = 63
	maxTXTEntryLen = 255
)

// Announcer publishes the local endpoint through a Registrar.
type Announcer struct {
	Registrar   Registrar
	ServiceType string
	Domain      string
	Logger      *zap.Logger
	Metrics     *Metrics
}

// NewAnnouncer returns an announcer for the default ferry namespace.
func NewAnnouncer(r Registrar) *Announcer {
	return &Announcer{Registrar: r, ServiceType: ServiceType, Domain: Domain}
}

// Announce registers name on port with attrs. The port is always added as
// the "port" attribute. The returned Announcement must be closed to withdraw
// the record.
func (a *Announcer) Announce(name string, port uint16, attrs map[string]string) (*Announcement, error) {
	const op = "discovery.announce"
	serviceType, domain := a.ServiceType, a.Domain
	if serviceType == "" {
		serviceType = ServiceType
	}
	if domain == "" {
		domain = Domain
	}
	logger := a.Logger
	if logger == nil {
		logger = zap.L()
	}
	m := a.Metrics
	if m == nil {
		m = NopMetrics()
	}

	name = strings.TrimSpace(name)
	if err := validateInstance(name); err != nil {
		return nil, errs.E(errs.KindConfig, op, err)
	}
	all := maps.Clone(attrs)
	if all == nil {
		all = make(map[string]string, 1)
	}
	all[AttrPort] = strconv.Itoa(int(port))
	if err := validateAttributes(all); err != nil {
		return nil, errs.E(errs.KindConfig, op, err)
	}

	reg, err := a.Registrar.Register(name, serviceType, domain, port, FormatTXT(all))
	if err != nil {
		m.AnnounceFailures.Add(1)
		return nil, errs.E(errs.KindDiscovery, op, err)
	}
	m.Announcements.Add(1)

	fullname := FullnameFor(name, serviceType, domain)
	logger.Info("service announced",
		zap.String("fullname", fullname),
		zap.Uint16("port", port),
		zap.Int("attributes", len(all)))
	return &Announcement{fullname: fullname, reg: reg, logger: logger, metrics: m}, nil
}

func validateInstance(name string) error {
	if name == "" {
		return fmt.Errorf("empty instance name")
	}
	if len(name) > maxInstanceLen {
		return fmt.Errorf("instance name %q exceeds %d bytes", name, maxInstanceLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("instance name is not valid UTF-8")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("instance name %q contains control characters", name)
		}
	}
	return nil
}

func validateAttributes(attrs map[string]string) error {
	for k, v := range attrs {
		if k == "" {
			return fmt.Errorf("empty attribute key")
		}
		for i := 0; i < len(k); i++ {
			if c := k[i]; c < 0x20 || c > 0x7e || c == '=' {
				return fmt.Errorf("attribute key %q must be printable ASCII without '='", k)
			}
		}
		if n := len(k) + 1 + len(v); n > maxTXTEntryLen {
			return fmt.Errorf("attribute %q is %d bytes, limit %d", k, n, maxTXTEntryLen)
		}
	}
	return nil
}

// Announcement is a live registration. Close withdraws it.
type Announcement struct {
	fullname string
	reg      Registration
	logger   *zap.Logger
	metrics  *Metrics
	once     sync.Once
}

// Fullname is the namespace-qualified name that was requested, not
// necessarily the one peers see. Registrars do not report conflict renames:
// the bundled backends never check for conflicts, and a responder that does
// resolve one (e.g. "name (2)") advertises a name that differs from this.
func (a *Announcement) Fullname() string { return a.fullname }

// Close unregisters the record. Failures are logged and swallowed; repeated
// calls do nothing.
func (a *Announcement) Close() {
	a.once.Do(func() {
		a.metrics.Announcements.Add(-1)
		if err := a.reg.Shutdown(); err != nil {
			a.logger.Warn("failed to unregister service",
				zap.String("fullname", a.fullname), zap.Error(err))
			return
		}
		a.logger.Info("service unregistered", zap.String("fullname", a.fullname))
	})
}
