package discovery

import (
	"maps"
	"net"
	"net/netip"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Default namespace for ferry endpoints.
const (
	ServiceType = "_ferry._tcp"
	Domain      = "local."
)

// Well-known attribute keys carried in the TXT record.
const (
	AttrPort        = "port"
	AttrID          = "id"
	AttrProto       = "proto"
	AttrVersion     = "ver"
	AttrFingerprint = "fp"
)

// Service is one observed, possibly merged, discovery record.
type Service struct {
	// Instance is the display name with the namespace stripped.
	Instance string
	// Fullname is the namespace-qualified name; the case-insensitive dedup key.
	Fullname string
	// Host is the most recently observed hostname.
	Host string
	// Port is the most recently observed service port.
	Port uint16
	// Addrs is the set of endpoints the service was seen at, first-seen order.
	Addrs []netip.AddrPort
	// Attributes is the TXT table, last write wins per key.
	Attributes map[string]string
}

// Clone returns a deep copy.
func (s Service) Clone() Service {
	out := s
	out.Addrs = slices.Clone(s.Addrs)
	out.Attributes = maps.Clone(s.Attributes)
	return out
}

// SortAddrsByPreference orders Addrs best-first in place (stable).
func (s *Service) SortAddrsByPreference() { SortAddrsByPreference(s.Addrs) }

// BestAddr returns the most preferable address without reordering Addrs.
func (s *Service) BestAddr() (netip.AddrPort, bool) { return BestAddr(s.Addrs) }

// Attr returns an attribute value.
func (s *Service) Attr(key string) (string, bool) {
	v, ok := s.Attributes[key]
	return v, ok
}

// FullnameFor builds the namespace-qualified name of an instance.
func FullnameFor(instance, serviceType, domain string) string {
	return instance + "." + strings.Trim(serviceType, ".") + "." + strings.Trim(domain, ".") + "."
}

// InstanceFromFullname strips the ".<type>.<domain>" suffix from fullname.
// The comparison is case-insensitive and tolerates a missing trailing dot;
// a fullname outside the namespace is returned unchanged.
func InstanceFromFullname(fullname, serviceType, domain string) string {
	suffix := "." + strings.Trim(serviceType, ".") + "." + strings.Trim(domain, ".")
	name := strings.TrimSuffix(fullname, ".")
	if len(name) <= len(suffix) || !strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return fullname
	}
	return unescapeLabel(name[:len(name)-len(suffix)])
}

// unescapeLabel undoes RFC 1035 presentation escaping (\. \\ \DDD).
func unescapeLabel(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			if n, err := strconv.Atoi(s[i+1 : i+4]); err == nil && n < 256 {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i+1])
		i++
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// ParseTXT decodes DNS-SD TXT strings into an attribute table. A string
// without '=' is a boolean attribute and maps to the empty value.
func ParseTXT(txt []string) map[string]string {
	out := make(map[string]string, len(txt))
	for _, kv := range txt {
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// FormatTXT encodes attributes as "key=value" strings in key order.
func FormatTXT(attrs map[string]string) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+attrs[k])
	}
	return out
}

// AddrsFromIPs converts backend IPs, unmapping IPv4-in-IPv6 and dropping
// invalid entries. zone is applied to link-local IPv6 addresses.
func AddrsFromIPs(ips []net.IP, zone string) []netip.Addr {
	out := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		a, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		a = a.Unmap()
		if zone != "" && a.Is6() && a.IsLinkLocalUnicast() {
			a = a.WithZone(zone)
		}
		out = append(out, a)
	}
	return out
}
