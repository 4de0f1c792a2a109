package discovery

import (
	"maps"
	"net/netip"
	"slices"
	"strings"
)

// Store merges repeated observations of services keyed by fullname
// (case-insensitive). It is owned by a single browse loop and is not safe for
// concurrent use.
type Store struct {
	order []string // keys, first-seen order
	byKey map[string]*Service
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byKey: make(map[string]*Service)}
}

func storeKey(fullname string) string { return strings.ToLower(fullname) }

// Upsert inserts a new service or merges it into the existing record.
//
// On merge the host is overwritten, attributes merge key-wise with incoming
// values winning, and addresses are unioned by (IP, port). A port change
// drops every previously recorded address first.
func (s *Store) Upsert(in Service) {
	key := storeKey(in.Fullname)
	cur, ok := s.byKey[key]
	if !ok {
		rec := in.Clone()
		rec.Addrs = unionAddrs(nil, rec.Addrs)
		s.byKey[key] = &rec
		s.order = append(s.order, key)
		return
	}

	if in.Port != cur.Port {
		cur.Port = in.Port
		cur.Addrs = nil
	}
	cur.Host = in.Host
	if len(in.Attributes) > 0 {
		if cur.Attributes == nil {
			cur.Attributes = make(map[string]string, len(in.Attributes))
		}
		maps.Copy(cur.Attributes, in.Attributes)
	}
	cur.Addrs = unionAddrs(cur.Addrs, in.Addrs)
}

// unionAddrs appends the members of add not yet present in dst.
func unionAddrs(dst, add []netip.AddrPort) []netip.AddrPort {
	for _, ap := range add {
		if !slices.Contains(dst, ap) {
			dst = append(dst, ap)
		}
	}
	return dst
}

// Remove deletes the record for fullname. Unknown names are ignored.
func (s *Store) Remove(fullname string) {
	key := storeKey(fullname)
	if _, ok := s.byKey[key]; !ok {
		return
	}
	delete(s.byKey, key)
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == key })
}

// Get returns a copy of the record for fullname.
func (s *Store) Get(fullname string) (Service, bool) {
	rec, ok := s.byKey[storeKey(fullname)]
	if !ok {
		return Service{}, false
	}
	return rec.Clone(), true
}

func (s *Store) Len() int { return len(s.byKey) }

// Snapshot returns deep copies of all records in first-seen order.
func (s *Store) Snapshot() []Service {
	out := make([]Service, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k].Clone())
	}
	return out
}

func (s *Store) Reset() {
	s.order = nil
	clear(s.byKey)
}
