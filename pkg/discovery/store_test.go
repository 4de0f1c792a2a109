package discovery

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sample() Service {
	return Service{
		Instance:   "brave-otter",
		Fullname:   "brave-otter._ferry._tcp.local.",
		Host:       "otter.local.",
		Port:       3625,
		Addrs:      []netip.AddrPort{ap("192.168.1.5:3625"), ap("[fe80::5]:3625")},
		Attributes: map[string]string{"port": "3625", "ver": "1"},
	}
}

func TestStoreInsert(t *testing.T) {
	s := NewStore()
	s.Upsert(sample())

	require.Equal(t, 1, s.Len())
	got, ok := s.Get("BRAVE-OTTER._ferry._tcp.local.")
	require.True(t, ok)
	assert.Equal(t, sample(), got)
}

func TestStoreUpsertIdempotent(t *testing.T) {
	once := NewStore()
	once.Upsert(sample())

	twice := NewStore()
	twice.Upsert(sample())
	twice.Upsert(sample())

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestStoreCaseInsensitiveKey(t *testing.T) {
	s := NewStore()
	a := sample()
	a.Fullname = "Service._tcp.LOCAL."
	b := sample()
	b.Fullname = "service._tcp.local."
	b.Addrs = []netip.AddrPort{ap("10.0.0.5:3625")}

	s.Upsert(a)
	s.Upsert(b)

	require.Equal(t, 1, s.Len())
	got := s.Snapshot()[0]
	assert.Equal(t, "Service._tcp.LOCAL.", got.Fullname, "original case of first sighting is kept")
	assert.Equal(t, []netip.AddrPort{
		ap("192.168.1.5:3625"), ap("[fe80::5]:3625"), ap("10.0.0.5:3625"),
	}, got.Addrs)
}

func TestStorePortChangeDropsOldAddrs(t *testing.T) {
	s := NewStore()
	s.Upsert(sample())

	moved := sample()
	moved.Port = 4000
	moved.Host = "otter-2.local."
	moved.Addrs = []netip.AddrPort{ap("192.168.1.5:4000")}
	moved.Attributes = map[string]string{"port": "4000"}
	s.Upsert(moved)

	got, ok := s.Get(moved.Fullname)
	require.True(t, ok)
	assert.Equal(t, uint16(4000), got.Port)
	assert.Equal(t, "otter-2.local.", got.Host)
	assert.Equal(t, []netip.AddrPort{ap("192.168.1.5:4000")}, got.Addrs)
	assert.Equal(t, map[string]string{"port": "4000", "ver": "1"}, got.Attributes)
}

func TestStoreAttributeMerge(t *testing.T) {
	s := NewStore()
	s.Upsert(sample())

	upd := sample()
	upd.Attributes = map[string]string{"ver": "2", "id": "abc"}
	s.Upsert(upd)

	got, _ := s.Get(upd.Fullname)
	assert.Equal(t, map[string]string{"port": "3625", "ver": "2", "id": "abc"}, got.Attributes)
}

func TestStoreHostAlwaysOverwritten(t *testing.T) {
	s := NewStore()
	s.Upsert(sample())
	upd := sample()
	upd.Host = "renamed.local."
	s.Upsert(upd)

	got, _ := s.Get(upd.Fullname)
	assert.Equal(t, "renamed.local.", got.Host)
}

func TestStoreDistinctNamesCoexist(t *testing.T) {
	s := NewStore()
	a := sample()
	b := sample()
	b.Fullname = "calm-heron._ferry._tcp.local."
	b.Instance = "calm-heron"
	s.Upsert(a)
	s.Upsert(b)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a.Fullname, snap[0].Fullname)
	assert.Equal(t, b.Fullname, snap[1].Fullname)
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	s.Upsert(sample())
	s.Remove("nobody._ferry._tcp.local.")
	assert.Equal(t, 1, s.Len())

	s.Remove("Brave-Otter._FERRY._tcp.local.")
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Snapshot())
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Upsert(sample())
	snap := s.Snapshot()
	snap[0].Attributes["ver"] = "mutated"
	snap[0].Addrs[0] = ap("1.1.1.1:1")

	got, _ := s.Get(sample().Fullname)
	assert.Equal(t, sample(), got)
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	s.Upsert(sample())
	s.Reset()
	assert.Equal(t, 0, s.Len())
	s.Upsert(sample())
	assert.Equal(t, 1, s.Len())
}

func serviceGen() *rapid.Generator[Service] {
	return rapid.Custom(func(t *rapid.T) Service {
		name := rapid.SampledFrom([]string{"a", "A", "b", "c"}).Draw(t, "name")
		port := uint16(rapid.IntRange(1, 3).Draw(t, "port"))
		addrs := rapid.SliceOfN(rapid.SampledFrom(scorePool), 0, 4).Draw(t, "addrs")
		keys := rapid.SliceOfN(rapid.SampledFrom([]string{"x", "y", "z"}), 0, 3).Draw(t, "keys")
		svc := Service{
			Instance: name,
			Fullname: name + "._ferry._tcp.local.",
			Host:     rapid.SampledFrom([]string{"h1", "h2"}).Draw(t, "host"),
			Port:     port,
		}
		for _, ip := range addrs {
			svc.Addrs = append(svc.Addrs, netip.AddrPortFrom(netip.MustParseAddr(ip), port))
		}
		if len(keys) > 0 {
			svc.Attributes = map[string]string{}
			for i, k := range keys {
				svc.Attributes[k] = fmt.Sprint(i)
			}
		}
		return svc
	})
}

func TestStoreUpsertIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		history := rapid.SliceOfN(serviceGen(), 0, 6).Draw(t, "history")
		last := serviceGen().Draw(t, "last")

		once, twice := NewStore(), NewStore()
		for _, svc := range history {
			once.Upsert(svc)
			twice.Upsert(svc)
		}
		once.Upsert(last)
		twice.Upsert(last)
		twice.Upsert(last)

		assert.Equal(t, once.Snapshot(), twice.Snapshot())
	})
}
