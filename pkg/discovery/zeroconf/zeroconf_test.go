package zeroconf

import (
	"net"
	"net/netip"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AriBhuiya/ferry/pkg/discovery"
)

func entry() *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry("brave-otter", "_ferry._tcp", "local.")
	e.HostName = "otter.local."
	e.Port = 3625
	e.Text = []string{"port=3625", "ver=1"}
	e.TTL = 120
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.5")}
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::5")}
	return e
}

func TestEventFromEntryResolved(t *testing.T) {
	ev, ok := eventFromEntry(entry())
	require.True(t, ok)
	assert.Equal(t, discovery.EventResolved, ev.Kind)
	assert.Equal(t, "brave-otter._ferry._tcp.local.", ev.Fullname)
	assert.Equal(t, "otter.local.", ev.Host)
	assert.Equal(t, uint16(3625), ev.Port)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.5"), netip.MustParseAddr("fe80::5")}, ev.IPs)
	assert.Equal(t, []string{"port=3625", "ver=1"}, ev.TXT)
}

func TestEventFromNilEntry(t *testing.T) {
	_, ok := eventFromEntry(nil)
	assert.False(t, ok)
}
