package hashimdns

import (
	"net"
	"net/netip"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AriBhuiya/ferry/pkg/discovery"
)

func TestEventFromEntry(t *testing.T) {
	ev, ok := eventFromEntry(&mdns.ServiceEntry{
		Name:       "brave-otter._ferry._tcp.local.",
		Host:       "otter.local.",
		AddrV4:     net.ParseIP("192.168.1.5"),
		AddrV6:     net.ParseIP("fd00::5"),
		Port:       3625,
		InfoFields: []string{"port=3625"},
	})
	require.True(t, ok)
	assert.Equal(t, discovery.EventResolved, ev.Kind)
	assert.Equal(t, "brave-otter._ferry._tcp.local.", ev.Fullname)
	assert.Equal(t, uint16(3625), ev.Port)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.5"), netip.MustParseAddr("fd00::5")}, ev.IPs)
	assert.Equal(t, []string{"port=3625"}, ev.TXT)
}

func TestEventFromEntryRejectsEmpty(t *testing.T) {
	_, ok := eventFromEntry(nil)
	assert.False(t, ok)
	_, ok = eventFromEntry(&mdns.ServiceEntry{})
	assert.False(t, ok)
}

func TestVirtualInterfaceFilter(t *testing.T) {
	for _, name := range []string{"docker0", "br-1a2b", "veth12", "vEthernet (WSL)", "tun0", "cni0"} {
		assert.True(t, isVirtualInterface(name), name)
	}
	for _, name := range []string{"eth0", "en0", "wlan0", "Wi-Fi"} {
		assert.False(t, isVirtualInterface(name), name)
	}
}

func TestUsableIP(t *testing.T) {
	assert.True(t, usableIP(net.ParseIP("192.168.1.5")))
	assert.True(t, usableIP(net.ParseIP("2001:db8::1")))
	assert.False(t, usableIP(net.ParseIP("127.0.0.1")))
	assert.False(t, usableIP(net.ParseIP("fe80::1")))
	assert.False(t, usableIP(net.ParseIP("172.17.0.1")))
	assert.False(t, usableIP(nil))
}

func TestLocalIPsNeverEmpty(t *testing.T) {
	ips, err := LocalIPs()
	require.NoError(t, err)
	assert.NotEmpty(t, ips)
}
