package discovery

import (
	"net/netip"
	"slices"
)

// scoreUnusable ranks the zero/invalid address after every real category.
const scoreUnusable = 1000

// Score ranks an address by likely usability for a peer on the same LAN.
// Lower is better. IPv4 private LAN ranges win, virtualization and container
// artifacts are demoted, IPv6 comes after all IPv4, and loopback is last in
// its family since it only helps same-host testing.
func Score(ip netip.Addr) int {
	if !ip.IsValid() {
		return scoreUnusable
	}
	ip = ip.Unmap()
	if ip.Is4() {
		return scoreIPv4(ip.As4())
	}
	return scoreIPv6(ip)
}

func scoreIPv4(o [4]byte) int {
	a, b, c := o[0], o[1], o[2]
	// hard demotions first
	switch {
	case a == 127:
		return 100 // loopback
	case a == 10 && b == 255 && c == 255:
		return 80 // WSL-style NAT
	case a == 172 && (b == 17 || b == 18 || b == 19):
		return 70 // docker bridges
	case a == 172 && b == 31:
		return 60 // WSL NAT side range
	}

	switch {
	case a == 192 && b == 168:
		return 0
	case a == 172 && b >= 16 && b <= 30:
		return 5
	case a == 10:
		return 10
	case a == 169 && b == 254:
		return 20 // APIPA
	}
	// public, CGNAT, everything else
	return 30
}

func scoreIPv6(ip netip.Addr) int {
	switch {
	case ip.IsLinkLocalUnicast():
		return 220
	case ip.As16()[0]&0xfe == 0xfc:
		return 210 // unique local fc00::/7
	case ip.IsLoopback():
		return 230
	}
	return 200
}

// ScoreAddrPort scores the IP part of a socket address.
func ScoreAddrPort(ap netip.AddrPort) int { return Score(ap.Addr()) }

// SortAddrsByPreference sorts addrs ascending by score in place. Equal scores
// keep their original relative order.
func SortAddrsByPreference(addrs []netip.AddrPort) {
	slices.SortStableFunc(addrs, func(x, y netip.AddrPort) int {
		return ScoreAddrPort(x) - ScoreAddrPort(y)
	})
}

// BestAddr returns the lowest-scored address; the first one seen wins ties.
// addrs is not modified.
func BestAddr(addrs []netip.AddrPort) (netip.AddrPort, bool) {
	if len(addrs) == 0 {
		return netip.AddrPort{}, false
	}
	best, bestScore := addrs[0], ScoreAddrPort(addrs[0])
	for _, ap := range addrs[1:] {
		if s := ScoreAddrPort(ap); s < bestScore {
			best, bestScore = ap, s
		}
	}
	return best, true
}

// RankedAddr is an address with its preference score.
type RankedAddr struct {
	Addr  netip.AddrPort
	Score int
}

// Rank returns a best-first copy of addrs with scores attached.
func Rank(addrs []netip.AddrPort) []RankedAddr {
	out := make([]RankedAddr, len(addrs))
	for i, ap := range addrs {
		out[i] = RankedAddr{Addr: ap, Score: ScoreAddrPort(ap)}
	}
	slices.SortStableFunc(out, func(x, y RankedAddr) int { return x.Score - y.Score })
	return out
}
