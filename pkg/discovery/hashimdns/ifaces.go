package hashimdns

import (
	"net"
	"strings"
)

var virtualPrefixes = []string{
	"docker", "br-", "veth", "virbr", "vboxnet", "vmnet", "vnic",
	"tap", "tun", "flannel", "cni", "calico", "weave", "podman", "lxc", "lxd",
	"vethernet", // Hyper-V / WSL switch on Windows
}

// LocalIPs lists addresses of up, non-loopback, non-virtual interfaces.
// Loopback is returned when nothing else is available so that same-host
// peers can still connect.
func LocalIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if usableIP(ip) {
				ips = append(ips, ip)
			}
		}
	}
	if len(ips) == 0 {
		ips = append(ips, net.IPv4(127, 0, 0, 1))
	}
	return ips, nil
}

func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// usableIP drops loopback, link-local and container bridge addresses.
func usableIP(ip net.IP) bool {
	if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil && ip4[0] == 172 && ip4[1] >= 17 && ip4[1] <= 19 {
		return false
	}
	return true
}
