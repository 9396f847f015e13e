package netx

import "net"

// BroadcastAddrs lists where a LAN broadcast to port should go: the limited
// broadcast address, every up interface's directed broadcast address and
// loopback. Duplicates are removed.
func BroadcastAddrs(port uint16) []Addr {
	seen := make(map[string]struct{})
	out := make([]Addr, 0, 8)
	add := func(ip string) {
		if _, ok := seen[ip]; ok {
			return
		}
		seen[ip] = struct{}{}
		out = append(out, Addr{IP: ip, Port: port})
	}

	add(net.IPv4bcast.String())
	for _, ip := range interfaceBroadcastIPs() {
		add(ip.String())
	}
	add("127.0.0.1")
	return out
}

func interfaceBroadcastIPs() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []net.IP
	for _, it := range ifaces {
		// skip down interfaces
		if it.Flags&net.FlagUp == 0 {
			continue
		}
		// skip point-to-point/tunnel-ish
		if it.Flags&net.FlagPointToPoint != 0 || it.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := it.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP == nil {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || len(ipnet.Mask) != 4 {
				continue
			}
			// broadcast = ip | ^mask
			mask := ipnet.Mask
			out = append(out, net.IPv4(
				ip4[0]|^mask[0],
				ip4[1]|^mask[1],
				ip4[2]|^mask[2],
				ip4[3]|^mask[3],
			))
		}
	}
	return out
}
