package utils

import (
	"net"
	"strings"
)

// GetLocalIPs returns all non-loopback IPv4 addresses with smart filtering.
// It filters out Link-Local (169.254.x.x) addresses ONLY IF a better
// alternative exists. The first entry is what the host displays to
// operators for manual entry on client machines.
func GetLocalIPs() []string {
	var allIPs []string
	var hasRoutableIP bool

	// 1. Collect all IPs
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return allIPs
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				ip := ipnet.IP.String()
				allIPs = append(allIPs, ip)

				// Check if this is a "good" IP (not APIPA)
				if !strings.HasPrefix(ip, "169.254") {
					hasRoutableIP = true
				}
			}
		}
	}

	// 2. Filter based on availability
	var finalIPs []string
	for _, ip := range allIPs {
		// If we have a good IP, skip garbage (169.254)
		// If we DON'T have a good IP, keep everything (panic mode)
		if hasRoutableIP && strings.HasPrefix(ip, "169.254") {
			continue
		}
		finalIPs = append(finalIPs, ip)
	}

	return finalIPs
}
