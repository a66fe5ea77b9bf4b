package station

import (
	"fmt"
	"net"

	"github.com/bactalk/bacstack/internal/npdu"
)

// parseIPv4HostPort resolves a "host[:port]" string to a NetworkAddress
// whose Mac is the 6-byte IP+port encoding the ipv4 adapter uses,
// matching the MAC form ipv4.Port.LocalMac/SendUnicast already produce.
func parseIPv4HostPort(s string, defaultPort int) (npdu.NetworkAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		host = s
		portStr = ""
	}
	port := defaultPort
	if portStr != "" {
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return npdu.NetworkAddress{}, fmt.Errorf("station: invalid port in %q: %w", s, err)
		}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return npdu.NetworkAddress{}, fmt.Errorf("station: resolve %q: %w", host, err)
		}
		ip = resolved.IP
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return npdu.NetworkAddress{}, fmt.Errorf("station: %q is not an IPv4 address", s)
	}
	mac := make([]byte, 6)
	copy(mac, ip4)
	mac[4] = byte(port >> 8)
	mac[5] = byte(port)
	return npdu.NetworkAddress{Mac: mac}, nil
}

// parseIPv4Mask parses a dotted-decimal subnet mask into the 4-byte form
// BDTEntry.Mask and SendDirectedBroadcast expect.
func parseIPv4Mask(s string) ([4]byte, error) {
	var mask [4]byte
	if s == "" {
		mask = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
		return mask, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return mask, fmt.Errorf("station: invalid mask %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return mask, fmt.Errorf("station: mask %q is not dotted-decimal IPv4", s)
	}
	copy(mask[:], ip4)
	return mask, nil
}
