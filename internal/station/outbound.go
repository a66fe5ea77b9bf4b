package station

import (
	"context"
	"strings"

	"github.com/bactalk/bacstack/internal/apdu"
	"github.com/bactalk/bacstack/internal/bbmd"
	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/internal/tsm"
)

// Request issues one confirmed service request to dest and blocks until
// the transaction reaches a terminal state. The returned payload is the
// complex-ack's service data (reassembled if the response arrived
// segmented) or nil when the peer answered with a simple-ack. The error,
// if non-nil, is one of the apdu typed errors (ApplicationError,
// RejectError, AbortError, TimeoutError) or a transport failure.
// Cancelling ctx aborts the transaction — resends stop, the peer is
// told with an Abort PDU when it has acknowledged nothing yet, and the
// caller gets an AbortError.
func (s *Station) Request(ctx context.Context, dest npdu.NetworkAddress, choice uint8, serviceData []byte) ([]byte, error) {
	peer := dest.String()
	s.rememberPeer(peer, dest, s.primaryPort)

	outcome := s.manager.SendConfirmed(ctx, peer, func(invokeID uint8) []byte {
		return apdu.EncodeConfirmedRequest(apdu.ConfirmedRequest{
			MaxAPDUAccepted: apdu.EncodeMaxAPDU(int(s.handlers.MaxAPDU)),
			InvokeID:        invokeID,
			ServiceChoice:   choice,
			ServiceData:     serviceData,
		})
	}, func(ctx context.Context, wire []byte) error {
		return s.router.Send(ctx, dest, s.primaryPort, wire)
	})
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Payload, nil
}

// SendUnconfirmedTo emits one unconfirmed request addressed to a single
// peer rather than a broadcast domain (time-synchronization and directed
// text messages use this).
func (s *Station) SendUnconfirmedTo(ctx context.Context, dest npdu.NetworkAddress, choice uint8, serviceData []byte) error {
	wire := apdu.EncodeUnconfirmedRequest(apdu.UnconfirmedRequest{ServiceChoice: choice, ServiceData: serviceData})
	return s.router.Send(ctx, dest, s.primaryPort, wire)
}

// Registry exposes the station's service registry so callers can attach
// temporary taps for unconfirmed-response correlation (Who-Is, Who-Has).
func (s *Station) Registry() *tsm.ServiceRegistry { return s.registry }

// ResolveAddress turns a human-entered destination into a
// NetworkAddress. Plain "host[:port]" and "net:host[:port]" forms
// resolve through the IP stack into the 6-byte IP+port MAC the IPv4
// adapter speaks; everything else ("*", "net:*", bare hex MACs) goes
// through the npdu address grammar untouched.
func (s *Station) ResolveAddress(addr string) (npdu.NetworkAddress, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.ContainsAny(addr, "*") {
		return npdu.ParseAddress(addr)
	}

	net, rest, hasNet := splitAddressNetwork(addr)
	if looksLikeHost(rest) {
		parsed, err := parseIPv4HostPort(rest, s.cfg.Port)
		if err != nil {
			return npdu.NetworkAddress{}, err
		}
		if hasNet {
			parsed.Net = net
		}
		return parsed, nil
	}
	return npdu.ParseAddress(addr)
}

// splitAddressNetwork splits a leading all-digit "NNN:" prefix the same
// way the npdu grammar does, so "2601:10.0.0.5" addresses the host on
// remote network 2601.
func splitAddressNetwork(s string) (net uint16, rest string, ok bool) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 {
		return 0, s, false
	}
	var n uint32
	for _, r := range s[:idx] {
		if r < '0' || r > '9' {
			return 0, s, false
		}
		n = n*10 + uint32(r-'0')
		if n > 0xFFFF {
			return 0, s, false
		}
	}
	return uint16(n), s[idx+1:], true
}

// looksLikeHost reports whether rest should be resolved as an IP host
// rather than decoded as a hex MAC: dotted-quad and DNS names contain
// dots, which the hex grammar never produces.
func looksLikeHost(rest string) bool {
	return strings.ContainsRune(rest, '.')
}

// ForeignDeviceRegistered reports whether this station currently holds a
// successful foreign-device registration; always false when not
// configured as a foreign device.
func (s *Station) ForeignDeviceRegistered() bool {
	return s.foreignDevice != nil && s.foreignDevice.State() == bbmd.StateRegistered
}
