// Package ethernet implements the BACnet Ethernet 802.2 data-link
// adapter: raw 802.2 LLC frames over a physical interface, for
// sites wiring BACnet directly onto an Ethernet segment without IP.
// The socket-level implementation is Linux-only (AF_PACKET); see
// ethernet_linux.go and ethernet_other.go.
package ethernet

import (
	"context"
	"fmt"

	"github.com/bactalk/bacstack/pkg/metrics"
)

// maxNPDULength is the Ethernet MTU (1500) minus the 802.2 LLC header
// (3 bytes: DSAP, SSAP, control) this adapter prepends.
const maxNPDULength = 1497

// llcHeader is the fixed 802.2 LLC header BACnet Ethernet framing uses:
// DSAP=0x82, SSAP=0x82, Control=0x03 (unnumbered information), per
// ASHRAE 135 clause 7.
var llcHeader = [3]byte{0x82, 0x82, 0x03}

// broadcastMac is the Ethernet broadcast address.
var broadcastMac = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ReceiveFunc is invoked for every inbound NPDU this adapter extracts
// from an 802.2 LLC frame matching the BACnet DSAP/SSAP.
type ReceiveFunc func(ctx context.Context, srcMac []byte, npduBytes []byte)

// Config binds a Port to a physical interface.
type Config struct {
	// InterfaceName is the OS network interface name (e.g. "eth0").
	InterfaceName string
	// LocalMAC overrides the interface's own hardware address, if set.
	LocalMAC []byte
}

// Port is the Ethernet 802.2 adapter. socket is the OS-specific raw
// socket handle, implemented per-platform.
type Port struct {
	cfg       Config
	localMac  [6]byte
	socket    rawSocket
	onReceive ReceiveFunc
	metrics   metrics.Router
}

// rawSocket is the platform-specific raw-frame transport this adapter
// drives; implementations live in ethernet_linux.go (AF_PACKET) and
// ethernet_other.go (unsupported-platform stub).
type rawSocket interface {
	open(iface string) error
	close() error
	writeFrame(dstMac [6]byte, payload []byte) error
	readLoop(ctx context.Context, deliver func(srcMac [6]byte, payload []byte))
}

// New creates a Port bound to cfg. Call Start to open the raw socket.
func New(cfg Config, onReceive ReceiveFunc, m metrics.Router) (*Port, error) {
	if cfg.InterfaceName == "" {
		return nil, fmt.Errorf("ethernet: interface name required")
	}
	if m == nil {
		m = metrics.NoOp().Router
	}
	p := &Port{cfg: cfg, onReceive: onReceive, metrics: m, socket: newRawSocket()}
	if len(cfg.LocalMAC) == 6 {
		copy(p.localMac[:], cfg.LocalMAC)
	}
	return p, nil
}

// ID names this port for the router's routing table and logs.
func (p *Port) ID() string { return "ethernet" }

// Start opens the raw socket on the configured interface and launches
// the receive loop.
func (p *Port) Start(ctx context.Context) error {
	if err := p.socket.open(p.cfg.InterfaceName); err != nil {
		return fmt.Errorf("ethernet: open %s: %w", p.cfg.InterfaceName, err)
	}
	go p.socket.readLoop(ctx, func(srcMac [6]byte, payload []byte) {
		npduBytes, ok := stripLLC(payload)
		if !ok {
			return
		}
		if p.onReceive != nil {
			mac := append([]byte(nil), srcMac[:]...)
			p.onReceive(ctx, mac, npduBytes)
		}
	})
	return nil
}

// Stop closes the raw socket. Idempotent.
func (p *Port) Stop() error { return p.socket.close() }

// SendUnicast wraps npduBytes in an 802.2 LLC frame addressed to destMac
// (a 6-byte hardware address).
func (p *Port) SendUnicast(destMac []byte, npduBytes []byte) error {
	if len(destMac) != 6 {
		return fmt.Errorf("ethernet: dest mac must be 6 bytes, got %d", len(destMac))
	}
	var dst [6]byte
	copy(dst[:], destMac)
	return p.send(dst, npduBytes)
}

// SendBroadcast wraps npduBytes in an 802.2 LLC frame addressed to the
// Ethernet broadcast address.
func (p *Port) SendBroadcast(npduBytes []byte) error {
	return p.send(broadcastMac, npduBytes)
}

func (p *Port) send(dst [6]byte, npduBytes []byte) error {
	frame := make([]byte, 0, 3+len(npduBytes))
	frame = append(frame, llcHeader[:]...)
	frame = append(frame, npduBytes...)
	if err := p.socket.writeFrame(dst, frame); err != nil {
		p.metrics.PacketDropped("send-error")
		return fmt.Errorf("ethernet: write frame: %w", err)
	}
	return nil
}

// LocalMac is this station's 6-byte Ethernet hardware address.
func (p *Port) LocalMac() []byte { return p.localMac[:] }

// MaxNPDULength is the Ethernet MTU minus the 802.2 LLC header.
func (p *Port) MaxNPDULength() int { return maxNPDULength }

// stripLLC validates the 802.2 LLC header matches BACnet's DSAP/SSAP and
// returns the payload past it.
func stripLLC(frame []byte) ([]byte, bool) {
	if len(frame) < 3 {
		return nil, false
	}
	if frame[0] != llcHeader[0] || frame[1] != llcHeader[1] {
		return nil, false
	}
	return frame[3:], true
}
