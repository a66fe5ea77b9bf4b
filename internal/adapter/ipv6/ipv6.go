// Package ipv6 implements the BACnet/IPv6 data-link adapter: a UDP
// socket framed with BVLL6 (Annex U), exposing the router.Port interface.
// Unlike BACnet/IP, BVLL6 carries an explicit originating-address field on
// Forwarded-NPDU and Distribute-Broadcast-To-Network instead of relying
// on the receiving adapter to infer it from the UDP envelope, and peers
// are addressed by a 3-byte virtual MAC rather than their raw IP+port.
package ipv6

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/bactalk/bacstack/internal/bvll"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/pkg/bufpool"
	"github.com/bactalk/bacstack/pkg/metrics"
)

// maxNPDULength mirrors the IPv4 adapter's MTU budget; BVLL6 headers are
// the same 4 bytes plus an 18-byte address field only on some functions.
const maxNPDULength = 1456

const maxDatagram = 1500

// ReceiveFunc is invoked for every inbound NPDU this adapter decodes out
// of a BVLL6 frame.
type ReceiveFunc func(ctx context.Context, srcMac []byte, npduBytes []byte)

// BVLLFunc is invoked for every inbound frame this adapter does not
// interpret on its own, letting a BBMD own foreign-device/BDT handling.
type BVLLFunc func(ctx context.Context, src npdu.NetworkAddress, frame bvll.Frame6) (*bvll.Frame6, error)

// Port is the BACnet/IPv6 adapter.
type Port struct {
	conn       *net.UDPConn
	localAddr  *net.UDPAddr
	localVMAC  [3]byte
	multicast  *net.UDPAddr

	onReceive ReceiveFunc
	onBVLL    BVLLFunc
	metrics   metrics.Router

	mu      sync.Mutex
	running bool
	done    chan struct{}

	// addrOf maps a 3-byte VMAC this adapter has seen to the UDP
	// envelope it arrived from, since wire BVLL6 frames from most
	// function codes carry only the VMAC, not the full address.
	addrOf map[[3]byte]*net.UDPAddr
}

// Config binds a Port.
type Config struct {
	Interface      string
	Port           int
	LocalVMAC      [3]byte
	MulticastGroup string // e.g. "ff02::bac0", the BACnet/IPv6 multicast group
}

// New creates a Port bound to cfg. Call Start to begin receiving.
func New(cfg Config, onReceive ReceiveFunc, onBVLL BVLLFunc, m metrics.Router) (*Port, error) {
	if m == nil {
		m = metrics.NoOp().Router
	}
	port := cfg.Port
	if port == 0 {
		port = 47808
	}
	local, err := net.ResolveUDPAddr("udp6", fmt.Sprintf("[%s]:%d", ifaceOrAny(cfg.Interface), port))
	if err != nil {
		return nil, fmt.Errorf("ipv6: resolve local address: %w", err)
	}
	var mcast *net.UDPAddr
	group := cfg.MulticastGroup
	if group == "" {
		group = "ff02::bac0"
	}
	mcast, err = net.ResolveUDPAddr("udp6", fmt.Sprintf("[%s]:%d", group, port))
	if err != nil {
		return nil, fmt.Errorf("ipv6: resolve multicast group: %w", err)
	}
	return &Port{
		localAddr: local,
		localVMAC: cfg.LocalVMAC,
		multicast: mcast,
		onReceive: onReceive,
		onBVLL:    onBVLL,
		metrics:   m,
		addrOf:    make(map[[3]byte]*net.UDPAddr),
	}, nil
}

func ifaceOrAny(iface string) string {
	if iface == "" {
		return "::"
	}
	return iface
}

// ID names this port for the router's routing table and logs.
func (p *Port) ID() string { return "ipv6" }

// Start binds the UDP6 socket and launches the receive loop.
func (p *Port) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	conn, err := net.ListenUDP("udp6", p.localAddr)
	if err != nil {
		return fmt.Errorf("ipv6: listen %s: %w", p.localAddr, err)
	}
	p.conn = conn
	p.running = true
	p.done = make(chan struct{})
	go p.receiveLoop(ctx)
	logger.Info("ipv6 adapter started", logger.Adapter("ipv6"), logger.PeerStr(p.localAddr.String()))
	return nil
}

// Stop releases the socket. Idempotent.
func (p *Port) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	err := p.conn.Close()
	<-p.done
	return err
}

func (p *Port) receiveLoop(ctx context.Context) {
	defer close(p.done)
	buf := bufpool.Get(maxDatagram)
	defer bufpool.Put(buf)

	for {
		n, src, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if isClosedErr(err) {
				return
			}
			logger.WarnCtx(ctx, "ipv6: read error", logger.Err(err))
			continue
		}
		p.handleDatagram(ctx, src, append([]byte(nil), buf[:n]...))
	}
}

func (p *Port) handleDatagram(ctx context.Context, src *net.UDPAddr, raw []byte) {
	frame, err := bvll.Decode6(raw)
	if err != nil {
		logger.WarnCtx(ctx, "ipv6: dropping malformed bvll6 frame", logger.ClientIP(src.IP.String()), logger.Err(err))
		return
	}

	if len(frame.VMAC) == 3 {
		var vmac [3]byte
		copy(vmac[:], frame.VMAC)
		p.mu.Lock()
		p.addrOf[vmac] = src
		p.mu.Unlock()
	}

	switch frame.Function {
	case bvll.FuncOriginalUnicastNPDU, bvll.FuncOriginalBroadcastNPDU:
		if p.onReceive != nil {
			p.onReceive(ctx, frame.VMAC, frame.Body)
		}
	default:
		if p.onBVLL == nil {
			return
		}
		srcAddr := npdu.NetworkAddress{Mac: frame.VMAC}
		if len(frame.OriginatingAddress) == 18 {
			srcAddr.Mac = frame.OriginatingAddress
		}
		reply, err := p.onBVLL(ctx, srcAddr, frame)
		if err != nil {
			logger.WarnCtx(ctx, "ipv6: bvll handler failed", logger.Err(err))
			return
		}
		if reply != nil {
			if err := p.send(reply.Encode(), src); err != nil {
				logger.WarnCtx(ctx, "ipv6: bvll reply send failed", logger.Err(err))
			}
		}
	}
}

// SendUnicast emits one original-unicast-NPDU BVLL6 frame to destMac (a
// 3-byte VMAC previously learned from an inbound frame, or an 18-byte
// resolved IPv6+port address).
func (p *Port) SendUnicast(destMac []byte, npduBytes []byte) error {
	addr, err := p.resolve(destMac)
	if err != nil {
		return fmt.Errorf("ipv6: send unicast: %w", err)
	}
	wire := bvll.Frame6{Function: bvll.FuncOriginalUnicastNPDU, VMAC: p.localVMAC[:], Body: npduBytes}.Encode()
	return p.send(wire, addr)
}

// SendBroadcast emits one original-broadcast-NPDU BVLL6 frame to the
// BACnet/IPv6 multicast group.
func (p *Port) SendBroadcast(npduBytes []byte) error {
	wire := bvll.Frame6{Function: bvll.FuncOriginalBroadcastNPDU, VMAC: p.localVMAC[:], Body: npduBytes}.Encode()
	return p.send(wire, p.multicast)
}

// SendUnicastAddr sends a raw BVLC6 wire frame directly to addr's
// resolved IPv6+port — used by a BBMD forwarding to an FDT entry.
func (p *Port) SendUnicastAddr(addr npdu.NetworkAddress, wire []byte) error {
	ua, err := decodeAddr18(addr.Mac)
	if err != nil {
		return fmt.Errorf("ipv6: send unicast addr: %w", err)
	}
	return p.send(wire, ua)
}

func (p *Port) resolve(mac []byte) (*net.UDPAddr, error) {
	if len(mac) == 18 {
		return decodeAddr18(mac)
	}
	if len(mac) == 3 {
		var vmac [3]byte
		copy(vmac[:], mac)
		p.mu.Lock()
		addr, ok := p.addrOf[vmac]
		p.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("unresolved vmac %x", mac)
		}
		return addr, nil
	}
	return nil, fmt.Errorf("mac must be 3 (vmac) or 18 (ip+port) bytes, got %d", len(mac))
}

func (p *Port) send(wire []byte, dest *net.UDPAddr) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ipv6: port not started")
	}
	if _, err := conn.WriteToUDP(wire, dest); err != nil {
		p.metrics.PacketDropped("send-error")
		return fmt.Errorf("ipv6: write to %s: %w", dest, err)
	}
	return nil
}

// LocalMac is this station's 3-byte virtual MAC.
func (p *Port) LocalMac() []byte { return p.localVMAC[:] }

// MaxNPDULength is the link MTU minus BVLL6/UDP/IPv6 header overhead.
func (p *Port) MaxNPDULength() int { return maxNPDULength }

func decodeAddr18(mac []byte) (*net.UDPAddr, error) {
	if len(mac) != 18 {
		return nil, fmt.Errorf("address must be 18 bytes (16 addr + 2 port), got %d", len(mac))
	}
	port := int(mac[16])<<8 | int(mac[17])
	return &net.UDPAddr{IP: net.IP(mac[:16]), Port: port}, nil
}

func isClosedErr(err error) bool {
	op, ok := err.(*net.OpError)
	return ok && op.Err.Error() == "use of closed network connection"
}
