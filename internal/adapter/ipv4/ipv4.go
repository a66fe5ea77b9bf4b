// Package ipv4 implements the BACnet/IP data-link adapter: a UDP
// socket framed with BVLL, exposing the router.Port interface. This is
// the default and most common BACnet transport — port 0xBAC0 (47808) on
// an IPv4 subnet that supports directed broadcast.
package ipv4

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bactalk/bacstack/internal/bvll"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/pkg/bufpool"
	"github.com/bactalk/bacstack/pkg/metrics"
)

// maxNPDULength is the conventional 1476-octet NPDU ceiling for
// BACnet/IP; with the 4-byte BVLL header a full frame still fits the
// 1500-byte read buffer below.
const maxNPDULength = 1476

// maxDatagram is the largest UDP payload this adapter will read — large
// enough for the max BVLL frame plus its 4-byte header.
const maxDatagram = 1500

// ReceiveFunc is invoked for every inbound NPDU this adapter decodes out
// of a BVLL frame, after any BBMD-class frame has already been consumed
// internally.
type ReceiveFunc func(ctx context.Context, srcMac []byte, npduBytes []byte)

// BroadcastFunc is invoked, in addition to ReceiveFunc, for every inbound
// Original-Broadcast-NPDU: a device on this subnet announcing something
// to the whole local network. A BBMD wires this to relay the broadcast
// on to its BDT peers and registered foreign devices.
type BroadcastFunc func(ctx context.Context, npduBytes []byte)

// BVLLFunc is invoked for every inbound frame whose function code this
// adapter does not interpret on its own (register-foreign-device,
// read-bdt, distribute-broadcast-to-network, ...), letting a BBMD own
// that behavior. The returned frame, if non-nil, is unicast back to src.
type BVLLFunc func(ctx context.Context, src npdu.NetworkAddress, frame bvll.Frame) (*bvll.Frame, error)

// Port is the BACnet/IP adapter: one bound UDP socket, a directed- or
// multicast-broadcast address, and the BVLL codec.
type Port struct {
	conn      *net.UDPConn
	localAddr *net.UDPAddr
	broadcast *net.UDPAddr

	onReceive   ReceiveFunc
	onBroadcast BroadcastFunc
	onBVLL      BVLLFunc
	metrics     metrics.Router

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// Config binds a Port.
type Config struct {
	// Interface is the local bind address ("0.0.0.0" for all interfaces).
	Interface string
	// Port is the UDP port, 47808 by default.
	Port int
	// BroadcastAddress is the directed-broadcast address for this
	// subnet (e.g. "192.168.1.255"), used by SendBroadcast.
	BroadcastAddress string
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
	local, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.Interface, port))
	if err != nil {
		return nil, fmt.Errorf("ipv4: resolve local address: %w", err)
	}
	var bcast *net.UDPAddr
	if cfg.BroadcastAddress != "" {
		bcast, err = net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.BroadcastAddress, port))
		if err != nil {
			return nil, fmt.Errorf("ipv4: resolve broadcast address: %w", err)
		}
	}
	return &Port{
		localAddr: local,
		broadcast: bcast,
		onReceive: onReceive,
		onBVLL:    onBVLL,
		metrics:   m,
	}, nil
}

// ID names this port for the router's routing table and logs.
func (p *Port) ID() string { return "ipv4" }

// SetBroadcastHook installs the callback invoked for every locally
// received Original-Broadcast-NPDU, in addition to ReceiveFunc. Must be
// called before Start.
func (p *Port) SetBroadcastHook(fn BroadcastFunc) { p.onBroadcast = fn }

// Start binds the UDP socket and launches the receive loop.
func (p *Port) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	conn, err := net.ListenUDP("udp4", p.localAddr)
	if err != nil {
		return fmt.Errorf("ipv4: listen %s: %w", p.localAddr, err)
	}
	p.conn = conn
	p.running = true
	p.done = make(chan struct{})
	go p.receiveLoop(ctx)
	logger.Info("ipv4 adapter started", logger.Adapter("ipv4"), logger.PeerStr(p.localAddr.String()))
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
			logger.WarnCtx(ctx, "ipv4: read error", logger.Err(err))
			continue
		}
		p.handleDatagram(ctx, src, append([]byte(nil), buf[:n]...))
	}
}

func (p *Port) handleDatagram(ctx context.Context, src *net.UDPAddr, raw []byte) {
	frame, err := bvll.Decode(raw)
	if err != nil {
		logger.WarnCtx(ctx, "ipv4: dropping malformed bvll frame", logger.ClientIP(src.IP.String()), logger.Err(err))
		return
	}
	srcMac := encodeMac(src)
	srcAddr := npdu.NetworkAddress{Mac: srcMac}

	switch frame.Function {
	case bvll.FuncOriginalUnicastNPDU, bvll.FuncOriginalBroadcastNPDU:
		if p.onReceive != nil {
			p.onReceive(ctx, srcMac, frame.Body)
		}
		if frame.Function == bvll.FuncOriginalBroadcastNPDU && p.onBroadcast != nil {
			p.onBroadcast(ctx, frame.Body)
		}
	case bvll.FuncForwardedNPDU:
		if p.onBVLL != nil {
			p.dispatchBVLL(ctx, srcAddr, frame)
		}
	default:
		p.dispatchBVLL(ctx, srcAddr, frame)
	}
}

func (p *Port) dispatchBVLL(ctx context.Context, src npdu.NetworkAddress, frame bvll.Frame) {
	if p.onBVLL == nil {
		return
	}
	reply, err := p.onBVLL(ctx, src, frame)
	if err != nil {
		logger.WarnCtx(ctx, "ipv4: bvll handler failed", logger.Err(err))
		return
	}
	if reply != nil {
		if err := p.SendUnicast(src.Mac, reply.Encode()); err != nil {
			logger.WarnCtx(ctx, "ipv4: bvll reply send failed", logger.Err(err))
		}
	}
}

// SendUnicast emits one original-unicast-NPDU BVLL frame to destMac (a
// 6-byte IP+port MAC).
func (p *Port) SendUnicast(destMac []byte, npduBytes []byte) error {
	addr, err := decodeMac(destMac)
	if err != nil {
		return fmt.Errorf("ipv4: send unicast: %w", err)
	}
	wire := bvll.Frame{Function: bvll.FuncOriginalUnicastNPDU, Body: npduBytes}.Encode()
	return p.write(wire, addr)
}

// SendBroadcast emits one original-broadcast-NPDU BVLL frame to this
// subnet's directed-broadcast address.
func (p *Port) SendBroadcast(npduBytes []byte) error {
	if p.broadcast == nil {
		return fmt.Errorf("ipv4: no broadcast address configured")
	}
	wire := bvll.Frame{Function: bvll.FuncOriginalBroadcastNPDU, Body: npduBytes}.Encode()
	return p.write(wire, p.broadcast)
}

// SendDirectedBroadcast emits a BVLC frame to the directed-broadcast
// address of addr's subnet, derived from mask. Used by a BBMD to reach a
// BDT peer's local subnet.
func (p *Port) SendDirectedBroadcast(addr npdu.NetworkAddress, mask [4]byte, wire []byte) error {
	ua, err := decodeMac(addr.Mac)
	if err != nil {
		return fmt.Errorf("ipv4: directed broadcast: %w", err)
	}
	ip4 := ua.IP.To4()
	if ip4 == nil {
		return fmt.Errorf("ipv4: directed broadcast: not an IPv4 address")
	}
	bcastIP := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		bcastIP[i] = ip4[i] | ^mask[i]
	}
	return p.write(wire, &net.UDPAddr{IP: bcastIP, Port: ua.Port})
}

// SendUnicastAddr sends a raw BVLC wire frame directly to addr — used by
// the BBMD to unicast Forwarded-NPDUs to FDT entries.
func (p *Port) SendUnicastAddr(addr npdu.NetworkAddress, wire []byte) error {
	ua, err := decodeMac(addr.Mac)
	if err != nil {
		return fmt.Errorf("ipv4: send unicast addr: %w", err)
	}
	return p.write(wire, ua)
}

func (p *Port) write(wire []byte, dest *net.UDPAddr) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ipv4: port not started")
	}
	_, err := conn.WriteToUDP(wire, dest)
	if err != nil {
		p.metrics.PacketDropped("send-error")
		return fmt.Errorf("ipv4: write to %s: %w", dest, err)
	}
	return nil
}

// LocalMac is this station's 6-byte IP+port MAC.
func (p *Port) LocalMac() []byte { return encodeMac(p.localAddr) }

// MaxNPDULength is 1476, the conventional BACnet/IP NPDU ceiling.
func (p *Port) MaxNPDULength() int { return maxNPDULength }

func encodeMac(addr *net.UDPAddr) []byte {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	mac := make([]byte, 6)
	copy(mac, ip4)
	mac[4] = byte(addr.Port >> 8)
	mac[5] = byte(addr.Port)
	return mac
}

func decodeMac(mac []byte) (*net.UDPAddr, error) {
	if len(mac) != 6 {
		return nil, fmt.Errorf("ipv4: mac must be 6 bytes, got %d", len(mac))
	}
	port := int(mac[4])<<8 | int(mac[5])
	return &net.UDPAddr{IP: net.IPv4(mac[0], mac[1], mac[2], mac[3]), Port: port}, nil
}

func isClosedErr(err error) bool {
	var netErr *net.OpError
	if ok := asNetOpError(err, &netErr); ok {
		return netErr.Err.Error() == "use of closed network connection"
	}
	return false
}

func asNetOpError(err error, target **net.OpError) bool {
	op, ok := err.(*net.OpError)
	if ok {
		*target = op
	}
	return ok
}

// retryGrace is the BVLL retransmit grace period.
const retryGrace = 500 * time.Millisecond
