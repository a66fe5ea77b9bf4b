package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/pkg/metrics"
)

// APDUHandler is invoked for every NPDU the router decides to deliver
// locally: either it carried no destination, or its destination-network
// is one this router serves directly.
type APDUHandler func(ctx context.Context, src npdu.NetworkAddress, port string, apdu []byte)

type pending struct {
	npdu        []byte
	arrivalPort string
	triesLeft   int
}

// Router owns a station's set of transport ports and the routing table
// learned across them, implementing clause 6.5's forwarding and
// Who-Is-Router-To-Network handling.
type Router struct {
	mu          sync.Mutex
	ports       map[string]Port
	portNetwork map[string]uint16
	table       *table
	onAPDU      APDUHandler
	metrics     metrics.Router
	pendingNet  map[uint16]*pending
}

// New creates a Router with no ports attached yet.
func New(m metrics.Router) *Router {
	if m == nil {
		m = metrics.NoOp().Router
	}
	return &Router{
		ports:       make(map[string]Port),
		portNetwork: make(map[string]uint16),
		table:       newTable(nil),
		metrics:     m,
		pendingNet:  make(map[uint16]*pending),
	}
}

// SetAPDUHandler registers the callback invoked for locally-deliverable
// APDUs. Must be set before HandleFrame is called.
func (r *Router) SetAPDUHandler(h APDUHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAPDU = h
}

// AddPort binds a transport port to the router under the given
// directly-connected network number, and records it as a zero-hop route
// in the routing table.
func (r *Router) AddPort(port Port, network uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports[port.ID()] = port
	r.portNetwork[port.ID()] = network
	r.table.Learn(network, port.ID(), nil)
}

// RouteFor reports the currently-known route to network, if any.
func (r *Router) RouteFor(network uint16) (Route, bool) {
	return r.table.Lookup(network)
}

// HandleFrame processes one inbound datagram per clause 6.5's receive
// algorithm: decode, learn source reachability, deliver locally, forward
// to a known route, or trigger route discovery.
func (r *Router) HandleFrame(ctx context.Context, frame Frame) {
	n, apdu, err := npdu.DecodeNPDU(frame.NPDU)
	if err != nil {
		logger.WarnCtx(ctx, "dropping malformed npdu", logger.Port(frame.Port), logger.Err(err))
		r.metrics.PacketDropped("malformed")
		return
	}

	if n.Source != nil {
		r.table.Learn(n.Source.Net, frame.Port, n.Source.Mac)
		r.metrics.RouteLearned(n.Source.Net)
	}

	if n.Control.IsNetworkMessage {
		r.handleNetworkMessage(ctx, frame, n, apdu)
		return
	}

	if n.Destination == nil {
		r.deliverLocal(ctx, frame, n, apdu)
		return
	}

	if n.Destination.IsGlobalBroadcast() {
		r.deliverLocal(ctx, frame, n, apdu)
		r.rebroadcast(ctx, frame, n, apdu)
		return
	}

	route, ok := r.table.Lookup(n.Destination.Net)
	if !ok {
		r.discoverAndQueue(ctx, frame, n, apdu)
		return
	}
	if route.Port == frame.Port && route.NextHopMac == nil {
		// The destination network is the one this frame arrived on —
		// nothing to forward.
		r.deliverLocal(ctx, frame, n, apdu)
		return
	}
	r.forward(ctx, route, n, apdu)
}

func (r *Router) deliverLocal(ctx context.Context, frame Frame, n npdu.NPDU, apdu []byte) {
	r.mu.Lock()
	handler := r.onAPDU
	r.mu.Unlock()
	if handler == nil {
		return
	}
	src := npdu.NetworkAddress{Mac: frame.SrcMac}
	if n.Source != nil {
		src = *n.Source
	}
	handler(ctx, src, frame.Port, apdu)
}

// rebroadcast re-emits a global broadcast on every other port, matching
// the router's obligation not to let a broadcast die at one network.
func (r *Router) rebroadcast(ctx context.Context, frame Frame, n npdu.NPDU, apdu []byte) {
	r.mu.Lock()
	ports := make([]Port, 0, len(r.ports))
	for id, p := range r.ports {
		if id == frame.Port {
			continue
		}
		ports = append(ports, p)
	}
	r.mu.Unlock()

	out := n
	out.Source = nil
	wire := npdu.EncodeNPDU(out, apdu)
	for _, p := range ports {
		if err := p.SendBroadcast(wire); err != nil {
			logger.WarnCtx(ctx, "rebroadcast failed", logger.Port(p.ID()), logger.Err(err))
			continue
		}
		r.metrics.PacketForwarded(p.ID())
	}
}

func (r *Router) forward(ctx context.Context, route Route, n npdu.NPDU, apdu []byte) {
	if n.HopCount == 0 {
		r.metrics.PacketDropped("hop-count-exhausted")
		return
	}

	r.mu.Lock()
	port, ok := r.ports[route.Port]
	r.mu.Unlock()
	if !ok {
		r.metrics.PacketDropped("unknown-port")
		return
	}

	out := n
	out.HopCount = n.HopCount - 1
	wire := npdu.EncodeNPDU(out, apdu)

	destMac := n.Destination.Mac
	if len(destMac) == 0 {
		if err := port.SendBroadcast(wire); err != nil {
			logger.WarnCtx(ctx, "forward broadcast failed", logger.Port(port.ID()), logger.Err(err))
			r.metrics.PacketDropped("send-error")
			return
		}
	} else {
		nextHop := destMac
		if route.NextHopMac != nil {
			nextHop = route.NextHopMac
		}
		if err := port.SendUnicast(nextHop, wire); err != nil {
			logger.WarnCtx(ctx, "forward unicast failed", logger.Port(port.ID()), logger.Err(err))
			r.metrics.PacketDropped("send-error")
			return
		}
	}
	r.metrics.PacketForwarded(port.ID())
}

// discoverAndQueue handles step 6: the destination network has no known
// route. A Who-Is-Router-To-Network is broadcast on every other port and
// the packet is held for a single retry once a route appears.
func (r *Router) discoverAndQueue(ctx context.Context, frame Frame, n npdu.NPDU, apdu []byte) {
	network := n.Destination.Net
	logger.DebugCtx(ctx, "no route, querying", logger.Network(network))

	r.mu.Lock()
	if _, already := r.pendingNet[network]; already {
		r.mu.Unlock()
		r.metrics.PacketDropped("no-route-already-pending")
		return
	}
	r.pendingNet[network] = &pending{
		npdu:        npdu.EncodeNPDU(n, apdu),
		arrivalPort: frame.Port,
		triesLeft:   1,
	}
	ports := make([]Port, 0, len(r.ports))
	for id, p := range r.ports {
		if id == frame.Port {
			continue
		}
		ports = append(ports, p)
	}
	r.mu.Unlock()

	query := npdu.NPDU{Control: npdu.Control{IsNetworkMessage: true}, MessageType: npdu.MsgWhoIsRouterToNetwork}
	wire := npdu.EncodeNPDU(query, EncodeWhoIsRouterToNetwork(network))
	for _, p := range ports {
		_ = p.SendBroadcast(wire)
	}
}

func (r *Router) handleNetworkMessage(ctx context.Context, frame Frame, n npdu.NPDU, body []byte) {
	switch n.MessageType {
	case npdu.MsgWhoIsRouterToNetwork:
		r.replyIAmRouter(ctx, frame, body)
	case npdu.MsgIAmRouterToNetwork:
		networks, err := DecodeIAmRouterToNetwork(body)
		if err != nil {
			logger.WarnCtx(ctx, "malformed i-am-router-to-network", logger.Err(err))
			return
		}
		for _, network := range networks {
			r.table.Learn(network, frame.Port, frame.SrcMac)
			r.metrics.RouteLearned(network)
			r.retryPending(ctx, network)
		}
	default:
		logger.DebugCtx(ctx, "unhandled network message", logger.PDUType(fmt.Sprintf("0x%02x", n.MessageType)))
	}
}

// replyIAmRouter answers a Who-Is-Router-To-Network with every
// directly-connected network other than the one the query arrived on —
// the split-horizon rule clause 6.6.3.2 requires.
func (r *Router) replyIAmRouter(ctx context.Context, frame Frame, body []byte) {
	requested, specific, err := DecodeWhoIsRouterToNetwork(body)
	if err != nil {
		logger.WarnCtx(ctx, "malformed who-is-router-to-network", logger.Err(err))
		return
	}

	r.mu.Lock()
	arrivalNetwork, hasArrival := r.portNetwork[frame.Port]
	others := make([]uint16, 0, len(r.portNetwork))
	for _, network := range r.portNetwork {
		if hasArrival && network == arrivalNetwork {
			continue
		}
		others = append(others, network)
	}
	port, ok := r.ports[frame.Port]
	r.mu.Unlock()
	if !ok {
		return
	}

	if specific {
		found := false
		for _, network := range others {
			if network == requested {
				found = true
				break
			}
		}
		if !found {
			return
		}
		others = []uint16{requested}
	}
	if len(others) == 0 {
		return
	}

	reply := npdu.NPDU{Control: npdu.Control{IsNetworkMessage: true}, MessageType: npdu.MsgIAmRouterToNetwork}
	wire := npdu.EncodeNPDU(reply, EncodeIAmRouterToNetwork(others))
	if err := port.SendBroadcast(wire); err != nil {
		logger.WarnCtx(ctx, "i-am-router-to-network reply failed", logger.Port(port.ID()), logger.Err(err))
	}
}

// DefaultHopCount is the hop count this station stamps on NPDUs it
// originates itself, per clause 6.2.2's full-budget convention for
// locally-sourced traffic.
const DefaultHopCount uint8 = 255

// Send transmits an application-originated APDU toward dest, wrapping it
// in an NPDU and routing it the same way HandleFrame's forward step
// would. preferredPort names the port to use when dest is on the local
// network (dest.Net == 0) or is a global broadcast's fan-out candidate.
func (r *Router) Send(ctx context.Context, dest npdu.NetworkAddress, preferredPort string, apdu []byte) error {
	if dest.Net == 0 {
		return r.sendLocal(dest, preferredPort, apdu)
	}
	if dest.IsGlobalBroadcast() {
		return r.sendGlobalBroadcast(ctx, apdu)
	}

	route, ok := r.table.Lookup(dest.Net)
	if !ok {
		return fmt.Errorf("router: no route to network %d", dest.Net)
	}
	r.mu.Lock()
	port, ok := r.ports[route.Port]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("router: unknown port %s for network %d", route.Port, dest.Net)
	}

	n := npdu.NPDU{Control: npdu.Control{HasDestination: true}, Destination: &dest, HopCount: DefaultHopCount}
	wire := npdu.EncodeNPDU(n, apdu)
	if len(dest.Mac) == 0 {
		return port.SendBroadcast(wire)
	}
	nextHop := dest.Mac
	if route.NextHopMac != nil {
		nextHop = route.NextHopMac
	}
	return port.SendUnicast(nextHop, wire)
}

func (r *Router) sendLocal(dest npdu.NetworkAddress, preferredPort string, apdu []byte) error {
	r.mu.Lock()
	port, ok := r.ports[preferredPort]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("router: unknown local port %s", preferredPort)
	}
	wire := npdu.EncodeNPDU(npdu.NPDU{}, apdu)
	if len(dest.Mac) == 0 {
		return port.SendBroadcast(wire)
	}
	return port.SendUnicast(dest.Mac, wire)
}

func (r *Router) sendGlobalBroadcast(ctx context.Context, apdu []byte) error {
	r.mu.Lock()
	ports := make([]Port, 0, len(r.ports))
	for _, p := range r.ports {
		ports = append(ports, p)
	}
	r.mu.Unlock()

	dest := npdu.NetworkAddress{Net: npdu.GlobalBroadcastNetwork}
	n := npdu.NPDU{Control: npdu.Control{HasDestination: true}, Destination: &dest, HopCount: DefaultHopCount}
	wire := npdu.EncodeNPDU(n, apdu)
	var firstErr error
	for _, p := range ports {
		if err := p.SendBroadcast(wire); err != nil {
			logger.WarnCtx(ctx, "global broadcast failed", logger.Port(p.ID()), logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// BroadcastLocal wraps apdu in a no-destination NPDU and emits it on
// every attached port's broadcast domain — used for station-originated
// unconfirmed announcements (I-Am, I-Have) that never cross a router hop.
func (r *Router) BroadcastLocal(ctx context.Context, apdu []byte) error {
	r.mu.Lock()
	ports := make([]Port, 0, len(r.ports))
	for _, p := range r.ports {
		ports = append(ports, p)
	}
	r.mu.Unlock()

	wire := npdu.EncodeNPDU(npdu.NPDU{}, apdu)
	var firstErr error
	for _, p := range ports {
		if err := p.SendBroadcast(wire); err != nil {
			logger.WarnCtx(ctx, "local broadcast failed", logger.Port(p.ID()), logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) retryPending(ctx context.Context, network uint16) {
	r.mu.Lock()
	p, ok := r.pendingNet[network]
	if !ok || p.triesLeft <= 0 {
		r.mu.Unlock()
		return
	}
	delete(r.pendingNet, network)
	route, routeOK := r.table.Lookup(network)
	r.mu.Unlock()
	if !routeOK {
		return
	}

	n, apdu, err := npdu.DecodeNPDU(p.npdu)
	if err != nil {
		return
	}
	r.forward(ctx, route, n, apdu)
}
