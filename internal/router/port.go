// Package router implements the multi-port forwarding engine:
// the routing table, NPDU forwarding between heterogeneous data links,
// and the Who-Is-Router-To-Network / I-Am-Router-To-Network exchange
// the router drives.
package router

// Port is the uniform transport interface a data-link adapter
// exposes to the router. Exactly one Port exists per bound adapter
// instance; the router never reaches into adapter-specific state.
type Port interface {
	// ID names this port for logging and the routing table.
	ID() string

	// SendUnicast emits one NPDU-framed datagram to destMac.
	SendUnicast(destMac []byte, npdu []byte) error

	// SendBroadcast emits one NPDU-framed datagram to the link's
	// broadcast domain.
	SendBroadcast(npdu []byte) error

	// LocalMac is this station's MAC address on the port's link, in the
	// link's native encoding.
	LocalMac() []byte

	// MaxNPDULength is the link MTU minus link header.
	MaxNPDULength() int
}

// Frame is one inbound datagram handed to the router by a port, already
// stripped of link framing (BVLL/BVLL6/BVLC-SC).
type Frame struct {
	Port   string
	SrcMac []byte
	NPDU   []byte
}
