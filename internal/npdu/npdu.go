package npdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ProtocolVersion is the only NPDU version this codec recognizes.
const ProtocolVersion uint8 = 1

// ErrTruncated and ErrOptionOverflow mirror internal/tag's decoder
// discipline: malformed wire data is a distinct, never-panicking error
// from an application-layer reject.
var (
	ErrTruncated          = errors.New("npdu: truncated buffer")
	ErrOptionOverflow     = errors.New("npdu: option field exceeds buffer")
	ErrUnsupportedVersion = errors.New("npdu: unsupported protocol version")
)

// Priority is the two-bit network-priority field carried in the control
// byte's low bits.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityUrgent
	PriorityCritical
	PriorityLifeSafety
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical"
	case PriorityLifeSafety:
		return "life-safety"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// Control is the decoded form of the NPDU control byte.
type Control struct {
	IsNetworkMessage bool // bit 7: network-layer message, not an APDU
	HasDestination   bool // bit 5: destination network/MAC fields present
	HasSource        bool // bit 3: source network/MAC fields present
	ExpectingReply   bool // bit 2: data-expecting-reply
	Priority         Priority
}

func (c Control) encode() byte {
	var b byte
	if c.IsNetworkMessage {
		b |= 0x80
	}
	if c.HasDestination {
		b |= 0x20
	}
	if c.HasSource {
		b |= 0x08
	}
	if c.ExpectingReply {
		b |= 0x04
	}
	b |= byte(c.Priority) & 0x03
	return b
}

func decodeControl(b byte) Control {
	return Control{
		IsNetworkMessage: b&0x80 != 0,
		HasDestination:   b&0x20 != 0,
		HasSource:        b&0x08 != 0,
		ExpectingReply:   b&0x04 != 0,
		Priority:         Priority(b & 0x03),
	}
}

// Network-layer message types (clause 6.2). Security-related message
// types are out of scope.
const (
	MsgWhoIsRouterToNetwork    uint8 = 0x00
	MsgIAmRouterToNetwork      uint8 = 0x01
	MsgICouldBeRouterToNetwork uint8 = 0x02
	MsgRejectMessageToNetwork  uint8 = 0x03
	MsgRouterBusyToNetwork     uint8 = 0x04
	MsgRouterAvailableToNetwork uint8 = 0x05
	MsgInitializeRoutingTable  uint8 = 0x06
	MsgInitializeRoutingTableAck uint8 = 0x07
	MsgWhatIsNetworkNumber     uint8 = 0x12
	MsgNetworkNumberIs         uint8 = 0x13
)

// Reject-Message-To-Network reason codes (clause 6.4.4).
const (
	RejectOtherError                  uint8 = 0
	RejectUnknownNetwork               uint8 = 1
	RejectRouterBusy                   uint8 = 2
	RejectUnknownMessageType           uint8 = 3
	RejectSourceNetworkUnreachable     uint8 = 4
	RejectBadLength                    uint8 = 5
	RejectBadVersion                   uint8 = 6
)

// NPDU is the decoded network-layer header plus the routing fields
// clause 6.2 describes. HopCount is present only when a destination is
// specified; the codec never modifies it, since decrementing belongs to
// the router.
type NPDU struct {
	Control     Control
	Destination *NetworkAddress // nil if not present
	Source      *NetworkAddress // nil if not present
	HopCount    uint8           // valid iff Destination != nil
	MessageType uint8           // valid iff Control.IsNetworkMessage
	VendorID    uint16          // valid iff MessageType >= 0x80 (vendor-proprietary)
}

// EncodeNPDU serializes an NPDU header. payload is either the raw APDU
// bytes (IsNetworkMessage == false) or the network-message body
// (IsNetworkMessage == true); it is appended verbatim after the header.
func EncodeNPDU(n NPDU, payload []byte) []byte {
	buf := make([]byte, 0, 16+len(payload))
	buf = append(buf, ProtocolVersion, n.Control.encode())

	if n.Destination != nil {
		buf = appendNetAndMac(buf, n.Destination.Net, n.Destination.Mac)
	}
	if n.Source != nil {
		buf = appendNetAndMac(buf, n.Source.Net, n.Source.Mac)
	}
	if n.Destination != nil {
		buf = append(buf, n.HopCount)
	}
	if n.Control.IsNetworkMessage {
		buf = append(buf, n.MessageType)
		if n.MessageType >= 0x80 {
			var v [2]byte
			binary.BigEndian.PutUint16(v[:], n.VendorID)
			buf = append(buf, v[:]...)
		}
	}

	return append(buf, payload...)
}

func appendNetAndMac(buf []byte, net uint16, mac []byte) []byte {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], net)
	buf = append(buf, n[:]...)
	macLen := len(mac)
	if macLen > 255 {
		macLen = 255
		mac = mac[:255]
	}
	buf = append(buf, byte(macLen))
	return append(buf, mac...)
}

// DecodeNPDU parses an NPDU header from buf and returns the decoded
// header plus the remaining payload bytes (the APDU, or the network-
// message body if isNetworkMessage). It rejects headers whose declared
// option blocks exceed the buffer without panicking.
func DecodeNPDU(buf []byte) (n NPDU, payload []byte, err error) {
	if len(buf) < 2 {
		return NPDU{}, nil, fmt.Errorf("decode npdu header: %w", ErrTruncated)
	}
	if buf[0] != ProtocolVersion {
		return NPDU{}, nil, fmt.Errorf("npdu version 0x%02x: %w", buf[0], ErrUnsupportedVersion)
	}

	n.Control = decodeControl(buf[1])
	offset := 2

	if n.Control.HasDestination {
		addr, next, err := decodeNetAndMac(buf, offset)
		if err != nil {
			return NPDU{}, nil, fmt.Errorf("decode destination: %w", err)
		}
		n.Destination = &addr
		offset = next
	}

	if n.Control.HasSource {
		addr, next, err := decodeNetAndMac(buf, offset)
		if err != nil {
			return NPDU{}, nil, fmt.Errorf("decode source: %w", err)
		}
		n.Source = &addr
		offset = next
	}

	if n.Control.HasDestination {
		if offset >= len(buf) {
			return NPDU{}, nil, fmt.Errorf("decode hop count: %w", ErrTruncated)
		}
		n.HopCount = buf[offset]
		offset++
	}

	if n.Control.IsNetworkMessage {
		if offset >= len(buf) {
			return NPDU{}, nil, fmt.Errorf("decode network message type: %w", ErrTruncated)
		}
		n.MessageType = buf[offset]
		offset++
		if n.MessageType >= 0x80 {
			if offset+2 > len(buf) {
				return NPDU{}, nil, fmt.Errorf("decode vendor id: %w", ErrTruncated)
			}
			n.VendorID = binary.BigEndian.Uint16(buf[offset : offset+2])
			offset += 2
		}
	}

	return n, buf[offset:], nil
}

func decodeNetAndMac(buf []byte, offset int) (NetworkAddress, int, error) {
	if offset+3 > len(buf) {
		return NetworkAddress{}, offset, ErrTruncated
	}
	net := binary.BigEndian.Uint16(buf[offset : offset+2])
	macLen := int(buf[offset+2])
	offset += 3
	if offset+macLen > len(buf) {
		return NetworkAddress{}, offset, ErrOptionOverflow
	}
	mac := append([]byte(nil), buf[offset:offset+macLen]...)
	return NetworkAddress{Net: net, Mac: mac}, offset + macLen, nil
}
