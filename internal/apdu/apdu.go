// Package apdu implements the Application Protocol Data Unit header codec
// (clause 5): the PDU-type-specific first byte(s) that precede every
// service's own encoded parameters, plus the typed errors the rest of the
// stack raises to describe an application-layer failure.
package apdu

import (
	"errors"
	"fmt"
)

// PDUType identifies the kind of APDU (clause 5.1, top nibble of byte 0).
type PDUType uint8

const (
	TypeConfirmedRequest   PDUType = 0x0
	TypeUnconfirmedRequest PDUType = 0x1
	TypeSimpleACK          PDUType = 0x2
	TypeComplexACK         PDUType = 0x3
	TypeSegmentACK         PDUType = 0x4
	TypeError              PDUType = 0x5
	TypeReject              PDUType = 0x6
	TypeAbort               PDUType = 0x7
)

func (t PDUType) String() string {
	switch t {
	case TypeConfirmedRequest:
		return "confirmed-request"
	case TypeUnconfirmedRequest:
		return "unconfirmed-request"
	case TypeSimpleACK:
		return "simple-ack"
	case TypeComplexACK:
		return "complex-ack"
	case TypeSegmentACK:
		return "segment-ack"
	case TypeError:
		return "error"
	case TypeReject:
		return "reject"
	case TypeAbort:
		return "abort"
	default:
		return fmt.Sprintf("pdu-type(0x%x)", uint8(t))
	}
}

// ErrTruncated means the buffer ended before a complete APDU header could
// be read.
var ErrTruncated = errors.New("apdu: truncated buffer")

// ConfirmedRequest is the decoded header of a confirmed-request APDU
// (clause 5.2). MaxSegmentsAccepted/MaxAPDUAccepted are only meaningful
// when Segmented is true for the sender's own future segmented replies.
type ConfirmedRequest struct {
	Segmented         bool
	MoreFollows       bool
	SegmentedResponseAccepted bool
	MaxSegmentsAccepted uint8 // encoded value, see MaxSegmentsTable
	MaxAPDUAccepted     uint8 // encoded value, see MaxAPDUTable
	InvokeID          uint8
	SequenceNumber    uint8 // valid iff Segmented
	ProposedWindowSize uint8 // valid iff Segmented
	ServiceChoice     uint8
	ServiceData       []byte
}

// EncodeConfirmedRequest serializes a confirmed-request APDU header plus
// its already-encoded service parameters.
func EncodeConfirmedRequest(r ConfirmedRequest) []byte {
	var first byte = byte(TypeConfirmedRequest) << 4
	if r.Segmented {
		first |= 0x08
	}
	if r.MoreFollows {
		first |= 0x04
	}
	if r.SegmentedResponseAccepted {
		first |= 0x02
	}

	buf := []byte{first, (r.MaxSegmentsAccepted << 4) | r.MaxAPDUAccepted, r.InvokeID}
	if r.Segmented {
		buf = append(buf, r.SequenceNumber, r.ProposedWindowSize)
	}
	buf = append(buf, r.ServiceChoice)
	return append(buf, r.ServiceData...)
}

// DecodeConfirmedRequest parses a confirmed-request APDU header.
func DecodeConfirmedRequest(buf []byte) (ConfirmedRequest, error) {
	if len(buf) < 3 {
		return ConfirmedRequest{}, fmt.Errorf("decode confirmed-request header: %w", ErrTruncated)
	}
	r := ConfirmedRequest{
		Segmented:                 buf[0]&0x08 != 0,
		MoreFollows:               buf[0]&0x04 != 0,
		SegmentedResponseAccepted: buf[0]&0x02 != 0,
		MaxSegmentsAccepted:       buf[1] >> 4,
		MaxAPDUAccepted:           buf[1] & 0x0F,
		InvokeID:                  buf[2],
	}

	offset := 3
	if r.Segmented {
		if offset+2 > len(buf) {
			return ConfirmedRequest{}, fmt.Errorf("decode segmentation fields: %w", ErrTruncated)
		}
		r.SequenceNumber = buf[offset]
		r.ProposedWindowSize = buf[offset+1]
		offset += 2
	}
	if offset >= len(buf) {
		return ConfirmedRequest{}, fmt.Errorf("decode service choice: %w", ErrTruncated)
	}
	r.ServiceChoice = buf[offset]
	r.ServiceData = buf[offset+1:]
	return r, nil
}

// UnconfirmedRequest is the decoded header of an unconfirmed-request APDU
// (clause 5.3).
type UnconfirmedRequest struct {
	ServiceChoice uint8
	ServiceData   []byte
}

func EncodeUnconfirmedRequest(r UnconfirmedRequest) []byte {
	buf := []byte{byte(TypeUnconfirmedRequest) << 4, r.ServiceChoice}
	return append(buf, r.ServiceData...)
}

func DecodeUnconfirmedRequest(buf []byte) (UnconfirmedRequest, error) {
	if len(buf) < 2 {
		return UnconfirmedRequest{}, fmt.Errorf("decode unconfirmed-request header: %w", ErrTruncated)
	}
	return UnconfirmedRequest{ServiceChoice: buf[1], ServiceData: buf[2:]}, nil
}

// SimpleACK is the decoded header of a simple-ack APDU (clause 5.4).
type SimpleACK struct {
	InvokeID      uint8
	ServiceChoice uint8
}

func EncodeSimpleACK(a SimpleACK) []byte {
	return []byte{byte(TypeSimpleACK) << 4, a.InvokeID, a.ServiceChoice}
}

func DecodeSimpleACK(buf []byte) (SimpleACK, error) {
	if len(buf) < 3 {
		return SimpleACK{}, fmt.Errorf("decode simple-ack: %w", ErrTruncated)
	}
	return SimpleACK{InvokeID: buf[1], ServiceChoice: buf[2]}, nil
}

// ComplexACK is the decoded header of a complex-ack APDU (clause 5.5).
type ComplexACK struct {
	Segmented          bool
	MoreFollows        bool
	InvokeID           uint8
	SequenceNumber     uint8 // valid iff Segmented
	ProposedWindowSize uint8 // valid iff Segmented
	ServiceChoice      uint8
	ServiceData        []byte
}

func EncodeComplexACK(a ComplexACK) []byte {
	var first byte = byte(TypeComplexACK) << 4
	if a.Segmented {
		first |= 0x08
	}
	if a.MoreFollows {
		first |= 0x04
	}
	buf := []byte{first, a.InvokeID}
	if a.Segmented {
		buf = append(buf, a.SequenceNumber, a.ProposedWindowSize)
	}
	buf = append(buf, a.ServiceChoice)
	return append(buf, a.ServiceData...)
}

func DecodeComplexACK(buf []byte) (ComplexACK, error) {
	if len(buf) < 3 {
		return ComplexACK{}, fmt.Errorf("decode complex-ack header: %w", ErrTruncated)
	}
	a := ComplexACK{
		Segmented:   buf[0]&0x08 != 0,
		MoreFollows: buf[0]&0x04 != 0,
		InvokeID:    buf[1],
	}
	offset := 2
	if a.Segmented {
		if offset+2 > len(buf) {
			return ComplexACK{}, fmt.Errorf("decode segmentation fields: %w", ErrTruncated)
		}
		a.SequenceNumber = buf[offset]
		a.ProposedWindowSize = buf[offset+1]
		offset += 2
	}
	if offset >= len(buf) {
		return ComplexACK{}, fmt.Errorf("decode service choice: %w", ErrTruncated)
	}
	a.ServiceChoice = buf[offset]
	a.ServiceData = buf[offset+1:]
	return a, nil
}

// SegmentACK is the decoded header of a segment-ack APDU (clause 5.6).
type SegmentACK struct {
	NegativeAck       bool
	Server            bool
	InvokeID          uint8
	SequenceNumber    uint8
	ActualWindowSize  uint8
}

func EncodeSegmentACK(a SegmentACK) []byte {
	var first byte = byte(TypeSegmentACK) << 4
	if a.NegativeAck {
		first |= 0x02
	}
	if a.Server {
		first |= 0x01
	}
	return []byte{first, a.InvokeID, a.SequenceNumber, a.ActualWindowSize}
}

func DecodeSegmentACK(buf []byte) (SegmentACK, error) {
	if len(buf) < 4 {
		return SegmentACK{}, fmt.Errorf("decode segment-ack: %w", ErrTruncated)
	}
	return SegmentACK{
		NegativeAck:      buf[0]&0x02 != 0,
		Server:           buf[0]&0x01 != 0,
		InvokeID:         buf[1],
		SequenceNumber:   buf[2],
		ActualWindowSize: buf[3],
	}, nil
}

// MaxAPDUTable maps the 4-bit encoded max-APDU-accepted value to the
// actual octet count (clause 5.2.1.2 / Table 5-1 subset the spec requires
// support for).
var MaxAPDUTable = map[uint8]int{
	0: 50,
	1: 128,
	2: 206,
	3: 480,
	4: 1024,
	5: 1476,
}

// EncodeMaxAPDU returns the 4-bit code for an actual max-APDU octet count,
// rounding down to the nearest supported tier if an exact match is not
// found. Callers that need the exact configured value should prefer one
// of the table sizes directly.
func EncodeMaxAPDU(octets int) uint8 {
	best := uint8(0)
	bestSize := 0
	for code, size := range MaxAPDUTable {
		if size <= octets && size > bestSize {
			best = code
			bestSize = size
		}
	}
	return best
}
