package bvll

import (
	"encoding/binary"
	"fmt"
)

// SC message types (BACnet/SC, Annex AB). Only the subset needed to carry
// NPDUs and run the WebSocket hub's control handshake is implemented —
// the full connect/disconnect/heartbeat negotiation lives in
// internal/adapter/sc.
type SCMessageType uint8

const (
	SCBVLCResult               SCMessageType = 0x00
	SCEncapsulatedNPDU         SCMessageType = 0x01
	SCAddressResolution        SCMessageType = 0x02
	SCAddressResolutionACK     SCMessageType = 0x03
	SCAdvertisement            SCMessageType = 0x04
	SCAdvertisementSolicitation SCMessageType = 0x05
	SCConnectRequest           SCMessageType = 0x06
	SCConnectAccept            SCMessageType = 0x07
	SCDisconnectRequest        SCMessageType = 0x08
	SCDisconnectACK            SCMessageType = 0x09
	SCHeartbeatRequest         SCMessageType = 0x0A
	SCHeartbeatACK             SCMessageType = 0x0B
)

// SC control-flag bits (clause AB.1.4.1).
const (
	scControlDestVMACPresent = 0x01
	scControlOriginVMACPresent = 0x02
	scControlDestOptionsPresent = 0x04
	scControlDataOptionsPresent = 0x08
)

// scVMACLen is the fixed 6-byte BACnet/SC virtual MAC length.
const scVMACLen = 6

// SCFrame is a decoded BVLC-SC message: function, control flags, a 2-byte
// message id, and optional originating/destination VMACs. Header and data
// options (clause AB.1.5) are carried as opaque bytes — none of the
// option types this implementation emits require interpreting them, but a
// peer's options must still be preserved across a forwarded frame.
type SCFrame struct {
	Function    SCMessageType
	MessageID   uint16
	DestVMAC    []byte // 6 bytes, optional
	OriginVMAC  []byte // 6 bytes, optional
	DestOptions []byte // opaque, optional
	DataOptions []byte // opaque, optional
	Body        []byte
}

// Encode serializes an SCFrame. The 4-byte BVLC-SC common header (clause
// AB.1.3: function byte, control byte, 2-byte message id) is followed by
// whichever optional fields the control flags declare.
func (f SCFrame) Encode() []byte {
	var control byte
	if len(f.DestVMAC) == scVMACLen {
		control |= scControlDestVMACPresent
	}
	if len(f.OriginVMAC) == scVMACLen {
		control |= scControlOriginVMACPresent
	}
	if len(f.DestOptions) > 0 {
		control |= scControlDestOptionsPresent
	}
	if len(f.DataOptions) > 0 {
		control |= scControlDataOptionsPresent
	}

	buf := make([]byte, 4, 4+len(f.DestVMAC)+len(f.OriginVMAC)+len(f.DestOptions)+len(f.DataOptions)+len(f.Body))
	buf[0] = byte(f.Function)
	buf[1] = control
	binary.BigEndian.PutUint16(buf[2:4], f.MessageID)

	buf = append(buf, f.DestVMAC...)
	buf = append(buf, f.OriginVMAC...)
	if len(f.DestOptions) > 0 {
		buf = append(buf, byte(len(f.DestOptions)))
		buf = append(buf, f.DestOptions...)
	}
	if len(f.DataOptions) > 0 {
		buf = append(buf, byte(len(f.DataOptions)))
		buf = append(buf, f.DataOptions...)
	}
	return append(buf, f.Body...)
}

// DecodeSC parses a BVLC-SC message body (the portion of a WebSocket
// binary message after any outer framing the transport itself imposes).
func DecodeSC(raw []byte) (SCFrame, error) {
	if len(raw) < 4 {
		return SCFrame{}, fmt.Errorf("decode bvlc-sc header: %w", ErrTruncated)
	}

	f := SCFrame{Function: SCMessageType(raw[0])}
	control := raw[1]
	f.MessageID = binary.BigEndian.Uint16(raw[2:4])
	offset := 4

	if control&scControlDestVMACPresent != 0 {
		if offset+scVMACLen > len(raw) {
			return SCFrame{}, fmt.Errorf("decode dest vmac: %w", ErrTruncated)
		}
		f.DestVMAC = append([]byte(nil), raw[offset:offset+scVMACLen]...)
		offset += scVMACLen
	}
	if control&scControlOriginVMACPresent != 0 {
		if offset+scVMACLen > len(raw) {
			return SCFrame{}, fmt.Errorf("decode origin vmac: %w", ErrTruncated)
		}
		f.OriginVMAC = append([]byte(nil), raw[offset:offset+scVMACLen]...)
		offset += scVMACLen
	}

	// Header options, when present, are themselves length-prefixed
	// (1-byte length + payload); this codec stores them opaquely for
	// pass-through rather than interpreting option types, none of which
	// this implementation needs to act on.
	if control&scControlDestOptionsPresent != 0 {
		opts, next, err := readOpaqueOptionBlock(raw, offset)
		if err != nil {
			return SCFrame{}, fmt.Errorf("decode dest options: %w", err)
		}
		f.DestOptions = opts
		offset = next
	}
	if control&scControlDataOptionsPresent != 0 {
		opts, next, err := readOpaqueOptionBlock(raw, offset)
		if err != nil {
			return SCFrame{}, fmt.Errorf("decode data options: %w", err)
		}
		f.DataOptions = opts
		offset = next
	}

	f.Body = raw[offset:]
	return f, nil
}

func readOpaqueOptionBlock(raw []byte, offset int) ([]byte, int, error) {
	if offset >= len(raw) {
		return nil, offset, ErrTruncated
	}
	length := int(raw[offset])
	offset++
	if offset+length > len(raw) {
		return nil, offset, ErrTruncated
	}
	return append([]byte(nil), raw[offset:offset+length]...), offset + length, nil
}
