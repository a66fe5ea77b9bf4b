// Package bvll implements the BACnet Virtual Link Layer framing shared by
// the IPv4 and IPv6 data-link adapters: BVLL (BACnet/IP) and BVLL6
// (BACnet/IPv6) share the same function-code vocabulary and differ only in
// header layout, so both are modeled here as two Frame variants with one
// shared FunctionCode type.
package bvll

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type byte values distinguishing BACnet/IP from BACnet/IPv6 framing.
const (
	TypeIPv4 uint8 = 0x81
	TypeIPv6 uint8 = 0x82
)

// FunctionCode identifies the BVLL/BVLL6 operation. Both link types share
// this vocabulary (clause J.2 for IPv4, clause U for IPv6).
type FunctionCode uint8

const (
	FuncResult                       FunctionCode = 0x00
	FuncWriteBroadcastDistributionTable FunctionCode = 0x01
	FuncReadBroadcastDistributionTable FunctionCode = 0x02
	FuncReadBroadcastDistributionTableAck FunctionCode = 0x03
	FuncForwardedNPDU                FunctionCode = 0x04
	FuncRegisterForeignDevice        FunctionCode = 0x05
	FuncReadForeignDeviceTable       FunctionCode = 0x06
	FuncReadForeignDeviceTableAck    FunctionCode = 0x07
	FuncDeleteForeignDeviceTableEntry FunctionCode = 0x08
	FuncDistributeBroadcastToNetwork FunctionCode = 0x09
	FuncOriginalUnicastNPDU          FunctionCode = 0x0A
	FuncOriginalBroadcastNPDU        FunctionCode = 0x0B
)

func (f FunctionCode) String() string {
	switch f {
	case FuncResult:
		return "result"
	case FuncWriteBroadcastDistributionTable:
		return "write-bdt"
	case FuncReadBroadcastDistributionTable:
		return "read-bdt"
	case FuncReadBroadcastDistributionTableAck:
		return "read-bdt-ack"
	case FuncForwardedNPDU:
		return "forwarded-npdu"
	case FuncRegisterForeignDevice:
		return "register-foreign-device"
	case FuncReadForeignDeviceTable:
		return "read-fdt"
	case FuncReadForeignDeviceTableAck:
		return "read-fdt-ack"
	case FuncDeleteForeignDeviceTableEntry:
		return "delete-foreign-device-entry"
	case FuncDistributeBroadcastToNetwork:
		return "distribute-broadcast-to-network"
	case FuncOriginalUnicastNPDU:
		return "original-unicast"
	case FuncOriginalBroadcastNPDU:
		return "original-broadcast"
	default:
		return fmt.Sprintf("function(0x%02x)", uint8(f))
	}
}

// BVLC-Result codes (clause J.2.2 / U.2.2). This implementation produces
// 0 (successful completion) and the Write-BDT, Register-Foreign-Device,
// Delete-Foreign-Device-Table-Entry and Distribute-Broadcast-To-Network
// NAKs; the Read-BDT and Read-FDT NAK codes are defined but never sent.
const (
	ResultSuccess                         uint16 = 0x0000
	ResultWriteBDTNAK                     uint16 = 0x0010
	ResultReadBDTNAK                      uint16 = 0x0020
	ResultRegisterForeignDeviceNAK        uint16 = 0x0030
	ResultReadForeignDeviceTableNAK       uint16 = 0x0040
	ResultDeleteForeignDeviceTableEntryNAK uint16 = 0x0050
	ResultDistributeBroadcastToNetworkNAK uint16 = 0x0060
)

var (
	// ErrTruncated means the frame ended before a complete header or body
	// could be read.
	ErrTruncated = errors.New("bvll: truncated frame")

	// ErrLengthMismatch means the frame's declared total length does not
	// match the number of bytes actually received — such a frame MUST be
	// rejected without action per Annex J.2.
	ErrLengthMismatch = errors.New("bvll: declared length does not match payload length")

	// ErrUnknownType means the leading type byte is neither 0x81 nor 0x82.
	ErrUnknownType = errors.New("bvll: unrecognized type byte")

	// ErrUnknownFunction means the function byte is not one of the codes
	// this codec recognizes.
	ErrUnknownFunction = errors.New("bvll: unrecognized function code")
)

// Frame is a decoded BACnet/IP (BVLL) link-layer frame: type=0x81,
// function byte, 2-byte total length, body.
type Frame struct {
	Function FunctionCode
	Body     []byte
}

// Encode serializes a BVLL frame.
func (f Frame) Encode() []byte {
	total := 4 + len(f.Body)
	buf := make([]byte, 4, total)
	buf[0] = TypeIPv4
	buf[1] = byte(f.Function)
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	return append(buf, f.Body...)
}

// Decode parses a BVLL frame, rejecting it if the declared total length
// does not exactly match len(raw) (Annex J.2's "shall be rejected
// without action").
func Decode(raw []byte) (Frame, error) {
	if len(raw) < 4 {
		return Frame{}, fmt.Errorf("decode bvll header: %w", ErrTruncated)
	}
	if raw[0] != TypeIPv4 {
		return Frame{}, fmt.Errorf("type byte 0x%02x: %w", raw[0], ErrUnknownType)
	}
	declared := binary.BigEndian.Uint16(raw[2:4])
	if int(declared) != len(raw) {
		return Frame{}, fmt.Errorf("declared %d, actual %d: %w", declared, len(raw), ErrLengthMismatch)
	}
	return Frame{Function: FunctionCode(raw[1]), Body: raw[4:]}, nil
}

// Frame6 is a decoded BACnet/IPv6 (BVLL6) link-layer frame: type=0x82,
// function byte, 2-byte total length, and — for the function codes that
// carry them — a source/destination VMAC and/or an originating address,
// followed by the body.
type Frame6 struct {
	Function           FunctionCode
	VMAC               []byte // 3-byte local VMAC, present for Original-* and Register-Foreign-Device
	OriginatingAddress  []byte // 18-byte IPv6+port, present on Forwarded-NPDU / Distribute-Broadcast-To-Network
	Body                []byte
}

// Encode serializes a BVLL6 frame.
func (f Frame6) Encode() []byte {
	body := make([]byte, 0, 3+len(f.VMAC)+len(f.OriginatingAddress)+len(f.Body))
	body = append(body, f.VMAC...)
	body = append(body, f.OriginatingAddress...)
	body = append(body, f.Body...)

	total := 4 + len(body)
	buf := make([]byte, 4, total)
	buf[0] = TypeIPv6
	buf[1] = byte(f.Function)
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	return append(buf, body...)
}

// vmacLen is the fixed 3-byte BACnet/IPv6 virtual MAC length (clause U.1).
const vmacLen = 3

// originatingAddrLen is the fixed 18-byte (16-byte IPv6 address + 2-byte
// port) originating-address field length used by Forwarded-NPDU and
// Distribute-Broadcast-To-Network.
const originatingAddrLen = 18

// Decode6 parses a BVLL6 frame. Which optional fields are present depends
// on the function code, matching clause U.2's per-message layouts.
func Decode6(raw []byte) (Frame6, error) {
	if len(raw) < 4 {
		return Frame6{}, fmt.Errorf("decode bvll6 header: %w", ErrTruncated)
	}
	if raw[0] != TypeIPv6 {
		return Frame6{}, fmt.Errorf("type byte 0x%02x: %w", raw[0], ErrUnknownType)
	}
	declared := binary.BigEndian.Uint16(raw[2:4])
	if int(declared) != len(raw) {
		return Frame6{}, fmt.Errorf("declared %d, actual %d: %w", declared, len(raw), ErrLengthMismatch)
	}

	fn := FunctionCode(raw[1])
	offset := 4
	f := Frame6{Function: fn}

	switch fn {
	case FuncOriginalUnicastNPDU, FuncOriginalBroadcastNPDU, FuncRegisterForeignDevice:
		if offset+vmacLen > len(raw) {
			return Frame6{}, fmt.Errorf("decode bvll6 vmac: %w", ErrTruncated)
		}
		f.VMAC = append([]byte(nil), raw[offset:offset+vmacLen]...)
		offset += vmacLen
	case FuncForwardedNPDU, FuncDistributeBroadcastToNetwork:
		if offset+originatingAddrLen > len(raw) {
			return Frame6{}, fmt.Errorf("decode bvll6 originating address: %w", ErrTruncated)
		}
		f.OriginatingAddress = append([]byte(nil), raw[offset:offset+originatingAddrLen]...)
		offset += originatingAddrLen
	}

	f.Body = raw[offset:]
	return f, nil
}
