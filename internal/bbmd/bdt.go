// Package bbmd implements the Broadcast Distribution Table / Foreign
// Device Table manager: distributing broadcasts across IP subnets
// that don't forward them, and the foreign-device registration client
// that runs on the subnet behind one (BACnet/IP Annex J/clause 6.4).
package bbmd

import (
	"encoding/binary"
	"fmt"

	"github.com/bactalk/bacstack/internal/npdu"
)

// addrLen is the fixed 6-byte BACnet/IP address encoding: 4-byte IPv4
// address plus 2-byte port, big-endian, matching npdu.NetworkAddress's
// Mac field for the IPv4 adapter.
const addrLen = 6

// BDTEntry is one static peer in a Broadcast Distribution Table, plus the
// subnet mask used to compute its directed-broadcast address.
type BDTEntry struct {
	Address npdu.NetworkAddress // 6-byte IPv4+port Mac
	Mask    [4]byte
}

// BroadcastAddress computes the directed-broadcast IP for this entry by
// OR-ing the host bits (the mask's zero bits) onto the entry's address.
func (e BDTEntry) BroadcastAddress() npdu.NetworkAddress {
	if len(e.Address.Mac) != addrLen {
		return e.Address
	}
	bcast := append([]byte(nil), e.Address.Mac...)
	for i := 0; i < 4; i++ {
		bcast[i] |= ^e.Mask[i]
	}
	return npdu.NetworkAddress{Mac: bcast}
}

// EncodeBDT serializes a BDT for a Read-Broadcast-Distribution-Table-Ack
// response: each entry is 6-byte address + 4-byte mask.
func EncodeBDT(entries []BDTEntry) []byte {
	buf := make([]byte, 0, len(entries)*10)
	for _, e := range entries {
		buf = append(buf, padAddr(e.Address.Mac)...)
		buf = append(buf, e.Mask[:]...)
	}
	return buf
}

// DecodeBDT parses a Write-Broadcast-Distribution-Table body or a
// Read-Broadcast-Distribution-Table-Ack body into its entries.
func DecodeBDT(body []byte) ([]BDTEntry, error) {
	if len(body)%10 != 0 {
		return nil, fmt.Errorf("bbmd: bdt body length %d not a multiple of 10", len(body))
	}
	entries := make([]BDTEntry, 0, len(body)/10)
	for i := 0; i < len(body); i += 10 {
		var e BDTEntry
		e.Address = npdu.NetworkAddress{Mac: append([]byte(nil), body[i:i+addrLen]...)}
		copy(e.Mask[:], body[i+addrLen:i+10])
		entries = append(entries, e)
	}
	return entries, nil
}

func padAddr(mac []byte) []byte {
	if len(mac) == addrLen {
		return mac
	}
	out := make([]byte, addrLen)
	copy(out, mac)
	return out
}

func decodeAddr(body []byte, offset int) (npdu.NetworkAddress, error) {
	if offset+addrLen > len(body) {
		return npdu.NetworkAddress{}, fmt.Errorf("bbmd: truncated address")
	}
	return npdu.NetworkAddress{Mac: append([]byte(nil), body[offset:offset+addrLen]...)}, nil
}

func encodeUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}
