package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// WritePropertyRequest is WriteProperty-Request's parameters (clause
// 15.9). Value holds the already application-tag-encoded new value.
type WritePropertyRequest struct {
	ObjectID   tag.ObjectIdentifier
	PropertyID uint32
	ArrayIndex *uint32
	Value      []byte
	Priority   *uint8
}

// EncodeWritePropertyRequest serializes a WriteProperty-Request.
func EncodeWritePropertyRequest(r WritePropertyRequest) []byte {
	buf := tag.EncodeContextObjectIdentifier(0, r.ObjectID)
	buf = append(buf, tag.EncodeContextEnumerated(1, r.PropertyID)...)
	if r.ArrayIndex != nil {
		buf = append(buf, tag.EncodeContextUnsigned(2, uint64(*r.ArrayIndex))...)
	}
	buf = append(buf, tag.EncodeContextTagged(3, r.Value)...)
	if r.Priority != nil {
		buf = append(buf, tag.EncodeContextUnsigned(4, uint64(*r.Priority))...)
	}
	return buf
}

// DecodeWritePropertyRequest parses a WriteProperty-Request.
func DecodeWritePropertyRequest(buf []byte) (WritePropertyRequest, error) {
	oid, offset, err := decodeContextObjectIdentifier(buf, 0, 0)
	if err != nil {
		return WritePropertyRequest{}, fmt.Errorf("decode write-property object-identifier: %w", err)
	}
	pid, offset, err := decodeContextEnumerated(buf, offset, 1)
	if err != nil {
		return WritePropertyRequest{}, fmt.Errorf("decode write-property property-identifier: %w", err)
	}
	r := WritePropertyRequest{ObjectID: oid, PropertyID: pid}
	if hasMoreContextTag(buf, offset, 2) {
		idx, newOffset, err := decodeContextUnsigned(buf, offset, 2)
		if err != nil {
			return WritePropertyRequest{}, fmt.Errorf("decode write-property array-index: %w", err)
		}
		idx32 := uint32(idx)
		r.ArrayIndex = &idx32
		offset = newOffset
	}
	value, offset, err := decodeConstructedValue(buf, offset, 3)
	if err != nil {
		return WritePropertyRequest{}, fmt.Errorf("decode write-property value: %w", err)
	}
	r.Value = value
	if hasMoreContextTag(buf, offset, 4) {
		prio, _, err := decodeContextUnsigned(buf, offset, 4)
		if err != nil {
			return WritePropertyRequest{}, fmt.Errorf("decode write-property priority: %w", err)
		}
		p := uint8(prio)
		r.Priority = &p
	}
	return r, nil
}
