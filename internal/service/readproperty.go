package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// ReadPropertyRequest is ReadProperty-Request's parameters (clause 15.5).
type ReadPropertyRequest struct {
	ObjectID    tag.ObjectIdentifier
	PropertyID  uint32
	ArrayIndex  *uint32
}

// EncodeReadPropertyRequest serializes a ReadProperty-Request.
func EncodeReadPropertyRequest(r ReadPropertyRequest) []byte {
	buf := tag.EncodeContextObjectIdentifier(0, r.ObjectID)
	buf = append(buf, tag.EncodeContextEnumerated(1, r.PropertyID)...)
	if r.ArrayIndex != nil {
		buf = append(buf, tag.EncodeContextUnsigned(2, uint64(*r.ArrayIndex))...)
	}
	return buf
}

// DecodeReadPropertyRequest parses a ReadProperty-Request.
func DecodeReadPropertyRequest(buf []byte) (ReadPropertyRequest, error) {
	oid, offset, err := decodeContextObjectIdentifier(buf, 0, 0)
	if err != nil {
		return ReadPropertyRequest{}, fmt.Errorf("decode read-property object-identifier: %w", err)
	}
	pid, offset, err := decodeContextEnumerated(buf, offset, 1)
	if err != nil {
		return ReadPropertyRequest{}, fmt.Errorf("decode read-property property-identifier: %w", err)
	}
	r := ReadPropertyRequest{ObjectID: oid, PropertyID: pid}
	if hasMoreContextTag(buf, offset, 2) {
		idx, _, err := decodeContextUnsigned(buf, offset, 2)
		if err != nil {
			return ReadPropertyRequest{}, fmt.Errorf("decode read-property array-index: %w", err)
		}
		idx32 := uint32(idx)
		r.ArrayIndex = &idx32
	}
	return r, nil
}

// ReadPropertyACK is ReadProperty-ACK's parameters (clause 15.5). Value
// holds the already application-tag-encoded property value(s), exactly
// as reported by the object.
type ReadPropertyACK struct {
	ObjectID   tag.ObjectIdentifier
	PropertyID uint32
	ArrayIndex *uint32
	Value      []byte
}

// EncodeReadPropertyACK serializes a ReadProperty-ACK.
func EncodeReadPropertyACK(a ReadPropertyACK) []byte {
	buf := tag.EncodeContextObjectIdentifier(0, a.ObjectID)
	buf = append(buf, tag.EncodeContextEnumerated(1, a.PropertyID)...)
	if a.ArrayIndex != nil {
		buf = append(buf, tag.EncodeContextUnsigned(2, uint64(*a.ArrayIndex))...)
	}
	return append(buf, tag.EncodeContextTagged(3, a.Value)...)
}

// DecodeReadPropertyACK parses a ReadProperty-ACK. Value is returned with
// its bracketing opening/closing tags stripped.
func DecodeReadPropertyACK(buf []byte) (ReadPropertyACK, error) {
	oid, offset, err := decodeContextObjectIdentifier(buf, 0, 0)
	if err != nil {
		return ReadPropertyACK{}, fmt.Errorf("decode read-property-ack object-identifier: %w", err)
	}
	pid, offset, err := decodeContextEnumerated(buf, offset, 1)
	if err != nil {
		return ReadPropertyACK{}, fmt.Errorf("decode read-property-ack property-identifier: %w", err)
	}
	a := ReadPropertyACK{ObjectID: oid, PropertyID: pid}
	if hasMoreContextTag(buf, offset, 2) {
		idx, newOffset, err := decodeContextUnsigned(buf, offset, 2)
		if err != nil {
			return ReadPropertyACK{}, fmt.Errorf("decode read-property-ack array-index: %w", err)
		}
		idx32 := uint32(idx)
		a.ArrayIndex = &idx32
		offset = newOffset
	}
	value, _, err := decodeConstructedValue(buf, offset, 3)
	if err != nil {
		return ReadPropertyACK{}, fmt.Errorf("decode read-property-ack value: %w", err)
	}
	a.Value = value
	return a, nil
}

// decodeConstructedValue strips the opening/closing context-tag pair
// wrapping a property value and returns the inner bytes plus the offset
// immediately following the closing tag.
func decodeConstructedValue(buf []byte, offset int, tagNum uint8) ([]byte, int, error) {
	open, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return nil, offset, err
	}
	if open.Class != tag.ClassContext || open.Number != tagNum || !open.IsOpening {
		return nil, offset, &errUnexpected{want: int(tagNum), got: open}
	}

	depth := 1
	start := pos
	for pos < len(buf) && depth > 0 {
		t, next, err := tag.DecodeTag(buf, pos)
		if err != nil {
			return nil, offset, err
		}
		switch {
		case t.IsOpening:
			depth++
		case t.IsClosing:
			depth--
			if depth == 0 {
				return buf[start:pos], next, nil
			}
		default:
			next += int(t.Length)
		}
		pos = next
	}
	return nil, offset, fmt.Errorf("unterminated constructed value for context tag %d", tagNum)
}
