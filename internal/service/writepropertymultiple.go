package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// PropertyValueWrite is one { property-identifier, optional array-index,
// value, optional priority } group inside a WriteAccessSpecification
// (clause 15.10).
type PropertyValueWrite struct {
	PropertyID uint32
	ArrayIndex *uint32
	Value      []byte
	Priority   *uint8
}

// WriteAccessSpecification names one object plus the properties to write
// on it (clause 15.10).
type WriteAccessSpecification struct {
	ObjectID tag.ObjectIdentifier
	Values   []PropertyValueWrite
}

// EncodeWritePropertyMultipleRequest serializes the list of
// WriteAccessSpecifications making up a WPM request body.
func EncodeWritePropertyMultipleRequest(specs []WriteAccessSpecification) []byte {
	var buf []byte
	for _, spec := range specs {
		buf = append(buf, tag.EncodeContextObjectIdentifier(0, spec.ObjectID)...)
		var inner []byte
		for _, v := range spec.Values {
			inner = append(inner, tag.EncodeContextEnumerated(0, v.PropertyID)...)
			if v.ArrayIndex != nil {
				inner = append(inner, tag.EncodeContextUnsigned(1, uint64(*v.ArrayIndex))...)
			}
			inner = append(inner, tag.EncodeContextTagged(2, v.Value)...)
			if v.Priority != nil {
				inner = append(inner, tag.EncodeContextUnsigned(3, uint64(*v.Priority))...)
			}
		}
		buf = append(buf, tag.EncodeContextTagged(1, inner)...)
	}
	return buf
}

// DecodeWritePropertyMultipleRequest parses a WPM request body.
func DecodeWritePropertyMultipleRequest(buf []byte) ([]WriteAccessSpecification, error) {
	var out []WriteAccessSpecification
	offset := 0
	for offset < len(buf) {
		oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
		if err != nil {
			return nil, fmt.Errorf("decode wpm object-identifier: %w", err)
		}
		innerBytes, next2, err := decodeConstructedValue(buf, next, 1)
		if err != nil {
			return nil, fmt.Errorf("decode wpm values: %w", err)
		}
		values, err := decodePropertyValueWrites(innerBytes)
		if err != nil {
			return nil, fmt.Errorf("decode wpm values: %w", err)
		}
		out = append(out, WriteAccessSpecification{ObjectID: oid, Values: values})
		offset = next2
	}
	return out, nil
}

func decodePropertyValueWrites(buf []byte) ([]PropertyValueWrite, error) {
	var out []PropertyValueWrite
	offset := 0
	for offset < len(buf) {
		pid, next, err := decodeContextEnumerated(buf, offset, 0)
		if err != nil {
			return nil, err
		}
		v := PropertyValueWrite{PropertyID: pid}
		if hasMoreContextTag(buf, next, 1) {
			idx, next2, err := decodeContextUnsigned(buf, next, 1)
			if err != nil {
				return nil, err
			}
			idx32 := uint32(idx)
			v.ArrayIndex = &idx32
			next = next2
		}
		value, next, err := decodeConstructedValue(buf, next, 2)
		if err != nil {
			return nil, err
		}
		v.Value = value
		if hasMoreContextTag(buf, next, 3) {
			prio, next2, err := decodeContextUnsigned(buf, next, 3)
			if err != nil {
				return nil, err
			}
			p := uint8(prio)
			v.Priority = &p
			next = next2
		}
		out = append(out, v)
		offset = next
	}
	return out, nil
}
