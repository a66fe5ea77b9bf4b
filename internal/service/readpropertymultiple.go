package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// PropertyReference is one { property-identifier, optional array-index }
// pair inside a ReadAccessSpecification (clause 15.7).
type PropertyReference struct {
	PropertyID uint32
	ArrayIndex *uint32
}

// ReadAccessSpecification names one object plus the properties requested
// from it (clause 15.7).
type ReadAccessSpecification struct {
	ObjectID           tag.ObjectIdentifier
	PropertyReferences []PropertyReference
}

// EncodeReadPropertyMultipleRequest serializes the list of
// ReadAccessSpecifications making up an RPM request body.
func EncodeReadPropertyMultipleRequest(specs []ReadAccessSpecification) []byte {
	var buf []byte
	for _, spec := range specs {
		buf = append(buf, tag.EncodeContextObjectIdentifier(0, spec.ObjectID)...)
		var refs []byte
		for _, ref := range spec.PropertyReferences {
			refs = append(refs, tag.EncodeContextEnumerated(0, ref.PropertyID)...)
			if ref.ArrayIndex != nil {
				refs = append(refs, tag.EncodeContextUnsigned(1, uint64(*ref.ArrayIndex))...)
			}
		}
		buf = append(buf, tag.EncodeContextTagged(1, refs)...)
	}
	return buf
}

// DecodeReadPropertyMultipleRequest parses an RPM request body.
func DecodeReadPropertyMultipleRequest(buf []byte) ([]ReadAccessSpecification, error) {
	var out []ReadAccessSpecification
	offset := 0
	for offset < len(buf) {
		oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
		if err != nil {
			return nil, fmt.Errorf("decode rpm object-identifier: %w", err)
		}
		refsBytes, next2, err := decodeConstructedValue(buf, next, 1)
		if err != nil {
			return nil, fmt.Errorf("decode rpm property references: %w", err)
		}
		refs, err := decodePropertyReferences(refsBytes)
		if err != nil {
			return nil, fmt.Errorf("decode rpm property references: %w", err)
		}
		out = append(out, ReadAccessSpecification{ObjectID: oid, PropertyReferences: refs})
		offset = next2
	}
	return out, nil
}

func decodePropertyReferences(buf []byte) ([]PropertyReference, error) {
	var out []PropertyReference
	offset := 0
	for offset < len(buf) {
		pid, next, err := decodeContextEnumerated(buf, offset, 0)
		if err != nil {
			return nil, err
		}
		ref := PropertyReference{PropertyID: pid}
		if hasMoreContextTag(buf, next, 1) {
			idx, next2, err := decodeContextUnsigned(buf, next, 1)
			if err != nil {
				return nil, err
			}
			idx32 := uint32(idx)
			ref.ArrayIndex = &idx32
			next = next2
		}
		out = append(out, ref)
		offset = next
	}
	return out, nil
}

// PropertyResult is one property's outcome in a ReadAccessResult: either
// Value is set, or Error is (mutually exclusive).
type PropertyResult struct {
	PropertyID uint32
	ArrayIndex *uint32
	Value      []byte
	ErrorClass *uint32
	ErrorCode  *uint32
}

// ReadAccessResult is one object's worth of per-property results in an
// RPM-ACK (clause 15.7).
type ReadAccessResult struct {
	ObjectID tag.ObjectIdentifier
	Results  []PropertyResult
}

// EncodeReadPropertyMultipleACK serializes the list of ReadAccessResults
// making up an RPM-ACK body.
func EncodeReadPropertyMultipleACK(results []ReadAccessResult) []byte {
	var buf []byte
	for _, r := range results {
		buf = append(buf, tag.EncodeContextObjectIdentifier(0, r.ObjectID)...)
		var inner []byte
		for _, pr := range r.Results {
			inner = append(inner, tag.EncodeContextEnumerated(2, pr.PropertyID)...)
			if pr.ArrayIndex != nil {
				inner = append(inner, tag.EncodeContextUnsigned(3, uint64(*pr.ArrayIndex))...)
			}
			if pr.ErrorClass != nil && pr.ErrorCode != nil {
				errBody := append(tag.EncodeContextEnumerated(0, *pr.ErrorClass), tag.EncodeContextEnumerated(1, *pr.ErrorCode)...)
				inner = append(inner, tag.EncodeContextTagged(5, errBody)...)
			} else {
				inner = append(inner, tag.EncodeContextTagged(4, pr.Value)...)
			}
		}
		buf = append(buf, tag.EncodeContextTagged(1, inner)...)
	}
	return buf
}

// DecodeReadPropertyMultipleACK parses an RPM-ACK body.
func DecodeReadPropertyMultipleACK(buf []byte) ([]ReadAccessResult, error) {
	var out []ReadAccessResult
	offset := 0
	for offset < len(buf) {
		oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
		if err != nil {
			return nil, fmt.Errorf("decode rpm-ack object-identifier: %w", err)
		}
		innerBytes, next2, err := decodeConstructedValue(buf, next, 1)
		if err != nil {
			return nil, fmt.Errorf("decode rpm-ack results: %w", err)
		}
		results, err := decodePropertyResults(innerBytes)
		if err != nil {
			return nil, fmt.Errorf("decode rpm-ack results: %w", err)
		}
		out = append(out, ReadAccessResult{ObjectID: oid, Results: results})
		offset = next2
	}
	return out, nil
}

func decodePropertyResults(buf []byte) ([]PropertyResult, error) {
	var out []PropertyResult
	offset := 0
	for offset < len(buf) {
		pid, next, err := decodeContextEnumerated(buf, offset, 2)
		if err != nil {
			return nil, err
		}
		pr := PropertyResult{PropertyID: pid}
		if hasMoreContextTag(buf, next, 3) {
			idx, next2, err := decodeContextUnsigned(buf, next, 3)
			if err != nil {
				return nil, err
			}
			idx32 := uint32(idx)
			pr.ArrayIndex = &idx32
			next = next2
		}
		switch {
		case hasOpeningTag(buf, next, 4):
			value, next2, err := decodeConstructedValue(buf, next, 4)
			if err != nil {
				return nil, err
			}
			pr.Value = value
			next = next2
		case hasOpeningTag(buf, next, 5):
			errBody, next2, err := decodeConstructedValue(buf, next, 5)
			if err != nil {
				return nil, err
			}
			class, eoff, err := decodeContextEnumerated(errBody, 0, 0)
			if err != nil {
				return nil, err
			}
			code, _, err := decodeContextEnumerated(errBody, eoff, 1)
			if err != nil {
				return nil, err
			}
			pr.ErrorClass = &class
			pr.ErrorCode = &code
			next = next2
		default:
			return nil, fmt.Errorf("rpm-ack result has neither value nor error tag")
		}
		out = append(out, pr)
		offset = next
	}
	return out, nil
}
