package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// CreateObjectRequest asks the device to instantiate a new object, either
// a fully-identified one or one of a given type with an
// implementation-chosen instance number, optionally initialized with a
// list of property values (clause 15.3).
type CreateObjectRequest struct {
	ObjectType     uint16
	ObjectInstance *uint32 // nil means "implementation chooses the instance"
	InitialValues  []PropertyValueWrite
}

// EncodeCreateObjectRequest serializes a CreateObject-Request.
func EncodeCreateObjectRequest(r CreateObjectRequest) []byte {
	var specifier []byte
	if r.ObjectInstance != nil {
		specifier = tag.EncodeObjectIdentifier(tag.ObjectIdentifier{Type: r.ObjectType, Instance: *r.ObjectInstance})
	} else {
		specifier = tag.EncodeUnsigned(uint64(r.ObjectType))
	}
	buf := tag.EncodeContextTagged(0, specifier)
	if len(r.InitialValues) == 0 {
		return buf
	}
	var inner []byte
	for _, v := range r.InitialValues {
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
	return buf
}

// DecodeCreateObjectRequest parses a CreateObject-Request.
func DecodeCreateObjectRequest(buf []byte) (CreateObjectRequest, error) {
	specifier, offset, err := decodeConstructedValue(buf, 0, 0)
	if err != nil {
		return CreateObjectRequest{}, fmt.Errorf("decode create-object object-specifier: %w", err)
	}
	t, _, err := tag.DecodeTag(specifier, 0)
	if err != nil {
		return CreateObjectRequest{}, fmt.Errorf("decode create-object object-specifier tag: %w", err)
	}
	var r CreateObjectRequest
	if t.Class == tag.ClassApplication && t.Number == tag.AppObjectID {
		oid, _, err := tag.DecodePrimitive(specifier, 0, tag.AppObjectID)
		if err != nil {
			return CreateObjectRequest{}, fmt.Errorf("decode create-object object-identifier: %w", err)
		}
		id := oid.(tag.ObjectIdentifier)
		r.ObjectType = id.Type
		r.ObjectInstance = &id.Instance
	} else {
		v, _, err := tag.DecodePrimitive(specifier, 0, tag.AppUnsigned)
		if err != nil {
			return CreateObjectRequest{}, fmt.Errorf("decode create-object object-type: %w", err)
		}
		r.ObjectType = uint16(v.(uint64))
	}

	if hasOpeningTag(buf, offset, 1) {
		inner, _, err := decodeConstructedValue(buf, offset, 1)
		if err != nil {
			return CreateObjectRequest{}, fmt.Errorf("decode create-object initial-values: %w", err)
		}
		pos := 0
		for pos < len(inner) {
			pid, next, err := decodeContextEnumerated(inner, pos, 0)
			if err != nil {
				return CreateObjectRequest{}, fmt.Errorf("decode create-object initial-value property-identifier: %w", err)
			}
			v := PropertyValueWrite{PropertyID: pid}
			if hasMoreContextTag(inner, next, 1) {
				idx, n2, err := decodeContextUnsigned(inner, next, 1)
				if err != nil {
					return CreateObjectRequest{}, fmt.Errorf("decode create-object initial-value array-index: %w", err)
				}
				idx32 := uint32(idx)
				v.ArrayIndex = &idx32
				next = n2
			}
			value, n3, err := decodeConstructedValue(inner, next, 2)
			if err != nil {
				return CreateObjectRequest{}, fmt.Errorf("decode create-object initial-value value: %w", err)
			}
			v.Value = value
			pos = n3
			if hasMoreContextTag(inner, pos, 3) {
				prio, n4, err := decodeContextUnsigned(inner, pos, 3)
				if err != nil {
					return CreateObjectRequest{}, fmt.Errorf("decode create-object initial-value priority: %w", err)
				}
				p := uint8(prio)
				v.Priority = &p
				pos = n4
			}
			r.InitialValues = append(r.InitialValues, v)
		}
	}
	return r, nil
}

// CreateObjectACK reports the identifier the device assigned the new
// object (clause 15.3).
type CreateObjectACK struct {
	ObjectID tag.ObjectIdentifier
}

// EncodeCreateObjectACK serializes a CreateObject-ACK.
func EncodeCreateObjectACK(a CreateObjectACK) []byte {
	return tag.EncodeObjectIdentifier(a.ObjectID)
}

// DecodeCreateObjectACK parses a CreateObject-ACK.
func DecodeCreateObjectACK(buf []byte) (CreateObjectACK, error) {
	oid, _, err := tag.DecodePrimitive(buf, 0, tag.AppObjectID)
	if err != nil {
		return CreateObjectACK{}, fmt.Errorf("decode create-object-ack object-identifier: %w", err)
	}
	return CreateObjectACK{ObjectID: oid.(tag.ObjectIdentifier)}, nil
}

// DeleteObjectRequest names the object to remove (clause 15.4).
type DeleteObjectRequest struct {
	ObjectID tag.ObjectIdentifier
}

// EncodeDeleteObjectRequest serializes a DeleteObject-Request.
func EncodeDeleteObjectRequest(r DeleteObjectRequest) []byte {
	return tag.EncodeObjectIdentifier(r.ObjectID)
}

// DecodeDeleteObjectRequest parses a DeleteObject-Request.
func DecodeDeleteObjectRequest(buf []byte) (DeleteObjectRequest, error) {
	oid, _, err := tag.DecodePrimitive(buf, 0, tag.AppObjectID)
	if err != nil {
		return DeleteObjectRequest{}, fmt.Errorf("decode delete-object object-identifier: %w", err)
	}
	return DeleteObjectRequest{ObjectID: oid.(tag.ObjectIdentifier)}, nil
}
