package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// Segmentation values for I-Am's segmentation-supported enumeration
// (clause 21, "BACnetSegmentation").
const (
	SegmentationBoth    uint32 = 0
	SegmentationReceive uint32 = 1
	SegmentationSend    uint32 = 2
	SegmentationNone    uint32 = 3
)

// WhoIsRequest is Who-Is's optional device-instance range (clause 16.10).
// Both fields are nil, or both are set.
type WhoIsRequest struct {
	LowLimit  *uint32
	HighLimit *uint32
}

// EncodeWhoIs serializes a Who-Is-Request.
func EncodeWhoIs(r WhoIsRequest) []byte {
	if r.LowLimit == nil || r.HighLimit == nil {
		return nil
	}
	buf := tag.EncodeContextUnsigned(0, uint64(*r.LowLimit))
	return append(buf, tag.EncodeContextUnsigned(1, uint64(*r.HighLimit))...)
}

// DecodeWhoIs parses a Who-Is-Request body, tolerating an absent range.
func DecodeWhoIs(buf []byte) (WhoIsRequest, error) {
	if len(buf) == 0 {
		return WhoIsRequest{}, nil
	}
	low, offset, err := decodeContextUnsigned(buf, 0, 0)
	if err != nil {
		return WhoIsRequest{}, fmt.Errorf("decode who-is low limit: %w", err)
	}
	high, _, err := decodeContextUnsigned(buf, offset, 1)
	if err != nil {
		return WhoIsRequest{}, fmt.Errorf("decode who-is high limit: %w", err)
	}
	lowV, highV := uint32(low), uint32(high)
	return WhoIsRequest{LowLimit: &lowV, HighLimit: &highV}, nil
}

// IAmRequest announces a device's identity and communication parameters
// (clause 16.10).
type IAmRequest struct {
	DeviceIdentifier    tag.ObjectIdentifier
	MaxAPDULengthAccepted uint32
	SegmentationSupported uint32
	VendorID              uint32
}

// EncodeIAm serializes an I-Am-Request.
func EncodeIAm(r IAmRequest) []byte {
	buf := tag.EncodeObjectIdentifier(r.DeviceIdentifier)
	buf = append(buf, tag.EncodeUnsigned(uint64(r.MaxAPDULengthAccepted))...)
	buf = append(buf, tag.EncodeEnumerated(r.SegmentationSupported)...)
	buf = append(buf, tag.EncodeUnsigned(uint64(r.VendorID))...)
	return buf
}

// DecodeIAm parses an I-Am-Request body.
func DecodeIAm(buf []byte) (IAmRequest, error) {
	id, offset, err := tag.DecodePrimitive(buf, 0, tag.AppObjectID)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("decode i-am device identifier: %w", err)
	}
	maxAPDU, offset2, err := tag.DecodePrimitive(buf, offset, tag.AppUnsigned)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("decode i-am max-apdu: %w", err)
	}
	seg, offset3, err := tag.DecodePrimitive(buf, offset2, tag.AppEnumerated)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("decode i-am segmentation: %w", err)
	}
	vendor, _, err := tag.DecodePrimitive(buf, offset3, tag.AppUnsigned)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("decode i-am vendor-id: %w", err)
	}
	return IAmRequest{
		DeviceIdentifier:      id.(tag.ObjectIdentifier),
		MaxAPDULengthAccepted: uint32(maxAPDU.(uint64)),
		SegmentationSupported: seg.(uint32),
		VendorID:              uint32(vendor.(uint64)),
	}, nil
}

// WhoHasRequest identifies an object either by identifier or by name
// (clause 16.9), optionally scoped to a device-instance range.
type WhoHasRequest struct {
	LowLimit       *uint32
	HighLimit      *uint32
	ObjectID       *tag.ObjectIdentifier
	ObjectName     *string
}

// EncodeWhoHas serializes a Who-Has-Request.
func EncodeWhoHas(r WhoHasRequest) []byte {
	var buf []byte
	if r.LowLimit != nil && r.HighLimit != nil {
		buf = append(buf, tag.EncodeContextUnsigned(0, uint64(*r.LowLimit))...)
		buf = append(buf, tag.EncodeContextUnsigned(1, uint64(*r.HighLimit))...)
	}
	switch {
	case r.ObjectID != nil:
		buf = append(buf, tag.EncodeContextObjectIdentifier(2, *r.ObjectID)...)
	case r.ObjectName != nil:
		buf = append(buf, tag.EncodeContextCharacterString(3, *r.ObjectName)...)
	}
	return buf
}

// DecodeWhoHas parses a Who-Has-Request body.
func DecodeWhoHas(buf []byte) (WhoHasRequest, error) {
	var r WhoHasRequest
	offset := 0
	if hasMoreContextTag(buf, offset, 0) {
		low, next, err := decodeContextUnsigned(buf, offset, 0)
		if err != nil {
			return WhoHasRequest{}, fmt.Errorf("decode who-has low limit: %w", err)
		}
		high, next2, err := decodeContextUnsigned(buf, next, 1)
		if err != nil {
			return WhoHasRequest{}, fmt.Errorf("decode who-has high limit: %w", err)
		}
		lowV, highV := uint32(low), uint32(high)
		r.LowLimit, r.HighLimit = &lowV, &highV
		offset = next2
	}
	t, err := peekTag(buf, offset)
	if err != nil {
		return WhoHasRequest{}, fmt.Errorf("decode who-has selector: %w", err)
	}
	switch {
	case t.Class == tag.ClassContext && t.Number == 2:
		oid, _, err := decodeContextObjectIdentifier(buf, offset, 2)
		if err != nil {
			return WhoHasRequest{}, fmt.Errorf("decode who-has object-identifier: %w", err)
		}
		r.ObjectID = &oid
	case t.Class == tag.ClassContext && t.Number == 3:
		name, _, err := decodeContextCharacterString(buf, offset, 3)
		if err != nil {
			return WhoHasRequest{}, fmt.Errorf("decode who-has object-name: %w", err)
		}
		r.ObjectName = &name
	default:
		return WhoHasRequest{}, fmt.Errorf("who-has: unexpected selector tag %s", t)
	}
	return r, nil
}

// IHaveRequest answers Who-Has with the object's device and own
// identifiers plus its name (clause 16.9).
type IHaveRequest struct {
	DeviceIdentifier tag.ObjectIdentifier
	ObjectIdentifier tag.ObjectIdentifier
	ObjectName       string
}

// EncodeIHave serializes an I-Have-Request.
func EncodeIHave(r IHaveRequest) []byte {
	buf := tag.EncodeObjectIdentifier(r.DeviceIdentifier)
	buf = append(buf, tag.EncodeObjectIdentifier(r.ObjectIdentifier)...)
	return append(buf, tag.EncodeCharacterString(r.ObjectName)...)
}

// DecodeIHave parses an I-Have-Request body.
func DecodeIHave(buf []byte) (IHaveRequest, error) {
	device, offset, err := tag.DecodePrimitive(buf, 0, tag.AppObjectID)
	if err != nil {
		return IHaveRequest{}, fmt.Errorf("decode i-have device identifier: %w", err)
	}
	object, offset2, err := tag.DecodePrimitive(buf, offset, tag.AppObjectID)
	if err != nil {
		return IHaveRequest{}, fmt.Errorf("decode i-have object identifier: %w", err)
	}
	name, _, err := tag.DecodePrimitive(buf, offset2, tag.AppCharacterString)
	if err != nil {
		return IHaveRequest{}, fmt.Errorf("decode i-have object name: %w", err)
	}
	return IHaveRequest{
		DeviceIdentifier: device.(tag.ObjectIdentifier),
		ObjectIdentifier: object.(tag.ObjectIdentifier),
		ObjectName:       name.(string),
	}, nil
}
