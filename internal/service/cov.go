package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// SubscribeCOVRequest establishes or cancels a Change-of-Value subscription
// (clause 13.14). IssueConfirmedNotifications and Lifetime are only present
// when the subscription is being established; a request that cancels an
// existing subscription carries only SubscriberProcessIdentifier and
// MonitoredObjectIdentifier.
type SubscribeCOVRequest struct {
	SubscriberProcessID          uint32
	MonitoredObjectID            tag.ObjectIdentifier
	IssueConfirmedNotifications *bool
	Lifetime                     *uint32 // seconds; nil or 0 means indefinite
}

// EncodeSubscribeCOVRequest serializes a SubscribeCOV-Request.
func EncodeSubscribeCOVRequest(r SubscribeCOVRequest) []byte {
	buf := tag.EncodeContextUnsigned(0, uint64(r.SubscriberProcessID))
	buf = append(buf, tag.EncodeContextObjectIdentifier(1, r.MonitoredObjectID)...)
	if r.IssueConfirmedNotifications != nil {
		buf = append(buf, tag.EncodeContextBoolean(2, *r.IssueConfirmedNotifications)...)
	}
	if r.Lifetime != nil {
		buf = append(buf, tag.EncodeContextUnsigned(3, uint64(*r.Lifetime))...)
	}
	return buf
}

// DecodeSubscribeCOVRequest parses a SubscribeCOV-Request.
func DecodeSubscribeCOVRequest(buf []byte) (SubscribeCOVRequest, error) {
	pid, offset, err := decodeContextUnsigned(buf, 0, 0)
	if err != nil {
		return SubscribeCOVRequest{}, fmt.Errorf("decode subscribe-cov subscriber-process-id: %w", err)
	}
	oid, offset, err := decodeContextObjectIdentifier(buf, offset, 1)
	if err != nil {
		return SubscribeCOVRequest{}, fmt.Errorf("decode subscribe-cov monitored-object: %w", err)
	}
	r := SubscribeCOVRequest{SubscriberProcessID: uint32(pid), MonitoredObjectID: oid}
	if hasMoreContextTag(buf, offset, 2) {
		confirmed, newOffset, err := decodeContextBoolean(buf, offset, 2)
		if err != nil {
			return SubscribeCOVRequest{}, fmt.Errorf("decode subscribe-cov issue-confirmed-notifications: %w", err)
		}
		r.IssueConfirmedNotifications = &confirmed
		offset = newOffset
	}
	if hasMoreContextTag(buf, offset, 3) {
		lifetime, _, err := decodeContextUnsigned(buf, offset, 3)
		if err != nil {
			return SubscribeCOVRequest{}, fmt.Errorf("decode subscribe-cov lifetime: %w", err)
		}
		l := uint32(lifetime)
		r.Lifetime = &l
	}
	return r, nil
}

// decodeContextBoolean decodes a context-tagged Boolean, which (unlike an
// application-tagged Boolean) carries its value in a following byte rather
// than in the tag header's LVT nibble.
func decodeContextBoolean(buf []byte, offset int, want uint8) (bool, int, error) {
	t, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return false, offset, err
	}
	if t.Class != tag.ClassContext || t.Number != want {
		return false, offset, &errUnexpected{want: int(want), got: t}
	}
	if t.Length != 1 || pos >= len(buf) {
		return false, offset, fmt.Errorf("context boolean tag %d has length %d, want 1", want, t.Length)
	}
	return buf[pos] != 0, pos + 1, nil
}

// PropertyValue is one { property-identifier, value, optional priority }
// triple reported inside a COV notification's list-of-values (clause
// 13.1.1, "BACnetPropertyValue").
type PropertyValue struct {
	PropertyID uint32
	ArrayIndex *uint32
	Value      []byte
	Priority   *uint8
}

// COVNotification is the shared parameter set of Confirmed- and
// UnconfirmedCOVNotification (clauses 13.1, 13.2): the monitored object's
// identity plus the subscription it is reported against, its remaining
// lifetime, and the changed property values — conventionally Present-Value
// and, for commandable objects, Status-Flags.
type COVNotification struct {
	SubscriberProcessID uint32
	InitiatingDeviceID  tag.ObjectIdentifier
	MonitoredObjectID   tag.ObjectIdentifier
	TimeRemaining       uint32 // seconds
	Values              []PropertyValue
}

// EncodeCOVNotification serializes either the confirmed or the unconfirmed
// notification body; the two share an identical parameter encoding and
// differ only in their APDU framing (clauses 13.1, 13.2).
func EncodeCOVNotification(n COVNotification) []byte {
	buf := tag.EncodeContextUnsigned(0, uint64(n.SubscriberProcessID))
	buf = append(buf, tag.EncodeContextObjectIdentifier(1, n.InitiatingDeviceID)...)
	buf = append(buf, tag.EncodeContextObjectIdentifier(2, n.MonitoredObjectID)...)
	buf = append(buf, tag.EncodeContextUnsigned(3, uint64(n.TimeRemaining))...)
	var inner []byte
	for _, v := range n.Values {
		inner = append(inner, tag.EncodeContextEnumerated(0, v.PropertyID)...)
		if v.ArrayIndex != nil {
			inner = append(inner, tag.EncodeContextUnsigned(1, uint64(*v.ArrayIndex))...)
		}
		inner = append(inner, tag.EncodeContextTagged(2, v.Value)...)
		if v.Priority != nil {
			inner = append(inner, tag.EncodeContextUnsigned(3, uint64(*v.Priority))...)
		}
	}
	return append(buf, tag.EncodeContextTagged(4, inner)...)
}

// DecodeCOVNotification parses a COV notification body.
func DecodeCOVNotification(buf []byte) (COVNotification, error) {
	pid, offset, err := decodeContextUnsigned(buf, 0, 0)
	if err != nil {
		return COVNotification{}, fmt.Errorf("decode cov-notification subscriber-process-id: %w", err)
	}
	device, offset, err := decodeContextObjectIdentifier(buf, offset, 1)
	if err != nil {
		return COVNotification{}, fmt.Errorf("decode cov-notification initiating-device: %w", err)
	}
	object, offset, err := decodeContextObjectIdentifier(buf, offset, 2)
	if err != nil {
		return COVNotification{}, fmt.Errorf("decode cov-notification monitored-object: %w", err)
	}
	remaining, offset, err := decodeContextUnsigned(buf, offset, 3)
	if err != nil {
		return COVNotification{}, fmt.Errorf("decode cov-notification time-remaining: %w", err)
	}
	valuesBytes, _, err := decodeConstructedValue(buf, offset, 4)
	if err != nil {
		return COVNotification{}, fmt.Errorf("decode cov-notification values: %w", err)
	}
	values, err := decodePropertyValues(valuesBytes)
	if err != nil {
		return COVNotification{}, fmt.Errorf("decode cov-notification values: %w", err)
	}
	return COVNotification{
		SubscriberProcessID: uint32(pid),
		InitiatingDeviceID:  device,
		MonitoredObjectID:   object,
		TimeRemaining:       uint32(remaining),
		Values:              values,
	}, nil
}

func decodePropertyValues(buf []byte) ([]PropertyValue, error) {
	var out []PropertyValue
	offset := 0
	for offset < len(buf) {
		pid, next, err := decodeContextEnumerated(buf, offset, 0)
		if err != nil {
			return nil, err
		}
		v := PropertyValue{PropertyID: pid}
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
