package service

import (
	"testing"

	"github.com/bactalk/bacstack/internal/tag"
)

func TestWhoIsRoundTrip(t *testing.T) {
	low, high := uint32(10), uint32(20)
	encoded := EncodeWhoIs(WhoIsRequest{LowLimit: &low, HighLimit: &high})
	decoded, err := DecodeWhoIs(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded.LowLimit != low || *decoded.HighLimit != high {
		t.Fatalf("got %+v", decoded)
	}
}

func TestWhoIsUnrestrictedRoundTrip(t *testing.T) {
	decoded, err := DecodeWhoIs(EncodeWhoIs(WhoIsRequest{}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.LowLimit != nil || decoded.HighLimit != nil {
		t.Fatalf("expected unrestricted who-is, got %+v", decoded)
	}
}

func TestIAmRoundTrip(t *testing.T) {
	req := IAmRequest{
		DeviceIdentifier:      tag.ObjectIdentifier{Type: 8, Instance: 1001},
		MaxAPDULengthAccepted: 1476,
		SegmentationSupported: SegmentationBoth,
		VendorID:              999,
	}
	decoded, err := DecodeIAm(EncodeIAm(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != req {
		t.Fatalf("got %+v, want %+v", decoded, req)
	}
}

func TestWhoHasByObjectIDRoundTrip(t *testing.T) {
	oid := tag.ObjectIdentifier{Type: 0, Instance: 5}
	req := WhoHasRequest{ObjectID: &oid}
	decoded, err := DecodeWhoHas(EncodeWhoHas(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ObjectID == nil || *decoded.ObjectID != oid {
		t.Fatalf("got %+v", decoded)
	}
}

func TestWhoHasByNameRoundTrip(t *testing.T) {
	name := "AI-1"
	req := WhoHasRequest{ObjectName: &name}
	decoded, err := DecodeWhoHas(EncodeWhoHas(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ObjectName == nil || *decoded.ObjectName != name {
		t.Fatalf("got %+v", decoded)
	}
}

func TestIHaveRoundTrip(t *testing.T) {
	req := IHaveRequest{
		DeviceIdentifier: tag.ObjectIdentifier{Type: 8, Instance: 1},
		ObjectIdentifier: tag.ObjectIdentifier{Type: 0, Instance: 5},
		ObjectName:       "AI-1",
	}
	decoded, err := DecodeIHave(EncodeIHave(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != req {
		t.Fatalf("got %+v, want %+v", decoded, req)
	}
}

func TestReadPropertyRequestRoundTrip(t *testing.T) {
	idx := uint32(2)
	req := ReadPropertyRequest{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		PropertyID: PropPresentValue,
		ArrayIndex: &idx,
	}
	decoded, err := DecodeReadPropertyRequest(EncodeReadPropertyRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ObjectID != req.ObjectID || decoded.PropertyID != req.PropertyID || *decoded.ArrayIndex != idx {
		t.Fatalf("got %+v", decoded)
	}
}

func TestReadPropertyACKRoundTrip(t *testing.T) {
	ack := ReadPropertyACK{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		PropertyID: PropPresentValue,
		Value:      tag.EncodeReal(21.5),
	}
	decoded, err := DecodeReadPropertyACK(EncodeReadPropertyACK(ack))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ObjectID != ack.ObjectID || decoded.PropertyID != ack.PropertyID || string(decoded.Value) != string(ack.Value) {
		t.Fatalf("got %+v", decoded)
	}
}

func TestWritePropertyRequestRoundTrip(t *testing.T) {
	prio := uint8(8)
	req := WritePropertyRequest{
		ObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		PropertyID: PropPresentValue,
		Value:      tag.EncodeReal(72.0),
		Priority:   &prio,
	}
	decoded, err := DecodeWritePropertyRequest(EncodeWritePropertyRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ObjectID != req.ObjectID || string(decoded.Value) != string(req.Value) || *decoded.Priority != prio {
		t.Fatalf("got %+v", decoded)
	}
}

func TestReadPropertyMultipleRoundTrip(t *testing.T) {
	idx := uint32(1)
	specs := []ReadAccessSpecification{
		{
			ObjectID: tag.ObjectIdentifier{Type: 0, Instance: 1},
			PropertyReferences: []PropertyReference{
				{PropertyID: PropPresentValue},
				{PropertyID: PropObjectName, ArrayIndex: &idx},
			},
		},
		{
			ObjectID:           tag.ObjectIdentifier{Type: 0, Instance: 2},
			PropertyReferences: []PropertyReference{{PropertyID: PropPropertyList}},
		},
	}
	decoded, err := DecodeReadPropertyMultipleRequest(EncodeReadPropertyMultipleRequest(specs))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 || len(decoded[0].PropertyReferences) != 2 {
		t.Fatalf("got %+v", decoded)
	}
	if *decoded[0].PropertyReferences[1].ArrayIndex != idx {
		t.Fatalf("array index mismatch: %+v", decoded[0].PropertyReferences[1])
	}
}

func TestReadPropertyMultipleACKRoundTripWithErrorResult(t *testing.T) {
	class, code := ErrorClassProperty, ErrorCodeUnknownProperty
	results := []ReadAccessResult{
		{
			ObjectID: tag.ObjectIdentifier{Type: 0, Instance: 1},
			Results: []PropertyResult{
				{PropertyID: PropPresentValue, Value: tag.EncodeReal(21.5)},
				{PropertyID: 9999, ErrorClass: &class, ErrorCode: &code},
			},
		},
	}
	decoded, err := DecodeReadPropertyMultipleACK(EncodeReadPropertyMultipleACK(results))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].Results) != 2 {
		t.Fatalf("got %+v", decoded)
	}
	if decoded[0].Results[0].Value == nil || decoded[0].Results[1].ErrorCode == nil {
		t.Fatalf("value/error mismatch: %+v", decoded[0].Results)
	}
	if *decoded[0].Results[1].ErrorCode != code {
		t.Fatalf("got error code %d, want %d", *decoded[0].Results[1].ErrorCode, code)
	}
}

func TestWritePropertyMultipleRoundTrip(t *testing.T) {
	prio := uint8(5)
	specs := []WriteAccessSpecification{
		{
			ObjectID: tag.ObjectIdentifier{Type: 0, Instance: 1},
			Values: []PropertyValueWrite{
				{PropertyID: PropPresentValue, Value: tag.EncodeReal(72.0), Priority: &prio},
			},
		},
	}
	decoded, err := DecodeWritePropertyMultipleRequest(EncodeWritePropertyMultipleRequest(specs))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].Values) != 1 {
		t.Fatalf("got %+v", decoded)
	}
	if *decoded[0].Values[0].Priority != prio {
		t.Fatalf("got priority %d, want %d", *decoded[0].Values[0].Priority, prio)
	}
}

func TestSubscribeCOVRoundTrip(t *testing.T) {
	confirmed := true
	lifetime := uint32(300)
	req := SubscribeCOVRequest{
		SubscriberProcessID:          1,
		MonitoredObjectID:            tag.ObjectIdentifier{Type: 0, Instance: 1},
		IssueConfirmedNotifications: &confirmed,
		Lifetime:                     &lifetime,
	}
	decoded, err := DecodeSubscribeCOVRequest(EncodeSubscribeCOVRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SubscriberProcessID != req.SubscriberProcessID || *decoded.Lifetime != lifetime || *decoded.IssueConfirmedNotifications != confirmed {
		t.Fatalf("got %+v", decoded)
	}
}

func TestCOVNotificationRoundTrip(t *testing.T) {
	n := COVNotification{
		SubscriberProcessID: 1,
		InitiatingDeviceID:  tag.ObjectIdentifier{Type: 8, Instance: 1001},
		MonitoredObjectID:   tag.ObjectIdentifier{Type: 0, Instance: 1},
		TimeRemaining:       120,
		Values: []PropertyValue{
			{PropertyID: PropPresentValue, Value: tag.EncodeReal(72.0)},
		},
	}
	decoded, err := DecodeCOVNotification(EncodeCOVNotification(n))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.MonitoredObjectID != n.MonitoredObjectID || len(decoded.Values) != 1 {
		t.Fatalf("got %+v", decoded)
	}
}

func TestDeviceCommunicationControlRoundTrip(t *testing.T) {
	duration := uint32(10)
	pw := "secret"
	req := DeviceCommunicationControlRequest{
		TimeDuration:  &duration,
		EnableDisable: CommDisable,
		Password:      &pw,
	}
	decoded, err := DecodeDeviceCommunicationControlRequest(EncodeDeviceCommunicationControlRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded.TimeDuration != duration || decoded.EnableDisable != CommDisable || *decoded.Password != pw {
		t.Fatalf("got %+v", decoded)
	}
}

func TestReinitializeDeviceRoundTrip(t *testing.T) {
	pw := "secret"
	req := ReinitializeDeviceRequest{ReinitializedStateOfDevice: ReinitWarmstart, Password: &pw}
	decoded, err := DecodeReinitializeDeviceRequest(EncodeReinitializeDeviceRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ReinitializedStateOfDevice != ReinitWarmstart || *decoded.Password != pw {
		t.Fatalf("got %+v", decoded)
	}
}

func TestTimeSynchronizationRoundTrip(t *testing.T) {
	req := TimeSynchronizationRequest{
		Date: tag.Date{Year: 2026, Month: 7, Day: 29, Weekday: 3},
		Time: tag.Time{Hour: 14, Minute: 30, Second: 0, Hundredths: 0},
	}
	decoded, err := DecodeTimeSynchronizationRequest(EncodeTimeSynchronizationRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != req {
		t.Fatalf("got %+v, want %+v", decoded, req)
	}
}

func TestTextMessageRoundTripWithClassNumber(t *testing.T) {
	classNum := uint32(7)
	req := TextMessageRequest{
		TextMessageSourceDevice: tag.ObjectIdentifier{Type: 8, Instance: 1001},
		MessageClassNumber:      &classNum,
		MessagePriority:         MessagePriorityUrgent,
		Message:                 "fire alarm active",
	}
	decoded, err := DecodeTextMessageRequest(EncodeTextMessageRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Message != req.Message || decoded.MessageClassNumber == nil || *decoded.MessageClassNumber != classNum {
		t.Fatalf("got %+v", decoded)
	}
}

func TestTextMessageRoundTripWithClassName(t *testing.T) {
	className := "alarms"
	req := TextMessageRequest{
		TextMessageSourceDevice: tag.ObjectIdentifier{Type: 8, Instance: 1001},
		MessageClassName:        &className,
		MessagePriority:         MessagePriorityNormal,
		Message:                 "routine notice",
	}
	decoded, err := DecodeTextMessageRequest(EncodeTextMessageRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.MessageClassName == nil || *decoded.MessageClassName != className {
		t.Fatalf("got %+v", decoded)
	}
}
