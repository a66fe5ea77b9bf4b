package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// EnableDisable is Device-Communication-Control's requested communication
// state (clause 16.1, "BACnetEnableDisable").
const (
	CommEnable          uint32 = 0
	CommDisable         uint32 = 1
	CommDisableInitiation uint32 = 2
)

// DeviceCommunicationControlRequest temporarily enables, disables, or
// disables-with-initiation-only this device's application-layer traffic
// (clause 16.1).
type DeviceCommunicationControlRequest struct {
	TimeDuration *uint32 // minutes; nil means indefinite
	EnableDisable uint32
	Password      *string
}

// EncodeDeviceCommunicationControlRequest serializes a
// Device-Communication-Control-Request.
func EncodeDeviceCommunicationControlRequest(r DeviceCommunicationControlRequest) []byte {
	var buf []byte
	if r.TimeDuration != nil {
		buf = append(buf, tag.EncodeContextUnsigned(0, uint64(*r.TimeDuration))...)
	}
	buf = append(buf, tag.EncodeContextEnumerated(1, r.EnableDisable)...)
	if r.Password != nil {
		buf = append(buf, tag.EncodeContextCharacterString(2, *r.Password)...)
	}
	return buf
}

// DecodeDeviceCommunicationControlRequest parses a
// Device-Communication-Control-Request.
func DecodeDeviceCommunicationControlRequest(buf []byte) (DeviceCommunicationControlRequest, error) {
	var r DeviceCommunicationControlRequest
	offset := 0
	if hasMoreContextTag(buf, offset, 0) {
		d, next, err := decodeContextUnsigned(buf, offset, 0)
		if err != nil {
			return DeviceCommunicationControlRequest{}, fmt.Errorf("decode device-communication-control time-duration: %w", err)
		}
		dur := uint32(d)
		r.TimeDuration = &dur
		offset = next
	}
	enable, offset, err := decodeContextEnumerated(buf, offset, 1)
	if err != nil {
		return DeviceCommunicationControlRequest{}, fmt.Errorf("decode device-communication-control enable-disable: %w", err)
	}
	r.EnableDisable = enable
	if hasMoreContextTag(buf, offset, 2) {
		pw, _, err := decodeContextCharacterString(buf, offset, 2)
		if err != nil {
			return DeviceCommunicationControlRequest{}, fmt.Errorf("decode device-communication-control password: %w", err)
		}
		r.Password = &pw
	}
	return r, nil
}

// ReinitializedState is Reinitialize-Device's requested state (clause
// 16.4, "BACnetReinitializedStateOfDevice").
const (
	ReinitColdstart        uint32 = 0
	ReinitWarmstart        uint32 = 1
	ReinitStartBackup      uint32 = 2
	ReinitEndBackup        uint32 = 3
	ReinitStartRestore     uint32 = 4
	ReinitEndRestore       uint32 = 5
	ReinitAbortRestore     uint32 = 6
)

// ReinitializeDeviceRequest asks this device to reboot or transition into a
// backup/restore mode (clause 16.4).
type ReinitializeDeviceRequest struct {
	ReinitializedStateOfDevice uint32
	Password                   *string
}

// EncodeReinitializeDeviceRequest serializes a Reinitialize-Device-Request.
func EncodeReinitializeDeviceRequest(r ReinitializeDeviceRequest) []byte {
	buf := tag.EncodeContextEnumerated(0, r.ReinitializedStateOfDevice)
	if r.Password != nil {
		buf = append(buf, tag.EncodeContextCharacterString(1, *r.Password)...)
	}
	return buf
}

// DecodeReinitializeDeviceRequest parses a Reinitialize-Device-Request.
func DecodeReinitializeDeviceRequest(buf []byte) (ReinitializeDeviceRequest, error) {
	state, offset, err := decodeContextEnumerated(buf, 0, 0)
	if err != nil {
		return ReinitializeDeviceRequest{}, fmt.Errorf("decode reinitialize-device state: %w", err)
	}
	r := ReinitializeDeviceRequest{ReinitializedStateOfDevice: state}
	if hasMoreContextTag(buf, offset, 1) {
		pw, _, err := decodeContextCharacterString(buf, offset, 1)
		if err != nil {
			return ReinitializeDeviceRequest{}, fmt.Errorf("decode reinitialize-device password: %w", err)
		}
		r.Password = &pw
	}
	return r, nil
}

// TimeSynchronizationRequest carries the broadcast local-time announcement
// of clause 16.7; UTCTimeSynchronizationRequest (clause 16.8) shares the
// identical wire shape but is sent as a distinct unconfirmed service so
// recipients that track UTC instead of local time can tell them apart.
type TimeSynchronizationRequest struct {
	Date tag.Date
	Time tag.Time
}

// EncodeTimeSynchronizationRequest serializes a
// (UTC-)Time-Synchronization-Request.
func EncodeTimeSynchronizationRequest(r TimeSynchronizationRequest) []byte {
	buf := tag.EncodeDate(r.Date)
	return append(buf, tag.EncodeTime(r.Time)...)
}

// DecodeTimeSynchronizationRequest parses a
// (UTC-)Time-Synchronization-Request.
func DecodeTimeSynchronizationRequest(buf []byte) (TimeSynchronizationRequest, error) {
	d, offset, err := tag.DecodePrimitive(buf, 0, tag.AppDate)
	if err != nil {
		return TimeSynchronizationRequest{}, fmt.Errorf("decode time-synchronization date: %w", err)
	}
	t, _, err := tag.DecodePrimitive(buf, offset, tag.AppTime)
	if err != nil {
		return TimeSynchronizationRequest{}, fmt.Errorf("decode time-synchronization time: %w", err)
	}
	return TimeSynchronizationRequest{Date: d.(tag.Date), Time: t.(tag.Time)}, nil
}
