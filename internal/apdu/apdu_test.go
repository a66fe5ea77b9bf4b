package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmedRequestRoundTripUnsegmented(t *testing.T) {
	r := ConfirmedRequest{
		SegmentedResponseAccepted: true,
		MaxSegmentsAccepted:       0,
		MaxAPDUAccepted:           5,
		InvokeID:                  42,
		ServiceChoice:             12,
		ServiceData:               []byte{0xDE, 0xAD},
	}
	encoded := EncodeConfirmedRequest(r)
	decoded, err := DecodeConfirmedRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestConfirmedRequestRoundTripSegmented(t *testing.T) {
	r := ConfirmedRequest{
		Segmented:          true,
		MoreFollows:        true,
		MaxSegmentsAccepted: 3,
		MaxAPDUAccepted:     4,
		InvokeID:            7,
		SequenceNumber:      2,
		ProposedWindowSize:  5,
		ServiceChoice:       15,
		ServiceData:         []byte{0x01, 0x02, 0x03},
	}
	encoded := EncodeConfirmedRequest(r)
	decoded, err := DecodeConfirmedRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestSimpleACKRoundTrip(t *testing.T) {
	a := SimpleACK{InvokeID: 1, ServiceChoice: 8}
	decoded, err := DecodeSimpleACK(EncodeSimpleACK(a))
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}

func TestSegmentACKRoundTrip(t *testing.T) {
	a := SegmentACK{NegativeAck: true, Server: true, InvokeID: 3, SequenceNumber: 9, ActualWindowSize: 4}
	decoded, err := DecodeSegmentACK(EncodeSegmentACK(a))
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}

func TestErrorPDURoundTrip(t *testing.T) {
	e := ErrorPDU{InvokeID: 5, ServiceChoice: 12, ErrorClass: 2, ErrorCode: 31}
	decoded, err := DecodeErrorPDU(EncodeErrorPDU(e))
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}

func TestRejectPDURoundTrip(t *testing.T) {
	r := RejectPDU{InvokeID: 9, Reason: RejectUnrecognizedService}
	decoded, err := DecodeRejectPDU(EncodeRejectPDU(r))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestAbortPDURoundTrip(t *testing.T) {
	a := AbortPDU{InvokeID: 11, Server: true, Reason: AbortTSMTimeout}
	decoded, err := DecodeAbortPDU(EncodeAbortPDU(a))
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}

func TestTypedErrorsImplementError(t *testing.T) {
	var err error = &ApplicationError{ServiceChoice: 1, ErrorClass: 2, ErrorCode: 3}
	assert.Contains(t, err.Error(), "application error")

	err = &RejectError{InvokeID: 1, Reason: RejectInvalidTag}
	assert.Contains(t, err.Error(), "invalid-tag")

	err = &AbortError{InvokeID: 1, Reason: AbortOutOfResources}
	assert.Contains(t, err.Error(), "out-of-resources")

	err = &TimeoutError{InvokeID: 1, Peer: "7:aabbccddeeff"}
	assert.Contains(t, err.Error(), "7:aabbccddeeff")
}

func TestEncodeMaxAPDU(t *testing.T) {
	assert.Equal(t, uint8(5), EncodeMaxAPDU(1476))
	assert.Equal(t, uint8(4), EncodeMaxAPDU(1024))
	assert.Equal(t, uint8(0), EncodeMaxAPDU(50))
}

func TestDecodeConfirmedRequestTruncated(t *testing.T) {
	_, err := DecodeConfirmedRequest([]byte{0x00, 0x00})
	require.ErrorIs(t, err, ErrTruncated)
}
