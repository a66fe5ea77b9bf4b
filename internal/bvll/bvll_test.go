package bvll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{Function: FuncOriginalUnicastNPDU, Body: []byte{0x01, 0x02, 0x03}}
	encoded := f.Encode()

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.Function, decoded.Function)
	assert.Equal(t, f.Body, decoded.Body)
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	f := Frame{Function: FuncOriginalUnicastNPDU, Body: []byte{0xAA}}
	encoded := f.Encode()
	encoded = append(encoded, 0xFF) // actual length no longer matches declared length

	_, err := Decode(encoded)
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDecodeRejectsWrongType(t *testing.T) {
	buf := []byte{0x82, 0x0A, 0x00, 0x04}
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestFrame6OriginalUnicastRoundTrip(t *testing.T) {
	f := Frame6{
		Function: FuncOriginalUnicastNPDU,
		VMAC:     []byte{1, 2, 3},
		Body:     []byte{0xDE, 0xAD},
	}
	encoded := f.Encode()

	decoded, err := Decode6(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.VMAC, decoded.VMAC)
	assert.Equal(t, f.Body, decoded.Body)
}

func TestFrame6ForwardedNPDUCarriesOriginatingAddress(t *testing.T) {
	origin := make([]byte, originatingAddrLen)
	for i := range origin {
		origin[i] = byte(i)
	}
	f := Frame6{
		Function:           FuncForwardedNPDU,
		OriginatingAddress: origin,
		Body:               []byte{0x01},
	}
	encoded := f.Encode()

	decoded, err := Decode6(encoded)
	require.NoError(t, err)
	assert.Equal(t, origin, decoded.OriginatingAddress)
}

func TestSCFrameRoundTripWithVMACsAndOptions(t *testing.T) {
	f := SCFrame{
		Function:   SCEncapsulatedNPDU,
		MessageID:  0x1234,
		DestVMAC:   []byte{1, 2, 3, 4, 5, 6},
		OriginVMAC: []byte{6, 5, 4, 3, 2, 1},
		Body:       []byte{0xAA, 0xBB},
	}
	encoded := f.Encode()

	decoded, err := DecodeSC(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.MessageID, decoded.MessageID)
	assert.Equal(t, f.DestVMAC, decoded.DestVMAC)
	assert.Equal(t, f.OriginVMAC, decoded.OriginVMAC)
	assert.Equal(t, f.Body, decoded.Body)
}

func TestSCFrameWithDataOptions(t *testing.T) {
	f := SCFrame{
		Function:    SCEncapsulatedNPDU,
		MessageID:   7,
		DataOptions: []byte{0x01, 0x02},
		Body:        []byte{0xFF},
	}
	encoded := f.Encode()

	decoded, err := DecodeSC(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.DataOptions, decoded.DataOptions)
	assert.Equal(t, f.Body, decoded.Body)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	_, err := Decode([]byte{0x81, 0x0A})
	require.ErrorIs(t, err, ErrTruncated)
}
