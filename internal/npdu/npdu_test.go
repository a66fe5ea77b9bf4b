package npdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressForms(t *testing.T) {
	t.Run("global broadcast", func(t *testing.T) {
		a, err := ParseAddress("*")
		require.NoError(t, err)
		assert.True(t, a.IsGlobalBroadcast())
	})

	t.Run("remote broadcast", func(t *testing.T) {
		a, err := ParseAddress("12:*")
		require.NoError(t, err)
		assert.True(t, a.IsRemoteBroadcast())
		assert.Equal(t, uint16(12), a.Net)
	})

	t.Run("invalid hex rejected", func(t *testing.T) {
		_, err := ParseAddress("zz")
		require.Error(t, err)
	})

	t.Run("net-prefixed hex mac", func(t *testing.T) {
		a, err := ParseAddress("7:c0a80101bac0")
		require.NoError(t, err)
		assert.Equal(t, uint16(7), a.Net)
		assert.Equal(t, []byte{0xc0, 0xa8, 0x01, 0x01, 0xba, 0xc0}, a.Mac)
	})

	t.Run("string round-trip", func(t *testing.T) {
		a := NetworkAddress{Net: 3, Mac: []byte{0xde, 0xad}}
		parsed, err := ParseAddress(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	})
}

func TestNPDULocalUnicastRoundTrip(t *testing.T) {
	n := NPDU{Control: Control{Priority: PriorityNormal}}
	apdu := []byte{0x01, 0x02, 0x03}

	encoded := EncodeNPDU(n, apdu)
	decoded, payload, err := DecodeNPDU(encoded)
	require.NoError(t, err)
	assert.Equal(t, apdu, payload)
	assert.Nil(t, decoded.Destination)
	assert.Nil(t, decoded.Source)
}

func TestNPDURoutedRoundTrip(t *testing.T) {
	n := NPDU{
		Control: Control{
			HasDestination: true,
			HasSource:      true,
			ExpectingReply: true,
			Priority:       PriorityUrgent,
		},
		Destination: &NetworkAddress{Net: 5, Mac: []byte{0x01, 0x02}},
		Source:      &NetworkAddress{Net: 9, Mac: []byte{0xaa, 0xbb, 0xcc}},
		HopCount:    255,
	}
	apdu := []byte{0x10, 0x20}

	encoded := EncodeNPDU(n, apdu)
	decoded, payload, err := DecodeNPDU(encoded)
	require.NoError(t, err)

	assert.Equal(t, apdu, payload)
	require.NotNil(t, decoded.Destination)
	require.NotNil(t, decoded.Source)
	assert.Equal(t, uint16(5), decoded.Destination.Net)
	assert.Equal(t, []byte{0x01, 0x02}, decoded.Destination.Mac)
	assert.Equal(t, uint16(9), decoded.Source.Net)
	assert.Equal(t, uint8(255), decoded.HopCount)
	assert.True(t, decoded.Control.ExpectingReply)
	assert.Equal(t, PriorityUrgent, decoded.Control.Priority)
}

func TestNPDUNetworkMessageRoundTrip(t *testing.T) {
	n := NPDU{
		Control: Control{IsNetworkMessage: true, HasDestination: true},
		Destination: &NetworkAddress{Net: 20},
		HopCount:    255,
		MessageType: MsgWhoIsRouterToNetwork,
	}

	encoded := EncodeNPDU(n, nil)
	decoded, body, err := DecodeNPDU(encoded)
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.True(t, decoded.Control.IsNetworkMessage)
	assert.Equal(t, MsgWhoIsRouterToNetwork, decoded.MessageType)
}

func TestDecodeNPDURejectsShortBuffer(t *testing.T) {
	_, _, err := DecodeNPDU([]byte{0x01})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeNPDURejectsOversizedOption(t *testing.T) {
	// Control byte declares a destination; DNET present but DLEN claims
	// more MAC bytes than the buffer actually has.
	buf := []byte{ProtocolVersion, 0x20, 0x00, 0x05, 0x10, 0xAA, 0xBB}
	_, _, err := DecodeNPDU(buf)
	require.ErrorIs(t, err, ErrOptionOverflow)
}

func TestDecodeNPDURejectsBadVersion(t *testing.T) {
	_, _, err := DecodeNPDU([]byte{0x02, 0x00})
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}
