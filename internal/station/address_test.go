package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPv4HostPort(t *testing.T) {
	t.Run("host with port", func(t *testing.T) {
		addr, err := parseIPv4HostPort("192.168.1.5:47809", 47808)
		require.NoError(t, err)
		assert.Equal(t, []byte{192, 168, 1, 5, 0xBA, 0xC1}, addr.Mac)
	})

	t.Run("host without port gets default", func(t *testing.T) {
		addr, err := parseIPv4HostPort("10.0.0.7", 47808)
		require.NoError(t, err)
		assert.Equal(t, []byte{10, 0, 0, 7, 0xBA, 0xC0}, addr.Mac)
	})

	t.Run("ipv6 literal rejected", func(t *testing.T) {
		_, err := parseIPv4HostPort("[::1]:47808", 47808)
		require.Error(t, err)
	})
}

func TestParseIPv4Mask(t *testing.T) {
	mask, err := parseIPv4Mask("255.255.255.0")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{255, 255, 255, 0}, mask)

	mask, err = parseIPv4Mask("")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{255, 255, 255, 255}, mask, "empty mask means host-directed")

	_, err = parseIPv4Mask("not-a-mask")
	require.Error(t, err)
}

func TestSplitAddressNetwork(t *testing.T) {
	net, rest, ok := splitAddressNetwork("2601:10.0.0.5")
	assert.True(t, ok)
	assert.Equal(t, uint16(2601), net)
	assert.Equal(t, "10.0.0.5", rest)

	_, rest, ok = splitAddressNetwork("10.0.0.5:47808")
	assert.False(t, ok, "dotted quad before the colon is not a network number")
	assert.Equal(t, "10.0.0.5:47808", rest)

	_, _, ok = splitAddressNetwork("99999:10.0.0.5")
	assert.False(t, ok, "network numbers are 16-bit")
}

func TestLooksLikeHost(t *testing.T) {
	assert.True(t, looksLikeHost("10.0.0.5"))
	assert.True(t, looksLikeHost("bacnet.example.com"))
	assert.False(t, looksLikeHost("c0a80101bac0"))
	assert.False(t, looksLikeHost("*"))
}
