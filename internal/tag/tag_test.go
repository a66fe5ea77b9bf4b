package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsignedRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 254, 255, 65535, 65536, 1 << 32, 1<<64 - 1}

	for _, v := range cases {
		encoded := EncodeUnsigned(v)
		tg, pos, err := DecodeTag(encoded, 0)
		require.NoError(t, err)
		assert.Equal(t, ClassApplication, tg.Class)
		assert.Equal(t, AppUnsigned, tg.Number)

		got, _, err := DecodeUnsigned(encoded, pos, tg.Length)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestSignedRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 127, -128, 200, -200, 1 << 20, -(1 << 20)}

	for _, v := range cases {
		encoded := EncodeSigned(v)
		tg, pos, err := DecodeTag(encoded, 0)
		require.NoError(t, err)
		assert.Equal(t, AppSigned, tg.Number)

		got, _, err := DecodeSigned(encoded, pos, tg.Length)
		require.NoError(t, err)
		assert.Equal(t, v, got, "value %d", v)
	}
}

func TestBooleanLVTEncoding(t *testing.T) {
	t.Run("true uses a single byte", func(t *testing.T) {
		encoded := EncodeBoolean(true)
		require.Len(t, encoded, 1)
		tg, _, err := DecodeTag(encoded, 0)
		require.NoError(t, err)
		assert.True(t, DecodeBoolean(tg.Length))
	})

	t.Run("false uses a single byte", func(t *testing.T) {
		encoded := EncodeBoolean(false)
		require.Len(t, encoded, 1)
		tg, _, err := DecodeTag(encoded, 0)
		require.NoError(t, err)
		assert.False(t, DecodeBoolean(tg.Length))
	})
}

func TestRealRoundTrip(t *testing.T) {
	encoded := EncodeReal(72.5)
	tg, pos, err := DecodeTag(encoded, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(4), tg.Length)

	got, _, err := DecodeReal(encoded, pos, tg.Length)
	require.NoError(t, err)
	assert.InDelta(t, 72.5, got, 0.0001)
}

func TestCharacterStringRoundTrip(t *testing.T) {
	encoded := EncodeCharacterString("AHU-1")
	tg, pos, err := DecodeTag(encoded, 0)
	require.NoError(t, err)

	got, _, err := DecodeCharacterString(encoded, pos, tg.Length)
	require.NoError(t, err)
	assert.Equal(t, "AHU-1", got)
}

func TestCharacterStringUnknownCharset(t *testing.T) {
	encoded := EncodeCharacterString("x")
	// Corrupt the charset byte (first byte of the value, right after the header).
	encoded[1] = 0x04

	tg, pos, err := DecodeTag(encoded, 0)
	require.NoError(t, err)

	_, _, err = DecodeCharacterString(encoded, pos, tg.Length)
	require.ErrorIs(t, err, ErrUnknownCharacterSet)
}

func TestObjectIdentifierRoundTrip(t *testing.T) {
	id := ObjectIdentifier{Type: 0, Instance: 1234}
	encoded := EncodeObjectIdentifier(id)
	tg, pos, err := DecodeTag(encoded, 0)
	require.NoError(t, err)

	got, _, err := DecodeObjectIdentifier(encoded, pos, tg.Length)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestBitStringRoundTrip(t *testing.T) {
	bs := BitString{UnusedBits: 3, Bytes: []byte{0b10110000}}
	encoded := EncodeBitString(bs)
	tg, pos, err := DecodeTag(encoded, 0)
	require.NoError(t, err)

	got, _, err := DecodeBitString(encoded, pos, tg.Length)
	require.NoError(t, err)
	assert.Equal(t, bs, got)
}

func TestContextTaggedStructureRoundTrip(t *testing.T) {
	inner := EncodeContextUnsigned(0, 42)
	inner = append(inner, EncodeContextCharacterString(1, "hello")...)
	wrapped := EncodeContextTagged(3, inner)

	extracted, next, err := ExtractContextValue(wrapped, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, len(wrapped), next)
	assert.Equal(t, inner, extracted)

	// And the nested values decode correctly out of the extracted bytes.
	v, pos, err := ExtractContextValue(extracted, 0, 0)
	require.NoError(t, err)
	got, _, err := DecodeUnsigned(v, 0, uint32(len(v)))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	s, _, err := ExtractContextValue(extracted, pos, 1)
	require.NoError(t, err)
	str, _, err := DecodeCharacterString(s, 0, uint32(len(s)))
	require.NoError(t, err)
	assert.Equal(t, "hello", str)
}

func TestExtractContextValueMismatchedClosing(t *testing.T) {
	buf := appendOpeningTag(nil, 2)
	buf = appendClosingTag(buf, 9) // wrong context number

	_, _, err := ExtractContextValue(buf, 0, 2)
	require.ErrorIs(t, err, ErrMismatchedClosingTag)
}

func TestDecodeTagTruncatedBuffer(t *testing.T) {
	_, _, err := DecodeTag(nil, 0)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodePrimitiveLengthExceedsBuffer(t *testing.T) {
	// Tag header claims a 10-byte unsigned value but supplies none.
	buf := []byte{byte(AppUnsigned<<4) | 5, 10}
	_, _, err := DecodePrimitive(buf, 0, AppUnsigned)
	require.ErrorIs(t, err, ErrLengthExceedsBuffer)
}

func TestExtendedLengthEncoding(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	encoded := EncodeOctetString(data)

	tg, pos, err := DecodeTag(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), tg.Length)

	got, _, err := DecodeOctetString(encoded, pos, tg.Length)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTagNumberExtension(t *testing.T) {
	// Context tag number 20 exceeds the 4-bit inline range and must use the
	// one-byte extension.
	encoded := EncodeContextUnsigned(20, 7)
	tg, pos, err := DecodeTag(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(20), tg.Number)

	got, _, err := DecodeUnsigned(encoded, pos, tg.Length)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}
