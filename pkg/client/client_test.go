package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bactalk/bacstack/internal/tag"
)

func TestParseObjectID(t *testing.T) {
	t.Run("name comma instance", func(t *testing.T) {
		oid, err := ParseObjectID("analog-input,1")
		require.NoError(t, err)
		assert.Equal(t, tag.ObjectIdentifier{Type: 0, Instance: 1}, oid)
	})

	t.Run("name colon instance", func(t *testing.T) {
		oid, err := ParseObjectID("device:4194302")
		require.NoError(t, err)
		assert.Equal(t, tag.ObjectIdentifier{Type: 8, Instance: 4194302}, oid)
	})

	t.Run("numeric type accepted", func(t *testing.T) {
		oid, err := ParseObjectID("132,7")
		require.NoError(t, err)
		assert.Equal(t, tag.ObjectIdentifier{Type: 132, Instance: 7}, oid)
	})

	t.Run("case insensitive", func(t *testing.T) {
		oid, err := ParseObjectID("Analog-Value, 9")
		require.NoError(t, err)
		assert.Equal(t, tag.ObjectIdentifier{Type: 2, Instance: 9}, oid)
	})

	t.Run("missing separator rejected", func(t *testing.T) {
		_, err := ParseObjectID("analog-input")
		require.Error(t, err)
	})

	t.Run("unknown type name rejected", func(t *testing.T) {
		_, err := ParseObjectID("warp-core,1")
		require.Error(t, err)
	})

	t.Run("instance past 22 bits rejected", func(t *testing.T) {
		_, err := ParseObjectID("device,4194304")
		require.Error(t, err)
	})
}

func TestParsePropertyID(t *testing.T) {
	id, err := ParsePropertyID("present-value")
	require.NoError(t, err)
	assert.Equal(t, uint32(85), id)

	id, err = ParsePropertyID("371")
	require.NoError(t, err)
	assert.Equal(t, uint32(371), id)

	_, err = ParsePropertyID("flux-capacitance")
	require.Error(t, err)
}

func TestValueRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		value any
	}{
		{"real", float32(72.5)},
		{"double", float64(-0.25)},
		{"unsigned", uint64(42)},
		{"signed", int64(-7)},
		{"bool", true},
		{"string", "Zone 4 Temperature"},
		{"octets", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"object id", tag.ObjectIdentifier{Type: 0, Instance: 1}},
		{"null", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeValue(tc.value)
			require.NoError(t, err)
			decoded, err := DecodeValue(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.value, decoded)
		})
	}
}

func TestEncodeValueRejectsUnknownType(t *testing.T) {
	_, err := EncodeValue(struct{ X int }{1})
	require.Error(t, err)
}

func TestReinitStateCodes(t *testing.T) {
	for state, want := range map[string]uint32{
		"coldstart":     0,
		"warmstart":     1,
		"start-backup":  2,
		"end-backup":    3,
		"start-restore": 4,
		"end-restore":   5,
		"abort-restore": 6,
	} {
		code, err := reinitStateCode(state)
		require.NoError(t, err)
		assert.Equal(t, want, code, state)
	}

	_, err := reinitStateCode("sideways-start")
	require.Error(t, err)
}

func TestObjectTypeName(t *testing.T) {
	assert.Equal(t, "analog-input", ObjectTypeName(0))
	assert.Equal(t, "device", ObjectTypeName(8))
	assert.Equal(t, "999", ObjectTypeName(999))
}
