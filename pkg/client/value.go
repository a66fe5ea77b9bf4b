package client

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// EncodeValue renders a native Go value as a single application-tagged
// primitive, the form ReadProperty-ACK/WriteProperty-Request carry in
// their constructed value parameter. The accepted types mirror what
// DecodeValue hands back: bool, float32, float64, int64, uint64, string,
// []byte, tag.BitString, tag.Date, tag.Time, and tag.ObjectIdentifier.
func EncodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return tag.EncodeNull(), nil
	case bool:
		return tag.EncodeBoolean(val), nil
	case uint64:
		return tag.EncodeUnsigned(val), nil
	case int:
		return tag.EncodeSigned(int64(val)), nil
	case int64:
		return tag.EncodeSigned(val), nil
	case float32:
		return tag.EncodeReal(val), nil
	case float64:
		return tag.EncodeDouble(val), nil
	case []byte:
		return tag.EncodeOctetString(val), nil
	case string:
		return tag.EncodeCharacterString(val), nil
	case tag.BitString:
		return tag.EncodeBitString(val), nil
	case tag.Date:
		return tag.EncodeDate(val), nil
	case tag.Time:
		return tag.EncodeTime(val), nil
	case tag.ObjectIdentifier:
		return tag.EncodeObjectIdentifier(val), nil
	default:
		return nil, fmt.Errorf("client: cannot encode %T as a BACnet value", v)
	}
}

// DecodeValue parses a single application-tagged primitive value into its
// native Go representation, peeking the tag header to pick the right
// decoder. buf must hold exactly one value with no surrounding
// context-tag bracketing (callers strip that first, as
// DecodeReadPropertyACK does).
func DecodeValue(buf []byte) (any, error) {
	t, _, err := tag.DecodeTag(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("client: decode value tag: %w", err)
	}
	if t.Class != tag.ClassApplication {
		return nil, fmt.Errorf("client: expected an application-tagged value, got %s", t.Class)
	}
	v, _, err := tag.DecodePrimitive(buf, 0, t.Number)
	if err != nil {
		return nil, fmt.Errorf("client: decode value: %w", err)
	}
	return v, nil
}
