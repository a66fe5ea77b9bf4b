package tag

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeTag reads one tag header at buf[offset:] and returns the decoded
// Tag plus the offset immediately following the header. It never reads
// past len(buf) and never panics on truncated or adversarial input.
func DecodeTag(buf []byte, offset int) (Tag, int, error) {
	if offset >= len(buf) {
		return Tag{}, offset, fmt.Errorf("decode tag header: %w", ErrTruncated)
	}

	first := buf[offset]
	pos := offset + 1

	class := ClassApplication
	if first&0x08 != 0 {
		class = ClassContext
	}

	numberNibble := first >> 4
	var number uint8
	if numberNibble == 0x0F {
		if pos >= len(buf) {
			return Tag{}, offset, fmt.Errorf("decode tag number extension: %w", ErrTruncated)
		}
		number = buf[pos]
		pos++
	} else {
		number = numberNibble
	}

	lvt := first & 0x07
	switch lvt {
	case openingLength:
		return Tag{Class: class, Number: number, IsOpening: true, HeaderLen: pos - offset}, pos, nil
	case closingLength:
		return Tag{Class: class, Number: number, IsClosing: true, HeaderLen: pos - offset}, pos, nil
	}

	var length uint32
	if lvt == 5 {
		if pos >= len(buf) {
			return Tag{}, offset, fmt.Errorf("decode extended length: %w", ErrTruncated)
		}
		ext := buf[pos]
		pos++
		switch {
		case ext < 254:
			length = uint32(ext)
		case ext == 254:
			if pos+2 > len(buf) {
				return Tag{}, offset, fmt.Errorf("decode 2-byte extended length: %w", ErrTruncated)
			}
			length = uint32(binary.BigEndian.Uint16(buf[pos : pos+2]))
			pos += 2
		default: // 255
			if pos+4 > len(buf) {
				return Tag{}, offset, fmt.Errorf("decode 4-byte extended length: %w", ErrTruncated)
			}
			length = binary.BigEndian.Uint32(buf[pos : pos+4])
			pos += 4
		}
	} else {
		length = uint32(lvt)
	}

	return Tag{Class: class, Number: number, Length: length, HeaderLen: pos - offset}, pos, nil
}

// takeValue returns buf[offset:offset+length] after validating it does not
// run past the end of the buffer.
func takeValue(buf []byte, offset int, length uint32) ([]byte, error) {
	end := offset + int(length)
	if end > len(buf) || end < offset {
		return nil, fmt.Errorf("read %d-byte value at offset %d: %w", length, offset, ErrLengthExceedsBuffer)
	}
	return buf[offset:end], nil
}

// DecodeUnsigned decodes an Unsigned Integer value from a tag's value
// bytes (0-8 bytes, big-endian, minimum length).
func DecodeUnsigned(buf []byte, offset int, length uint32) (uint64, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return 0, offset, err
	}
	if len(value) > 8 {
		return 0, offset, fmt.Errorf("unsigned value is %d bytes: %w", len(value), ErrIntegerOutOfRange)
	}
	var full [8]byte
	copy(full[8-len(value):], value)
	return binary.BigEndian.Uint64(full[:]), offset + int(length), nil
}

// DecodeSigned decodes a Signed Integer value, sign-extending the leading
// byte's sign bit to a full int64.
func DecodeSigned(buf []byte, offset int, length uint32) (int64, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return 0, offset, err
	}
	if len(value) == 0 || len(value) > 8 {
		return 0, offset, fmt.Errorf("signed value is %d bytes: %w", len(value), ErrIntegerOutOfRange)
	}

	var full [8]byte
	if value[0]&0x80 != 0 {
		for i := range full {
			full[i] = 0xFF
		}
	}
	copy(full[8-len(value):], value)
	return int64(binary.BigEndian.Uint64(full[:])), offset + int(length), nil
}

// DecodeReal decodes a 4-byte IEEE-754 single-precision Real.
func DecodeReal(buf []byte, offset int, length uint32) (float32, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return 0, offset, err
	}
	if len(value) != 4 {
		return 0, offset, fmt.Errorf("real value is %d bytes, want 4: %w", len(value), ErrIntegerOutOfRange)
	}
	return math.Float32frombits(binary.BigEndian.Uint32(value)), offset + int(length), nil
}

// DecodeDouble decodes an 8-byte IEEE-754 double-precision Real.
func DecodeDouble(buf []byte, offset int, length uint32) (float64, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return 0, offset, err
	}
	if len(value) != 8 {
		return 0, offset, fmt.Errorf("double value is %d bytes, want 8: %w", len(value), ErrIntegerOutOfRange)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(value)), offset + int(length), nil
}

// DecodeOctetString decodes a raw Octet String value. The returned slice
// aliases buf; callers that retain it past the buffer's lifetime should
// copy it.
func DecodeOctetString(buf []byte, offset int, length uint32) ([]byte, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return nil, offset, err
	}
	return value, offset + int(length), nil
}

// DecodeCharacterString decodes a Character String value, validating the
// leading charset-indicator byte.
func DecodeCharacterString(buf []byte, offset int, length uint32) (string, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return "", offset, err
	}
	if len(value) == 0 {
		return "", offset, fmt.Errorf("character string has no charset byte: %w", ErrTruncated)
	}
	charset := value[0]
	if charset != characterStringANSIX34 {
		return "", offset, fmt.Errorf("charset indicator 0x%02x: %w", charset, ErrUnknownCharacterSet)
	}
	return string(value[1:]), offset + int(length), nil
}

// DecodeBitString decodes a Bit String value.
func DecodeBitString(buf []byte, offset int, length uint32) (BitString, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return BitString{}, offset, err
	}
	if len(value) == 0 {
		return BitString{}, offset, fmt.Errorf("bit string has no unused-bits byte: %w", ErrTruncated)
	}
	bytesCopy := append([]byte(nil), value[1:]...)
	return BitString{UnusedBits: value[0], Bytes: bytesCopy}, offset + int(length), nil
}

// DecodeEnumerated decodes an Enumerated value, which shares Unsigned's
// minimum-length big-endian encoding.
func DecodeEnumerated(buf []byte, offset int, length uint32) (uint32, int, error) {
	v, newOffset, err := DecodeUnsigned(buf, offset, length)
	if err != nil {
		return 0, offset, err
	}
	if v > math.MaxUint32 {
		return 0, offset, fmt.Errorf("enumerated value %d: %w", v, ErrIntegerOutOfRange)
	}
	return uint32(v), newOffset, nil
}

// DecodeDate decodes a 4-byte Date value.
func DecodeDate(buf []byte, offset int, length uint32) (Date, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return Date{}, offset, err
	}
	if len(value) != 4 {
		return Date{}, offset, fmt.Errorf("date value is %d bytes, want 4: %w", len(value), ErrIntegerOutOfRange)
	}
	year := WildYear
	if value[0] != 0xFF {
		year = int(value[0]) + 1900
	}
	return Date{Year: year, Month: value[1], Day: value[2], Weekday: value[3]}, offset + int(length), nil
}

// DecodeTime decodes a 4-byte Time value.
func DecodeTime(buf []byte, offset int, length uint32) (Time, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return Time{}, offset, err
	}
	if len(value) != 4 {
		return Time{}, offset, fmt.Errorf("time value is %d bytes, want 4: %w", len(value), ErrIntegerOutOfRange)
	}
	return Time{Hour: value[0], Minute: value[1], Second: value[2], Hundredths: value[3]}, offset + int(length), nil
}

// DecodeObjectIdentifier decodes a 4-byte BACnetObjectIdentifier value.
func DecodeObjectIdentifier(buf []byte, offset int, length uint32) (ObjectIdentifier, int, error) {
	value, err := takeValue(buf, offset, length)
	if err != nil {
		return ObjectIdentifier{}, offset, err
	}
	if len(value) != 4 {
		return ObjectIdentifier{}, offset, fmt.Errorf("object identifier value is %d bytes, want 4: %w", len(value), ErrIntegerOutOfRange)
	}
	return unpackObjectIdentifier(binary.BigEndian.Uint32(value)), offset + int(length), nil
}

// DecodeBoolean decodes an application-tagged Boolean, where the value is
// carried in the tag's LVT nibble (reported as Tag.Length by DecodeTag)
// rather than in following bytes.
func DecodeBoolean(lvtValue uint32) bool {
	return lvtValue != 0
}

// DecodePrimitive decodes one application-tagged primitive value starting
// at buf[offset], verifying the tag's class and application-tag number
// match expectedAppTag. It returns the decoded value as an `any` holding
// the concrete Go type documented for that application tag (bool, uint64,
// int64, float32, float64, []byte, string, BitString, uint32, Date, Time,
// or ObjectIdentifier) plus the offset immediately following the value.
func DecodePrimitive(buf []byte, offset int, expectedAppTag uint8) (any, int, error) {
	t, pos, err := DecodeTag(buf, offset)
	if err != nil {
		return nil, offset, err
	}
	if t.Class != ClassApplication || t.IsOpening || t.IsClosing || t.Number != expectedAppTag {
		return nil, offset, fmt.Errorf("expected application tag %d, got %s: %w", expectedAppTag, t, ErrUnexpectedTag)
	}

	switch expectedAppTag {
	case AppNull:
		return nil, pos, nil
	case AppBoolean:
		return DecodeBoolean(t.Length), pos, nil
	case AppUnsigned:
		return DecodeUnsigned(buf, pos, t.Length)
	case AppSigned:
		return DecodeSigned(buf, pos, t.Length)
	case AppReal:
		return DecodeReal(buf, pos, t.Length)
	case AppDouble:
		return DecodeDouble(buf, pos, t.Length)
	case AppOctetString:
		return DecodeOctetString(buf, pos, t.Length)
	case AppCharacterString:
		return DecodeCharacterString(buf, pos, t.Length)
	case AppBitString:
		return DecodeBitString(buf, pos, t.Length)
	case AppEnumerated:
		return DecodeEnumerated(buf, pos, t.Length)
	case AppDate:
		return DecodeDate(buf, pos, t.Length)
	case AppTime:
		return DecodeTime(buf, pos, t.Length)
	case AppObjectID:
		return DecodeObjectIdentifier(buf, pos, t.Length)
	default:
		return nil, offset, fmt.Errorf("unsupported application tag %d: %w", expectedAppTag, ErrUnexpectedTag)
	}
}

// ExtractContextValue locates a context-tagged value for expectedTagNum at
// buf[offset], and returns its inner bytes (the value bytes for a
// primitive, or the bracketed payload between a matching opening/closing
// pair for a constructed value) plus the offset immediately following it.
func ExtractContextValue(buf []byte, offset int, expectedTagNum uint8) ([]byte, int, error) {
	t, pos, err := DecodeTag(buf, offset)
	if err != nil {
		return nil, offset, err
	}
	if t.Class != ClassContext || t.Number != expectedTagNum {
		return nil, offset, fmt.Errorf("expected context tag %d, got %s: %w", expectedTagNum, t, ErrUnexpectedTag)
	}

	if !t.IsOpening {
		value, err := takeValue(buf, pos, t.Length)
		if err != nil {
			return nil, offset, err
		}
		return value, pos + int(t.Length), nil
	}

	// Constructed value: scan forward tracking nested opening/closing
	// depth until the matching closing tag for expectedTagNum is found at
	// depth 0.
	start := pos
	depth := 1
	cursor := pos
	for depth > 0 {
		inner, next, err := DecodeTag(buf, cursor)
		if err != nil {
			return nil, offset, err
		}
		switch {
		case inner.IsOpening:
			depth++
			cursor = next
		case inner.IsClosing:
			depth--
			if depth == 0 {
				if inner.Class != ClassContext || inner.Number != expectedTagNum {
					return nil, offset, fmt.Errorf("closing tag %s does not match opening context tag %d: %w", inner, expectedTagNum, ErrMismatchedClosingTag)
				}
				return buf[start:cursor], next, nil
			}
			cursor = next
		default:
			valueEnd := next + int(inner.Length)
			if valueEnd > len(buf) || valueEnd < next {
				return nil, offset, fmt.Errorf("nested value at offset %d: %w", next, ErrLengthExceedsBuffer)
			}
			cursor = valueEnd
		}
	}

	return buf[start:cursor], cursor, nil
}
