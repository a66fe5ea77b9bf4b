package tag

import (
	"encoding/binary"
	"math"
)

// appendTagHeader appends a primitive tag header (class, number, byte
// length) to buf and returns the extended slice. Per ASHRAE 135 clause
// 20.2.1: tag numbers 0-14 fit the header's top nibble; 15-254 use one
// extra byte. Lengths 0-4 fit the low nibble; 5-253 use one extra byte;
// 254-65535 use a 2-byte extension flagged by 254; larger values use a
// 4-byte extension flagged by 255.
func appendTagHeader(buf []byte, class Class, number uint8, length uint32) []byte {
	var first byte
	if class == ClassContext {
		first |= 0x08
	}

	if number <= 14 {
		first |= number << 4
	} else {
		first |= 0xF0
	}

	lvt := lvtNibble(length)
	first |= lvt
	buf = append(buf, first)

	if number > 14 {
		buf = append(buf, number)
	}

	if lvt == 5 {
		switch {
		case length < 254:
			buf = append(buf, byte(length))
		case length <= math.MaxUint16:
			buf = append(buf, 254)
			var lenBytes [2]byte
			binary.BigEndian.PutUint16(lenBytes[:], uint16(length))
			buf = append(buf, lenBytes[:]...)
		default:
			buf = append(buf, 255)
			var lenBytes [4]byte
			binary.BigEndian.PutUint32(lenBytes[:], length)
			buf = append(buf, lenBytes[:]...)
		}
	}

	return buf
}

func lvtNibble(length uint32) byte {
	if length <= 4 {
		return byte(length)
	}
	return 5
}

// appendOpeningTag appends a constructed opening tag for the given context
// number.
func appendOpeningTag(buf []byte, number uint8) []byte {
	return appendBracketTag(buf, number, openingLength)
}

// appendClosingTag appends a constructed closing tag for the given context
// number.
func appendClosingTag(buf []byte, number uint8) []byte {
	return appendBracketTag(buf, number, closingLength)
}

func appendBracketTag(buf []byte, number uint8, lvt uint8) []byte {
	var first byte = 0x08 // opening/closing tags are always context-class
	if number <= 14 {
		first |= number << 4
	} else {
		first |= 0xF0
	}
	first |= lvt
	buf = append(buf, first)
	if number > 14 {
		buf = append(buf, number)
	}
	return buf
}

// EncodeOpeningTag encodes a standalone constructed opening tag.
func EncodeOpeningTag(contextNum uint8) []byte {
	return appendOpeningTag(nil, contextNum)
}

// EncodeClosingTag encodes a standalone constructed closing tag.
func EncodeClosingTag(contextNum uint8) []byte {
	return appendClosingTag(nil, contextNum)
}

// EncodeNull encodes an application-tagged Null value.
func EncodeNull() []byte {
	return appendTagHeader(nil, ClassApplication, AppNull, 0)
}

// EncodeBoolean encodes an application-tagged Boolean value. Per clause
// 20.2.3, the value itself occupies the LVT nibble rather than a following
// byte.
func EncodeBoolean(v bool) []byte {
	var first byte = AppBoolean << 4
	if v {
		first |= 1
	}
	return []byte{first}
}

// EncodeContextBoolean encodes a context-tagged Boolean. Context-tagged
// booleans cannot use the LVT trick (the tag number already occupies that
// slot's semantics), so they carry one value byte instead.
func EncodeContextBoolean(tagNum uint8, v bool) []byte {
	buf := appendTagHeader(nil, ClassContext, tagNum, 1)
	var b byte
	if v {
		b = 1
	}
	return append(buf, b)
}

// minimalUnsignedBytes returns the fewest big-endian bytes needed to
// represent v, at least one byte (0 encodes as a single zero byte).
func minimalUnsignedBytes(v uint64) []byte {
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], v)
	i := 0
	for i < 7 && full[i] == 0 {
		i++
	}
	return append([]byte(nil), full[i:]...)
}

// minimalSignedBytes returns the fewest big-endian two's-complement bytes
// needed to represent v such that the sign bit of the leading byte matches
// the sign of v (required so a later decode sign-extends correctly).
func minimalSignedBytes(v int64) []byte {
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], uint64(v))

	negative := v < 0
	i := 0
	for i < 7 {
		b := full[i]
		next := full[i+1]
		if negative {
			if b != 0xFF || next&0x80 == 0 {
				break
			}
		} else {
			if b != 0x00 || next&0x80 != 0 {
				break
			}
		}
		i++
	}
	return append([]byte(nil), full[i:]...)
}

// EncodeUnsigned encodes an application-tagged Unsigned Integer using the
// minimum number of bytes required to represent v.
func EncodeUnsigned(v uint64) []byte {
	value := minimalUnsignedBytes(v)
	buf := appendTagHeader(nil, ClassApplication, AppUnsigned, uint32(len(value)))
	return append(buf, value...)
}

// EncodeContextUnsigned encodes a context-tagged Unsigned Integer.
func EncodeContextUnsigned(tagNum uint8, v uint64) []byte {
	value := minimalUnsignedBytes(v)
	buf := appendTagHeader(nil, ClassContext, tagNum, uint32(len(value)))
	return append(buf, value...)
}

// EncodeSigned encodes an application-tagged Signed Integer using the
// minimum number of two's-complement bytes required to represent v.
func EncodeSigned(v int64) []byte {
	value := minimalSignedBytes(v)
	buf := appendTagHeader(nil, ClassApplication, AppSigned, uint32(len(value)))
	return append(buf, value...)
}

// EncodeContextSigned encodes a context-tagged Signed Integer.
func EncodeContextSigned(tagNum uint8, v int64) []byte {
	value := minimalSignedBytes(v)
	buf := appendTagHeader(nil, ClassContext, tagNum, uint32(len(value)))
	return append(buf, value...)
}

// EncodeReal encodes an application-tagged single-precision Real.
func EncodeReal(v float32) []byte {
	buf := appendTagHeader(nil, ClassApplication, AppReal, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	return append(buf, b[:]...)
}

// EncodeContextReal encodes a context-tagged single-precision Real.
func EncodeContextReal(tagNum uint8, v float32) []byte {
	buf := appendTagHeader(nil, ClassContext, tagNum, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	return append(buf, b[:]...)
}

// EncodeDouble encodes an application-tagged double-precision Real.
func EncodeDouble(v float64) []byte {
	buf := appendTagHeader(nil, ClassApplication, AppDouble, 8)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return append(buf, b[:]...)
}

// EncodeOctetString encodes an application-tagged Octet String.
func EncodeOctetString(data []byte) []byte {
	buf := appendTagHeader(nil, ClassApplication, AppOctetString, uint32(len(data)))
	return append(buf, data...)
}

// EncodeContextOctetString encodes a context-tagged Octet String.
func EncodeContextOctetString(tagNum uint8, data []byte) []byte {
	buf := appendTagHeader(nil, ClassContext, tagNum, uint32(len(data)))
	return append(buf, data...)
}

// characterStringANSIX34 is the charset-indicator byte for the default
// (and, in practice, near-universal) ANSI X3.4 / UTF-8 character set.
const characterStringANSIX34 = 0

// EncodeCharacterString encodes an application-tagged Character String using
// the ANSI X3.4/UTF-8 charset.
func EncodeCharacterString(s string) []byte {
	value := append([]byte{characterStringANSIX34}, []byte(s)...)
	buf := appendTagHeader(nil, ClassApplication, AppCharacterString, uint32(len(value)))
	return append(buf, value...)
}

// EncodeContextCharacterString encodes a context-tagged Character String.
func EncodeContextCharacterString(tagNum uint8, s string) []byte {
	value := append([]byte{characterStringANSIX34}, []byte(s)...)
	buf := appendTagHeader(nil, ClassContext, tagNum, uint32(len(value)))
	return append(buf, value...)
}

// EncodeBitString encodes an application-tagged Bit String.
func EncodeBitString(bs BitString) []byte {
	value := append([]byte{bs.UnusedBits}, bs.Bytes...)
	buf := appendTagHeader(nil, ClassApplication, AppBitString, uint32(len(value)))
	return append(buf, value...)
}

// EncodeContextBitString encodes a context-tagged Bit String.
func EncodeContextBitString(tagNum uint8, bs BitString) []byte {
	value := append([]byte{bs.UnusedBits}, bs.Bytes...)
	buf := appendTagHeader(nil, ClassContext, tagNum, uint32(len(value)))
	return append(buf, value...)
}

// EncodeEnumerated encodes an application-tagged Enumerated value using the
// minimum number of bytes required to represent v.
func EncodeEnumerated(v uint32) []byte {
	value := minimalUnsignedBytes(uint64(v))
	buf := appendTagHeader(nil, ClassApplication, AppEnumerated, uint32(len(value)))
	return append(buf, value...)
}

// EncodeContextEnumerated encodes a context-tagged Enumerated value.
func EncodeContextEnumerated(tagNum uint8, v uint32) []byte {
	value := minimalUnsignedBytes(uint64(v))
	buf := appendTagHeader(nil, ClassContext, tagNum, uint32(len(value)))
	return append(buf, value...)
}

func encodeDateBytes(d Date) [4]byte {
	var b [4]byte
	if d.Year == WildYear {
		b[0] = 0xFF
	} else {
		b[0] = byte(d.Year - 1900)
	}
	b[1] = d.Month
	b[2] = d.Day
	b[3] = d.Weekday
	return b
}

// EncodeDate encodes an application-tagged Date.
func EncodeDate(d Date) []byte {
	buf := appendTagHeader(nil, ClassApplication, AppDate, 4)
	b := encodeDateBytes(d)
	return append(buf, b[:]...)
}

// EncodeContextDate encodes a context-tagged Date.
func EncodeContextDate(tagNum uint8, d Date) []byte {
	buf := appendTagHeader(nil, ClassContext, tagNum, 4)
	b := encodeDateBytes(d)
	return append(buf, b[:]...)
}

func encodeTimeBytes(t Time) [4]byte {
	return [4]byte{t.Hour, t.Minute, t.Second, t.Hundredths}
}

// EncodeTime encodes an application-tagged Time.
func EncodeTime(t Time) []byte {
	buf := appendTagHeader(nil, ClassApplication, AppTime, 4)
	b := encodeTimeBytes(t)
	return append(buf, b[:]...)
}

// EncodeContextTime encodes a context-tagged Time.
func EncodeContextTime(tagNum uint8, t Time) []byte {
	buf := appendTagHeader(nil, ClassContext, tagNum, 4)
	b := encodeTimeBytes(t)
	return append(buf, b[:]...)
}

// EncodeObjectIdentifier encodes an application-tagged BACnetObjectIdentifier.
func EncodeObjectIdentifier(id ObjectIdentifier) []byte {
	buf := appendTagHeader(nil, ClassApplication, AppObjectID, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id.pack())
	return append(buf, b[:]...)
}

// EncodeContextObjectIdentifier encodes a context-tagged BACnetObjectIdentifier.
func EncodeContextObjectIdentifier(tagNum uint8, id ObjectIdentifier) []byte {
	buf := appendTagHeader(nil, ClassContext, tagNum, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id.pack())
	return append(buf, b[:]...)
}

// EncodeContextTagged wraps an already-encoded inner value in a
// constructed context tag pair (opening tag, inner bytes, closing tag) —
// used when a service parameter is itself a structure of several values
// rather than a single primitive.
func EncodeContextTagged(tagNum uint8, inner []byte) []byte {
	buf := appendOpeningTag(nil, tagNum)
	buf = append(buf, inner...)
	return appendClosingTag(buf, tagNum)
}
