package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// errUnexpected is returned by the decodeContext* helpers when a context
// tag's class or number doesn't match what the caller expected.
type errUnexpected struct {
	want int
	got  tag.Tag
}

func (e *errUnexpected) Error() string {
	return fmt.Sprintf("expected context tag %d, got %s", e.want, e.got)
}

// peekTag decodes the tag header at offset without consuming its value,
// so a handler can decide whether an optional context-tagged parameter is
// present before committing to decode it.
func peekTag(buf []byte, offset int) (tag.Tag, error) {
	t, _, err := tag.DecodeTag(buf, offset)
	return t, err
}

// decodeContextUnsigned decodes a context-tagged Unsigned Integer,
// verifying its tag number matches want.
func decodeContextUnsigned(buf []byte, offset int, want uint8) (uint64, int, error) {
	t, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return 0, offset, err
	}
	if t.Class != tag.ClassContext || t.Number != want {
		return 0, offset, &errUnexpected{want: int(want), got: t}
	}
	return tag.DecodeUnsigned(buf, pos, t.Length)
}

// decodeContextEnumerated decodes a context-tagged Enumerated value.
func decodeContextEnumerated(buf []byte, offset int, want uint8) (uint32, int, error) {
	t, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return 0, offset, err
	}
	if t.Class != tag.ClassContext || t.Number != want {
		return 0, offset, &errUnexpected{want: int(want), got: t}
	}
	return tag.DecodeEnumerated(buf, pos, t.Length)
}

// decodeContextSigned decodes a context-tagged Signed Integer.
func decodeContextSigned(buf []byte, offset int, want uint8) (int64, int, error) {
	t, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return 0, offset, err
	}
	if t.Class != tag.ClassContext || t.Number != want {
		return 0, offset, &errUnexpected{want: int(want), got: t}
	}
	return tag.DecodeSigned(buf, pos, t.Length)
}

// decodeContextObjectIdentifier decodes a context-tagged
// BACnetObjectIdentifier.
func decodeContextObjectIdentifier(buf []byte, offset int, want uint8) (tag.ObjectIdentifier, int, error) {
	t, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return tag.ObjectIdentifier{}, offset, err
	}
	if t.Class != tag.ClassContext || t.Number != want {
		return tag.ObjectIdentifier{}, offset, &errUnexpected{want: int(want), got: t}
	}
	return tag.DecodeObjectIdentifier(buf, pos, t.Length)
}

// decodeContextCharacterString decodes a context-tagged Character String.
func decodeContextCharacterString(buf []byte, offset int, want uint8) (string, int, error) {
	t, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return "", offset, err
	}
	if t.Class != tag.ClassContext || t.Number != want {
		return "", offset, &errUnexpected{want: int(want), got: t}
	}
	return tag.DecodeCharacterString(buf, pos, t.Length)
}

// decodeContextOctetString decodes a context-tagged Octet String.
func decodeContextOctetString(buf []byte, offset int, want uint8) ([]byte, int, error) {
	t, pos, err := tag.DecodeTag(buf, offset)
	if err != nil {
		return nil, offset, err
	}
	if t.Class != tag.ClassContext || t.Number != want {
		return nil, offset, &errUnexpected{want: int(want), got: t}
	}
	return tag.DecodeOctetString(buf, pos, t.Length)
}

// hasMoreContextTag reports whether the next tag at offset is a context
// tag with the given number, used to detect optional parameters without
// consuming them on mismatch.
func hasMoreContextTag(buf []byte, offset int, want uint8) bool {
	if offset >= len(buf) {
		return false
	}
	t, err := peekTag(buf, offset)
	if err != nil {
		return false
	}
	return t.Class == tag.ClassContext && t.Number == want && !t.IsOpening && !t.IsClosing
}

// hasOpeningTag reports whether the next tag at offset is a constructed
// opening tag with the given context number.
func hasOpeningTag(buf []byte, offset int, want uint8) bool {
	if offset >= len(buf) {
		return false
	}
	t, err := peekTag(buf, offset)
	if err != nil {
		return false
	}
	return t.Class == tag.ClassContext && t.Number == want && t.IsOpening
}
