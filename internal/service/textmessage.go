package service

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// MessagePriority is Text-Message's urgency (clause 16.6,
// "BACnetMessagePriority").
const (
	MessagePriorityNormal uint32 = 0
	MessagePriorityUrgent uint32 = 1
)

// TextMessageRequest carries an operator-display message from one device to
// another (clause 16.6). MessageClassNumber and MessageClassName are
// mutually exclusive, both optional.
type TextMessageRequest struct {
	TextMessageSourceDevice tag.ObjectIdentifier
	MessageClassNumber      *uint32
	MessageClassName        *string
	MessagePriority         uint32
	Message                 string
}

// EncodeTextMessageRequest serializes a Text-Message-Request.
func EncodeTextMessageRequest(r TextMessageRequest) []byte {
	buf := tag.EncodeContextObjectIdentifier(0, r.TextMessageSourceDevice)
	switch {
	case r.MessageClassNumber != nil:
		buf = append(buf, tag.EncodeContextTagged(1, tag.EncodeUnsigned(uint64(*r.MessageClassNumber)))...)
	case r.MessageClassName != nil:
		buf = append(buf, tag.EncodeContextTagged(1, tag.EncodeCharacterString(*r.MessageClassName))...)
	}
	buf = append(buf, tag.EncodeContextEnumerated(2, r.MessagePriority)...)
	return append(buf, tag.EncodeContextCharacterString(3, r.Message)...)
}

// DecodeTextMessageRequest parses a Text-Message-Request.
func DecodeTextMessageRequest(buf []byte) (TextMessageRequest, error) {
	device, offset, err := decodeContextObjectIdentifier(buf, 0, 0)
	if err != nil {
		return TextMessageRequest{}, fmt.Errorf("decode text-message source-device: %w", err)
	}
	r := TextMessageRequest{TextMessageSourceDevice: device}
	if hasOpeningTag(buf, offset, 1) {
		inner, next, err := decodeConstructedValue(buf, offset, 1)
		if err != nil {
			return TextMessageRequest{}, fmt.Errorf("decode text-message class: %w", err)
		}
		class, _, err := tag.DecodePrimitive(inner, 0, tag.AppUnsigned)
		if err == nil {
			n := uint32(class.(uint64))
			r.MessageClassNumber = &n
		} else {
			name, _, err := tag.DecodePrimitive(inner, 0, tag.AppCharacterString)
			if err != nil {
				return TextMessageRequest{}, fmt.Errorf("decode text-message class: %w", err)
			}
			s := name.(string)
			r.MessageClassName = &s
		}
		offset = next
	}
	priority, offset, err := decodeContextEnumerated(buf, offset, 2)
	if err != nil {
		return TextMessageRequest{}, fmt.Errorf("decode text-message priority: %w", err)
	}
	r.MessagePriority = priority
	message, _, err := decodeContextCharacterString(buf, offset, 3)
	if err != nil {
		return TextMessageRequest{}, fmt.Errorf("decode text-message body: %w", err)
	}
	r.Message = message
	return r, nil
}
