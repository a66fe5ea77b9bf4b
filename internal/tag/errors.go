package tag

import "errors"

// Sentinel errors distinguishing malformed-wire-data failures from an
// application-layer reject. A decoder returning one of these (possibly
// wrapped with fmt.Errorf("...: %w", err)) never panics on adversarial
// input.
var (
	// ErrTruncated means the buffer ended before a complete tag header or
	// value could be read.
	ErrTruncated = errors.New("tag: truncated buffer")

	// ErrLengthExceedsBuffer means a decoded length field claims more bytes
	// than remain in the buffer.
	ErrLengthExceedsBuffer = errors.New("tag: length exceeds remaining buffer")

	// ErrIntegerOutOfRange means a decoded signed or unsigned integer value
	// does not fit the requested Go type, or an encode input exceeds what
	// the wire encoding can represent.
	ErrIntegerOutOfRange = errors.New("tag: integer out of range")

	// ErrUnknownCharacterSet means a character-string value's leading
	// charset-indicator byte is not one this codec recognizes.
	ErrUnknownCharacterSet = errors.New("tag: unrecognized character string charset")

	// ErrUnexpectedTag means the decoded tag's class/number/opening-closing
	// state does not match what the caller required at this point.
	ErrUnexpectedTag = errors.New("tag: unexpected tag")

	// ErrMismatchedClosingTag means an extract-context-value scan found a
	// closing tag for a different context number than the one it opened.
	ErrMismatchedClosingTag = errors.New("tag: mismatched closing tag")
)
