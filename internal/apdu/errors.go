package apdu

import (
	"fmt"

	"github.com/bactalk/bacstack/internal/tag"
)

// Reject reasons (clause 5.4.1.1, Table 21-2 subset).
const (
	RejectOther                  uint8 = 0
	RejectBufferOverflow         uint8 = 1
	RejectInconsistentParameters uint8 = 2
	RejectInvalidParameterDataType uint8 = 3
	RejectInvalidTag             uint8 = 4
	RejectMissingRequiredParameter uint8 = 5
	RejectParameterOutOfRange     uint8 = 6
	RejectTooManyArguments        uint8 = 7
	RejectUndefinedEnumeration    uint8 = 8
	RejectUnrecognizedService     uint8 = 9
)

var rejectReasonNames = map[uint8]string{
	RejectOther:                    "other",
	RejectBufferOverflow:           "buffer-overflow",
	RejectInconsistentParameters:   "inconsistent-parameters",
	RejectInvalidParameterDataType: "invalid-parameter-data-type",
	RejectInvalidTag:               "invalid-tag",
	RejectMissingRequiredParameter: "missing-required-parameter",
	RejectParameterOutOfRange:      "parameter-out-of-range",
	RejectTooManyArguments:         "too-many-arguments",
	RejectUndefinedEnumeration:     "undefined-enumeration",
	RejectUnrecognizedService:      "unrecognized-service",
}

func RejectReasonName(code uint8) string {
	if name, ok := rejectReasonNames[code]; ok {
		return name
	}
	return fmt.Sprintf("reject(%d)", code)
}

// Abort reasons (clause 5.4.1.2, Table 21-3 subset).
const (
	AbortOther                       uint8 = 0
	AbortBufferOverflow              uint8 = 1
	AbortInvalidAPDUInThisState      uint8 = 2
	AbortPreemptedByHigherPriorityTask uint8 = 3
	AbortSegmentationNotSupported     uint8 = 4
	AbortSecurityError                uint8 = 5
	AbortInsufficientSecurity         uint8 = 6
	AbortWindowSizeOutOfRange         uint8 = 7
	AbortApplicationExceededReplyTime uint8 = 8
	AbortOutOfResources               uint8 = 9
	AbortTSMTimeout                   uint8 = 10
	AbortAPDUTooLong                  uint8 = 11
	AbortServerTimeout                uint8 = 12
	AbortNoResponse                   uint8 = 13
)

var abortReasonNames = map[uint8]string{
	AbortOther:                         "other",
	AbortBufferOverflow:                "buffer-overflow",
	AbortInvalidAPDUInThisState:        "invalid-apdu-in-this-state",
	AbortPreemptedByHigherPriorityTask: "preempted-by-higher-priority-task",
	AbortSegmentationNotSupported:      "segmentation-not-supported",
	AbortSecurityError:                 "security-error",
	AbortInsufficientSecurity:          "insufficient-security",
	AbortWindowSizeOutOfRange:          "window-size-out-of-range",
	AbortApplicationExceededReplyTime:  "application-exceeded-reply-time",
	AbortOutOfResources:                "out-of-resources",
	AbortTSMTimeout:                    "tsm-timeout",
	AbortAPDUTooLong:                   "apdu-too-long",
	AbortServerTimeout:                 "server-timeout",
	AbortNoResponse:                    "no-response",
}

func AbortReasonName(code uint8) string {
	if name, ok := abortReasonNames[code]; ok {
		return name
	}
	return fmt.Sprintf("abort(%d)", code)
}

// ApplicationError represents a recognized (error-class, error-code) pair
// per clause 18, surfaced either by parsing an inbound Error PDU or by a
// local service handler to be serialized outbound.
type ApplicationError struct {
	ServiceChoice uint8
	ErrorClass    uint32
	ErrorCode     uint32
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("apdu: application error (class=%d, code=%d) for service %d", e.ErrorClass, e.ErrorCode, e.ServiceChoice)
}

// RejectError represents a protocol syntax fault on a received request.
// Rejects are always locally generated by the recipient and never
// retried.
type RejectError struct {
	InvokeID uint8
	Reason   uint8
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("apdu: reject invoke-id=%d reason=%s", e.InvokeID, RejectReasonName(e.Reason))
}

// AbortError represents a transaction-level failure. Either side may
// abort; both sides discard transaction state on receipt.
type AbortError struct {
	InvokeID uint8
	Reason   uint8
	Server   bool // true if this station originated the abort
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("apdu: abort invoke-id=%d reason=%s", e.InvokeID, AbortReasonName(e.Reason))
}

// TimeoutError is a purely local failure: all configured retries of a
// confirmed request were exhausted without a matching response.
type TimeoutError struct {
	InvokeID uint8
	Peer     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("apdu: timeout waiting for invoke-id=%d from %s", e.InvokeID, e.Peer)
}

// TransportError wraps a data-link failure (socket closed, WebSocket
// disconnect, TLS handshake failure). It is always fatal to the affected
// peer connection but never fatal to the stack as a whole.
type TransportError struct {
	Peer string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("apdu: transport error with %s: %v", e.Peer, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorPDU is the decoded header of an Error APDU (clause 5.7).
type ErrorPDU struct {
	InvokeID      uint8
	ServiceChoice uint8
	ErrorClass    uint32
	ErrorCode     uint32
}

// EncodeErrorPDU serializes an Error APDU: invoke-id and service-choice
// bytes followed by the error-class/error-code pair, each as an
// application-tagged Enumerated value (clause 5.7, "Error" parameter).
func EncodeErrorPDU(e ErrorPDU) []byte {
	buf := []byte{byte(TypeError) << 4, e.InvokeID, e.ServiceChoice}
	buf = append(buf, tag.EncodeEnumerated(e.ErrorClass)...)
	buf = append(buf, tag.EncodeEnumerated(e.ErrorCode)...)
	return buf
}

// DecodeErrorPDU parses an Error APDU.
func DecodeErrorPDU(buf []byte) (ErrorPDU, error) {
	if len(buf) < 3 {
		return ErrorPDU{}, fmt.Errorf("decode error pdu header: %w", ErrTruncated)
	}
	e := ErrorPDU{InvokeID: buf[1], ServiceChoice: buf[2]}

	class, offset, err := tag.DecodePrimitive(buf, 3, tag.AppEnumerated)
	if err != nil {
		return ErrorPDU{}, fmt.Errorf("decode error-class: %w", err)
	}
	e.ErrorClass = class.(uint32)

	code, _, err := tag.DecodePrimitive(buf, offset, tag.AppEnumerated)
	if err != nil {
		return ErrorPDU{}, fmt.Errorf("decode error-code: %w", err)
	}
	e.ErrorCode = code.(uint32)

	return e, nil
}

// RejectPDU is the decoded header of a Reject APDU (clause 5.8).
type RejectPDU struct {
	InvokeID uint8
	Reason   uint8
}

func EncodeRejectPDU(r RejectPDU) []byte {
	return []byte{byte(TypeReject) << 4, r.InvokeID, r.Reason}
}

func DecodeRejectPDU(buf []byte) (RejectPDU, error) {
	if len(buf) < 3 {
		return RejectPDU{}, fmt.Errorf("decode reject pdu: %w", ErrTruncated)
	}
	return RejectPDU{InvokeID: buf[1], Reason: buf[2]}, nil
}

// AbortPDU is the decoded header of an Abort APDU (clause 5.9).
type AbortPDU struct {
	InvokeID uint8
	Server   bool
	Reason   uint8
}

func EncodeAbortPDU(a AbortPDU) []byte {
	var first byte = byte(TypeAbort) << 4
	if a.Server {
		first |= 0x01
	}
	return []byte{first, a.InvokeID, a.Reason}
}

func DecodeAbortPDU(buf []byte) (AbortPDU, error) {
	if len(buf) < 3 {
		return AbortPDU{}, fmt.Errorf("decode abort pdu: %w", ErrTruncated)
	}
	return AbortPDU{Server: buf[0]&0x01 != 0, InvokeID: buf[1], Reason: buf[2]}, nil
}
