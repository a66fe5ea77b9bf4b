package service

// Error class/code pairs used to report BACnetObjectAccessServices failures
// as an Error PDU (clause 18, Error parameter). Only the subset the
// handlers in this package actually raise is declared.
const (
	ErrorClassObject   uint32 = 1
	ErrorClassProperty uint32 = 2
	ErrorClassServices uint32 = 4

	ErrorCodeUnknownObject                  uint32 = 31
	ErrorCodeUnknownProperty                uint32 = 32
	ErrorCodeWriteAccessDenied              uint32 = 40
	ErrorCodeInvalidArrayIndex              uint32 = 42
	ErrorCodePasswordFailure                uint32 = 26
	ErrorCodeValueOutOfRange                uint32 = 37
	ErrorCodeDynamicCreationNotSupported    uint32 = 4
	ErrorCodeObjectDeletionNotPermitted     uint32 = 23
	ErrorCodeFileAccessDenied               uint32 = 5
)
