// Package service implements the application-service codecs that sit
// above the Transaction State Machine: pairs of encode/decode structures
// built on the tag codec, plus the handlers that bridge them to an
// objects.Database and register with a tsm.ServiceRegistry.
package service

// Confirmed service-choice codes (clause 21, Table 21-1 subset this stack
// implements).
const (
	ChoiceAtomicReadFile             uint8 = 6
	ChoiceAtomicWriteFile            uint8 = 7
	ChoiceCreateObject               uint8 = 10
	ChoiceDeleteObject               uint8 = 11
	ChoiceReadProperty               uint8 = 12
	ChoiceReadPropertyMultiple       uint8 = 14
	ChoiceWriteProperty              uint8 = 15
	ChoiceWritePropertyMultiple      uint8 = 16
	ChoiceDeviceCommunicationControl uint8 = 17
	ChoiceReinitializeDevice         uint8 = 20
	ChoiceSubscribeCOV               uint8 = 5
	ChoiceConfirmedCOVNotification   uint8 = 1
)

// Unconfirmed service-choice codes (clause 21, Table 21-2 subset).
const (
	ChoiceWhoIs                      uint8 = 8
	ChoiceIAm                        uint8 = 0
	ChoiceWhoHas                     uint8 = 7
	ChoiceIHave                      uint8 = 1
	ChoiceUnconfirmedCOVNotification uint8 = 2
	ChoiceTimeSynchronization        uint8 = 6
	ChoiceUTCTimeSynchronization     uint8 = 9
	ChoiceTextMessage                uint8 = 5
)

// Commonly-used property identifiers (clause 21 Table 21-4 subset).
const (
	PropObjectIdentifier uint32 = 75
	PropObjectName       uint32 = 77
	PropObjectType       uint32 = 79
	PropPresentValue     uint32 = 85
	PropPropertyList     uint32 = 371
)

// Special array-index values for ReadPropertyMultiple (clause 21).
const (
	ArrayIndexAll uint32 = 0xFFFFFFFF
)
