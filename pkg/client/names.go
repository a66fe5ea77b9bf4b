package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bactalk/bacstack/internal/tag"
)

// objectTypeNames maps the human-readable object-type names the API
// accepts to their clause 21 BACnetObjectType codes. Numeric codes are
// accepted too, so object types outside this table remain addressable.
var objectTypeNames = map[string]uint16{
	"analog-input":   0,
	"analog-output":  1,
	"analog-value":   2,
	"binary-input":   3,
	"binary-output":  4,
	"binary-value":   5,
	"calendar":       6,
	"command":        7,
	"device":         8,
	"event-enrollment": 9,
	"file":           10,
	"group":          11,
	"loop":           12,
	"multi-state-input":  13,
	"multi-state-output": 14,
	"notification-class": 15,
	"program":        16,
	"schedule":       17,
	"multi-state-value":  19,
	"trend-log":      20,
}

// propertyNames maps the property names the API accepts to their clause
// 21 BACnetPropertyIdentifier codes, covering the properties the stack's
// own handlers and the common read/write workflows touch.
var propertyNames = map[string]uint32{
	"object-identifier": 75,
	"object-name":       77,
	"object-type":       79,
	"present-value":     85,
	"description":       28,
	"device-type":       31,
	"status-flags":      111,
	"event-state":       36,
	"out-of-service":    81,
	"units":             117,
	"priority-array":    87,
	"relinquish-default": 104,
	"reliability":       103,
	"system-status":     112,
	"vendor-name":       121,
	"vendor-identifier": 120,
	"model-name":        70,
	"firmware-revision": 44,
	"application-software-version": 12,
	"protocol-version":  98,
	"protocol-revision": 139,
	"max-apdu-length-accepted": 62,
	"segmentation-supported":   107,
	"apdu-timeout":      11,
	"number-of-apdu-retries": 73,
	"object-list":       76,
	"property-list":     371,
	"file-size":         42,
	"file-type":         43,
	"record-count":      141,
	"configuration-files": 154,
	"last-restore-time": 157,
	"backup-failure-timeout": 153,
}

// ParseObjectID parses "type,instance" or "type:instance" where type is
// either a name from the recognized table ("analog-input") or a bare
// numeric code, matching the address grammar's tolerance for both human
// and machine forms.
func ParseObjectID(s string) (tag.ObjectIdentifier, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	sep := strings.IndexAny(s, ",:")
	if sep < 0 {
		return tag.ObjectIdentifier{}, fmt.Errorf("client: object identifier %q must be type,instance", s)
	}
	typePart := strings.TrimSpace(s[:sep])
	instPart := strings.TrimSpace(s[sep+1:])

	objType, ok := objectTypeNames[typePart]
	if !ok {
		n, err := strconv.ParseUint(typePart, 10, 10)
		if err != nil {
			return tag.ObjectIdentifier{}, fmt.Errorf("client: unknown object type %q", typePart)
		}
		objType = uint16(n)
	}

	inst, err := strconv.ParseUint(instPart, 10, 22)
	if err != nil {
		return tag.ObjectIdentifier{}, fmt.Errorf("client: invalid object instance %q: %w", instPart, err)
	}
	return tag.ObjectIdentifier{Type: objType, Instance: uint32(inst)}, nil
}

// ParsePropertyID parses a property name ("present-value") or bare
// numeric property code into its identifier.
func ParsePropertyID(s string) (uint32, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if id, ok := propertyNames[s]; ok {
		return id, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("client: unknown property %q", s)
	}
	return uint32(n), nil
}

// ObjectTypeName renders an object-type code back into its human name,
// falling back to the numeric code for types outside the table.
func ObjectTypeName(code uint16) string {
	for name, c := range objectTypeNames {
		if c == code {
			return name
		}
	}
	return strconv.FormatUint(uint64(code), 10)
}
