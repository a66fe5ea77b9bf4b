package objects

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bactalk/bacstack/internal/tag"
)

// SimpleObject is a property-bag Object backed by a map of already
// tag-encoded values, suitable for the library's own device object and
// for tests and example applications that don't need a real object-type
// library.
type SimpleObject struct {
	mu         sync.RWMutex
	id         tag.ObjectIdentifier
	properties map[uint32][]byte
	// commandable marks properties that accept a write priority.
	commandable map[uint32]bool
}

// NewSimpleObject creates an object with no properties set.
func NewSimpleObject(id tag.ObjectIdentifier) *SimpleObject {
	return &SimpleObject{
		id:          id,
		properties:  make(map[uint32][]byte),
		commandable: make(map[uint32]bool),
	}
}

// Identifier returns the object's identifier.
func (o *SimpleObject) Identifier() tag.ObjectIdentifier { return o.id }

// Set installs propertyID's already-encoded value, declaring it
// commandable if commandable is true.
func (o *SimpleObject) Set(propertyID uint32, value []byte, commandable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.properties[propertyID] = value
	o.commandable[propertyID] = commandable
}

// ReadProperty returns propertyID's encoded value. SimpleObject has no
// array properties, so a non-nil arrayIndex is always an error.
func (o *SimpleObject) ReadProperty(propertyID uint32, arrayIndex *uint32) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if arrayIndex != nil {
		return nil, fmt.Errorf("objects: property %d on %s has no array index: %w", propertyID, o.id, ErrUnknownProperty)
	}
	v, ok := o.properties[propertyID]
	if !ok {
		return nil, fmt.Errorf("objects: property %d on %s: %w", propertyID, o.id, ErrUnknownProperty)
	}
	return v, nil
}

// WriteProperty overwrites propertyID's value if the property was
// declared commandable.
func (o *SimpleObject) WriteProperty(propertyID uint32, value []byte, arrayIndex *uint32, priority *uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if arrayIndex != nil {
		return fmt.Errorf("objects: property %d on %s has no array index: %w", propertyID, o.id, ErrUnknownProperty)
	}
	if !o.commandable[propertyID] {
		return fmt.Errorf("objects: property %d on %s is not writable", propertyID, o.id)
	}
	o.properties[propertyID] = value
	return nil
}

// Properties lists every declared property identifier, sorted for
// deterministic ReadPropertyMultiple(ALL) output.
func (o *SimpleObject) Properties() []uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]uint32, 0, len(o.properties))
	for pid := range o.properties {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
