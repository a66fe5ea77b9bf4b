// Package tsm implements the Transaction State Machine: invoke-id
// allocation, the outbound confirmed-request retry/timeout state machine,
// and inbound confirmed/unconfirmed-request dispatch to registered service
// handlers.
package tsm

import (
	"errors"
	"sync"
)

// ErrInvokeIDsExhausted means every invoke-id in the 0-255 space is
// currently assigned to an active outbound transaction.
var ErrInvokeIDsExhausted = errors.New("tsm: no invoke-id available")

// InvokeIDAllocator hands out invoke-ids for outbound confirmed requests,
// round-robin starting after the most recently issued value and skipping
// any id still bound to an active transaction, per clause 5.2's
// requirement that an invoke-id not be reused until its transaction has
// concluded.
type InvokeIDAllocator struct {
	mu     sync.Mutex
	next   uint8
	active map[uint8]struct{}
}

// NewInvokeIDAllocator creates an allocator with no ids in use.
func NewInvokeIDAllocator() *InvokeIDAllocator {
	return &InvokeIDAllocator{active: make(map[uint8]struct{})}
}

// Allocate reserves and returns the next free invoke-id, or
// ErrInvokeIDsExhausted if all 256 values are in use.
func (a *InvokeIDAllocator) Allocate() (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.active) >= 256 {
		return 0, ErrInvokeIDsExhausted
	}

	for {
		candidate := a.next
		a.next++
		if _, inUse := a.active[candidate]; !inUse {
			a.active[candidate] = struct{}{}
			return candidate, nil
		}
	}
}

// Release returns id to the free pool once its transaction has completed,
// aborted, timed out, or been rejected.
func (a *InvokeIDAllocator) Release(id uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, id)
}

// InUse reports whether id currently belongs to an active transaction.
func (a *InvokeIDAllocator) InUse(id uint8) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[id]
	return ok
}
