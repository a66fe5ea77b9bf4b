package bbmd

import (
	"sync"
	"time"

	"github.com/bactalk/bacstack/internal/npdu"
)

// FDTEntry is one registered foreign device: its address, the TTL it
// registered with, and the time its registration expires.
type FDTEntry struct {
	Address   npdu.NetworkAddress
	TTL       time.Duration
	ExpiresAt time.Time
}

func (e FDTEntry) remaining(now time.Time) time.Duration {
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// FDT is a Foreign Device Table: addresses register with a TTL and are
// evicted once their remaining time reaches zero, per Annex J.5.2.3.
type FDT struct {
	mu      sync.Mutex
	entries map[string]FDTEntry
	now     func() time.Time
}

// NewFDT creates an empty foreign device table.
func NewFDT() *FDT {
	return &FDT{entries: make(map[string]FDTEntry), now: time.Now}
}

func key(addr npdu.NetworkAddress) string {
	return string(addr.Mac)
}

// Register adds or refreshes a foreign device's entry, granting it a
// fresh TTL-second lease starting now.
func (f *FDT) Register(addr npdu.NetworkAddress, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key(addr)] = FDTEntry{
		Address:   addr,
		TTL:       ttl,
		ExpiresAt: f.now().Add(ttl),
	}
}

// Delete removes a foreign device's registration immediately, as
// triggered by an explicit Delete-Foreign-Device-Table-Entry request.
func (f *FDT) Delete(addr npdu.NetworkAddress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key(addr))
}

// Sweep evicts every entry whose remaining time has reached zero and
// returns the addresses it removed.
func (f *FDT) Sweep() []npdu.NetworkAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	var expired []npdu.NetworkAddress
	for k, e := range f.entries {
		if e.remaining(now) == 0 {
			expired = append(expired, e.Address)
			delete(f.entries, k)
		}
	}
	return expired
}

// Entries returns a snapshot of every currently-registered foreign
// device, excluding any already past expiry.
func (f *FDT) Entries() []FDTEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	out := make([]FDTEntry, 0, len(f.entries))
	for _, e := range f.entries {
		if e.remaining(now) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// EncodeFDT serializes the table for a Read-Foreign-Device-Table-Ack:
// each entry is 6-byte address + 2-byte original TTL + 2-byte remaining
// time, both in seconds.
func (f *FDT) EncodeFDT() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	buf := make([]byte, 0, len(f.entries)*10)
	for _, e := range f.entries {
		remaining := e.remaining(now)
		if remaining == 0 {
			continue
		}
		buf = append(buf, padAddr(e.Address.Mac)...)
		buf = append(buf, encodeUint16(uint16(e.TTL/time.Second))...)
		buf = append(buf, encodeUint16(uint16(remaining/time.Second))...)
	}
	return buf
}
