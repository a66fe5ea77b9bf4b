package router

import (
	"sync"
	"time"
)

// Route is one entry of the routing table: remote network number ->
// (port, next-hop MAC, reachability, when it was last confirmed).
type Route struct {
	Port       string
	NextHopMac []byte
	Reachable  bool
	LastSeen   time.Time
}

// table is the router's learned routing table, keyed by remote network
// number. It is updated by source-network information on inbound NPDUs
// and by I-Am-Router-To-Network advertisements (clause 6.6.3.2).
type table struct {
	mu      sync.Mutex
	routes  map[uint16]Route
	now     func() time.Time
}

func newTable(now func() time.Time) *table {
	if now == nil {
		now = time.Now
	}
	return &table{routes: make(map[uint16]Route), now: now}
}

// Learn records or refreshes a route to network via port/nextHopMac.
func (t *table) Learn(network uint16, port string, nextHopMac []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[network] = Route{
		Port:       port,
		NextHopMac: append([]byte(nil), nextHopMac...),
		Reachable:  true,
		LastSeen:   t.now(),
	}
}

// Lookup returns the current route to network, if any.
func (t *table) Lookup(network uint16) (Route, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.routes[network]
	return r, ok
}

// Networks returns every remote network number this router currently has
// a route for.
func (t *table) Networks() []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint16, 0, len(t.routes))
	for n := range t.routes {
		out = append(out, n)
	}
	return out
}

// MarkUnreachable flags a learned route as no longer reachable without
// discarding it, so a later re-advertisement can simply flip it back.
func (t *table) MarkUnreachable(network uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.routes[network]; ok {
		r.Reachable = false
		t.routes[network] = r
	}
}
