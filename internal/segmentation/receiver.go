package segmentation

import (
	"fmt"
	"sync"
)

// Receiver accumulates an inbound segmented transfer's segments, rejecting
// sequence numbers outside its current window and discarding duplicates,
// and exposes the reassembled payload once the final segment (more-
// follows=false) has arrived and every prior sequence number is accounted
// for.
//
// One Receiver exists per in-flight inbound segmented transfer.
type Receiver struct {
	mu sync.Mutex

	invokeID     uint8
	peer         string
	windowSize   uint8
	base         uint8 // lowest sequence number not yet received
	received     map[uint8][]byte
	total        int // -1 until the final segment's sequence number is known
	reassembled  []byte
	complete     bool
}

// NewReceiver creates a Receiver that will accept at most windowSize
// segments ahead of its current base sequence number before a gap is
// reported.
func NewReceiver(invokeID uint8, peer string, windowSize uint8) *Receiver {
	return &Receiver{
		invokeID:   invokeID,
		peer:       peer,
		windowSize: windowSize,
		received:   make(map[uint8][]byte),
		total:      -1,
	}
}

// Accept records one inbound segment. It returns:
//   - (newBase, actualWindowSize, complete, reassembled, nil) when the
//     segment is accepted; complete is true once the full transfer has
//     been reassembled, in which case reassembled holds the payload.
//   - ErrDuplicateSegment if seq has already been received (callers
//     should re-ack the current base without re-processing).
//   - ErrOutOfWindow if seq falls outside the current window — the
//     transaction should be aborted with invalid-apdu-in-this-state.
func (r *Receiver) Accept(seq uint8, moreFollows bool, payload []byte) (newBase uint8, actualWindowSize uint8, complete bool, reassembled []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.received[seq]; ok {
		return r.base, r.windowSize, r.complete, r.reassembled, ErrDuplicateSegment
	}
	if !InWindow(seq, r.base, r.windowSize) {
		return r.base, r.windowSize, false, nil, fmt.Errorf("invoke-id=%d peer=%s seq=%d base=%d window=%d: %w", r.invokeID, r.peer, seq, r.base, r.windowSize, ErrOutOfWindow)
	}

	r.received[seq] = payload
	if !moreFollows {
		r.total = int(seq) + 1
	}

	r.advanceBase()

	if r.total >= 0 && len(r.received) == r.total && r.allPresent() {
		r.reassemble()
		r.complete = true
	}

	return r.base, r.windowSize, r.complete, r.reassembled, nil
}

// advanceBase moves the window forward over any contiguous run of
// already-received segments starting at the current base, so the next
// segment-ack reports real progress.
func (r *Receiver) advanceBase() {
	for {
		if _, ok := r.received[r.base]; !ok {
			return
		}
		if r.total >= 0 && int(r.base)+1 >= r.total {
			r.base++
			return
		}
		r.base++
	}
}

func (r *Receiver) allPresent() bool {
	for seq := 0; seq < r.total; seq++ {
		if _, ok := r.received[uint8(seq)]; !ok {
			return false
		}
	}
	return true
}

func (r *Receiver) reassemble() {
	buf := make([]byte, 0)
	for seq := 0; seq < r.total; seq++ {
		buf = append(buf, r.received[uint8(seq)]...)
	}
	r.reassembled = buf
}
