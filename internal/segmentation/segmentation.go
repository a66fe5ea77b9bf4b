// Package segmentation implements the sliding-window sender and receiver
// halves that split an APDU too large for a peer's accepted
// max-APDU-length into a series of segments, and reassemble a received
// segment series back into one APDU.
package segmentation

import (
	"errors"
	"fmt"
)

// MaxSegments is the hard ceiling on a single transfer's segment count
// (clause 5.2.3): a transfer requiring more segments must be refused at
// setup.
const MaxSegments = 256

// segmentHeaderOverhead is a conservative estimate of the confirmed-
// request/complex-ack APDU header bytes (PDU type/flags, invoke-id,
// sequence number, window size, service choice) that precede the segment
// payload proper within each transmitted APDU.
const segmentHeaderOverhead = 5

var (
	// ErrTooManySegments means the APDU payload would need more than
	// MaxSegments segments at the negotiated MTU.
	ErrTooManySegments = errors.New("segmentation: transfer requires more than the maximum segment count")

	// ErrOutOfWindow means a received segment's sequence number falls
	// outside the receiver's current window — a gap, per clause 5.4.5.3,
	// that aborts the transaction with invalid-apdu-in-this-state.
	ErrOutOfWindow = errors.New("segmentation: segment sequence number outside current window")

	// ErrDuplicateSegment means a received segment's sequence number
	// duplicates one already held; it is silently discarded by the
	// caller, not treated as an abort.
	ErrDuplicateSegment = errors.New("segmentation: duplicate segment")
)

// InWindow reports whether sequence number v lies within the window of
// size w starting at base b, using 8-bit modular arithmetic:
// (v - b) mod 256 < w.
func InWindow(v, base, w uint8) bool {
	return uint8(v-base) < w
}

// Split divides payload into segments of at most maxSegmentSize bytes
// (the peer's accepted max-APDU-length minus the per-APDU header
// overhead), returning ErrTooManySegments if the result would exceed
// MaxSegments.
func Split(payload []byte, peerMaxAPDU int) ([][]byte, error) {
	segSize := peerMaxAPDU - segmentHeaderOverhead
	if segSize <= 0 {
		return nil, fmt.Errorf("segmentation: peer max-apdu %d too small for segment header", peerMaxAPDU)
	}

	if len(payload) == 0 {
		return [][]byte{{}}, nil
	}

	count := (len(payload) + segSize - 1) / segSize
	if count > MaxSegments {
		return nil, fmt.Errorf("payload needs %d segments, peer max-apdu %d: %w", count, peerMaxAPDU, ErrTooManySegments)
	}

	segments := make([][]byte, 0, count)
	for offset := 0; offset < len(payload); offset += segSize {
		end := offset + segSize
		if end > len(payload) {
			end = len(payload)
		}
		segments = append(segments, payload[offset:end])
	}
	return segments, nil
}

// NegotiatedWindowSize returns the smaller of two advertised window sizes,
// per clause 5.3's rule that both parties honor the smaller of their
// advertised values".
func NegotiatedWindowSize(proposed, accepted uint8) uint8 {
	if proposed < accepted {
		return proposed
	}
	return accepted
}
