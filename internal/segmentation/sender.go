package segmentation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bactalk/bacstack/internal/logger"
)

// SendFunc transmits one already-framed APDU (segment) to the peer.
// Implementations are expected to be the TSM's outbound transport hook.
type SendFunc func(ctx context.Context, apdu []byte) error

// Sender drives the outbound half of a segmented confirmed-request or
// complex-ack transfer: it holds the full segment list, tracks which
// segments have been acknowledged, and retransmits the outstanding window
// once on a segment-ack timeout before aborting the transaction.
//
// One Sender exists per in-flight segmented transfer; the TSM creates and
// discards them as transactions start and complete.
type Sender struct {
	mu sync.Mutex

	invokeID   uint8
	peer       string
	segments   [][]byte
	windowSize uint8
	base       uint8 // sequence number of the first unacknowledged segment
	ackTimeout time.Duration
	send       SendFunc

	timer        *time.Timer
	retried      bool
	done         chan struct{}
	err          error
	buildSegment func(seq uint8, moreFollows bool, payload []byte) []byte
}

// NewSender creates a Sender for a transfer whose payload has already been
// split into segments (see Split). buildSegment wraps one payload chunk
// into the confirmed-request or complex-ack APDU bytes actually placed on
// the wire, with the sequence number and more-follows flag the sender
// assigns.
func NewSender(invokeID uint8, peer string, segments [][]byte, windowSize uint8, ackTimeout time.Duration, send SendFunc, buildSegment func(seq uint8, moreFollows bool, payload []byte) []byte) *Sender {
	return &Sender{
		invokeID:     invokeID,
		peer:         peer,
		segments:     segments,
		windowSize:   windowSize,
		ackTimeout:   ackTimeout,
		send:         send,
		buildSegment: buildSegment,
		done:         make(chan struct{}),
	}
}

// Run transmits segments until the transfer completes, a segment-ack
// timeout occurs twice in a row (which aborts with segmentation-timeout),
// or ctx is cancelled. It blocks until the transfer reaches a terminal
// state.
func (s *Sender) Run(ctx context.Context) error {
	if err := s.sendWindow(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.err
		}
	}
}

func (s *Sender) sendWindow(ctx context.Context) error {
	s.mu.Lock()
	base := s.base
	window := s.windowSize
	total := uint8(len(s.segments))
	s.mu.Unlock()

	for i := uint8(0); i < window; i++ {
		seq := base + i
		if seq >= total {
			break
		}
		more := seq < total-1
		apdu := s.buildSegment(seq, more, s.segments[seq])
		if err := s.send(ctx, apdu); err != nil {
			return fmt.Errorf("segmentation: send segment %d to %s: %w", seq, s.peer, err)
		}
		logger.DebugCtx(ctx, "sent segment", logger.InvokeID(int(s.invokeID)), logger.PeerStr(s.peer), logger.Seq(seq), logger.MoreFollows(more))
	}

	s.armTimer(ctx)
	return nil
}

func (s *Sender) armTimer(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.ackTimeout, func() { s.onTimeout(ctx) })
}

// OnSegmentAck advances the sender's window when the receiver
// acknowledges segments up to (and not including) newBase. It returns
// true once every segment has been acknowledged, at which point the
// transfer is complete.
func (s *Sender) OnSegmentAck(ctx context.Context, newBase uint8, actualWindowSize uint8) (bool, error) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.base = newBase
	s.retried = false
	if actualWindowSize > 0 && actualWindowSize < s.windowSize {
		s.windowSize = actualWindowSize
	}
	total := uint8(len(s.segments))
	complete := newBase >= total
	s.mu.Unlock()

	if complete {
		s.finish(nil)
		return true, nil
	}
	return false, s.sendWindow(ctx)
}

func (s *Sender) onTimeout(ctx context.Context) {
	s.mu.Lock()
	if s.retried {
		s.mu.Unlock()
		s.finish(&TimeoutError{InvokeID: s.invokeID, Peer: s.peer})
		return
	}
	s.retried = true
	s.mu.Unlock()

	logger.WarnCtx(ctx, "segment-ack timeout, retransmitting window", logger.InvokeID(int(s.invokeID)), logger.PeerStr(s.peer))
	if err := s.sendWindow(ctx); err != nil {
		s.finish(err)
	}
}

func (s *Sender) finish(err error) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.err = err
	close(s.done)
	s.mu.Unlock()
}

// TimeoutError reports that a segmented transfer's ack timer expired
// twice in a row without a matching segment-ack.
type TimeoutError struct {
	InvokeID uint8
	Peer     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("segmentation: timeout for invoke-id=%d peer=%s", e.InvokeID, e.Peer)
}
