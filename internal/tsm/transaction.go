package tsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bactalk/bacstack/internal/apdu"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/segmentation"
)

// State names an outbound transaction's position in the confirmed-request
// state diagram (clause 5.2).
type State int

const (
	StateIdle State = iota
	StateAwaitConfirmation
	StateSegmentedConfirmation
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitConfirmation:
		return "await-confirmation"
	case StateSegmentedConfirmation:
		return "segmented-confirmation"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result delivered to the caller that initiated a
// confirmed request.
type Outcome struct {
	SimpleACK  *apdu.SimpleACK
	ComplexACK *apdu.ComplexACK
	Payload    []byte // reassembled service data for a segmented complex-ack
	Err        error  // *apdu.ApplicationError, *apdu.RejectError, *apdu.AbortError, or *apdu.TimeoutError
}

// Transaction tracks one outbound confirmed request from transmission
// through its terminal simple-ack, complex-ack, error, reject, abort, or
// local timeout, retrying the request once per retry budget before giving
// up with a TimeoutError (clause 5.2.1's "apdu_retries" behavior). Every
// transmission — the final retransmission included — gets a full
// apdu_timeout reply window before the transaction is declared dead, so
// a reply arriving shortly after the last retry still completes it.
type Transaction struct {
	mu sync.Mutex

	invokeID uint8
	peer     string
	request  []byte
	send     func(ctx context.Context, apdu []byte) error

	state State
	retry backoff.BackOff

	timer  *time.Timer
	result chan Outcome

	receiver   *segmentation.Receiver
	windowSize uint8
}

// Config controls a transaction's retry timing, grounded on clause
// 5.2.1's apdu_timeout/apdu_retries parameters.
type Config struct {
	Timeout    time.Duration
	MaxRetries uint64
}

// NewTransaction starts tracking an outbound confirmed request already
// assigned invokeID. Run must be called to actually transmit it and block
// until a terminal outcome is reached.
//
// The backoff budget is MaxRetries+1 intervals: one reply window after
// the initial transmission plus one after each of the MaxRetries
// retransmissions.
func NewTransaction(invokeID uint8, peer string, request []byte, send func(ctx context.Context, apdu []byte) error, cfg Config) *Transaction {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Timeout), cfg.MaxRetries+1)
	return &Transaction{
		invokeID: invokeID,
		peer:     peer,
		request:  request,
		send:     send,
		state:    StateIdle,
		retry:    b,
		result:   make(chan Outcome, 1),
	}
}

// Run transmits the request and blocks until the transaction reaches a
// terminal state or ctx is cancelled. Cancellation releases the retry
// timer, suppresses all further resends, and — when the peer has not yet
// acknowledged any part of the exchange — notifies it with an Abort PDU
// before surfacing a typed AbortError to the caller.
func (tx *Transaction) Run(ctx context.Context) Outcome {
	if err := tx.transmit(ctx); err != nil {
		return Outcome{Err: fmt.Errorf("tsm: transmit invoke-id=%d to %s: %w", tx.invokeID, tx.peer, err)}
	}

	select {
	case <-ctx.Done():
		if tx.Cancel() {
			abort := apdu.EncodeAbortPDU(apdu.AbortPDU{InvokeID: tx.invokeID, Reason: apdu.AbortOther})
			if err := tx.send(context.WithoutCancel(ctx), abort); err != nil {
				logger.WarnCtx(ctx, "abort pdu send failed after cancel", logger.InvokeID(int(tx.invokeID)), logger.PeerStr(tx.peer), logger.Err(err))
			}
		}
		return Outcome{Err: fmt.Errorf("tsm: request invoke-id=%d to %s cancelled: %w", tx.invokeID, tx.peer,
			&apdu.AbortError{InvokeID: tx.invokeID, Reason: apdu.AbortOther})}
	case out := <-tx.result:
		return out
	}
}

// Cancel transitions the transaction to ABORTED and stops its retry
// timer, so no further resends occur and a late reply cannot produce a
// completion event. It reports whether the peer should be told via an
// Abort PDU: true only while the request is still awaiting its first
// acknowledgment — once a segmented confirmation has begun, the peer
// has acknowledged part of the exchange and tears its own state down
// through the normal segment-timeout path.
func (tx *Transaction) Cancel() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state == StateCompleted || tx.state == StateAborted {
		return false
	}
	notifyPeer := tx.state == StateAwaitConfirmation
	tx.state = StateAborted
	if tx.timer != nil {
		tx.timer.Stop()
	}
	return notifyPeer
}

func (tx *Transaction) transmit(ctx context.Context) error {
	tx.mu.Lock()
	tx.state = StateAwaitConfirmation
	tx.mu.Unlock()

	if err := tx.send(ctx, tx.request); err != nil {
		return err
	}
	tx.armTimer(ctx)
	return nil
}

func (tx *Transaction) armTimer(ctx context.Context) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.timer != nil {
		tx.timer.Stop()
	}
	next := tx.retry.NextBackOff()
	if next == backoff.Stop {
		return
	}
	tx.timer = time.AfterFunc(next, func() { tx.onTimeout(ctx) })
}

// onTimeout fires when a reply window closes with no response. Retry
// exhaustion is checked before resending: once the budget is spent the
// transaction times out, and otherwise the retransmission gets its own
// full reply window armed after the send.
func (tx *Transaction) onTimeout(ctx context.Context) {
	tx.mu.Lock()
	state := tx.state
	tx.mu.Unlock()

	if state != StateAwaitConfirmation {
		return
	}

	next := tx.retry.NextBackOff()
	if next == backoff.Stop {
		tx.finish(Outcome{Err: &apdu.TimeoutError{InvokeID: tx.invokeID, Peer: tx.peer}})
		return
	}

	logger.WarnCtx(ctx, "confirmed request timed out, retrying", logger.InvokeID(int(tx.invokeID)), logger.PeerStr(tx.peer))
	if err := tx.send(ctx, tx.request); err != nil {
		tx.finish(Outcome{Err: fmt.Errorf("tsm: retry invoke-id=%d to %s: %w", tx.invokeID, tx.peer, err)})
		return
	}

	tx.mu.Lock()
	if tx.state == StateAwaitConfirmation {
		tx.timer = time.AfterFunc(next, func() { tx.onTimeout(ctx) })
	}
	tx.mu.Unlock()
}

// HandleSimpleACK delivers a matching simple-ack, completing the
// transaction.
func (tx *Transaction) HandleSimpleACK(ack apdu.SimpleACK) {
	tx.stopTimer()
	tx.finish(Outcome{SimpleACK: &ack})
}

// HandleComplexACK delivers a matching unsegmented complex-ack, completing
// the transaction. Segmented complex-acks are routed through
// HandleSegment instead.
func (tx *Transaction) HandleComplexACK(ack apdu.ComplexACK) {
	tx.stopTimer()
	tx.finish(Outcome{ComplexACK: &ack, Payload: ack.ServiceData})
}

// HandleSegment feeds one segment of a segmented complex-ack response into
// the transaction's reassembly receiver, returning the segment-ack fields
// the caller should transmit back to the peer.
func (tx *Transaction) HandleSegment(ack apdu.ComplexACK, windowSize uint8) (newBase uint8, actualWindow uint8, err error) {
	tx.mu.Lock()
	if tx.receiver == nil {
		tx.state = StateSegmentedConfirmation
		tx.receiver = segmentation.NewReceiver(tx.invokeID, tx.peer, windowSize)
		tx.windowSize = windowSize
	}
	receiver := tx.receiver
	tx.mu.Unlock()

	tx.stopTimer()

	newBase, actualWindow, complete, payload, err := receiver.Accept(ack.SequenceNumber, ack.MoreFollows, ack.ServiceData)
	if err != nil {
		return newBase, actualWindow, err
	}
	if complete {
		tx.finish(Outcome{ComplexACK: &ack, Payload: payload})
		return newBase, actualWindow, nil
	}
	tx.armIdleCheck()
	return newBase, actualWindow, nil
}

// armIdleCheck is called while awaiting further segments of a segmented
// response. It arms no timer: between segments the transaction has no
// reply timeout of its own.
func (tx *Transaction) armIdleCheck() {
	// Segment-level acking is handled by the segmentation receiver;
	// the transaction's own retry timer stays disarmed between segments
	// since the peer, not this station, drives segment pacing.
}

// HandleError delivers a matching Error PDU.
func (tx *Transaction) HandleError(e apdu.ErrorPDU) {
	tx.stopTimer()
	tx.finish(Outcome{Err: &apdu.ApplicationError{ServiceChoice: e.ServiceChoice, ErrorClass: e.ErrorClass, ErrorCode: e.ErrorCode}})
}

// HandleReject delivers a matching Reject PDU.
func (tx *Transaction) HandleReject(r apdu.RejectPDU) {
	tx.stopTimer()
	tx.finish(Outcome{Err: &apdu.RejectError{InvokeID: r.InvokeID, Reason: r.Reason}})
}

// HandleAbort delivers a matching Abort PDU, from either this station or
// the peer.
func (tx *Transaction) HandleAbort(a apdu.AbortPDU) {
	tx.stopTimer()
	tx.finish(Outcome{Err: &apdu.AbortError{InvokeID: a.InvokeID, Reason: a.Reason, Server: a.Server}})
}

func (tx *Transaction) stopTimer() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.timer != nil {
		tx.timer.Stop()
	}
}

func (tx *Transaction) finish(out Outcome) {
	tx.mu.Lock()
	if tx.state == StateCompleted || tx.state == StateAborted {
		tx.mu.Unlock()
		return
	}
	if out.Err != nil {
		tx.state = StateAborted
	} else {
		tx.state = StateCompleted
	}
	tx.mu.Unlock()

	select {
	case tx.result <- out:
	default:
	}
}

// CurrentState returns the transaction's current state, primarily for
// logging and tests.
func (tx *Transaction) CurrentState() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}
