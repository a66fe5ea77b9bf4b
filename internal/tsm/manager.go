package tsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bactalk/bacstack/internal/apdu"
	"github.com/bactalk/bacstack/internal/logger"
)

// txKey identifies one outbound transaction by the peer it was sent to
// and the invoke-id it was assigned; invoke-ids are only unique per peer.
type txKey struct {
	peer     string
	invokeID uint8
}

// Manager is the single per-station Transaction State Machine: it
// allocates invoke-ids for outbound confirmed requests, tracks their
// in-flight Transaction objects, and dispatches inbound confirmed and
// unconfirmed requests to a ServiceRegistry.
//
// Invoke-ids are a per-peer space (clause 5.1: the pair of peer address
// and invoke-id identifies a transaction), so the Manager keeps one
// allocator per peer it has sent to; each peer can carry up to 256
// concurrent outbound transactions independently of every other.
type Manager struct {
	mu           sync.Mutex
	allocators   map[string]*InvokeIDAllocator
	transactions map[txKey]*Transaction
	registry     *ServiceRegistry
	config       Config
}

// NewManager creates a Manager bound to registry for inbound dispatch,
// using cfg for outbound retry timing.
func NewManager(registry *ServiceRegistry, cfg Config) *Manager {
	return &Manager{
		allocators:   make(map[string]*InvokeIDAllocator),
		transactions: make(map[txKey]*Transaction),
		registry:     registry,
		config:       cfg,
	}
}

// allocatorFor returns peer's invoke-id allocator, creating it on first
// contact. Entries are never removed: the map is bounded by the number
// of distinct peers this station has ever addressed, and an allocator
// with no active ids costs a few words.
func (m *Manager) allocatorFor(peer string) *InvokeIDAllocator {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.allocators[peer]
	if !ok {
		a = NewInvokeIDAllocator()
		m.allocators[peer] = a
	}
	return a
}

// SendConfirmed allocates an invoke-id from peer's space, registers a
// Transaction, and runs it to completion. send is invoked once per
// transmission (initial send plus any retries) with the fully-encoded
// confirmed-request APDU.
func (m *Manager) SendConfirmed(ctx context.Context, peer string, buildRequest func(invokeID uint8) []byte, send func(ctx context.Context, apdu []byte) error) Outcome {
	allocator := m.allocatorFor(peer)
	invokeID, err := allocator.Allocate()
	if err != nil {
		return Outcome{Err: fmt.Errorf("tsm: allocate invoke-id for %s: %w", peer, err)}
	}
	defer allocator.Release(invokeID)

	tx := NewTransaction(invokeID, peer, buildRequest(invokeID), send, m.config)

	key := txKey{peer: peer, invokeID: invokeID}
	m.mu.Lock()
	m.transactions[key] = tx
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.transactions, key)
		m.mu.Unlock()
	}()

	return tx.Run(ctx)
}

// lookup finds the Transaction tracking a peer's outbound request with the
// given invoke-id, if any.
func (m *Manager) lookup(peer string, invokeID uint8) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txKey{peer: peer, invokeID: invokeID}]
	return tx, ok
}

// OnSimpleACK routes an inbound simple-ack to its matching transaction, if
// one is still active. An unmatched ack (late, duplicate, or for a
// transaction this station already abandoned) is logged and dropped.
func (m *Manager) OnSimpleACK(ctx context.Context, peer string, ack apdu.SimpleACK) {
	if tx, ok := m.lookup(peer, ack.InvokeID); ok {
		tx.HandleSimpleACK(ack)
		return
	}
	logger.DebugCtx(ctx, "simple-ack for unknown transaction", logger.PeerStr(peer), logger.InvokeID(int(ack.InvokeID)))
}

// OnComplexACK routes an inbound complex-ack. Segmented complex-acks are
// fed through the transaction's reassembly receiver; unsegmented ones
// complete the transaction directly. For a segmented complex-ack, ok is
// true and newBase/actualWindow report the segment-ack the caller must
// transmit back to the peer; for an unsegmented complex-ack, or an
// unmatched/rejected segment, ok is false and no segment-ack is sent.
func (m *Manager) OnComplexACK(ctx context.Context, peer string, ack apdu.ComplexACK, windowSize uint8) (newBase uint8, actualWindow uint8, ok bool) {
	tx, found := m.lookup(peer, ack.InvokeID)
	if !found {
		logger.DebugCtx(ctx, "complex-ack for unknown transaction", logger.PeerStr(peer), logger.InvokeID(int(ack.InvokeID)))
		return 0, 0, false
	}
	if !ack.Segmented {
		tx.HandleComplexACK(ack)
		return 0, 0, false
	}
	newBase, actualWindow, err := tx.HandleSegment(ack, windowSize)
	if err != nil {
		logger.WarnCtx(ctx, "segment rejected", logger.PeerStr(peer), logger.InvokeID(int(ack.InvokeID)), logger.Err(err))
		return 0, 0, false
	}
	return newBase, actualWindow, true
}

// OnError routes an inbound Error PDU to its matching transaction.
func (m *Manager) OnError(ctx context.Context, peer string, e apdu.ErrorPDU) {
	if tx, ok := m.lookup(peer, e.InvokeID); ok {
		tx.HandleError(e)
	}
}

// OnReject routes an inbound Reject PDU to its matching transaction.
func (m *Manager) OnReject(ctx context.Context, peer string, r apdu.RejectPDU) {
	if tx, ok := m.lookup(peer, r.InvokeID); ok {
		tx.HandleReject(r)
	}
}

// OnAbort routes an inbound Abort PDU to its matching transaction.
func (m *Manager) OnAbort(ctx context.Context, peer string, a apdu.AbortPDU) {
	if tx, ok := m.lookup(peer, a.InvokeID); ok {
		tx.HandleAbort(a)
	}
}

// InboundResponse is what the Manager asks the caller to transmit after
// dispatching an inbound confirmed request.
type InboundResponse struct {
	Simple     *apdu.SimpleACK
	Complex    *apdu.ComplexACK
	ErrorPDU   *apdu.ErrorPDU
	RejectPDU  *apdu.RejectPDU
	AbortPDU   *apdu.AbortPDU
}

// HandleConfirmedRequest dispatches an inbound confirmed request to the
// registered service handler and builds the response PDU to transmit
// back, per clause 5.4's confirmed-request processing rules.
func (m *Manager) HandleConfirmedRequest(ctx context.Context, peer string, req apdu.ConfirmedRequest) InboundResponse {
	start := time.Now()
	result, err := m.registry.DispatchConfirmed(ctx, peer, req.InvokeID, req.ServiceChoice, req.ServiceData)
	logger.DebugCtx(ctx, "dispatched confirmed request", logger.PeerStr(peer), logger.InvokeID(int(req.InvokeID)), logger.DurationMs(float64(time.Since(start).Milliseconds())))

	if err != nil {
		return buildErrorResponse(req.InvokeID, req.ServiceChoice, err)
	}
	if result.Simple {
		return InboundResponse{Simple: &apdu.SimpleACK{InvokeID: req.InvokeID, ServiceChoice: req.ServiceChoice}}
	}
	return InboundResponse{Complex: &apdu.ComplexACK{InvokeID: req.InvokeID, ServiceChoice: req.ServiceChoice, ServiceData: result.ComplexPayload}}
}

// HandleUnconfirmedRequest dispatches an inbound unconfirmed request. No
// response is ever produced, per clause 5.3.
func (m *Manager) HandleUnconfirmedRequest(ctx context.Context, peer string, req apdu.UnconfirmedRequest) {
	if err := m.registry.DispatchUnconfirmed(ctx, peer, req.ServiceChoice, req.ServiceData); err != nil {
		logger.WarnCtx(ctx, "unconfirmed service handler failed", logger.PeerStr(peer), logger.Err(err))
	}
}

func buildErrorResponse(invokeID uint8, serviceChoice uint8, err error) InboundResponse {
	switch e := err.(type) {
	case *apdu.ApplicationError:
		return InboundResponse{ErrorPDU: &apdu.ErrorPDU{InvokeID: invokeID, ServiceChoice: serviceChoice, ErrorClass: e.ErrorClass, ErrorCode: e.ErrorCode}}
	case *apdu.RejectError:
		return InboundResponse{RejectPDU: &apdu.RejectPDU{InvokeID: invokeID, Reason: e.Reason}}
	case *apdu.AbortError:
		return InboundResponse{AbortPDU: &apdu.AbortPDU{InvokeID: invokeID, Server: true, Reason: e.Reason}}
	default:
		var appErr *apdu.ApplicationError
		if errors.As(err, &appErr) {
			return InboundResponse{ErrorPDU: &apdu.ErrorPDU{InvokeID: invokeID, ServiceChoice: serviceChoice, ErrorClass: appErr.ErrorClass, ErrorCode: appErr.ErrorCode}}
		}
		var rejErr *apdu.RejectError
		if errors.As(err, &rejErr) {
			return InboundResponse{RejectPDU: &apdu.RejectPDU{InvokeID: invokeID, Reason: rejErr.Reason}}
		}
		var abortErr *apdu.AbortError
		if errors.As(err, &abortErr) {
			return InboundResponse{AbortPDU: &apdu.AbortPDU{InvokeID: invokeID, Server: true, Reason: abortErr.Reason}}
		}
		return InboundResponse{AbortPDU: &apdu.AbortPDU{InvokeID: invokeID, Server: true, Reason: apdu.AbortOther}}
	}
}
