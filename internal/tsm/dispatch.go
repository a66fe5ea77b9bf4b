package tsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/bactalk/bacstack/internal/apdu"
)

// ServiceResult is what a confirmed-service handler returns on success:
// either a simple-ack or a complex-ack payload to serialize. Failures are
// returned as the handler's error instead (see ServiceHandler).
type ServiceResult struct {
	// Simple indicates a simple-ack is sufficient; no ComplexPayload is
	// sent.
	Simple bool

	// ComplexPayload holds the already-encoded service-ack parameters
	// for a complex-ack response. Ignored when Simple is true.
	ComplexPayload []byte
}

// ServiceHandler processes one confirmed or unconfirmed service request's
// already-stripped service parameters and returns the response to send
// (for confirmed services) or nil (for unconfirmed services, which never
// reply).
//
// A non-nil error is translated to the wire response by the dispatcher:
// an *apdu.ApplicationError becomes an Error PDU, an *apdu.RejectError
// becomes a Reject PDU, an *apdu.AbortError becomes an Abort PDU, and any
// other error becomes an Abort PDU with reason other.
type ServiceHandler func(ctx context.Context, peer string, serviceData []byte) (*ServiceResult, error)

// service describes one registered confirmed or unconfirmed service for
// dispatch, mirroring the name/handler/metadata shape used throughout the
// rest of the stack's protocol dispatch tables.
type service struct {
	Name       string
	Handler    ServiceHandler
	Confirmed  bool
}

// ServiceRegistry maps service-choice codes to their handlers, separately
// for confirmed and unconfirmed requests since the two numbering spaces
// overlap (clause 21, Tables 21-1/21-2). Permanent handlers are
// registered once at startup; temporary taps come and go while the stack
// runs (Who-Is response collection keeps one alive for the duration of
// its listening window), so only they are guarded by a mutex.
type ServiceRegistry struct {
	confirmed   map[uint8]*service
	unconfirmed map[uint8]*service

	tapMu     sync.Mutex
	nextTapID uint64
	taps      map[uint8]map[uint64]ServiceHandler
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		confirmed:   make(map[uint8]*service),
		unconfirmed: make(map[uint8]*service),
		taps:        make(map[uint8]map[uint64]ServiceHandler),
	}
}

// RegisterTemporary attaches a short-lived tap to an unconfirmed
// service-choice, invoked in addition to the permanently registered
// handler for every matching request until the returned cancel function
// is called. Callers collecting I-Am/I-Have replies to a Who-Is/Who-Has
// broadcast register a tap for the listening window and cancel it when
// the window closes.
func (r *ServiceRegistry) RegisterTemporary(choice uint8, handler ServiceHandler) (cancel func()) {
	r.tapMu.Lock()
	defer r.tapMu.Unlock()

	r.nextTapID++
	id := r.nextTapID
	if r.taps[choice] == nil {
		r.taps[choice] = make(map[uint64]ServiceHandler)
	}
	r.taps[choice][id] = handler

	return func() {
		r.tapMu.Lock()
		defer r.tapMu.Unlock()
		delete(r.taps[choice], id)
	}
}

// tapsFor snapshots the temporary handlers attached to choice so dispatch
// runs them outside the lock.
func (r *ServiceRegistry) tapsFor(choice uint8) []ServiceHandler {
	r.tapMu.Lock()
	defer r.tapMu.Unlock()
	if len(r.taps[choice]) == 0 {
		return nil
	}
	out := make([]ServiceHandler, 0, len(r.taps[choice]))
	for _, h := range r.taps[choice] {
		out = append(out, h)
	}
	return out
}

// RegisterConfirmed binds a handler to a confirmed service-choice code.
func (r *ServiceRegistry) RegisterConfirmed(choice uint8, name string, handler ServiceHandler) {
	r.confirmed[choice] = &service{Name: name, Handler: handler, Confirmed: true}
}

// RegisterUnconfirmed binds a handler to an unconfirmed service-choice
// code.
func (r *ServiceRegistry) RegisterUnconfirmed(choice uint8, name string, handler ServiceHandler) {
	r.unconfirmed[choice] = &service{Name: name, Handler: handler}
}

// DispatchConfirmed invokes the handler registered for a confirmed
// service-choice, translating its result or error into the PDU the caller
// should transmit back. It never panics on an unregistered choice: that
// case returns a RejectError with reason unrecognized-service, per clause
// 5.4.1.1.
func (r *ServiceRegistry) DispatchConfirmed(ctx context.Context, peer string, invokeID uint8, choice uint8, serviceData []byte) (*ServiceResult, error) {
	svc, ok := r.confirmed[choice]
	if !ok {
		return nil, &apdu.RejectError{InvokeID: invokeID, Reason: apdu.RejectUnrecognizedService}
	}
	result, err := svc.Handler(ctx, peer, serviceData)
	if err != nil {
		return nil, translateServiceError(invokeID, err)
	}
	return result, nil
}

// DispatchUnconfirmed invokes the handler registered for an unconfirmed
// service-choice. Unrecognized choices are silently ignored, per clause
// 5.3's "no response is ever returned" and the convention that an unknown
// unconfirmed service is simply not understood.
func (r *ServiceRegistry) DispatchUnconfirmed(ctx context.Context, peer string, choice uint8, serviceData []byte) error {
	for _, tap := range r.tapsFor(choice) {
		// Tap errors never mask the permanent handler; a broken
		// collector only loses its own correlation.
		_, _ = tap(ctx, peer, serviceData)
	}
	svc, ok := r.unconfirmed[choice]
	if !ok {
		return nil
	}
	_, err := svc.Handler(ctx, peer, serviceData)
	return err
}

// translateServiceError normalizes whatever error a handler returned into
// one of the typed errors the dispatcher and transport layer know how to
// serialize. An unexpected handler failure becomes
// an Abort PDU with reason "other", not a Reject — rejects are reserved
// for protocol syntax faults the handler itself recognizes.
func translateServiceError(invokeID uint8, err error) error {
	switch err.(type) {
	case *apdu.ApplicationError, *apdu.RejectError, *apdu.AbortError:
		return err
	default:
		return fmt.Errorf("tsm: unhandled service error, reporting as abort: %w", &apdu.AbortError{InvokeID: invokeID, Reason: apdu.AbortOther, Server: true})
	}
}
