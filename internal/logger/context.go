package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single confirmed or
// unconfirmed service exchange.
type LogContext struct {
	TraceID   string    // correlation id for a single outbound/inbound exchange
	Service   string    // service name (ReadProperty, WhoIs, ...)
	Peer      string    // peer address in "net:mac" form
	InvokeID  int       // TSM invoke-id, -1 for unconfirmed services
	Network   uint16    // destination/source network number, 0 for local
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for an exchange with the given peer.
func NewLogContext(peer string) *LogContext {
	return &LogContext{
		Peer:      peer,
		InvokeID:  -1,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithService returns a copy with the service name set
func (lc *LogContext) WithService(service string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Service = service
	}
	return clone
}

// WithInvokeID returns a copy with the TSM invoke-id set
func (lc *LogContext) WithInvokeID(invokeID int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.InvokeID = invokeID
	}
	return clone
}

// WithNetwork returns a copy with the network number set
func (lc *LogContext) WithNetwork(network uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Network = network
	}
	return clone
}

// WithTrace returns a copy with the correlation id set
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
