package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// These keys are shared across every data-link adapter, the router, the BBMD,
// and the transaction state machine so log lines for one exchange can be
// joined on trace_id/invoke_id/peer regardless of which component emitted them.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // correlation id for one request/response exchange
	KeySpanID  = "span_id"  // sub-step id within an exchange (segment send, retry, ...)

	// ========================================================================
	// Application Service & APDU
	// ========================================================================
	KeyService   = "service"    // application service name: ReadProperty, WhoIs, ...
	KeyInvokeID  = "invoke_id"  // TSM invoke-id (8-bit, scoped to peer)
	KeyPDUType   = "pdu_type"   // confirmed-request, complex-ack, error, reject, abort
	KeyErrorCode = "error_code" // BACnet error class/code, or reject/abort reason

	// ========================================================================
	// Object & Property References
	// ========================================================================
	KeyObjectType = "object_type" // BACnet object type (analog-input, device, ...)
	KeyObjectInst = "object_inst" // object instance number
	KeyPropertyID = "property_id" // property identifier
	KeyArrayIndex = "array_index" // property array index, -1 if none

	// ========================================================================
	// Addressing & Network Layer
	// ========================================================================
	KeyPeer     = "peer"      // peer NetworkAddress in "net:mac" form
	KeyNetwork  = "network"   // network number (0 = local)
	KeyPort     = "port"      // local transport-port identifier
	KeyNextHop  = "next_hop"  // next-hop MAC for a forwarded NPDU
	KeyHopCount = "hop_count" // remaining NPDU hop count

	// ========================================================================
	// Segmentation & Transaction State Machine
	// ========================================================================
	KeySeq        = "seq"         // segment sequence number
	KeyWindowSize = "window_size" // proposed/negotiated segmentation window size
	KeyMoreFollows = "more_follows" // true if more segments follow
	KeyTimerMs    = "timer_ms"    // TSM retry/segment timeout in milliseconds
	KeyAttempt    = "attempt"     // retry attempt number
	KeyMaxRetries = "max_retries" // configured maximum retry count

	// ========================================================================
	// BBMD / Foreign Device
	// ========================================================================
	KeyBBMD       = "bbmd"        // BBMD address a foreign device is registered with
	KeyTTL        = "ttl"         // registration/FDT entry TTL in seconds
	KeyResultCode = "result_code" // BVLC-Result code

	// ========================================================================
	// Transport / Link
	// ========================================================================
	KeyAdapter     = "adapter"      // ipv4, ipv6, ethernet, sc
	KeyBytesSent   = "bytes_sent"   // bytes written to the link
	KeyBytesRecv   = "bytes_recv"   // bytes read from the link
	KeyClientIP    = "client_ip"    // remote IP address for IP-based adapters
	KeyClientPort  = "client_port"  // remote UDP/TCP port
	KeyConnectionID = "connection_id" // BVLC-SC WebSocket connection identifier

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeySource     = "source"      // originating component: router, bbmd, tsm, ...
	KeySweep      = "sweep"       // correlation id for one discovery broadcast+collect cycle
	KeyCount      = "count"       // generic result count
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for the exchange correlation id.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for a sub-step id within an exchange.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Application Service & APDU
// ----------------------------------------------------------------------------

// Service returns a slog.Attr for an application service name.
func Service(name string) slog.Attr {
	return slog.String(KeyService, name)
}

// InvokeID returns a slog.Attr for a TSM invoke-id.
func InvokeID(id int) slog.Attr {
	return slog.Int(KeyInvokeID, id)
}

// PDUType returns a slog.Attr for the APDU PDU type.
func PDUType(t string) slog.Attr {
	return slog.String(KeyPDUType, t)
}

// ErrorCode returns a slog.Attr for a BACnet error class/code or reject/abort reason.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// ----------------------------------------------------------------------------
// Object & Property References
// ----------------------------------------------------------------------------

// ObjectType returns a slog.Attr for a BACnet object type.
func ObjectType(t string) slog.Attr {
	return slog.String(KeyObjectType, t)
}

// ObjectInst returns a slog.Attr for an object instance number.
func ObjectInst(inst uint32) slog.Attr {
	return slog.Uint64(KeyObjectInst, uint64(inst))
}

// PropertyID returns a slog.Attr for a property identifier.
func PropertyID(id uint32) slog.Attr {
	return slog.Uint64(KeyPropertyID, uint64(id))
}

// ArrayIndex returns a slog.Attr for a property array index.
func ArrayIndex(idx int) slog.Attr {
	return slog.Int(KeyArrayIndex, idx)
}

// ----------------------------------------------------------------------------
// Addressing & Network Layer
// ----------------------------------------------------------------------------

// Peer returns a slog.Attr for a peer address, formatted via Stringer.
func Peer(addr fmt.Stringer) slog.Attr {
	return slog.String(KeyPeer, addr.String())
}

// PeerStr returns a slog.Attr for a peer address already formatted as a string.
func PeerStr(addr string) slog.Attr {
	return slog.String(KeyPeer, addr)
}

// Network returns a slog.Attr for a network number.
func Network(n uint16) slog.Attr {
	return slog.Int(KeyNetwork, int(n))
}

// Port returns a slog.Attr for a local transport-port identifier.
func Port(id string) slog.Attr {
	return slog.String(KeyPort, id)
}

// NextHop returns a slog.Attr for a next-hop MAC, hex-encoded.
func NextHop(mac []byte) slog.Attr {
	return slog.String(KeyNextHop, fmt.Sprintf("%x", mac))
}

// HopCount returns a slog.Attr for an NPDU hop count.
func HopCount(n uint8) slog.Attr {
	return slog.Int(KeyHopCount, int(n))
}

// ----------------------------------------------------------------------------
// Segmentation & Transaction State Machine
// ----------------------------------------------------------------------------

// Seq returns a slog.Attr for a segment sequence number.
func Seq(n uint8) slog.Attr {
	return slog.Int(KeySeq, int(n))
}

// WindowSize returns a slog.Attr for a segmentation window size.
func WindowSize(n int) slog.Attr {
	return slog.Int(KeyWindowSize, n)
}

// MoreFollows returns a slog.Attr for the APDU more-follows flag.
func MoreFollows(more bool) slog.Attr {
	return slog.Bool(KeyMoreFollows, more)
}

// TimerMs returns a slog.Attr for a TSM timer duration in milliseconds.
func TimerMs(ms int) slog.Attr {
	return slog.Int(KeyTimerMs, ms)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the configured maximum retry count.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ----------------------------------------------------------------------------
// BBMD / Foreign Device
// ----------------------------------------------------------------------------

// BBMD returns a slog.Attr for a BBMD address.
func BBMD(addr string) slog.Attr {
	return slog.String(KeyBBMD, addr)
}

// TTL returns a slog.Attr for a registration or FDT entry TTL in seconds.
func TTL(seconds int) slog.Attr {
	return slog.Int(KeyTTL, seconds)
}

// ResultCode returns a slog.Attr for a BVLC-Result code.
func ResultCode(code uint16) slog.Attr {
	return slog.Int(KeyResultCode, int(code))
}

// ----------------------------------------------------------------------------
// Transport / Link
// ----------------------------------------------------------------------------

// Adapter returns a slog.Attr for a data-link adapter name.
func Adapter(name string) slog.Attr {
	return slog.String(KeyAdapter, name)
}

// BytesSent returns a slog.Attr for bytes written to the link.
func BytesSent(n int) slog.Attr {
	return slog.Int(KeyBytesSent, n)
}

// BytesRecv returns a slog.Attr for bytes read from the link.
func BytesRecv(n int) slog.Attr {
	return slog.Int(KeyBytesRecv, n)
}

// ClientIP returns a slog.Attr for a remote IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for a remote UDP/TCP port.
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// ConnectionID returns a slog.Attr for a BVLC-SC WebSocket connection identifier.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a no-op attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a slog.Attr for the originating component.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Sweep returns a slog.Attr correlating the log lines of one discovery
// broadcast-and-collect cycle.
func Sweep(id string) slog.Attr {
	return slog.String(KeySweep, id)
}

// Count returns a slog.Attr for a result count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}
