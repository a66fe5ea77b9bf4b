// Package metrics declares the counters and gauges the protocol stack
// emits, independent of the backend that records them. pkg/metrics/prometheus
// provides the concrete Prometheus-backed implementation; tests use a
// no-op implementation so packages never need a nil check.
package metrics

// TSM covers Transaction State Machine observability: requests sent,
// retries, timeouts, and terminal outcomes by kind.
type TSM interface {
	RequestStarted(peer string)
	RequestRetried(peer string)
	RequestTimedOut(peer string)
	RequestCompleted(peer string, outcome string)
	InvokeIDsInUse(count int)
}

// Segmentation covers the sliding-window sender/receiver.
type Segmentation interface {
	SegmentSent(peer string)
	SegmentReceived(peer string)
	WindowRetransmitted(peer string)
	TransferAborted(peer string, reason string)
}

// Router covers the multi-port forwarding engine.
type Router interface {
	PacketForwarded(port string)
	PacketDropped(reason string)
	RouteLearned(network uint16)
}

// BBMD covers broadcast distribution and foreign-device registration.
type BBMD interface {
	BroadcastDistributed(peerCount int)
	ForeignDeviceRegistered(address string)
	ForeignDeviceExpired(address string)
	RegistrationAttempted(success bool)
}

// Registry bundles every subsystem's metrics sink so callers can wire one
// object through the whole stack.
type Registry struct {
	TSM          TSM
	Segmentation Segmentation
	Router       Router
	BBMD         BBMD
}

// NoOp returns a Registry whose every method is a no-op, for use when
// metrics collection is disabled or in tests that don't assert on it.
func NoOp() *Registry {
	return &Registry{
		TSM:          noopTSM{},
		Segmentation: noopSegmentation{},
		Router:       noopRouter{},
		BBMD:         noopBBMD{},
	}
}

type noopTSM struct{}

func (noopTSM) RequestStarted(string)            {}
func (noopTSM) RequestRetried(string)             {}
func (noopTSM) RequestTimedOut(string)            {}
func (noopTSM) RequestCompleted(string, string)   {}
func (noopTSM) InvokeIDsInUse(int)                {}

type noopSegmentation struct{}

func (noopSegmentation) SegmentSent(string)             {}
func (noopSegmentation) SegmentReceived(string)          {}
func (noopSegmentation) WindowRetransmitted(string)      {}
func (noopSegmentation) TransferAborted(string, string)  {}

type noopRouter struct{}

func (noopRouter) PacketForwarded(string) {}
func (noopRouter) PacketDropped(string)   {}
func (noopRouter) RouteLearned(uint16)    {}

type noopBBMD struct{}

func (noopBBMD) BroadcastDistributed(int)       {}
func (noopBBMD) ForeignDeviceRegistered(string) {}
func (noopBBMD) ForeignDeviceExpired(string)    {}
func (noopBBMD) RegistrationAttempted(bool)     {}
