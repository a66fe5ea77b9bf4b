// Package prometheus implements pkg/metrics's interfaces on top of
// client_golang, following the teacher's pattern of one file of
// registered collectors per subsystem wired behind a small adapter
// struct.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bactalk/bacstack/pkg/metrics"
)

// Collectors holds every metric BACstack exports. Register adds them all
// to reg in one call so cmd/bacstackd only has to do this once.
type Collectors struct {
	requestsStarted   *prometheus.CounterVec
	requestsRetried   *prometheus.CounterVec
	requestsTimedOut  *prometheus.CounterVec
	requestsCompleted *prometheus.CounterVec
	invokeIDsInUse    prometheus.Gauge

	segmentsSent        *prometheus.CounterVec
	segmentsReceived    *prometheus.CounterVec
	windowRetransmitted *prometheus.CounterVec
	transfersAborted    *prometheus.CounterVec

	packetsForwarded *prometheus.CounterVec
	packetsDropped   *prometheus.CounterVec
	routesLearned    prometheus.Counter

	broadcastsDistributed *prometheus.CounterVec
	fdtRegistrations      *prometheus.CounterVec
	fdtExpirations        prometheus.Counter
	registrationAttempts  *prometheus.CounterVec
}

// NewCollectors creates and registers BACstack's metric collectors.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		requestsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_tsm_requests_started_total",
			Help: "Outbound confirmed requests started, by peer.",
		}, []string{"peer"}),
		requestsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_tsm_requests_retried_total",
			Help: "Outbound confirmed requests retransmitted after an APDU timeout.",
		}, []string{"peer"}),
		requestsTimedOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_tsm_requests_timed_out_total",
			Help: "Outbound confirmed requests that exhausted all retries.",
		}, []string{"peer"}),
		requestsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_tsm_requests_completed_total",
			Help: "Outbound confirmed requests that reached a terminal state, by outcome.",
		}, []string{"peer", "outcome"}),
		invokeIDsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bacstack_tsm_invoke_ids_in_use",
			Help: "Invoke-ids currently bound to an in-flight transaction.",
		}),
		segmentsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_segmentation_segments_sent_total",
			Help: "Segments transmitted by the sliding-window sender.",
		}, []string{"peer"}),
		segmentsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_segmentation_segments_received_total",
			Help: "Segments accepted by the sliding-window receiver.",
		}, []string{"peer"}),
		windowRetransmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_segmentation_window_retransmitted_total",
			Help: "Outstanding windows retransmitted after a segment-ack timeout.",
		}, []string{"peer"}),
		transfersAborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_segmentation_transfers_aborted_total",
			Help: "Segmented transfers that ended in abort, by reason.",
		}, []string{"peer", "reason"}),
		packetsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_router_packets_forwarded_total",
			Help: "NPDUs forwarded, by egress port.",
		}, []string{"port"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_router_packets_dropped_total",
			Help: "NPDUs dropped by the router, by reason.",
		}, []string{"reason"}),
		routesLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacstack_router_routes_learned_total",
			Help: "Routing-table entries learned from source-network information or I-Am-Router-To-Network.",
		}),
		broadcastsDistributed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_bbmd_broadcasts_distributed_total",
			Help: "Forwarded-NPDUs emitted by the BBMD, bucketed by peer fan-out size.",
		}, []string{"fanout"}),
		fdtRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_bbmd_foreign_device_registrations_total",
			Help: "Foreign-device registrations accepted, by address.",
		}, []string{"address"}),
		fdtExpirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bacstack_bbmd_foreign_device_expirations_total",
			Help: "Foreign Device Table entries evicted on TTL expiry.",
		}),
		registrationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacstack_bbmd_registration_attempts_total",
			Help: "Foreign-device registration attempts made by this station, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.requestsStarted, c.requestsRetried, c.requestsTimedOut, c.requestsCompleted, c.invokeIDsInUse,
		c.segmentsSent, c.segmentsReceived, c.windowRetransmitted, c.transfersAborted,
		c.packetsForwarded, c.packetsDropped, c.routesLearned,
		c.broadcastsDistributed, c.fdtRegistrations, c.fdtExpirations, c.registrationAttempts,
	)
	return c
}

// Registry adapts Collectors to pkg/metrics's interfaces.
func (c *Collectors) Registry() *metrics.Registry {
	return &metrics.Registry{
		TSM:          tsmAdapter{c},
		Segmentation: segmentationAdapter{c},
		Router:       routerAdapter{c},
		BBMD:         bbmdAdapter{c},
	}
}

type tsmAdapter struct{ c *Collectors }

func (a tsmAdapter) RequestStarted(peer string)  { a.c.requestsStarted.WithLabelValues(peer).Inc() }
func (a tsmAdapter) RequestRetried(peer string)  { a.c.requestsRetried.WithLabelValues(peer).Inc() }
func (a tsmAdapter) RequestTimedOut(peer string) { a.c.requestsTimedOut.WithLabelValues(peer).Inc() }
func (a tsmAdapter) RequestCompleted(peer, outcome string) {
	a.c.requestsCompleted.WithLabelValues(peer, outcome).Inc()
}
func (a tsmAdapter) InvokeIDsInUse(n int) { a.c.invokeIDsInUse.Set(float64(n)) }

type segmentationAdapter struct{ c *Collectors }

func (a segmentationAdapter) SegmentSent(peer string) { a.c.segmentsSent.WithLabelValues(peer).Inc() }
func (a segmentationAdapter) SegmentReceived(peer string) {
	a.c.segmentsReceived.WithLabelValues(peer).Inc()
}
func (a segmentationAdapter) WindowRetransmitted(peer string) {
	a.c.windowRetransmitted.WithLabelValues(peer).Inc()
}
func (a segmentationAdapter) TransferAborted(peer, reason string) {
	a.c.transfersAborted.WithLabelValues(peer, reason).Inc()
}

type routerAdapter struct{ c *Collectors }

func (a routerAdapter) PacketForwarded(port string) { a.c.packetsForwarded.WithLabelValues(port).Inc() }
func (a routerAdapter) PacketDropped(reason string) { a.c.packetsDropped.WithLabelValues(reason).Inc() }
func (a routerAdapter) RouteLearned(uint16)          { a.c.routesLearned.Inc() }

type bbmdAdapter struct{ c *Collectors }

func (a bbmdAdapter) BroadcastDistributed(peerCount int) {
	a.c.broadcastsDistributed.WithLabelValues(fanoutBucket(peerCount)).Inc()
}
func (a bbmdAdapter) ForeignDeviceRegistered(address string) {
	a.c.fdtRegistrations.WithLabelValues(address).Inc()
}
func (a bbmdAdapter) ForeignDeviceExpired(string) { a.c.fdtExpirations.Inc() }
func (a bbmdAdapter) RegistrationAttempted(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	a.c.registrationAttempts.WithLabelValues(result).Inc()
}

func fanoutBucket(n int) string {
	switch {
	case n == 0:
		return "0"
	case n <= 4:
		return "1-4"
	case n <= 16:
		return "5-16"
	default:
		return "16+"
	}
}
