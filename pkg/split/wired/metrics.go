package wired

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Role labels.
const (
	RoleCentral    = "central"
	RolePeripheral = "peripheral"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "split",
			Subsystem: "wired",
			Name:      "frames_sent_total",
			Help:      "Envelopes queued for transmission.",
		},
		[]string{"role"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "split",
			Subsystem: "wired",
			Name:      "frames_received_total",
			Help:      "Envelopes decoded and dispatched.",
		},
		[]string{"role"},
	)
	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "split",
			Subsystem: "wired",
			Name:      "frame_errors_total",
			Help:      "Received envelopes dropped by reason.",
		},
		[]string{"role", "reason"},
	)
	resyncBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "split",
			Subsystem: "wired",
			Name:      "resync_bytes_total",
			Help:      "Bytes skipped while searching for the envelope prefix.",
		},
	)
	txNoSpace = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "split",
			Subsystem: "wired",
			Name:      "tx_no_space_total",
			Help:      "Outbound envelopes rejected for lack of buffer space.",
		},
		[]string{"role"},
	)
	rxOverflowBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "split",
			Subsystem: "wired",
			Name:      "rx_overflow_bytes_total",
			Help:      "Received bytes dropped because the RX buffer was full.",
		},
		[]string{"mode"},
	)
	arbiterEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "split",
			Subsystem: "wired",
			Name:      "arbiter_events_total",
			Help:      "Half-duplex arbiter grants and timeouts.",
		},
		[]string{"event"},
	)
)

// RegisterMetrics registers the transport collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, framesReceived, frameErrors,
			resyncBytes, txNoSpace, rxOverflowBytes, arbiterEvents)
	})
}
