package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceivedTotal counts packets pulled from the capture queue
	PacketsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netem_agent_packets_received_total",
			Help: "Total number of packets received from the capture queue",
		},
		[]string{"direction"},
	)

	// PacketsInjectedTotal counts packets reinjected into the network
	PacketsInjectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netem_agent_packets_injected_total",
			Help: "Total number of packets reinjected after processing",
		},
		[]string{"direction"},
	)

	// PacketsDroppedTotal counts packets discarded by a module
	PacketsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netem_agent_packets_dropped_total",
			Help: "Total number of packets discarded by a manipulation module",
		},
		[]string{"module"},
	)

	// PacketsDuplicatedTotal counts extra copies emitted by the duplicate module
	PacketsDuplicatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netem_agent_packets_duplicated_total",
			Help: "Total number of extra packet copies emitted",
		},
	)

	// PacketsBuffered tracks packets currently held by a module
	PacketsBuffered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netem_agent_packets_buffered",
			Help: "Number of packets currently buffered by a manipulation module",
		},
		[]string{"module"},
	)

	// InjectFailuresTotal counts reinjection failures
	InjectFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netem_agent_inject_failures_total",
			Help: "Total number of packet reinjection failures",
		},
	)

	// ThrottlingActive tracks whether the throttle module is stalling traffic
	ThrottlingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netem_agent_throttling_active",
			Help: "Whether the throttle module is currently stalling traffic (0/1)",
		},
	)

	// CycleDurationSeconds measures the pipeline dispatch cycle latency
	CycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netem_agent_cycle_duration_seconds",
			Help:    "Latency of a full module dispatch cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
	)

	// EmulationRunning tracks whether the pipeline is running
	EmulationRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netem_agent_emulation_running",
			Help: "Whether the emulation pipeline is running (0=idle, 1=running)",
		},
	)
)
