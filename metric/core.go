// Package metric exposes the coordination core's operational metrics via
// Prometheus: connection health, tag traffic and latency, cycle throughput
// and state machine activity.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics for the vision cell.
type Metrics struct {
	// Connection metrics
	ConnectionStatus  prometheus.Gauge
	ConnectionErrors  prometheus.Counter
	Reconnects        prometheus.Counter
	HeartbeatsWritten prometheus.Counter

	// Tag I/O metrics
	TagReads   *prometheus.CounterVec
	TagWrites  *prometheus.CounterVec
	TagLatency *prometheus.HistogramVec

	// Cycle metrics
	CyclesCompleted prometheus.Counter
	CycleDuration   prometheus.Histogram

	// State machine metrics
	ControllerState  prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	ControllerErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "visioncore",
				Subsystem: "plc",
				Name:      "connection_status",
				Help:      "Connection status (0=disconnected, 1=connecting, 2=connected, 3=degraded, 4=simulated, 5=error)",
			},
		),

		ConnectionErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "plc",
				Name:      "connection_errors_total",
				Help:      "Total number of failed tag operations",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "plc",
				Name:      "reconnects_total",
				Help:      "Total number of reconnection attempts",
			},
		),

		HeartbeatsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "plc",
				Name:      "heartbeats_total",
				Help:      "Total number of heartbeat toggles written",
			},
		),

		TagReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "tags",
				Name:      "reads_total",
				Help:      "Total number of tag reads",
			},
			[]string{"tag", "status"},
		),

		TagWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "tags",
				Name:      "writes_total",
				Help:      "Total number of tag writes",
			},
			[]string{"tag", "status"},
		),

		TagLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "visioncore",
				Subsystem: "tags",
				Name:      "latency_seconds",
				Help:      "Per-call tag operation latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),

		CyclesCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "cycles",
				Name:      "completed_total",
				Help:      "Total number of completed pick-and-place cycles",
			},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "visioncore",
				Subsystem: "cycles",
				Name:      "duration_seconds",
				Help:      "Pick-and-place cycle duration in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 15, 30, 60, 120},
			},
		),

		ControllerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "visioncore",
				Subsystem: "controller",
				Name:      "state",
				Help:      "Current controller state as ordinal",
			},
		),

		StateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "controller",
				Name:      "transitions_total",
				Help:      "Total number of state transitions",
			},
			[]string{"from", "to"},
		),

		ControllerErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "visioncore",
				Subsystem: "controller",
				Name:      "errors_total",
				Help:      "Total number of controller errors",
			},
		),
	}
}

// RecordConnectionStatus updates the connection status gauge.
func (m *Metrics) RecordConnectionStatus(status int) {
	m.ConnectionStatus.Set(float64(status))
}

// RecordTagRead increments the read counter and observes latency.
func (m *Metrics) RecordTagRead(tag string, ok bool, latency time.Duration) {
	m.TagReads.WithLabelValues(tag, statusLabel(ok)).Inc()
	m.TagLatency.WithLabelValues("read").Observe(latency.Seconds())
}

// RecordTagWrite increments the write counter and observes latency.
func (m *Metrics) RecordTagWrite(tag string, ok bool, latency time.Duration) {
	m.TagWrites.WithLabelValues(tag, statusLabel(ok)).Inc()
	m.TagLatency.WithLabelValues("write").Observe(latency.Seconds())
}

// RecordCycle increments the cycle counter and observes the duration.
func (m *Metrics) RecordCycle(duration time.Duration) {
	m.CyclesCompleted.Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

// RecordTransition counts one state transition and updates the state gauge.
func (m *Metrics) RecordTransition(from, to string, ordinal int) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
	m.ControllerState.Set(float64(ordinal))
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
