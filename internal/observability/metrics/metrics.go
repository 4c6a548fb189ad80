// Package metrics exposes Prometheus collectors for the alerting core.
//
// All recorder methods are safe to call on a nil *Metrics so components can
// run without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "sentinel"

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	transitions      *prometheus.CounterVec
	evaluations      *prometheus.CounterVec
	evaluationTime   prometheus.Histogram
	actuatorCommands *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	incidents        *prometheus.CounterVec
	correlatorRuns   *prometheus.CounterVec
	episodes         *prometheus.CounterVec
	suppressed       prometheus.Counter
	expired          prometheus.Counter
	ingestDropped    *prometheus.CounterVec
	activeAlerts     prometheus.Gauge
}

// New creates and registers all collectors, including Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "transitions_total",
			Help:      "Threshold state transitions by direction.",
		}, []string{"system_type", "direction"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "evaluations_total",
			Help:      "Sensor readings evaluated by outcome.",
		}, []string{"outcome"}),
		evaluationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a reading, excluding side effects.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		actuatorCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actuator",
			Name:      "commands_total",
			Help:      "Actuator commands by desired state and result.",
		}, []string{"state", "result"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by channel and result.",
		}, []string{"channel", "result"}),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "incidents_total",
			Help:      "One-shot incidents received by kind.",
		}, []string{"kind"}),
		correlatorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "runs_total",
			Help:      "Repeat-detection passes by result.",
		}, []string{"result"}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "episodes_total",
			Help:      "Repeat episodes by dispatch result.",
		}, []string{"result"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "suppressed_groups_total",
			Help:      "Groups marked without notification because the subject was notified recently.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlator",
			Name:      "expired_groups_total",
			Help:      "Non-qualifying groups marked after going stale.",
		}),
		ingestDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "dropped_total",
			Help:      "Messages dropped before evaluation by reason.",
		}, []string{"reason"}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "active_alerts",
			Help:      "Devices currently in the alerting state.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.evaluations,
		m.evaluationTime,
		m.actuatorCommands,
		m.dispatches,
		m.incidents,
		m.correlatorRuns,
		m.episodes,
		m.suppressed,
		m.expired,
		m.ingestDropped,
		m.activeAlerts,
	)
	return m
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTransition counts a rising or falling edge and adjusts the active gauge.
func (m *Metrics) RecordTransition(systemType, direction string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(systemType, direction).Inc()
	switch direction {
	case "rising":
		m.activeAlerts.Inc()
	case "falling":
		m.activeAlerts.Dec()
	}
}

// SetActiveAlerts sets the active alert gauge, used after a warm start.
func (m *Metrics) SetActiveAlerts(n int) {
	if m == nil {
		return
	}
	m.activeAlerts.Set(float64(n))
}

// RecordEvaluation counts an evaluation outcome and its duration.
func (m *Metrics) RecordEvaluation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evaluationTime.Observe(d.Seconds())
}

// RecordActuatorCommand counts an actuator command attempt.
func (m *Metrics) RecordActuatorCommand(state, result string) {
	if m == nil {
		return
	}
	m.actuatorCommands.WithLabelValues(state, result).Inc()
}

// RecordDelivery counts a delivery attempt on one channel.
func (m *Metrics) RecordDelivery(channel, result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(channel, result).Inc()
}

// RecordIncident counts a one-shot incident.
func (m *Metrics) RecordIncident(kind string) {
	if m == nil {
		return
	}
	m.incidents.WithLabelValues(kind).Inc()
}

// RecordCorrelatorRun counts a repeat-detection pass.
func (m *Metrics) RecordCorrelatorRun(result string) {
	if m == nil {
		return
	}
	m.correlatorRuns.WithLabelValues(result).Inc()
}

// RecordEpisode counts a qualifying repeat episode.
func (m *Metrics) RecordEpisode(result string) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues(result).Inc()
}

// RecordSuppressed counts a group suppressed by a recent notification.
func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

// RecordExpired counts a stale group marked without notification.
func (m *Metrics) RecordExpired() {
	if m == nil {
		return
	}
	m.expired.Inc()
}

// RecordIngestDropped counts a message dropped before evaluation.
func (m *Metrics) RecordIngestDropped(reason string) {
	if m == nil {
		return
	}
	m.ingestDropped.WithLabelValues(reason).Inc()
}
