package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "signoffs"

// MetricsCollector holds all Prometheus metrics for signoffs.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Process transitions.
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec

	// Individual signatures.
	SignoffsTotal *prometheus.CounterVec

	// Permission checks.
	SecurityChecksTotal *prometheus.CounterVec

	ActiveTransitions prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total approve and revoke transition attempts by result.",
		}, []string{"kind", "result"}),

		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Transition duration in seconds, including persistence.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),

		SignoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signoffs_total",
			Help:      "Total signoff attempts by signoff type and result.",
		}, []string{"signoff", "result"}),

		SecurityChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "checks_total",
			Help:      "Total permission checks performed.",
		}, []string{"result"}),

		ActiveTransitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_transitions",
			Help:      "Number of transitions currently in flight.",
		}),
	}

	reg.MustRegister(
		m.TransitionsTotal,
		m.TransitionDuration,
		m.SignoffsTotal,
		m.SecurityChecksTotal,
		m.ActiveTransitions,
	)

	return m
}
