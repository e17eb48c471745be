package sched

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Unit outcomes recorded by Metrics.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomePanic     = "panic"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// Metrics collects scheduler telemetry. One Metrics may be shared by many
// schedulers; each is labelled by its name.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth   *prometheus.GaugeVec
	unitsTotal   *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	hooksTotal   *prometheus.CounterVec
}

// NewMetrics creates a collector with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ycoord"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "queue_depth",
			Help:      "Units admitted but not yet started",
		},
		[]string{"scheduler"},
	)

	m.unitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "units_total",
			Help:      "Units submitted, by outcome",
		},
		[]string{"scheduler", "outcome"},
	)

	m.unitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "unit_duration_seconds",
			Help:      "Time a unit held exclusive access",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		},
		[]string{"scheduler"},
	)

	m.hooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sched",
			Name:      "release_hooks_total",
			Help:      "Post-release hooks run",
		},
		[]string{"scheduler"},
	)

	m.registry.MustRegister(m.queueDepth, m.unitsTotal, m.unitDuration, m.hooksTotal)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) setDepth(name string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(name).Set(float64(n))
}

func (m *Metrics) recordUnit(name, outcome string) {
	if m == nil {
		return
	}
	m.unitsTotal.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) observeDuration(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.unitDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) recordHooks(name string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.hooksTotal.WithLabelValues(name).Add(float64(n))
}
