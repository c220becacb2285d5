package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains forwarder metrics.
type Metrics struct {
	forwardsTotal   *prometheus.CounterVec
	forwardDuration prometheus.Histogram
}

// NewMetrics creates forwarder metrics registered with the provided
// registerer so they appear on the gateway's /metrics endpoint.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		forwardsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "forwards_total",
				Help:      "Total number of backend forwards by outcome",
			},
			[]string{"outcome"},
		),
		forwardDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "forward_duration_seconds",
				Help:      "Backend forward duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	// Duplicate registration is harmless because descriptors are identical.
	_ = registerer.Register(m.forwardsTotal)
	_ = registerer.Register(m.forwardDuration)

	for _, outcome := range []string{"ok", "timeout", "circuit_open", "unavailable"} {
		m.forwardsTotal.WithLabelValues(outcome)
	}

	return m
}

// RecordForward records the outcome and duration of one forward.
func (m *Metrics) RecordForward(outcome string, duration time.Duration) {
	if m == nil || m.forwardsTotal == nil {
		return
	}
	m.forwardsTotal.WithLabelValues(outcome).Inc()
	m.forwardDuration.Observe(duration.Seconds())
}
