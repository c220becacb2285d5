package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains rate limiter metrics.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
}

// NewMetrics creates rate limiter metrics registered with the provided
// registerer so they appear on the gateway's /metrics endpoint.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions",
			},
			[]string{"outcome"},
		),
	}

	// Duplicate registration is harmless because descriptors are identical.
	_ = registerer.Register(m.decisionsTotal)

	// Pre-populate label combinations so the series exist from startup.
	m.decisionsTotal.WithLabelValues("admitted")
	m.decisionsTotal.WithLabelValues("denied")

	return m
}

// RecordDecision records an admit/deny decision.
func (m *Metrics) RecordDecision(allowed bool) {
	if m == nil || m.decisionsTotal == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "admitted"
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}
