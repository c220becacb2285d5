package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains mediation pipeline metrics.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates pipeline metrics registered with the provided
// registerer so they appear on the gateway's /metrics endpoint.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "requests_total",
				Help:      "Total number of mediated requests",
			},
			[]string{"capability", "status_class"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "request_duration_seconds",
				Help:      "End-to-end mediation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
	}

	// Duplicate registration is harmless because descriptors are identical.
	_ = registerer.Register(m.requestsTotal)
	_ = registerer.Register(m.requestDuration)

	return m
}

// RecordRequest records one completed mediation.
func (m *Metrics) RecordRequest(capability string, status int, duration time.Duration) {
	if m == nil || m.requestsTotal == nil {
		return
	}
	class := strconv.Itoa(status/100) + "xx"
	m.requestsTotal.WithLabelValues(capability, class).Inc()
	m.requestDuration.WithLabelValues(capability).Observe(duration.Seconds())
}
