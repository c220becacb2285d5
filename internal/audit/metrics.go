package audit

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains audit metrics.
type Metrics struct {
	recordsTotal *prometheus.CounterVec
}

// NewMetrics creates audit metrics registered with the provided
// registerer so they appear on the gateway's /metrics endpoint.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "records_total",
				Help:      "Total number of audit records appended",
			},
			[]string{"capability", "class"},
		),
	}

	// Duplicate registration is harmless because descriptors are identical.
	_ = registerer.Register(m.recordsTotal)

	return m
}

// RecordAppend records an appended audit record.
func (m *Metrics) RecordAppend(capability string, status int) {
	if m == nil || m.recordsTotal == nil {
		return
	}
	if capability == "" {
		capability = "none"
	}
	m.recordsTotal.WithLabelValues(capability, statusClass(status)).Inc()
}

// statusClass buckets a status code into its class ("2xx", "4xx", ...).
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
