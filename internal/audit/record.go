// Package audit provides the append-only in-memory audit trail of
// mediated requests plus aggregate statistics derived from it.
package audit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Record describes one completed request's outcome. Records are
// immutable once appended.
type Record struct {
	// ID is the sequential record identifier (req-00000001, ...).
	// Assigned by Log.Append.
	ID string `json:"id"`

	// Time is when the record was appended.
	Time time.Time `json:"timestamp"`

	// PartnerID identifies the caller; empty when authentication failed.
	PartnerID string `json:"partner_id,omitempty"`

	// PartnerName is the caller's display name.
	PartnerName string `json:"partner_name,omitempty"`

	// Method is the HTTP method of the request.
	Method string `json:"method"`

	// Path is the request path as seen by the gateway.
	Path string `json:"path"`

	// Capability is the resource category the request targeted.
	Capability string `json:"capability,omitempty"`

	// Status is the terminal HTTP status returned to the caller.
	Status int `json:"status"`

	// Duration is the elapsed wall-clock time from pipeline entry to
	// completion.
	Duration time.Duration `json:"duration"`

	// ClientIP is the caller's network address.
	ClientIP string `json:"client_ip,omitempty"`

	// RequestID correlates the record with access logs.
	RequestID string `json:"request_id,omitempty"`

	// TraceID and SpanID are set when the request carried a sampled trace.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// Error holds upstream or pipeline error text, if any.
	Error string `json:"error,omitempty"`
}

// DurationMillis returns the elapsed time in milliseconds.
func (r Record) DurationMillis() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

// IsError reports whether the record describes a failed request.
func (r Record) IsError() bool {
	return r.Status >= 400
}

// TraceContext extracts the trace and span IDs from the context when a
// valid span is present.
func TraceContext(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
