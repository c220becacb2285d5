package audit

import (
	"fmt"
	"sync"
	"time"
)

// DefaultMaxRecords caps the retained audit trail.
const DefaultMaxRecords = 10000

// Stats holds aggregates over the currently retained records. The
// aggregates are maintained incrementally on append and eviction, so
// they are always consistent with the retained set.
type Stats struct {
	TotalRequests     int            `json:"total_requests"`
	ByCapability      map[string]int `json:"requests_by_capability"`
	ByPartner         map[string]int `json:"requests_by_partner"`
	ErrorCount        int            `json:"error_count"`
	AvgDurationMillis float64        `json:"avg_response_time_ms"`
}

// Log is a bounded, insertion-ordered audit trail. Appends are
// linearizable; a record becomes visible only after all its fields are
// final. When the cap is reached the oldest record is evicted first.
type Log struct {
	mu         sync.Mutex
	records    []Record // ring buffer, len == maxRecords once full
	next       int      // index of the next write
	count      int      // number of retained records
	seq        uint64   // total records ever appended
	maxRecords int

	// Incremental aggregates over retained records.
	byCapability map[string]int
	byPartner    map[string]int
	errorCount   int
	durationSum  time.Duration

	metrics *Metrics
}

// LogOption is a functional option for the audit log.
type LogOption func(*Log)

// WithLogMetrics sets the metrics collector for the log.
func WithLogMetrics(m *Metrics) LogOption {
	return func(l *Log) {
		l.metrics = m
	}
}

// NewLog creates an audit log retaining at most maxRecords entries.
// A non-positive maxRecords falls back to DefaultMaxRecords.
func NewLog(maxRecords int, opts ...LogOption) *Log {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}

	l := &Log{
		records:      make([]Record, maxRecords),
		maxRecords:   maxRecords,
		byCapability: make(map[string]int),
		byPartner:    make(map[string]int),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Append adds a finalized record to the trail. It assigns the record's
// sequential ID and timestamp, evicting the oldest record when the cap
// is reached. Append never fails.
func (l *Log) Append(r Record) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	r.ID = fmt.Sprintf("req-%08d", l.seq)
	if r.Time.IsZero() {
		r.Time = time.Now()
	}

	if l.count == l.maxRecords {
		l.subtract(l.records[l.next])
		l.count--
	}

	l.records[l.next] = r
	l.next = (l.next + 1) % l.maxRecords
	l.count++
	l.add(r)

	if l.metrics != nil {
		l.metrics.RecordAppend(r.Capability, r.Status)
	}

	return r
}

// add folds a record into the aggregates. Must hold l.mu.
func (l *Log) add(r Record) {
	if r.Capability != "" {
		l.byCapability[r.Capability]++
	}
	if r.PartnerName != "" {
		l.byPartner[r.PartnerName]++
	}
	if r.IsError() {
		l.errorCount++
	}
	l.durationSum += r.Duration
}

// subtract removes an evicted record from the aggregates. Must hold l.mu.
func (l *Log) subtract(r Record) {
	if r.Capability != "" {
		if l.byCapability[r.Capability]--; l.byCapability[r.Capability] == 0 {
			delete(l.byCapability, r.Capability)
		}
	}
	if r.PartnerName != "" {
		if l.byPartner[r.PartnerName]--; l.byPartner[r.PartnerName] == 0 {
			delete(l.byPartner, r.PartnerName)
		}
	}
	if r.IsError() {
		l.errorCount--
	}
	l.durationSum -= r.Duration
}

// Recent returns up to limit retained records, most recent first.
// A non-positive limit returns the whole retained set.
func (l *Log) Recent(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.next - 1 - i + l.maxRecords) % l.maxRecords
		out = append(out, l.records[idx])
	}
	return out
}

// ByPartner returns up to limit retained records for the given partner
// ID, most recent first.
func (l *Log) ByPartner(partnerID string, limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0)
	for i := 0; i < l.count; i++ {
		idx := (l.next - 1 - i + l.maxRecords) % l.maxRecords
		if l.records[idx].PartnerID != partnerID {
			continue
		}
		out = append(out, l.records[idx])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Stats returns the aggregates over the retained records.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		TotalRequests: l.count,
		ByCapability:  make(map[string]int, len(l.byCapability)),
		ByPartner:     make(map[string]int, len(l.byPartner)),
		ErrorCount:    l.errorCount,
	}
	for k, v := range l.byCapability {
		s.ByCapability[k] = v
	}
	for k, v := range l.byPartner {
		s.ByPartner[k] = v
	}
	if l.count > 0 {
		avg := float64(l.durationSum) / float64(l.count)
		s.AvgDurationMillis = avg / float64(time.Millisecond)
	}
	return s
}
