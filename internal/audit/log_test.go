package audit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Append(t *testing.T) {
	l := NewLog(10)

	r := l.Append(Record{
		PartnerID:   "partner-001",
		PartnerName: "Premium Partner Inc.",
		Method:      "GET",
		Path:        "/api/posts",
		Capability:  "posts",
		Status:      200,
		Duration:    20 * time.Millisecond,
	})

	assert.Equal(t, "req-00000001", r.ID)
	assert.False(t, r.Time.IsZero())
	assert.Equal(t, 1, l.Len())

	r2 := l.Append(Record{Method: "GET", Path: "/api/posts", Status: 401})
	assert.Equal(t, "req-00000002", r2.ID)
}

func TestLog_Recent(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 5; i++ {
		l.Append(Record{Path: fmt.Sprintf("/api/posts/%d", i), Status: 200})
	}

	t.Run("most recent first", func(t *testing.T) {
		recent := l.Recent(3)
		require.Len(t, recent, 3)
		assert.Equal(t, "/api/posts/4", recent[0].Path)
		assert.Equal(t, "/api/posts/3", recent[1].Path)
		assert.Equal(t, "/api/posts/2", recent[2].Path)
	})

	t.Run("non-positive limit returns all", func(t *testing.T) {
		assert.Len(t, l.Recent(0), 5)
		assert.Len(t, l.Recent(-1), 5)
	})

	t.Run("limit above count capped", func(t *testing.T) {
		assert.Len(t, l.Recent(100), 5)
	})
}

func TestLog_Eviction(t *testing.T) {
	l := NewLog(3)

	for i := 1; i <= 5; i++ {
		l.Append(Record{
			PartnerName: "P",
			Path:        fmt.Sprintf("/r/%d", i),
			Capability:  "posts",
			Status:      200,
			Duration:    time.Duration(i) * time.Millisecond,
		})
	}

	assert.Equal(t, 3, l.Len())

	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "/r/5", recent[0].Path)
	assert.Equal(t, "/r/3", recent[2].Path)

	// Aggregates follow eviction: only records 3..5 are retained.
	s := l.Stats()
	assert.Equal(t, 3, s.TotalRequests)
	assert.Equal(t, 3, s.ByCapability["posts"])
	assert.Equal(t, 3, s.ByPartner["P"])
	assert.InDelta(t, 4.0, s.AvgDurationMillis, 0.001) // (3+4+5)/3
}

func TestLog_ByPartner(t *testing.T) {
	l := NewLog(10)
	l.Append(Record{PartnerID: "a", Path: "/1", Status: 200})
	l.Append(Record{PartnerID: "b", Path: "/2", Status: 200})
	l.Append(Record{PartnerID: "a", Path: "/3", Status: 200})

	records := l.ByPartner("a", 0)
	require.Len(t, records, 2)
	assert.Equal(t, "/3", records[0].Path)
	assert.Equal(t, "/1", records[1].Path)

	assert.Len(t, l.ByPartner("a", 1), 1)
	assert.Empty(t, l.ByPartner("c", 0))
}

func TestLog_Stats(t *testing.T) {
	l := NewLog(100)

	t.Run("empty log", func(t *testing.T) {
		s := l.Stats()
		assert.Zero(t, s.TotalRequests)
		assert.Zero(t, s.ErrorCount)
		assert.Zero(t, s.AvgDurationMillis)
		assert.Empty(t, s.ByCapability)
	})

	l.Append(Record{PartnerName: "A", Capability: "users", Status: 200, Duration: 10 * time.Millisecond})
	l.Append(Record{PartnerName: "A", Capability: "posts", Status: 502, Duration: 30 * time.Millisecond})
	l.Append(Record{PartnerName: "B", Capability: "posts", Status: 429, Duration: 2 * time.Millisecond})

	s := l.Stats()
	assert.Equal(t, 3, s.TotalRequests)
	assert.Equal(t, map[string]int{"users": 1, "posts": 2}, s.ByCapability)
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, s.ByPartner)
	assert.Equal(t, 2, s.ErrorCount)
	assert.InDelta(t, 14.0, s.AvgDurationMillis, 0.001)
}

// TestLog_StatsMatchRetained checks the completeness invariant: the
// total always equals the number of retained records and the per-partner
// counts always sum to it.
func TestLog_StatsMatchRetained(t *testing.T) {
	l := NewLog(50)

	partners := []string{"P1", "P2", "P3"}
	for i := 0; i < 15; i++ {
		l.Append(Record{
			PartnerID:   partners[i%3],
			PartnerName: partners[i%3],
			Capability:  "posts",
			Status:      200,
		})
	}

	s := l.Stats()
	assert.Equal(t, 15, s.TotalRequests)
	assert.Equal(t, l.Len(), s.TotalRequests)

	sum := 0
	for _, n := range s.ByPartner {
		sum += n
	}
	assert.Equal(t, 15, sum)
}

func TestLog_ConcurrentAppend(t *testing.T) {
	l := NewLog(1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Append(Record{PartnerName: "P", Status: 200})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, l.Len())
	assert.Equal(t, 200, l.Stats().TotalRequests)

	// Every record kept its unique sequential ID; none were lost or
	// interleaved.
	seen := make(map[string]bool)
	for _, r := range l.Recent(0) {
		assert.False(t, seen[r.ID])
		seen[r.ID] = true
	}
}

func TestRecord_Helpers(t *testing.T) {
	r := Record{Status: 504, Duration: 1500 * time.Microsecond}
	assert.True(t, r.IsError())
	assert.InDelta(t, 1.5, r.DurationMillis(), 0.001)

	ok := Record{Status: 200}
	assert.False(t, ok.IsError())
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(504))
	assert.Equal(t, "unknown", statusClass(0))
}
