package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hameed1198/api-gateway/internal/observability"
)

// SlidingWindowLimiter implements a sliding-log rate limiter: it keeps
// the timestamps of admitted requests within the trailing window, per
// key. Unlike a fixed-window counter it cannot be abused by bursting at
// a window boundary.
//
// Each key owns its own mutex, so concurrent checks for the same key
// serialize while unrelated keys never contend.
type SlidingWindowLimiter struct {
	window  time.Duration
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	windows sync.Map // key -> *windowState

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// windowState holds the admitted-request timestamps for one key.
type windowState struct {
	mu       sync.Mutex
	admitted []time.Time
}

// SlidingWindowOption is a functional option for the limiter.
type SlidingWindowOption func(*SlidingWindowLimiter)

// WithLogger sets the logger for the limiter.
func WithLogger(logger observability.Logger) SlidingWindowOption {
	return func(l *SlidingWindowLimiter) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector for the limiter.
func WithMetrics(m *Metrics) SlidingWindowOption {
	return func(l *SlidingWindowLimiter) {
		l.metrics = m
	}
}

// WithClock overrides the limiter's time source. Intended for tests.
func WithClock(now func() time.Time) SlidingWindowOption {
	return func(l *SlidingWindowLimiter) {
		l.now = now
	}
}

// NewSlidingWindowLimiter creates a sliding window limiter with the
// given window. A non-positive window falls back to DefaultWindow.
func NewSlidingWindowLimiter(window time.Duration, opts ...SlidingWindowOption) *SlidingWindowLimiter {
	if window <= 0 {
		window = DefaultWindow
	}

	l := &SlidingWindowLimiter{
		window: window,
		logger: observability.NopLogger(),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Window returns the configured window.
func (l *SlidingWindowLimiter) Window() time.Duration {
	return l.window
}

// Allow implements Limiter. The expire-check-append sequence runs under
// the key's mutex so two concurrent requests can never both claim the
// last slot under the quota.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string, limit int) (*Result, error) {
	now := l.now()
	ws := l.getOrCreateWindowState(key)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.expire(now, l.window)

	count := len(ws.admitted)
	allowed := count < limit
	if allowed {
		ws.admitted = append(ws.admitted, now)
		count++
	}

	res := &Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  maxInt(limit-count, 0),
		ResetAfter: ws.resetAfter(now, l.window),
	}
	if !allowed {
		res.RetryAfter = ws.resetAfter(now, l.window)
	}

	if l.metrics != nil {
		l.metrics.RecordDecision(allowed)
	}
	if !allowed {
		l.logger.Debug("rate limit denied",
			observability.String("key", key),
			observability.Int("limit", limit),
			observability.Duration("retry_after", res.RetryAfter),
		)
	}

	return res, nil
}

// Remaining implements Limiter. It expires stale timestamps but records
// no admission.
func (l *SlidingWindowLimiter) Remaining(key string, limit int) int {
	now := l.now()
	ws := l.getOrCreateWindowState(key)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.expire(now, l.window)
	return maxInt(limit-len(ws.admitted), 0)
}

// ResetAfter implements Limiter.
func (l *SlidingWindowLimiter) ResetAfter(key string) time.Duration {
	now := l.now()
	value, ok := l.windows.Load(key)
	if !ok {
		return 0
	}
	ws := value.(*windowState)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.expire(now, l.window)
	if len(ws.admitted) == 0 {
		return 0
	}
	return ws.resetAfter(now, l.window)
}

// Reset implements Limiter.
func (l *SlidingWindowLimiter) Reset(_ context.Context, key string) error {
	l.windows.Delete(key)
	return nil
}

// getOrCreateWindowState retrieves or creates the window state for a key.
func (l *SlidingWindowLimiter) getOrCreateWindowState(key string) *windowState {
	if value, ok := l.windows.Load(key); ok {
		return value.(*windowState)
	}
	value, _ := l.windows.LoadOrStore(key, &windowState{})
	return value.(*windowState)
}

// expire drops admissions that have exited the trailing window.
// Must be called with ws.mu held.
func (ws *windowState) expire(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(ws.admitted) && !ws.admitted[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		ws.admitted = append(ws.admitted[:0], ws.admitted[idx:]...)
	}
}

// resetAfter reports when the oldest admission exits the window.
// Must be called with ws.mu held.
func (ws *windowState) resetAfter(now time.Time, window time.Duration) time.Duration {
	if len(ws.admitted) == 0 {
		return 0
	}
	d := ws.admitted[0].Add(window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// StartCleanup starts a goroutine that periodically drops idle keys so
// the window map does not grow without bound.
func (l *SlidingWindowLimiter) StartCleanup(interval time.Duration) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if interval <= 0 {
		interval = l.window
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Cleanup(l.window)
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Cleanup removes keys whose every admission is older than maxAge.
func (l *SlidingWindowLimiter) Cleanup(maxAge time.Duration) {
	now := l.now()
	cutoff := now.Add(-maxAge)

	l.windows.Range(func(key, value interface{}) bool {
		ws := value.(*windowState)

		ws.mu.Lock()
		idle := true
		for _, t := range ws.admitted {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		ws.mu.Unlock()

		if idle {
			l.windows.Delete(key)
		}
		return true
	})
}

// Stop stops the cleanup goroutine.
func (l *SlidingWindowLimiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
