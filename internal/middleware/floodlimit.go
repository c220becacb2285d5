package middleware

import (
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hameed1198/api-gateway/internal/observability"
)

// Flood limiter configuration constants.
const (
	// DefaultClientTTL is how long an idle client entry is retained.
	DefaultClientTTL = 10 * time.Minute

	// MinCleanupInterval is the minimum interval between cleanup runs.
	MinCleanupInterval = 10 * time.Second

	// MaxCleanupInterval is the maximum interval between cleanup runs.
	MaxCleanupInterval = time.Minute
)

// clientEntry holds a token bucket and its last access time for
// TTL-based cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// FloodLimiter is a coarse per-client-IP listener guard. It protects
// the gateway process itself from floods and is independent of the
// per-partner quota enforcement inside the mediation pipeline.
type FloodLimiter struct {
	rps       int
	burst     int
	clients   map[string]*clientEntry
	mu        sync.Mutex
	logger    observability.Logger
	clientTTL time.Duration
	stopCh    chan struct{}
	stopped   bool
}

// FloodLimiterOption is a functional option for the flood limiter.
type FloodLimiterOption func(*FloodLimiter)

// WithFloodLimiterLogger sets the logger for the flood limiter.
func WithFloodLimiterLogger(logger observability.Logger) FloodLimiterOption {
	return func(fl *FloodLimiter) {
		fl.logger = logger
	}
}

// WithClientTTL sets the idle TTL for per-client entries.
func WithClientTTL(ttl time.Duration) FloodLimiterOption {
	return func(fl *FloodLimiter) {
		if ttl > 0 {
			fl.clientTTL = ttl
		}
	}
}

// NewFloodLimiter creates a flood limiter allowing rps requests per
// second with the given burst per client IP.
func NewFloodLimiter(rps, burst int, opts ...FloodLimiterOption) *FloodLimiter {
	if burst < 1 {
		burst = rps
	}
	fl := &FloodLimiter{
		rps:       rps,
		burst:     burst,
		clients:   make(map[string]*clientEntry),
		logger:    observability.NopLogger(),
		clientTTL: DefaultClientTTL,
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(fl)
	}

	return fl
}

// Allow reports whether the client may proceed.
func (fl *FloodLimiter) Allow(clientIP string) bool {
	now := time.Now()

	fl.mu.Lock()
	entry, exists := fl.clients[clientIP]
	if !exists {
		entry = &clientEntry{
			limiter:    rate.NewLimiter(rate.Limit(fl.rps), fl.burst),
			lastAccess: now,
		}
		fl.clients[clientIP] = entry
	} else {
		entry.lastAccess = now
	}
	limiter := entry.limiter
	fl.mu.Unlock()

	return limiter.Allow()
}

// Cleanup removes client entries idle longer than maxAge.
func (fl *FloodLimiter) Cleanup(maxAge time.Duration) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()
	removed := 0
	for clientIP, entry := range fl.clients {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(fl.clients, clientIP)
			removed++
		}
	}

	if removed > 0 {
		fl.logger.Debug("cleaned up idle flood limiter entries",
			observability.Int("removed", removed),
			observability.Int("remaining", len(fl.clients)),
		)
	}
}

// StartCleanup launches the background cleanup goroutine. The interval
// is derived from the client TTL and clamped to sane bounds.
func (fl *FloodLimiter) StartCleanup() {
	fl.mu.Lock()
	if fl.stopped {
		fl.mu.Unlock()
		return
	}
	fl.mu.Unlock()

	interval := fl.clientTTL / 2
	if interval > MaxCleanupInterval {
		interval = MaxCleanupInterval
	}
	if interval < MinCleanupInterval {
		interval = MinCleanupInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fl.Cleanup(fl.clientTTL)
			case <-fl.stopCh:
				return
			}
		}
	}()
}

// Stop stops the cleanup goroutine.
func (fl *FloodLimiter) Stop() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if !fl.stopped {
		fl.stopped = true
		close(fl.stopCh)
	}
}

// FloodLimit returns a middleware that rejects flooding clients with
// 429 before they reach the mediation pipeline.
func FloodLimit(fl *FloodLimiter, extractor *ClientIPExtractor) func(http.Handler) http.Handler {
	if extractor == nil {
		extractor = NewClientIPExtractor(nil)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := extractor.Extract(r)

			if !fl.Allow(clientIP) {
				fl.logger.Warn("flood limit exceeded",
					observability.String("client_ip", clientIP),
					observability.String("path", r.URL.Path),
				)

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.Header().Set(HeaderRetryAfter, "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, ErrTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
