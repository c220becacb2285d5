// Package ratelimit provides per-partner rate limiting for the API
// Gateway using a sliding window over request timestamps.
package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the default rate-limit window.
const DefaultWindow = time.Minute

// Limiter decides whether a request is admitted for a key. The limit is
// passed per call because every partner carries its own quota.
type Limiter interface {
	// Allow checks if a single request is admitted for the given key
	// with the given per-window limit.
	Allow(ctx context.Context, key string, limit int) (*Result, error)

	// Remaining reports how many admissions are left in the current
	// window without mutating limiter state.
	Remaining(key string, limit int) int

	// ResetAfter reports how long until the oldest admission in the
	// window expires. Zero when the key has no recorded admissions.
	ResetAfter(key string) time.Duration

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Result represents the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request was admitted.
	Allowed bool

	// Limit is the maximum number of admissions in the window.
	Limit int

	// Remaining is the number of admissions left in the current window.
	Remaining int

	// ResetAfter is the duration until the oldest admission exits the window.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying (when denied).
	RetryAfter time.Duration
}

// NoopLimiter admits every request. It backs the gateway when
// rateLimit.disabled is set in configuration.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(_ context.Context, _ string, limit int) (*Result, error) {
	return &Result{Allowed: true, Limit: limit, Remaining: limit}, nil
}

// Remaining implements Limiter.
func (l *NoopLimiter) Remaining(_ string, limit int) int {
	return limit
}

// ResetAfter implements Limiter.
func (l *NoopLimiter) ResetAfter(_ string) time.Duration {
	return 0
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(_ context.Context, _ string) error {
	return nil
}
