package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(clock *fakeClock) *SlidingWindowLimiter {
	return NewSlidingWindowLimiter(time.Minute, WithClock(clock.Now))
}

func TestNewSlidingWindowLimiter_Defaults(t *testing.T) {
	l := NewSlidingWindowLimiter(0)
	assert.Equal(t, DefaultWindow, l.Window())

	l = NewSlidingWindowLimiter(30 * time.Second)
	assert.Equal(t, 30*time.Second, l.Window())
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("unseen key admits with quota-1 remaining", func(t *testing.T) {
		l := newTestLimiter(newFakeClock())
		res, err := l.Allow(ctx, "p1", 5)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 5, res.Limit)
		assert.Equal(t, 4, res.Remaining)
	})

	t.Run("remaining strictly decreases by one per admission", func(t *testing.T) {
		l := newTestLimiter(newFakeClock())
		for want := 4; want >= 0; want-- {
			res, err := l.Allow(ctx, "p1", 5)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, want, res.Remaining)
		}
	})

	t.Run("denies at quota with retry hint", func(t *testing.T) {
		clock := newFakeClock()
		l := newTestLimiter(clock)

		for i := 0; i < 2; i++ {
			res, err := l.Allow(ctx, "p1", 2)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}

		clock.Advance(10 * time.Second)
		res, err := l.Allow(ctx, "p1", 2)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		// Oldest admission was 10s ago, so the slot frees in W - 10s.
		assert.Equal(t, 50*time.Second, res.RetryAfter)
	})

	t.Run("quota of zero always denies", func(t *testing.T) {
		l := newTestLimiter(newFakeClock())
		res, err := l.Allow(ctx, "p1", 0)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
	})

	t.Run("keys do not interfere", func(t *testing.T) {
		l := newTestLimiter(newFakeClock())
		for i := 0; i < 3; i++ {
			res, err := l.Allow(ctx, "p1", 3)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}

		res, err := l.Allow(ctx, "p2", 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
	})
}

func TestSlidingWindowLimiter_WindowRecovery(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "p1", 3)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "p1", 3)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// After more than a full window with no traffic, the key behaves
	// like an unseen one again.
	clock.Advance(61 * time.Second)
	res, err = l.Allow(ctx, "p1", 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestSlidingWindowLimiter_SlidingNotFixed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLimiter(clock)

	// Two admissions 30s apart. A fixed bucket would reset both at the
	// same boundary; the sliding window frees them one at a time.
	res, err := l.Allow(ctx, "p1", 2)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	clock.Advance(30 * time.Second)
	res, err = l.Allow(ctx, "p1", 2)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	clock.Advance(31 * time.Second) // first admission expired, second has not
	res, err = l.Allow(ctx, "p1", 2)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Allow(ctx, "p1", 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestSlidingWindowLimiter_Remaining(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(newFakeClock())

	assert.Equal(t, 5, l.Remaining("p1", 5))

	_, err := l.Allow(ctx, "p1", 5)
	require.NoError(t, err)

	// Remaining is a read-only view; repeated calls must not consume quota.
	assert.Equal(t, 4, l.Remaining("p1", 5))
	assert.Equal(t, 4, l.Remaining("p1", 5))
}

func TestSlidingWindowLimiter_ResetAfter(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLimiter(clock)

	assert.Equal(t, time.Duration(0), l.ResetAfter("p1"))

	_, err := l.Allow(ctx, "p1", 5)
	require.NoError(t, err)

	clock.Advance(15 * time.Second)
	assert.Equal(t, 45*time.Second, l.ResetAfter("p1"))
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(newFakeClock())

	_, err := l.Allow(ctx, "p1", 1)
	require.NoError(t, err)

	require.NoError(t, l.Reset(ctx, "p1"))
	res, err := l.Allow(ctx, "p1", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// TestSlidingWindowLimiter_QuotaInvariant verifies that under heavy
// concurrency no more than the quota is admitted within a window.
func TestSlidingWindowLimiter_QuotaInvariant(t *testing.T) {
	ctx := context.Background()
	l := NewSlidingWindowLimiter(time.Minute)

	const (
		quota      = 10
		goroutines = 100
	)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(ctx, "p1", quota)
			if err == nil && res.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(quota), admitted.Load())
	assert.Equal(t, 0, l.Remaining("p1", quota))
}

func TestSlidingWindowLimiter_Cleanup(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestLimiter(clock)

	_, err := l.Allow(ctx, "idle", 5)
	require.NoError(t, err)
	_, err = l.Allow(ctx, "busy", 5)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = l.Allow(ctx, "busy", 5)
	require.NoError(t, err)

	l.Cleanup(time.Minute)

	_, idleKept := l.windows.Load("idle")
	_, busyKept := l.windows.Load("busy")
	assert.False(t, idleKept)
	assert.True(t, busyKept)
}

func TestSlidingWindowLimiter_StopIsIdempotent(t *testing.T) {
	l := NewSlidingWindowLimiter(time.Minute)
	l.StartCleanup(time.Second)
	l.Stop()
	l.Stop()
}

func TestNoopLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewNoopLimiter()

	for i := 0; i < 100; i++ {
		res, err := l.Allow(ctx, "any", 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.Equal(t, 1, l.Remaining("any", 1))
	assert.Equal(t, time.Duration(0), l.ResetAfter("any"))
	assert.NoError(t, l.Reset(ctx, "any"))
}
