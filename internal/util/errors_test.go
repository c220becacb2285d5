package util

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with field",
			err:  NewConfigError("listener.addr", "must not be empty"),
			want: "config error at listener.addr: must not be empty",
		},
		{
			name: "without field",
			err:  &ConfigError{Message: "broken"},
			want: "config error: broken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.True(t, errors.Is(tt.err, ErrConfigInvalid))
		})
	}
}

func TestBackendError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewBackendErrorWithCause("jsonplaceholder", "dial failed", cause)

	assert.Contains(t, err.Error(), "jsonplaceholder")
	assert.True(t, errors.Is(err, ErrBackendUnavail))
	assert.True(t, errors.Is(err, cause))
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), new(*BackendError))
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("forward", 30*time.Second)

	assert.Equal(t, "timeout after 30s during forward", err.Error())
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestRateLimitError(t *testing.T) {
	err := NewRateLimitError(100, 45*time.Second)

	assert.Contains(t, err.Error(), "limit: 100")
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestCircuitOpenError(t *testing.T) {
	err := NewCircuitOpenError("backend")

	assert.Equal(t, "circuit breaker backend is open", err.Error())
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "context"))

	base := errors.New("boom")
	wrapped := WrapError(base, "while doing thing")
	assert.True(t, errors.Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "while doing thing")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "backend error", err: NewBackendError("b", "down"), want: true},
		{name: "timeout error", err: NewTimeoutError("forward", time.Second), want: false},
		{
			name: "backend error wrapping timeout",
			err:  NewBackendErrorWithCause("b", "slow", ErrTimeout),
			want: false,
		},
		{name: "unrelated", err: errors.New("nope"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
