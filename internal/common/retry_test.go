package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygopack/packtrack/internal/service"
)

func fastRetryOpts(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastRetryOpts(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return errors.New("persistent")
	}, fastRetryOpts(3))

	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	boom := &RetryableError{Err: errors.New("bad input"), Retryable: false}
	err := WithRetry(context.Background(), func() error {
		calls++
		return boom
	}, fastRetryOpts(5))

	assert.Equal(t, 1, calls)
	var rerr *RetryableError
	require.ErrorAs(t, err, &rerr)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return errors.New("transient")
	}, fastRetryOpts(5))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"api connection", ErrAPIConnection, true},
		{"api timeout", ErrAPITimeout, true},
		{"deadline", context.DeadlineExceeded, true},
		{"validation", NewValidationError("name", "required"), false},
		{"retryable wrapper", &RetryableError{Err: errors.New("x"), Retryable: true}, true},
		{"non-retryable wrapper", &RetryableError{Err: errors.New("x"), Retryable: false}, false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "invalid name: required", NewValidationError("name", "required").Error())
	assert.Equal(t, "required", NewValidationError("", "required").Error())
}
