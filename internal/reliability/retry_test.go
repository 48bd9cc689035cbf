package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_CapsAtMaxInterval(t *testing.T) {
	b := NewExponentialBackoff(10*time.Millisecond, 40*time.Millisecond, 2.0, 10)
	b.Jitter = false
	assert.Equal(t, 10*time.Millisecond, b.NextDelay(0))
	assert.Equal(t, 20*time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 40*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, 40*time.Millisecond, b.NextDelay(5))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	policy := NewFixedDelay(time.Millisecond, 5)
	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	policy := NewFixedDelay(time.Millisecond, 2)
	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return errors.New("boom")
	})
	assert.Error(t, err)
	// One initial attempt plus two retries.
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	policy := NewFixedDelay(time.Millisecond, 5)
	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return RetryableError{Err: errors.New("poison"), Retryable: false}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := NewFixedDelay(time.Millisecond, 5)
	err := Retry(ctx, policy, func() error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}
