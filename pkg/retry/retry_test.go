package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, &RetryConfig{MaxAttempts: 5, BackoffStrategy: &ConstantBackoff{Interval: time.Millisecond}})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, &RetryConfig{MaxAttempts: 3, BackoffStrategy: &ConstantBackoff{}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errFlaky))
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return fatal
	}, &RetryConfig{MaxAttempts: 3, RetryableErrors: []error{errFlaky}})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryShouldRetryOverridesList(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, &RetryConfig{
		MaxAttempts:     3,
		RetryableErrors: []error{errFlaky},
		ShouldRetry:     func(error) bool { return false },
	})

	assert.Equal(t, 1, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func(context.Context) error { return nil }, &RetryConfig{MaxAttempts: 3})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryWithDiscard(t *testing.T) {
	discarded := false
	err := RetryWithDiscard(context.Background(), func(context.Context) error {
		return errFlaky
	}, &RetryConfig{MaxAttempts: 1}, func(err error) error {
		discarded = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, discarded)
}

func TestBackoffStrategies(t *testing.T) {
	exp := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, exp.NextBackoff(1))
	assert.Equal(t, 400*time.Millisecond, exp.NextBackoff(3))
	assert.Equal(t, time.Second, exp.NextBackoff(10))

	lin := &LinearBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: 250 * time.Millisecond, Step: 100 * time.Millisecond}
	assert.Equal(t, 200*time.Millisecond, lin.NextBackoff(2))
	assert.Equal(t, 250*time.Millisecond, lin.NextBackoff(5))
}
