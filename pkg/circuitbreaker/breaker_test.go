package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
)

func newBreaker(clk clock.Clock) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
		Clock:            clk,
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := newBreaker(clock.NewFakeClock(time.Now()))

	for i := 0; i < 2; i++ {
		cb.Failure()
	}
	assert.Equal(t, StateClosed, cb.GetState())

	cb.Failure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := newBreaker(clock.NewFakeClock(time.Now()))

	cb.Failure()
	cb.Failure()
	cb.Success()
	cb.Failure()

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cb := newBreaker(clk)
	for i := 0; i < 3; i++ {
		cb.Failure()
	}

	clk.Advance(30 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.False(t, cb.Allow(), "only one trial call in half-open")

	cb.Success()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cb := newBreaker(clk)
	for i := 0; i < 3; i++ {
		cb.Failure()
	}

	clk.Advance(time.Minute)
	assert.True(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecuteAndReset(t *testing.T) {
	cb := newBreaker(clock.NewFakeClock(time.Now()))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	}
	assert.Equal(t, ErrOpen, cb.Execute(func() error { return nil }))

	cb.Reset()
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, "closed", cb.GetMetrics()["state"])
}
