package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
)

// ErrOpen is returned by Execute while the circuit rejects calls
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker
type State int32

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateHalfOpen              // Testing if the upstream is healthy again
	StateOpen                  // Requests are rejected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	state            *atomic.Int32
	failureCount     *atomic.Int64
	halfOpenCalls    *atomic.Int64
	failureThreshold int64
	resetTimeout     time.Duration
	halfOpenMaxCalls int64

	clock           clock.Clock
	mutex           sync.RWMutex
	lastStateChange time.Time
}

// CircuitBreakerConfig configures a CircuitBreaker
type CircuitBreakerConfig struct {
	FailureThreshold int64
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int64
	Clock            clock.Clock
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.HalfOpenMaxCalls < 1 {
		config.HalfOpenMaxCalls = 1
	}
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}

	return &CircuitBreaker{
		state:            atomic.NewInt32(int32(StateClosed)),
		failureCount:     atomic.NewInt64(0),
		halfOpenCalls:    atomic.NewInt64(0),
		failureThreshold: config.FailureThreshold,
		resetTimeout:     config.ResetTimeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		clock:            config.Clock,
		lastStateChange:  config.Clock.Now(),
	}
}

// Allow checks if a request is allowed based on the circuit breaker state
func (cb *CircuitBreaker) Allow() bool {
	switch cb.GetState() {
	case StateClosed:
		return true
	case StateOpen:
		cb.mutex.RLock()
		elapsed := cb.clock.Now().Sub(cb.lastStateChange)
		cb.mutex.RUnlock()

		if elapsed < cb.resetTimeout {
			return false
		}
		if cb.transition(StateOpen, StateHalfOpen) {
			cb.halfOpenCalls.Store(0)
		}
		return cb.Allow()
	case StateHalfOpen:
		return cb.halfOpenCalls.Inc() <= cb.halfOpenMaxCalls
	}
	return false
}

// Success reports a successful operation
func (cb *CircuitBreaker) Success() {
	switch cb.GetState() {
	case StateHalfOpen:
		if cb.transition(StateHalfOpen, StateClosed) {
			cb.failureCount.Store(0)
		}
	case StateClosed:
		cb.failureCount.Store(0)
	}
}

// Failure reports a failed operation
func (cb *CircuitBreaker) Failure() {
	switch cb.GetState() {
	case StateClosed:
		if cb.failureCount.Inc() >= cb.failureThreshold {
			cb.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateHalfOpen, StateOpen)
	}
}

// Execute runs fn if the circuit allows it and records the outcome
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}

	if err := fn(); err != nil {
		cb.Failure()
		return err
	}
	cb.Success()
	return nil
}

// Reset forces the circuit closed and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state.Store(int32(StateClosed))
	cb.failureCount.Store(0)
	cb.halfOpenCalls.Store(0)
	cb.lastStateChange = cb.clock.Now()
}

func (cb *CircuitBreaker) transition(from, to State) bool {
	if !cb.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}

	cb.mutex.Lock()
	cb.lastStateChange = cb.clock.Now()
	cb.mutex.Unlock()
	return true
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	return State(cb.state.Load())
}

// GetMetrics returns metrics about the circuit breaker
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mutex.RLock()
	lastChange := cb.lastStateChange
	cb.mutex.RUnlock()

	return map[string]interface{}{
		"state":             cb.GetState().String(),
		"failure_count":     cb.failureCount.Load(),
		"failure_threshold": cb.failureThreshold,
		"half_open_calls":   cb.halfOpenCalls.Load(),
		"reset_timeout":     cb.resetTimeout.String(),
		"last_state_change": lastChange,
		"time_in_state":     cb.clock.Now().Sub(lastChange).String(),
	}
}
