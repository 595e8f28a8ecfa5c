package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
)

// TokenBucket implements a token bucket rate limiting algorithm
type TokenBucket struct {
	tokens         float64
	maxTokens      float64
	refillRate     float64
	lastRefillTime time.Time
	clock          clock.Clock
	mutex          sync.Mutex
}

// NewTokenBucket creates a full token bucket on the real clock
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return NewTokenBucketWithClock(maxTokens, refillRate, clock.New())
}

// NewTokenBucketWithClock creates a full token bucket on clk
func NewTokenBucketWithClock(maxTokens, refillRate float64, clk clock.Clock) *TokenBucket {
	return &TokenBucket{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: clk.Now(),
		clock:          clk,
	}
}

// Allow checks if a request can proceed based on the token bucket algorithm
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN takes n tokens if that many are available
func (tb *TokenBucket) AllowN(n float64) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

func (tb *TokenBucket) refill() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.lastRefillTime = now
	tb.tokens = math.Min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.tokens = tb.maxTokens
	tb.lastRefillTime = tb.clock.Now()
}

// Available returns the number of tokens currently in the bucket
func (tb *TokenBucket) Available() float64 {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	return tb.tokens
}

// MaxTokens returns the bucket capacity
func (tb *TokenBucket) MaxTokens() float64 {
	return tb.maxTokens
}

// RefillRate returns the tokens added per second
func (tb *TokenBucket) RefillRate() float64 {
	return tb.refillRate
}

// LastUsed returns when the bucket last refilled or was reset
func (tb *TokenBucket) LastUsed() time.Time {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return tb.lastRefillTime
}
