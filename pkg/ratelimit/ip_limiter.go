package ratelimit

import (
	"sync"
	"time"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
)

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for
// longer than the idle TTL are evicted.
type IPRateLimiter struct {
	limiters   map[string]*TokenBucket
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	idleTTL    time.Duration
	clock      clock.Clock
	stopChan   chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// NewIPRateLimiter creates a new IPRateLimiter and starts its cleanup loop
func NewIPRateLimiter(maxTokens, refillRate float64, idleTTL time.Duration, clk clock.Clock) *IPRateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}

	limiter := &IPRateLimiter{
		limiters:   make(map[string]*TokenBucket),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		idleTTL:    idleTTL,
		clock:      clk,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	go limiter.cleanupLoop(clk.NewTicker(idleTTL))

	return limiter
}

// Allow checks if a request from the given IP can proceed
func (ipl *IPRateLimiter) Allow(ip string) bool {
	return ipl.getLimiter(ip).Allow()
}

func (ipl *IPRateLimiter) getLimiter(ip string) *TokenBucket {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	limiter, exists := ipl.limiters[ip]
	if !exists {
		limiter = NewTokenBucketWithClock(ipl.maxTokens, ipl.refillRate, ipl.clock)
		ipl.limiters[ip] = limiter
	}
	return limiter
}

// Evict drops buckets idle for longer than the TTL and returns how many
func (ipl *IPRateLimiter) Evict() int {
	cutoff := ipl.clock.Now().Add(-ipl.idleTTL)

	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	evicted := 0
	for ip, limiter := range ipl.limiters {
		if limiter.LastUsed().Before(cutoff) {
			delete(ipl.limiters, ip)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked IPs
func (ipl *IPRateLimiter) Len() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()
	return len(ipl.limiters)
}

func (ipl *IPRateLimiter) cleanupLoop(ticker clock.Ticker) {
	defer close(ipl.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			ipl.Evict()
		case <-ipl.stopChan:
			return
		}
	}
}

// Stop stops the cleanup loop
func (ipl *IPRateLimiter) Stop() {
	ipl.stopOnce.Do(func() {
		close(ipl.stopChan)
		<-ipl.done
	})
}
