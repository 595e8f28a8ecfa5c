package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	apperrors "github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
	"github.com/vaidashi/vendor-order-desk/pkg/ratelimit"
)

// EndpointRateLimiterMiddleware provides per endpoint rate limiting. The
// endpoint is the method plus the mux route template, so every order shares
// one bucket per action.
type EndpointRateLimiterMiddleware struct {
	limiters      map[string]*ratelimit.TokenBucket
	mu            sync.RWMutex
	defaultTokens float64
	defaultRate   float64
	clock         clock.Clock
	logger        logger.Logger
}

// NewEndpointRateLimiterMiddleware creates a new EndpointRateLimiterMiddleware
func NewEndpointRateLimiterMiddleware(defaultTokens, defaultRate float64, clk clock.Clock, logger logger.Logger) *EndpointRateLimiterMiddleware {
	if clk == nil {
		clk = clock.New()
	}

	return &EndpointRateLimiterMiddleware{
		limiters:      make(map[string]*ratelimit.TokenBucket),
		defaultTokens: defaultTokens,
		defaultRate:   defaultRate,
		clock:         clk,
		logger:        logger,
	}
}

// SetLimit sets the rate limit for a specific endpoint
func (m *EndpointRateLimiterMiddleware) SetLimit(endpoint string, maxTokens, refillRate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limiters[endpoint] = ratelimit.NewTokenBucketWithClock(maxTokens, refillRate, m.clock)
}

func (m *EndpointRateLimiterMiddleware) getLimiter(endpoint string) *ratelimit.TokenBucket {
	m.mu.RLock()
	limiter, exists := m.limiters[endpoint]
	m.mu.RUnlock()

	if exists {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists = m.limiters[endpoint]; exists {
		return limiter
	}
	limiter = ratelimit.NewTokenBucketWithClock(m.defaultTokens, m.defaultRate, m.clock)
	m.limiters[endpoint] = limiter
	return limiter
}

// Middleware returns a middleware function for per endpoint rate limiting
func (m *EndpointRateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + ":" + routeTemplate(r)

		if !m.getLimiter(endpoint).Allow() {
			m.logger.Warn("Endpoint rate limit exceeded",
				"endpoint", endpoint,
				"path", r.URL.Path)
			tooManyRequests(w, 5*time.Second, apperrors.NewRateLimitedError("Endpoint rate limit exceeded. Please try again later."))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// GetAllLimits returns all configured endpoint limits
func (m *EndpointRateLimiterMiddleware) GetAllLimits() map[string]map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]map[string]float64, len(m.limiters))
	for endpoint, limiter := range m.limiters {
		result[endpoint] = map[string]float64{
			"max_tokens":  limiter.MaxTokens(),
			"refill_rate": limiter.RefillRate(),
			"available":   limiter.Available(),
		}
	}
	return result
}
