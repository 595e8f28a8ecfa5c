package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	apperrors "github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
	"github.com/vaidashi/vendor-order-desk/pkg/ratelimit"
)

// RateLimiterMiddleware applies a global and a per client IP limit
type RateLimiterMiddleware struct {
	globalLimiter     *ratelimit.TokenBucket
	ipLimiter         *ratelimit.IPRateLimiter
	logger            logger.Logger
	trustForwardedFor bool
}

// RateLimiterConfig configures the rate limiter middleware
type RateLimiterConfig struct {
	GlobalMaxTokens   float64
	GlobalRefillRate  float64
	IPMaxTokens       float64
	IPRefillRate      float64
	IPIdleTTL         time.Duration
	TrustForwardedFor bool
	Clock             clock.Clock
}

// NewRateLimiterMiddleware creates a new rate limiter middleware
func NewRateLimiterMiddleware(cfg *RateLimiterConfig, logger logger.Logger) *RateLimiterMiddleware {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &RateLimiterMiddleware{
		globalLimiter:     ratelimit.NewTokenBucketWithClock(cfg.GlobalMaxTokens, cfg.GlobalRefillRate, clk),
		ipLimiter:         ratelimit.NewIPRateLimiter(cfg.IPMaxTokens, cfg.IPRefillRate, cfg.IPIdleTTL, clk),
		logger:            logger,
		trustForwardedFor: cfg.TrustForwardedFor,
	}
}

// Middleware returns a middleware function
func (m *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.globalLimiter.Allow() {
			m.logger.Warn("Global rate limit exceeded", "method", r.Method, "path", r.URL.Path)
			tooManyRequests(w, 10*time.Second, apperrors.NewRateLimitedError("Global rate limit exceeded. Please try again later."))
			return
		}

		ip := m.clientIP(r)
		if !m.ipLimiter.Allow(ip) {
			m.logger.Warn("IP rate limit exceeded", "method", r.Method, "path", r.URL.Path, "ip", ip)
			tooManyRequests(w, time.Minute, apperrors.NewRateLimitedError("IP rate limit exceeded. Please try again later."))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimiterMiddleware) clientIP(r *http.Request) string {
	if m.trustForwardedFor {
		if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
			first, _, _ := strings.Cut(forwardedFor, ",")
			return strings.TrimSpace(first)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Stop stops the rate limiters
func (m *RateLimiterMiddleware) Stop() {
	m.ipLimiter.Stop()
}

// GetMetrics returns metrics about rate limiting
func (m *RateLimiterMiddleware) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"global_available":   m.globalLimiter.Available(),
		"global_max_tokens":  m.globalLimiter.MaxTokens(),
		"global_refill_rate": m.globalLimiter.RefillRate(),
		"tracked_ips":        m.ipLimiter.Len(),
	}
}

func tooManyRequests(w http.ResponseWriter, retryAfter time.Duration, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}
