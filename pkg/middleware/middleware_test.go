package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func request(h http.Handler, remote, forwarded string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterPerIP(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 100, GlobalRefillRate: 0,
		IPMaxTokens: 2, IPRefillRate: 0,
		IPIdleTTL: time.Minute,
		Clock:     clock.NewFakeClock(time.Now()),
	}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(ok)
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:5000", ""))
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:5001", ""))
	assert.Equal(t, http.StatusTooManyRequests, request(h, "10.0.0.1:5002", ""))
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.2:5000", ""))
}

func TestRateLimiterGlobal(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 1, GlobalRefillRate: 0,
		IPMaxTokens: 10, IPRefillRate: 0,
		Clock: clock.NewFakeClock(time.Now()),
	}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(ok)
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:1", ""))
	assert.Equal(t, http.StatusTooManyRequests, request(h, "10.0.0.2:1", ""))
}

func TestRateLimitedResponseBody(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 100, IPMaxTokens: 1,
		Clock: clock.NewFakeClock(time.Now()),
	}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(ok)
	require.Equal(t, http.StatusOK, request(h, "10.0.0.1:1", ""))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.RemoteAddr = "10.0.0.1:2"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "IP rate limit exceeded. Please try again later.", body.Error)
}

func TestRateLimiterForwardedFor(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 100, IPMaxTokens: 1,
		TrustForwardedFor: true,
		Clock:             clock.NewFakeClock(time.Now()),
	}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(ok)
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.9:1", "203.0.113.5, 10.0.0.9"))
	assert.Equal(t, http.StatusTooManyRequests, request(h, "10.0.0.9:2", "203.0.113.5"))
	assert.Equal(t, http.StatusOK, request(h, "10.0.0.9:3", "203.0.113.6"))
}

func TestEndpointLimiterSharesBucketPerRoute(t *testing.T) {
	em := NewEndpointRateLimiterMiddleware(1, 0, clock.NewFakeClock(time.Now()), logger.NewNop())

	r := mux.NewRouter()
	r.Use(em.Middleware)
	r.Handle("/orders/{id}/accept", ok).Methods(http.MethodPost)

	post := func(path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post("/orders/a/accept"))
	assert.Equal(t, http.StatusTooManyRequests, post("/orders/b/accept"))
	assert.Contains(t, em.GetAllLimits(), "POST:/orders/{id}/accept")
}
