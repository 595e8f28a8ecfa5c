package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// getRateLimitsHandler returns the current rate limit settings and metrics
func (s *Server) getRateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"global_metrics":  s.rateLimiter.GetMetrics(),
		"endpoint_limits": s.endpointRateLimiter.GetAllLimits(),
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response})
}

// setEndpointRateLimitHandler sets the limit of one lifecycle route. The
// endpoint is written as METHOD:/route/template, e.g.
// POST:/api/v1/orders/{id}/accept.
func (s *Server) setEndpointRateLimitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint   string  `json:"endpoint"`
		MaxTokens  float64 `json:"max_tokens"`
		RefillRate float64 `json:"refill_rate"`
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	method, path, ok := strings.Cut(req.Endpoint, ":")
	if !ok || method == "" || !strings.HasPrefix(path, "/") {
		s.respondWithError(w, http.StatusBadRequest, "Endpoint must look like METHOD:/path")
		return
	}

	if req.MaxTokens <= 0 || req.RefillRate <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "MaxTokens and RefillRate must be greater than zero")
		return
	}

	endpoint := strings.ToUpper(method) + ":" + path
	s.endpointRateLimiter.SetLimit(endpoint, req.MaxTokens, req.RefillRate)
	s.logger.Info("Endpoint rate limit updated",
		"endpoint", endpoint,
		"maxTokens", req.MaxTokens,
		"refillRate", req.RefillRate)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message":     "Rate limit updated successfully",
			"endpoint":    endpoint,
			"max_tokens":  req.MaxTokens,
			"refill_rate": req.RefillRate,
		},
	})
}
