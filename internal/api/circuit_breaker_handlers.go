package api

import (
	"net/http"
)

// getCircuitBreakerStatusHandler returns the state of the order API breaker
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	metrics := s.breaker.GetMetrics()

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: metrics})
}

// resetCircuitBreakerHandler resets the circuit breaker to closed state
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	s.breaker.Reset()
	s.logger.Info("Circuit breaker reset by admin", "remoteAddr", r.RemoteAddr)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
		},
	})
}

// getAlertsHandler returns the orders holding a breach flag and the state of
// the desktop channel
func (s *Server) getAlertsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"alerted_orders":     s.monitor.Alerted(),
			"desktop_permission": s.desktop.Permission(),
			"sound_enabled":      s.config.Alerts.SoundEnabled,
			"dropped_events":     s.hub.Dropped(),
		},
	})
}

// syncOrdersHandler polls the order API once, outside the regular schedule
func (s *Server) syncOrdersHandler(w http.ResponseWriter, r *http.Request) {
	added, err := s.poller.Sync(r.Context())
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"added":  len(added),
			"orders": s.store.Len(),
		},
	})
}
