package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/vendor-order-desk/internal/lifecycle"
	"github.com/vaidashi/vendor-order-desk/internal/store"
	"github.com/vaidashi/vendor-order-desk/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/vendor-order-desk/pkg/errors"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Timestamp      string `json:"timestamp"`
	Orders         int    `json:"orders"`
	CircuitBreaker string `json:"circuit_breaker"`
	Subscribers    int    `json:"subscribers"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	breakerState := s.breaker.GetState()
	if breakerState != circuitbreaker.StateClosed {
		status = "degraded"
	}

	health := Health{
		Status:         status,
		Version:        "0.1.0",
		Timestamp:      s.clock.Now().Format(time.RFC3339),
		Orders:         s.store.Len(),
		CircuitBreaker: breakerState.String(),
		Subscribers:    s.hub.Subscribers(),
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    health,
	})
}

// getOrdersHandler returns one page of orders. Without a status parameter
// the active filter applies.
func (s *Server) getOrdersHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	filter := s.store.Filter()
	if raw := params.Get("status"); raw != "" {
		parsed, err := store.ParseFilter(raw)
		if err != nil {
			s.respondWithAppError(w, err)
			return
		}
		filter = parsed
	}

	page, err := intParam(params.Get("page"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	pageSize, err := intParam(params.Get("pageSize"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid pageSize")
		return
	}

	result := s.store.Query(store.Query{
		Filter:   filter,
		Search:   params.Get("q"),
		Page:     page,
		PageSize: pageSize,
	})

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

// getOrderStatsHandler returns the order counts per status
func (s *Server) getOrderStatsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.store.Stats()})
}

// getOrderByIDHandler returns an order by ID
func (s *Server) getOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.GetOrder(mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// refreshOrderHandler pulls one order from the backend
func (s *Server) refreshOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.RefreshOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

func (s *Server) selectOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.store.SelectOrder(id); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	order, _ := s.store.SelectedOrder()
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

func (s *Server) getSelectedOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, ok := s.store.SelectedOrder()
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "No order selected")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

func (s *Server) clearSelectionHandler(w http.ResponseWriter, r *http.Request) {
	s.store.ClearSelection()
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true})
}

// transitionHandler runs one lifecycle operation. A JSON body may carry a
// note, sent as "reason" for rejections.
func (s *Server) transitionHandler(op lifecycle.Operation) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason string `json:"reason"`
			Notes  string `json:"notes"`
		}

		decoder := json.NewDecoder(r.Body)
		if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
		defer r.Body.Close()

		note := req.Notes
		if req.Reason != "" {
			note = req.Reason
		}

		order, err := s.orderService.Transition(r.Context(), mux.Vars(r)["id"], op, note)
		if err != nil {
			s.respondWithAppError(w, err)
			return
		}

		s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
	})
}

func (s *Server) getFilterHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]interface{}{"filter": s.store.Filter()},
	})
}

func (s *Server) setFilterHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter string `json:"filter"`
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	filter, err := store.ParseFilter(req.Filter)
	if err == nil {
		err = s.store.SetFilter(filter)
	}
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"filter": filter,
			"orders": s.store.FilteredOrders(),
		},
	})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// respondWithAppError maps err to its HTTP status
func (s *Server) respondWithAppError(w http.ResponseWriter, err error) {
	code := apperrors.StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err, "status", code)
	}

	// Errors without an application status are not shown to clients.
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) && code == http.StatusInternalServerError {
		err = apperrors.NewInternalError("Internal server error")
	}
	s.respondWithError(w, code, err.Error())
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
