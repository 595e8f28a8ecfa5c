package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vaidashi/vendor-order-desk/internal/events"
)

// PaginationResponse is one page of a listing
type PaginationResponse struct {
	Items      interface{} `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	Offset     int         `json:"offset"`
	Status     string      `json:"status,omitempty"`
}

// getDeadLettersHandler returns a page of dead letters, newest first
func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	// Parse pagination parameters
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	status, err := events.ParseDeadLetterStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	letters := s.relay.DeadLetters().List(status)

	offset := (page - 1) * pageSize
	end := offset + pageSize
	if offset > len(letters) {
		offset = len(letters)
	}
	if end > len(letters) {
		end = len(letters)
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: PaginationResponse{
			Items:      letters[offset:end],
			TotalCount: len(letters),
			Page:       page,
			PageSize:   pageSize,
			Offset:     offset,
			Status:     string(status),
		},
	})
}

// retryDeadLetterHandler hands a pending dead letter to its handler again
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	letter, err := s.relay.Redeliver(r.Context(), id)
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	message := "Dead letter redelivered"
	if letter.Status == events.DeadLetterStatusPending {
		message = "Dead letter redelivery failed, it stays pending"
	}
	s.logger.Info("Dead letter retried by admin", "deadLetterID", id, "status", letter.Status)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message":     message,
			"dead_letter": letter,
		},
	})
}

// discardDeadLetterHandler discards a dead letter
func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Parse request body for discard reason
	var req struct {
		Reason string `json:"reason"`
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	letter, err := s.relay.DeadLetters().Discard(id, req.Reason)
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}
	s.logger.Info("Dead letter discarded by admin", "deadLetterID", id, "reason", letter.FailureReason)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message":     "Dead letter discarded",
			"dead_letter": letter,
		},
	})
}
