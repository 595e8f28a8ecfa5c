package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// getNotificationsHandler returns the inbox, newest first
func (s *Server) getNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"notifications": s.inbox.List(),
			"unread_count":  s.inbox.UnreadCount(),
		},
	})
}

func (s *Server) markNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.MarkAsRead(mux.Vars(r)["id"]); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]int{"unread_count": s.inbox.UnreadCount()},
	})
}

func (s *Server) markAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	s.inbox.MarkAllAsRead()

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]int{"unread_count": 0},
	})
}

func (s *Server) deleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.Remove(mux.Vars(r)["id"]); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"message": "Notification removed"},
	})
}
