package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/internal/timing"
	apperrors "github.com/vaidashi/vendor-order-desk/pkg/errors"
)

const (
	eventBuffer       = 32
	heartbeatInterval = 15 * time.Second
)

// sseWriter writes server-sent events to one response
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// startStream sends the stream headers and lifts the server write timeout
// for this response
func startStream(w http.ResponseWriter) *sseWriter {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &sseWriter{w: w, rc: rc}
	sw.flush()
	return sw
}

func (sw *sseWriter) send(event, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}

	if id != "" {
		if _, err := fmt.Fprintf(sw.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	sw.flush()
	return nil
}

func (sw *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", text); err != nil {
		return err
	}
	sw.flush()
	return nil
}

func (sw *sseWriter) flush() {
	_ = sw.rc.Flush()
}

// getOrderTimerHandler returns the current timing projection of an order
func (s *Server) getOrderTimerHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    s.engine.Project(&order, s.clock.Now()),
	})
}

// streamOrderTimerHandler streams live projections of one order. Each viewer
// gets its own Watcher; the stream ends once the order stops accruing time.
func (s *Server) streamOrderTimerHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	watcher := timing.NewWatcher(s.engine, s.clock, func() (models.Order, bool) {
		order, err := s.store.Get(id)
		return order, err == nil
	}, timing.WatcherConfig{
		DisplayInterval: s.config.SLA.DisplayInterval,
		BudgetInterval:  s.config.SLA.BudgetInterval,
	}, s.logger.With("orderID", id))

	defer watcher.Stop()

	if !watcher.Start() {
		s.respondWithAppError(w, apperrors.NewOrderNotFoundError(id))
		return
	}

	s.metrics.ActiveWatchers.Inc()
	defer s.metrics.ActiveWatchers.Dec()

	stream := startStream(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.streams.Done():
			return
		case p, ok := <-watcher.Updates():
			if !ok {
				_ = stream.send("end", "", watcher.Snapshot())
				return
			}
			if err := stream.send("timer", "", p); err != nil {
				s.logger.Debug("Timer stream closed", "orderID", id, "error", err)
				return
			}
		}
	}
}

// streamEventsHandler streams hub events to one subscriber
func (s *Server) streamEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := s.hub.Subscribe(eventBuffer)
	defer unsubscribe()

	heartbeat := s.clock.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	stream := startStream(w)
	s.logger.Debug("Event stream opened", "remoteAddr", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.streams.Done():
			return
		case <-heartbeat.C():
			if err := stream.comment("ping"); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := stream.send(string(e.EventType), e.EventID, e); err != nil {
				s.logger.Debug("Event stream closed", "error", err)
				return
			}
		}
	}
}
