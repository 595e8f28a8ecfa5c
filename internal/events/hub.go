// Package events fans order desk events out to live subscribers and relays
// them to external handlers such as Kafka.
package events

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// Hub broadcasts events to every subscriber. A slow subscriber loses events
// instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan models.Event
	nextID  int
	dropped *atomic.Int64
	logger  logger.Logger
}

// NewHub creates a new Hub
func NewHub(logger logger.Logger) *Hub {
	return &Hub{
		subs:    make(map[int]chan models.Event),
		dropped: atomic.NewInt64(0),
		logger:  logger,
	}
}

// Publish delivers e to every subscriber with room in its buffer
func (h *Hub) Publish(e models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Inc()
			h.logger.Warn("Dropping event for slow subscriber",
				"subscriber", id,
				"eventType", e.EventType,
				"eventID", e.EventID)
		}
	}
}

// Subscribe registers a new subscriber. The returned function unsubscribes
// and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan models.Event, buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
