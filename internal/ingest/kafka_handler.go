package ingest

import (
	"context"
	"encoding/json"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// SourceKafka labels orders received from the order stream
const SourceKafka = "kafka"

// OrderStore is the part of the store the Kafka handler writes to
type OrderStore interface {
	Sink
	Get(id string) (models.Order, error)
	Reconcile(server models.Order) (models.Order, bool)
}

// OrderEventsHandler applies order events from Kafka to the store
type OrderEventsHandler struct {
	store     OrderStore
	announcer *Announcer
	logger    logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(store OrderStore, announcer *Announcer, logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		store:     store,
		announcer: announcer,
		logger:    logger,
	}
}

// HandleMessage handles incoming order events from Kafka messages. Malformed
// messages are logged and skipped so they do not block the partition.
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.InboundEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Failed to unmarshal order event", "error", err, "offset", msg.Offset)
		return nil
	}

	h.logger.Debug("Handling order event",
		"eventType", event.EventType,
		"eventID", event.EventID,
		"aggregateID", event.AggregateID)

	switch event.EventType {
	case models.EventOrderCreated:
		return h.handleOrderCreated(ctx, event)
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(event)
	default:
		h.logger.Warn("Unknown order event type", "eventType", event.EventType)
		return nil
	}
}

func (h *OrderEventsHandler) handleOrderCreated(ctx context.Context, event models.InboundEvent) error {
	var order models.Order
	if err := json.Unmarshal(event.Data, &order); err != nil {
		h.logger.Error("Invalid order_created payload", "error", err, "eventID", event.EventID)
		return nil
	}
	if order.ID == "" || !order.Status.Valid() {
		h.logger.Error("Incomplete order_created payload", "eventID", event.EventID, "status", order.Status)
		return nil
	}
	if len(order.Timeline) == 0 {
		order.Timeline = []models.TimelineEntry{{Status: order.Status, Timestamp: order.CreatedAt, Notes: "Order placed"}}
	}

	added := h.store.Merge([]models.Order{order})
	if len(added) > 0 {
		h.announcer.Announce(ctx, SourceKafka, added)
	}
	return nil
}

func (h *OrderEventsHandler) handleOrderStatusChanged(event models.InboundEvent) error {
	var change models.StatusChange
	if err := json.Unmarshal(event.Data, &change); err != nil {
		h.logger.Error("Invalid order_status_changed payload", "error", err, "eventID", event.EventID)
		return nil
	}
	if !change.NewStatus.Valid() {
		h.logger.Error("Unknown status in order_status_changed", "eventID", event.EventID, "status", change.NewStatus)
		return nil
	}

	local, err := h.store.Get(change.OrderID)
	if err != nil {
		h.logger.Warn("Status change for unknown order", "orderID", change.OrderID)
		return nil
	}

	local.Status = change.NewStatus
	local.UpdatedAt = event.OccurredAt
	if _, changed := h.store.Reconcile(local); changed {
		h.logger.Info("Order status changed upstream",
			"orderID", change.OrderID,
			"oldStatus", change.OldStatus,
			"newStatus", change.NewStatus)
	}
	return nil
}
