package models

import (
	"encoding/json"
	"time"
)

// EventType names an order desk event
type EventType string

const (
	EventOrderCreated        EventType = "order_created"
	EventOrderStatusChanged  EventType = "order_status_changed"
	EventOrderNewPending     EventType = "order_new_pending"
	EventOrderSLABreached    EventType = "order_sla_breached"
	EventNotificationCreated EventType = "notification_created"
)

// Event is the envelope published to subscribers and to Kafka
type Event struct {
	EventType   EventType   `json:"event_type"`
	EventID     string      `json:"event_id"`
	AggregateID string      `json:"aggregate_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Data        interface{} `json:"data"`
}

// Payload returns the JSON encoding of the event
func (e Event) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// InboundEvent is an event received from Kafka whose data is decoded lazily
type InboundEvent struct {
	EventType   EventType       `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// StatusChange is the data of an order_status_changed event
type StatusChange struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	OldStatus   OrderStatus `json:"old_status"`
	NewStatus   OrderStatus `json:"new_status"`
	Notes       string      `json:"notes,omitempty"`
}

// SLABreach is the data of an order_sla_breached event
type SLABreach struct {
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	CustomerName   string `json:"customer_name"`
	SLAMinutes     int    `json:"sla_minutes"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
}

func newEvent(eventType EventType, aggregateID string, data interface{}, now time.Time) Event {
	return Event{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: aggregateID,
		OccurredAt:  now.UTC(),
		Data:        data,
	}
}

// NewOrderCreatedEvent creates an event carrying a whole order
func NewOrderCreatedEvent(order *Order, now time.Time) Event {
	return newEvent(EventOrderCreated, order.ID, order, now)
}

// NewOrderStatusChangedEvent creates a new event for order status change
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus, now time.Time) Event {
	notes := ""
	if n := len(order.Timeline); n > 0 {
		notes = order.Timeline[n-1].Notes
	}

	return newEvent(EventOrderStatusChanged, order.ID, StatusChange{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   oldStatus,
		NewStatus:   order.Status,
		Notes:       notes,
	}, now)
}

// NewPendingOrderEvent announces a newly arrived pending order
func NewPendingOrderEvent(order *Order, now time.Time) Event {
	return newEvent(EventOrderNewPending, order.ID, order, now)
}

// NewSLABreachedEvent announces that an order went past its SLA
func NewSLABreachedEvent(order *Order, elapsedMinutes int, now time.Time) Event {
	return newEvent(EventOrderSLABreached, order.ID, SLABreach{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerName:   order.Customer.Name,
		SLAMinutes:     order.EffectiveSLA(),
		ElapsedMinutes: elapsedMinutes,
	}, now)
}

// NewNotificationEvent announces an inbox notification
func NewNotificationEvent(n Notification) Event {
	return newEvent(EventNotificationCreated, n.ID, n, n.CreatedAt)
}
