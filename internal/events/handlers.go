package events

import (
	"context"
	"fmt"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// LoggingHandler writes every relayed event to the log
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// HandleMessage logs the event
func (h *LoggingHandler) HandleMessage(_ context.Context, event models.Event) error {
	h.logger.Info("Order desk event",
		"eventType", event.EventType,
		"eventID", event.EventID,
		"aggregateID", event.AggregateID,
		"occurredAt", event.OccurredAt)
	return nil
}

// Sender publishes a keyed message to a topic
type Sender interface {
	SendMessage(ctx context.Context, topic string, key string, value []byte) error
}

// KafkaHandler publishes events to a Kafka topic keyed by order id
type KafkaHandler struct {
	sender Sender
	topic  string
	logger logger.Logger
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(sender Sender, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		sender: sender,
		topic:  topic,
		logger: logger,
	}
}

// HandleMessage publishes the event
func (h *KafkaHandler) HandleMessage(ctx context.Context, event models.Event) error {
	payload, err := event.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
	}

	if err := h.sender.SendMessage(ctx, h.topic, event.AggregateID, payload); err != nil {
		return fmt.Errorf("failed to publish event to Kafka: %w", err)
	}

	h.logger.Debug("Published event to Kafka",
		"topic", h.topic,
		"eventID", event.EventID,
		"aggregateID", event.AggregateID,
		"eventType", event.EventType)
	return nil
}
