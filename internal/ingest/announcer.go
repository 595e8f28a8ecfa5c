// Package ingest brings orders from the backend into the store, by polling
// and from the Kafka order stream, and announces new pending orders.
package ingest

import (
	"context"

	"github.com/vaidashi/vendor-order-desk/internal/alert"
	"github.com/vaidashi/vendor-order-desk/internal/metrics"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// Dispatcher delivers alerts
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert)
}

// EventPublisher broadcasts events
type EventPublisher interface {
	Publish(e models.Event)
}

// Announcer raises the new order alert for freshly arrived pending orders
type Announcer struct {
	dispatcher Dispatcher
	publisher  EventPublisher
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     logger.Logger
}

// NewAnnouncer creates a new Announcer
func NewAnnouncer(dispatcher Dispatcher, publisher EventPublisher, clk clock.Clock, m *metrics.Metrics, logger logger.Logger) *Announcer {
	return &Announcer{
		dispatcher: dispatcher,
		publisher:  publisher,
		clock:      clk,
		metrics:    m,
		logger:     logger,
	}
}

// Announce counts the added orders under source and alerts on the pending
// ones. It returns how many alerts were raised.
func (a *Announcer) Announce(ctx context.Context, source string, added []models.Order) int {
	now := a.clock.Now()
	raised := 0

	for i := range added {
		order := &added[i]
		a.metrics.IngestedOrders.WithLabelValues(source).Inc()
		a.publisher.Publish(models.NewOrderCreatedEvent(order, now))

		if order.Status != models.OrderStatusPending {
			continue
		}

		a.logger.Info("New pending order",
			"orderID", order.ID,
			"orderNumber", order.OrderNumber,
			"source", source)

		a.publisher.Publish(models.NewPendingOrderEvent(order, now))
		a.dispatcher.Dispatch(ctx, alert.NewOrderAlert(order, now))
		raised++
	}

	return raised
}
