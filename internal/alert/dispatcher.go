// Package alert fans an order alert out to sound, in-app toast and desktop
// notification channels. Delivery is best effort: a channel that fails,
// panics or hangs never affects the others or the caller.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/vendor-order-desk/internal/metrics"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// Kind tells what an alert is about
type Kind string

const (
	KindNewOrder  Kind = "new_order"
	KindSLABreach Kind = "sla_breach"
)

// Urgent reports whether the alert should use the urgent treatment
func (k Kind) Urgent() bool {
	return k == KindSLABreach
}

// Alert is one event to announce
type Alert struct {
	Kind           Kind
	OrderID        string
	OrderNumber    string
	CustomerName   string
	Total          decimal.Decimal
	SLAMinutes     int
	ElapsedMinutes int
	At             time.Time
}

// NewOrderAlert announces a pending order that just arrived
func NewOrderAlert(order *models.Order, at time.Time) Alert {
	return Alert{
		Kind:         KindNewOrder,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.Customer.Name,
		Total:        order.Total,
		SLAMinutes:   order.EffectiveSLA(),
		At:           at,
	}
}

// BreachAlert announces an order that went past its SLA
func BreachAlert(order *models.Order, slaMinutes, elapsedMinutes int, at time.Time) Alert {
	return Alert{
		Kind:           KindSLABreach,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerName:   order.Customer.Name,
		Total:          order.Total,
		SLAMinutes:     slaMinutes,
		ElapsedMinutes: elapsedMinutes,
		At:             at,
	}
}

// Channel delivers alerts through one medium
type Channel interface {
	Name() string
	Deliver(ctx context.Context, a Alert) error
}

// Dispatcher delivers every alert on all channels concurrently
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a new Dispatcher. Each channel gets at most timeout
// per alert.
func NewDispatcher(timeout time.Duration, m *metrics.Metrics, logger logger.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

// Dispatch attempts delivery on every channel and returns when all of them
// finished or timed out. Failures are logged and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) {
	d.metrics.AlertsDispatched.WithLabelValues(string(a.Kind)).Inc()

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			d.deliver(ctx, ch, a)
		}(ch)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(parent context.Context, ch Channel, a Alert) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- ch.Deliver(ctx, a)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		d.metrics.AlertChannelFailures.WithLabelValues(ch.Name()).Inc()
		d.logger.Warn("Alert channel failed",
			"error", errors.NewAlertChannelError(ch.Name(), err),
			"channel", ch.Name(),
			"kind", a.Kind,
			"orderID", a.OrderID)
		return
	}

	d.logger.Debug("Alert delivered", "channel", ch.Name(), "kind", a.Kind, "orderID", a.OrderID)
}
