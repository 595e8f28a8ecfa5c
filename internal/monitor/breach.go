// Package monitor watches the order collection for SLA breaches and raises
// one alert per order until that order is finished.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/vaidashi/vendor-order-desk/internal/alert"
	"github.com/vaidashi/vendor-order-desk/internal/lifecycle"
	"github.com/vaidashi/vendor-order-desk/internal/metrics"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/internal/timing"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// Source is the order collection being watched
type Source interface {
	Orders() []models.Order
	Subscribe() (<-chan struct{}, func())
}

// Dispatcher delivers alerts
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert)
}

// EventPublisher broadcasts events
type EventPublisher interface {
	Publish(e models.Event)
}

// BreachMonitor scans the collection on a fixed interval and whenever it
// changes. The alerted set is private to each monitor.
type BreachMonitor struct {
	source     Source
	engine     *timing.Engine
	dispatcher Dispatcher
	publisher  EventPublisher
	clock      clock.Clock
	interval   time.Duration
	logger     logger.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	alerted map[string]struct{}

	running    *atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	dispatches sync.WaitGroup
}

// Config holds the BreachMonitor dependencies
type Config struct {
	Source     Source
	Engine     *timing.Engine
	Dispatcher Dispatcher
	Publisher  EventPublisher
	Clock      clock.Clock
	Interval   time.Duration
	Metrics    *metrics.Metrics
}

// NewBreachMonitor creates a new BreachMonitor
func NewBreachMonitor(cfg Config, logger logger.Logger) *BreachMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &BreachMonitor{
		source:     cfg.Source,
		engine:     cfg.Engine,
		dispatcher: cfg.Dispatcher,
		publisher:  cfg.Publisher,
		clock:      cfg.Clock,
		interval:   cfg.Interval,
		logger:     logger,
		metrics:    cfg.Metrics,
		alerted:    make(map[string]struct{}),
		running:    atomic.NewBool(false),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start runs an immediate scan and then keeps scanning in the background
func (m *BreachMonitor) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}

	changes, unsubscribe := m.source.Subscribe()
	ticker := m.clock.NewTicker(m.interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unsubscribe()
		defer ticker.Stop()

		m.Scan(m.ctx)

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C():
				m.Scan(m.ctx)
			case <-changes:
				m.Scan(m.ctx)
			}
		}
	}()

	m.logger.Info("Breach monitor started", "interval", m.interval)
}

// Stop stops the background scanning and waits for it and any alerts still
// being delivered to finish
func (m *BreachMonitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}

	m.cancel()
	m.wg.Wait()
	m.dispatches.Wait()

	m.logger.Info("Breach monitor stopped")
}

// Scan evaluates every order once and alerts on new breaches. It returns the
// number of orders newly flagged. Alerts are handed to the dispatcher in the
// background; Wait blocks until they are delivered.
func (m *BreachMonitor) Scan(ctx context.Context) int {
	start := time.Now()
	defer func() {
		m.metrics.BreachScans.Inc()
		m.metrics.BreachScanDuration.Observe(time.Since(start).Seconds())
	}()

	var breached []models.Order

	// The snapshot is taken under mu so a Forget for a finished order cannot
	// land between reading the order and setting its flag.
	m.mu.Lock()
	orders := m.source.Orders()
	now := m.clock.Now()

	for i := range orders {
		order := &orders[i]

		if lifecycle.IsTerminal(order.Status) {
			delete(m.alerted, order.ID)
			continue
		}
		if lifecycle.StopsTiming(order.Status) {
			continue
		}
		if !m.engine.IsOverdue(order, now) {
			continue
		}
		if _, seen := m.alerted[order.ID]; seen {
			continue
		}

		m.alerted[order.ID] = struct{}{}
		breached = append(breached, *order)
	}
	m.metrics.AlertedOrders.Set(float64(len(m.alerted)))
	m.mu.Unlock()

	for i := range breached {
		m.raise(ctx, &breached[i], now)
	}

	return len(breached)
}

// Wait blocks until every alert raised so far has been delivered
func (m *BreachMonitor) Wait() {
	m.dispatches.Wait()
}

// raise announces one breach. A panic while alerting is contained so the
// rest of the scan still runs.
func (m *BreachMonitor) raise(ctx context.Context, order *models.Order, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Failed to raise SLA breach alert", "panic", r, "orderID", order.ID)
		}
	}()

	sla := m.engine.SLAFor(order)
	elapsed := timing.Elapsed(order.CreatedAt, sla, now).TotalMinutes

	m.metrics.BreachesDetected.Inc()
	m.logger.Warn("Order exceeded SLA",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"status", order.Status,
		"slaMinutes", sla,
		"elapsedMinutes", elapsed)

	m.publisher.Publish(models.NewSLABreachedEvent(order, elapsed, now))

	a := alert.BreachAlert(order, sla, elapsed, now)
	m.dispatches.Add(1)
	go func() {
		defer m.dispatches.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Failed to dispatch SLA breach alert", "panic", r, "orderID", a.OrderID)
			}
		}()

		m.dispatcher.Dispatch(ctx, a)
	}()
}

// Forget clears the alert flag of an order. The store calls it when an order
// reaches completed or cancelled.
func (m *BreachMonitor) Forget(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.alerted, orderID)
	m.metrics.AlertedOrders.Set(float64(len(m.alerted)))
}

// IsAlerted reports whether a breach alert already fired for orderID
func (m *BreachMonitor) IsAlerted(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.alerted[orderID]
	return ok
}

// Alerted returns the flagged order ids in sorted order
func (m *BreachMonitor) Alerted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.alerted))
	for id := range m.alerted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
