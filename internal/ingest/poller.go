package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/vaidashi/vendor-order-desk/internal/datasource"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// SourcePoll labels orders found by the poller
const SourcePoll = "poll"

// Sink receives fetched orders and reports which were new
type Sink interface {
	Merge(orders []models.Order) []models.Order
}

// Poller periodically fetches orders and merges them into the sink. The
// first successful sync is a baseline and raises no alerts.
type Poller struct {
	api       datasource.OrderAPI
	sink      Sink
	announcer *Announcer
	clock     clock.Clock
	interval  time.Duration
	timeout   time.Duration
	logger    logger.Logger

	baselined *atomic.Bool
	syncMu    sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// PollerConfig holds the configuration for the Poller
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// NewPoller creates a new Poller
func NewPoller(api datasource.OrderAPI, sink Sink, announcer *Announcer, clk clock.Clock, config PollerConfig, logger logger.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = config.Interval
	}

	return &Poller{
		api:       api,
		sink:      sink,
		announcer: announcer,
		clock:     clk,
		interval:  config.Interval,
		timeout:   timeout,
		logger:    logger,
		baselined: atomic.NewBool(false),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// MarkBaselined treats the sink's current content as already seen
func (p *Poller) MarkBaselined() {
	p.baselined.Store(true)
}

// Start starts polling in the background
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ticker := p.clock.NewTicker(p.interval)
	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C():
				if _, err := p.Sync(p.ctx); err != nil {
					p.logger.Warn("Order poll failed", "error", err)
				}
			}
		}
	}()

	p.logger.Info("Order poller started", "interval", p.interval)
}

// Stop stops the poller
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Order poller stopped")
}

// Sync fetches orders once and merges them. It returns the orders that
// were new to the sink.
func (p *Poller) Sync(ctx context.Context) ([]models.Order, error) {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	orders, err := p.api.FetchOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	added := p.sink.Merge(orders)

	if !p.baselined.Swap(true) {
		p.logger.Info("Order baseline loaded", "orders", len(orders))
		return added, nil
	}

	if len(added) > 0 {
		p.announcer.Announce(ctx, SourcePoll, added)
	}
	return added, nil
}
