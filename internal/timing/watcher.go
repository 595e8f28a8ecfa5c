package timing

import (
	"context"
	"sync"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// OrderSource returns the latest version of the watched order, or false once
// the order is gone
type OrderSource func() (models.Order, bool)

// WatcherConfig holds the refresh cadences of a Watcher
type WatcherConfig struct {
	DisplayInterval time.Duration
	BudgetInterval  time.Duration
}

// Watcher keeps a live projection of one order. The display view refreshes on
// every display tick and the budget view on every budget tick. Both tickers
// stop for good once the order stops accruing time.
type Watcher struct {
	engine *Engine
	clock  clock.Clock
	source OrderSource
	config WatcherConfig
	logger logger.Logger

	mu      sync.RWMutex
	current Projection

	updates chan Projection
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewWatcher creates a new Watcher
func NewWatcher(engine *Engine, clk clock.Clock, source OrderSource, cfg WatcherConfig, logger logger.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		engine:  engine,
		clock:   clk,
		source:  source,
		config:  cfg,
		logger:  logger,
		updates: make(chan Projection, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start computes the first projection and begins ticking. It returns false if
// the order is unknown.
func (w *Watcher) Start() bool {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return true
	}
	w.started = true
	w.mu.Unlock()

	order, ok := w.source()
	if !ok {
		close(w.updates)
		return false
	}

	p := w.engine.Project(&order, w.clock.Now())
	w.set(p, true)

	if p.Frozen {
		close(w.updates)
		return true
	}

	display := w.clock.NewTicker(w.config.DisplayInterval)
	budget := w.clock.NewTicker(w.config.BudgetInterval)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.updates)
		defer display.Stop()
		defer budget.Stop()

		w.run(display, budget)
	}()

	return true
}

// Stop tears down both tickers and waits for the loop to exit
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Snapshot returns the latest projection
func (w *Watcher) Snapshot() Projection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Updates delivers projections as they change. Only the newest undelivered
// projection is kept. The channel is closed when ticking ends.
func (w *Watcher) Updates() <-chan Projection {
	return w.updates
}

func (w *Watcher) run(display, budget clock.Ticker) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-display.C():
			if w.refresh(false) {
				return
			}
		case <-budget.C():
			if w.refresh(true) {
				return
			}
		}
	}
}

// refresh recomputes the projection and reports whether ticking should end
func (w *Watcher) refresh(withBudget bool) bool {
	order, ok := w.source()
	if !ok {
		w.logger.Debug("Watched order disappeared, stopping timer")
		return true
	}

	p := w.engine.Project(&order, w.clock.Now())
	w.set(p, withBudget || p.Frozen)

	return p.Frozen
}

func (w *Watcher) set(p Projection, withBudget bool) {
	w.mu.Lock()
	if !withBudget {
		p.Budget = w.current.Budget
	}
	w.current = p
	w.mu.Unlock()

	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- p:
	default:
	}
}
