package timing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

type orderBox struct {
	mu    sync.Mutex
	order models.Order
	gone  bool
}

func (b *orderBox) get() (models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Clone(), !b.gone
}

func (b *orderBox) update(fn func(o *models.Order)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.order)
}

var watcherConfig = WatcherConfig{DisplayInterval: time.Second, BudgetInterval: 10 * time.Second}

func newTestWatcher(clk *clock.FakeClock, box *orderBox) *Watcher {
	return NewWatcher(NewEngine(20), clk, box.get, watcherConfig, logger.NewNop())
}

func TestWatcherTicksDisplayAndBudget(t *testing.T) {
	clk := clock.NewFakeClock(created)
	box := &orderBox{order: models.Order{ID: "ord-1", CreatedAt: created, Status: models.OrderStatusPreparing}}

	w := newTestWatcher(clk, box)
	require.True(t, w.Start())
	defer w.Stop()

	assert.Equal(t, "0:00", w.Snapshot().Timer.FormattedTime)
	assert.Equal(t, 100, w.Snapshot().Budget.PercentageRemaining)

	clk.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return w.Snapshot().Timer.FormattedTime == "0:01"
	}, time.Second, 5*time.Millisecond)

	// The budget view only moves on its own tick.
	assert.Equal(t, 20, w.Snapshot().Budget.RemainingMinutes)

	for i := 0; i < 9; i++ {
		clk.Advance(time.Second)
	}
	clk.Advance(5 * time.Minute)
	assert.Eventually(t, func() bool {
		return w.Snapshot().Budget.RemainingMinutes < 20
	}, time.Second, 5*time.Millisecond)
}

func TestWatcherFreezesWhenOrderLeavesVendor(t *testing.T) {
	clk := clock.NewFakeClock(created)
	box := &orderBox{order: models.Order{ID: "ord-1", CreatedAt: created, Status: models.OrderStatusReady}}

	w := newTestWatcher(clk, box)
	require.True(t, w.Start())
	defer w.Stop()

	clk.Advance(3 * time.Minute)
	handed := clk.Now()
	box.update(func(o *models.Order) {
		o.Status = models.OrderStatusHandedToRider
		o.HandedToRiderAt = &handed
		o.UpdatedAt = handed
	})
	clk.Advance(time.Second)

	assert.Eventually(t, func() bool {
		return w.Snapshot().Frozen
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return clk.ActiveTickers() == 0
	}, time.Second, 5*time.Millisecond)

	frozen := w.Snapshot()
	clk.Advance(time.Minute)
	assert.Equal(t, frozen, w.Snapshot())
	assert.Equal(t, "3:00", frozen.Timer.FormattedTime)
}

func TestWatcherStartsFrozenForTerminalOrder(t *testing.T) {
	clk := clock.NewFakeClock(created.Add(time.Hour))
	done := created.Add(30 * time.Minute)
	box := &orderBox{order: models.Order{
		ID:          "ord-1",
		CreatedAt:   created,
		Status:      models.OrderStatusCompleted,
		CompletedAt: &done,
		UpdatedAt:   done,
	}}

	w := newTestWatcher(clk, box)
	require.True(t, w.Start())
	defer w.Stop()

	assert.Equal(t, 0, clk.ActiveTickers())
	p, ok := <-w.Updates()
	require.True(t, ok)
	assert.True(t, p.Frozen)
	assert.Equal(t, "30:00", p.Timer.FormattedTime)

	_, ok = <-w.Updates()
	assert.False(t, ok)
}

func TestWatcherStopReleasesTickers(t *testing.T) {
	clk := clock.NewFakeClock(created)
	box := &orderBox{order: models.Order{ID: "ord-1", CreatedAt: created, Status: models.OrderStatusPending}}

	w := newTestWatcher(clk, box)
	require.True(t, w.Start())
	require.Equal(t, 2, clk.ActiveTickers())

	w.Stop()
	assert.Equal(t, 0, clk.ActiveTickers())
}

func TestWatcherUnknownOrder(t *testing.T) {
	clk := clock.NewFakeClock(created)
	box := &orderBox{gone: true}

	w := newTestWatcher(clk, box)
	assert.False(t, w.Start())
	w.Stop()
}
