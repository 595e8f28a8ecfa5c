package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vaidashi/vendor-order-desk/internal/models"
)

var created = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func TestElapsed(t *testing.T) {
	tests := []struct {
		name      string
		age       time.Duration
		sla       int
		formatted string
		total     int
		overdue   bool
	}{
		{"fresh", 0, 20, "0:00", 0, false},
		{"seconds", 45 * time.Second, 20, "0:45", 0, false},
		{"just under sla", 19*time.Minute + 59*time.Second, 20, "19:59", 19, false},
		{"exactly sla", 20 * time.Minute, 20, "20:00", 20, true},
		{"long", 75*time.Minute + 5*time.Second, 20, "75:05", 75, true},
		{"custom sla", 25 * time.Minute, 30, "25:00", 25, false},
		{"clock skew", -3 * time.Minute, 20, "0:00", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Elapsed(created, tt.sla, created.Add(tt.age))

			assert.Equal(t, tt.formatted, got.FormattedTime)
			assert.Equal(t, tt.total, got.TotalMinutes)
			assert.Equal(t, tt.overdue, got.IsOverdue)
		})
	}
}

func TestSLA(t *testing.T) {
	tests := []struct {
		name       string
		age        time.Duration
		remaining  int
		percentage int
		breached   bool
	}{
		{"start", 0, 20, 100, false},
		{"half", 10 * time.Minute, 10, 50, false},
		{"quarter left", 15 * time.Minute, 5, 25, false},
		{"at sla", 20 * time.Minute, 0, 0, true},
		{"past sla", 42 * time.Minute, 0, 0, true},
		{"skew", -time.Minute, 20, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SLA(created, 20, created.Add(tt.age))

			assert.Equal(t, tt.remaining, got.RemainingMinutes)
			assert.Equal(t, tt.percentage, got.PercentageRemaining)
			assert.Equal(t, tt.breached, got.IsBreached)
		})
	}
}

func TestEngineSLAFor(t *testing.T) {
	e := NewEngine(0)
	o := &models.Order{}
	assert.Equal(t, models.DefaultSLAMinutes, e.SLAFor(o))

	e = NewEngine(25)
	assert.Equal(t, 25, e.SLAFor(o))

	o.SLATime = models.IntPtr(40)
	assert.Equal(t, 40, e.SLAFor(o))
}

func TestBreachThreshold(t *testing.T) {
	e := NewEngine(20)
	o := &models.Order{CreatedAt: created, Status: models.OrderStatusPending}

	assert.True(t, e.IsOverdue(o, created.Add(20*time.Minute)))
	assert.False(t, e.IsOverdue(o, created.Add(19*time.Minute+59*time.Second)))
}

func TestProjectFreezesTerminalOrders(t *testing.T) {
	e := NewEngine(20)
	handed := created.Add(14*time.Minute + 30*time.Second)
	o := &models.Order{
		ID:              "ord-1",
		CreatedAt:       created,
		Status:          models.OrderStatusHandedToRider,
		HandedToRiderAt: &handed,
		UpdatedAt:       handed,
	}

	first := e.Project(o, created.Add(time.Hour))
	second := e.Project(o, created.Add(3*time.Hour))

	assert.True(t, first.Frozen)
	assert.Equal(t, first, second)
	assert.Equal(t, "14:30", first.Timer.FormattedTime)
}

func TestProjectLiveOrder(t *testing.T) {
	e := NewEngine(20)
	o := &models.Order{ID: "ord-1", CreatedAt: created, Status: models.OrderStatusPreparing}

	p := e.Project(o, created.Add(21*time.Minute))

	assert.False(t, p.Frozen)
	assert.True(t, p.Timer.IsOverdue)
	assert.True(t, p.Budget.IsBreached)
	assert.Equal(t, 20, p.SLAMinutes)
}

func TestFreezeInstant(t *testing.T) {
	updated := created.Add(5 * time.Minute)
	completed := created.Add(50 * time.Minute)

	assert.Equal(t, updated, FreezeInstant(&models.Order{UpdatedAt: updated}))
	assert.Equal(t, completed, FreezeInstant(&models.Order{UpdatedAt: updated, CompletedAt: &completed}))
}
