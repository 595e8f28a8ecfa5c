// Package timing projects an order's age against its SLA. The projections are
// pure functions of the order and an instant; Watcher adds live ticking.
package timing

import (
	"fmt"
	"math"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/lifecycle"
	"github.com/vaidashi/vendor-order-desk/internal/models"
)

// TimeElapsed is the display projection of an order's age
type TimeElapsed struct {
	Minutes       int    `json:"minutes"`
	Seconds       int    `json:"seconds"`
	TotalMinutes  int    `json:"totalMinutes"`
	IsOverdue     bool   `json:"isOverdue"`
	FormattedTime string `json:"formattedTime"`
}

// SLAStatus is the budget projection of an order's age
type SLAStatus struct {
	ElapsedMinutes      int  `json:"elapsedMinutes"`
	ElapsedSeconds      int  `json:"elapsedSeconds"`
	RemainingMinutes    int  `json:"remainingMinutes"`
	PercentageRemaining int  `json:"percentageRemaining"`
	IsBreached          bool `json:"isBreached"`
}

// Projection combines both views for one order
type Projection struct {
	OrderID     string             `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	Status      models.OrderStatus `json:"status"`
	SLAMinutes  int                `json:"slaMinutes"`
	Timer       TimeElapsed        `json:"timer"`
	Budget      SLAStatus          `json:"sla"`
	Frozen      bool               `json:"frozen"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
}

// since clamps negative durations (clock skew) to zero
func since(createdAt, now time.Time) time.Duration {
	d := now.Sub(createdAt)
	if d < 0 {
		return 0
	}
	return d
}

// Elapsed computes the M:SS display of an order's age
func Elapsed(createdAt time.Time, slaMinutes int, now time.Time) TimeElapsed {
	d := since(createdAt, now)

	totalSeconds := int(d / time.Second)
	totalMinutes := int(d / time.Minute)
	seconds := totalSeconds % 60

	return TimeElapsed{
		Minutes:       totalMinutes,
		Seconds:       seconds,
		TotalMinutes:  totalMinutes,
		IsOverdue:     totalMinutes >= slaMinutes,
		FormattedTime: fmt.Sprintf("%d:%02d", totalMinutes, seconds),
	}
}

// SLA computes how much of the SLA budget is left
func SLA(createdAt time.Time, slaMinutes int, now time.Time) SLAStatus {
	d := since(createdAt, now)
	elapsed := d.Minutes()
	sla := float64(slaMinutes)

	remaining := math.Max(0, sla-elapsed)

	percentage := 0.0
	if sla > 0 {
		percentage = math.Min(100, math.Max(0, remaining/sla*100))
	}

	return SLAStatus{
		ElapsedMinutes:      int(d / time.Minute),
		ElapsedSeconds:      int(d/time.Second) % 60,
		RemainingMinutes:    int(math.Round(remaining)),
		PercentageRemaining: int(math.Round(percentage)),
		IsBreached:          elapsed >= sla,
	}
}

// Engine projects orders using a configured default SLA
type Engine struct {
	defaultSLA int
}

// NewEngine creates a new Engine. A non-positive default falls back to
// models.DefaultSLAMinutes.
func NewEngine(defaultSLAMinutes int) *Engine {
	if defaultSLAMinutes <= 0 {
		defaultSLAMinutes = models.DefaultSLAMinutes
	}
	return &Engine{defaultSLA: defaultSLAMinutes}
}

// SLAFor returns the SLA minutes that apply to order
func (e *Engine) SLAFor(order *models.Order) int {
	if order.SLATime != nil && *order.SLATime > 0 {
		return *order.SLATime
	}
	return e.defaultSLA
}

// IsOverdue reports whether order has reached its SLA at now
func (e *Engine) IsOverdue(order *models.Order, now time.Time) bool {
	return Elapsed(order.CreatedAt, e.SLAFor(order), now).IsOverdue
}

// Project evaluates order at now. Orders that no longer accrue time are
// evaluated at the instant they stopped, so repeated calls agree.
func (e *Engine) Project(order *models.Order, now time.Time) Projection {
	sla := e.SLAFor(order)
	at := now
	frozen := lifecycle.StopsTiming(order.Status)
	if frozen {
		at = FreezeInstant(order)
	}

	return Projection{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		SLAMinutes:  sla,
		Timer:       Elapsed(order.CreatedAt, sla, at),
		Budget:      SLA(order.CreatedAt, sla, at),
		Frozen:      frozen,
		EvaluatedAt: at,
	}
}

// FreezeInstant returns when an order stopped accruing time
func FreezeInstant(order *models.Order) time.Time {
	switch {
	case order.HandedToRiderAt != nil:
		return *order.HandedToRiderAt
	case order.CompletedAt != nil:
		return *order.CompletedAt
	default:
		return order.UpdatedAt
	}
}
