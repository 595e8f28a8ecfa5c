// Package lifecycle is the single authority on which order status changes are
// legal and on the bookkeeping each change performs.
package lifecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/errors"
)

// allowed holds the legal transitions. Statuses missing from the map, and
// completed/cancelled, have no outgoing edges.
var allowed = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.OrderStatusPending:       {models.OrderStatusAccepted: true, models.OrderStatusCancelled: true},
	models.OrderStatusAccepted:      {models.OrderStatusPreparing: true, models.OrderStatusCancelled: true},
	models.OrderStatusPreparing:     {models.OrderStatusReady: true},
	models.OrderStatusReady:         {models.OrderStatusHandedToRider: true},
	models.OrderStatusHandedToRider: {models.OrderStatusCompleted: true},
	models.OrderStatusCompleted:     {},
	models.OrderStatusCancelled:     {},
}

// CanTransition checks if from->to is allowed
func CanTransition(from, to models.OrderStatus) bool {
	nexts := allowed[from]
	return nexts != nil && nexts[to]
}

// NextStatuses returns the statuses reachable from s in one step
func NextStatuses(s models.OrderStatus) []models.OrderStatus {
	var out []models.OrderStatus
	for _, candidate := range models.AllStatuses {
		if CanTransition(s, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// IsTerminal reports whether no further transition is possible
func IsTerminal(s models.OrderStatus) bool {
	return s == models.OrderStatusCompleted || s == models.OrderStatusCancelled
}

// StopsTiming reports whether the order has left the vendor's hands, after
// which elapsed time is no longer tracked
func StopsTiming(s models.OrderStatus) bool {
	return IsTerminal(s) || s == models.OrderStatusHandedToRider
}

// Operation is a vendor action on an order
type Operation string

const (
	OpAccept           Operation = "accept"
	OpReject           Operation = "reject"
	OpStartPreparation Operation = "start_preparation"
	OpMarkReady        Operation = "mark_ready"
	OpHandOffToRider   Operation = "hand_off_to_rider"
	OpComplete         Operation = "complete"
)

// Target returns the status an operation moves an order into
func (op Operation) Target() (models.OrderStatus, bool) {
	switch op {
	case OpAccept:
		return models.OrderStatusAccepted, true
	case OpReject:
		return models.OrderStatusCancelled, true
	case OpStartPreparation:
		return models.OrderStatusPreparing, true
	case OpMarkReady:
		return models.OrderStatusReady, true
	case OpHandOffToRider:
		return models.OrderStatusHandedToRider, true
	case OpComplete:
		return models.OrderStatusCompleted, true
	}
	return "", false
}

// Source returns the one status an operation may start from. The table also
// lets accepted orders be cancelled, but that edge is only reached through
// changes reported by the order service.
func (op Operation) Source() (models.OrderStatus, bool) {
	switch op {
	case OpAccept, OpReject:
		return models.OrderStatusPending, true
	case OpStartPreparation:
		return models.OrderStatusAccepted, true
	case OpMarkReady:
		return models.OrderStatusPreparing, true
	case OpHandOffToRider:
		return models.OrderStatusReady, true
	case OpComplete:
		return models.OrderStatusHandedToRider, true
	}
	return "", false
}

// ParseOperation maps the names used on the wire to operations
func ParseOperation(name string) (Operation, bool) {
	switch name {
	case "accept":
		return OpAccept, true
	case "reject":
		return OpReject, true
	case "start-preparation", "start_preparation":
		return OpStartPreparation, true
	case "ready", "mark_ready":
		return OpMarkReady, true
	case "hand-off", "hand_off_to_rider":
		return OpHandOffToRider, true
	case "complete":
		return OpComplete, true
	}
	return "", false
}

// Apply performs op on order at now. On error the order is left untouched.
// An empty note is replaced by the operation's default note.
func Apply(order *models.Order, op Operation, note string, now time.Time) error {
	target, ok := op.Target()
	if !ok {
		return errors.NewInvalidInputError(fmt.Sprintf("unknown operation %q", op))
	}

	if source, _ := op.Source(); order.Status != source || !CanTransition(order.Status, target) {
		return errors.NewInvalidTransitionError(order.ID, string(op), string(order.Status), string(target))
	}

	switch target {
	case models.OrderStatusAccepted:
		stamp(&order.AcceptedAt, now)
	case models.OrderStatusPreparing:
		stamp(&order.PrepStartedAt, now)
	case models.OrderStatusReady:
		stamp(&order.ReadyAt, now)
		if order.PrepStartedAt != nil && order.ActualPrepTime == nil {
			minutes := int(math.Round(order.ReadyAt.Sub(*order.PrepStartedAt).Minutes()))
			order.ActualPrepTime = &minutes
		}
	case models.OrderStatusHandedToRider:
		stamp(&order.HandedToRiderAt, now)
	case models.OrderStatusCompleted:
		stamp(&order.CompletedAt, now)
	}

	if note == "" {
		note = defaultNote(op, order)
	}

	order.Status = target
	order.UpdatedAt = now
	order.Timeline = append(order.Timeline, models.TimelineEntry{
		Status:    target,
		Timestamp: now,
		Notes:     note,
	})

	return nil
}

// stamp sets a stage timestamp once; later calls keep the first value
func stamp(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}

func defaultNote(op Operation, order *models.Order) string {
	switch op {
	case OpAccept:
		return "Order accepted by vendor"
	case OpReject:
		return "Rejected by vendor"
	case OpStartPreparation:
		return "Preparation started"
	case OpMarkReady:
		if order.ActualPrepTime != nil {
			return fmt.Sprintf("Order ready for pickup (Prep time: %dmin)", *order.ActualPrepTime)
		}
		return "Order ready for pickup"
	case OpHandOffToRider:
		return "Order handed to rider"
	case OpComplete:
		return "Order completed"
	}
	return ""
}
