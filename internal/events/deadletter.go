package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/errors"
)

// DeadLetterStatus represents the status of a dead letter
type DeadLetterStatus string

const (
	DeadLetterStatusPending   DeadLetterStatus = "pending"
	DeadLetterStatusResolved  DeadLetterStatus = "resolved"
	DeadLetterStatusDiscarded DeadLetterStatus = "discarded"
)

// ParseDeadLetterStatus accepts the status names used on the wire. An empty
// name means every status.
func ParseDeadLetterStatus(s string) (DeadLetterStatus, error) {
	switch DeadLetterStatus(s) {
	case "", DeadLetterStatusPending, DeadLetterStatusResolved, DeadLetterStatusDiscarded:
		return DeadLetterStatus(s), nil
	}
	return "", errors.NewInvalidInputError(fmt.Sprintf("unknown dead letter status %q", s))
}

// DeadLetter is an event a handler could not take after every retry
type DeadLetter struct {
	ID            string           `json:"id"`
	Handler       string           `json:"handler"`
	Event         models.Event     `json:"event"`
	ErrorMessage  string           `json:"error_message"`
	FailureReason string           `json:"failure_reason,omitempty"`
	RetryCount    int              `json:"retry_count"`
	LastRetryAt   *time.Time       `json:"last_retry_at,omitempty"`
	Status        DeadLetterStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
}

// DeadLetterQueue keeps failed deliveries in memory, newest first. When full
// the oldest letters are dropped.
type DeadLetterQueue struct {
	mu       sync.Mutex
	letters  []DeadLetter
	capacity int
	clock    clock.Clock
}

// NewDeadLetterQueue creates a new DeadLetterQueue. A non-positive capacity
// keeps everything.
func NewDeadLetterQueue(capacity int, clk clock.Clock) *DeadLetterQueue {
	return &DeadLetterQueue{capacity: capacity, clock: clk}
}

// Add records a failed delivery as pending
func (q *DeadLetterQueue) Add(handler string, event models.Event, err error) DeadLetter {
	letter := DeadLetter{
		ID:           models.GenerateID("dlq"),
		Handler:      handler,
		Event:        event,
		ErrorMessage: err.Error(),
		Status:       DeadLetterStatusPending,
		CreatedAt:    q.clock.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.letters = append([]DeadLetter{letter}, q.letters...)
	if q.capacity > 0 && len(q.letters) > q.capacity {
		q.letters = q.letters[:q.capacity]
	}
	return letter
}

// List returns the letters with the given status, or all of them for ""
func (q *DeadLetterQueue) List(status DeadLetterStatus) []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetter, 0, len(q.letters))
	for _, l := range q.letters {
		if status == "" || l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

// Get returns one letter
func (q *DeadLetterQueue) Get(id string) (DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return DeadLetter{}, notFound(id)
	}
	return q.letters[i], nil
}

// PendingCount returns the number of letters waiting for a decision
func (q *DeadLetterQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, l := range q.letters {
		if l.Status == DeadLetterStatusPending {
			n++
		}
	}
	return n
}

// Discard closes a pending letter without delivering it
func (q *DeadLetterQueue) Discard(id, reason string) (DeadLetter, error) {
	if reason == "" {
		reason = "No reason provided"
	}

	return q.update(id, func(l *DeadLetter, now time.Time) {
		l.Status = DeadLetterStatusDiscarded
		l.FailureReason = reason
		l.ResolvedAt = &now
	})
}

// recordRetry notes one redelivery attempt, resolving the letter when it
// succeeded
func (q *DeadLetterQueue) recordRetry(id string, err error) (DeadLetter, error) {
	return q.update(id, func(l *DeadLetter, now time.Time) {
		l.RetryCount++
		l.LastRetryAt = &now
		if err != nil {
			l.ErrorMessage = err.Error()
			return
		}
		l.Status = DeadLetterStatusResolved
		l.ResolvedAt = &now
	})
}

func (q *DeadLetterQueue) update(id string, fn func(l *DeadLetter, now time.Time)) (DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return DeadLetter{}, notFound(id)
	}
	if q.letters[i].Status != DeadLetterStatusPending {
		return q.letters[i], notPending(q.letters[i])
	}

	fn(&q.letters[i], q.clock.Now())
	return q.letters[i], nil
}

func (q *DeadLetterQueue) indexOf(id string) int {
	for i := range q.letters {
		if q.letters[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(id string) error {
	return errors.NewNotFoundError("dead letter " + id + " not found").WithContext("id", id)
}

func notPending(l DeadLetter) error {
	return errors.NewConflictError(fmt.Sprintf("dead letter %s is %s, only pending letters can change", l.ID, l.Status)).
		WithContext("id", l.ID).
		WithContext("status", string(l.Status))
}
