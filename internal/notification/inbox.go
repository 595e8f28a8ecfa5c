// Package notification keeps the vendor's in-app notification inbox.
package notification

import (
	"sync"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/errors"
)

// Inbox holds notifications newest first, bounded by capacity
type Inbox struct {
	mu       sync.RWMutex
	items    []models.Notification
	capacity int
	clock    clock.Clock
}

// NewInbox creates a new Inbox. A non-positive capacity keeps everything.
func NewInbox(capacity int, clk clock.Clock) *Inbox {
	return &Inbox{capacity: capacity, clock: clk}
}

// Add stores n at the top of the inbox, assigning an ID when missing
func (b *Inbox) Add(n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = models.GenerateID("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = b.clock.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append([]models.Notification{n}, b.items...)
	if b.capacity > 0 && len(b.items) > b.capacity {
		b.items = b.items[:b.capacity]
	}
	return n
}

// Set replaces the inbox content
func (b *Inbox) Set(items []models.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append([]models.Notification(nil), items...)
}

// List returns a copy of the inbox, newest first
func (b *Inbox) List() []models.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]models.Notification(nil), b.items...)
}

// MarkAsRead flags one notification as read
func (b *Inbox) MarkAsRead(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i].IsRead = true
			return nil
		}
	}
	return errors.NewNotFoundError("notification " + id + " not found")
}

// MarkAllAsRead flags every notification as read
func (b *Inbox) MarkAllAsRead() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		b.items[i].IsRead = true
	}
}

// Remove deletes one notification
func (b *Inbox) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if b.items[i].ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFoundError("notification " + id + " not found")
}

// UnreadCount returns how many notifications are unread
func (b *Inbox) UnreadCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, item := range b.items {
		if !item.IsRead {
			n++
		}
	}
	return n
}
