package alert

import (
	"context"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"go.uber.org/atomic"

	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// Permission is the desktop notification permission state
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// PermissionRequester asks the environment for notification permission
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (Permission, error)
}

// StaticPermission answers permission requests with a configured value
type StaticPermission Permission

func (p StaticPermission) RequestPermission(context.Context) (Permission, error) {
	return Permission(p), nil
}

// DesktopNotification is one OS level notification
type DesktopNotification struct {
	Title              string
	Body               string
	Tag                string
	RequireInteraction bool
}

// Notifier shows OS notifications
type Notifier interface {
	Notify(ctx context.Context, n DesktopNotification) error
}

// BeeepNotifier shows notifications through beeep. Notifications sharing a
// tag within the collapse window are shown once.
type BeeepNotifier struct {
	notify func(title, message string) error
	alert  func(title, message string) error
	clock  clock.Clock
	window time.Duration

	mu    sync.Mutex
	shown map[string]time.Time
}

// NewBeeepNotifier creates a new BeeepNotifier
func NewBeeepNotifier(clk clock.Clock, collapseWindow time.Duration) *BeeepNotifier {
	return &BeeepNotifier{
		notify: func(title, message string) error { return beeep.Notify(title, message, "") },
		alert:  func(title, message string) error { return beeep.Alert(title, message, "") },
		clock:  clk,
		window: collapseWindow,
		shown:  make(map[string]time.Time),
	}
}

// Notify shows n unless a notification with the same tag is still showing
func (b *BeeepNotifier) Notify(ctx context.Context, n DesktopNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if n.Tag != "" && b.collapse(n.Tag) {
		return nil
	}

	// Alert keeps the notification up with a sound until dismissed.
	if n.RequireInteraction {
		return b.alert(n.Title, n.Body)
	}
	return b.notify(n.Title, n.Body)
}

// collapse records tag and reports whether it was shown recently
func (b *BeeepNotifier) collapse(tag string) bool {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.shown[tag]; ok && now.Sub(last) < b.window {
		return true
	}
	b.shown[tag] = now

	if len(b.shown) > 512 {
		for t, at := range b.shown {
			if now.Sub(at) >= b.window {
				delete(b.shown, t)
			}
		}
	}
	return false
}

// DesktopChannel shows an OS notification when permission was granted
type DesktopChannel struct {
	notifier   Notifier
	formatter  MoneyFormatter
	permission *atomic.String
	logger     logger.Logger
}

// NewDesktopChannel creates a new DesktopChannel with permission unresolved
func NewDesktopChannel(notifier Notifier, formatter MoneyFormatter, logger logger.Logger) *DesktopChannel {
	return &DesktopChannel{
		notifier:   notifier,
		formatter:  formatter,
		permission: atomic.NewString(string(PermissionDefault)),
		logger:     logger,
	}
}

// RequestPermission resolves the permission once at startup. A failed
// request leaves the channel disabled.
func (c *DesktopChannel) RequestPermission(ctx context.Context, requester PermissionRequester) Permission {
	p, err := requester.RequestPermission(ctx)
	if err != nil {
		c.logger.Warn("Desktop notification permission request failed", "error", err)
		p = PermissionDenied
	}

	c.permission.Store(string(p))
	c.logger.Info("Desktop notification permission resolved", "permission", p)
	return p
}

// Permission returns the current permission state
func (c *DesktopChannel) Permission() Permission {
	return Permission(c.permission.Load())
}

func (c *DesktopChannel) Name() string { return "desktop" }

func (c *DesktopChannel) Deliver(ctx context.Context, a Alert) error {
	if c.Permission() != PermissionGranted {
		return nil
	}

	return c.notifier.Notify(ctx, DesktopNotification{
		Title:              Title(a),
		Body:               c.formatter.Body(a),
		Tag:                string(a.Kind) + "-" + a.OrderID,
		RequireInteraction: a.Kind.Urgent(),
	})
}
