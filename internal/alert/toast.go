package alert

import (
	"context"
	"fmt"

	"github.com/vaidashi/vendor-order-desk/internal/models"
)

// NotificationRecorder stores in-app notifications
type NotificationRecorder interface {
	Add(n models.Notification) models.Notification
}

// EventPublisher broadcasts events to live subscribers
type EventPublisher interface {
	Publish(e models.Event)
}

// ToastChannel records the alert in the notification inbox and pushes it to
// connected dashboards. It is always attempted.
type ToastChannel struct {
	inbox     NotificationRecorder
	publisher EventPublisher
	formatter MoneyFormatter
}

// NewToastChannel creates a new ToastChannel
func NewToastChannel(inbox NotificationRecorder, publisher EventPublisher, formatter MoneyFormatter) *ToastChannel {
	return &ToastChannel{inbox: inbox, publisher: publisher, formatter: formatter}
}

func (c *ToastChannel) Name() string { return "toast" }

func (c *ToastChannel) Deliver(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := c.inbox.Add(models.Notification{
		Type:      models.NotificationTypeOrder,
		Title:     Title(a),
		Message:   c.formatter.Body(a),
		Urgent:    a.Kind.Urgent(),
		ActionURL: fmt.Sprintf("/orders/%s", a.OrderID),
		CreatedAt: a.At,
	})

	c.publisher.Publish(models.NewNotificationEvent(n))
	return nil
}
