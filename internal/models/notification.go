package models

import "time"

// NotificationType classifies inbox notifications
type NotificationType string

const (
	NotificationTypeOrder     NotificationType = "order"
	NotificationTypeInventory NotificationType = "inventory"
	NotificationTypeSystem    NotificationType = "system"
	NotificationTypePayment   NotificationType = "payment"
)

// Notification is an in-app notification shown in the vendor inbox
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"isRead"`
	Urgent    bool             `json:"urgent"`
	ActionURL string           `json:"actionUrl,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
