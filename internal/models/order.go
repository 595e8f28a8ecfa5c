package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSLAMinutes applies when an order carries no SLA of its own
const DefaultSLAMinutes = 20

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusAccepted      OrderStatus = "accepted"
	OrderStatusPreparing     OrderStatus = "preparing"
	OrderStatusReady         OrderStatus = "ready"
	OrderStatusHandedToRider OrderStatus = "handed_to_rider"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusCancelled     OrderStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAccepted,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusHandedToRider,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Priority is the urgency a vendor assigns to an order
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Customer is the buyer of an order
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
}

// OrderItem is a single line of an order
type OrderItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	VariantName string          `json:"variantName,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// TimelineEntry records one status change
type TimelineEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Notes     string      `json:"notes,omitempty"`
}

// Order represents a customer order as seen by the vendor
type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"orderNumber"`
	Customer    Customer    `json:"customer"`
	Items       []OrderItem `json:"items"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`

	Status          OrderStatus `json:"status"`
	Priority        Priority    `json:"priority"`
	PaymentMethod   string      `json:"paymentMethod"`
	PaymentStatus   string      `json:"paymentStatus"`
	DeliveryAddress string      `json:"deliveryAddress"`
	Notes           string      `json:"notes,omitempty"`
	VendorID        string      `json:"vendorId"`
	RiderID         string      `json:"riderId,omitempty"`

	EstimatedPrepTime int  `json:"estimatedPrepTime"`
	ActualPrepTime    *int `json:"actualPrepTime,omitempty"`
	SLATime           *int `json:"slaTime,omitempty"`

	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	AcceptedAt      *time.Time `json:"acceptedAt,omitempty"`
	PrepStartedAt   *time.Time `json:"prepStartedAt,omitempty"`
	ReadyAt         *time.Time `json:"readyAt,omitempty"`
	HandedToRiderAt *time.Time `json:"handedToRiderAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`

	Timeline []TimelineEntry `json:"timeline"`
}

// EffectiveSLA returns the SLA in minutes, falling back to the default
func (o *Order) EffectiveSLA() int {
	if o.SLATime == nil || *o.SLATime <= 0 {
		return DefaultSLAMinutes
	}
	return *o.SLATime
}

// Clone returns a deep copy of the order
func (o Order) Clone() Order {
	c := o

	if o.Items != nil {
		c.Items = make([]OrderItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	if o.Timeline != nil {
		c.Timeline = make([]TimelineEntry, len(o.Timeline))
		copy(c.Timeline, o.Timeline)
	}

	c.ActualPrepTime = cloneInt(o.ActualPrepTime)
	c.SLATime = cloneInt(o.SLATime)
	c.AcceptedAt = cloneTime(o.AcceptedAt)
	c.PrepStartedAt = cloneTime(o.PrepStartedAt)
	c.ReadyAt = cloneTime(o.ReadyAt)
	c.HandedToRiderAt = cloneTime(o.HandedToRiderAt)
	c.CompletedAt = cloneTime(o.CompletedAt)

	return c
}

// NewOrder creates a new pending order with its opening timeline entry
func NewOrder(orderNumber string, customer Customer, items []OrderItem, now time.Time) *Order {
	subtotal := decimal.Zero
	for i := range items {
		if items[i].Subtotal.IsZero() {
			items[i].Subtotal = items[i].Price.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
		}
		subtotal = subtotal.Add(items[i].Subtotal)
	}

	return &Order{
		ID:            GenerateID("ord"),
		OrderNumber:   orderNumber,
		Customer:      customer,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           decimal.Zero,
		DeliveryFee:   decimal.Zero,
		Discount:      decimal.Zero,
		Total:         subtotal,
		Status:        OrderStatusPending,
		Priority:      PriorityNormal,
		PaymentStatus: "paid",
		CreatedAt:     now,
		UpdatedAt:     now,
		Timeline: []TimelineEntry{
			{Status: OrderStatusPending, Timestamp: now, Notes: "Order placed"},
		},
	}
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
