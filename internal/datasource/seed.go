package datasource

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/vendor-order-desk/internal/models"
)

const vendorID = "vendor-1"

var (
	taxRate     = decimal.RequireFromString("0.10")
	deliveryFee = decimal.RequireFromString("2.99")
)

type product struct {
	id      string
	name    string
	variant string
	price   decimal.Decimal
}

var catalog = []product{
	{id: "prod-1", name: "Fresh Organic Tomatoes", price: decimal.RequireFromString("3.99")},
	{id: "prod-2", name: "Fresh Milk - Whole", variant: "1L", price: decimal.RequireFromString("4.50")},
	{id: "prod-3", name: "Brown Bread - Whole Wheat", price: decimal.RequireFromString("2.99")},
	{id: "prod-4", name: "Fresh Chicken Breast", price: decimal.RequireFromString("8.99")},
	{id: "prod-5", name: "Basmati Rice", price: decimal.RequireFromString("12.99")},
}

var customers = []models.Customer{
	{ID: "cust-4", Name: "Sarah Wilson", Email: "sarah@example.com", Phone: "+1 (555) 456-7890", Address: "12 Birch Lane, NY 10005"},
	{ID: "cust-5", Name: "David Lee", Email: "david@example.com", Phone: "+1 (555) 567-8901", Address: "88 Cedar Court, NY 10006"},
	{ID: "cust-6", Name: "Grace Okafor", Email: "grace@example.com", Phone: "+1 (555) 678-9012", Address: "5 Elm Row, NY 10007"},
	{ID: "cust-7", Name: "Tunde Bakare", Email: "tunde@example.com", Phone: "+1 (555) 789-0123", Address: "41 Spruce Avenue, NY 10008"},
}

func item(id string, p product, qty int) models.OrderItem {
	return models.OrderItem{
		ID:          id,
		ProductID:   p.id,
		ProductName: p.name,
		VariantName: p.variant,
		Quantity:    qty,
		Price:       p.price,
		Subtotal:    p.price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SeedOrders returns the three starting orders relative to now: a fresh
// pending order, one preparing for 30 minutes and one ready for an hour
func SeedOrders(now time.Time) []models.Order {
	placed := func(at time.Time) []models.TimelineEntry {
		return []models.TimelineEntry{{Status: models.OrderStatusPending, Timestamp: at, Notes: "Order placed"}}
	}

	first := models.Order{
		ID:          "order-1",
		OrderNumber: "ORD-2024-001",
		Customer: models.Customer{
			ID: "cust-1", Name: "John Smith", Email: "john@example.com",
			Phone: "+1 (555) 987-6543", Address: "456 Oak Avenue, Apt 3B, NY 10002",
		},
		Items:           []models.OrderItem{item("item-1", catalog[0], 2), item("item-2", catalog[1], 1)},
		Subtotal:        money("12.48"),
		Tax:             money("1.25"),
		DeliveryFee:     deliveryFee,
		Discount:        decimal.Zero,
		Total:           money("16.72"),
		Status:          models.OrderStatusPending,
		Priority:        models.PriorityNormal,
		PaymentMethod:   "card",
		PaymentStatus:   "paid",
		DeliveryAddress: "456 Oak Avenue, Apt 3B, NY 10002",
		Notes:           "Please ring the doorbell twice",
		VendorID:        vendorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Timeline:        placed(now),
	}

	secondCreated := now.Add(-30 * time.Minute)
	second := models.Order{
		ID:          "order-2",
		OrderNumber: "ORD-2024-002",
		Customer: models.Customer{
			ID: "cust-2", Name: "Emily Davis", Email: "emily@example.com",
			Phone: "+1 (555) 234-5678", Address: "789 Pine Street, NY 10003",
		},
		Items:           []models.OrderItem{item("item-3", catalog[2], 2), item("item-4", catalog[3], 1)},
		Subtotal:        money("14.97"),
		Tax:             money("1.50"),
		DeliveryFee:     deliveryFee,
		Discount:        decimal.Zero,
		Total:           money("19.46"),
		Status:          models.OrderStatusPreparing,
		Priority:        models.PriorityNormal,
		PaymentMethod:   "card",
		PaymentStatus:   "paid",
		DeliveryAddress: "789 Pine Street, NY 10003",
		VendorID:        vendorID,
		CreatedAt:       secondCreated,
		UpdatedAt:       now.Add(-10 * time.Minute),
		AcceptedAt:      models.TimePtr(now.Add(-25 * time.Minute)),
		PrepStartedAt:   models.TimePtr(now.Add(-10 * time.Minute)),
		Timeline: append(placed(secondCreated),
			models.TimelineEntry{Status: models.OrderStatusAccepted, Timestamp: now.Add(-25 * time.Minute), Notes: "Order accepted by vendor"},
			models.TimelineEntry{Status: models.OrderStatusPreparing, Timestamp: now.Add(-10 * time.Minute), Notes: "Preparation started"},
		),
	}

	thirdCreated := now.Add(-time.Hour)
	third := models.Order{
		ID:          "order-3",
		OrderNumber: "ORD-2024-003",
		Customer: models.Customer{
			ID: "cust-3", Name: "Michael Brown", Email: "michael@example.com",
			Phone: "+1 (555) 345-6789", Address: "321 Maple Drive, NY 10004",
		},
		Items:           []models.OrderItem{item("item-5", catalog[4], 1)},
		Subtotal:        money("12.99"),
		Tax:             money("1.30"),
		DeliveryFee:     deliveryFee,
		Discount:        decimal.Zero,
		Total:           money("17.28"),
		Status:          models.OrderStatusReady,
		Priority:        models.PriorityNormal,
		PaymentMethod:   "cash",
		PaymentStatus:   "pending",
		DeliveryAddress: "321 Maple Drive, NY 10004",
		VendorID:        vendorID,
		CreatedAt:       thirdCreated,
		UpdatedAt:       now.Add(-5 * time.Minute),
		AcceptedAt:      models.TimePtr(now.Add(-55 * time.Minute)),
		PrepStartedAt:   models.TimePtr(now.Add(-50 * time.Minute)),
		ReadyAt:         models.TimePtr(now.Add(-5 * time.Minute)),
		ActualPrepTime:  models.IntPtr(45),
		Timeline: append(placed(thirdCreated),
			models.TimelineEntry{Status: models.OrderStatusAccepted, Timestamp: now.Add(-55 * time.Minute), Notes: "Order accepted by vendor"},
			models.TimelineEntry{Status: models.OrderStatusPreparing, Timestamp: now.Add(-50 * time.Minute), Notes: "Preparation started"},
			models.TimelineEntry{Status: models.OrderStatusReady, Timestamp: now.Add(-5 * time.Minute), Notes: "Order ready for pickup (Prep time: 45min)"},
		),
	}

	return []models.Order{first, second, third}
}

// SeedNotifications returns the starting inbox content
func SeedNotifications(now time.Time) []models.Notification {
	return []models.Notification{
		{
			ID: "notif-1", Type: models.NotificationTypeOrder,
			Title: "New Order Received", Message: "Order #ORD-2024-001 from John Smith",
			ActionURL: "/orders/order-1", CreatedAt: now,
		},
		{
			ID: "notif-2", Type: models.NotificationTypeInventory,
			Title: "Low Stock Alert", Message: "Brown Bread - Whole Wheat is running low (12 units remaining)",
			ActionURL: "/inventory", CreatedAt: now.Add(-10 * time.Minute),
		},
		{
			ID: "notif-3", Type: models.NotificationTypeOrder,
			Title: "Order Ready for Pickup", Message: "Order #ORD-2024-003 is ready for rider pickup",
			IsRead: true, ActionURL: "/orders/order-3", CreatedAt: now.Add(-30 * time.Minute),
		},
	}
}

// generateOrder builds a pending order from the catalog. seq picks the
// customer and products so consecutive orders differ.
func generateOrder(seq int, now time.Time) models.Order {
	customer := customers[seq%len(customers)]

	first := catalog[seq%len(catalog)]
	second := catalog[(seq+2)%len(catalog)]
	items := []models.OrderItem{
		item(fmt.Sprintf("item-g%d-1", seq), first, 1+seq%3),
		item(fmt.Sprintf("item-g%d-2", seq), second, 1),
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal)
	}
	tax := subtotal.Mul(taxRate).Round(2)

	return models.Order{
		ID:              models.GenerateID("order"),
		OrderNumber:     fmt.Sprintf("ORD-%d-%03d", now.Year(), 100+seq),
		Customer:        customer,
		Items:           items,
		Subtotal:        subtotal,
		Tax:             tax,
		DeliveryFee:     deliveryFee,
		Discount:        decimal.Zero,
		Total:           subtotal.Add(tax).Add(deliveryFee),
		Status:          models.OrderStatusPending,
		Priority:        models.PriorityNormal,
		PaymentMethod:   "card",
		PaymentStatus:   "paid",
		DeliveryAddress: customer.Address,
		VendorID:        vendorID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Timeline:        []models.TimelineEntry{{Status: models.OrderStatusPending, Timestamp: now, Notes: "Order placed"}},
	}
}
