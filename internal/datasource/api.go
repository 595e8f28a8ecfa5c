// Package datasource is the boundary to the order backend: a simulated
// backend for local use and a resilient client wrapper around any backend.
package datasource

import (
	"context"

	"github.com/vaidashi/vendor-order-desk/internal/models"
)

// OrderAPI is the order backend as seen by the desk
type OrderAPI interface {
	FetchOrders(ctx context.Context) ([]models.Order, error)
	FetchOrder(ctx context.Context, id string) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error)
}
