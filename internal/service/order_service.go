package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/datasource"
	"github.com/vaidashi/vendor-order-desk/internal/lifecycle"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/internal/store"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// EventPublisher broadcasts events
type EventPublisher interface {
	Publish(e models.Event)
}

// OrderService handles order-related operations
type OrderService struct {
	store          *store.Store
	api            datasource.OrderAPI
	publisher      EventPublisher
	clock          clock.Clock
	confirmTimeout time.Duration
	logger         logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	store *store.Store,
	api datasource.OrderAPI,
	publisher EventPublisher,
	clk clock.Clock,
	confirmTimeout time.Duration,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		store:          store,
		api:            api,
		publisher:      publisher,
		clock:          clk,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// LoadOrders replaces the store content with the backend's orders
func (s *OrderService) LoadOrders(ctx context.Context) error {
	orders, err := s.api.FetchOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}

	s.store.SetOrders(orders)
	s.logger.Info("Orders loaded", "count", len(orders))
	return nil
}

// GetOrder returns the store's copy of an order
func (s *OrderService) GetOrder(id string) (models.Order, error) {
	return s.store.Get(id)
}

// RefreshOrder fetches one order from the backend and folds it in
func (s *OrderService) RefreshOrder(ctx context.Context, id string) (models.Order, error) {
	server, err := s.api.FetchOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}

	order, _ := s.store.Reconcile(server)
	return order, nil
}

// Transition applies op to an order in the store, then confirms the new
// status with the backend. A differing server status wins; a failed
// confirmation rolls the store back.
func (s *OrderService) Transition(ctx context.Context, id string, op lifecycle.Operation, note string) (models.Order, error) {
	before, after, err := s.store.Apply(id, op, note)
	if err != nil {
		return models.Order{}, err
	}

	confirmCtx := ctx
	if s.confirmTimeout > 0 {
		var cancel context.CancelFunc
		confirmCtx, cancel = context.WithTimeout(ctx, s.confirmTimeout)
		defer cancel()
	}

	server, err := s.api.UpdateOrderStatus(confirmCtx, id, after.Status)
	if err != nil {
		rolledBack := s.store.Restore(before, after.UpdatedAt)
		s.logger.Error("Failed to confirm order status",
			"error", err,
			"orderID", id,
			"status", after.Status,
			"rolledBack", rolledBack)
		return models.Order{}, fmt.Errorf("failed to confirm %s for order %s: %w", op, id, err)
	}

	result := after
	if server.Status != after.Status {
		result, _ = s.store.Reconcile(server)
	}

	s.publisher.Publish(models.NewOrderStatusChangedEvent(&result, before.Status, s.clock.Now()))
	return result, nil
}

// AcceptOrder accepts a pending order
func (s *OrderService) AcceptOrder(ctx context.Context, id string) (models.Order, error) {
	return s.Transition(ctx, id, lifecycle.OpAccept, "")
}

// RejectOrder cancels a pending order with an optional reason
func (s *OrderService) RejectOrder(ctx context.Context, id, reason string) (models.Order, error) {
	return s.Transition(ctx, id, lifecycle.OpReject, reason)
}

// StartPreparation starts preparing an accepted order
func (s *OrderService) StartPreparation(ctx context.Context, id string) (models.Order, error) {
	return s.Transition(ctx, id, lifecycle.OpStartPreparation, "")
}

// MarkReady marks a preparing order ready for pickup
func (s *OrderService) MarkReady(ctx context.Context, id string) (models.Order, error) {
	return s.Transition(ctx, id, lifecycle.OpMarkReady, "")
}

// HandOffToRider hands a ready order to the rider
func (s *OrderService) HandOffToRider(ctx context.Context, id string) (models.Order, error) {
	return s.Transition(ctx, id, lifecycle.OpHandOffToRider, "")
}

// CompleteOrder completes a handed off order
func (s *OrderService) CompleteOrder(ctx context.Context, id string) (models.Order, error) {
	return s.Transition(ctx, id, lifecycle.OpComplete, "")
}
