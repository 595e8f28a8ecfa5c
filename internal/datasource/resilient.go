package datasource

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/circuitbreaker"
	"github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
	"github.com/vaidashi/vendor-order-desk/pkg/retry"
)

// ResilientConfig configures the retry and timeout behaviour
type ResilientConfig struct {
	RequestTimeout time.Duration
	MaxAttempts    int
	Backoff        retry.BackoffStrategy
}

// ResilientAPI guards an OrderAPI with a per call timeout, retries on
// retryable errors and a circuit breaker
type ResilientAPI struct {
	api         OrderAPI
	breaker     *circuitbreaker.CircuitBreaker
	timeout     time.Duration
	retryConfig *retry.RetryConfig
	logger      logger.Logger
}

// NewResilientAPI creates a new ResilientAPI
func NewResilientAPI(api OrderAPI, breaker *circuitbreaker.CircuitBreaker, config ResilientConfig, logger logger.Logger) *ResilientAPI {
	if config.Backoff == nil {
		config.Backoff = retry.NewDefaultExponentialBackoff()
	}

	return &ResilientAPI{
		api:     api,
		breaker: breaker,
		timeout: config.RequestTimeout,
		retryConfig: &retry.RetryConfig{
			MaxAttempts:     config.MaxAttempts,
			BackoffStrategy: config.Backoff,
			Logger:          logger,
			ShouldRetry: func(err error) bool {
				return errors.IsRetryable(err) && !stderrors.Is(err, errors.ErrServiceUnavailable)
			},
		},
		logger: logger,
	}
}

// Breaker exposes the circuit breaker for admin endpoints
func (c *ResilientAPI) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// FetchOrders fetches all orders
func (c *ResilientAPI) FetchOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := c.call(ctx, "fetch orders", func(ctx context.Context) error {
		var err error
		orders, err = c.api.FetchOrders(ctx)
		return err
	})
	return orders, err
}

// FetchOrder fetches one order
func (c *ResilientAPI) FetchOrder(ctx context.Context, id string) (models.Order, error) {
	var order models.Order
	err := c.call(ctx, "fetch order", func(ctx context.Context) error {
		var err error
		order, err = c.api.FetchOrder(ctx, id)
		return err
	})
	return order, err
}

// UpdateOrderStatus sends a status change
func (c *ResilientAPI) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	var order models.Order
	err := c.call(ctx, "update order status", func(ctx context.Context) error {
		var err error
		order, err = c.api.UpdateOrderStatus(ctx, id, status)
		return err
	})
	return order, err
}

func (c *ResilientAPI) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Retry(ctx, func(ctx context.Context) error {
		if !c.breaker.Allow() {
			return errors.NewAppError(errors.ErrServiceUnavailable, "order service circuit is open", http.StatusServiceUnavailable, false)
		}

		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		err := fn(callCtx)
		switch {
		case err == nil:
			c.breaker.Success()
		case errors.IsRetryable(err):
			// Only upstream trouble counts against the circuit
			c.breaker.Failure()
		default:
			c.breaker.Success()
		}
		return err
	}, c.retryConfig)

	if err != nil {
		c.logger.Error("Order service call failed",
			"operation", op,
			"error", err,
			"circuit", c.breaker.GetState().String())
	}
	return err
}
