package datasource

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

// MockConfig shapes the simulated backend
type MockConfig struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
	// NewOrderInterval is how often a new pending order shows up; zero
	// disables generation
	NewOrderInterval time.Duration
	Seed             int64
}

// MockAPI is an in-memory order backend with simulated latency, failures
// and a trickle of new orders
type MockAPI struct {
	mu            sync.Mutex
	orders        []models.Order
	rng           *rand.Rand
	generated     int
	lastGenerated time.Time

	config MockConfig
	clock  clock.Clock
	logger logger.Logger
}

// NewMockAPI creates a MockAPI holding the seed orders
func NewMockAPI(config MockConfig, clk clock.Clock, logger logger.Logger) *MockAPI {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	now := clk.Now()
	return &MockAPI{
		orders:        SeedOrders(now),
		rng:           rand.New(rand.NewSource(seed)),
		lastGenerated: now,
		config:        config,
		clock:         clk,
		logger:        logger,
	}
}

// FetchOrders returns every order, generating a new one when due
func (m *MockAPI) FetchOrders(ctx context.Context) ([]models.Order, error) {
	if err := m.simulate(ctx, "fetch orders"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.generateDue()

	out := make([]models.Order, len(m.orders))
	for i := range m.orders {
		out[i] = m.orders[i].Clone()
	}
	return out, nil
}

// FetchOrder returns one order
func (m *MockAPI) FetchOrder(ctx context.Context, id string) (models.Order, error) {
	if err := m.simulate(ctx, "fetch order"); err != nil {
		return models.Order{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return models.Order{}, errors.NewOrderNotFoundError(id)
	}
	return m.orders[i].Clone(), nil
}

// UpdateOrderStatus records a new status for an order and returns the
// stored copy
func (m *MockAPI) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	if !status.Valid() {
		return models.Order{}, errors.NewInvalidInputError("unknown status " + string(status))
	}
	if err := m.simulate(ctx, "update order status"); err != nil {
		return models.Order{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return models.Order{}, errors.NewOrderNotFoundError(id)
	}

	m.orders[i].Status = status
	m.orders[i].UpdatedAt = m.clock.Now()
	return m.orders[i].Clone(), nil
}

// AddOrder places an order on the backend as if a customer just ordered
func (m *MockAPI) AddOrder(order models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders = append([]models.Order{order.Clone()}, m.orders...)
}

// ForceStatus changes an order behind the desk's back, as another device
// or the platform would
func (m *MockAPI) ForceStatus(id string, status models.OrderStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	m.orders[i].Status = status
	m.orders[i].UpdatedAt = m.clock.Now()
	return true
}

// SetFailureRate changes the simulated failure probability
func (m *MockAPI) SetFailureRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.FailureRate = rate
}

// simulate waits a random latency and fails at the configured rate
func (m *MockAPI) simulate(ctx context.Context, op string) error {
	m.mu.Lock()
	latency := m.config.MinLatency
	if spread := m.config.MaxLatency - m.config.MinLatency; spread > 0 {
		latency += time.Duration(m.rng.Int63n(int64(spread)))
	}
	fail := m.config.FailureRate > 0 && m.rng.Float64() < m.config.FailureRate
	m.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.NewTimeoutError(op + " cancelled: " + ctx.Err().Error())
		}
	}

	if fail {
		m.logger.Warn("Simulating order service failure", "operation", op)
		return errors.NewTemporaryError("order service unavailable during " + op)
	}
	return nil
}

func (m *MockAPI) generateDue() {
	if m.config.NewOrderInterval <= 0 {
		return
	}

	now := m.clock.Now()
	if now.Sub(m.lastGenerated) < m.config.NewOrderInterval {
		return
	}

	m.generated++
	m.lastGenerated = now
	order := generateOrder(m.generated, now)
	m.orders = append([]models.Order{order}, m.orders...)

	m.logger.Info("New order arrived", "orderID", order.ID, "orderNumber", order.OrderNumber)
}

func (m *MockAPI) indexOf(id string) int {
	for i := range m.orders {
		if m.orders[i].ID == id {
			return i
		}
	}
	return -1
}
