package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/vendor-order-desk/internal/datasource"
	"github.com/vaidashi/vendor-order-desk/internal/metrics"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/internal/store"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	apperrors "github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type MockOrderAPI struct {
	mock.Mock
}

func (m *MockOrderAPI) FetchOrders(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *MockOrderAPI) FetchOrder(ctx context.Context, id string) (models.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Order), args.Error(1)
}

func (m *MockOrderAPI) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(models.Order), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(e models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func newService(api datasource.OrderAPI) (*OrderService, *store.Store, *recordingPublisher) {
	clk := clock.NewFakeClock(t0)
	st := store.New(clk, metrics.NewNop(), logger.NewNop())
	st.SetOrders(datasource.SeedOrders(t0))
	pub := &recordingPublisher{}
	return NewOrderService(st, api, pub, clk, time.Second, logger.NewNop()), st, pub
}

func TestTransitionConfirmed(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("UpdateOrderStatus", mock.Anything, "order-1", models.OrderStatusAccepted).
		Return(models.Order{ID: "order-1", Status: models.OrderStatusAccepted}, nil)

	svc, st, pub := newService(api)

	o, err := svc.AcceptOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAccepted, o.Status)

	stored, _ := st.Get("order-1")
	assert.Equal(t, models.OrderStatusAccepted, stored.Status)

	require.Len(t, pub.events, 1)
	change := pub.events[0].Data.(models.StatusChange)
	assert.Equal(t, models.OrderStatusPending, change.OldStatus)
	assert.Equal(t, models.OrderStatusAccepted, change.NewStatus)
	api.AssertExpectations(t)
}

func TestTransitionRolledBackOnFailure(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("UpdateOrderStatus", mock.Anything, "order-1", models.OrderStatusCancelled).
		Return(models.Order{}, apperrors.NewTemporaryError("backend down"))

	svc, st, pub := newService(api)

	_, err := svc.RejectOrder(context.Background(), "order-1", "Out of stock")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTemporaryFailure))

	stored, _ := st.Get("order-1")
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.Len(t, stored.Timeline, 1)
	assert.Empty(t, pub.events)
}

func TestTransitionServerWins(t *testing.T) {
	api := new(MockOrderAPI)
	api.On("UpdateOrderStatus", mock.Anything, "order-2", models.OrderStatusReady).
		Return(models.Order{ID: "order-2", Status: models.OrderStatusHandedToRider, UpdatedAt: t0}, nil)

	svc, _, pub := newService(api)

	o, err := svc.MarkReady(context.Background(), "order-2")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusHandedToRider, o.Status)
	assert.Equal(t, "Status updated by server", o.Timeline[len(o.Timeline)-1].Notes)
	require.NotNil(t, o.ReadyAt, "local stamp survives")

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.OrderStatusHandedToRider, pub.events[0].Data.(models.StatusChange).NewStatus)
}

func TestInvalidTransitionSkipsBackend(t *testing.T) {
	api := new(MockOrderAPI)
	svc, _, _ := newService(api)

	_, err := svc.CompleteOrder(context.Background(), "order-1")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	api.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadAndRefresh(t *testing.T) {
	api := new(MockOrderAPI)
	server := datasource.SeedOrders(t0)
	api.On("FetchOrders", mock.Anything).Return(server[:1], nil).Once()

	svc, st, _ := newService(api)
	require.NoError(t, svc.LoadOrders(context.Background()))
	assert.Equal(t, 1, st.Len())

	cancelled := server[0].Clone()
	cancelled.Status = models.OrderStatusCancelled
	api.On("FetchOrder", mock.Anything, "order-1").Return(cancelled, nil)

	o, err := svc.RefreshOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)

	api.On("FetchOrders", mock.Anything).Return(nil, errors.New("down"))
	assert.Error(t, svc.LoadOrders(context.Background()))
}

func TestFullFlowAgainstMockBackend(t *testing.T) {
	clk := clock.NewFakeClock(t0)
	backend := datasource.NewMockAPI(datasource.MockConfig{Seed: 7}, clk, logger.NewNop())
	st := store.New(clk, metrics.NewNop(), logger.NewNop())
	svc := NewOrderService(st, backend, &recordingPublisher{}, clk, time.Second, logger.NewNop())

	require.NoError(t, svc.LoadOrders(context.Background()))

	steps := []func(context.Context, string) (models.Order, error){
		svc.AcceptOrder, svc.StartPreparation, svc.MarkReady, svc.HandOffToRider, svc.CompleteOrder,
	}
	for _, step := range steps {
		clk.Advance(3 * time.Minute)
		_, err := step(context.Background(), "order-1")
		require.NoError(t, err)
	}

	o, _ := st.Get("order-1")
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	require.NotNil(t, o.ActualPrepTime)
	assert.Equal(t, 3, *o.ActualPrepTime)

	server, err := backend.FetchOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, server.Status)
}
