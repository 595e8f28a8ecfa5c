package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/vendor-order-desk/internal/alert"
	"github.com/vaidashi/vendor-order-desk/internal/config"
	"github.com/vaidashi/vendor-order-desk/internal/datasource"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/internal/timing"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	apperrors "github.com/vaidashi/vendor-order-desk/pkg/errors"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type silentPlayer struct{}

func (silentPlayer) Play(context.Context, alert.Pattern) error { return nil }

type recordingNotifier struct {
	mu    sync.Mutex
	shown []alert.DesktopNotification
}

func (n *recordingNotifier) Notify(_ context.Context, dn alert.DesktopNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, dn)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.shown)
}

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	*Server
	clock    *clock.FakeClock
	backend  *datasource.MockAPI
	notifier *recordingNotifier
}

func testConfig() *config.Config {
	return &config.Config{
		Port: 8080,
		SLA: config.SLAConfig{
			DefaultMinutes:  20,
			DisplayInterval: time.Second,
			BudgetInterval:  10 * time.Second,
			ScanInterval:    30 * time.Second,
		},
		Alerts: config.AlertsConfig{
			SoundEnabled:      true,
			DesktopPermission: config.PermissionGranted,
			CollapseWindow:    10 * time.Minute,
			ChannelTimeout:    time.Second,
			CurrencySymbol:    "₦",
			InboxCapacity:     100,
		},
		DataSource: config.DataSourceConfig{
			PollInterval:     15 * time.Second,
			RequestTimeout:   time.Second,
			MaxAttempts:      1,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		RateLimit: config.RateLimitConfig{
			GlobalMaxTokens:  1000,
			GlobalRefillRate: 1000,
			IPMaxTokens:      1000,
			IPRefillRate:     1000,
			IPIdleTTL:        time.Minute,
		},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clk := clock.NewFakeClock(t0)
	backend := datasource.NewMockAPI(datasource.MockConfig{Seed: 1}, clk, logger.NewNop())
	notifier := &recordingNotifier{}

	s := newServer(testConfig(), logger.NewNop(), components{
		clock:    clk,
		api:      backend,
		player:   silentPlayer{},
		notifier: notifier,
	})
	s.bootstrap(context.Background())
	t.Cleanup(s.rateLimiter.Stop)

	return &testServer{Server: s, clock: clk, backend: backend, notifier: notifier}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var resp testResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func decodeOrder(t *testing.T, resp testResponse) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, json.Unmarshal(resp.Data, &order))
	return order
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health Health
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Orders)
	assert.Equal(t, "closed", health.CircuitBreaker)
}

func TestListOrders(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantTotal int
	}{
		{"all", "/api/v1/orders", http.StatusOK, 3},
		{"by status", "/api/v1/orders?status=pending", http.StatusOK, 1},
		{"search", "/api/v1/orders?q=emily", http.StatusOK, 1},
		{"unknown status", "/api/v1/orders?status=shipped", http.StatusBadRequest, 0},
		{"bad page", "/api/v1/orders?page=two", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := ts.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				assert.False(t, resp.Success)
				return
			}

			var page struct {
				Total  int            `json:"total"`
				Orders []models.Order `json:"orders"`
			}
			require.NoError(t, json.Unmarshal(resp.Data, &page))
			assert.Equal(t, tt.wantTotal, page.Total)
		})
	}
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/orders/order-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Emily Davis", decodeOrder(t, resp).Customer.Name)

	rec, resp = ts.do(t, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, resp.Error, "not found")
}

func TestOrderStats(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/orders/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"byStatus"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus["ready"])
}

func TestLifecycleThroughAPI(t *testing.T) {
	ts := newTestServer(t)

	steps := []struct {
		action string
		want   models.OrderStatus
	}{
		{"accept", models.OrderStatusAccepted},
		{"start-preparation", models.OrderStatusPreparing},
		{"ready", models.OrderStatusReady},
		{"hand-off", models.OrderStatusHandedToRider},
		{"complete", models.OrderStatusCompleted},
	}

	for _, step := range steps {
		ts.clock.Advance(time.Minute)
		rec, resp := ts.do(t, http.MethodPost, "/api/v1/orders/order-1/"+step.action, nil)
		require.Equal(t, http.StatusOK, rec.Code, step.action)
		assert.Equal(t, step.want, decodeOrder(t, resp).Status)
	}

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/orders/order-1/accept", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/orders/missing/accept", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectWithReason(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/orders/order-1/reject", map[string]string{"reason": "Out of stock"})
	require.Equal(t, http.StatusOK, rec.Code)

	order := decodeOrder(t, resp)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, "Out of stock", order.Timeline[len(order.Timeline)-1].Notes)
}

func TestConfirmFailureRollsBack(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.SetFailureRate(1)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/orders/order-1/accept", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, resp := ts.do(t, http.MethodGet, "/api/v1/orders/order-1", nil)
	assert.Equal(t, models.OrderStatusPending, decodeOrder(t, resp).Status)
}

func TestSelection(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/orders/selected", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/orders/order-2/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/orders/selected", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "order-2", decodeOrder(t, resp).ID)

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/orders/selected", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/orders/selected", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilter(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodPut, "/api/v1/filter", map[string]string{"filter": "ready"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Filter string         `json:"filter"`
		Orders []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, "ready", body.Filter)
	require.Len(t, body.Orders, 1)
	assert.Equal(t, "order-3", body.Orders[0].ID)

	// The list follows the active filter when no status is given.
	_, resp = ts.do(t, http.MethodGet, "/api/v1/orders", nil)
	var page struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 1, page.Total)

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/filter", map[string]string{"filter": "shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderTimer(t *testing.T) {
	ts := newTestServer(t)

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/orders/order-2/timer", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var p timing.Projection
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, 20, p.SLAMinutes)
	assert.Equal(t, 30, p.Timer.Minutes)
	assert.True(t, p.Timer.IsOverdue)
	assert.True(t, p.Budget.IsBreached)
	assert.False(t, p.Frozen)
}

func TestTimerStreamEndsForFrozenOrder(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.store.Reject("order-1", "")
	require.NoError(t, err)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/orders/order-1/timer/stream", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: timer\n")
	assert.Contains(t, body, "event: end\n")
	assert.Contains(t, body, `"frozen":true`)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/orders/missing/timer/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)

	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	defer ts.closeStreams()

	resp, err := http.Get(srv.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/orders/order-1/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	found := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if strings.HasPrefix(scanner.Text(), "event: ") {
				found <- strings.TrimPrefix(scanner.Text(), "event: ")
				return
			}
		}
	}()

	select {
	case event := <-found:
		assert.Equal(t, string(models.EventOrderStatusChanged), event)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestNotifications(t *testing.T) {
	ts := newTestServer(t)

	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unread_count"`
	}

	_, resp := ts.do(t, http.MethodGet, "/api/v1/notifications", nil)
	require.NoError(t, json.Unmarshal(resp.Data, &inbox))
	assert.Len(t, inbox.Notifications, 3)
	assert.Equal(t, 2, inbox.UnreadCount)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/notifications/notif-1/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.inbox.UnreadCount())

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, ts.inbox.UnreadCount())

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/notifications/notif-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.inbox.List(), 2)

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/notifications/notif-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBreachScanRaisesAlerts(t *testing.T) {
	ts := newTestServer(t)

	// order-2 has been preparing for 30 minutes and order-3 ready for an hour
	assert.Equal(t, 2, ts.monitor.Scan(context.Background()))
	ts.monitor.Wait()
	assert.Equal(t, 2, ts.notifier.count())

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/admin/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var alerts struct {
		AlertedOrders     []string `json:"alerted_orders"`
		DesktopPermission string   `json:"desktop_permission"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &alerts))
	assert.ElementsMatch(t, []string{"order-2", "order-3"}, alerts.AlertedOrders)
	assert.Equal(t, "granted", alerts.DesktopPermission)

	// The toast channel recorded both breaches.
	assert.Len(t, ts.inbox.List(), 5)

	// Completing an order drops its flag.
	_, err := ts.store.HandOffToRider("order-3", "")
	require.NoError(t, err)
	_, err = ts.store.Complete("order-3", "")
	require.NoError(t, err)
	assert.False(t, ts.monitor.IsAlerted("order-3"))
}

func TestSyncAnnouncesNewPendingOrders(t *testing.T) {
	ts := newTestServer(t)

	ts.backend.AddOrder(models.Order{
		ID:          "order-9",
		OrderNumber: "ORD-2024-009",
		Customer:    models.Customer{Name: "Sarah Wilson"},
		Status:      models.OrderStatusPending,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	})

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/admin/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Added  int `json:"added"`
		Orders int `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, 1, body.Added)
	assert.Equal(t, 4, body.Orders)
	assert.Equal(t, 1, ts.notifier.count())

	// A second sync finds nothing new.
	_, resp = ts.do(t, http.MethodPost, "/api/v1/admin/sync", nil)
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, 0, body.Added)
}

func TestCircuitBreakerAdmin(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		ts.breaker.Failure()
	}

	_, resp := ts.do(t, http.MethodGet, "/api/v1/admin/circuit-breaker", nil)
	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	assert.Equal(t, "open", state["state"])

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/orders/order-1/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/admin/circuit-breaker/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/orders/order-1/refresh", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEndpointRateLimit(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPut, "/api/v1/admin/rate-limits", map[string]interface{}{
		"endpoint":    "post:/api/v1/orders/{id}/accept",
		"max_tokens":  1,
		"refill_rate": 0.001,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/orders/order-1/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The bucket is per route, not per order.
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/orders/order-2/accept", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other actions keep their own bucket.
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/orders/order-1/start-preparation", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, resp := ts.do(t, http.MethodGet, "/api/v1/admin/rate-limits", nil)
	assert.Contains(t, string(resp.Data), "POST:/api/v1/orders/{id}/accept")

	rec, _ = ts.do(t, http.MethodPut, "/api/v1/admin/rate-limits", map[string]interface{}{
		"endpoint": "accept", "max_tokens": 1, "refill_rate": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vendor_order_desk_orders{status="pending"} 1`)
}

func TestUnexpectedErrorsAreMasked(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"plain error", errors.New("dial tcp 10.0.0.5:5432: connection refused"), http.StatusInternalServerError, "Internal server error"},
		{"application error", apperrors.NewOrderNotFoundError("order-42"), http.StatusNotFound, "order order-42 not found"},
		{"wrapped temporary", fmt.Errorf("confirm: %w", apperrors.NewTemporaryError("order service unavailable")), http.StatusServiceUnavailable, "confirm: order service unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ts.respondWithAppError(rec, tt.err)

			var resp testResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
}

func TestDeadLetterAdmin(t *testing.T) {
	ts := newTestServer(t)

	queue := ts.relay.DeadLetters()
	order := &models.Order{ID: "order-1", OrderNumber: "ORD-2024-001", Status: models.OrderStatusAccepted}
	retried := queue.Add("logging", models.NewOrderStatusChangedEvent(order, models.OrderStatusPending, t0), errors.New("disk full"))
	discarded := queue.Add("logging", models.NewOrderStatusChangedEvent(order, models.OrderStatusPending, t0), errors.New("disk full"))

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/admin/dead-letters?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items      []map[string]interface{} `json:"items"`
		TotalCount int                      `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, discarded.ID, page.Items[0]["id"])

	// The logging handler takes the event this time.
	rec, resp = ts.do(t, http.MethodPost, "/api/v1/admin/dead-letters/"+retried.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), `"status":"resolved"`)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/admin/dead-letters/"+retried.ID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = ts.do(t, http.MethodPost, "/api/v1/admin/dead-letters/"+discarded.ID+"/discard", map[string]string{"reason": "stale status"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), `"failure_reason":"stale status"`)

	_, resp = ts.do(t, http.MethodGet, "/api/v1/admin/dead-letters?status=pending", nil)
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 0, page.TotalCount)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/admin/dead-letters/dlq-missing/retry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/admin/dead-letters?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
