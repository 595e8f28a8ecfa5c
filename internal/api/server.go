package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaidashi/vendor-order-desk/internal/alert"
	"github.com/vaidashi/vendor-order-desk/internal/config"
	"github.com/vaidashi/vendor-order-desk/internal/datasource"
	"github.com/vaidashi/vendor-order-desk/internal/events"
	"github.com/vaidashi/vendor-order-desk/internal/ingest"
	"github.com/vaidashi/vendor-order-desk/internal/lifecycle"
	"github.com/vaidashi/vendor-order-desk/internal/metrics"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/internal/monitor"
	"github.com/vaidashi/vendor-order-desk/internal/notification"
	"github.com/vaidashi/vendor-order-desk/internal/service"
	"github.com/vaidashi/vendor-order-desk/internal/store"
	"github.com/vaidashi/vendor-order-desk/internal/timing"
	"github.com/vaidashi/vendor-order-desk/pkg/circuitbreaker"
	"github.com/vaidashi/vendor-order-desk/pkg/clock"
	"github.com/vaidashi/vendor-order-desk/pkg/kafka"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
	"github.com/vaidashi/vendor-order-desk/pkg/middleware"
	"github.com/vaidashi/vendor-order-desk/pkg/retry"
)

type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server

	clock        clock.Clock
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	store        *store.Store
	engine       *timing.Engine
	orderService *service.OrderService
	inbox        *notification.Inbox
	hub          *events.Hub
	relay        *events.Relay
	monitor      *monitor.BreachMonitor
	poller       *ingest.Poller
	breaker      *circuitbreaker.CircuitBreaker
	desktop      *alert.DesktopChannel

	rateLimiter         *middleware.RateLimiterMiddleware
	endpointRateLimiter *middleware.EndpointRateLimiterMiddleware

	kafkaProducer *kafka.Producer
	kafkaConsumer *kafka.Consumer

	// streams is cancelled on shutdown so open SSE responses end
	streams      context.Context
	closeStreams context.CancelFunc
}

// components are the collaborators NewServer builds from the configuration.
// Tests substitute their own.
type components struct {
	clock    clock.Clock
	api      datasource.OrderAPI
	player   alert.Player
	notifier alert.Notifier
	producer *kafka.Producer
	consumer *kafka.Consumer
}

// NewServer creates a new API server with the given configuration and logger.
// Background processors are started before it returns.
func NewServer(cfg *config.Config, logger logger.Logger) (*Server, error) {
	clk := clock.New()

	mockAPI := datasource.NewMockAPI(datasource.MockConfig{
		MinLatency:       cfg.DataSource.MinLatency,
		MaxLatency:       cfg.DataSource.MaxLatency,
		FailureRate:      cfg.DataSource.FailureRate,
		NewOrderInterval: cfg.DataSource.NewOrderInterval,
	}, clk, logger.Named("datasource"))

	deps := components{
		clock:    clk,
		api:      mockAPI,
		player:   alert.NewBeepPlayer(),
		notifier: alert.NewBeeepNotifier(clk, cfg.Alerts.CollapseWindow),
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
		}
		deps.producer = producer

		consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, logger)
		if err != nil {
			_ = producer.Close()
			return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
		}
		deps.consumer = consumer
	}

	server := newServer(cfg, logger, deps)

	ctx, cancel := context.WithTimeout(context.Background(), server.requestBudget())
	server.bootstrap(ctx)
	cancel()

	server.startBackground()

	return server, nil
}

func newServer(cfg *config.Config, logger logger.Logger, deps components) *Server {
	r := mux.NewRouter()
	clk := deps.clock

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	orderStore := store.New(clk, m, logger.Named("store"))
	engine := timing.NewEngine(cfg.SLA.DefaultMinutes)
	hub := events.NewHub(logger.Named("events"))

	inbox := notification.NewInbox(cfg.Alerts.InboxCapacity, clk)
	inbox.Set(datasource.SeedNotifications(clk.Now()))

	// Alert channels, in delivery order
	formatter := alert.NewMoneyFormatter(cfg.Alerts.CurrencySymbol)
	sound := alert.NewSoundChannel(deps.player, cfg.Alerts.SoundEnabled)
	toast := alert.NewToastChannel(inbox, hub, formatter)
	desktop := alert.NewDesktopChannel(deps.notifier, formatter, logger.Named("desktop"))
	dispatcher := alert.NewDispatcher(cfg.Alerts.ChannelTimeout, m, logger.Named("alerts"), sound, toast, desktop)

	breachMonitor := monitor.NewBreachMonitor(monitor.Config{
		Source:     orderStore,
		Engine:     engine,
		Dispatcher: dispatcher,
		Publisher:  hub,
		Clock:      clk,
		Interval:   cfg.SLA.ScanInterval,
		Metrics:    m,
	}, logger.Named("monitor"))
	orderStore.OnTerminal(breachMonitor.Forget)

	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		FailureThreshold: cfg.DataSource.BreakerThreshold,
		ResetTimeout:     cfg.DataSource.BreakerReset,
		HalfOpenMaxCalls: 1,
		Clock:            clk,
	})
	orderAPI := datasource.NewResilientAPI(deps.api, breaker, datasource.ResilientConfig{
		RequestTimeout: cfg.DataSource.RequestTimeout,
		MaxAttempts:    cfg.DataSource.MaxAttempts,
		Backoff:        retry.NewDefaultExponentialBackoff(),
	}, logger.Named("orderapi"))

	server := &Server{
		router: r,
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			Handler:     r,
			ReadTimeout: 15 * time.Second,
			// Streams clear their own write deadline.
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:   logger,
		config:   cfg,
		clock:    clk,
		registry: registry,
		metrics:  m,
		store:    orderStore,
		engine:   engine,
		inbox:    inbox,
		hub:      hub,
		monitor:  breachMonitor,
		breaker:  breaker,
		desktop:  desktop,
	}

	server.orderService = service.NewOrderService(orderStore, orderAPI, hub, clk, server.requestBudget(), logger.Named("orders"))

	announcer := ingest.NewAnnouncer(dispatcher, hub, clk, m, logger.Named("ingest"))
	server.poller = ingest.NewPoller(orderAPI, orderStore, announcer, clk, ingest.PollerConfig{
		Interval: cfg.DataSource.PollInterval,
		Timeout:  server.requestBudget(),
	}, logger.Named("poller"))

	server.relay = events.NewRelay(hub, events.RelayConfig{
		BufferSize:     256,
		MaxAttempts:    3,
		HandlerTimeout: 5 * time.Second,
		DeadLetters:    events.NewDeadLetterQueue(500, clk),
	}, m, logger.Named("relay"))
	server.relay.RegisterHandler("logging", events.NewLoggingHandler(logger.Named("relay")))

	if deps.producer != nil {
		server.kafkaProducer = deps.producer
		// Notifications stay local; order events go to the stream.
		server.relay.RegisterHandler("kafka", events.NewKafkaHandler(deps.producer, cfg.Kafka.EventsTopic, logger),
			models.EventOrderCreated,
			models.EventOrderStatusChanged,
			models.EventOrderNewPending,
			models.EventOrderSLABreached,
		)
	}

	if deps.consumer != nil {
		server.kafkaConsumer = deps.consumer
		server.kafkaConsumer.RegisterHandler(cfg.Kafka.OrdersTopic, ingest.NewOrderEventsHandler(orderStore, announcer, logger.Named("ingest")))
	}

	server.rateLimiter = middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
		GlobalMaxTokens:   cfg.RateLimit.GlobalMaxTokens,
		GlobalRefillRate:  cfg.RateLimit.GlobalRefillRate,
		IPMaxTokens:       cfg.RateLimit.IPMaxTokens,
		IPRefillRate:      cfg.RateLimit.IPRefillRate,
		IPIdleTTL:         cfg.RateLimit.IPIdleTTL,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		Clock:             clk,
	}, logger)
	server.endpointRateLimiter = middleware.NewEndpointRateLimiterMiddleware(20, 10, clk, logger)

	server.streams, server.closeStreams = context.WithCancel(context.Background())
	server.httpServer.RegisterOnShutdown(server.closeStreams)

	server.setupRoutes()

	return server
}

// requestBudget bounds one backend call including its retries
func (s *Server) requestBudget() time.Duration {
	attempts := s.config.DataSource.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts+1) * s.config.DataSource.RequestTimeout
}

// bootstrap loads the initial orders and resolves the desktop permission
func (s *Server) bootstrap(ctx context.Context) {
	permission := s.desktop.RequestPermission(ctx, alert.StaticPermission(s.config.Alerts.DesktopPermission))
	s.logger.Info("Desktop notification permission resolved", "permission", permission)

	if err := s.orderService.LoadOrders(ctx); err != nil {
		// The poller's first sync becomes the baseline instead.
		s.logger.Warn("Initial order load failed", "error", err)
		return
	}
	s.poller.MarkBaselined()
}

func (s *Server) startBackground() {
	s.relay.Start()
	s.monitor.Start()
	s.poller.Start()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Start(); err != nil {
			s.logger.Error("Failed to start Kafka consumer", "error", err)
			// Non-fatal error, continue without the consumer
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeStreams()

	// Stop the producers of events before the relay drains them
	s.poller.Stop()
	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Stop(); err != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}
	s.monitor.Stop()
	s.relay.Stop()

	if s.kafkaProducer != nil {
		if err := s.kafkaProducer.Close(); err != nil {
			s.logger.Error("Error closing Kafka producer", "error", err)
		}
	}

	s.rateLimiter.Stop()

	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	// Add middleware for all routes
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimiter.Middleware)

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint
	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	// Order collection; fixed paths go before /orders/{id}
	api.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/stats", s.getOrderStatsHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/selected", s.getSelectedOrderHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/selected", s.clearSelectionHandler).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/select", s.selectOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/refresh", s.refreshOrderHandler).Methods(http.MethodPost)

	// Timing
	api.HandleFunc("/orders/{id}/timer", s.getOrderTimerHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/timer/stream", s.streamOrderTimerHandler).Methods(http.MethodGet)

	// Lifecycle actions, each limited per route
	for _, action := range []string{"accept", "reject", "start-preparation", "ready", "hand-off", "complete"} {
		op, _ := lifecycle.ParseOperation(action)
		api.Handle("/orders/{id}/"+action, s.endpointRateLimiter.Middleware(s.transitionHandler(op))).Methods(http.MethodPost)
	}

	// Filter
	api.HandleFunc("/filter", s.getFilterHandler).Methods(http.MethodGet)
	api.HandleFunc("/filter", s.setFilterHandler).Methods(http.MethodPut)

	// Live events
	api.HandleFunc("/events", s.streamEventsHandler).Methods(http.MethodGet)

	// Notifications
	api.HandleFunc("/notifications", s.getNotificationsHandler).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", s.markAllNotificationsReadHandler).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/read", s.markNotificationReadHandler).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}", s.deleteNotificationHandler).Methods(http.MethodDelete)

	// Admin API for monitoring and management
	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
	admin.HandleFunc("/alerts", s.getAlertsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/sync", s.syncOrdersHandler).Methods(http.MethodPost)
	admin.HandleFunc("/rate-limits", s.getRateLimitsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/rate-limits", s.setEndpointRateLimitHandler).Methods(http.MethodPut)

	// Dead letter management
	admin.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/dead-letters/{id}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters/{id}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Call the next handler
		next.ServeHTTP(w, r)

		// Log after request is processed
		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
