package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/vendor-order-desk/internal/metrics"
	"github.com/vaidashi/vendor-order-desk/internal/models"
	"github.com/vaidashi/vendor-order-desk/pkg/logger"
	"github.com/vaidashi/vendor-order-desk/pkg/retry"
)

// MessageHandler handles one relayed event
type MessageHandler interface {
	HandleMessage(ctx context.Context, event models.Event) error
}

// MessageHandlerFunc adapts a function to MessageHandler
type MessageHandlerFunc func(ctx context.Context, event models.Event) error

// HandleMessage calls f
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, event models.Event) error {
	return f(ctx, event)
}

type registration struct {
	name    string
	handler MessageHandler
	types   map[models.EventType]struct{}
}

func (r registration) accepts(t models.EventType) bool {
	if len(r.types) == 0 {
		return true
	}
	_, ok := r.types[t]
	return ok
}

// Relay reads events from the hub and hands them to registered handlers,
// retrying failed deliveries
type Relay struct {
	hub      *Hub
	handlers []registration

	bufferSize     int
	maxAttempts    int
	backoff        retry.BackoffStrategy
	handlerTimeout time.Duration
	deadLetters    *DeadLetterQueue

	metrics *metrics.Metrics
	logger  logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// RelayConfig holds the configuration for the Relay. DeadLetters is optional
// and receives deliveries that failed every attempt.
type RelayConfig struct {
	BufferSize     int
	MaxAttempts    int
	Backoff        retry.BackoffStrategy
	HandlerTimeout time.Duration
	DeadLetters    *DeadLetterQueue
}

// NewRelay creates a new Relay
func NewRelay(hub *Hub, config RelayConfig, m *metrics.Metrics, logger logger.Logger) *Relay {
	ctx, cancel := context.WithCancel(context.Background())

	if config.BufferSize < 1 {
		config.BufferSize = 256
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 3
	}
	if config.Backoff == nil {
		config.Backoff = retry.NewDefaultExponentialBackoff()
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 5 * time.Second
	}

	return &Relay{
		hub:            hub,
		bufferSize:     config.BufferSize,
		maxAttempts:    config.MaxAttempts,
		backoff:        config.Backoff,
		handlerTimeout: config.HandlerTimeout,
		deadLetters:    config.DeadLetters,
		metrics:        m,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// RegisterHandler registers a handler for the given event types, or for all
// of them when none are named. Register before Start.
func (r *Relay) RegisterHandler(name string, handler MessageHandler, eventTypes ...models.EventType) {
	reg := registration{name: name, handler: handler, types: make(map[models.EventType]struct{})}
	for _, t := range eventTypes {
		reg.types[t] = struct{}{}
	}
	r.handlers = append(r.handlers, reg)
}

// Start starts relaying events
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	events, unsubscribe := r.hub.Subscribe(r.bufferSize)
	r.running = true
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer unsubscribe()

		for {
			select {
			case <-r.ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				r.dispatch(e)
			}
		}
	}()

	r.logger.Info("Event relay started", "handlers", len(r.handlers), "bufferSize", r.bufferSize)
}

// Stop stops the relay
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cancel()
	r.wg.Wait()
	r.running = false

	r.logger.Info("Event relay stopped")
}

func (r *Relay) dispatch(e models.Event) {
	for _, reg := range r.handlers {
		if !reg.accepts(e.EventType) {
			continue
		}
		r.deliver(reg, e)
	}
}

// deliver runs one handler with retries. A failure is logged and counted; it
// never blocks later events.
func (r *Relay) deliver(reg registration, e models.Event) {
	err := r.attempt(r.ctx, reg, e)

	if err != nil {
		r.metrics.EventsRelayed.WithLabelValues(reg.name, "failed").Inc()
		r.logger.Error("Failed to relay event",
			"error", err,
			"handler", reg.name,
			"eventID", e.EventID,
			"aggregateID", e.AggregateID,
			"eventType", e.EventType)

		if r.deadLetters != nil {
			letter := r.deadLetters.Add(reg.name, e, err)
			r.logger.Warn("Event moved to dead letter queue",
				"deadLetterID", letter.ID,
				"handler", reg.name,
				"pending", r.deadLetters.PendingCount())
		}
		return
	}

	r.metrics.EventsRelayed.WithLabelValues(reg.name, "delivered").Inc()
}

func (r *Relay) attempt(ctx context.Context, reg registration, e models.Event) error {
	return retry.Retry(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.handlerTimeout)
		defer cancel()
		return reg.handler.HandleMessage(ctx, e)
	}, &retry.RetryConfig{
		MaxAttempts:     r.maxAttempts,
		BackoffStrategy: r.backoff,
		Logger:          r.logger,
	})
}

// DeadLetters returns the queue of failed deliveries, nil when none is kept
func (r *Relay) DeadLetters() *DeadLetterQueue {
	return r.deadLetters
}

// Redeliver hands a pending dead letter to its handler again. The letter is
// resolved on success and stays pending with the new error otherwise.
func (r *Relay) Redeliver(ctx context.Context, id string) (DeadLetter, error) {
	if r.deadLetters == nil {
		return DeadLetter{}, notFound(id)
	}

	letter, err := r.deadLetters.Get(id)
	if err != nil {
		return DeadLetter{}, err
	}
	if letter.Status != DeadLetterStatusPending {
		return letter, notPending(letter)
	}

	reg, ok := r.registration(letter.Handler)
	if !ok {
		return letter, fmt.Errorf("handler %q is no longer registered", letter.Handler)
	}

	deliveryErr := r.attempt(ctx, reg, letter.Event)
	updated, err := r.deadLetters.recordRetry(id, deliveryErr)
	if err != nil {
		return updated, err
	}

	if deliveryErr != nil {
		r.metrics.EventsRelayed.WithLabelValues(reg.name, "failed").Inc()
		r.logger.Error("Dead letter redelivery failed", "error", deliveryErr, "deadLetterID", id, "handler", reg.name)
		return updated, nil
	}

	r.metrics.EventsRelayed.WithLabelValues(reg.name, "redelivered").Inc()
	r.logger.Info("Dead letter redelivered", "deadLetterID", id, "handler", reg.name)
	return updated, nil
}

func (r *Relay) registration(name string) (registration, bool) {
	for _, reg := range r.handlers {
		if reg.name == name {
			return reg, true
		}
	}
	return registration{}, false
}
