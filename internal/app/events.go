/**
 * @description
 * The event bus is the single publish point of the core. Ledger, charge request and
 * pay menu code emit domain events into a bounded queue and never wait on delivery.
 * A dispatcher goroutine hands each event to in-process subscribers and to external
 * sinks such as the RabbitMQ producer.
 */
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/economy-service/internal/domain"
)

// EventEmitter is what core components publish through.
type EventEmitter interface {
	Emit(event domain.Event)
}

// EventSink delivers events outside the process.
type EventSink interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// EventBus is a bounded, non-blocking event queue.
type EventBus struct {
	queue  chan domain.Event
	logger *slog.Logger

	mu          sync.RWMutex
	closed      bool
	subscribers []func(domain.Event)
	sinks       []EventSink

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewEventBus creates a bus whose queue holds up to buffer undelivered events.
func NewEventBus(buffer int, logger *slog.Logger) *EventBus {
	if buffer <= 0 {
		buffer = 1
	}
	return &EventBus{
		queue:  make(chan domain.Event, buffer),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Subscribe registers an in-process handler. Handlers run on the dispatcher
// goroutine and must not block for long.
func (b *EventBus) Subscribe(fn func(domain.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// AddSink registers an external delivery target.
func (b *EventBus) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Emit enqueues the event. When the queue is full or the bus is closed the event is
// dropped with a warning; callers are never blocked.
func (b *EventBus) Emit(event domain.Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		eventsDroppedTotal.Inc()
		b.logger.Warn("event dropped; bus closed", "event_type", event.Type, "event_id", event.ID)
		return
	}
	select {
	case b.queue <- event:
	default:
		eventsDroppedTotal.Inc()
		b.logger.Warn("event dropped; queue full", "event_type", event.Type, "event_id", event.ID)
	}
}

// Start launches the dispatcher. Calling it again is a no-op.
func (b *EventBus) Start() {
	b.startOnce.Do(func() {
		go b.run()
	})
}

func (b *EventBus) run() {
	defer close(b.done)
	for event := range b.queue {
		b.dispatch(event)
	}
}

func (b *EventBus) dispatch(event domain.Event) {
	b.mu.RLock()
	subscribers := append([]func(domain.Event){}, b.subscribers...)
	sinks := append([]EventSink{}, b.sinks...)
	b.mu.RUnlock()

	for _, fn := range subscribers {
		b.safeCall(event, fn)
	}
	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sink.PublishEvent(ctx, event); err != nil {
			b.logger.Warn("event sink publish failed", "event_type", event.Type, "event_id", event.ID, "error", err)
		}
		cancel()
	}
}

func (b *EventBus) safeCall(event domain.Event, fn func(domain.Event)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "event_type", event.Type, "panic", r)
		}
	}()
	fn(event)
}

// Close stops accepting events and waits for queued ones to be delivered, or for
// ctx to expire. Events still queued when ctx expires are abandoned with a warning.
func (b *EventBus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
		// Drain even if Start was never called.
		b.Start()
	})

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus close timed out; undelivered events abandoned", "pending", len(b.queue))
		return ctx.Err()
	}
}

// discardEmitter is used when a component is built without a bus.
type discardEmitter struct{}

func (discardEmitter) Emit(domain.Event) {}
