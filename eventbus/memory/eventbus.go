// Package memory provides a bounded, in-process eventsourcing.EventBus. Each
// subscriber gets its own buffered channel and goroutine; Publish never
// blocks on a slow subscriber — a full channel drops the event and
// increments a counter instead.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lattice-run/eventsourcing"
)

const defaultBufferSize = 256

type subscriber struct {
	name    string
	handler eventsourcing.EventHandler
	ch      chan eventsourcing.Event
	done    chan struct{}
}

// Bus is a bounded, drop-on-full eventsourcing.EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	bufferSize  int
	logger      *slog.Logger
	closed      bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize overrides the per-subscriber channel buffer (default 256).
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger overrides the Bus's diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New constructs an empty Bus. Call Subscribe to attach listeners before
// wiring it into an eventsourcing.EventStore via WithEventBus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		bufferSize:  defaultBufferSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements eventsourcing.EventBus. It never blocks: a subscriber
// whose channel is full has the event dropped and a metric incremented.
func (b *Bus) Publish(ctx context.Context, event eventsourcing.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
			if eventsourcing.IsInitialized() {
				eventsourcing.EventBusPublished.Add(ctx, 1)
			}
		default:
			b.logger.Warn("eventbus: dropped event, subscriber buffer full",
				"subscriber", sub.name, "event_type", event.EventType, "aggregate_id", event.AggregateID)
			if eventsourcing.IsInitialized() {
				eventsourcing.EventBusDropped.Add(ctx, 1)
			}
		}
	}
}

// Subscribe implements eventsourcing.EventBus. Subscribing the same name
// twice stops and replaces the previous subscription.
func (b *Bus) Subscribe(ctx context.Context, name string, handler eventsourcing.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return eventsourcing.ErrHandlerNotFound
	}

	_, replaced := b.subscribers[name]
	if replaced {
		close(b.subscribers[name].done)
	}

	sub := &subscriber{
		name:    name,
		handler: handler,
		ch:      make(chan eventsourcing.Event, b.bufferSize),
		done:    make(chan struct{}),
	}
	b.subscribers[name] = sub
	if !replaced {
		b.updateSubscriberGauge(ctx, 1)
	}

	go sub.run(b.logger)
	return nil
}

// Unsubscribe implements eventsourcing.EventBus.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[name]
	if !ok {
		return
	}
	close(sub.done)
	delete(b.subscribers, name)
	b.updateSubscriberGauge(context.Background(), -1)
}

// Close implements eventsourcing.EventBus. It stops every subscriber
// goroutine and is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.done)
	}
	if n := len(b.subscribers); n > 0 {
		b.updateSubscriberGauge(context.Background(), -int64(n))
	}
	b.subscribers = make(map[string]*subscriber)
	return nil
}

// updateSubscriberGauge adjusts EventBusSubscribers by delta, keeping the
// gauge in step with the live subscriber count instead of re-reporting an
// absolute value.
func (b *Bus) updateSubscriberGauge(ctx context.Context, delta int64) {
	if eventsourcing.IsInitialized() {
		eventsourcing.EventBusSubscribers.Add(ctx, delta)
	}
}

func (s *subscriber) run(logger *slog.Logger) {
	for {
		select {
		case event := <-s.ch:
			ctx := eventsourcing.WithEvent(context.Background(), event)
			if err := s.handler.Handle(ctx, event); err != nil {
				if _, skipped := err.(*eventsourcing.ErrSkippedEvent); !skipped {
					logger.Error("eventbus: subscriber handler error",
						"subscriber", s.name, "event_type", event.EventType, "error", err)
				}
			}
		case <-s.done:
			return
		}
	}
}
