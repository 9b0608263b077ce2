package eventsourcing

import "context"

// EventBus is an optional, best-effort fan-out of just-appended events to
// in-process listeners, wired up via EventStore.Subscribe. It is diagnostic
// infrastructure, not how projections advance: projections read the
// persisted log themselves (see ProjectionManager), so a slow or absent
// subscriber can never affect append latency or projection correctness.
// Implementations (e.g. eventbus/memory) must never block Publish on a
// slow subscriber — drop-and-count is the expected policy.
type EventBus interface {
	// Publish fans event out to every current subscriber. It must not
	// block the caller waiting on a slow or stuck subscriber.
	Publish(ctx context.Context, event Event)

	// Subscribe registers handler under name. Subscribing the same name
	// twice replaces the previous handler.
	Subscribe(ctx context.Context, name string, handler EventHandler) error

	// Unsubscribe removes a previously registered handler. It is a no-op
	// if name was never subscribed.
	Unsubscribe(name string)

	// Close stops delivery and releases resources. Close is idempotent.
	Close() error
}
