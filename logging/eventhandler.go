package logging

import (
	"context"
	"log/slog"

	"github.com/lattice-run/eventsourcing"
)

// WithLoggingMiddleware wraps next with structured, leveled log lines
// carrying the event's identifying fields pulled from context (set via
// eventsourcing.WithEvent, as EventStore.Subscribe's delivery path does).
func WithLoggingMiddleware(logger *slog.Logger, next eventsourcing.EventHandler) eventsourcing.EventHandler {
	return eventsourcing.NewEventHandlerFunc(func(ctx context.Context, event eventsourcing.Event) error {
		l := logger.With(
			"event-id", eventsourcing.EventIDFromContext(ctx),
			"aggregate-id", eventsourcing.AggregateIDFromContext(ctx),
			"causation", eventsourcing.CausationFromContext(ctx),
			"version", eventsourcing.VersionFromContext(ctx),
			"position", eventsourcing.GlobalVersionFromContext(ctx),
		)

		l.DebugContext(ctx, "event processing started", "event_type", event.EventType)

		err := next.Handle(ctx, event)
		if err != nil {
			l.ErrorContext(ctx, "error processing event", "error", err)
		} else {
			l.DebugContext(ctx, "event processed successfully")
		}
		return err
	})
}
