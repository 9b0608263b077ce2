package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	aggregateIDKey   ctxKey = "aggregate_id"
	eventIDKey       ctxKey = "event_id"
	versionKey       ctxKey = "version"
	globalVersionKey ctxKey = "global_version"
	occurredAtKey    ctxKey = "occurred_at"
	metadataKey      ctxKey = "metadata"
	causationKey     ctxKey = "caused_by"
)

// WithEvent returns a context carrying event's identifying fields, for
// handlers and logging middleware that want them without threading the
// whole Event through every call.
func WithEvent(ctx context.Context, event Event) context.Context {
	ctx = context.WithValue(ctx, aggregateIDKey, event.AggregateID)
	ctx = context.WithValue(ctx, eventIDKey, event.ID)
	ctx = context.WithValue(ctx, versionKey, event.Version)
	ctx = context.WithValue(ctx, globalVersionKey, event.Position)
	ctx = context.WithValue(ctx, occurredAtKey, event.Timestamp)
	ctx = context.WithValue(ctx, metadataKey, event.Metadata)
	ctx = context.WithValue(ctx, causationKey, event.CausedBy)
	return ctx
}

// AggregateIDFromContext returns the AggregateID set by WithEvent, or "".
func AggregateIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(aggregateIDKey).(string); ok {
		return v
	}
	return ""
}

// EventIDFromContext returns the EventID set by WithEvent, or uuid.Nil.
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// VersionFromContext returns the per-aggregate Version set by WithEvent, or 0.
func VersionFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(versionKey).(uint64); ok {
		return v
	}
	return 0
}

// GlobalVersionFromContext returns the global Position set by WithEvent, or 0.
func GlobalVersionFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(globalVersionKey).(int64); ok {
		return v
	}
	return 0
}

// OccurredAtFromContext returns the event timestamp set by WithEvent, or the
// zero time.
func OccurredAtFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(occurredAtKey).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// MetadataFromContext returns the event metadata set by WithEvent, or nil.
func MetadataFromContext(ctx context.Context) Values {
	if v, ok := ctx.Value(metadataKey).(Values); ok {
		return v
	}
	return nil
}

// CausationFromContext returns the caused_by identifier set by WithEvent, or "".
func CausationFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(causationKey).(string); ok {
		return v
	}
	return ""
}
