package eventsourcing

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable record of a past domain fact. Events are created
// once (via RaiseEvent or NewEvent) and never mutated; equality is
// by ID. Position is assigned by the EventStore on append and is zero for an
// event that has not yet been persisted.
type Event struct {
	ID            uuid.UUID
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       Values
	Version       uint64
	Timestamp     time.Time
	CausedBy      string
	Metadata      Values
	Position      int64
}

// now is overridable in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }

// nowUTC returns the current UTC time through the package's overridable clock.
func nowUTC() time.Time { return now() }

// NewEvent constructs an Event with a fresh ID and the current UTC
// timestamp. The caller supplies the version; the store assigns Position on
// append.
func NewEvent(aggregateID, aggregateType, eventType string, payload Values, version uint64, causedBy string) Event {
	return Event{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		Version:       version,
		Timestamp:     now(),
		CausedBy:      causedBy,
		Metadata:      Values{},
	}
}

// TypeName returns a stable type-name string for a Go value. It labels query
// spans with the query and result type names; registries are keyed by
// explicit strings, not by TypeName.
func TypeName(v any) string {
	type named interface{ EventType() string }
	if n, ok := v.(named); ok {
		return n.EventType()
	}
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
