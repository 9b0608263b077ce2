package eventsourcing

import "fmt"

// VersionConflict is returned by EventStore.Append when the submitted events
// do not extend the aggregate's current version by a contiguous ascending
// sequence starting at current version + 1.
type VersionConflict struct {
	AggregateID     string
	ExpectedVersion uint64
	ActualVersion   uint64
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("version conflict on aggregate %q: expected next version %d, got %d",
		e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

// StoreUnavailable wraps an I/O failure from the backing store. Callers may
// retry with backoff.
type StoreUnavailable struct {
	Op  string
	Err error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailable) Unwrap() error {
	return e.Err
}

// SerializationError indicates a payload or state value could not be
// encoded/decoded as JSON. It is fatal for the affected row.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ProjectionHandlerFailure is returned by Advance/RebuildProjection when a
// registered handler panics while processing an event.
// The cursor is not persisted past the failing event.
type ProjectionHandlerFailure struct {
	Projection string
	EventType  string
	Position   int64
	Err        error
}

func (e *ProjectionHandlerFailure) Error() string {
	return fmt.Sprintf("projection %q: handler for event %q at position %d failed: %v",
		e.Projection, e.EventType, e.Position, e.Err)
}

func (e *ProjectionHandlerFailure) Unwrap() error {
	return e.Err
}

// ErrProjectionNotRegistered is returned by operations addressing a
// projection name that was never passed to ProjectionManager.Register.
type ErrProjectionNotRegistered struct {
	Name string
}

func (e *ErrProjectionNotRegistered) Error() string {
	return fmt.Sprintf("projection %q is not registered", e.Name)
}

// ErrSkippedEvent is returned by a typed EventHandler when the event it
// receives does not match the type it was built for.
type ErrSkippedEvent struct {
	Event Event
}

func (e *ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %q", e.Event.EventType)
}

// ErrDuplicateHandler is wrapped by NewEventGroupProcessor when two handlers
// are registered for the same event type.
var ErrDuplicateHandler = fmt.Errorf("duplicate handler registration")

// ErrEmptyAppend is returned by Append when called with zero events.
var ErrEmptyAppend = fmt.Errorf("append requires at least one event")

// ErrMixedAggregate is returned by Append when the submitted events do not
// all share the requested aggregate ID.
var ErrMixedAggregate = fmt.Errorf("all events in a single append must share the same aggregate_id")

// ErrNonContiguousVersions is returned by Append when the submitted events'
// versions are not contiguous ascending.
var ErrNonContiguousVersions = fmt.Errorf("event versions within a single append must be contiguous ascending")

// ErrHandlerAlreadyRegistered is returned by RegisterAggregateFactory when a
// duplicate aggregate type is registered.
type ErrHandlerAlreadyRegistered struct {
	Name string
}

func (e *ErrHandlerAlreadyRegistered) Error() string {
	return fmt.Sprintf("%q is already registered", e.Name)
}

// ErrHandlerNotFound is returned by a GenericQueryGateway when no handler is
// registered under its queryType.
var ErrHandlerNotFound = fmt.Errorf("handler not found")
