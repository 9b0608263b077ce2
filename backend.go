package eventsourcing

import "context"

// Backend is the transactional storage contract the EventStore, Projection
// Manager, and Command Bus are built on. It owns exactly the four tables of
// the persisted schema (events, snapshots, projections, command_log) and is
// responsible for enforcing version and position monotonicity
// atomically — storage/sqlite does this inside its own transactions over a
// single connection, storage/memory under one backend-wide mutex. In both,
// reads wait while a write is in progress.
//
// Implementations live in leaf packages (storage/sqlite, storage/memory)
// that import this package; Backend itself stays here, in the package that
// defines the types it speaks in, so that neither side needs to import the
// other.
type Backend interface {
	// AppendEvents persists events in a single transaction, assigning each
	// a globally monotonic Position. ID and Timestamp are stored as given
	// (NewEvent sets both); they are not filled in when unset.
	// All events must share AggregateID and AggregateType and have
	// contiguous ascending Version starting at current_max_version+1;
	// AppendEvents must re-check the current max version itself inside the
	// same transaction and return *VersionConflict if another writer
	// advanced the aggregate concurrently. On success it returns the
	// events with Position set, in the same order they were submitted.
	AppendEvents(ctx context.Context, events []Event) ([]Event, error)

	// EventsForAggregate returns events for aggregateID with Version >
	// fromVersion, ordered by Version ascending.
	EventsForAggregate(ctx context.Context, aggregateID string, fromVersion uint64) ([]Event, error)

	// EventsForAggregateType returns events whose AggregateType matches,
	// with Position > afterPosition, ordered by Position ascending.
	EventsForAggregateType(ctx context.Context, aggregateType string, afterPosition int64) ([]Event, error)

	// AllEvents returns every event with Position > afterPosition, ordered
	// by Position ascending.
	AllEvents(ctx context.Context, afterPosition int64) ([]Event, error)

	// MaxVersion returns the highest Version persisted for aggregateID, or
	// 0 if the aggregate has no events.
	MaxVersion(ctx context.Context, aggregateID string) (uint64, error)

	// MaxPosition returns the highest Position assigned so far, or 0 if
	// the store is empty.
	MaxPosition(ctx context.Context) (int64, error)

	// SaveSnapshot persists a new snapshot row. Multiple snapshots per
	// aggregate may coexist; LatestSnapshot resolves to the highest
	// Version.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// LatestSnapshot returns the highest-Version snapshot for
	// aggregateID, or nil if none exists.
	LatestSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)

	// LoadProjectionCursor returns the persisted (state, position) for a
	// projection name. found is false if no row exists yet.
	LoadProjectionCursor(ctx context.Context, name string) (state Values, position int64, found bool, err error)

	// SaveProjectionCursor atomically persists a projection's state and
	// cursor position, upserting by name.
	SaveProjectionCursor(ctx context.Context, name string, state Values, position int64) error

	// InsertCommandRecord writes a new command_log row.
	InsertCommandRecord(ctx context.Context, rec CommandRecord) error

	// UpdateCommandRecord updates the status/result/error_message columns
	// of an existing command_log row by ID.
	UpdateCommandRecord(ctx context.Context, rec CommandRecord) error

	// Close releases resources held by the backend (file handles,
	// connections). Close is idempotent.
	Close() error
}
