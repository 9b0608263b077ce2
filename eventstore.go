package eventsourcing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// EventStore is the append-only log with versioning invariants and snapshot
// storage. It owns all write invariants and delegates
// durability to a Backend.
type EventStore struct {
	backend  Backend
	registry *aggregateRegistry
	bus      EventBus
	logger   *slog.Logger
}

// EventStoreOption configures a new EventStore.
type EventStoreOption func(*EventStore)

// WithEventBus attaches an EventBus that receives a best-effort fan-out of
// every successfully appended event via Subscribe.
func WithEventBus(bus EventBus) EventStoreOption {
	return func(s *EventStore) { s.bus = bus }
}

// WithLogger overrides the store's diagnostic logger. The default is
// slog.Default().
func WithLogger(logger *slog.Logger) EventStoreOption {
	return func(s *EventStore) { s.logger = logger }
}

// NewEventStore builds an EventStore backed by backend.
func NewEventStore(backend Backend, opts ...EventStoreOption) *EventStore {
	s := &EventStore{
		backend:  backend,
		registry: newAggregateRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAggregateFactory tells the store how to materialize an aggregate
// of aggregateType during Reconstruct. If none is registered, Reconstruct
// falls back to DefaultAggregate.
func (s *EventStore) RegisterAggregateFactory(aggregateType string, factory AggregateFactory) error {
	return s.registry.Register(aggregateType, factory)
}

// Append persists events in a single transaction and assigns each a global
// Position, mutating the input slice in place. All events must share
// AggregateID/AggregateType and have contiguous ascending Version; the
// first event's Version must equal the aggregate's current max version + 1,
// checked transactionally by the Backend. On success, it
// returns the assigned positions in submission order.
func (s *EventStore) Append(ctx context.Context, events []Event) ([]int64, error) {
	ctx, span := StartSpan(ctx, "eventsourcing.EventStore.Append")
	defer func() { EndSpan(span, nil) }()

	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}

	aggregateID := events[0].AggregateID
	aggregateType := events[0].AggregateType
	for i, e := range events {
		if e.AggregateID != aggregateID {
			return nil, ErrMixedAggregate
		}
		if i > 0 && e.Version != events[i-1].Version+1 {
			return nil, ErrNonContiguousVersions
		}
	}
	span.SetAttributes(AttrAggregateType.String(aggregateType))

	saved, err := s.backend.AppendEvents(ctx, events)
	if err != nil {
		var conflict *VersionConflict
		if isVersionConflict(err, &conflict) {
			if ConcurrencyConflicts != nil {
				ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(AttrAggregateType.String(aggregateType)))
			}
			return nil, conflict
		}
		return nil, &StoreUnavailable{Op: "Append", Err: err}
	}

	positions := make([]int64, len(saved))
	for i, e := range saved {
		events[i] = e
		positions[i] = e.Position
	}

	if EventsAppended != nil {
		EventsAppended.Add(ctx, int64(len(saved)), metric.WithAttributes(AttrAggregateType.String(aggregateType)))
	}
	if StreamVersions != nil && len(saved) > 0 {
		StreamVersions.Record(ctx, int64(saved[len(saved)-1].Version), metric.WithAttributes(AttrAggregateType.String(aggregateType)))
	}
	s.logger.DebugContext(ctx, "appended events", "aggregate_id", aggregateID, "aggregate_type", aggregateType, "count", len(saved))

	if s.bus != nil {
		for _, e := range saved {
			s.bus.Publish(ctx, e)
		}
	}

	return positions, nil
}

// isVersionConflict unwraps err looking for a *VersionConflict.
func isVersionConflict(err error, target **VersionConflict) bool {
	for err != nil {
		if vc, ok := err.(*VersionConflict); ok {
			*target = vc
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Load returns events for aggregateID with Version > fromVersion, ordered
// ascending.
func (s *EventStore) Load(ctx context.Context, aggregateID string, fromVersion uint64) ([]Event, error) {
	ctx, span := StartSpan(ctx, "eventsourcing.EventStore.Load")
	events, err := s.backend.EventsForAggregate(ctx, aggregateID, fromVersion)
	EndSpan(span, err)
	if err != nil {
		return nil, &StoreUnavailable{Op: "Load", Err: err}
	}
	if EventsLoaded != nil {
		EventsLoaded.Add(ctx, int64(len(events)))
	}
	return events, nil
}

// LoadAll returns events whose AggregateType matches, with Position >
// afterPosition, ordered ascending.
func (s *EventStore) LoadAll(ctx context.Context, aggregateType string, afterPosition int64) ([]Event, error) {
	ctx, span := StartSpan(ctx, "eventsourcing.EventStore.LoadAll", AttrAggregateType.String(aggregateType))
	events, err := s.backend.EventsForAggregateType(ctx, aggregateType, afterPosition)
	EndSpan(span, err)
	if err != nil {
		return nil, &StoreUnavailable{Op: "LoadAll", Err: err}
	}
	return events, nil
}

// LoadAllEvents returns every event with Position > afterPosition, ordered
// ascending.
func (s *EventStore) LoadAllEvents(ctx context.Context, afterPosition int64) ([]Event, error) {
	ctx, span := StartSpan(ctx, "eventsourcing.EventStore.LoadAllEvents")
	events, err := s.backend.AllEvents(ctx, afterPosition)
	EndSpan(span, err)
	if err != nil {
		return nil, &StoreUnavailable{Op: "LoadAllEvents", Err: err}
	}
	return events, nil
}

// GetPosition returns the largest Position assigned so far, or 0 if empty.
func (s *EventStore) GetPosition(ctx context.Context) (int64, error) {
	pos, err := s.backend.MaxPosition(ctx)
	if err != nil {
		return 0, &StoreUnavailable{Op: "GetPosition", Err: err}
	}
	return pos, nil
}

// CreateSnapshot reconstructs aggregateID in memory and, if it has at least
// one event, persists a snapshot collapsing it up to its current version.
// Returns nil, nil if the aggregate has no events.
func (s *EventStore) CreateSnapshot(ctx context.Context, aggregateID, aggregateType string) (*Snapshot, error) {
	ctx, span := StartSpan(ctx, "eventsourcing.EventStore.CreateSnapshot", AttrAggregateType.String(aggregateType))
	defer func() { EndSpan(span, nil) }()

	agg, err := s.Reconstruct(ctx, aggregateID, aggregateType)
	if err != nil {
		return nil, err
	}
	if agg.Version() == 0 {
		return nil, nil
	}

	snap := Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       agg.Version(),
		State:         agg.State().Clone(),
		CreatedAt:     nowUTC(),
	}
	if err := s.backend.SaveSnapshot(ctx, snap); err != nil {
		return nil, &StoreUnavailable{Op: "CreateSnapshot", Err: err}
	}
	if SnapshotsCreated != nil {
		SnapshotsCreated.Add(ctx, 1, metric.WithAttributes(AttrAggregateType.String(aggregateType)))
	}
	return &snap, nil
}

// LoadSnapshot returns the highest-Version snapshot for aggregateID, or nil
// if none exists.
func (s *EventStore) LoadSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	snap, err := s.backend.LatestSnapshot(ctx, aggregateID)
	if err != nil {
		return nil, &StoreUnavailable{Op: "LoadSnapshot", Err: err}
	}
	return snap, nil
}

// Reconstruct rebuilds an aggregate by loading its latest snapshot (if any)
// and replaying events after it. An id with neither a snapshot nor any
// events yields a freshly constructed, version-0 aggregate rather than an
// error, so callers can reconstruct-then-raise the first events for a new
// aggregate without special-casing creation.
func (s *EventStore) Reconstruct(ctx context.Context, aggregateID, aggregateType string) (Aggregate, error) {
	ctx, span := StartSpan(ctx, "eventsourcing.EventStore.Reconstruct", AttrAggregateType.String(aggregateType))
	defer func() { EndSpan(span, nil) }()

	snap, err := s.LoadSnapshot(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	agg := s.registry.New(aggregateType, aggregateID)
	fromVersion := uint64(0)
	if snap != nil {
		var seeded bool
		agg, seeded = seedFromSnapshot(agg, *snap)
		if seeded {
			fromVersion = snap.Version
		}
	}

	events, err := s.Load(ctx, aggregateID, fromVersion)
	if err != nil {
		return nil, err
	}

	for _, e := range events {
		agg.Apply(e)
	}
	return agg, nil
}

// seedFromSnapshot copies a snapshot's state/version into a freshly
// constructed aggregate and reports whether it did. DefaultAggregate is
// seeded directly; a domain-typed aggregate must implement SnapshotSeedable
// to participate, and one that does not is rebuilt from its full history.
func seedFromSnapshot(agg Aggregate, snap Snapshot) (Aggregate, bool) {
	if def, ok := agg.(*DefaultAggregate); ok {
		def.state = snap.State.Clone()
		def.version = snap.Version
		return def, true
	}
	if seedable, ok := agg.(SnapshotSeedable); ok {
		seedable.SeedFromSnapshot(snap)
		return agg, true
	}
	return agg, false
}

// SnapshotSeedable lets a domain-typed Aggregate opt into snapshot-based
// reconstruction by restoring its internal state/version from a Snapshot.
type SnapshotSeedable interface {
	SeedFromSnapshot(snap Snapshot)
}

// Subscribe registers handler on the store's EventBus (if one was
// configured via WithEventBus) to receive a best-effort copy of every
// appended event. Returns an error if no bus is configured.
func (s *EventStore) Subscribe(ctx context.Context, name string, handler EventHandler) error {
	if s.bus == nil {
		return fmt.Errorf("eventsourcing: Subscribe requires an EventStore configured with WithEventBus")
	}
	return s.bus.Subscribe(ctx, name, handler)
}

// Close releases the backend's resources and, if configured, the event bus.
func (s *EventStore) Close() error {
	var busErr error
	if s.bus != nil {
		busErr = s.bus.Close()
	}
	if err := s.backend.Close(); err != nil {
		return err
	}
	return busErr
}
