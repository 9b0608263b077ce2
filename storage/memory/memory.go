// Package memory provides an in-process, non-durable eventsourcing.Backend,
// used as the ":memory:" fast path and by tests that don't want a SQLite
// file. It is grounded on the same table layout as storage/sqlite, just
// held in Go slices/maps under a single mutex instead of rows in a
// database — the single-writer-lock option the concurrency model allows
// as an alternative to backend transactions.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lattice-run/eventsourcing"
)

func init() {
	eventsourcing.RegisterBackend("memory", func(dsn string) (eventsourcing.Backend, error) {
		return New(), nil
	})
}

type projectionRow struct {
	state    eventsourcing.Values
	position int64
}

// Backend is an in-memory eventsourcing.Backend implementation.
type Backend struct {
	mu sync.Mutex

	events       []eventsourcing.Event
	maxVersion   map[string]uint64
	snapshots    map[string][]eventsourcing.Snapshot
	projections  map[string]projectionRow
	commandLog   map[string]eventsourcing.CommandRecord
	nextPosition int64
}

// New constructs an empty in-memory Backend.
func New() *Backend {
	return &Backend{
		maxVersion:  make(map[string]uint64),
		snapshots:   make(map[string][]eventsourcing.Snapshot),
		projections: make(map[string]projectionRow),
		commandLog:  make(map[string]eventsourcing.CommandRecord),
	}
}

// AppendEvents implements eventsourcing.Backend.
func (b *Backend) AppendEvents(ctx context.Context, events []eventsourcing.Event) ([]eventsourcing.Event, error) {
	if len(events) == 0 {
		return nil, eventsourcing.ErrEmptyAppend
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	aggregateID := events[0].AggregateID
	current := b.maxVersion[aggregateID]
	if events[0].Version != current+1 {
		return nil, &eventsourcing.VersionConflict{
			AggregateID:     aggregateID,
			ExpectedVersion: current + 1,
			ActualVersion:   events[0].Version,
		}
	}

	out := make([]eventsourcing.Event, len(events))
	for i, e := range events {
		b.nextPosition++
		e.Position = b.nextPosition
		out[i] = e
		b.events = append(b.events, e)
		b.maxVersion[aggregateID] = e.Version
	}
	return out, nil
}

// EventsForAggregate implements eventsourcing.Backend.
func (b *Backend) EventsForAggregate(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []eventsourcing.Event
	for _, e := range b.events {
		if e.AggregateID == aggregateID && e.Version > fromVersion {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// EventsForAggregateType implements eventsourcing.Backend.
func (b *Backend) EventsForAggregateType(ctx context.Context, aggregateType string, afterPosition int64) ([]eventsourcing.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []eventsourcing.Event
	for _, e := range b.events {
		if e.AggregateType == aggregateType && e.Position > afterPosition {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// AllEvents implements eventsourcing.Backend.
func (b *Backend) AllEvents(ctx context.Context, afterPosition int64) ([]eventsourcing.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []eventsourcing.Event
	for _, e := range b.events {
		if e.Position > afterPosition {
			out = append(out, e)
		}
	}
	return out, nil
}

// MaxVersion implements eventsourcing.Backend.
func (b *Backend) MaxVersion(ctx context.Context, aggregateID string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxVersion[aggregateID], nil
}

// MaxPosition implements eventsourcing.Backend.
func (b *Backend) MaxPosition(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextPosition, nil
}

// SaveSnapshot implements eventsourcing.Backend.
func (b *Backend) SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[snap.AggregateID] = append(b.snapshots[snap.AggregateID], snap)
	return nil
}

// LatestSnapshot implements eventsourcing.Backend.
func (b *Backend) LatestSnapshot(ctx context.Context, aggregateID string) (*eventsourcing.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snaps := b.snapshots[aggregateID]
	if len(snaps) == 0 {
		return nil, nil
	}
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if s.Version > latest.Version {
			latest = s
		}
	}
	return &latest, nil
}

// LoadProjectionCursor implements eventsourcing.Backend.
func (b *Backend) LoadProjectionCursor(ctx context.Context, name string) (eventsourcing.Values, int64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	row, ok := b.projections[name]
	if !ok {
		return nil, 0, false, nil
	}
	return row.state.Clone(), row.position, true, nil
}

// SaveProjectionCursor implements eventsourcing.Backend.
func (b *Backend) SaveProjectionCursor(ctx context.Context, name string, state eventsourcing.Values, position int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projections[name] = projectionRow{state: state.Clone(), position: position}
	return nil
}

// InsertCommandRecord implements eventsourcing.Backend.
func (b *Backend) InsertCommandRecord(ctx context.Context, rec eventsourcing.CommandRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commandLog[rec.ID.String()] = rec
	return nil
}

// UpdateCommandRecord implements eventsourcing.Backend.
func (b *Backend) UpdateCommandRecord(ctx context.Context, rec eventsourcing.CommandRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commandLog[rec.ID.String()] = rec
	return nil
}

// Close implements eventsourcing.Backend. It is a no-op: there is nothing
// to release.
func (b *Backend) Close() error { return nil }
