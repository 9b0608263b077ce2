package eventsourcing

import "time"

// Snapshot is a persisted, collapsed view of an aggregate's state at a
// specific version, used to short-circuit replay. Multiple snapshots per
// aggregate may exist; the store always resolves to the one with the
// highest Version.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       uint64
	State         Values
	CreatedAt     time.Time
}
