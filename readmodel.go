package eventsourcing

// ReadModel is a read-only snapshot of a projection's materialized state,
// returned by ProjectionManager.Snapshot for introspection.
type ReadModel struct {
	Name     string
	State    Values
	Position int64
}
