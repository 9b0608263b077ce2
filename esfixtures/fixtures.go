// Package esfixtures provides fluent builders for constructing test
// events, commands, and snapshots without repeating struct literals across
// package test files.
package esfixtures

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	es "github.com/lattice-run/eventsourcing"
)

// EventBuilder provides a fluent API for constructing test events.
type EventBuilder struct {
	aggregateID   string
	aggregateType string
	eventType     string
	payload       es.Values
	version       uint64
	causedBy      string
}

// NewEvent returns an EventBuilder with sensible defaults.
func NewEvent() *EventBuilder {
	return &EventBuilder{
		aggregateID:   "aggregate-1",
		aggregateType: "TestAggregate",
		eventType:     "TestEvent",
		payload:       es.Values{},
		version:       1,
	}
}

func (b *EventBuilder) WithAggregateID(id string) *EventBuilder {
	b.aggregateID = id
	return b
}

func (b *EventBuilder) WithAggregateType(t string) *EventBuilder {
	b.aggregateType = t
	return b
}

func (b *EventBuilder) WithEventType(t string) *EventBuilder {
	b.eventType = t
	return b
}

func (b *EventBuilder) WithPayload(payload es.Values) *EventBuilder {
	b.payload = payload
	return b
}

func (b *EventBuilder) WithVersion(v uint64) *EventBuilder {
	b.version = v
	return b
}

func (b *EventBuilder) WithCausedBy(id string) *EventBuilder {
	b.causedBy = id
	return b
}

// Build constructs a single Event from the builder's current state.
func (b *EventBuilder) Build() es.Event {
	return es.NewEvent(b.aggregateID, b.aggregateType, b.eventType, b.payload, b.version, b.causedBy)
}

// BuildN constructs n contiguous events for the same aggregate, with
// versions starting at the builder's current version and incrementing by
// one. Each event's payload gets a "seq" key set to its 1-based index.
func (b *EventBuilder) BuildN(n int) []es.Event {
	out := make([]es.Event, n)
	for i := 0; i < n; i++ {
		payload := b.payload.Clone()
		payload["seq"] = float64(i + 1)
		out[i] = es.NewEvent(b.aggregateID, b.aggregateType, b.eventType, payload, b.version+uint64(i), b.causedBy)
	}
	return out
}

// CommandBuilder provides a fluent API for constructing test commands.
type CommandBuilder struct {
	commandType string
	payload     es.Values
	issuedBy    string
}

// NewCommand returns a CommandBuilder with sensible defaults.
func NewCommand() *CommandBuilder {
	return &CommandBuilder{
		commandType: "TestCommand",
		payload:     es.Values{},
		issuedBy:    "test-user",
	}
}

func (b *CommandBuilder) WithCommandType(t string) *CommandBuilder {
	b.commandType = t
	return b
}

func (b *CommandBuilder) WithPayload(payload es.Values) *CommandBuilder {
	b.payload = payload
	return b
}

func (b *CommandBuilder) WithIssuedBy(id string) *CommandBuilder {
	b.issuedBy = id
	return b
}

// Build constructs a Command from the builder's current state.
func (b *CommandBuilder) Build() es.Command {
	return es.NewCommand(b.commandType, b.payload, b.issuedBy)
}

// SnapshotBuilder provides a fluent API for constructing test snapshots.
type SnapshotBuilder struct {
	aggregateID   string
	aggregateType string
	version       uint64
	state         es.Values
	createdAt     time.Time
}

// NewSnapshot returns a SnapshotBuilder with sensible defaults.
func NewSnapshot() *SnapshotBuilder {
	return &SnapshotBuilder{
		aggregateID:   "aggregate-1",
		aggregateType: "TestAggregate",
		version:       1,
		state:         es.Values{},
		createdAt:     time.Now().UTC(),
	}
}

func (b *SnapshotBuilder) WithAggregateID(id string) *SnapshotBuilder {
	b.aggregateID = id
	return b
}

func (b *SnapshotBuilder) WithAggregateType(t string) *SnapshotBuilder {
	b.aggregateType = t
	return b
}

func (b *SnapshotBuilder) WithVersion(v uint64) *SnapshotBuilder {
	b.version = v
	return b
}

func (b *SnapshotBuilder) WithState(state es.Values) *SnapshotBuilder {
	b.state = state
	return b
}

// Build constructs a Snapshot from the builder's current state.
func (b *SnapshotBuilder) Build() es.Snapshot {
	return es.Snapshot{
		AggregateID:   b.aggregateID,
		AggregateType: b.aggregateType,
		Version:       b.version,
		State:         b.state,
		CreatedAt:     b.createdAt,
	}
}

// NewAggregateID returns a fresh, randomly generated aggregate identifier
// suitable for a test that doesn't care about a specific ID value.
func NewAggregateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}
