package eventsourcing

import (
	"context"
	"fmt"
)

// Evolver folds a single event into the current aggregate state, producing
// the next state. T is the aggregate's typed state representation.
type Evolver[T any] func(state T, event Event) T

// Decider determines which events should be raised in response to a
// command, given the current aggregate state. C is the decoded, typed
// command payload. Returning an empty slice means the command had no
// effect (e.g. it was idempotent).
type Decider[T any, C any] func(state T, cmd C) ([]Decision, error)

// Decision is a single event a Decider wants raised: an event type name
// plus the payload to carry. CausedBy is filled in automatically from the
// dispatching Command's ID.
type Decision struct {
	EventType string
	Payload   Values
}

// NewTypedCommandHandler builds a CommandHandlerFunc suitable for
// CommandBus.Register out of a decode step, an Evolver, and a Decider. It
// loads the target aggregate's full history via store.Load, folds it into
// initialState with evolve, runs decide against the resulting state, and
// appends the resulting events in one EventStore.Append call.
//
// Unlike an optimistic-retry command handler, this does not retry on
// VersionConflict: per the engine's concurrency model, the store offers no
// built-in retry — callers reload the aggregate and re-issue the command
// themselves.
//
// Parameters:
//   - aggregateType: the aggregate_type stored on every raised event.
//   - decode: turns a Command's raw Payload into the typed command C.
//   - aggregateID: extracts the target aggregate's id from C.
//   - initialState: the state an aggregate with no events starts from.
//   - evolve: folds one past event into state, used to replay history.
//   - decide: produces the Decisions to raise given state and C.
func NewTypedCommandHandler[T any, C any](
	aggregateType string,
	decode func(Values) (C, error),
	aggregateID func(C) string,
	initialState T,
	evolve Evolver[T],
	decide Decider[T, C],
) CommandHandlerFunc {
	return func(ctx context.Context, cmd Command, store *EventStore) (Values, error) {
		typed, err := decode(cmd.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", cmd.CommandType, err)
		}
		id := aggregateID(typed)

		history, err := store.Load(ctx, id, 0)
		if err != nil {
			return nil, err
		}

		state := initialState
		var version uint64
		for _, e := range history {
			state = evolve(state, e)
			version = e.Version
		}

		decisions, err := decide(state, typed)
		if err != nil {
			return nil, fmt.Errorf("command %s rejected: %w", cmd.CommandType, err)
		}
		if len(decisions) == 0 {
			return Values{}, nil
		}

		events := make([]Event, len(decisions))
		for i, d := range decisions {
			version++
			events[i] = NewEvent(id, aggregateType, d.EventType, d.Payload, version, cmd.ID.String())
		}

		if _, err := store.Append(ctx, events); err != nil {
			return nil, err
		}
		return Values{"aggregate_id": id, "version": version}, nil
	}
}
