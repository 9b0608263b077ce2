package eventsourcing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// CommandBus routes commands to registered handlers and records every
// dispatch in the command_log audit table. The
// bus is the only component that swallows handler errors: Dispatch never
// returns a non-nil error for a handler failure, it encodes the failure in
// the returned DispatchOutcome instead. A non-nil error from Dispatch means
// the audit write itself failed (infrastructure failure).
type CommandBus struct {
	store   *EventStore
	backend Backend
	mu      sync.RWMutex
	handlers map[string]CommandHandlerFunc
}

// NewCommandBus builds a bus that dispatches against store and records
// audit rows in backend.
func NewCommandBus(store *EventStore, backend Backend) *CommandBus {
	return &CommandBus{
		store:    store,
		backend:  backend,
		handlers: make(map[string]CommandHandlerFunc),
	}
}

// Register adds handler for commandType. Only one handler per command type
// is kept; registering again replaces the previous handler.
func (b *CommandBus) Register(commandType string, handler CommandHandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[commandType] = handler
}

// DispatchOutcome is the structured result of CommandBus.Dispatch.
type DispatchOutcome struct {
	Status  CommandStatus
	Result  Values
	Message string
}

// Dispatch constructs a Command, writes a pending audit row, runs the
// registered handler (if any), and updates the audit row with the outcome.
// The audit row update is a separate transaction from any event appends the
// handler performed; the engine makes no atomicity claim between the two.
func (b *CommandBus) Dispatch(ctx context.Context, commandType string, payload Values, issuedBy string) (DispatchOutcome, error) {
	start := time.Now()
	ctx, span := StartSpan(ctx, "eventsourcing.CommandBus.Dispatch", AttrCommandType.String(commandType))
	defer func() { EndSpan(span, nil) }()

	if CommandsInFlight != nil {
		CommandsInFlight.Add(ctx, 1, metric.WithAttributes(AttrCommandType.String(commandType)))
		defer CommandsInFlight.Add(ctx, -1, metric.WithAttributes(AttrCommandType.String(commandType)))
	}

	cmd := NewCommand(commandType, payload, issuedBy)
	record := CommandRecord{
		ID:          cmd.ID,
		CommandType: cmd.CommandType,
		Payload:     cmd.Payload,
		IssuedBy:    cmd.IssuedBy,
		IssuedAt:    cmd.IssuedAt,
		Status:      CommandPending,
	}
	if err := b.backend.InsertCommandRecord(ctx, record); err != nil {
		return DispatchOutcome{}, &StoreUnavailable{Op: "Dispatch", Err: err}
	}

	b.mu.RLock()
	handler, ok := b.handlers[commandType]
	b.mu.RUnlock()

	var outcome DispatchOutcome
	if !ok {
		outcome = DispatchOutcome{Status: CommandError, Message: fmt.Sprintf("no handler for %s", commandType)}
	} else {
		result, err := b.invoke(ctx, handler, cmd)
		if err != nil {
			outcome = DispatchOutcome{Status: CommandError, Message: err.Error()}
		} else {
			outcome = DispatchOutcome{Status: CommandOK, Result: result}
		}
	}

	record.Status = outcome.Status
	record.Result = outcome.Result
	record.ErrorMessage = outcome.Message
	if err := b.backend.UpdateCommandRecord(ctx, record); err != nil {
		return outcome, &StoreUnavailable{Op: "Dispatch", Err: err}
	}

	if CommandsDispatched != nil {
		CommandsDispatched.Add(ctx, 1, metric.WithAttributes(AttrCommandType.String(commandType)))
	}
	if outcome.Status == CommandError && CommandsFailed != nil {
		CommandsFailed.Add(ctx, 1, metric.WithAttributes(AttrCommandType.String(commandType)))
	}
	if CommandsDuration != nil {
		CommandsDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(AttrCommandType.String(commandType)))
	}

	return outcome, nil
}

// invoke runs handler, converting a panic into an error so a single
// misbehaving handler can never crash the bus.
func (b *CommandBus) invoke(ctx context.Context, handler CommandHandlerFunc, cmd Command) (result Values, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler for %s: %v", cmd.CommandType, r)
		}
	}()
	return handler(ctx, cmd, b.store)
}
