package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CommandStatus is the status column of a command_log row.
type CommandStatus string

const (
	CommandPending CommandStatus = "pending"
	CommandOK      CommandStatus = "ok"
	CommandError   CommandStatus = "error"
)

// Command is a validated intent to change state, routed through the
// CommandBus to a handler registered for CommandType.
type Command struct {
	ID          uuid.UUID
	CommandType string
	Payload     Values
	IssuedBy    string
	IssuedAt    time.Time
}

// NewCommand constructs a Command with a fresh ID and the current UTC
// timestamp.
func NewCommand(commandType string, payload Values, issuedBy string) Command {
	return Command{
		ID:          uuid.New(),
		CommandType: commandType,
		Payload:     payload,
		IssuedBy:    issuedBy,
		IssuedAt:    time.Now().UTC(),
	}
}

// CommandRecord is the persisted audit row for a dispatched command. The
// audit row is advisory: its write is a separate transaction from any event
// appends the handler performs, so a crash
// between the two can leave them inconsistent; readers should treat
// command_log as a diagnostic trail, not a source of truth for what was
// applied.
type CommandRecord struct {
	ID           uuid.UUID
	CommandType  string
	Payload      Values
	IssuedBy     string
	IssuedAt     time.Time
	Status       CommandStatus
	Result       Values
	ErrorMessage string
}

// CommandHandlerFunc implements the business logic for one command type. It
// receives the store so it can load the target aggregate, decide events,
// and append them; its return value becomes the command's audit "result".
type CommandHandlerFunc func(ctx context.Context, cmd Command, store *EventStore) (Values, error)
