package eventsourcing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// ProjectionHandlerFunc mutates a projection's state in response to a single
// event. It must be deterministic and side-effect free beyond state, since
// RebuildProjection replays it over the whole log.
type ProjectionHandlerFunc func(state Values, event Event)

// Projection is a named, denormalized read-model maintained by replaying
// events through its registered handlers. Build one with NewProjection and
// On, then register it with a ProjectionManager.
type Projection struct {
	Name     string
	handlers map[string]ProjectionHandlerFunc
	state    Values
	position int64
}

// NewProjection creates an empty, unregistered projection named name.
func NewProjection(name string) *Projection {
	return &Projection{Name: name, handlers: make(map[string]ProjectionHandlerFunc), state: Values{}}
}

// On registers handler for eventType, replacing any existing handler for
// that type. Returns the receiver so calls can be chained.
func (p *Projection) On(eventType string, handler ProjectionHandlerFunc) *Projection {
	p.handlers[eventType] = handler
	return p
}

// State returns the projection's current in-memory state.
func (p *Projection) State() Values { return p.state }

// Position returns the projection's last-processed global position.
func (p *Projection) Position() int64 { return p.position }

// ProjectionManager registers projections, persists their state and cursor,
// and advances them over the event log.
type ProjectionManager struct {
	store       *EventStore
	backend     Backend
	logger      *slog.Logger
	projections map[string]*Projection
}

// NewProjectionManager builds a manager backed by store/backend.
func NewProjectionManager(store *EventStore, backend Backend) *ProjectionManager {
	return &ProjectionManager{
		store:       store,
		backend:     backend,
		logger:      slog.Default(),
		projections: make(map[string]*Projection),
	}
}

// Register adds p to the active set. If a row for p.Name already exists in
// the backend, its persisted state and position are restored into p;
// otherwise p starts at ({}, 0) and that initial cursor is persisted
// immediately so a crash before the first Advance still finds a row.
func (m *ProjectionManager) Register(ctx context.Context, p *Projection) error {
	state, position, found, err := m.backend.LoadProjectionCursor(ctx, p.Name)
	if err != nil {
		return &StoreUnavailable{Op: "Register", Err: err}
	}
	if found {
		p.state = state
		p.position = position
	} else {
		p.state = Values{}
		p.position = 0
		if err := m.backend.SaveProjectionCursor(ctx, p.Name, p.state, p.position); err != nil {
			return &StoreUnavailable{Op: "Register", Err: err}
		}
	}
	m.projections[p.Name] = p
	return nil
}

func (m *ProjectionManager) get(name string) (*Projection, error) {
	p, ok := m.projections[name]
	if !ok {
		return nil, &ErrProjectionNotRegistered{Name: name}
	}
	return p, nil
}

// RebuildProjection resets p's state to {} and position to 0, then streams
// the entire event log from position 0 through Advance's logic. Rebuilds
// are deterministic: running RebuildProjection twice, or interleaved
// with any number of Advance calls, always yields the same final
// (state, position).
func (m *ProjectionManager) RebuildProjection(ctx context.Context, name string) (int, error) {
	p, err := m.get(name)
	if err != nil {
		return 0, err
	}
	p.state = Values{}
	p.position = 0
	return m.advance(ctx, p)
}

// Advance streams events after p's persisted position and applies matching
// handlers, without resetting existing state.
func (m *ProjectionManager) Advance(ctx context.Context, name string) (int, error) {
	p, err := m.get(name)
	if err != nil {
		return 0, err
	}
	return m.advance(ctx, p)
}

// AdvanceAll advances every registered projection and returns a
// name -> events-processed map. The order among projections is unspecified;
// each is advanced atomically with respect to its own cursor.
func (m *ProjectionManager) AdvanceAll(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(m.projections))
	for name, p := range m.projections {
		n, err := m.advance(ctx, p)
		if err != nil {
			return out, err
		}
		out[name] = n
	}
	return out, nil
}

// advance is the shared implementation behind Advance and
// RebuildProjection (the latter just resets state/position first). The
// cursor advances over every event visited, handled or not, so that
// registering a handler for a previously-unhandled event type later
// requires an explicit rebuild rather than silently back-filling.
func (m *ProjectionManager) advance(ctx context.Context, p *Projection) (int, error) {
	ctx, span := StartSpan(ctx, "eventsourcing.ProjectionManager.advance", AttrProjection.String(p.Name))
	defer func() { EndSpan(span, nil) }()

	events, err := m.store.LoadAllEvents(ctx, p.position)
	if err != nil {
		return 0, err
	}

	maxPosition := p.position
	for _, event := range events {
		if event.Position > maxPosition {
			maxPosition = event.Position
		}
		if handler, ok := p.handlers[event.EventType]; ok {
			if failErr := invokeProjectionHandler(handler, p.state, event); failErr != nil {
				if ProjectionHandlerErrors != nil {
					ProjectionHandlerErrors.Add(ctx, 1, metric.WithAttributes(AttrProjection.String(p.Name)))
				}
				return 0, &ProjectionHandlerFailure{
					Projection: p.Name,
					EventType:  event.EventType,
					Position:   event.Position,
					Err:        failErr,
				}
			}
		}
	}

	p.position = maxPosition
	if err := m.backend.SaveProjectionCursor(ctx, p.Name, p.state, p.position); err != nil {
		return 0, &StoreUnavailable{Op: "advance", Err: err}
	}

	if ProjectionsAdvanced != nil {
		ProjectionsAdvanced.Add(ctx, int64(len(events)), metric.WithAttributes(AttrProjection.String(p.Name)))
	}
	m.logger.DebugContext(ctx, "projection advanced", "projection", p.Name, "events", len(events), "position", p.position)
	return len(events), nil
}

// invokeProjectionHandler calls handler, converting a panic into an error so
// a programming error in one handler cannot crash the whole advance loop
// before the cursor bookkeeping above can react to it.
func invokeProjectionHandler(handler ProjectionHandlerFunc, state Values, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{recovered: r}
		}
	}()
	handler(state, event)
	return nil
}

type panicError struct{ recovered any }

func (e *panicError) Error() string { return "panic in projection handler" }

// QueryProjection returns the full state of the named projection when key
// is "", or the single value at that key (nil if absent).
func (m *ProjectionManager) QueryProjection(ctx context.Context, name, key string) (any, error) {
	p, err := m.get(name)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return p.State(), nil
	}
	return p.state[key], nil
}

// Snapshot returns a read-only view of a registered projection's current
// state and cursor, for introspection/diagnostics.
func (m *ProjectionManager) Snapshot(name string) (ReadModel, error) {
	p, err := m.get(name)
	if err != nil {
		return ReadModel{}, err
	}
	return ReadModel{Name: p.Name, State: p.state.Clone(), Position: p.position}, nil
}
