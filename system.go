package eventsourcing

import (
	"context"
	"fmt"
)

// System is a thin composition owning one EventStore, one CommandBus, and
// one ProjectionManager, plus the convenience queries (history,
// statistics).
type System struct {
	Store       *EventStore
	Commands    *CommandBus
	Projections *ProjectionManager

	backend Backend
	queries *QueryBus
	history GenericQueryGateway[HistoryQuery, []Values]
	stats   GenericQueryGateway[StatisticsQuery, Statistics]
}

// SystemOption configures Open.
type SystemOption func(*systemConfig)

type systemConfig struct {
	driver      string
	storeOpts   []EventStoreOption
}

// WithBackendDriver selects which registered BackendFactory Open uses,
// overriding the default driver selection (":memory:" -> "memory",
// anything else -> "sqlite").
func WithBackendDriver(driver string) SystemOption {
	return func(c *systemConfig) { c.driver = driver }
}

// WithEventStoreOptions forwards opts to the EventStore Open constructs
// internally (e.g. WithEventBus, WithLogger).
func WithEventStoreOptions(opts ...EventStoreOption) SystemOption {
	return func(c *systemConfig) { c.storeOpts = append(c.storeOpts, opts...) }
}

// Open constructs a System backed by the backend registered for dbPath's
// implied driver. The literal ":memory:" selects the "memory" driver;
// any other string is treated as a file path for the "sqlite" driver. The
// selected driver must have been registered by a blank import of its package
// (storage/memory, storage/sqlite) before Open is called.
func Open(dbPath string, opts ...SystemOption) (*System, error) {
	cfg := &systemConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.driver == "" {
		if dbPath == ":memory:" {
			cfg.driver = "memory"
		} else {
			cfg.driver = "sqlite"
		}
	}

	backend, err := NewBackend(cfg.driver, dbPath)
	if err != nil {
		return nil, err
	}
	return NewSystem(backend, cfg.storeOpts...), nil
}

// NewSystem builds a System directly from an already-constructed Backend,
// for callers that built their own Backend instead of going through Open's
// driver registry (tests, custom backends).
func NewSystem(backend Backend, storeOpts ...EventStoreOption) *System {
	store := NewEventStore(backend, storeOpts...)
	queries := NewQueryBus()
	registerSystemQueries(queries, store)

	return &System{
		Store:       store,
		Commands:    NewCommandBus(store, backend),
		Projections: NewProjectionManager(store, backend),
		backend:     backend,
		queries:     queries,
		history:     NewQueryGateway[HistoryQuery, []Values](queries, queryTypeHistory),
		stats:       NewQueryGateway[StatisticsQuery, Statistics](queries, queryTypeStatistics),
	}
}

// DispatchCommand delegates to the Command Bus.
func (s *System) DispatchCommand(ctx context.Context, commandType string, payload Values, issuedBy string) (DispatchOutcome, error) {
	return s.Commands.Dispatch(ctx, commandType, payload, issuedBy)
}

// RebuildProjection delegates to the Projection Manager.
func (s *System) RebuildProjection(ctx context.Context, name string) (int, error) {
	return s.Projections.RebuildProjection(ctx, name)
}

// QueryProjection delegates to the Projection Manager.
func (s *System) QueryProjection(ctx context.Context, name, key string) (any, error) {
	return s.Projections.QueryProjection(ctx, name, key)
}

// GetAggregateHistory returns every event for aggregateID, ordered by
// version ascending, serialized into a generic Values mapping per event.
// It runs through the System's QueryBus, like any query the embedding host
// registers for itself.
func (s *System) GetAggregateHistory(ctx context.Context, aggregateID string) ([]Values, error) {
	return s.history.HandleQuery(ctx, HistoryQuery{AggregateID: aggregateID})
}

// Statistics reports {total_events, by_type, latest_position} over the
// whole log.
type Statistics struct {
	TotalEvents    int64
	ByType         map[string]int64
	LatestPosition int64
}

// Statistics computes aggregate counters over the full event log, via the
// QueryBus.
func (s *System) Statistics(ctx context.Context) (Statistics, error) {
	return s.stats.HandleQuery(ctx, StatisticsQuery{})
}

// Queries exposes the System's QueryBus so the embedding host can register
// its own typed queries (RegisterQueryHandler) alongside the built-in
// history/statistics ones, and execute them via NewQueryGateway.
func (s *System) Queries() *QueryBus { return s.queries }

// Close releases the underlying store (and its backend/event bus).
func (s *System) Close() error {
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("eventsourcing: close: %w", err)
	}
	return nil
}
