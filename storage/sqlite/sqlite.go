// Package sqlite implements eventsourcing.Backend on top of database/sql
// and github.com/mattn/go-sqlite3, following the connection-pool and
// schema-setup conventions of a SQLite-backed event store: WAL mode, a
// bounded connection pool, CREATE TABLE IF NOT EXISTS migrations run once
// at Open, and transactional inserts for every multi-row write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lattice-run/eventsourcing"
)

func init() {
	eventsourcing.RegisterBackend("sqlite", func(dsn string) (eventsourcing.Backend, error) {
		cfg := DefaultConfig()
		cfg.Path = dsn
		return New(cfg)
	})
}

// Config tunes the underlying *sql.DB pool and schema setup.
type Config struct {
	// Path is a filesystem path, or ":memory:" for a volatile database.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns a Config with conservative pool settings suitable
// for an embedded, single-process writer.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
		Logger:          slog.Default(),
	}
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 1
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 1
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Backend is a SQLite-backed eventsourcing.Backend. A single writer
// connection (MaxOpenConns defaults to 1) lets SQLite's own locking and this
// backend's transactions jointly serialize writers, per the engine's
// concurrency model.
type Backend struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if necessary) a SQLite database at cfg.Path and runs
// schema setup.
func New(cfg Config) (*Backend, error) {
	cfg.setDefaults()

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", cfg.Path, err)
	}

	b := &Backend{db: db, logger: cfg.Logger}
	if err := b.setupSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) setupSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			position       INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT NOT NULL UNIQUE,
			aggregate_id   TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type     TEXT NOT NULL,
			payload        TEXT NOT NULL,
			version        INTEGER NOT NULL,
			timestamp      TEXT NOT NULL,
			caused_by      TEXT,
			metadata       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_aggregate_version ON events (aggregate_id, version)`,
		`CREATE INDEX IF NOT EXISTS idx_events_aggregate_type ON events (aggregate_type)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id   TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			version        INTEGER NOT NULL,
			state          TEXT NOT NULL,
			created_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_aggregate_version ON snapshots (aggregate_id, version DESC)`,
		`CREATE TABLE IF NOT EXISTS projections (
			name     TEXT PRIMARY KEY,
			state    TEXT NOT NULL,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS command_log (
			id            TEXT PRIMARY KEY,
			command_type  TEXT NOT NULL,
			payload       TEXT NOT NULL,
			issued_by     TEXT,
			issued_at     TEXT NOT NULL,
			status        TEXT NOT NULL,
			result        TEXT,
			error_message TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: schema setup: %w", err)
		}
	}
	return nil
}

// AppendEvents implements eventsourcing.Backend.
func (b *Backend) AppendEvents(ctx context.Context, events []eventsourcing.Event) ([]eventsourcing.Event, error) {
	if len(events) == 0 {
		return nil, eventsourcing.ErrEmptyAppend
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin append: %w", err)
	}
	defer tx.Rollback()

	aggregateID := events[0].AggregateID

	var current sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM events WHERE aggregate_id = ?`, aggregateID).Scan(&current); err != nil {
		return nil, fmt.Errorf("sqlite: read current version: %w", err)
	}
	currentVersion := uint64(0)
	if current.Valid {
		currentVersion = uint64(current.Int64)
	}
	if events[0].Version != currentVersion+1 {
		return nil, &eventsourcing.VersionConflict{
			AggregateID:     aggregateID,
			ExpectedVersion: currentVersion + 1,
			ActualVersion:   events[0].Version,
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(id, aggregate_id, aggregate_type, event_type, payload, version, timestamp, caused_by, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: prepare append: %w", err)
	}
	defer stmt.Close()

	out := make([]eventsourcing.Event, len(events))
	for i, e := range events {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, &eventsourcing.SerializationError{Op: "AppendEvents", Err: err}
		}
		metadataJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, &eventsourcing.SerializationError{Op: "AppendEvents", Err: err}
		}

		res, err := stmt.ExecContext(ctx, e.ID.String(), e.AggregateID, e.AggregateType, e.EventType,
			string(payloadJSON), e.Version, e.Timestamp.Format(time.RFC3339Nano), e.CausedBy, string(metadataJSON))
		if err != nil {
			return nil, fmt.Errorf("sqlite: insert event: %w", err)
		}
		position, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlite: read assigned position: %w", err)
		}
		e.Position = position
		out[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit append: %w", err)
	}
	b.logger.Debug("sqlite: appended events", "aggregate_id", aggregateID, "count", len(events))
	return out, nil
}

const selectEventColumns = `id, aggregate_id, aggregate_type, event_type, payload, version, timestamp, caused_by, metadata, position`

func (b *Backend) scanEvents(rows *sql.Rows) ([]eventsourcing.Event, error) {
	defer rows.Close()

	var out []eventsourcing.Event
	for rows.Next() {
		var (
			e                     eventsourcing.Event
			id                    string
			payloadJSON           string
			metadataJSON          sql.NullString
			timestampStr          string
			causedBy              sql.NullString
		)
		if err := rows.Scan(&id, &e.AggregateID, &e.AggregateType, &e.EventType, &payloadJSON, &e.Version,
			&timestampStr, &causedBy, &metadataJSON, &e.Position); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		parsedID, err := uuid.Parse(id)
		if err != nil {
			return nil, &eventsourcing.SerializationError{Op: "scanEvents", Err: err}
		}
		e.ID = parsedID
		e.CausedBy = causedBy.String
		ts, err := time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			return nil, &eventsourcing.SerializationError{Op: "scanEvents", Err: err}
		}
		e.Timestamp = ts

		var payload eventsourcing.Values
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, &eventsourcing.SerializationError{Op: "scanEvents", Err: err}
		}
		e.Payload = payload

		if metadataJSON.Valid && metadataJSON.String != "" {
			var meta eventsourcing.Values
			if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err != nil {
				return nil, &eventsourcing.SerializationError{Op: "scanEvents", Err: err}
			}
			e.Metadata = meta
		}

		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsForAggregate implements eventsourcing.Backend.
func (b *Backend) EventsForAggregate(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.Event, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+selectEventColumns+` FROM events WHERE aggregate_id = ? AND version > ? ORDER BY version ASC`,
		aggregateID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events for aggregate: %w", err)
	}
	return b.scanEvents(rows)
}

// EventsForAggregateType implements eventsourcing.Backend.
func (b *Backend) EventsForAggregateType(ctx context.Context, aggregateType string, afterPosition int64) ([]eventsourcing.Event, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+selectEventColumns+` FROM events WHERE aggregate_type = ? AND position > ? ORDER BY position ASC`,
		aggregateType, afterPosition)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events for aggregate type: %w", err)
	}
	return b.scanEvents(rows)
}

// AllEvents implements eventsourcing.Backend.
func (b *Backend) AllEvents(ctx context.Context, afterPosition int64) ([]eventsourcing.Event, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+selectEventColumns+` FROM events WHERE position > ? ORDER BY position ASC`, afterPosition)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query all events: %w", err)
	}
	return b.scanEvents(rows)
}

// MaxVersion implements eventsourcing.Backend.
func (b *Backend) MaxVersion(ctx context.Context, aggregateID string) (uint64, error) {
	var v sql.NullInt64
	if err := b.db.QueryRowContext(ctx, `SELECT MAX(version) FROM events WHERE aggregate_id = ?`, aggregateID).Scan(&v); err != nil {
		return 0, fmt.Errorf("sqlite: max version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return uint64(v.Int64), nil
}

// MaxPosition implements eventsourcing.Backend.
func (b *Backend) MaxPosition(ctx context.Context) (int64, error) {
	var p sql.NullInt64
	if err := b.db.QueryRowContext(ctx, `SELECT MAX(position) FROM events`).Scan(&p); err != nil {
		return 0, fmt.Errorf("sqlite: max position: %w", err)
	}
	if !p.Valid {
		return 0, nil
	}
	return p.Int64, nil
}

// SaveSnapshot implements eventsourcing.Backend.
func (b *Backend) SaveSnapshot(ctx context.Context, snap eventsourcing.Snapshot) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return &eventsourcing.SerializationError{Op: "SaveSnapshot", Err: err}
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.AggregateID, snap.AggregateType, snap.Version, string(stateJSON), snap.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot implements eventsourcing.Backend.
func (b *Backend) LatestSnapshot(ctx context.Context, aggregateID string) (*eventsourcing.Snapshot, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at FROM snapshots
		 WHERE aggregate_id = ? ORDER BY version DESC LIMIT 1`, aggregateID)

	var (
		snap         eventsourcing.Snapshot
		stateJSON    string
		createdAtStr string
	)
	if err := row.Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &stateJSON, &createdAtStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: latest snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return nil, &eventsourcing.SerializationError{Op: "LatestSnapshot", Err: err}
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, &eventsourcing.SerializationError{Op: "LatestSnapshot", Err: err}
	}
	snap.CreatedAt = createdAt
	return &snap, nil
}

// LoadProjectionCursor implements eventsourcing.Backend.
func (b *Backend) LoadProjectionCursor(ctx context.Context, name string) (eventsourcing.Values, int64, bool, error) {
	row := b.db.QueryRowContext(ctx, `SELECT state, position FROM projections WHERE name = ?`, name)

	var stateJSON string
	var position int64
	if err := row.Scan(&stateJSON, &position); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("sqlite: load projection cursor: %w", err)
	}

	var state eventsourcing.Values
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, 0, false, &eventsourcing.SerializationError{Op: "LoadProjectionCursor", Err: err}
	}
	return state, position, true, nil
}

// SaveProjectionCursor implements eventsourcing.Backend.
func (b *Backend) SaveProjectionCursor(ctx context.Context, name string, state eventsourcing.Values, position int64) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return &eventsourcing.SerializationError{Op: "SaveProjectionCursor", Err: err}
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO projections (name, state, position) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET state = excluded.state, position = excluded.position`,
		name, string(stateJSON), position)
	if err != nil {
		return fmt.Errorf("sqlite: save projection cursor: %w", err)
	}
	return nil
}

// InsertCommandRecord implements eventsourcing.Backend.
func (b *Backend) InsertCommandRecord(ctx context.Context, rec eventsourcing.CommandRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return &eventsourcing.SerializationError{Op: "InsertCommandRecord", Err: err}
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO command_log (id, command_type, payload, issued_by, issued_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.CommandType, string(payloadJSON), rec.IssuedBy, rec.IssuedAt.Format(time.RFC3339Nano), string(rec.Status))
	if err != nil {
		return fmt.Errorf("sqlite: insert command record: %w", err)
	}
	return nil
}

// UpdateCommandRecord implements eventsourcing.Backend.
func (b *Backend) UpdateCommandRecord(ctx context.Context, rec eventsourcing.CommandRecord) error {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return &eventsourcing.SerializationError{Op: "UpdateCommandRecord", Err: err}
	}
	_, err = b.db.ExecContext(ctx,
		`UPDATE command_log SET status = ?, result = ?, error_message = ? WHERE id = ?`,
		string(rec.Status), string(resultJSON), rec.ErrorMessage, rec.ID.String())
	if err != nil {
		return fmt.Errorf("sqlite: update command record: %w", err)
	}
	return nil
}

// Close implements eventsourcing.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}
