package memory_test

import (
	"context"
	"errors"
	"testing"

	es "github.com/lattice-run/eventsourcing"
	"github.com/lattice-run/eventsourcing/storage/memory"
)

func TestAppendEventsAssignsPositionsAndDetectsConflict(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	saved, err := backend.AppendEvents(ctx, []es.Event{
		es.NewEvent("a-1", "Thing", "Created", es.Values{}, 1, ""),
	})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if saved[0].Position != 1 {
		t.Fatalf("expected position 1, got %d", saved[0].Position)
	}

	_, err = backend.AppendEvents(ctx, []es.Event{
		es.NewEvent("a-1", "Thing", "Updated", es.Values{}, 3, ""),
	})
	var conflict *es.VersionConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *VersionConflict for a non-contiguous version, got %v", err)
	}
}

func TestProjectionCursorRoundTrips(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	_, _, found, err := backend.LoadProjectionCursor(ctx, "totals")
	if err != nil {
		t.Fatalf("LoadProjectionCursor: %v", err)
	}
	if found {
		t.Fatalf("expected no cursor to exist yet")
	}

	if err := backend.SaveProjectionCursor(ctx, "totals", es.Values{"sum": 42.0}, 7); err != nil {
		t.Fatalf("SaveProjectionCursor: %v", err)
	}
	state, position, found, err := backend.LoadProjectionCursor(ctx, "totals")
	if err != nil {
		t.Fatalf("LoadProjectionCursor: %v", err)
	}
	if !found || position != 7 {
		t.Fatalf("expected found cursor at position 7, got found=%v position=%d", found, position)
	}
	if state["sum"] != 42.0 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestLatestSnapshotResolvesHighestVersion(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	if err := backend.SaveSnapshot(ctx, es.Snapshot{AggregateID: "a-1", AggregateType: "Thing", Version: 1, State: es.Values{"v": 1.0}}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := backend.SaveSnapshot(ctx, es.Snapshot{AggregateID: "a-1", AggregateType: "Thing", Version: 3, State: es.Values{"v": 3.0}}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := backend.SaveSnapshot(ctx, es.Snapshot{AggregateID: "a-1", AggregateType: "Thing", Version: 2, State: es.Values{"v": 2.0}}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap, err := backend.LatestSnapshot(ctx, "a-1")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap.Version != 3 {
		t.Fatalf("expected the highest version (3) to win regardless of insertion order, got %d", snap.Version)
	}
}

func TestAllEventsOrderedByPosition(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	if _, err := backend.AppendEvents(ctx, []es.Event{es.NewEvent("a-1", "Thing", "Created", es.Values{}, 1, "")}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if _, err := backend.AppendEvents(ctx, []es.Event{es.NewEvent("a-2", "Thing", "Created", es.Values{}, 1, "")}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	all, err := backend.AllEvents(ctx, 0)
	if err != nil {
		t.Fatalf("AllEvents: %v", err)
	}
	if len(all) != 2 || all[0].Position >= all[1].Position {
		t.Fatalf("expected ascending positions across aggregates, got %v", all)
	}
}

func TestCommandRecordInsertAndUpdate(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	cmd := es.NewCommand("DoThing", es.Values{}, "tester")
	rec := es.CommandRecord{
		ID:          cmd.ID,
		CommandType: cmd.CommandType,
		Payload:     cmd.Payload,
		IssuedBy:    cmd.IssuedBy,
		IssuedAt:    cmd.IssuedAt,
		Status:      es.CommandPending,
	}
	if err := backend.InsertCommandRecord(ctx, rec); err != nil {
		t.Fatalf("InsertCommandRecord: %v", err)
	}
	rec.Status = es.CommandOK
	rec.Result = es.Values{"ok": true}
	if err := backend.UpdateCommandRecord(ctx, rec); err != nil {
		t.Fatalf("UpdateCommandRecord: %v", err)
	}
}
