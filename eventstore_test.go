package eventsourcing_test

import (
	"context"
	"errors"
	"testing"

	es "github.com/lattice-run/eventsourcing"
	"github.com/lattice-run/eventsourcing/esfixtures"
	_ "github.com/lattice-run/eventsourcing/storage/memory"
)

func newMemoryStore(t *testing.T) *es.EventStore {
	store, _ := newMemoryStoreWithBackend(t)
	return store
}

func newMemoryStoreWithBackend(t *testing.T) (*es.EventStore, es.Backend) {
	t.Helper()
	backend, err := es.NewBackend("memory", ":memory:")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return es.NewEventStore(backend), backend
}

func TestAppendAssignsContiguousPositions(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	orderID := esfixtures.NewAggregateID("order")
	events := []es.Event{
		esfixtures.NewEvent().WithAggregateID(orderID).WithAggregateType("Order").
			WithEventType("OrderCreated").WithPayload(es.Values{"total": 10.0}).WithVersion(1).Build(),
		esfixtures.NewEvent().WithAggregateID(orderID).WithAggregateType("Order").
			WithEventType("ItemAdded").WithPayload(es.Values{"sku": "A"}).WithVersion(2).Build(),
	}

	positions, err := store.Append(ctx, events)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(positions) != 2 || positions[0] >= positions[1] {
		t.Fatalf("expected ascending positions, got %v", positions)
	}

	more := esfixtures.NewEvent().WithAggregateID(esfixtures.NewAggregateID("order")).
		WithAggregateType("Order").WithEventType("OrderCreated").
		WithPayload(es.Values{"total": 5.0}).WithVersion(1).BuildN(1)
	positions2, err := store.Append(ctx, more)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if positions2[0] <= positions[1] {
		t.Fatalf("expected global position to keep increasing across aggregates, got %v after %v", positions2, positions)
	}
}

func TestAppendRejectsNonContiguousVersion(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	first := []es.Event{es.NewEvent("order-1", "Order", "OrderCreated", es.Values{}, 1, "")}
	if _, err := store.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}

	conflicting := []es.Event{es.NewEvent("order-1", "Order", "ItemAdded", es.Values{}, 3, "")}
	_, err := store.Append(ctx, conflicting)
	if err == nil {
		t.Fatal("expected a version conflict, got nil")
	}
	var conflict *es.VersionConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *VersionConflict, got %T (%v)", err, err)
	}
	if conflict.ExpectedVersion != 2 || conflict.ActualVersion != 3 {
		t.Fatalf("unexpected conflict details: %+v", conflict)
	}
}

func TestAppendRejectsMixedAggregate(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	events := []es.Event{
		es.NewEvent("order-1", "Order", "OrderCreated", es.Values{}, 1, ""),
		es.NewEvent("order-2", "Order", "OrderCreated", es.Values{}, 1, ""),
	}
	if _, err := store.Append(ctx, events); !errors.Is(err, es.ErrMixedAggregate) {
		t.Fatalf("expected ErrMixedAggregate, got %v", err)
	}
}

func TestAppendRejectsEmpty(t *testing.T) {
	store := newMemoryStore(t)
	if _, err := store.Append(context.Background(), nil); !errors.Is(err, es.ErrEmptyAppend) {
		t.Fatalf("expected ErrEmptyAppend, got %v", err)
	}
}

func TestLoadReturnsEventsAfterVersion(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	events := []es.Event{
		es.NewEvent("order-1", "Order", "OrderCreated", es.Values{}, 1, ""),
		es.NewEvent("order-1", "Order", "ItemAdded", es.Values{}, 2, ""),
		es.NewEvent("order-1", "Order", "ItemAdded", es.Values{}, 3, ""),
	}
	if _, err := store.Append(ctx, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := store.Load(ctx, "order-1", 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 events after version 1, got %d", len(loaded))
	}
	if loaded[0].Version != 2 || loaded[1].Version != 3 {
		t.Fatalf("unexpected versions: %v", loaded)
	}
}

func TestReconstructBuildsDefaultAggregate(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	events := []es.Event{
		esfixtures.NewEvent().WithAggregateID("order-1").WithAggregateType("Order").
			WithEventType("OrderCreated").WithPayload(es.Values{"total": 10.0}).WithVersion(1).Build(),
		esfixtures.NewEvent().WithAggregateID("order-1").WithAggregateType("Order").
			WithEventType("OrderUpdated").WithPayload(es.Values{"total": 25.0}).WithVersion(2).Build(),
	}
	if _, err := store.Append(ctx, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	agg, err := store.Reconstruct(ctx, "order-1", "Order")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if agg.Version() != 2 {
		t.Fatalf("expected version 2, got %d", agg.Version())
	}
	total, ok := agg.State().GetFloat64("total")
	if !ok || total != 25.0 {
		t.Fatalf("expected total=25.0 in state, got %v (ok=%v)", total, ok)
	}
}

func TestReconstructUnknownAggregateReturnsZeroVersionSeed(t *testing.T) {
	store := newMemoryStore(t)
	agg, err := store.Reconstruct(context.Background(), "missing", "Order")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if agg.Version() != 0 {
		t.Fatalf("expected a version-0 seed aggregate for an unknown id, got version %d", agg.Version())
	}
}

func TestSnapshotShortCircuitsReplay(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	events := []es.Event{
		es.NewEvent("order-1", "Order", "OrderCreated", es.Values{"total": 10.0}, 1, ""),
		es.NewEvent("order-1", "Order", "OrderUpdated", es.Values{"total": 20.0}, 2, ""),
	}
	if _, err := store.Append(ctx, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap, err := store.CreateSnapshot(ctx, "order-1", "Order")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if snap == nil || snap.Version != 2 {
		t.Fatalf("expected snapshot at version 2, got %+v", snap)
	}

	more := []es.Event{es.NewEvent("order-1", "Order", "OrderUpdated", es.Values{"total": 30.0}, 3, "")}
	if _, err := store.Append(ctx, more); err != nil {
		t.Fatalf("Append: %v", err)
	}

	agg, err := store.Reconstruct(ctx, "order-1", "Order")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if agg.Version() != 3 {
		t.Fatalf("expected version 3 after replaying the tail past the snapshot, got %d", agg.Version())
	}
	total, _ := agg.State().GetFloat64("total")
	if total != 30.0 {
		t.Fatalf("expected total=30.0, got %v", total)
	}
}

func TestReconstructSeedsFromPreexistingSnapshot(t *testing.T) {
	store, backend := newMemoryStoreWithBackend(t)
	ctx := context.Background()

	history := []es.Event{
		es.NewEvent("order-1", "Order", "OrderCreated", es.Values{"total": 10.0}, 1, ""),
		es.NewEvent("order-1", "Order", "OrderUpdated", es.Values{"total": 20.0}, 2, ""),
	}
	if _, err := store.Append(ctx, history); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap := esfixtures.NewSnapshot().WithAggregateID("order-1").WithAggregateType("Order").
		WithVersion(2).WithState(es.Values{"total": 20.0}).Build()
	if err := backend.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	tail := esfixtures.NewEvent().WithAggregateID("order-1").WithAggregateType("Order").
		WithEventType("OrderUpdated").WithPayload(es.Values{"total": 35.0}).WithVersion(3).Build()
	if _, err := store.Append(ctx, []es.Event{tail}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	agg, err := store.Reconstruct(ctx, "order-1", "Order")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if agg.Version() != 3 {
		t.Fatalf("expected version 3 (snapshot version 2 plus the replayed tail), got %d", agg.Version())
	}
	total, _ := agg.State().GetFloat64("total")
	if total != 35.0 {
		t.Fatalf("expected total=35.0 after replaying the tail on top of the seeded snapshot, got %v", total)
	}
}

func TestCreateSnapshotOnMissingAggregateReturnsNilNil(t *testing.T) {
	store := newMemoryStore(t)
	snap, err := store.CreateSnapshot(context.Background(), "missing", "Order")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot, got %+v", snap)
	}
}
