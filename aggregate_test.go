package eventsourcing_test

import (
	"testing"

	es "github.com/lattice-run/eventsourcing"
)

func TestRaiseEventAdvancesVersionAndAppliesLocally(t *testing.T) {
	agg := es.NewDefaultAggregate("order-1", "Order")

	evt := es.RaiseEvent(agg, "OrderCreated", es.Values{"total": 10.0}, "")
	if evt.Version != 1 {
		t.Fatalf("expected version 1, got %d", evt.Version)
	}
	if agg.Version() != 1 {
		t.Fatalf("expected aggregate version 1, got %d", agg.Version())
	}
	total, ok := agg.State().GetFloat64("total")
	if !ok || total != 10.0 {
		t.Fatalf("expected total=10.0 applied locally, got %v", total)
	}

	evt2 := es.RaiseEvent(agg, "OrderUpdated", es.Values{"total": 20.0}, "")
	if evt2.Version != 2 {
		t.Fatalf("expected version 2, got %d", evt2.Version)
	}
}

func TestDefaultAggregateApplyFoldsNestedPayload(t *testing.T) {
	agg := es.NewDefaultAggregate("order-1", "Order")
	agg.Apply(es.NewEvent("order-1", "Order", "OrderCreated", es.Values{
		"total": 10.0,
		"items": []any{"a", "b"},
		"meta":  es.Values{"nested": true},
	}, 1, ""))

	items, ok := agg.State().GetSlice("items")
	if !ok || len(items) != 2 {
		t.Fatalf("expected nested slice to be folded into state, got %v (ok=%v)", items, ok)
	}
	meta, ok := agg.State().GetValues("meta")
	if !ok || meta["nested"] != true {
		t.Fatalf("expected nested map to be folded into state, got %v (ok=%v)", meta, ok)
	}
	total, ok := agg.State().GetFloat64("total")
	if !ok || total != 10.0 {
		t.Fatalf("expected scalar total to be applied, got %v", total)
	}
}

type counterAggregate struct {
	*es.DefaultAggregate
	seen int
}

func (c *counterAggregate) Apply(event es.Event) {
	c.seen++
	c.DefaultAggregate.Apply(event)
}

func TestAggregateFactoryRegistrationIsRespected(t *testing.T) {
	store := newMemoryStore(t)
	if err := store.RegisterAggregateFactory("Counter", func(id string) es.Aggregate {
		return &counterAggregate{DefaultAggregate: es.NewDefaultAggregate(id, "Counter")}
	}); err != nil {
		t.Fatalf("RegisterAggregateFactory: %v", err)
	}

	ctx := t.Context()
	events := []es.Event{es.NewEvent("c-1", "Counter", "Incremented", es.Values{"n": 1.0}, 1, "")}
	if _, err := store.Append(ctx, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	agg, err := store.Reconstruct(ctx, "c-1", "Counter")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	counter, ok := agg.(*counterAggregate)
	if !ok {
		t.Fatalf("expected *counterAggregate, got %T", agg)
	}
	if counter.seen != 1 {
		t.Fatalf("expected the registered factory's Apply override to run, got seen=%d", counter.seen)
	}
}

type walletAggregate struct {
	*es.DefaultAggregate
	hydrate func(es.Values, es.Event)
}

func newWalletAggregate(id string) es.Aggregate {
	w := &walletAggregate{DefaultAggregate: es.NewDefaultAggregate(id, "Wallet")}
	w.hydrate = es.Hydrate(
		es.OnState("Deposited", func(state es.Values, event es.Event) {
			amount, _ := event.Payload.GetFloat64("amount")
			balance, _ := state.GetFloat64("balance")
			state["balance"] = balance + amount
		}),
		es.OnState("Withdrawn", func(state es.Values, event es.Event) {
			amount, _ := event.Payload.GetFloat64("amount")
			balance, _ := state.GetFloat64("balance")
			state["balance"] = balance - amount
		}),
	)
	return w
}

func (w *walletAggregate) Apply(event es.Event) {
	w.hydrate(w.State(), event)
	w.DefaultAggregate.Apply(event)
}

func TestHydrateComposesStateHandlersForDomainTypedAggregate(t *testing.T) {
	store := newMemoryStore(t)
	if err := store.RegisterAggregateFactory("Wallet", newWalletAggregate); err != nil {
		t.Fatalf("RegisterAggregateFactory: %v", err)
	}

	ctx := t.Context()
	events := []es.Event{
		es.NewEvent("w-1", "Wallet", "Deposited", es.Values{"amount": 100.0}, 1, ""),
		es.NewEvent("w-1", "Wallet", "Withdrawn", es.Values{"amount": 40.0}, 2, ""),
	}
	if _, err := store.Append(ctx, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	agg, err := store.Reconstruct(ctx, "w-1", "Wallet")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	wallet, ok := agg.(*walletAggregate)
	if !ok {
		t.Fatalf("expected *walletAggregate, got %T", agg)
	}
	balance, ok := wallet.State().GetFloat64("balance")
	if !ok || balance != 60.0 {
		t.Fatalf("expected balance=60.0 after deposit+withdrawal folded via Hydrate, got %v (ok=%v)", balance, ok)
	}
	if wallet.Version() != 2 {
		t.Fatalf("expected version 2, got %d", wallet.Version())
	}
}

func TestRegisterAggregateFactoryRejectsDuplicate(t *testing.T) {
	store := newMemoryStore(t)
	factory := func(id string) es.Aggregate { return es.NewDefaultAggregate(id, "Order") }

	if err := store.RegisterAggregateFactory("Order", factory); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	err := store.RegisterAggregateFactory("Order", factory)
	if err == nil {
		t.Fatal("expected an error registering the same aggregate type twice")
	}
}
