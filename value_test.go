package eventsourcing_test

import (
	"testing"

	es "github.com/lattice-run/eventsourcing"
)

func TestValuesCloneIsIndependent(t *testing.T) {
	original := es.Values{"a": 1.0}
	clone := original.Clone()
	clone["a"] = 2.0

	if original["a"] != 1.0 {
		t.Fatalf("expected Clone to not affect the original, got %v", original["a"])
	}
}

func TestValuesMergeOverwritesExistingKeys(t *testing.T) {
	v := es.Values{"a": 1.0, "b": 2.0}
	v.Merge(es.Values{"b": 3.0, "c": 4.0})

	if v["a"] != 1.0 || v["b"] != 3.0 || v["c"] != 4.0 {
		t.Fatalf("unexpected merge result: %+v", v)
	}
}

func TestValuesTypedAccessors(t *testing.T) {
	v := es.Values{
		"name":   "order-1",
		"total":  10.0,
		"active": true,
		"nested": es.Values{"x": 1.0},
		"items":  []any{"a", "b"},
	}

	if s, ok := v.GetString("name"); !ok || s != "order-1" {
		t.Fatalf("GetString failed: %v, %v", s, ok)
	}
	if f, ok := v.GetFloat64("total"); !ok || f != 10.0 {
		t.Fatalf("GetFloat64 failed: %v, %v", f, ok)
	}
	if b, ok := v.GetBool("active"); !ok || !b {
		t.Fatalf("GetBool failed: %v, %v", b, ok)
	}
	if nested, ok := v.GetValues("nested"); !ok || nested["x"] != 1.0 {
		t.Fatalf("GetValues failed: %v, %v", nested, ok)
	}
	if items, ok := v.GetSlice("items"); !ok || len(items) != 2 {
		t.Fatalf("GetSlice failed: %v, %v", items, ok)
	}
	if _, ok := v.GetString("missing"); ok {
		t.Fatal("expected GetString on a missing key to report ok=false")
	}
}
