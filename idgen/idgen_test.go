package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	gen := UUIDv7()
	id := gen()
	// UUID format: 8-4-4-4-12
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	// v7 ids embed a millisecond timestamp with a monotonic sequence, so
	// creation order and lexical order agree within a process.
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 50; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: id %q not greater than predecessor %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("run_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("Prefixed: expected prefix 'run_', got %q", id)
	}
	if len(id) != 4+36 {
		t.Fatalf("Prefixed: expected length 40, got %d", len(id))
	}
}

func TestSequential(t *testing.T) {
	gen := Sequential("anm_")
	for i, want := range []string{"anm_1", "anm_2", "anm_3"} {
		if got := gen(); got != want {
			t.Fatalf("Sequential call %d: got %q, want %q", i+1, got, want)
		}
	}
	// Independent generators count independently.
	other := Sequential("anm_")
	if got := other(); got != "anm_1" {
		t.Fatalf("fresh Sequential: got %q, want anm_1", got)
	}
}

func TestNew_IsUUIDv7(t *testing.T) {
	id := New()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("New: expected UUID shape, got %q", id)
	}
}
