package vmtree

import "testing"

func TestMappingTableUpsertResolve(t *testing.T) {
	m := NewMappingTable(16, 4)
	if got := m.Resolve(7); got != 7 {
		t.Fatalf("resolve with no mapping: got %d, want 7 (identity)", got)
	}
	if err := m.Upsert(7, 42); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := m.Resolve(7); got != 42 {
		t.Fatalf("resolve after upsert: got %d, want 42", got)
	}
	if m.Count() != 1 {
		t.Fatalf("count: got %d, want 1", m.Count())
	}

	// Upserting the same prev again updates in place rather than growing.
	if err := m.Upsert(7, 99); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if got := m.Resolve(7); got != 99 {
		t.Fatalf("resolve after update: got %d, want 99", got)
	}
	if m.Count() != 1 {
		t.Fatalf("count after update: got %d, want 1", m.Count())
	}

	m.Remove(7)
	if got := m.Resolve(7); got != 7 {
		t.Fatalf("resolve after remove: got %d, want identity 7", got)
	}
	if m.Count() != 0 {
		t.Fatalf("count after remove: got %d, want 0", m.Count())
	}
}

func TestMappingTableOutOfSpace(t *testing.T) {
	// maxTries=1 with a single-slot table: the second distinct key whose
	// probe chain lands on the same bucket as an existing entry can't find
	// a free slot within its (length-1) probe budget.
	m := NewMappingTable(1, 1)
	if err := m.Upsert(0, 10); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := m.Upsert(1, 20); err != ErrOutOfMappingSpace {
		t.Fatalf("second upsert on a full 1-slot table: got %v, want ErrOutOfMappingSpace", err)
	}
}

func TestMappingTablePendingEdge(t *testing.T) {
	m := NewMappingTable(16, 4)
	m.SavePending(5, 500)
	if got := m.Resolve(5); got != 500 {
		t.Fatalf("resolve should honor a pending edge before it's upserted: got %d, want 500", got)
	}
	m.ClearPending()
	if got := m.Resolve(5); got != 5 {
		t.Fatalf("resolve after clearing pending: got %d, want identity 5", got)
	}
}

func TestMappingTableScan(t *testing.T) {
	m := NewMappingTable(16, 4)
	want := map[uint32]uint32{1: 11, 2: 22, 3: 33}
	for p, c := range want {
		if err := m.Upsert(p, c); err != nil {
			t.Fatalf("upsert(%d,%d): %v", p, c, err)
		}
	}
	got := map[uint32]uint32{}
	m.Scan(func(prev, curr uint32) { got[prev] = curr })
	if len(got) != len(want) {
		t.Fatalf("scan returned %d entries, want %d", len(got), len(want))
	}
	for p, c := range want {
		if got[p] != c {
			t.Fatalf("scan[%d] = %d, want %d", p, got[p], c)
		}
	}
}
