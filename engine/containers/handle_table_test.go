package containers

import "testing"

type buffer struct{ name string }
type texture struct{ name string }

func TestHandleTableInsertGet(t *testing.T) {
	table := NewHandleTable[*buffer](4)
	b := &buffer{name: "vertices"}

	h := table.Insert(b)
	if h.IsInvalid() {
		t.Fatalf("expected a valid handle")
	}
	got, ok := table.TryGet(h)
	if !ok || got != b {
		t.Fatalf("TryGet returned %v, %v", got, ok)
	}
	if table.Count() != 1 || table.IsEmpty() {
		t.Fatalf("unexpected count %d", table.Count())
	}
}

func TestHandleTableStaleHandle(t *testing.T) {
	table := NewHandleTable[*buffer](4)
	first := table.Insert(&buffer{name: "a"})

	if _, ok := table.Remove(first); !ok {
		t.Fatalf("expected remove to succeed")
	}
	if _, ok := table.TryGet(first); ok {
		t.Fatalf("stale handle must not resolve")
	}
	if _, ok := table.Remove(first); ok {
		t.Fatalf("second remove must fail")
	}

	// the freed slot is reused with a new generation
	second := table.Insert(&buffer{name: "b"})
	if second.Index() != first.Index() {
		t.Fatalf("expected slot %d to be reused, got %d", first.Index(), second.Index())
	}
	if second.Generation() == first.Generation() {
		t.Fatalf("reused slot must carry a new generation")
	}
	if _, ok := table.TryGet(first); ok {
		t.Fatalf("stale handle resolved against a reused slot")
	}
	if v, ok := table.TryGet(second); !ok || v.name != "b" {
		t.Fatalf("expected b, got %v", v)
	}
}

func TestHandleTableZeroHandle(t *testing.T) {
	table := NewHandleTable[*texture](0)
	table.Insert(&texture{})

	var h Handle[*texture]
	if !h.IsInvalid() {
		t.Fatalf("zero handle must be invalid")
	}
	if table.Contains(h) {
		t.Fatalf("zero handle must not resolve")
	}
}

func TestHandleRawRoundTrip(t *testing.T) {
	table := NewHandleTable[int](0)
	for i := 0; i < 5; i++ {
		table.Insert(i)
	}
	h := table.Insert(42)
	back := HandleFromRaw[int](h.Raw())
	if back != h {
		t.Fatalf("expected %v, got %v", h, back)
	}
	if v, _ := table.TryGet(back); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestHandleTableRange(t *testing.T) {
	table := NewHandleTable[int](0)
	handles := make([]Handle[int], 0)
	for i := 0; i < 6; i++ {
		handles = append(handles, table.Insert(i))
	}
	table.Remove(handles[1])
	table.Remove(handles[4])

	sum := 0
	visited := 0
	table.Range(func(h Handle[int], v int) bool {
		sum += v
		visited++
		return true
	})
	if visited != 4 || sum != 0+2+3+5 {
		t.Fatalf("visited %d entries with sum %d", visited, sum)
	}

	visited = 0
	table.Range(func(h Handle[int], v int) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("range did not stop early")
	}
}
