package containers

import (
	"errors"
	"testing"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[string](2)
	if err := q.Enqueue("a"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue("b"); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue("c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if v, _ := q.Peek(); v != "a" {
		t.Fatalf("peek returned %q", v)
	}
	if v, _ := q.Dequeue(); v != "a" {
		t.Fatalf("dequeue returned %q", v)
	}
	if err := q.Enqueue("c"); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 elements, got %d", q.Len())
	}
	for _, want := range []string{"b", "c"} {
		if v, err := q.Dequeue(); err != nil || v != want {
			t.Fatalf("expected %q, got %q (%v)", want, v, err)
		}
	}
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
}
