package containers

import "fmt"

// Handle identifies a slot in a HandleTable. The type parameter only tags the
// handle with the kind of object it refers to so that handles of different
// tables cannot be mixed up. The zero value is the invalid handle.
type Handle[T any] struct {
	index      uint32
	generation uint32
}

func HandleFromRaw[T any](raw uint64) Handle[T] {
	return Handle[T]{
		index:      uint32(raw),
		generation: uint32(raw >> 32),
	}
}

func (h Handle[T]) IsInvalid() bool {
	return h.generation == 0
}

func (h Handle[T]) Index() uint32 {
	return h.index
}

func (h Handle[T]) Generation() uint32 {
	return h.generation
}

// Raw packs the handle as generation<<32 | index.
func (h Handle[T]) Raw() uint64 {
	return uint64(h.generation)<<32 | uint64(h.index)
}

func (h Handle[T]) String() string {
	if h.IsInvalid() {
		return "handle(invalid)"
	}
	return fmt.Sprintf("handle(%d:%d)", h.index, h.generation)
}

type handleEntry[T any] struct {
	value      T
	generation uint32
	used       bool
}

// HandleTable is a slot array addressed by (index, generation). Removing an
// entry bumps the slot generation, so handles to the removed entry no longer
// resolve even after the slot is reused.
type HandleTable[T any] struct {
	entries  []handleEntry[T]
	freeList []uint32
	count    int
}

func NewHandleTable[T any](capacity int) *HandleTable[T] {
	return &HandleTable[T]{
		entries:  make([]handleEntry[T], 0, capacity),
		freeList: make([]uint32, 0, capacity),
	}
}

func (t *HandleTable[T]) Insert(value T) Handle[T] {
	var index uint32
	if n := len(t.freeList); n > 0 {
		index = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		index = uint32(len(t.entries))
		t.entries = append(t.entries, handleEntry[T]{generation: 1})
	}

	e := &t.entries[index]
	e.value = value
	e.used = true
	t.count++

	return Handle[T]{index: index, generation: e.generation}
}

// Remove deletes the entry behind h and returns it. Stale or invalid handles
// report false and leave the table untouched.
func (t *HandleTable[T]) Remove(h Handle[T]) (T, bool) {
	var zero T
	e := t.lookup(h)
	if e == nil {
		return zero, false
	}

	value := e.value
	e.value = zero
	e.used = false
	e.generation++
	if e.generation == 0 {
		e.generation = 1
	}
	t.freeList = append(t.freeList, h.index)
	t.count--

	return value, true
}

func (t *HandleTable[T]) TryGet(h Handle[T]) (T, bool) {
	e := t.lookup(h)
	if e == nil {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (t *HandleTable[T]) Contains(h Handle[T]) bool {
	return t.lookup(h) != nil
}

func (t *HandleTable[T]) Count() int {
	return t.count
}

func (t *HandleTable[T]) IsEmpty() bool {
	return t.count == 0
}

// Range calls fn for every live entry in slot order until fn returns false.
func (t *HandleTable[T]) Range(fn func(h Handle[T], value T) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.used {
			continue
		}
		if !fn(Handle[T]{index: uint32(i), generation: e.generation}, e.value) {
			return
		}
	}
}

func (t *HandleTable[T]) lookup(h Handle[T]) *handleEntry[T] {
	if h.IsInvalid() || int(h.index) >= len(t.entries) {
		return nil
	}
	e := &t.entries[h.index]
	if !e.used || e.generation != h.generation {
		return nil
	}
	return e
}
