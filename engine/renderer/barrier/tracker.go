package barrier

import "sync/atomic"

/**
 * @brief Tracks the last known state of every resource touched by a recording
 * stream and batches the transitions required to reach the next use.
 * Not safe for concurrent use; owned by one command encoder. Stats may be
 * read from any goroutine.
 */
type Tracker[K comparable] struct {
	states  map[K]State
	pending []Barrier[K]
	/** @brief Index into pending per key, so repeated transitions coalesce. */
	pendingIndex map[K]int
	full         bool

	flushes  atomic.Uint64
	barriers atomic.Uint64
}

func NewTracker[K comparable]() *Tracker[K] {
	return &Tracker[K]{
		states:       make(map[K]State),
		pendingIndex: make(map[K]int),
	}
}

// EnsureAccess records whatever is needed so that the resource can be used
// with the wanted state. It returns true when a transition was added to the
// batch. A read following a read in the same layout only widens the known
// state. When discard is set the previous content is not preserved.
func (t *Tracker[K]) EnsureAccess(key K, native any, want State, discard bool) bool {
	current := t.states[key]

	if !current.Access.IsWrite() && !want.Access.IsWrite() && current.Layout == want.Layout && current.Access != AccessNone {
		merged := State{
			Stages: current.Stages | want.Stages,
			Access: current.Access | want.Access,
			Layout: current.Layout,
		}
		t.states[key] = merged
		if i, ok := t.pendingIndex[key]; ok {
			t.pending[i].After = merged
		}
		return false
	}

	if i, ok := t.pendingIndex[key]; ok {
		// first Before, last After
		t.pending[i].After = want
		t.pending[i].Discard = t.pending[i].Discard && discard
	} else {
		before := current
		if discard {
			before.Layout = LayoutUndefined
		}
		t.pendingIndex[key] = len(t.pending)
		t.pending = append(t.pending, Barrier[K]{
			Key:     key,
			Native:  native,
			Before:  before,
			After:   want,
			Discard: discard,
		})
	}
	t.states[key] = want
	return true
}

// SetState overrides the known state without recording a barrier, e.g. after
// a render pass left an attachment in its final layout.
func (t *Tracker[K]) SetState(key K, state State) {
	t.states[key] = state
}

func (t *Tracker[K]) State(key K) (State, bool) {
	s, ok := t.states[key]
	return s, ok
}

// Forget drops everything known about a resource. Pending transitions of the
// resource are removed from the batch.
func (t *Tracker[K]) Forget(key K) {
	delete(t.states, key)
	i, ok := t.pendingIndex[key]
	if !ok {
		return
	}
	t.pending = append(t.pending[:i], t.pending[i+1:]...)
	delete(t.pendingIndex, key)
	for j := i; j < len(t.pending); j++ {
		t.pendingIndex[t.pending[j].Key] = j
	}
}

func (t *Tracker[K]) AddFullBarrier() {
	t.full = true
}

func (t *Tracker[K]) IsDirty() bool {
	return t.full || len(t.pending) > 0
}

func (t *Tracker[K]) PendingCount() int {
	return len(t.pending)
}

// Flush hands the batched work to apply and clears the batch. It returns
// false when there was nothing to flush.
func (t *Tracker[K]) Flush(apply func(batch Batch[K])) bool {
	if !t.IsDirty() {
		return false
	}
	batch := Batch[K]{Barriers: t.pending, Full: t.full}
	apply(batch)

	t.flushes.Add(1)
	t.barriers.Add(uint64(len(t.pending)))
	t.pending = nil
	t.full = false
	clear(t.pendingIndex)
	return true
}

// Reset forgets all known states and pending work.
func (t *Tracker[K]) Reset() {
	clear(t.states)
	clear(t.pendingIndex)
	t.pending = nil
	t.full = false
}

func (t *Tracker[K]) Stats() (flushes, barriers uint64) {
	return t.flushes.Load(), t.barriers.Load()
}
