package frame

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spaghettifunk/anima-gal/engine/containers"
	"github.com/spaghettifunk/anima-gal/engine/core"
)

const poolCapacity = 64

var ErrNilQueue = errors.New("frame: queue is nil")

type reclaimKind uint8

const (
	reclaimCommandBuffer reclaimKind = iota
	reclaimFence
	reclaimSemaphore
)

type reclaimEntry struct {
	kind   reclaimKind
	native any
}

type slot struct {
	fences []any

	pendingDeletions         []func()
	pendingDeletionsPrevious []func()

	reclaim         []reclaimEntry
	reclaimPrevious []reclaimEntry

	commandBuffer     any
	initCommandBuffer any
}

type Config struct {
	FramesInFlight int
	FenceTimeout   time.Duration
}

type Stats struct {
	FrameCount       uint64
	Submissions      uint64
	PendingDeletions int
	PooledFences     int
	PooledSemaphores int
}

/**
 * @brief Fixed ring of frame slots. A slot's deletions and pooled objects are
 * only released once the fences of its previous use have signaled.
 * Single owner: not safe for concurrent use.
 */
type Ring struct {
	queue   Queue
	slots   []slot
	current int
	timeout time.Duration

	frameCount  uint64
	submissions uint64

	commandBuffers *containers.RingQueue[any]
	fences         *containers.RingQueue[any]
	semaphores     *containers.RingQueue[any]

	lastFinishedSemaphore any
	extraWait             []any
	extraSignal           []any
}

func NewRing(queue Queue, config Config) (*Ring, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if config.FramesInFlight < 1 {
		return nil, fmt.Errorf("frame: frames in flight must be at least 1, got %d", config.FramesInFlight)
	}
	return &Ring{
		queue:          queue,
		slots:          make([]slot, config.FramesInFlight),
		timeout:        config.FenceTimeout,
		commandBuffers: containers.NewRingQueue[any](poolCapacity),
		fences:         containers.NewRingQueue[any](poolCapacity),
		semaphores:     containers.NewRingQueue[any](poolCapacity),
	}, nil
}

func (r *Ring) slot() *slot {
	return &r.slots[r.current]
}

func (r *Ring) FramesInFlight() int {
	return len(r.slots)
}

// Index returns the slot used by the current frame.
func (r *Ring) Index() int {
	return r.current
}

func (r *Ring) FrameCount() uint64 {
	return r.frameCount
}

// BeginFrame waits for the fences of the slot's previous use, then releases
// everything that was deferred during that use. On timeout nothing is
// released and the wrapped core.ErrFenceTimeout is returned.
func (r *Ring) BeginFrame() error {
	s := r.slot()
	if len(s.fences) > 0 {
		if err := r.queue.WaitForFences(s.fences, r.timeout); err != nil {
			return fmt.Errorf("frame %d (slot %d): %w", r.frameCount, r.current, err)
		}
		s.fences = s.fences[:0]
	}
	r.drain(&s.pendingDeletionsPrevious, &s.reclaimPrevious)
	return nil
}

func (r *Ring) drain(deletions *[]func(), reclaim *[]reclaimEntry) {
	// deletions may schedule more deletions
	for i := 0; i < len(*deletions); i++ {
		(*deletions)[i]()
	}
	*deletions = (*deletions)[:0]

	for _, e := range *reclaim {
		r.recycle(e)
	}
	*reclaim = (*reclaim)[:0]
}

func (r *Ring) recycle(e reclaimEntry) {
	switch e.kind {
	case reclaimCommandBuffer:
		if r.commandBuffers.Enqueue(e.native) != nil {
			r.queue.FreeCommandBuffer(e.native)
		}
	case reclaimFence:
		if err := r.queue.ResetFence(e.native); err != nil {
			core.LogWarn("failed to reset fence: %s", err)
			r.queue.DestroyFence(e.native)
			return
		}
		if r.fences.Enqueue(e.native) != nil {
			r.queue.DestroyFence(e.native)
		}
	case reclaimSemaphore:
		if r.semaphores.Enqueue(e.native) != nil {
			r.queue.DestroySemaphore(e.native)
		}
	}
}

// DeleteLater runs fn once the GPU can no longer reference anything recorded
// so far.
func (r *Ring) DeleteLater(fn func()) {
	s := r.slot()
	s.pendingDeletions = append(s.pendingDeletions, fn)
}

func (r *Ring) reclaimLater(kind reclaimKind, native any) {
	s := r.slot()
	s.reclaim = append(s.reclaim, reclaimEntry{kind: kind, native: native})
}

func (r *Ring) allocateCommandBuffer() (any, error) {
	cb, err := r.commandBuffers.Dequeue()
	if err != nil {
		cb, err = r.queue.AllocateCommandBuffer()
		if err != nil {
			return nil, err
		}
	}
	if err := r.queue.BeginCommandBuffer(cb); err != nil {
		r.queue.FreeCommandBuffer(cb)
		return nil, err
	}
	return cb, nil
}

// CommandBuffer returns the frame's command buffer, beginning a new one on
// first use. created reports whether it was just begun, in which case any
// state previously recorded must be re-emitted.
func (r *Ring) CommandBuffer() (cb any, created bool, err error) {
	s := r.slot()
	if s.commandBuffer != nil {
		return s.commandBuffer, false, nil
	}
	cb, err = r.allocateCommandBuffer()
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin command buffer: %w", err)
	}
	s.commandBuffer = cb
	return cb, true, nil
}

// HasCommandBuffer reports whether work was recorded in the current frame.
func (r *Ring) HasCommandBuffer() bool {
	s := r.slot()
	return s.commandBuffer != nil || s.initCommandBuffer != nil
}

// InitCommandBuffer returns the upload command buffer. It is submitted ahead
// of the main command buffer in the same batch.
func (r *Ring) InitCommandBuffer() (any, error) {
	s := r.slot()
	if s.initCommandBuffer != nil {
		return s.initCommandBuffer, nil
	}
	cb, err := r.allocateCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to begin init command buffer: %w", err)
	}
	s.initCommandBuffer = cb
	return cb, nil
}

// AddWaitSemaphore makes the next submission wait on a semaphore the ring
// does not own, such as a swap chain acquire semaphore.
func (r *Ring) AddWaitSemaphore(semaphore any) {
	if slices.Contains(r.extraWait, semaphore) {
		return
	}
	r.extraWait = append(r.extraWait, semaphore)
}

// AddSignalSemaphore makes the next submission signal a semaphore the ring
// does not own. Semaphores left by a failed submission carry over.
func (r *Ring) AddSignalSemaphore(semaphore any) {
	if slices.Contains(r.extraSignal, semaphore) {
		return
	}
	r.extraSignal = append(r.extraSignal, semaphore)
}

func (r *Ring) semaphore() (any, error) {
	if s, err := r.semaphores.Dequeue(); err == nil {
		return s, nil
	}
	return r.queue.CreateSemaphore()
}

func (r *Ring) fence() (any, error) {
	if f, err := r.fences.Dequeue(); err == nil {
		return f, nil
	}
	return r.queue.CreateFence()
}

// Submit ends and submits the init and main command buffers. When signal is
// set the next submission waits for this one. The returned fence signals
// once the GPU finished the batch. On failure the recorded work is dropped
// and the semaphore chain is left as it was.
func (r *Ring) Submit(signal bool) (any, error) {
	s := r.slot()

	info := &SubmitInfo{}
	for _, cb := range []any{s.initCommandBuffer, s.commandBuffer} {
		if cb == nil {
			continue
		}
		if err := r.queue.EndCommandBuffer(cb); err != nil {
			r.discardCommandBuffers(s)
			err = fmt.Errorf("failed to end command buffer: %w", err)
			core.LogError("%s", err)
			return nil, err
		}
		info.CommandBuffers = append(info.CommandBuffers, cb)
	}

	if r.lastFinishedSemaphore != nil {
		info.WaitSemaphores = append(info.WaitSemaphores, r.lastFinishedSemaphore)
	}
	info.WaitSemaphores = append(info.WaitSemaphores, r.extraWait...)
	info.SignalSemaphores = append(info.SignalSemaphores, r.extraSignal...)

	var sem any
	if signal {
		var err error
		if sem, err = r.semaphore(); err != nil {
			r.discardCommandBuffers(s)
			err = fmt.Errorf("failed to create semaphore: %w", err)
			core.LogError("%s", err)
			return nil, err
		}
		info.SignalSemaphores = append(info.SignalSemaphores, sem)
	}

	fence, err := r.fence()
	if err != nil {
		r.releaseSemaphore(sem)
		r.discardCommandBuffers(s)
		err = fmt.Errorf("failed to create fence: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	info.Fence = fence

	if err := r.queue.Submit(info); err != nil {
		// never seen by the GPU: unsignaled and safe to pool again
		if r.fences.Enqueue(fence) != nil {
			r.queue.DestroyFence(fence)
		}
		r.releaseSemaphore(sem)
		r.discardCommandBuffers(s)
		err = fmt.Errorf("queue submit failed: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	r.submissions++

	if r.lastFinishedSemaphore != nil {
		r.reclaimLater(reclaimSemaphore, r.lastFinishedSemaphore)
		r.lastFinishedSemaphore = nil
	}
	if signal {
		r.lastFinishedSemaphore = sem
	}
	r.extraWait = r.extraWait[:0]
	r.extraSignal = r.extraSignal[:0]

	s.fences = append(s.fences, fence)
	r.reclaimLater(reclaimFence, fence)
	for _, cb := range info.CommandBuffers {
		r.reclaimLater(reclaimCommandBuffer, cb)
	}
	s.commandBuffer = nil
	s.initCommandBuffer = nil
	return fence, nil
}

// discardCommandBuffers frees the slot's command buffers after a failed
// submission. The next CommandBuffer call begins a fresh one.
func (r *Ring) discardCommandBuffers(s *slot) {
	for _, cb := range []any{s.initCommandBuffer, s.commandBuffer} {
		if cb != nil {
			r.queue.FreeCommandBuffer(cb)
		}
	}
	s.commandBuffer = nil
	s.initCommandBuffer = nil
}

func (r *Ring) releaseSemaphore(sem any) {
	if sem == nil {
		return
	}
	if r.semaphores.Enqueue(sem) != nil {
		r.queue.DestroySemaphore(sem)
	}
}

// EndFrame submits pending work, hands the slot's lists to the next use of
// the slot and advances the ring.
func (r *Ring) EndFrame() error {
	var err error
	if r.HasCommandBuffer() {
		_, err = r.Submit(false)
	}

	s := r.slot()
	s.pendingDeletions, s.pendingDeletionsPrevious = s.pendingDeletionsPrevious, s.pendingDeletions
	s.reclaim, s.reclaimPrevious = s.reclaimPrevious, s.reclaim

	r.current = (r.current + 1) % len(r.slots)
	r.frameCount++
	return err
}

// WaitIdle blocks until the GPU is idle, then releases everything deferred
// in every slot.
func (r *Ring) WaitIdle() error {
	if err := r.queue.WaitIdle(); err != nil {
		return err
	}
	for i := range r.slots {
		s := &r.slots[i]
		s.fences = s.fences[:0]
		r.drain(&s.pendingDeletionsPrevious, &s.reclaimPrevious)
		r.drain(&s.pendingDeletions, &s.reclaim)
	}
	return nil
}

// Shutdown waits for the GPU and destroys every pooled object.
func (r *Ring) Shutdown() error {
	err := r.WaitIdle()

	for i := range r.slots {
		s := &r.slots[i]
		for _, cb := range []any{s.commandBuffer, s.initCommandBuffer} {
			if cb != nil {
				r.queue.FreeCommandBuffer(cb)
			}
		}
		s.commandBuffer, s.initCommandBuffer = nil, nil
	}
	for cb, e := r.commandBuffers.Dequeue(); e == nil; cb, e = r.commandBuffers.Dequeue() {
		r.queue.FreeCommandBuffer(cb)
	}
	for f, e := r.fences.Dequeue(); e == nil; f, e = r.fences.Dequeue() {
		r.queue.DestroyFence(f)
	}
	for sem, e := r.semaphores.Dequeue(); e == nil; sem, e = r.semaphores.Dequeue() {
		r.queue.DestroySemaphore(sem)
	}
	if r.lastFinishedSemaphore != nil {
		r.queue.DestroySemaphore(r.lastFinishedSemaphore)
		r.lastFinishedSemaphore = nil
	}
	return err
}

func (r *Ring) Stats() Stats {
	pending := 0
	for i := range r.slots {
		pending += len(r.slots[i].pendingDeletions) + len(r.slots[i].pendingDeletionsPrevious)
	}
	return Stats{
		FrameCount:       r.frameCount,
		Submissions:      r.submissions,
		PendingDeletions: pending,
		PooledFences:     r.fences.Len(),
		PooledSemaphores: r.semaphores.Len(),
	}
}
