package frame_test

import (
	"errors"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/frame"
	"github.com/spaghettifunk/anima-gal/engine/renderer/null"
)

func newRing(t *testing.T, manual bool, framesInFlight int) (*frame.Ring, *null.Backend) {
	t.Helper()
	backend := null.New(null.Options{ManualFences: manual})
	ring, err := frame.NewRing(backend, frame.Config{
		FramesInFlight: framesInFlight,
		FenceTimeout:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRing() error = %v", err)
	}
	return ring, backend
}

func recordFrame(t *testing.T, ring *frame.Ring, onDelete func()) {
	t.Helper()
	if err := ring.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	if _, _, err := ring.CommandBuffer(); err != nil {
		t.Fatalf("CommandBuffer() error = %v", err)
	}
	if onDelete != nil {
		ring.DeleteLater(onDelete)
	}
	if err := ring.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
}

func TestDeletionWaitsForTheFrameFence(t *testing.T) {
	ring, backend := newRing(t, true, 2)

	deleted := false
	recordFrame(t, ring, func() { deleted = true })
	// the second slot has never been used, nothing to wait for
	recordFrame(t, ring, nil)

	// back on the first slot: its fence has not signaled
	err := ring.BeginFrame()
	if !errors.Is(err, core.ErrFenceTimeout) {
		t.Fatalf("BeginFrame() error = %v, want ErrFenceTimeout", err)
	}
	if deleted {
		t.Fatalf("deletion ran before the frame fence signaled")
	}

	backend.SignalFences()
	if err := ring.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	if !deleted {
		t.Fatalf("deletion did not run after the frame fence signaled")
	}
}

func TestDeletionSurvivesExtraEndFrame(t *testing.T) {
	ring, backend := newRing(t, true, 1)

	deleted := false
	if err := ring.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	ring.CommandBuffer()
	ring.DeleteLater(func() { deleted = true })
	if err := ring.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
	// EndFrame again without a successful BeginFrame in between
	if err := ring.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
	if deleted {
		t.Fatalf("deletion ran without waiting for the fence")
	}
	if err := ring.BeginFrame(); !errors.Is(err, core.ErrFenceTimeout) {
		t.Fatalf("BeginFrame() error = %v, want ErrFenceTimeout", err)
	}

	backend.SignalFences()
	if err := ring.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if !deleted {
		t.Fatalf("WaitIdle must run every pending deletion")
	}
}

func TestSubmitOrdersInitCommandBufferFirst(t *testing.T) {
	ring, backend := newRing(t, false, 2)

	if err := ring.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	main, created, err := ring.CommandBuffer()
	if err != nil || !created {
		t.Fatalf("CommandBuffer() = %v, %v", created, err)
	}
	if _, again, _ := ring.CommandBuffer(); again {
		t.Fatalf("second CommandBuffer() call must reuse the buffer")
	}
	initCB, err := ring.InitCommandBuffer()
	if err != nil {
		t.Fatalf("InitCommandBuffer() error = %v", err)
	}

	if _, err := ring.Submit(true); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	subs := backend.Submissions()
	if len(subs) != 1 || len(subs[0].CommandBuffers) != 2 {
		t.Fatalf("submissions = %+v", subs)
	}
	if subs[0].CommandBuffers[0] != initCB || subs[0].CommandBuffers[1] != main {
		t.Fatalf("init command buffer must be submitted before the main one")
	}
	if len(subs[0].SignalSemaphores) != 1 {
		t.Fatalf("signal submit must signal one semaphore")
	}

	// the next submission waits on the previous one
	ring.CommandBuffer()
	if err := ring.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
	subs = backend.Submissions()
	if len(subs) != 2 || len(subs[1].WaitSemaphores) != 1 || subs[1].WaitSemaphores[0] != subs[0].SignalSemaphores[0] {
		t.Fatalf("second submission must wait on the first one's semaphore")
	}
}

func TestEndFrameWithoutWorkSubmitsNothing(t *testing.T) {
	ring, backend := newRing(t, false, 3)
	for i := 0; i < 5; i++ {
		if err := ring.BeginFrame(); err != nil {
			t.Fatalf("BeginFrame() error = %v", err)
		}
		if err := ring.EndFrame(); err != nil {
			t.Fatalf("EndFrame() error = %v", err)
		}
	}
	if len(backend.Submissions()) != 0 {
		t.Fatalf("empty frames must not submit")
	}
	if ring.FrameCount() != 5 || ring.Index() != 2 {
		t.Fatalf("FrameCount() = %d, Index() = %d", ring.FrameCount(), ring.Index())
	}
}

func TestPooledObjectsAreRecycled(t *testing.T) {
	ring, backend := newRing(t, false, 2)
	for i := 0; i < 10; i++ {
		recordFrame(t, ring, nil)
	}
	fences, _, cbs := backend.LiveSyncObjects()
	if fences > 3 || cbs > 3 {
		t.Fatalf("fences = %d, command buffers = %d: pooled objects are not recycled", fences, cbs)
	}

	if err := ring.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	fences, semaphores, cbs := backend.LiveSyncObjects()
	if fences != 0 || semaphores != 0 || cbs != 0 {
		t.Fatalf("live after shutdown: fences=%d semaphores=%d cbs=%d", fences, semaphores, cbs)
	}
}

func TestNewRingValidation(t *testing.T) {
	if _, err := frame.NewRing(nil, frame.Config{FramesInFlight: 2}); !errors.Is(err, frame.ErrNilQueue) {
		t.Fatalf("NewRing(nil) error = %v", err)
	}
	if _, err := frame.NewRing(null.New(null.Options{}), frame.Config{}); err == nil {
		t.Fatalf("NewRing() with zero frames in flight must fail")
	}
}

func TestFailedSubmitKeepsTheSemaphoreChain(t *testing.T) {
	ring, backend := newRing(t, false, 2)

	if err := ring.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	ring.CommandBuffer()
	if _, err := ring.Submit(true); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	previous := backend.Submissions()[0].SignalSemaphores[0]

	acquire := &null.Semaphore{ID: 1 << 40}
	ring.AddWaitSemaphore(acquire)
	failed, _, _ := ring.CommandBuffer()
	backend.FailNextSubmits(1)
	if _, err := ring.Submit(true); !errors.Is(err, null.ErrInjectedFailure) {
		t.Fatalf("Submit() error = %v, want ErrInjectedFailure", err)
	}
	if n := len(backend.Submissions()); n != 1 {
		t.Fatalf("submissions = %d, want 1", n)
	}

	// the retried frame adds its acquire semaphore again
	ring.AddWaitSemaphore(acquire)
	cb, created, err := ring.CommandBuffer()
	if err != nil || !created || cb == failed {
		t.Fatalf("CommandBuffer() after a failed submit = %v, created %v, err %v; want a fresh one", cb, created, err)
	}
	if _, err := ring.Submit(false); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	subs := backend.Submissions()
	if len(subs) != 2 {
		t.Fatalf("submissions = %d, want 2", len(subs))
	}
	waits := subs[1].WaitSemaphores
	if len(waits) != 2 || waits[0] != previous || waits[1] != acquire {
		t.Fatalf("retry waits on %v, want the previous submission's semaphore and the acquire semaphore", waits)
	}

	if err := ring.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	fences, semaphores, cbs := backend.LiveSyncObjects()
	if fences != 0 || semaphores != 0 || cbs != 0 {
		t.Fatalf("live after shutdown: fences=%d semaphores=%d cbs=%d", fences, semaphores, cbs)
	}
}
