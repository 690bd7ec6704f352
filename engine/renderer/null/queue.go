package null

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/frame"
)

type CommandBuffer struct {
	ID        uint64
	Recording bool
	Commands  []Command
}

type Fence struct {
	ID       uint64
	signaled chan struct{}
}

func (f *Fence) IsSignaled() bool {
	select {
	case <-f.signaled:
		return true
	default:
		return false
	}
}

type Semaphore struct {
	ID uint64
}

type queueState struct {
	unsignaled  []*Fence
	submissions []frame.SubmitInfo
	liveFences  int
	liveSemas   int
	liveBuffers int
	fenceResets int
}

func (b *Backend) AllocateCommandBuffer() (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.liveBuffers++
	return &CommandBuffer{ID: b.nextID.Add(1)}, nil
}

func asCommandBuffer(cb any) (*CommandBuffer, error) {
	c, ok := cb.(*CommandBuffer)
	if !ok || c == nil {
		return nil, fmt.Errorf("null: unexpected command buffer %T", cb)
	}
	return c, nil
}

func (b *Backend) BeginCommandBuffer(cb any) error {
	c, err := asCommandBuffer(cb)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.Recording {
		return errors.New("null: command buffer is already recording")
	}
	c.Recording = true
	c.Commands = c.Commands[:0]
	return nil
}

func (b *Backend) EndCommandBuffer(cb any) error {
	c, err := asCommandBuffer(cb)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !c.Recording {
		return errors.New("null: command buffer is not recording")
	}
	c.Recording = false
	return nil
}

func (b *Backend) FreeCommandBuffer(any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.liveBuffers--
}

func (b *Backend) CreateFence() (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.liveFences++
	return &Fence{ID: b.nextID.Add(1), signaled: make(chan struct{})}, nil
}

func (b *Backend) ResetFence(fence any) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("null: unexpected fence %T", fence)
	}
	if !f.IsSignaled() {
		return errors.New("null: resetting a fence that is still in flight")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	f.signaled = make(chan struct{})
	b.queue.fenceResets++
	return nil
}

func (b *Backend) DestroyFence(any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.liveFences--
}

func (b *Backend) WaitForFences(fences []any, timeout time.Duration) error {
	deadline := time.After(timeout)
	for _, fence := range fences {
		f, ok := fence.(*Fence)
		if !ok {
			return fmt.Errorf("null: unexpected fence %T", fence)
		}
		b.mu.Lock()
		signaled := f.signaled
		b.mu.Unlock()
		select {
		case <-signaled:
		case <-deadline:
			return core.ErrFenceTimeout
		}
	}
	return nil
}

func (b *Backend) CreateSemaphore() (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.liveSemas++
	return &Semaphore{ID: b.nextID.Add(1)}, nil
}

func (b *Backend) DestroySemaphore(any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.liveSemas--
}

func (b *Backend) Submit(info *frame.SubmitInfo) error {
	for _, cb := range info.CommandBuffers {
		c, err := asCommandBuffer(cb)
		if err != nil {
			return err
		}
		if c.Recording {
			return fmt.Errorf("null: command buffer %d submitted while recording", c.ID)
		}
	}
	f, ok := info.Fence.(*Fence)
	if info.Fence != nil && !ok {
		return fmt.Errorf("null: unexpected fence %T", info.Fence)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSubmits > 0 {
		b.failSubmits--
		return ErrInjectedFailure
	}
	b.queue.submissions = append(b.queue.submissions, *info)
	if f == nil {
		return nil
	}
	if b.options.ManualFences {
		b.queue.unsignaled = append(b.queue.unsignaled, f)
	} else {
		close(f.signaled)
	}
	return nil
}

func (b *Backend) WaitIdle() error {
	b.SignalFences()
	return nil
}

// SignalFences completes every submission made so far.
func (b *Backend) SignalFences() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.queue.unsignaled {
		close(f.signaled)
	}
	b.queue.unsignaled = b.queue.unsignaled[:0]
}

// Submissions returns every submission made so far, oldest first.
func (b *Backend) Submissions() []frame.SubmitInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]frame.SubmitInfo(nil), b.queue.submissions...)
}

// LiveSyncObjects returns the number of live fences, semaphores and command
// buffers.
func (b *Backend) LiveSyncObjects() (fences, semaphores, commandBuffers int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.liveFences, b.queue.liveSemas, b.queue.liveBuffers
}
