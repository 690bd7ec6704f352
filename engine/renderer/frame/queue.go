package frame

import "time"

/**
 * @brief One queue submission. The command buffers execute in order.
 */
type SubmitInfo struct {
	CommandBuffers   []any
	WaitSemaphores   []any
	SignalSemaphores []any
	Fence            any
}

/**
 * @brief The backend side of frame pacing: command buffers, fences,
 * semaphores and submission.
 */
type Queue interface {
	AllocateCommandBuffer() (any, error)
	// BeginCommandBuffer starts recording. A recycled command buffer is reset
	// implicitly.
	BeginCommandBuffer(cb any) error
	EndCommandBuffer(cb any) error
	FreeCommandBuffer(cb any)

	CreateFence() (any, error)
	ResetFence(fence any) error
	DestroyFence(fence any)
	// WaitForFences blocks until all fences are signaled. It returns
	// core.ErrFenceTimeout when the timeout expires first.
	WaitForFences(fences []any, timeout time.Duration) error

	CreateSemaphore() (any, error)
	DestroySemaphore(semaphore any)

	Submit(info *SubmitInfo) error
	WaitIdle() error
}
