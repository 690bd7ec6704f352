package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
)

type Fence struct {
	Handle vk.Fence
}

type Semaphore struct {
	Handle vk.Semaphore
}

func asFence(native any) (*Fence, error) {
	f, ok := native.(*Fence)
	if !ok || f == nil {
		return nil, fmt.Errorf("vulkan: unexpected fence %T: %w", native, core.ErrInvalidHandle)
	}
	return f, nil
}

func asSemaphore(native any) (*Semaphore, error) {
	s, ok := native.(*Semaphore)
	if !ok || s == nil {
		return nil, fmt.Errorf("vulkan: unexpected semaphore %T: %w", native, core.ErrInvalidHandle)
	}
	return s, nil
}

// CreateFence returns an unsignaled fence. The frame ring only waits on
// fences it submitted.
func (b *Backend) CreateFence() (any, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var handle vk.Fence
	if res := vk.CreateFence(b.device, &fenceCreateInfo, b.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create fence: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	return &Fence{Handle: handle}, nil
}

func (b *Backend) ResetFence(native any) error {
	f, err := asFence(native)
	if err != nil {
		return err
	}
	if res := vk.ResetFences(b.device, 1, []vk.Fence{f.Handle}); res != vk.Success {
		err := fmt.Errorf("failed to reset fence: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (b *Backend) DestroyFence(native any) {
	f, err := asFence(native)
	if err != nil || f.Handle == nil {
		return
	}
	vk.DestroyFence(b.device, f.Handle, b.allocator)
	f.Handle = nil
}

func (b *Backend) WaitForFences(fences []any, timeout time.Duration) error {
	if len(fences) == 0 {
		return nil
	}
	handles := make([]vk.Fence, 0, len(fences))
	for _, native := range fences {
		f, err := asFence(native)
		if err != nil {
			return err
		}
		handles = append(handles, f.Handle)
	}
	result := vk.WaitForFences(b.device, uint32(len(handles)), handles, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out after %s", timeout)
		return core.ErrFenceTimeout
	default:
		err := resultError("vk_fence_wait", result)
		core.LogError("%s", err)
		return err
	}
}

func (b *Backend) CreateSemaphore() (any, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if res := vk.CreateSemaphore(b.device, &semaphoreCreateInfo, b.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create semaphore: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	return &Semaphore{Handle: handle}, nil
}

func (b *Backend) DestroySemaphore(native any) {
	s, err := asSemaphore(native)
	if err != nil || s.Handle == nil {
		return
	}
	vk.DestroySemaphore(b.device, s.Handle, b.allocator)
	s.Handle = nil
}
