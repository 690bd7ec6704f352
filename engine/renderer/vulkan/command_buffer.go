package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/frame"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

/**
 * @brief A primary command buffer plus the descriptor pools its sets are
 * allocated from. The pools are reset whenever recording starts again.
 */
type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState

	descriptorPools []vk.DescriptorPool
	currentPool     int
	/** @brief Names of the open debug markers. */
	markers []string
}

func asCommandBuffer(native any) (*CommandBuffer, error) {
	cb, ok := native.(*CommandBuffer)
	if !ok || cb == nil {
		return nil, fmt.Errorf("vulkan: unexpected command buffer %T: %w", native, core.ErrInvalidHandle)
	}
	return cb, nil
}

func (b *Backend) AllocateCommandBuffer() (any, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	err := b.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(b.device, &allocateInfo, handles); res != vk.Success {
			return fmt.Errorf("failed to allocate command buffer: %s", VulkanResultString(res, false))
		}
		return nil
	})
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return &CommandBuffer{Handle: handles[0], State: COMMAND_BUFFER_STATE_READY}, nil
}

// BeginCommandBuffer resets a recycled buffer and its descriptor pools, then
// records the pending query resets.
func (b *Backend) BeginCommandBuffer(native any) error {
	cb, err := asCommandBuffer(native)
	if err != nil {
		return err
	}
	for _, pool := range cb.descriptorPools {
		vk.ResetDescriptorPool(b.device, pool, 0)
	}
	cb.currentPool = 0
	cb.markers = cb.markers[:0]

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cb.Handle, &beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	b.flushQueryResets(cb)
	return nil
}

func (b *Backend) EndCommandBuffer(native any) error {
	cb, err := asCommandBuffer(native)
	if err != nil {
		return err
	}
	if cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		core.LogWarn("EndCommandBuffer: closing a render pass left open")
		vk.CmdEndRenderPass(cb.Handle)
	}
	if len(cb.markers) > 0 {
		core.LogWarn("EndCommandBuffer: %d debug markers left open", len(cb.markers))
	}
	if res := vk.EndCommandBuffer(cb.Handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (b *Backend) FreeCommandBuffer(native any) {
	cb, err := asCommandBuffer(native)
	if err != nil || cb.Handle == nil {
		return
	}
	for _, pool := range cb.descriptorPools {
		vk.DestroyDescriptorPool(b.device, pool, b.allocator)
	}
	cb.descriptorPools = nil
	_ = b.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(b.device, b.commandPool, 1, []vk.CommandBuffer{cb.Handle})
		return nil
	})
	cb.Handle = nil
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// Submit hands the command buffers to the graphics queue. Every wait
// semaphore blocks all commands of the submission.
func (b *Backend) Submit(info *frame.SubmitInfo) error {
	commandBuffers := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, native := range info.CommandBuffers {
		cb, err := asCommandBuffer(native)
		if err != nil {
			return err
		}
		commandBuffers = append(commandBuffers, cb.Handle)
		cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	}
	waits := make([]vk.Semaphore, 0, len(info.WaitSemaphores))
	waitStages := make([]vk.PipelineStageFlags, 0, len(info.WaitSemaphores))
	for _, native := range info.WaitSemaphores {
		s, err := asSemaphore(native)
		if err != nil {
			return err
		}
		waits = append(waits, s.Handle)
		waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
	}
	signals := make([]vk.Semaphore, 0, len(info.SignalSemaphores))
	for _, native := range info.SignalSemaphores {
		s, err := asSemaphore(native)
		if err != nil {
			return err
		}
		signals = append(signals, s.Handle)
	}
	var fence vk.Fence
	if info.Fence != nil {
		f, err := asFence(info.Fence)
		if err != nil {
			return err
		}
		fence = f.Handle
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	return b.locks.SafeQueueCall(b.queueFamily, func() error {
		if res := vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{submitInfo}, fence); res != vk.Success {
			err := resultError("vkQueueSubmit", res)
			core.LogError("%s", err)
			return err
		}
		return nil
	})
}

func (b *Backend) WaitIdle() error {
	return b.locks.SafeQueueCall(b.queueFamily, func() error {
		if res := vk.QueueWaitIdle(b.queue); res != vk.Success {
			return resultError("vkQueueWaitIdle", res)
		}
		return nil
	})
}
