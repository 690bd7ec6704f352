package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief A buffer and its dedicated allocation. Host visible buffers stay
 * mapped for their whole life.
 */
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags
	mapped unsafe.Pointer
}

func bufferUsage(flags metadata.BufferUsageFlags) vk.BufferUsageFlags {
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	if flags.IsSet(metadata.BufferUsageVertexBuffer) {
		usage |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if flags.IsSet(metadata.BufferUsageIndexBuffer) {
		usage |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if flags.IsSet(metadata.BufferUsageConstantBuffer) {
		usage |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if flags.IsAnySet(metadata.BufferUsageTexelBuffer | metadata.BufferUsageStructuredBuffer |
		metadata.BufferUsageByteAddressBuffer | metadata.BufferUsageShaderResource | metadata.BufferUsageUnorderedAccess) {
		usage |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if flags.IsSet(metadata.BufferUsageDrawIndirect) {
		usage |= vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	}
	return usage
}

func (b *Backend) CreateBuffer(desc *metadata.BufferCreationDescription) (any, error) {
	props := deviceLocal()
	if !desc.ResourceAccess.IsImmutable() || desc.ResourceAccess.ReadBack {
		props = hostVisible()
	}
	return b.newBuffer(uint64(desc.TotalSize), bufferUsage(desc.BufferFlags), props)
}

func (b *Backend) newBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("vulkan: buffers cannot be empty: %w", core.ErrValidation)
	}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	buf := &Buffer{Size: size, Usage: usage}
	var handle vk.Buffer
	if res := vk.CreateBuffer(b.device, &createInfo, b.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create a buffer of %d bytes: %s", size, VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	buf.Handle = handle

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device, buf.Handle, &req)
	memory, err := b.allocate(req, props, hostVisible())
	if err != nil {
		vk.DestroyBuffer(b.device, buf.Handle, b.allocator)
		return nil, err
	}
	buf.Memory = memory
	if res := vk.BindBufferMemory(b.device, buf.Handle, buf.Memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind buffer memory: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		b.destroyBuffer(buf)
		return nil, err
	}

	if props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		var pData unsafe.Pointer
		if res := vk.MapMemory(b.device, buf.Memory, 0, vk.DeviceSize(size), 0, &pData); res != vk.Success {
			err := fmt.Errorf("failed to map buffer memory: %s", VulkanResultString(res, false))
			core.LogError("%s", err)
			b.destroyBuffer(buf)
			return nil, err
		}
		buf.mapped = pData
	}
	return buf, nil
}

func asBuffer(native any) (*Buffer, error) {
	buf, ok := native.(*Buffer)
	if !ok || buf == nil {
		return nil, fmt.Errorf("vulkan: unexpected buffer %T: %w", native, core.ErrInvalidHandle)
	}
	return buf, nil
}

func (b *Backend) WriteBuffer(native any, offset uint64, data []byte) error {
	buf, err := asBuffer(native)
	if err != nil {
		return err
	}
	if buf.mapped == nil {
		return fmt.Errorf("vulkan: buffer is not host visible: %w", core.ErrValidation)
	}
	if offset+uint64(len(data)) > buf.Size {
		return fmt.Errorf("vulkan: write of %d bytes at %d overflows %d bytes: %w", len(data), offset, buf.Size, core.ErrValidation)
	}
	vk.Memcopy(unsafe.Add(buf.mapped, int(offset)), data)
	return nil
}

// newStaging returns a mapped transfer source filled with data.
func (b *Backend) newStaging(data []byte) (*Buffer, error) {
	staging, err := b.newBuffer(uint64(len(data)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), hostVisible())
	if err != nil {
		return nil, err
	}
	vk.Memcopy(staging.mapped, data)
	return staging, nil
}

func (b *Backend) UploadBuffer(cb any, native any, offset uint64, data []byte) (any, error) {
	cmd, err := asCommandBuffer(cb)
	if err != nil {
		return nil, err
	}
	dst, err := asBuffer(native)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	staging, err := b.newStaging(data)
	if err != nil {
		return nil, err
	}
	vk.CmdCopyBuffer(cmd.Handle, staging.Handle, dst.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: vk.DeviceSize(offset),
		Size:      vk.DeviceSize(len(data)),
	}})
	return staging, nil
}

func (b *Backend) destroyBuffer(buf *Buffer) {
	if buf.mapped != nil {
		vk.UnmapMemory(b.device, buf.Memory)
		buf.mapped = nil
	}
	if buf.Handle != nil {
		vk.DestroyBuffer(b.device, buf.Handle, b.allocator)
		buf.Handle = nil
	}
	if buf.Memory != nil {
		vk.FreeMemory(b.device, buf.Memory, b.allocator)
		buf.Memory = nil
	}
}
