package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
)

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has every requested property, or -1.
func (b *Backend) findMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < b.memory.MemoryTypeCount; i++ {
		memType := b.memory.MemoryTypes[i]
		memType.Deref()
		if typeFilter&(1<<i) != 0 && memType.PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	return -1
}

// allocate binds fresh memory matching the requirements. preferred is tried
// first, then fallback.
func (b *Backend) allocate(req vk.MemoryRequirements, preferred, fallback vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	req.Deref()
	index := b.findMemoryIndex(req.MemoryTypeBits, preferred)
	if index < 0 && fallback != preferred {
		index = b.findMemoryIndex(req.MemoryTypeBits, fallback)
	}
	if index < 0 {
		err := fmt.Errorf("unable to find a suitable memory type for %d bytes", req.Size)
		core.LogError("%s", err)
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(b.device, &allocInfo, b.allocator, &memory); res != vk.Success {
		err := fmt.Errorf("failed to allocate %d bytes of device memory: %s", req.Size, VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	return memory, nil
}

func hostVisible() vk.MemoryPropertyFlags {
	return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
}

func deviceLocal() vk.MemoryPropertyFlags {
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}
