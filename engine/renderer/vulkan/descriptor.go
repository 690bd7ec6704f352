package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

const descriptorPoolSets = 256

var descriptorPoolSizes = []vk.DescriptorPoolSize{
	{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 4 * descriptorPoolSets},
	{Type: vk.DescriptorTypeSampledImage, DescriptorCount: 8 * descriptorPoolSets},
	{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 4 * descriptorPoolSets},
	{Type: vk.DescriptorTypeSampler, DescriptorCount: 4 * descriptorPoolSets},
	{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 2 * descriptorPoolSets},
	{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 4 * descriptorPoolSets},
}

func (b *Backend) newDescriptorPool() (vk.DescriptorPool, error) {
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       descriptorPoolSets,
		PoolSizeCount: uint32(len(descriptorPoolSizes)),
		PPoolSizes:    descriptorPoolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(b.device, &poolInfo, b.allocator, &pool); res != vk.Success {
		return nil, fmt.Errorf("failed to create descriptor pool: %s", VulkanResultString(res, true))
	}
	return pool, nil
}

var errDescriptorSetTooLarge = errors.New("descriptor set does not fit in an empty descriptor pool")

// allocateSet takes a set from the command buffer's current pool and moves on
// to the next pool, creating it if needed, once a pool runs dry.
func (b *Backend) allocateSet(cb *CommandBuffer, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	for {
		fresh := false
		if cb.currentPool == len(cb.descriptorPools) {
			pool, err := b.newDescriptorPool()
			if err != nil {
				return nil, err
			}
			cb.descriptorPools = append(cb.descriptorPools, pool)
			fresh = true
		}
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     cb.descriptorPools[cb.currentPool],
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}
		sets := make([]vk.DescriptorSet, 1)
		res := vk.AllocateDescriptorSets(b.device, &allocInfo, &sets[0])
		if res == vk.Success {
			return sets[0], nil
		}
		if err := nextDescriptorPool(res, fresh); err != nil {
			return nil, err
		}
		cb.currentPool++
	}
}

// nextDescriptorPool decides whether a failed allocation moves on to the next
// pool. A set that does not fit in a pool created for it never will.
func nextDescriptorPool(res vk.Result, fresh bool) error {
	switch res {
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		if fresh {
			return fmt.Errorf("failed to allocate descriptor set: %s: %w", VulkanResultString(res, false), errDescriptorSetTooLarge)
		}
		return nil
	default:
		return fmt.Errorf("failed to allocate descriptor set: %s", VulkanResultString(res, true))
	}
}

func descriptorImage(entry *cache.DescriptorEntry, layout vk.ImageLayout) ([]vk.DescriptorImageInfo, error) {
	info := vk.DescriptorImageInfo{ImageLayout: layout}
	if entry.Resource != nil {
		view, err := asImageView(entry.Resource)
		if err != nil {
			return nil, err
		}
		info.ImageView = view.Handle
	}
	if entry.Sampler != nil {
		s, ok := entry.Sampler.(*Sampler)
		if !ok || s == nil {
			return nil, fmt.Errorf("vulkan: unexpected sampler %T: %w", entry.Sampler, core.ErrInvalidHandle)
		}
		info.Sampler = s.Handle
	}
	return []vk.DescriptorImageInfo{info}, nil
}

func descriptorBuffer(entry *cache.DescriptorEntry) ([]vk.DescriptorBufferInfo, error) {
	switch r := entry.Resource.(type) {
	case *Buffer:
		size := vk.DeviceSize(vk.WholeSize)
		if entry.Range > 0 {
			size = vk.DeviceSize(entry.Range)
		}
		return []vk.DescriptorBufferInfo{{Buffer: r.Handle, Offset: vk.DeviceSize(entry.Offset), Range: size}}, nil
	case *BufferView:
		return []vk.DescriptorBufferInfo{{Buffer: r.Buffer.Handle, Offset: vk.DeviceSize(r.Offset), Range: vk.DeviceSize(r.Range)}}, nil
	default:
		return nil, fmt.Errorf("vulkan: unexpected buffer resource %T: %w", entry.Resource, core.ErrInvalidHandle)
	}
}

func descriptorWrite(set vk.DescriptorSet, entry *cache.DescriptorEntry) (vk.WriteDescriptorSet, error) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      entry.Binding,
		DescriptorCount: 1,
		DescriptorType:  toVkDescriptorType(entry.Type),
	}
	var err error
	switch entry.Type {
	case metadata.ShaderResourceTypeTexture, metadata.ShaderResourceTypeCombinedTextureSampler, metadata.ShaderResourceTypeSampler:
		write.PImageInfo, err = descriptorImage(entry, vk.ImageLayoutShaderReadOnlyOptimal)
	case metadata.ShaderResourceTypeTextureUAV:
		write.PImageInfo, err = descriptorImage(entry, vk.ImageLayoutGeneral)
	default:
		write.PBufferInfo, err = descriptorBuffer(entry)
	}
	return write, err
}

// CmdBindDescriptorSet writes a fresh set each call. Sets live as long as the
// command buffer recording them.
func (b *Backend) CmdBindDescriptorSet(native any, layout *cache.PipelineLayout, set uint32, entries []cache.DescriptorEntry, compute bool) error {
	cb, err := asCommandBuffer(native)
	if err != nil {
		return err
	}
	pl, err := asPipelineLayout(layout.Native)
	if err != nil {
		return err
	}
	if int(set) >= len(pl.SetLayouts) {
		return fmt.Errorf("vulkan: set %d out of %d: %w", set, len(pl.SetLayouts), core.ErrValidation)
	}

	ds, err := b.allocateSet(cb, pl.SetLayouts[set])
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	writes := make([]vk.WriteDescriptorSet, 0, len(entries))
	for i := range entries {
		write, err := descriptorWrite(ds, &entries[i])
		if err != nil {
			return fmt.Errorf("binding %d: %w", entries[i].Binding, err)
		}
		writes = append(writes, write)
	}
	vk.UpdateDescriptorSets(b.device, uint32(len(writes)), writes, 0, nil)

	bindPoint := vk.PipelineBindPointGraphics
	if compute {
		bindPoint = vk.PipelineBindPointCompute
	}
	vk.CmdBindDescriptorSets(cb.Handle, bindPoint, pl.Handle, set, 1, []vk.DescriptorSet{ds}, 0, nil)
	return nil
}
