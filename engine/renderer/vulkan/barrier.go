package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
)

var stageBits = []struct {
	stage barrier.Stage
	bit   vk.PipelineStageFlagBits
}{
	{barrier.StageTop, vk.PipelineStageTopOfPipeBit},
	{barrier.StageDrawIndirect, vk.PipelineStageDrawIndirectBit},
	{barrier.StageVertexInput, vk.PipelineStageVertexInputBit},
	{barrier.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{barrier.StagePixelShader, vk.PipelineStageFragmentShaderBit},
	{barrier.StageEarlyDepth, vk.PipelineStageEarlyFragmentTestsBit},
	{barrier.StageLateDepth, vk.PipelineStageLateFragmentTestsBit},
	{barrier.StageColorOutput, vk.PipelineStageColorAttachmentOutputBit},
	{barrier.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{barrier.StageTransfer, vk.PipelineStageTransferBit},
	{barrier.StageHost, vk.PipelineStageHostBit},
	{barrier.StageBottom, vk.PipelineStageBottomOfPipeBit},
}

var accessBits = []struct {
	access barrier.Access
	bit    vk.AccessFlagBits
}{
	{barrier.AccessIndirectRead, vk.AccessIndirectCommandReadBit},
	{barrier.AccessIndexRead, vk.AccessIndexReadBit},
	{barrier.AccessVertexRead, vk.AccessVertexAttributeReadBit},
	{barrier.AccessUniformRead, vk.AccessUniformReadBit},
	{barrier.AccessShaderRead, vk.AccessShaderReadBit},
	{barrier.AccessShaderWrite, vk.AccessShaderWriteBit},
	{barrier.AccessColorRead, vk.AccessColorAttachmentReadBit},
	{barrier.AccessColorWrite, vk.AccessColorAttachmentWriteBit},
	{barrier.AccessDepthRead, vk.AccessDepthStencilAttachmentReadBit},
	{barrier.AccessDepthWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{barrier.AccessTransferRead, vk.AccessTransferReadBit},
	{barrier.AccessTransferWrite, vk.AccessTransferWriteBit},
	{barrier.AccessHostRead, vk.AccessHostReadBit},
	{barrier.AccessHostWrite, vk.AccessHostWriteBit},
}

// toVkStages maps a stage set. An empty source waits on nothing, an empty
// destination blocks nothing.
func toVkStages(stages barrier.Stage, src bool) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, s := range stageBits {
		if stages&s.stage != 0 {
			out |= vk.PipelineStageFlags(s.bit)
		}
	}
	if out == 0 {
		if src {
			return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return out
}

func toVkAccess(access barrier.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for _, a := range accessBits {
		if access&a.access != 0 {
			out |= vk.AccessFlags(a.bit)
		}
	}
	return out
}

func toVkLayout(l barrier.Layout) vk.ImageLayout {
	switch l {
	case barrier.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case barrier.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case barrier.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case barrier.LayoutDepthStencilReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case barrier.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case barrier.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case barrier.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case barrier.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

// CmdPipelineBarrier emits the whole batch as one vkCmdPipelineBarrier.
// Every image barrier covers all subresources of the image.
func (b *Backend) CmdPipelineBarrier(native any, batch barrier.Batch[barrier.ResourceKey]) {
	cb, ok := recording(native, "CmdPipelineBarrier")
	if !ok {
		return
	}
	if len(batch.Barriers) == 0 && !batch.Full {
		return
	}

	var srcStages, dstStages barrier.Stage
	var memoryBarriers []vk.MemoryBarrier
	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(batch.Barriers))
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(batch.Barriers))

	if batch.Full {
		srcStages |= barrier.StageAllCommands
		dstStages |= barrier.StageAllCommands
		memoryBarriers = append(memoryBarriers, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		})
	}

	for i := range batch.Barriers {
		br := &batch.Barriers[i]
		srcStages |= br.Before.Stages
		dstStages |= br.After.Stages
		switch res := br.Native.(type) {
		case *Texture:
			oldLayout := toVkLayout(br.Before.Layout)
			if br.Discard {
				oldLayout = vk.ImageLayoutUndefined
			}
			imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       toVkAccess(br.Before.Access),
				DstAccessMask:       toVkAccess(br.After.Access),
				OldLayout:           oldLayout,
				NewLayout:           toVkLayout(br.After.Layout),
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               res.Image,
				SubresourceRange:    res.fullRange(),
			})
		case *Buffer:
			bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       toVkAccess(br.Before.Access),
				DstAccessMask:       toVkAccess(br.After.Access),
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Buffer:              res.Handle,
				Offset:              0,
				Size:                vk.DeviceSize(vk.WholeSize),
			})
		default:
			core.LogWarn("CmdPipelineBarrier: skipping barrier on %T", br.Native)
		}
	}

	vk.CmdPipelineBarrier(cb.Handle,
		toVkStages(srcStages, true), toVkStages(dstStages, false), 0,
		uint32(len(memoryBarriers)), memoryBarriers,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}
