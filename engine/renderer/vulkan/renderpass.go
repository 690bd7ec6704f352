package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
)

/**
 * @brief A single subpass render pass. Attachments enter and leave in the
 * layout the barrier tracker put them in, so the pass never transitions.
 */
type RenderPass struct {
	Handle     vk.RenderPass
	ColorCount uint32
	HasDepth   bool
}

func asRenderPass(native any) (*RenderPass, error) {
	rp, ok := native.(*RenderPass)
	if !ok || rp == nil {
		return nil, fmt.Errorf("vulkan: unexpected render pass %T: %w", native, core.ErrInvalidHandle)
	}
	return rp, nil
}

func depthLayout(desc *cache.RenderPassDescription) vk.ImageLayout {
	// Read-only depth targets are the only ones that drop their contents.
	if desc.DepthStore == cache.StoreOpDontCare {
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return vk.ImageLayoutDepthStencilAttachmentOptimal
}

func (b *Backend) CreateRenderPass(desc *cache.RenderPassDescription) (any, error) {
	samples := toVkSampleCount(desc.SampleCount)
	attachments := make([]vk.AttachmentDescription, 0, desc.ColorCount+1)
	colorRefs := make([]vk.AttachmentReference, 0, desc.ColorCount)

	for i := uint32(0); i < desc.ColorCount; i++ {
		format := toVkFormat(desc.ColorFormats[i])
		if format == vk.FormatUndefined {
			err := fmt.Errorf("vulkan: render pass color %d has format %s: %w", i, desc.ColorFormats[i], core.ErrValidation)
			core.LogError("%s", err)
			return nil, err
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         format,
			Samples:        samples,
			LoadOp:         toVkLoadOp(desc.ColorLoad[i]),
			StoreOp:        toVkStoreOp(desc.ColorStore[i]),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: i,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	if desc.HasDepth() {
		format := toVkFormat(desc.DepthFormat)
		if format == vk.FormatUndefined {
			err := fmt.Errorf("vulkan: render pass depth has format %s: %w", desc.DepthFormat, core.ErrValidation)
			core.LogError("%s", err)
			return nil, err
		}
		layout := depthLayout(desc)
		stencilStore := vk.AttachmentStoreOpDontCare
		if desc.DepthFormat.IsStencil() {
			stencilStore = toVkStoreOp(desc.DepthStore)
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         format,
			Samples:        samples,
			LoadOp:         toVkLoadOp(desc.DepthLoad),
			StoreOp:        toVkStoreOp(desc.DepthStore),
			StencilLoadOp:  toVkLoadOp(desc.StencilLoad),
			StencilStoreOp: stencilStore,
			InitialLayout:  layout,
			FinalLayout:    layout,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     layout,
		}
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var handle vk.RenderPass
	if res := vk.CreateRenderPass(b.device, &createInfo, b.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create render pass: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	core.LogDebug("render pass created with %d color attachments (depth=%t)", desc.ColorCount, desc.HasDepth())
	return &RenderPass{Handle: handle, ColorCount: desc.ColorCount, HasDepth: desc.HasDepth()}, nil
}
