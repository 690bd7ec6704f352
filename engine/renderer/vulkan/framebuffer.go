package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
)

type Framebuffer struct {
	Handle        vk.Framebuffer
	Attachments   []vk.ImageView
	Width, Height uint32
}

func asFramebuffer(native any) (*Framebuffer, error) {
	fb, ok := native.(*Framebuffer)
	if !ok || fb == nil {
		return nil, fmt.Errorf("vulkan: unexpected framebuffer %T: %w", native, core.ErrInvalidHandle)
	}
	return fb, nil
}

func (b *Backend) CreateFramebuffer(desc *cache.FramebufferDescription, renderPass any) (any, error) {
	rp, err := asRenderPass(renderPass)
	if err != nil {
		return nil, err
	}
	out := &Framebuffer{
		Attachments: make([]vk.ImageView, 0, len(desc.Natives)),
		Width:       desc.Width,
		Height:      desc.Height,
	}
	for i, native := range desc.Natives {
		view, err := asImageView(native)
		if err != nil {
			return nil, fmt.Errorf("framebuffer attachment %d: %w", i, err)
		}
		out.Attachments = append(out.Attachments, view.Handle)
	}

	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(out.Attachments)),
		PAttachments:    out.Attachments,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          layers,
	}

	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(b.device, &createInfo, b.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create framebuffer: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	out.Handle = handle
	return out, nil
}

// DestroyCachedObject is called by the object cache once nothing in flight
// can reference the object anymore.
func (b *Backend) DestroyCachedObject(kind cache.ObjectKind, native any) {
	switch kind {
	case cache.ObjectKindFramebuffer:
		if fb, ok := native.(*Framebuffer); ok && fb.Handle != nil {
			vk.DestroyFramebuffer(b.device, fb.Handle, b.allocator)
			fb.Handle = nil
			fb.Attachments = nil
		}
	case cache.ObjectKindPipeline:
		if p, ok := native.(*Pipeline); ok && p.Handle != nil {
			vk.DestroyPipeline(b.device, p.Handle, b.allocator)
			p.Handle = nil
		}
	case cache.ObjectKindRenderPass:
		if rp, ok := native.(*RenderPass); ok && rp.Handle != nil {
			vk.DestroyRenderPass(b.device, rp.Handle, b.allocator)
			rp.Handle = nil
		}
	case cache.ObjectKindPipelineLayout:
		if l, ok := native.(*PipelineLayout); ok {
			b.destroyPipelineLayout(l)
		}
	default:
		core.LogWarn("vulkan: DestroyCachedObject called with unexpected kind %s", kind)
	}
}
