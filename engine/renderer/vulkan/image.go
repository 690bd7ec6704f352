package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief An image and its allocation. Views keep pointing at it, proxies
 * share it.
 */
type Texture struct {
	Image  vk.Image
	Memory vk.DeviceMemory

	Format         vk.Format
	ResourceFormat metadata.ResourceFormat
	Aspect         vk.ImageAspectFlags
	Type           metadata.TextureType

	Width, Height, Depth uint32
	MipLevels            uint32
	/** @brief Array layers, six per cube. */
	Layers  uint32
	Samples vk.SampleCountFlagBits

	/** @brief The image belongs to a swap chain and is never freed here. */
	wrapped bool
}

func (t *Texture) fullRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     t.Aspect,
		BaseMipLevel:   0,
		LevelCount:     t.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     t.Layers,
	}
}

func (t *Texture) mipExtent(mip uint32) (uint32, uint32, uint32) {
	return max(t.Width>>mip, 1), max(t.Height>>mip, 1), max(t.Depth>>mip, 1)
}

func asTexture(native any) (*Texture, error) {
	tex, ok := native.(*Texture)
	if !ok || tex == nil {
		return nil, fmt.Errorf("vulkan: unexpected texture %T: %w", native, core.ErrInvalidHandle)
	}
	return tex, nil
}

func textureUsage(desc *metadata.TextureCreationDescription) vk.ImageUsageFlags {
	usage := vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit)
	if desc.AllowUAV {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if desc.Format.IsDepth() {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	} else if desc.CreateRenderTarget {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	return usage
}

func (b *Backend) CreateTexture(desc *metadata.TextureCreationDescription) (any, error) {
	if desc.ExistingNativeObject != nil {
		tex, err := asTexture(desc.ExistingNativeObject)
		if err != nil {
			core.LogError("CreateTexture: cannot wrap %T", desc.ExistingNativeObject)
			return nil, err
		}
		return tex, nil
	}

	tex := &Texture{
		Format:         toVkFormat(desc.Format),
		ResourceFormat: desc.Format,
		Aspect:         aspectOf(desc.Format),
		Type:           desc.Type,
		Width:          desc.Width,
		Height:         desc.Height,
		Depth:          max(desc.Depth, 1),
		MipLevels:      max(desc.MipLevelCount, 1),
		Layers:         max(desc.ArraySize, 1),
		Samples:        toVkSampleCount(desc.SampleCount),
	}

	imageType := vk.ImageType2d
	var flags vk.ImageCreateFlags
	switch desc.Type {
	case metadata.TextureType3D:
		imageType = vk.ImageType3d
		tex.Layers = 1
	case metadata.TextureTypeCube:
		tex.Layers *= 6
		tex.Depth = 1
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	default:
		tex.Depth = 1
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: imageType,
		Format:    tex.Format,
		Extent: vk.Extent3D{
			Width:  tex.Width,
			Height: tex.Height,
			Depth:  tex.Depth,
		},
		MipLevels:     tex.MipLevels,
		ArrayLayers:   tex.Layers,
		Samples:       tex.Samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         textureUsage(desc),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if res := vk.CreateImage(b.device, &createInfo, b.allocator, &image); res != vk.Success {
		err := fmt.Errorf("failed to create a %dx%d %s image: %s", tex.Width, tex.Height, desc.Format, VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	tex.Image = image

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device, tex.Image, &req)
	memory, err := b.allocate(req, deviceLocal(), deviceLocal())
	if err != nil {
		vk.DestroyImage(b.device, tex.Image, b.allocator)
		return nil, err
	}
	tex.Memory = memory
	if res := vk.BindImageMemory(b.device, tex.Image, tex.Memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind image memory: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		b.destroyTexture(tex)
		return nil, err
	}
	return tex, nil
}

// CreateSharedTexture needs the external memory extensions, which this
// backend does not enable.
func (b *Backend) CreateSharedTexture(desc *metadata.TextureCreationDescription, open *metadata.PlatformSharedHandle) (any, metadata.PlatformSharedHandle, error) {
	return nil, metadata.PlatformSharedHandle{}, fmt.Errorf("vulkan: shared textures: %w", core.ErrNotSupported)
}

// UploadTexture copies one sub resource per mip of every slice, slice major,
// and leaves the image ready for shader reads.
func (b *Backend) UploadTexture(cb any, native any, desc *metadata.TextureCreationDescription, data []metadata.SubResourceData) (any, error) {
	cmd, err := asCommandBuffer(cb)
	if err != nil {
		return nil, err
	}
	tex, err := asTexture(native)
	if err != nil {
		return nil, err
	}

	var total int
	for _, sub := range data {
		total += len(sub.Data)
	}
	if total == 0 {
		return nil, nil
	}
	packed := make([]byte, 0, total)
	for _, sub := range data {
		packed = append(packed, sub.Data...)
	}
	staging, err := b.newStaging(packed)
	if err != nil {
		return nil, err
	}

	// depth images are filled through the depth aspect only
	aspect := tex.Aspect
	if tex.ResourceFormat.IsDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	texelSize := tex.ResourceFormat.Size()
	slices := tex.Layers
	if tex.Type == metadata.TextureType3D {
		slices = 1
	}

	regions := make([]vk.BufferImageCopy, 0, len(data))
	var offset uint64
	for i, sub := range data {
		slice := uint32(i) / tex.MipLevels
		mip := uint32(i) % tex.MipLevels
		if slice >= slices || len(sub.Data) == 0 {
			offset += uint64(len(sub.Data))
			continue
		}
		w, h, d := tex.mipExtent(mip)
		region := vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(offset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     aspect,
				MipLevel:       mip,
				BaseArrayLayer: slice,
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{Width: w, Height: h, Depth: d},
		}
		if sub.RowPitch > 0 && texelSize > 0 {
			region.BufferRowLength = sub.RowPitch / texelSize
			if sub.SlicePitch > 0 {
				region.BufferImageHeight = sub.SlicePitch / sub.RowPitch
			}
		}
		regions = append(regions, region)
		offset += uint64(len(sub.Data))
	}

	b.imageBarrier(cmd.Handle, tex, tex.fullRange(),
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, vk.AccessFlags(vk.AccessTransferWriteBit))

	if len(regions) > 0 {
		vk.CmdCopyBufferToImage(cmd.Handle, staging.Handle, tex.Image, vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)
	}

	b.imageBarrier(cmd.Handle, tex, tex.fullRange(),
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit))
	return staging, nil
}

func (b *Backend) imageBarrier(cmd vk.CommandBuffer, tex *Texture, subresources vk.ImageSubresourceRange, from, to vk.ImageLayout, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	imageBarrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               tex.Image,
		SubresourceRange:    subresources,
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{imageBarrier})
}

func (b *Backend) destroyTexture(tex *Texture) {
	if tex.wrapped {
		return
	}
	if tex.Image != nil {
		vk.DestroyImage(b.device, tex.Image, b.allocator)
		tex.Image = nil
	}
	if tex.Memory != nil {
		vk.FreeMemory(b.device, tex.Memory, b.allocator)
		tex.Memory = nil
	}
}
