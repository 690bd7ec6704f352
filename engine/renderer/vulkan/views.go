package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief A view of a subresource range of a texture.
 */
type ImageView struct {
	Handle  vk.ImageView
	Texture *Texture
	Range   vk.ImageSubresourceRange
}

/**
 * @brief A byte range of a buffer. Storage buffers need no native view.
 */
type BufferView struct {
	Buffer *Buffer
	Offset uint64
	Range  uint64
}

func asImageView(native any) (*ImageView, error) {
	v, ok := native.(*ImageView)
	if !ok || v == nil {
		return nil, fmt.Errorf("vulkan: unexpected image view %T: %w", native, core.ErrInvalidHandle)
	}
	return v, nil
}

func viewFormat(tex *Texture, override metadata.ResourceFormat) vk.Format {
	if override.IsValid() {
		return toVkFormat(override)
	}
	return tex.Format
}

func (b *Backend) newImageView(tex *Texture, viewType vk.ImageViewType, format vk.Format, subresources vk.ImageSubresourceRange) (*ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            tex.Image,
		ViewType:         viewType,
		Format:           format,
		SubresourceRange: subresources,
	}
	var handle vk.ImageView
	if res := vk.CreateImageView(b.device, &viewInfo, b.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create image view: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	return &ImageView{Handle: handle, Texture: tex, Range: subresources}, nil
}

func (b *Backend) CreateTextureResourceView(native any, textureDesc *metadata.TextureCreationDescription, desc *metadata.TextureResourceViewCreationDescription) (any, error) {
	tex, err := asTexture(native)
	if err != nil {
		return nil, err
	}
	if desc.MostDetailedMipLevel >= tex.MipLevels {
		return nil, fmt.Errorf("vulkan: mip %d of %d: %w", desc.MostDetailedMipLevel, tex.MipLevels, core.ErrValidation)
	}
	mips := tex.MipLevels - desc.MostDetailedMipLevel
	if desc.MipLevelsToUse != 0xFFFFFFFF && desc.MipLevelsToUse > 0 {
		mips = min(mips, desc.MipLevelsToUse)
	}

	// sampling reads the depth aspect of depth stencil images
	aspect := tex.Aspect
	if tex.ResourceFormat.IsDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	first := min(desc.FirstArraySlice, tex.Layers-1)
	subresources := vk.ImageSubresourceRange{
		AspectMask:     aspect,
		BaseMipLevel:   desc.MostDetailedMipLevel,
		LevelCount:     mips,
		BaseArrayLayer: first,
		LayerCount:     tex.Layers - first,
	}

	var viewType vk.ImageViewType
	switch tex.Type {
	case metadata.TextureType3D:
		viewType = vk.ImageViewType3d
		subresources.BaseArrayLayer, subresources.LayerCount = 0, 1
	case metadata.TextureTypeCube:
		cubes := max(desc.ArraySize, 1)
		subresources.LayerCount = min(cubes*6, subresources.LayerCount)
		viewType = vk.ImageViewTypeCube
		if subresources.LayerCount > 6 {
			viewType = vk.ImageViewTypeCubeArray
		}
	default:
		viewType = vk.ImageViewType2d
		if subresources.LayerCount > 1 {
			viewType = vk.ImageViewType2dArray
		}
	}
	return b.newImageView(tex, viewType, viewFormat(tex, desc.OverrideViewFormat), subresources)
}

func (b *Backend) CreateRenderTargetView(native any, textureDesc *metadata.TextureCreationDescription, desc *metadata.RenderTargetViewCreationDescription) (any, error) {
	tex, err := asTexture(native)
	if err != nil {
		return nil, err
	}
	if desc.MipLevel >= tex.MipLevels {
		return nil, fmt.Errorf("vulkan: mip %d of %d: %w", desc.MipLevel, tex.MipLevels, core.ErrValidation)
	}
	subresources := vk.ImageSubresourceRange{
		AspectMask:     tex.Aspect,
		BaseMipLevel:   desc.MipLevel,
		LevelCount:     1,
		BaseArrayLayer: min(desc.FirstSlice, tex.Layers-1),
		LayerCount:     max(desc.SliceCount, 1),
	}
	subresources.LayerCount = min(subresources.LayerCount, tex.Layers-subresources.BaseArrayLayer)

	viewType := vk.ImageViewType2d
	switch {
	case tex.Type == metadata.TextureType3D:
		viewType = vk.ImageViewType3d
		subresources.BaseArrayLayer, subresources.LayerCount = 0, 1
	case subresources.LayerCount > 1:
		viewType = vk.ImageViewType2dArray
	}
	return b.newImageView(tex, viewType, viewFormat(tex, desc.OverrideViewFormat), subresources)
}

func (b *Backend) CreateTextureUnorderedAccessView(native any, textureDesc *metadata.TextureCreationDescription, desc *metadata.TextureUnorderedAccessViewCreationDescription) (any, error) {
	tex, err := asTexture(native)
	if err != nil {
		return nil, err
	}
	mip := uint32(desc.MipLevelToUse)
	if mip >= tex.MipLevels {
		return nil, fmt.Errorf("vulkan: mip %d of %d: %w", mip, tex.MipLevels, core.ErrValidation)
	}
	subresources := vk.ImageSubresourceRange{
		AspectMask:     tex.Aspect,
		BaseMipLevel:   mip,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     tex.Layers,
	}
	viewType := vk.ImageViewType2d
	switch {
	case tex.Type == metadata.TextureType3D:
		viewType = vk.ImageViewType3d
	case tex.Layers > 1:
		viewType = vk.ImageViewType2dArray
	}
	return b.newImageView(tex, viewType, viewFormat(tex, desc.OverrideViewFormat), subresources)
}

func bufferViewRange(buf *Buffer, bufferDesc *metadata.BufferCreationDescription, firstElement, numElements uint32, raw bool) (*BufferView, error) {
	stride := uint64(4)
	if !raw && bufferDesc.StructSize > 0 {
		stride = uint64(bufferDesc.StructSize)
	}
	offset := uint64(firstElement) * stride
	if offset >= buf.Size {
		return nil, fmt.Errorf("vulkan: view starts at byte %d of %d: %w", offset, buf.Size, core.ErrValidation)
	}
	size := buf.Size - offset
	if numElements > 0 {
		size = min(size, uint64(numElements)*stride)
	}
	return &BufferView{Buffer: buf, Offset: offset, Range: size}, nil
}

func (b *Backend) CreateBufferResourceView(native any, bufferDesc *metadata.BufferCreationDescription, desc *metadata.BufferResourceViewCreationDescription) (any, error) {
	buf, err := asBuffer(native)
	if err != nil {
		return nil, err
	}
	return bufferViewRange(buf, bufferDesc, desc.FirstElement, desc.NumElements, desc.RawView)
}

func (b *Backend) CreateBufferUnorderedAccessView(native any, bufferDesc *metadata.BufferCreationDescription, desc *metadata.BufferUnorderedAccessViewCreationDescription) (any, error) {
	buf, err := asBuffer(native)
	if err != nil {
		return nil, err
	}
	return bufferViewRange(buf, bufferDesc, desc.FirstElement, desc.NumElements, desc.RawView)
}
