package metadata

/**
 * @brief Describes a new texture.
 */
type TextureCreationDescription struct {
	Width         uint32
	Height        uint32
	Depth         uint32
	MipLevelCount uint32
	ArraySize     uint32

	Format      ResourceFormat
	SampleCount MSAASampleCount
	Type        TextureType

	/** @brief Creates a default shader resource view together with the texture. */
	AllowShaderResourceView bool
	AllowUAV                bool
	/** @brief Creates a default render target view together with the texture. */
	CreateRenderTarget        bool
	AllowDynamicMipGeneration bool

	ResourceAccess ResourceAccess

	/** @brief Wraps an existing backend object instead of allocating a new one. */
	ExistingNativeObject any
}

// DefaultTextureCreationDescription returns a single mip, single slice 2d
// texture description.
func DefaultTextureCreationDescription() TextureCreationDescription {
	return TextureCreationDescription{
		Depth:                   1,
		MipLevelCount:           1,
		ArraySize:               1,
		SampleCount:             MSAASampleCountNone,
		Type:                    TextureType2D,
		AllowShaderResourceView: true,
		ResourceAccess:          DefaultResourceAccess(),
	}
}

func (d *TextureCreationDescription) SetAsRenderTarget(width, height uint32, format ResourceFormat, sampleCount MSAASampleCount) {
	*d = DefaultTextureCreationDescription()
	d.Width = width
	d.Height = height
	d.Format = format
	d.SampleCount = sampleCount
	d.CreateRenderTarget = true
	d.ResourceAccess.Immutable = false
}

// MemorySize estimates the size of all mips and slices in bytes.
func (d *TextureCreationDescription) MemorySize() uint64 {
	var total uint64
	w, h, depth := d.Width, d.Height, d.Depth
	for mip := uint32(0); mip < d.MipLevelCount; mip++ {
		total += uint64(w) * uint64(h) * uint64(depth) * uint64(d.Format.Size())
		w, h, depth = max(w/2, 1), max(h/2, 1), max(depth/2, 1)
	}
	slices := uint64(d.ArraySize)
	if d.Type == TextureTypeCube {
		slices *= 6
	}
	samples := uint64(d.SampleCount)
	if samples == 0 {
		samples = 1
	}
	return total * slices * samples
}

func (d *TextureCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(d.Width)
	w.uint32(d.Height)
	w.uint32(d.Depth)
	w.uint32(d.MipLevelCount)
	w.uint32(d.ArraySize)
	w.uint32(uint32(d.Format))
	w.uint32(uint32(d.SampleCount))
	w.uint32(uint32(d.Type))
	w.bool(d.AllowShaderResourceView)
	w.bool(d.AllowUAV)
	w.bool(d.CreateRenderTarget)
	w.bool(d.AllowDynamicMipGeneration)
	d.ResourceAccess.hash(w)
	return w.sum()
}

/**
 * @brief Initial content of one subresource (mip level of one slice).
 */
type SubResourceData struct {
	Data       []byte
	RowPitch   uint32
	SlicePitch uint32
}

/**
 * @brief Describes a shader resource view of a texture.
 */
type TextureResourceViewCreationDescription struct {
	OverrideViewFormat   ResourceFormat
	MostDetailedMipLevel uint32
	MipLevelsToUse       uint32
	/** @brief For cube map arrays: index of the first 2d slice. */
	FirstArraySlice uint32
	/** @brief For cube map arrays: number of cube maps. */
	ArraySize uint32
}

func DefaultTextureResourceViewCreationDescription() TextureResourceViewCreationDescription {
	return TextureResourceViewCreationDescription{
		MipLevelsToUse: 0xFFFFFFFF,
		ArraySize:      1,
	}
}

func (d *TextureResourceViewCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(uint32(d.OverrideViewFormat))
	w.uint32(d.MostDetailedMipLevel)
	w.uint32(d.MipLevelsToUse)
	w.uint32(d.FirstArraySlice)
	w.uint32(d.ArraySize)
	return w.sum()
}

/**
 * @brief Describes a render target (or depth stencil) view of a texture.
 */
type RenderTargetViewCreationDescription struct {
	OverrideViewFormat ResourceFormat
	MipLevel           uint32
	FirstSlice         uint32
	SliceCount         uint32
	/** @brief Read only depth stencil view. */
	ReadOnly bool
}

func DefaultRenderTargetViewCreationDescription() RenderTargetViewCreationDescription {
	return RenderTargetViewCreationDescription{SliceCount: 1}
}

func (d *RenderTargetViewCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(uint32(d.OverrideViewFormat))
	w.uint32(d.MipLevel)
	w.uint32(d.FirstSlice)
	w.uint32(d.SliceCount)
	w.bool(d.ReadOnly)
	return w.sum()
}

/**
 * @brief Describes an unordered access view of a texture.
 */
type TextureUnorderedAccessViewCreationDescription struct {
	/** @brief First depth slice for 3d textures. */
	FirstArraySlice uint32
	/** @brief Number of depth slices for 3d textures. */
	ArraySize          uint32
	MipLevelToUse      uint16
	OverrideViewFormat ResourceFormat
}

func DefaultTextureUnorderedAccessViewCreationDescription() TextureUnorderedAccessViewCreationDescription {
	return TextureUnorderedAccessViewCreationDescription{ArraySize: 1}
}

func (d *TextureUnorderedAccessViewCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(d.FirstArraySlice)
	w.uint32(d.ArraySize)
	w.uint32(uint32(d.MipLevelToUse))
	w.uint32(uint32(d.OverrideViewFormat))
	return w.sum()
}
