package metadata

/**
 * @brief How the CPU may touch a resource after creation.
 */
type ResourceAccess struct {
	/** @brief The resource content can be read back by the CPU. */
	ReadBack bool
	/** @brief The resource content is fixed at creation time. */
	Immutable bool
}

func DefaultResourceAccess() ResourceAccess {
	return ResourceAccess{Immutable: true}
}

func (a ResourceAccess) IsImmutable() bool {
	return a.Immutable
}

func (a ResourceAccess) hash(w *hashWriter) {
	w.bool(a.ReadBack)
	w.bool(a.Immutable)
}

/**
 * @brief Describes a new buffer.
 */
type BufferCreationDescription struct {
	/** @brief The size of the buffer in bytes. */
	TotalSize uint32
	/** @brief Size of one element (struct, vertex, index or texel). */
	StructSize uint32
	/** @brief How the buffer is going to be bound. */
	BufferFlags BufferUsageFlags
	/** @brief CPU access rules. */
	ResourceAccess ResourceAccess
}

// ElementCount returns the number of elements a default view covers.
func (d *BufferCreationDescription) ElementCount() uint32 {
	if d.StructSize == 0 {
		return d.TotalSize
	}
	return d.TotalSize / d.StructSize
}

func (d *BufferCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(d.TotalSize)
	w.uint32(d.StructSize)
	w.uint32(uint32(d.BufferFlags))
	d.ResourceAccess.hash(w)
	return w.sum()
}

/**
 * @brief Describes a shader resource view of a buffer.
 */
type BufferResourceViewCreationDescription struct {
	OverrideViewFormat ResourceFormat
	FirstElement       uint32
	NumElements        uint32
	/** @brief A byte address view. Requires BufferUsageByteAddressBuffer. */
	RawView bool
}

func (d *BufferResourceViewCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(uint32(d.OverrideViewFormat))
	w.uint32(d.FirstElement)
	w.uint32(d.NumElements)
	w.bool(d.RawView)
	return w.sum()
}

/**
 * @brief Describes an unordered access view of a buffer.
 */
type BufferUnorderedAccessViewCreationDescription struct {
	FirstElement       uint32
	NumElements        uint32
	OverrideViewFormat ResourceFormat
	RawView            bool
}

func (d *BufferUnorderedAccessViewCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(d.FirstElement)
	w.uint32(d.NumElements)
	w.uint32(uint32(d.OverrideViewFormat))
	w.bool(d.RawView)
	return w.sum()
}

/**
 * @brief Describes a GPU query.
 */
type QueryCreationDescription struct {
	Type QueryType
	/**
	 * @brief For occlusion queries: whether drawing should happen while the
	 * result is still unknown.
	 */
	DrawIfUnknown bool
}

func DefaultQueryCreationDescription() QueryCreationDescription {
	return QueryCreationDescription{Type: QueryTypeNumSamplesPassed, DrawIfUnknown: true}
}

/**
 * @brief Describes a swap chain. The window is opaque to the device and only
 * interpreted by the swap chain factory.
 */
type SwapChainCreationDescription struct {
	Name               string
	Window             any
	Width              uint32
	Height             uint32
	SampleCount        MSAASampleCount
	BackBufferFormat   ResourceFormat
	InitialPresentMode PresentMode
	DoubleBuffered     bool
}

/**
 * @brief An exported texture handle that another device or process can open.
 */
type PlatformSharedHandle struct {
	SharedTexture   uint64
	Semaphore       uint64
	ProcessID       uint32
	MemoryTypeIndex uint32
	Size            uint64
}

func (h PlatformSharedHandle) IsValid() bool {
	return h.SharedTexture != 0
}

type BufferCopyRegion struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

/**
 * @brief Copies a box of one subresource. A zero extent copies the whole
 * source mip level.
 */
type TextureCopyRegion struct {
	SrcMipLevel   uint32
	SrcArraySlice uint32
	DstMipLevel   uint32
	DstArraySlice uint32
	SrcX, SrcY    uint32
	DstX, DstY    uint32
	Width         uint32
	Height        uint32
}
