package metadata

type VertexAttribute struct {
	Semantic VertexAttributeSemantic
	Format   ResourceFormat
	/** @brief Vertex buffer slot the attribute is read from. */
	Slot uint32
	/** @brief Byte offset inside one vertex of that slot. */
	Offset      uint32
	PerInstance bool
}

/**
 * @brief Describes how vertex buffer slots feed a vertex shader.
 */
type VertexDeclarationCreationDescription struct {
	Attributes []VertexAttribute
	/** @brief Per slot stride. Zero means the stride is derived from the attributes. */
	Strides [MAX_VERTEX_BUFFER_COUNT]uint32
}

// Stride returns the stride of a vertex buffer slot.
func (d *VertexDeclarationCreationDescription) Stride(slot uint32) uint32 {
	if slot >= MAX_VERTEX_BUFFER_COUNT {
		return 0
	}
	if d.Strides[slot] != 0 {
		return d.Strides[slot]
	}
	var stride uint32
	for _, a := range d.Attributes {
		if a.Slot == slot {
			stride = max(stride, a.Offset+a.Format.Size())
		}
	}
	return stride
}

// UsedSlots returns a bit mask of the vertex buffer slots referenced by the
// attributes.
func (d *VertexDeclarationCreationDescription) UsedSlots() uint32 {
	var mask uint32
	for _, a := range d.Attributes {
		mask |= 1 << a.Slot
	}
	return mask
}

func (d *VertexDeclarationCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(uint32(len(d.Attributes)))
	for _, a := range d.Attributes {
		w.uint32(uint32(a.Semantic))
		w.uint32(uint32(a.Format))
		w.uint32(a.Slot)
		w.uint32(a.Offset)
		w.bool(a.PerInstance)
	}
	for _, s := range d.Strides {
		w.uint32(s)
	}
	return w.sum()
}
