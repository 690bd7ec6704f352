package renderer

import (
	gomath "math"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

func validateBuffer(desc *metadata.BufferCreationDescription, initialData []byte) error {
	if desc.TotalSize == 0 {
		return validationError("CreateBuffer: buffer size must not be zero")
	}
	if desc.ResourceAccess.IsImmutable() && len(initialData) == 0 {
		return validationError("CreateBuffer: immutable buffers need initial data")
	}
	if uint64(len(initialData)) > uint64(desc.TotalSize) {
		return validationError("CreateBuffer: %d bytes of initial data do not fit in %d bytes", len(initialData), desc.TotalSize)
	}
	if desc.BufferFlags.IsSet(metadata.BufferUsageIndexBuffer) && desc.StructSize != 2 && desc.StructSize != 4 {
		return validationError("CreateBuffer: index buffers need a struct size of 2 or 4, got %d", desc.StructSize)
	}
	return nil
}

// CreateBuffer creates a buffer and uploads initialData through the init
// command buffer. Shader visible structured and byte address buffers get a
// default resource view.
func (d *Device) CreateBuffer(desc *metadata.BufferCreationDescription, initialData []byte) BufferHandle {
	if err := validateBuffer(desc, initialData); err != nil {
		return BufferHandle{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	native, err := d.backend.CreateBuffer(desc)
	if err != nil {
		core.LogError("CreateBuffer: backend failed to create a buffer of %d bytes: %s", desc.TotalSize, err)
		return BufferHandle{}
	}

	var initial barrier.State
	if len(initialData) > 0 {
		err := d.upload(func(cb any) (any, error) {
			return d.backend.UploadBuffer(cb, native, 0, initialData)
		})
		if err != nil {
			core.LogError("CreateBuffer: failed to upload initial data: %s", err)
			d.deleteLater(metadata.ObjectTypeBuffer, native)
			return BufferHandle{}
		}
		initial = barrier.StateBufferCopyDst
	}

	b := &Buffer{
		Description:   *desc,
		Native:        native,
		initialState:  initial,
		resourceViews: make(map[uint64]BufferResourceViewHandle),
		uavs:          make(map[uint64]BufferUnorderedAccessViewHandle),
	}
	h := d.buffers.Insert(b)

	flags := desc.BufferFlags
	if flags.IsSet(metadata.BufferUsageShaderResource) &&
		flags.IsAnySet(metadata.BufferUsageStructuredBuffer|metadata.BufferUsageByteAddressBuffer) {
		view := metadata.BufferResourceViewCreationDescription{
			NumElements: desc.ElementCount(),
			RawView:     !flags.IsSet(metadata.BufferUsageStructuredBuffer),
		}
		b.DefaultView = d.createBufferResourceViewLocked(h, b, &view)
		if b.DefaultView.IsInvalid() {
			d.buffers.Remove(h)
			d.deleteLater(metadata.ObjectTypeBuffer, native)
			return BufferHandle{}
		}
	}
	return h
}

// upload records a copy into the init command buffer. The staging object is
// released once the frame has finished.
func (d *Device) upload(record func(cb any) (any, error)) error {
	d.ringMu.Lock()
	defer d.ringMu.Unlock()

	cb, err := d.ring.InitCommandBuffer()
	if err != nil {
		return err
	}
	staging, err := record(cb)
	if err != nil {
		return err
	}
	if staging != nil {
		backend := d.backend
		d.ring.DeleteLater(func() { backend.Destroy(metadata.ObjectTypeBuffer, staging) })
	}
	return nil
}

// bufferSize multiplies in 64 bits and rejects sizes a description cannot hold.
func bufferSize(op string, stride, count uint32) (uint32, error) {
	size := uint64(stride) * uint64(count)
	if size > gomath.MaxUint32 {
		return 0, validationError("%s: %d elements of %d bytes overflow the 4 GiB buffer limit", op, count, stride)
	}
	return uint32(size), nil
}

func (d *Device) CreateVertexBuffer(vertexSize, vertexCount uint32, initialData []byte, mutable bool) BufferHandle {
	size, err := bufferSize("CreateVertexBuffer", vertexSize, vertexCount)
	if err != nil {
		return BufferHandle{}
	}
	desc := metadata.BufferCreationDescription{
		TotalSize:   size,
		StructSize:  vertexSize,
		BufferFlags: metadata.BufferUsageVertexBuffer,
		ResourceAccess: metadata.ResourceAccess{
			Immutable: !mutable,
		},
	}
	return d.CreateBuffer(&desc, initialData)
}

func (d *Device) CreateIndexBuffer(indexType metadata.IndexType, indexCount uint32, initialData []byte, mutable bool) BufferHandle {
	size, err := bufferSize("CreateIndexBuffer", indexType.Size(), indexCount)
	if err != nil {
		return BufferHandle{}
	}
	desc := metadata.BufferCreationDescription{
		TotalSize:   size,
		StructSize:  indexType.Size(),
		BufferFlags: metadata.BufferUsageIndexBuffer,
		ResourceAccess: metadata.ResourceAccess{
			Immutable: !mutable,
		},
	}
	return d.CreateBuffer(&desc, initialData)
}

// CreateConstantBuffer creates a mutable constant buffer, padded to the
// backend's constant alignment.
func (d *Device) CreateConstantBuffer(size uint32) BufferHandle {
	if align := d.capabilities.MinConstantAlignment; align > 0 {
		size = math.AlignUp(size, align)
	}
	desc := metadata.BufferCreationDescription{
		TotalSize:   size,
		BufferFlags: metadata.BufferUsageConstantBuffer,
	}
	return d.CreateBuffer(&desc, nil)
}

func (d *Device) DestroyBuffer(h BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.buffers.Contains(h) {
		core.LogWarn("DestroyBuffer: %s is not a live buffer (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeBuffer, h.Raw())
}

func (d *Device) GetBuffer(h BufferHandle) (*Buffer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers.TryGet(h)
}

// GetDefaultBufferResourceView returns the view created with the buffer, or the
// invalid handle when it has none.
func (d *Device) GetDefaultBufferResourceView(h BufferHandle) BufferResourceViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers.TryGet(h); ok {
		return b.DefaultView
	}
	return BufferResourceViewHandle{}
}

// WriteBuffer writes host visible memory directly. The caller guarantees the
// GPU no longer reads the written range.
func (d *Device) WriteBuffer(h BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	b, ok := d.buffers.TryGet(h)
	d.mu.Unlock()
	if !ok {
		return validationError("WriteBuffer: %s is not a live buffer", h)
	}
	if b.Description.ResourceAccess.IsImmutable() {
		return validationError("WriteBuffer: buffer %s is immutable", h)
	}
	if offset+uint64(len(data)) > uint64(b.Description.TotalSize) {
		return validationError("WriteBuffer: %d bytes at offset %d overflow %d bytes", len(data), offset, b.Description.TotalSize)
	}
	return d.backend.WriteBuffer(b.Native, offset, data)
}

func (d *Device) CreateBufferResourceView(buffer BufferHandle, desc *metadata.BufferResourceViewCreationDescription) BufferResourceViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.TryGet(buffer)
	if !ok {
		validationError("CreateBufferResourceView: %s is not a valid buffer", buffer)
		return BufferResourceViewHandle{}
	}
	return d.createBufferResourceViewLocked(buffer, b, desc)
}

func (d *Device) createBufferResourceViewLocked(buffer BufferHandle, b *Buffer, in *metadata.BufferResourceViewCreationDescription) BufferResourceViewHandle {
	flags := b.Description.BufferFlags
	if !flags.IsSet(metadata.BufferUsageShaderResource) {
		validationError("CreateBufferResourceView: buffer %s was not created with shader resource usage", buffer)
		return BufferResourceViewHandle{}
	}
	if in.RawView && !flags.IsSet(metadata.BufferUsageByteAddressBuffer) {
		validationError("CreateBufferResourceView: raw views need the byte address usage on buffer %s", buffer)
		return BufferResourceViewHandle{}
	}
	desc := *in
	count := b.Description.ElementCount()
	if desc.NumElements == 0 && desc.FirstElement < count {
		desc.NumElements = count - desc.FirstElement
	}
	if desc.NumElements == 0 || desc.FirstElement+desc.NumElements > count {
		validationError("CreateBufferResourceView: elements [%d, %d) exceed the %d elements of buffer %s",
			desc.FirstElement, desc.FirstElement+desc.NumElements, count, buffer)
		return BufferResourceViewHandle{}
	}

	hash := desc.CalculateHash()
	if existing, ok := b.resourceViews[hash]; ok && d.bufferViews.Contains(existing) {
		return existing
	}

	native, err := d.backend.CreateBufferResourceView(b.Native, &b.Description, &desc)
	if err != nil {
		core.LogError("CreateBufferResourceView: backend failed for buffer %s: %s", buffer, err)
		return BufferResourceViewHandle{}
	}
	h := d.bufferViews.Insert(&BufferResourceView{Description: desc, Native: native, Buffer: buffer})
	b.resourceViews[hash] = h
	return h
}

func (d *Device) DestroyBufferResourceView(h BufferResourceViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.bufferViews.Contains(h) {
		core.LogWarn("DestroyBufferResourceView: %s is not a live view (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeBufferResourceView, h.Raw())
}

func (d *Device) GetBufferResourceView(h BufferResourceViewHandle) (*BufferResourceView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferViews.TryGet(h)
}

func (d *Device) CreateBufferUnorderedAccessView(buffer BufferHandle, desc *metadata.BufferUnorderedAccessViewCreationDescription) BufferUnorderedAccessViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.TryGet(buffer)
	if !ok {
		validationError("CreateBufferUnorderedAccessView: %s is not a valid buffer", buffer)
		return BufferUnorderedAccessViewHandle{}
	}
	return d.createBufferUnorderedAccessViewLocked(buffer, b, desc)
}

func (d *Device) createBufferUnorderedAccessViewLocked(buffer BufferHandle, b *Buffer, in *metadata.BufferUnorderedAccessViewCreationDescription) BufferUnorderedAccessViewHandle {
	flags := b.Description.BufferFlags
	if !flags.IsSet(metadata.BufferUsageUnorderedAccess) {
		validationError("CreateBufferUnorderedAccessView: buffer %s was not created with unordered access usage", buffer)
		return BufferUnorderedAccessViewHandle{}
	}
	if in.RawView && !flags.IsSet(metadata.BufferUsageByteAddressBuffer) {
		validationError("CreateBufferUnorderedAccessView: raw views need the byte address usage on buffer %s", buffer)
		return BufferUnorderedAccessViewHandle{}
	}
	structured := flags.IsSet(metadata.BufferUsageStructuredBuffer)
	if !in.RawView && !structured && !in.OverrideViewFormat.IsValid() {
		validationError("CreateBufferUnorderedAccessView: typed view of buffer %s needs a valid format", buffer)
		return BufferUnorderedAccessViewHandle{}
	}
	desc := *in
	count := b.Description.ElementCount()
	if desc.NumElements == 0 && desc.FirstElement < count {
		desc.NumElements = count - desc.FirstElement
	}
	if desc.NumElements == 0 || desc.FirstElement+desc.NumElements > count {
		validationError("CreateBufferUnorderedAccessView: elements [%d, %d) exceed the %d elements of buffer %s",
			desc.FirstElement, desc.FirstElement+desc.NumElements, count, buffer)
		return BufferUnorderedAccessViewHandle{}
	}

	hash := desc.CalculateHash()
	if existing, ok := b.uavs[hash]; ok && d.bufferUAVs.Contains(existing) {
		return existing
	}

	native, err := d.backend.CreateBufferUnorderedAccessView(b.Native, &b.Description, &desc)
	if err != nil {
		core.LogError("CreateBufferUnorderedAccessView: backend failed for buffer %s: %s", buffer, err)
		return BufferUnorderedAccessViewHandle{}
	}
	h := d.bufferUAVs.Insert(&BufferUnorderedAccessView{Description: desc, Native: native, Buffer: buffer})
	b.uavs[hash] = h
	return h
}

func (d *Device) DestroyBufferUnorderedAccessView(h BufferUnorderedAccessViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.bufferUAVs.Contains(h) {
		core.LogWarn("DestroyBufferUnorderedAccessView: %s is not a live view (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeBufferUnorderedAccessView, h.Raw())
}

func (d *Device) GetBufferUnorderedAccessView(h BufferUnorderedAccessViewHandle) (*BufferUnorderedAccessView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferUAVs.TryGet(h)
}
