package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

// maxInlineUpdateSize is the largest update recorded inline in the command
// stream.
const maxInlineUpdateSize = 65536

// beginTransfer closes an open render pass and returns the command buffer.
// Copies and clears never run inside a render pass.
func (e *CommandEncoder) beginTransfer() (any, error) {
	cb, err := e.commandBuffer()
	if err != nil {
		return nil, err
	}
	e.suspendPass()
	return cb, nil
}

func (e *CommandEncoder) lookupBuffer(name string, h BufferHandle) (*Buffer, error) {
	b, ok := e.device.GetBuffer(h)
	if !ok {
		return nil, validationError("%s: %s is not a live buffer", name, h)
	}
	return b, nil
}

// CopyBuffer copies the whole source into the destination.
func (e *CommandEncoder) CopyBuffer(src, dst BufferHandle) error {
	s, err := e.lookupBuffer("CopyBuffer", src)
	if err != nil {
		return err
	}
	size := uint64(s.Description.TotalSize)
	return e.CopyBufferRegion(src, dst, []metadata.BufferCopyRegion{{Size: size}})
}

func (e *CommandEncoder) CopyBufferRegion(src, dst BufferHandle, regions []metadata.BufferCopyRegion) error {
	if src == dst {
		return validationError("CopyBufferRegion: source and destination are both %s", src)
	}
	s, err := e.lookupBuffer("CopyBufferRegion", src)
	if err != nil {
		return err
	}
	t, err := e.lookupBuffer("CopyBufferRegion", dst)
	if err != nil {
		return err
	}
	if t.Description.ResourceAccess.IsImmutable() {
		return validationError("CopyBufferRegion: destination %s is immutable", dst)
	}
	if len(regions) == 0 {
		return validationError("CopyBufferRegion: no regions")
	}
	for _, r := range regions {
		if r.Size == 0 ||
			r.SrcOffset+r.Size > uint64(s.Description.TotalSize) ||
			r.DstOffset+r.Size > uint64(t.Description.TotalSize) {
			return validationError("CopyBufferRegion: region %+v is out of bounds (%d -> %d bytes)", r, s.Description.TotalSize, t.Description.TotalSize)
		}
	}

	cb, err := e.beginTransfer()
	if err != nil {
		return err
	}
	e.ensure(resourceAccess{key: bufferKey(src), native: s.Native, state: barrier.StateBufferCopySrc, initial: s.initialState})
	e.ensure(resourceAccess{key: bufferKey(dst), native: t.Native, state: barrier.StateBufferCopyDst, initial: t.initialState})
	e.applyBarriers(cb)
	e.device.backend.CmdCopyBuffer(cb, s.Native, t.Native, regions)
	return nil
}

// UpdateBuffer writes data into a buffer. NoOverwrite writes host memory
// directly, the other modes record the data inline in the command stream.
func (e *CommandEncoder) UpdateBuffer(dst BufferHandle, offset uint64, data []byte, mode metadata.UpdateMode) error {
	if len(data) == 0 {
		return nil
	}
	if mode == metadata.UpdateModeNoOverwrite {
		return e.device.WriteBuffer(dst, offset, data)
	}

	b, err := e.lookupBuffer("UpdateBuffer", dst)
	if err != nil {
		return err
	}
	if b.Description.ResourceAccess.IsImmutable() {
		return validationError("UpdateBuffer: buffer %s is immutable", dst)
	}
	if offset+uint64(len(data)) > uint64(b.Description.TotalSize) {
		return validationError("UpdateBuffer: %d bytes at offset %d overflow %d bytes", len(data), offset, b.Description.TotalSize)
	}
	if len(data) > maxInlineUpdateSize {
		return validationError("UpdateBuffer: %d bytes exceed the inline limit of %d", len(data), maxInlineUpdateSize)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return validationError("UpdateBuffer: offset %d and size %d must be multiples of 4", offset, len(data))
	}

	cb, err := e.beginTransfer()
	if err != nil {
		return err
	}
	e.ensure(resourceAccess{
		key:     bufferKey(dst),
		native:  b.Native,
		state:   barrier.StateBufferCopyDst,
		initial: b.initialState,
		discard: mode == metadata.UpdateModeDiscard,
	})
	e.applyBarriers(cb)
	e.device.backend.CmdUpdateBuffer(cb, b.Native, offset, data)
	return nil
}

type textureCopySide struct {
	key    barrier.ResourceKey
	native any
	desc   metadata.TextureCreationDescription
	slice  uint32
	state  barrier.State
}

func (e *CommandEncoder) lookupCopyTexture(name string, h TextureHandle) (textureCopySide, error) {
	d := e.device
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures.TryGet(h)
	if !ok {
		return textureCopySide{}, validationError("%s: %s is not a live texture", name, h)
	}
	side := textureCopySide{key: textureKey(h, t), native: t.Native, desc: t.Description, state: t.initialState}
	if t.IsProxy() {
		side.slice = t.Slice
		if p, ok := d.textures.TryGet(t.Parent); ok {
			side.desc = p.Description
			side.state = p.initialState
		}
	}
	return side, nil
}

// CopyTexture copies mip 0 of the first slice into the destination.
func (e *CommandEncoder) CopyTexture(src, dst TextureHandle) error {
	return e.CopyTextureRegion(src, dst, metadata.TextureCopyRegion{})
}

// CopyTextureRegion copies one box between two subresources. A zero extent
// copies the whole source mip level.
func (e *CommandEncoder) CopyTextureRegion(src, dst TextureHandle, region metadata.TextureCopyRegion) error {
	if src == dst {
		return validationError("CopyTextureRegion: source and destination are both %s", src)
	}
	s, err := e.lookupCopyTexture("CopyTextureRegion", src)
	if err != nil {
		return err
	}
	t, err := e.lookupCopyTexture("CopyTextureRegion", dst)
	if err != nil {
		return err
	}
	if t.desc.ResourceAccess.IsImmutable() {
		return validationError("CopyTextureRegion: destination %s is immutable", dst)
	}
	if s.desc.Format.Size() != t.desc.Format.Size() {
		return validationError("CopyTextureRegion: formats %s and %s are not copy compatible", s.desc.Format, t.desc.Format)
	}
	if s.desc.SampleCount != t.desc.SampleCount {
		return validationError("CopyTextureRegion: sample counts %d and %d differ", s.desc.SampleCount, t.desc.SampleCount)
	}

	region.SrcArraySlice += s.slice
	region.DstArraySlice += t.slice
	if region.SrcMipLevel >= s.desc.MipLevelCount || region.DstMipLevel >= t.desc.MipLevelCount {
		return validationError("CopyTextureRegion: mip %d -> %d is out of range", region.SrcMipLevel, region.DstMipLevel)
	}
	if region.SrcArraySlice >= sliceCount(&s.desc, region.SrcMipLevel) || region.DstArraySlice >= sliceCount(&t.desc, region.DstMipLevel) {
		return validationError("CopyTextureRegion: slice %d -> %d is out of range", region.SrcArraySlice, region.DstArraySlice)
	}
	srcW, srcH := mipExtent(&s.desc, region.SrcMipLevel)
	dstW, dstH := mipExtent(&t.desc, region.DstMipLevel)
	if region.SrcX >= srcW || region.SrcY >= srcH {
		return validationError("CopyTextureRegion: source origin %d,%d is outside %dx%d", region.SrcX, region.SrcY, srcW, srcH)
	}
	if region.Width == 0 || region.Height == 0 {
		region.Width, region.Height = srcW-region.SrcX, srcH-region.SrcY
	}
	if region.SrcX+region.Width > srcW || region.SrcY+region.Height > srcH ||
		region.DstX+region.Width > dstW || region.DstY+region.Height > dstH {
		return validationError("CopyTextureRegion: %dx%d box is out of bounds", region.Width, region.Height)
	}

	cb, err := e.beginTransfer()
	if err != nil {
		return err
	}
	e.ensure(resourceAccess{key: s.key, native: s.native, state: barrier.StateCopySrc, initial: s.state})
	e.ensure(resourceAccess{key: t.key, native: t.native, state: barrier.StateCopyDst, initial: t.state})
	e.applyBarriers(cb)
	e.device.backend.CmdCopyTexture(cb, s.native, t.native, region)
	return nil
}

func mipExtent(desc *metadata.TextureCreationDescription, mip uint32) (uint32, uint32) {
	return max(desc.Width>>mip, 1), max(desc.Height>>mip, 1)
}

// ClearUnorderedAccessView fills every texel the view covers with values.
func (e *CommandEncoder) ClearUnorderedAccessView(h TextureUnorderedAccessViewHandle, values [4]uint32) error {
	d := e.device
	d.mu.Lock()
	v, ok := d.textureUAVs.TryGet(h)
	var t *Texture
	if ok {
		t, ok = d.textures.TryGet(v.Texture)
	}
	d.mu.Unlock()
	if !ok {
		return validationError("ClearUnorderedAccessView: %s is not a live texture UAV", h)
	}

	cb, err := e.beginTransfer()
	if err != nil {
		return err
	}
	e.ensure(resourceAccess{key: textureKey(v.Texture, t), native: t.Native, state: barrier.StateCopyDst, initial: t.initialState, discard: true})
	e.applyBarriers(cb)
	d.backend.CmdClearUnorderedAccessView(cb, v.Native, values)
	return nil
}

func (e *CommandEncoder) ClearBufferUnorderedAccessView(h BufferUnorderedAccessViewHandle, values [4]uint32) error {
	d := e.device
	d.mu.Lock()
	v, ok := d.bufferUAVs.TryGet(h)
	var b *Buffer
	if ok {
		b, ok = d.buffers.TryGet(v.Buffer)
	}
	d.mu.Unlock()
	if !ok {
		return validationError("ClearBufferUnorderedAccessView: %s is not a live buffer UAV", h)
	}

	cb, err := e.beginTransfer()
	if err != nil {
		return err
	}
	e.ensure(resourceAccess{key: bufferKey(v.Buffer), native: b.Native, state: barrier.StateBufferCopyDst, initial: b.initialState})
	e.applyBarriers(cb)
	d.backend.CmdClearUnorderedAccessView(cb, v.Native, values)
	return nil
}

// BeginQuery starts an occlusion query. Timestamp queries are only ended.
func (e *CommandEncoder) BeginQuery(h QueryHandle) error {
	q, ok := e.device.GetQuery(h)
	if !ok {
		return validationError("BeginQuery: %s is not a live query", h)
	}
	if q.Description.Type == metadata.QueryTypeTimestamp {
		return validationError("BeginQuery: timestamp query %s is only ended", h)
	}
	if _, open := e.openQueries[h]; open {
		return e.device.contractViolation(core.ErrNestedBracket, "BeginQuery(%s)", h)
	}
	cb, err := e.commandBuffer()
	if err != nil {
		return err
	}
	e.device.backend.CmdBeginQuery(cb, q.Native)
	e.openQueries[h] = struct{}{}
	return nil
}

func (e *CommandEncoder) EndQuery(h QueryHandle) error {
	q, ok := e.device.GetQuery(h)
	if !ok {
		return validationError("EndQuery: %s is not a live query", h)
	}
	if _, open := e.openQueries[h]; !open && q.Description.Type != metadata.QueryTypeTimestamp {
		return e.device.contractViolation(core.ErrUnbalancedBracket, "EndQuery(%s)", h)
	}
	cb, err := e.commandBuffer()
	if err != nil {
		return err
	}
	e.device.backend.CmdEndQuery(cb, q.Native)
	delete(e.openQueries, h)
	return nil
}

// GetQueryResult polls the result of a query. ready is false while the GPU
// has not produced it yet.
func (e *CommandEncoder) GetQueryResult(h QueryHandle) (result uint64, ready bool, err error) {
	q, ok := e.device.GetQuery(h)
	if !ok {
		return 0, false, validationError("GetQueryResult: %s is not a live query", h)
	}
	result, ready, err = e.device.backend.ReadQuery(q.Native)
	if err != nil {
		core.LogError("failed to read query %s: %s", h, err)
		return 0, false, err
	}
	if !ready && q.Description.DrawIfUnknown && q.Description.Type != metadata.QueryTypeTimestamp {
		return 1, false, nil
	}
	return result, ready, nil
}
