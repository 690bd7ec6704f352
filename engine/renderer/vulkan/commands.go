package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

// vkCmdUpdateBuffer accepts at most this many bytes per call.
const maxInlineUpdate = 65536

// recording resolves the command buffer of a Cmd* call. The encoder only
// records into buffers it allocated here, so a mismatch is logged and dropped.
func recording(native any, op string) (*CommandBuffer, bool) {
	cb, err := asCommandBuffer(native)
	if err != nil {
		core.LogError("%s: %s", op, err)
		return nil, false
	}
	return cb, true
}

func (b *Backend) CmdBeginRenderPass(native any, info *cache.RenderPassBeginInfo) {
	cb, ok := recording(native, "CmdBeginRenderPass")
	if !ok {
		return
	}
	rp, err := asRenderPass(info.RenderPass.Native)
	if err != nil {
		core.LogError("CmdBeginRenderPass: %s", err)
		return
	}
	fb, err := asFramebuffer(info.Framebuffer.Native)
	if err != nil {
		core.LogError("CmdBeginRenderPass: %s", err)
		return
	}

	clearValues := make([]vk.ClearValue, 0, rp.ColorCount+1)
	for i := uint32(0); i < rp.ColorCount; i++ {
		var value vk.ClearValue
		value.SetColor(info.ClearColors[i][:])
		clearValues = append(clearValues, value)
	}
	if rp.HasDepth {
		var value vk.ClearValue
		value.SetDepthStencil(info.ClearDepth, uint32(info.ClearStencil))
		clearValues = append(clearValues, value)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: info.Width, Height: info.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb.Handle, &beginInfo, vk.SubpassContentsInline)
	cb.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (b *Backend) CmdEndRenderPass(native any) {
	cb, ok := recording(native, "CmdEndRenderPass")
	if !ok {
		return
	}
	if cb.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		core.LogWarn("CmdEndRenderPass: no render pass is open")
		return
	}
	vk.CmdEndRenderPass(cb.Handle)
	cb.State = COMMAND_BUFFER_STATE_RECORDING
}

func (b *Backend) CmdBindPipeline(native any, pipeline *cache.Pipeline) {
	cb, ok := recording(native, "CmdBindPipeline")
	if !ok {
		return
	}
	p, err := asPipeline(pipeline.Native)
	if err != nil {
		core.LogError("CmdBindPipeline: %s", err)
		return
	}
	vk.CmdBindPipeline(cb.Handle, p.BindPoint, p.Handle)
}

func (b *Backend) CmdSetViewport(native any, viewport math.Viewport) {
	cb, ok := recording(native, "CmdSetViewport")
	if !ok {
		return
	}
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (b *Backend) CmdSetScissor(native any, scissor math.Rectangle) {
	cb, ok := recording(native, "CmdSetScissor")
	if !ok {
		return
	}
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: max(scissor.X, 0), Y: max(scissor.Y, 0)},
		Extent: vk.Extent2D{Width: scissor.Width, Height: scissor.Height},
	}})
}

func (b *Backend) CmdBindVertexBuffers(native any, firstSlot uint32, buffers []any, offsets []uint64) {
	cb, ok := recording(native, "CmdBindVertexBuffers")
	if !ok || len(buffers) == 0 {
		return
	}
	handles := make([]vk.Buffer, len(buffers))
	vkOffsets := make([]vk.DeviceSize, len(buffers))
	for i, native := range buffers {
		buf, err := asBuffer(native)
		if err != nil {
			core.LogError("CmdBindVertexBuffers: slot %d: %s", firstSlot+uint32(i), err)
			return
		}
		handles[i] = buf.Handle
		if i < len(offsets) {
			vkOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(cb.Handle, firstSlot, uint32(len(handles)), handles, vkOffsets)
}

func (b *Backend) CmdBindIndexBuffer(native any, buffer any, offset uint64, indexType metadata.IndexType) {
	cb, ok := recording(native, "CmdBindIndexBuffer")
	if !ok {
		return
	}
	buf, err := asBuffer(buffer)
	if err != nil {
		core.LogError("CmdBindIndexBuffer: %s", err)
		return
	}
	vk.CmdBindIndexBuffer(cb.Handle, buf.Handle, vk.DeviceSize(offset), toVkIndexType(indexType))
}

func (b *Backend) CmdPushConstants(native any, layout *cache.PipelineLayout, offset uint32, data []byte) {
	cb, ok := recording(native, "CmdPushConstants")
	if !ok || len(data) == 0 {
		return
	}
	pl, err := asPipelineLayout(layout.Native)
	if err != nil {
		core.LogError("CmdPushConstants: %s", err)
		return
	}
	if pl.PushStages == 0 {
		core.LogWarn("CmdPushConstants: layout declares no push constants")
		return
	}
	vk.CmdPushConstants(cb.Handle, pl.Handle, pl.PushStages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (b *Backend) CmdDraw(native any, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if cb, ok := recording(native, "CmdDraw"); ok {
		vk.CmdDraw(cb.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (b *Backend) CmdDrawIndexed(native any, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb, ok := recording(native, "CmdDrawIndexed"); ok {
		vk.CmdDrawIndexed(cb.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (b *Backend) CmdDrawIndirect(native any, buffer any, offset uint64, drawCount, stride uint32, indexed bool) {
	cb, ok := recording(native, "CmdDrawIndirect")
	if !ok {
		return
	}
	buf, err := asBuffer(buffer)
	if err != nil {
		core.LogError("CmdDrawIndirect: %s", err)
		return
	}
	if drawCount > 1 && b.features.MultiDrawIndirect != vk.True {
		// One call per draw keeps the arguments layout intact.
		for i := uint32(0); i < drawCount; i++ {
			b.drawIndirect(cb, buf, offset+uint64(i)*uint64(stride), 1, stride, indexed)
		}
		return
	}
	b.drawIndirect(cb, buf, offset, drawCount, stride, indexed)
}

func (b *Backend) drawIndirect(cb *CommandBuffer, buf *Buffer, offset uint64, drawCount, stride uint32, indexed bool) {
	if indexed {
		vk.CmdDrawIndexedIndirect(cb.Handle, buf.Handle, vk.DeviceSize(offset), drawCount, stride)
		return
	}
	vk.CmdDrawIndirect(cb.Handle, buf.Handle, vk.DeviceSize(offset), drawCount, stride)
}

func (b *Backend) CmdDispatch(native any, x, y, z uint32) {
	if cb, ok := recording(native, "CmdDispatch"); ok {
		vk.CmdDispatch(cb.Handle, x, y, z)
	}
}

func (b *Backend) CmdDispatchIndirect(native any, buffer any, offset uint64) {
	cb, ok := recording(native, "CmdDispatchIndirect")
	if !ok {
		return
	}
	buf, err := asBuffer(buffer)
	if err != nil {
		core.LogError("CmdDispatchIndirect: %s", err)
		return
	}
	vk.CmdDispatchIndirect(cb.Handle, buf.Handle, vk.DeviceSize(offset))
}

func (b *Backend) CmdCopyBuffer(native any, src, dst any, regions []metadata.BufferCopyRegion) {
	cb, ok := recording(native, "CmdCopyBuffer")
	if !ok || len(regions) == 0 {
		return
	}
	srcBuf, err := asBuffer(src)
	if err != nil {
		core.LogError("CmdCopyBuffer: %s", err)
		return
	}
	dstBuf, err := asBuffer(dst)
	if err != nil {
		core.LogError("CmdCopyBuffer: %s", err)
		return
	}
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(cb.Handle, srcBuf.Handle, dstBuf.Handle, uint32(len(copies)), copies)
}

// CmdUpdateBuffer records the bytes inline. Offsets and sizes must be
// multiples of four.
func (b *Backend) CmdUpdateBuffer(native any, dst any, offset uint64, data []byte) {
	cb, ok := recording(native, "CmdUpdateBuffer")
	if !ok || len(data) == 0 {
		return
	}
	buf, err := asBuffer(dst)
	if err != nil {
		core.LogError("CmdUpdateBuffer: %s", err)
		return
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		core.LogError("CmdUpdateBuffer: offset %d and size %d must be multiples of 4", offset, len(data))
		return
	}
	for start := 0; start < len(data); start += maxInlineUpdate {
		end := min(start+maxInlineUpdate, len(data))
		chunk := data[start:end]
		vk.CmdUpdateBuffer(cb.Handle, buf.Handle, vk.DeviceSize(offset+uint64(start)), vk.DeviceSize(len(chunk)), unsafe.Pointer(&chunk[0]))
	}
}

func (b *Backend) CmdCopyTexture(native any, src, dst any, region metadata.TextureCopyRegion) {
	cb, ok := recording(native, "CmdCopyTexture")
	if !ok {
		return
	}
	srcTex, err := asTexture(src)
	if err != nil {
		core.LogError("CmdCopyTexture: %s", err)
		return
	}
	dstTex, err := asTexture(dst)
	if err != nil {
		core.LogError("CmdCopyTexture: %s", err)
		return
	}

	width, height := region.Width, region.Height
	depth := uint32(1)
	if width == 0 || height == 0 {
		w, h, d := srcTex.mipExtent(region.SrcMipLevel)
		width, height = w-min(region.SrcX, w), h-min(region.SrcY, h)
		if srcTex.Type == metadata.TextureType3D {
			depth = d
		}
	}

	imageCopy := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask:     srcTex.Aspect,
			MipLevel:       region.SrcMipLevel,
			BaseArrayLayer: region.SrcArraySlice,
			LayerCount:     1,
		},
		SrcOffset: vk.Offset3D{X: int32(region.SrcX), Y: int32(region.SrcY)},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask:     dstTex.Aspect,
			MipLevel:       region.DstMipLevel,
			BaseArrayLayer: region.DstArraySlice,
			LayerCount:     1,
		},
		DstOffset: vk.Offset3D{X: int32(region.DstX), Y: int32(region.DstY)},
		Extent:    vk.Extent3D{Width: width, Height: height, Depth: depth},
	}
	vk.CmdCopyImage(cb.Handle,
		srcTex.Image, vk.ImageLayoutTransferSrcOptimal,
		dstTex.Image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{imageCopy})
}

// CmdClearUnorderedAccessView fills a buffer view with values[0] or clears
// every subresource of a texture view with the raw values.
func (b *Backend) CmdClearUnorderedAccessView(native any, view any, values [4]uint32) {
	cb, ok := recording(native, "CmdClearUnorderedAccessView")
	if !ok {
		return
	}
	switch v := view.(type) {
	case *BufferView:
		vk.CmdFillBuffer(cb.Handle, v.Buffer.Handle, vk.DeviceSize(v.Offset), vk.DeviceSize(v.Range&^3), values[0])
	case *ImageView:
		var color vk.ClearColorValue
		*(*[4]uint32)(unsafe.Pointer(&color)) = values
		vk.CmdClearColorImage(cb.Handle, v.Texture.Image, vk.ImageLayoutGeneral, &color, 1, []vk.ImageSubresourceRange{v.Range})
	default:
		core.LogError("CmdClearUnorderedAccessView: unexpected view %T", view)
	}
}

// CmdBeginQuery resets the query inline when it was used before. Resets are
// illegal inside a render pass, so such a query is deferred to the next
// command buffer and skipped this time.
func (b *Backend) CmdBeginQuery(native any, query any) {
	cb, ok := recording(native, "CmdBeginQuery")
	if !ok {
		return
	}
	q, err := asQuery(query)
	if err != nil {
		core.LogError("CmdBeginQuery: %s", err)
		return
	}
	if q.Type == metadata.QueryTypeTimestamp {
		return
	}
	if !q.fresh {
		if cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
			core.LogWarn("CmdBeginQuery: query reused inside a render pass, skipping until it is reset")
			b.queueQueryReset(q)
			return
		}
		vk.CmdResetQueryPool(cb.Handle, q.Pool, 0, 1)
	}
	var flags vk.QueryControlFlags
	if q.Type == metadata.QueryTypeNumSamplesPassed {
		flags = vk.QueryControlFlags(vk.QueryControlPreciseBit)
	}
	vk.CmdBeginQuery(cb.Handle, q.Pool, 0, flags)
	q.fresh = false
	q.active = true
}

func (b *Backend) CmdEndQuery(native any, query any) {
	cb, ok := recording(native, "CmdEndQuery")
	if !ok {
		return
	}
	q, err := asQuery(query)
	if err != nil {
		core.LogError("CmdEndQuery: %s", err)
		return
	}
	if q.Type == metadata.QueryTypeTimestamp {
		if !q.fresh {
			if cb.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
				core.LogWarn("CmdEndQuery: timestamp reused inside a render pass, skipping until it is reset")
				b.queueQueryReset(q)
				return
			}
			vk.CmdResetQueryPool(cb.Handle, q.Pool, 0, 1)
		}
		vk.CmdWriteTimestamp(cb.Handle, vk.PipelineStageBottomOfPipeBit, q.Pool, 0)
		q.fresh = false
		q.ended = true
		return
	}
	if !q.active {
		return
	}
	vk.CmdEndQuery(cb.Handle, q.Pool, 0)
	q.active = false
	q.ended = true
}

// Debug markers need VK_EXT_debug_utils, which is not enabled. The names are
// tracked so unbalanced markers show up in the log.
func (b *Backend) CmdBeginDebugMarker(native any, name string) {
	cb, ok := recording(native, "CmdBeginDebugMarker")
	if !ok {
		return
	}
	cb.markers = append(cb.markers, name)
	core.LogDebug("marker begin: %s", name)
}

func (b *Backend) CmdEndDebugMarker(native any) {
	cb, ok := recording(native, "CmdEndDebugMarker")
	if !ok {
		return
	}
	if len(cb.markers) == 0 {
		core.LogWarn("CmdEndDebugMarker: no marker is open")
		return
	}
	name := cb.markers[len(cb.markers)-1]
	cb.markers = cb.markers[:len(cb.markers)-1]
	core.LogDebug("marker end: %s", name)
}
