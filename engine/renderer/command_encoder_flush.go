package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

// BeginRendering starts recording graphics work into the setup's
// attachments. The render pass itself opens with the first draw; a setup
// that is only cleared is executed by EndRendering.
func (e *CommandEncoder) BeginRendering(setup *RenderingSetup) error {
	if e.mode != encoderIdle {
		return e.device.contractViolation(core.ErrNestedBracket, "BeginRendering while recording %s work", e.mode)
	}
	resolved, err := e.device.resolveRenderingSetup(setup)
	if err != nil {
		return err
	}

	e.mode = encoderGraphics
	e.rendering = resolved
	e.setup = *setup
	e.setup.ColorTargets = append([]RenderTargetViewHandle(nil), setup.ColorTargets...)
	e.passOpen = false
	e.passBegun = false
	e.drawn = false

	e.SetViewport(math.Viewport{
		Width:    float32(resolved.width),
		Height:   float32(resolved.height),
		MaxDepth: 1,
	})
	e.SetScissor(math.Rectangle{Width: resolved.width, Height: resolved.height})
	e.dirty |= dirtyPipeline | dirtyViewport | dirtyScissor
	return nil
}

// EndRendering closes the render pass. Attachments that were only cleared
// get a pass of their own.
func (e *CommandEncoder) EndRendering() error {
	if e.mode != encoderGraphics {
		return e.device.contractViolation(core.ErrNotRecording, "EndRendering without BeginRendering")
	}
	var err error
	if !e.passBegun && e.setup.ClearsAnything() {
		var cb any
		if cb, err = e.commandBuffer(); err == nil {
			err = e.beginPass(cb)
		}
	}
	if e.passOpen {
		e.endPass()
	}
	e.mode = encoderIdle
	e.rendering = nil
	e.setup = RenderingSetup{}
	e.dirty |= dirtyPipeline
	return err
}

func (e *CommandEncoder) BeginCompute() error {
	if e.mode != encoderIdle {
		return e.device.contractViolation(core.ErrNestedBracket, "BeginCompute while recording %s work", e.mode)
	}
	e.mode = encoderCompute
	e.dirty |= dirtyPipeline
	return nil
}

func (e *CommandEncoder) EndCompute() error {
	if e.mode != encoderCompute {
		return e.device.contractViolation(core.ErrNotRecording, "EndCompute without BeginCompute")
	}
	e.mode = encoderIdle
	e.dirty |= dirtyPipeline
	return nil
}

// endRecording closes whatever the encoder is recording.
func (e *CommandEncoder) endRecording() {
	switch e.mode {
	case encoderGraphics:
		e.EndRendering()
	case encoderCompute:
		e.EndCompute()
	}
}

// beginPass transitions the attachments and opens the render pass. The first
// begin of a setup clears, a resumed pass loads.
func (e *CommandEncoder) beginPass(cb any) error {
	r := e.rendering
	desc := &r.loadPass
	first := !e.passBegun
	if first {
		desc = &r.clearPass
	}
	rp, err := e.device.cache.GetOrCreateRenderPass(desc)
	if err != nil {
		core.LogError("failed to create render pass: %s", err)
		return err
	}
	for _, a := range r.attachments {
		e.ensure(resourceAccess{
			key:     a.key,
			native:  a.texture,
			state:   a.state,
			initial: a.initial,
			discard: first && a.cleared,
		})
	}
	e.applyBarriers(cb)

	info := r.info
	info.RenderPass = rp
	e.device.backend.CmdBeginRenderPass(cb, &info)
	e.passOpen = true
	e.passBegun = true
	return nil
}

func (e *CommandEncoder) endPass() {
	if !e.passOpen {
		return
	}
	if e.cb != nil {
		e.device.backend.CmdEndRenderPass(e.cb)
	}
	e.passOpen = false
}

// suspendPass closes an open render pass. It is resumed with the next draw.
func (e *CommandEncoder) suspendPass() {
	e.endPass()
}

// ensure reconciles one access with the tracked state of the resource.
func (e *CommandEncoder) ensure(a resourceAccess) {
	if _, known := e.tracker.State(a.key); !known {
		e.tracker.SetState(a.key, a.initial)
	}
	e.tracker.EnsureAccess(a.key, a.native, a.state, a.discard)
}

func (e *CommandEncoder) applyBarriers(cb any) {
	e.tracker.Flush(func(batch barrier.Batch[barrier.ResourceKey]) {
		e.device.backend.CmdPipelineBarrier(cb, batch)
	})
}

// flushBarriers records the pending barriers, if any.
func (e *CommandEncoder) flushBarriers() error {
	if !e.tracker.IsDirty() {
		return nil
	}
	cb, err := e.commandBuffer()
	if err != nil {
		return err
	}
	e.applyBarriers(cb)
	return nil
}

// transition moves a resource into state outside of any render pass.
func (e *CommandEncoder) transition(key barrier.ResourceKey, native any, state barrier.State) error {
	cb, err := e.commandBuffer()
	if err != nil {
		return err
	}
	e.suspendPass()
	e.ensure(resourceAccess{key: key, native: native, state: state})
	e.applyBarriers(cb)
	return nil
}

// FlushDeferredStateChanges emits the pending state in a fixed order:
// pipeline, viewport and scissor, vertex buffers, index buffer, descriptor
// sets, push constants, barriers, then the render pass.
func (e *CommandEncoder) FlushDeferredStateChanges() error {
	return e.flush()
}

func (e *CommandEncoder) flush(extra ...resourceAccess) error {
	if e.mode == encoderIdle {
		return e.device.contractViolation(core.ErrNotRecording, "FlushDeferredStateChanges outside of rendering or compute")
	}
	cb, err := e.commandBuffer()
	if err != nil {
		return err
	}
	graphics := e.mode == encoderGraphics

	if e.dirty&dirtyPipeline != 0 {
		if err := e.applyPipeline(cb, graphics); err != nil {
			return err
		}
	}

	if graphics {
		if e.dirty&dirtyViewport != 0 {
			e.device.backend.CmdSetViewport(cb, e.viewport)
		}
		if e.dirty&dirtyScissor != 0 {
			scissor := e.scissor
			if !e.rasterizerDesc.ScissorTest {
				scissor = e.viewport.Rectangle()
			}
			e.device.backend.CmdSetScissor(cb, scissor)
		}
		e.dirty &^= dirtyViewport | dirtyScissor

		if e.dirty&dirtyVertexBuffers != 0 {
			e.applyVertexBuffers(cb)
		}
		if e.dirty&dirtyIndexBuffer != 0 {
			e.applyIndexBuffer(cb)
		}
	}

	if e.dirty&dirtyDescriptors != 0 {
		if err := e.applyDescriptors(cb, !graphics); err != nil {
			return err
		}
	}
	e.ensureBoundAccesses(graphics)
	for _, a := range extra {
		e.ensure(a)
	}

	if e.dirty&dirtyPushConstants != 0 {
		e.applyPushConstants(cb)
	}

	if e.passOpen && e.tracker.IsDirty() {
		e.endPass()
		e.tracker.AddFullBarrier()
	}

	if graphics && !e.passOpen {
		return e.beginPass(cb)
	}
	e.applyBarriers(cb)
	return nil
}

func (e *CommandEncoder) applyPipeline(cb any, graphics bool) error {
	d := e.device
	d.mu.Lock()
	shader, ok := d.shaders.TryGet(e.shader)
	if !ok {
		d.mu.Unlock()
		return d.contractViolation(core.ErrNoShaderBound, "FlushDeferredStateChanges: %s", e.shader)
	}
	desc := cache.PipelineDescription{
		Compute:      !graphics,
		Shader:       e.shader.Raw(),
		ShaderNative: shader.Native,
		ShaderDesc:   &shader.Description,
		Layout:       shader.Layout,
	}
	if graphics {
		desc.Blend = metadata.DefaultBlendStateCreationDescription()
		if s, ok := d.blendStates.table.TryGet(e.blend); ok {
			desc.Blend = s.Description
		}
		desc.DepthStencil = metadata.DefaultDepthStencilStateCreationDescription()
		if s, ok := d.depthStencilStates.table.TryGet(e.depthStencil); ok {
			desc.DepthStencil = s.Description
		}
		desc.Rasterizer = metadata.DefaultRasterizerStateCreationDescription()
		if s, ok := d.rasterizerStates.table.TryGet(e.rasterizer); ok {
			desc.Rasterizer = s.Description
		}
		if s, ok := d.vertexDeclarations.table.TryGet(e.vertexDeclaration); ok {
			if s.Description.Shader != e.shader {
				core.LogWarn("vertex declaration %s was created for %s, not %s", e.vertexDeclaration, s.Description.Shader, e.shader)
			}
			desc.VertexInput = &s.Description.Declaration
		}
		desc.Topology = e.topology
		desc.RenderPass = e.rendering.loadPass
	}
	d.mu.Unlock()

	if shader.Description.IsCompute() == graphics {
		return d.contractViolation(core.ErrValidation, "shader `%s` cannot be used for %s work", shader.Description.Name, e.mode)
	}

	pipeline, err := d.cache.GetOrCreatePipeline(&desc)
	if err != nil {
		return err
	}
	if pipeline != e.pipeline {
		d.backend.CmdBindPipeline(cb, pipeline)
		e.pipeline = pipeline
	}
	e.rasterizerDesc = desc.Rasterizer
	e.dirty &^= dirtyPipeline
	e.dirty |= dirtyDescriptors | dirtyPushConstants | dirtyScissor
	return nil
}

// applyVertexBuffers binds the touched slot range with one call per run of
// bound slots.
func (e *CommandEncoder) applyVertexBuffers(cb any) {
	d := e.device
	var (
		first   = -1
		natives []any
		offsets []uint64
	)
	emit := func() {
		if first >= 0 && len(natives) > 0 {
			d.backend.CmdBindVertexBuffers(cb, uint32(first), natives, offsets)
		}
		first, natives, offsets = -1, nil, nil
	}

	d.mu.Lock()
	for slot := e.vertexMin; slot <= e.vertexMax; slot++ {
		binding := e.vertexBuffers[slot]
		b, ok := d.buffers.TryGet(binding.buffer)
		if !ok {
			emit()
			continue
		}
		if first < 0 {
			first = slot
		}
		natives = append(natives, b.Native)
		offsets = append(offsets, binding.offset)
	}
	d.mu.Unlock()
	emit()

	e.vertexMin, e.vertexMax = metadata.MAX_VERTEX_BUFFER_COUNT, -1
	e.dirty &^= dirtyVertexBuffers
}

func (e *CommandEncoder) applyIndexBuffer(cb any) {
	d := e.device
	e.dirty &^= dirtyIndexBuffer
	b, ok := d.GetBuffer(e.indexBuffer)
	if !ok {
		return
	}
	indexType := metadata.IndexTypeUInt
	if b.Description.StructSize == 2 {
		indexType = metadata.IndexTypeUShort
	}
	d.backend.CmdBindIndexBuffer(cb, b.Native, e.indexOffset, indexType)
}

// ensureBoundAccesses re-checks every resource the next draw or dispatch
// touches. Reads that already match merge without a barrier.
func (e *CommandEncoder) ensureBoundAccesses(graphics bool) {
	if graphics {
		d := e.device
		d.mu.Lock()
		for _, binding := range e.vertexBuffers {
			if b, ok := d.buffers.TryGet(binding.buffer); ok {
				e.ensure(resourceAccess{key: bufferKey(binding.buffer), native: b.Native, state: barrier.StateVertexBuffer, initial: b.initialState})
			}
		}
		if b, ok := d.buffers.TryGet(e.indexBuffer); ok {
			e.ensure(resourceAccess{key: bufferKey(e.indexBuffer), native: b.Native, state: barrier.StateIndexBuffer, initial: b.initialState})
		}
		d.mu.Unlock()
	}
	for _, a := range e.accesses {
		e.ensure(a)
	}
}

func (e *CommandEncoder) applyPushConstants(cb any) {
	e.dirty &^= dirtyPushConstants
	if e.pipeline == nil || e.pipeline.Layout == nil {
		return
	}
	r := e.pipeline.Layout.Description.PushConstant
	if r.Size == 0 || uint32(len(e.pushConstants)) <= r.Offset {
		return
	}
	end := min(uint32(len(e.pushConstants)), r.Offset+r.Size)
	e.device.backend.CmdPushConstants(cb, e.pipeline.Layout, r.Offset, e.pushConstants[r.Offset:end])
}

func (e *CommandEncoder) checkDraw(name string) error {
	if e.mode != encoderGraphics {
		return e.device.contractViolation(core.ErrNotRecording, "%s outside of BeginRendering", name)
	}
	return nil
}

func (e *CommandEncoder) Draw(vertexCount, startVertex uint32) error {
	return e.DrawInstanced(vertexCount, 1, startVertex, 0)
}

func (e *CommandEncoder) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) error {
	if err := e.checkDraw("Draw"); err != nil {
		return err
	}
	if err := e.flush(); err != nil {
		return err
	}
	e.device.backend.CmdDraw(e.cb, vertexCount, instanceCount, startVertex, startInstance)
	e.drawn = true
	return nil
}

func (e *CommandEncoder) DrawIndexed(indexCount, startIndex uint32, baseVertex int32) error {
	return e.DrawIndexedInstanced(indexCount, 1, startIndex, baseVertex, 0)
}

func (e *CommandEncoder) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) error {
	if err := e.checkDraw("DrawIndexed"); err != nil {
		return err
	}
	if e.indexBuffer.IsInvalid() {
		return validationError("DrawIndexed: no index buffer is bound")
	}
	if err := e.flush(); err != nil {
		return err
	}
	e.device.backend.CmdDrawIndexed(e.cb, indexCount, instanceCount, startIndex, baseVertex, startInstance)
	e.drawn = true
	return nil
}

// indirectAccess validates an argument buffer and returns its access.
func (e *CommandEncoder) indirectAccess(name string, h BufferHandle) (resourceAccess, error) {
	d := e.device
	if !d.capabilities.SupportsIndirectDraw {
		return resourceAccess{}, d.contractViolation(core.ErrNotSupported, "%s on `%s`", name, d.capabilities.AdapterName)
	}
	b, ok := d.GetBuffer(h)
	if !ok {
		return resourceAccess{}, validationError("%s: %s is not a live buffer", name, h)
	}
	if !b.Description.BufferFlags.IsSet(metadata.BufferUsageDrawIndirect) {
		return resourceAccess{}, validationError("%s: buffer %s was not created with the draw indirect usage", name, h)
	}
	return resourceAccess{key: bufferKey(h), native: b.Native, state: barrier.StateIndirect, initial: b.initialState}, nil
}

func (e *CommandEncoder) DrawIndirect(args BufferHandle, offset uint64, drawCount, stride uint32) error {
	return e.drawIndirect("DrawIndirect", args, offset, drawCount, stride, false)
}

func (e *CommandEncoder) DrawIndexedIndirect(args BufferHandle, offset uint64, drawCount, stride uint32) error {
	return e.drawIndirect("DrawIndexedIndirect", args, offset, drawCount, stride, true)
}

func (e *CommandEncoder) drawIndirect(name string, args BufferHandle, offset uint64, drawCount, stride uint32, indexed bool) error {
	if err := e.checkDraw(name); err != nil {
		return err
	}
	if indexed && e.indexBuffer.IsInvalid() {
		return validationError("%s: no index buffer is bound", name)
	}
	access, err := e.indirectAccess(name, args)
	if err != nil {
		return err
	}
	if err := e.flush(access); err != nil {
		return err
	}
	e.device.backend.CmdDrawIndirect(e.cb, access.native, offset, drawCount, stride, indexed)
	e.drawn = true
	return nil
}

func (e *CommandEncoder) Dispatch(x, y, z uint32) error {
	if e.mode != encoderCompute {
		return e.device.contractViolation(core.ErrNotRecording, "Dispatch outside of BeginCompute")
	}
	if err := e.flush(); err != nil {
		return err
	}
	e.device.backend.CmdDispatch(e.cb, x, y, z)
	return nil
}

func (e *CommandEncoder) DispatchIndirect(args BufferHandle, offset uint64) error {
	if e.mode != encoderCompute {
		return e.device.contractViolation(core.ErrNotRecording, "DispatchIndirect outside of BeginCompute")
	}
	access, err := e.indirectAccess("DispatchIndirect", args)
	if err != nil {
		return err
	}
	if err := e.flush(access); err != nil {
		return err
	}
	e.device.backend.CmdDispatchIndirect(e.cb, access.native, offset)
	return nil
}
