package renderer

import (
	"bytes"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

type encoderMode uint8

const (
	encoderIdle encoderMode = iota
	encoderGraphics
	encoderCompute
)

func (m encoderMode) String() string {
	switch m {
	case encoderGraphics:
		return "graphics"
	case encoderCompute:
		return "compute"
	default:
		return "idle"
	}
}

type dirtyFlags uint8

const (
	dirtyPipeline dirtyFlags = 1 << iota
	dirtyViewport
	dirtyScissor
	dirtyVertexBuffers
	dirtyIndexBuffer
	dirtyDescriptors
	dirtyPushConstants

	dirtyAll = dirtyPipeline | dirtyViewport | dirtyScissor | dirtyVertexBuffers |
		dirtyIndexBuffer | dirtyDescriptors | dirtyPushConstants
)

type vertexBufferBinding struct {
	buffer BufferHandle
	offset uint64
}

/**
 * @brief A resource a recorded command reads or writes. initial is the state
 * assumed when the tracker has never seen the resource.
 */
type resourceAccess struct {
	key     barrier.ResourceKey
	native  any
	state   barrier.State
	initial barrier.State
	discard bool
}

/**
 * @brief Records draws, dispatches and resource operations. Setters only
 * change the desired state; FlushDeferredStateChanges turns it into commands
 * right before a draw or dispatch. Single owner: not safe for concurrent use.
 */
type CommandEncoder struct {
	device *Device
	cb     any
	mode   encoderMode
	dirty  dirtyFlags

	shader            ShaderHandle
	blend             BlendStateHandle
	depthStencil      DepthStencilStateHandle
	rasterizer        RasterizerStateHandle
	vertexDeclaration VertexDeclarationHandle
	topology          metadata.PrimitiveTopology
	viewport          math.Viewport
	scissor           math.Rectangle

	vertexBuffers [metadata.MAX_VERTEX_BUFFER_COUNT]vertexBufferBinding
	/** @brief Inclusive range of vertex buffer slots touched since the last bind. */
	vertexMin, vertexMax int
	indexBuffer          BufferHandle
	indexOffset          uint64

	constantBuffers map[uint32]BufferHandle
	textureViews    map[uint32]TextureResourceViewHandle
	bufferViews     map[uint32]BufferResourceViewHandle
	textureUAVs     map[uint32]TextureUnorderedAccessViewHandle
	bufferUAVs      map[uint32]BufferUnorderedAccessViewHandle
	samplers        map[uint32]SamplerStateHandle
	pushConstants   []byte

	pipeline       *cache.Pipeline
	rasterizerDesc metadata.RasterizerStateCreationDescription
	/** @brief Resources referenced by the last descriptor sets, re-checked on every flush. */
	accesses []resourceAccess

	rendering *resolvedSetup
	setup     RenderingSetup
	passOpen  bool
	passBegun bool
	drawn     bool

	markers     int
	openQueries map[QueryHandle]struct{}
	tracker     *barrier.Tracker[barrier.ResourceKey]
}

func newCommandEncoder(d *Device) *CommandEncoder {
	e := &CommandEncoder{
		device:      d,
		openQueries: make(map[QueryHandle]struct{}),
		tracker:     barrier.NewTracker[barrier.ResourceKey](),
	}
	e.Reset()
	return e
}

// Reset forgets every bound resource and state. The next flush emits
// everything again.
func (e *CommandEncoder) Reset() {
	e.shader = ShaderHandle{}
	e.blend = BlendStateHandle{}
	e.depthStencil = DepthStencilStateHandle{}
	e.rasterizer = RasterizerStateHandle{}
	e.vertexDeclaration = VertexDeclarationHandle{}
	e.topology = metadata.PrimitiveTopologyTriangles
	e.viewport = math.Viewport{}
	e.scissor = math.Rectangle{}

	e.vertexBuffers = [metadata.MAX_VERTEX_BUFFER_COUNT]vertexBufferBinding{}
	e.vertexMin, e.vertexMax = metadata.MAX_VERTEX_BUFFER_COUNT, -1
	e.indexBuffer = BufferHandle{}
	e.indexOffset = 0

	e.constantBuffers = make(map[uint32]BufferHandle)
	e.textureViews = make(map[uint32]TextureResourceViewHandle)
	e.bufferViews = make(map[uint32]BufferResourceViewHandle)
	e.textureUAVs = make(map[uint32]TextureUnorderedAccessViewHandle)
	e.bufferUAVs = make(map[uint32]BufferUnorderedAccessViewHandle)
	e.samplers = make(map[uint32]SamplerStateHandle)
	e.pushConstants = nil

	e.pipeline = nil
	e.accesses = nil
	e.dirty = dirtyAll
}

// MarkDirty raises every dirty flag but keeps the bound state, so it is
// emitted again into a new command buffer.
func (e *CommandEncoder) MarkDirty() {
	e.dirty = dirtyAll
	e.pipeline = nil
	e.vertexMin, e.vertexMax = metadata.MAX_VERTEX_BUFFER_COUNT, -1
	for slot, b := range e.vertexBuffers {
		if !b.buffer.IsInvalid() {
			e.touchVertexSlot(slot)
		}
	}
}

// commandBuffer returns the frame's command buffer. A freshly begun one holds
// none of the encoder state yet.
func (e *CommandEncoder) commandBuffer() (any, error) {
	if e.cb != nil {
		return e.cb, nil
	}
	cb, created, err := e.device.acquireCommandBuffer()
	if err != nil {
		core.LogError("failed to acquire a command buffer: %s", err)
		return nil, err
	}
	if created {
		e.MarkDirty()
	}
	e.cb = cb
	return cb, nil
}

// detach drops the command buffer after it was submitted.
func (e *CommandEncoder) detach() {
	e.cb = nil
	e.passOpen = false
	e.pipeline = nil
}

func (e *CommandEncoder) forget(key barrier.ResourceKey) {
	e.tracker.Forget(key)
}

// resetState marks the content of a resource as undefined.
func (e *CommandEncoder) resetState(key barrier.ResourceKey) {
	e.tracker.SetState(key, barrier.State{})
}

func (e *CommandEncoder) Mode() string {
	return e.mode.String()
}

func (e *CommandEncoder) PushMarker(name string) {
	cb, err := e.commandBuffer()
	if err != nil {
		return
	}
	e.device.backend.CmdBeginDebugMarker(cb, name)
	e.markers++
}

func (e *CommandEncoder) PopMarker() {
	if e.markers == 0 {
		core.LogWarn("PopMarker without a matching PushMarker")
		return
	}
	cb, err := e.commandBuffer()
	if err != nil {
		return
	}
	e.device.backend.CmdEndDebugMarker(cb)
	e.markers--
}

func (e *CommandEncoder) SetShader(h ShaderHandle) {
	if e.shader == h {
		return
	}
	e.shader = h
	e.dirty |= dirtyPipeline
}

func (e *CommandEncoder) SetBlendState(h BlendStateHandle) {
	if e.blend == h {
		return
	}
	e.blend = h
	e.dirty |= dirtyPipeline
}

func (e *CommandEncoder) SetDepthStencilState(h DepthStencilStateHandle) {
	if e.depthStencil == h {
		return
	}
	e.depthStencil = h
	e.dirty |= dirtyPipeline
}

// SetRasterizerState also decides whether the scissor or the viewport
// rectangle clips the draws.
func (e *CommandEncoder) SetRasterizerState(h RasterizerStateHandle) {
	if e.rasterizer == h {
		return
	}
	e.rasterizer = h
	e.dirty |= dirtyPipeline | dirtyScissor
}

func (e *CommandEncoder) SetVertexDeclaration(h VertexDeclarationHandle) {
	if e.vertexDeclaration == h {
		return
	}
	e.vertexDeclaration = h
	e.dirty |= dirtyPipeline
}

func (e *CommandEncoder) SetPrimitiveTopology(topology metadata.PrimitiveTopology) {
	if e.topology == topology {
		return
	}
	e.topology = topology
	e.dirty |= dirtyPipeline
}

func (e *CommandEncoder) SetViewport(viewport math.Viewport) {
	if e.viewport == viewport {
		return
	}
	e.viewport = viewport
	e.dirty |= dirtyViewport | dirtyScissor
}

func (e *CommandEncoder) SetScissor(scissor math.Rectangle) {
	if e.scissor == scissor {
		return
	}
	e.scissor = scissor
	e.dirty |= dirtyScissor
}

func (e *CommandEncoder) touchVertexSlot(slot int) {
	e.vertexMin = min(e.vertexMin, slot)
	e.vertexMax = max(e.vertexMax, slot)
	e.dirty |= dirtyVertexBuffers
}

// SetVertexBuffer binds a buffer to a vertex slot. The invalid handle unbinds
// the slot.
func (e *CommandEncoder) SetVertexBuffer(slot uint32, h BufferHandle, offset uint64) {
	if slot >= metadata.MAX_VERTEX_BUFFER_COUNT {
		core.LogWarn("SetVertexBuffer: slot %d is out of range", slot)
		return
	}
	binding := vertexBufferBinding{buffer: h, offset: offset}
	if e.vertexBuffers[slot] == binding {
		return
	}
	e.vertexBuffers[slot] = binding
	e.touchVertexSlot(int(slot))
}

func (e *CommandEncoder) SetIndexBuffer(h BufferHandle, offset uint64) {
	if e.indexBuffer == h && e.indexOffset == offset {
		return
	}
	e.indexBuffer = h
	e.indexOffset = offset
	e.dirty |= dirtyIndexBuffer
}

// setSlot stores h in slots and reports whether anything changed. The
// invalid handle clears the slot.
func setSlot[H comparable](slots map[uint32]H, slot uint32, h H) bool {
	var invalid H
	current, ok := slots[slot]
	if h == invalid {
		delete(slots, slot)
		return ok
	}
	if ok && current == h {
		return false
	}
	slots[slot] = h
	return true
}

func (e *CommandEncoder) SetConstantBuffer(slot uint32, h BufferHandle) {
	if setSlot(e.constantBuffers, slot, h) {
		e.dirty |= dirtyDescriptors
	}
}

func (e *CommandEncoder) SetResourceView(slot uint32, h TextureResourceViewHandle) {
	if setSlot(e.textureViews, slot, h) {
		e.dirty |= dirtyDescriptors
	}
}

func (e *CommandEncoder) SetBufferResourceView(slot uint32, h BufferResourceViewHandle) {
	if setSlot(e.bufferViews, slot, h) {
		e.dirty |= dirtyDescriptors
	}
}

func (e *CommandEncoder) SetUnorderedAccessView(slot uint32, h TextureUnorderedAccessViewHandle) {
	if setSlot(e.textureUAVs, slot, h) {
		e.dirty |= dirtyDescriptors
	}
}

func (e *CommandEncoder) SetBufferUnorderedAccessView(slot uint32, h BufferUnorderedAccessViewHandle) {
	if setSlot(e.bufferUAVs, slot, h) {
		e.dirty |= dirtyDescriptors
	}
}

func (e *CommandEncoder) SetSamplerState(slot uint32, h SamplerStateHandle) {
	if setSlot(e.samplers, slot, h) {
		e.dirty |= dirtyDescriptors
	}
}

// SetPushConstants replaces the push constant block. Only the bytes inside
// the shader's declared range are uploaded.
func (e *CommandEncoder) SetPushConstants(data []byte) {
	if bytes.Equal(e.pushConstants, data) {
		return
	}
	e.pushConstants = append(e.pushConstants[:0], data...)
	e.dirty |= dirtyPushConstants
}
