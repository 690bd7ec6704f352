package renderer

import (
	"time"

	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/frame"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief The capability set a concrete graphics API implements. Natives are
 * opaque to the device; only the backend that created them interprets them.
 */
type Backend interface {
	frame.Queue
	cache.Factory

	Name() string
	Capabilities() metadata.Capabilities
	Shutdown() error

	CreateBuffer(desc *metadata.BufferCreationDescription) (any, error)
	// WriteBuffer writes host visible memory directly.
	WriteBuffer(buffer any, offset uint64, data []byte) error
	CreateTexture(desc *metadata.TextureCreationDescription) (any, error)
	CreateSharedTexture(desc *metadata.TextureCreationDescription, open *metadata.PlatformSharedHandle) (any, metadata.PlatformSharedHandle, error)
	// UploadBuffer records a copy of data into the buffer and returns the
	// staging object that must outlive the command buffer.
	UploadBuffer(cb any, buffer any, offset uint64, data []byte) (staging any, err error)
	UploadTexture(cb any, texture any, desc *metadata.TextureCreationDescription, data []metadata.SubResourceData) (staging any, err error)

	CreateBlendState(desc *metadata.BlendStateCreationDescription) (any, error)
	CreateDepthStencilState(desc *metadata.DepthStencilStateCreationDescription) (any, error)
	CreateRasterizerState(desc *metadata.RasterizerStateCreationDescription) (any, error)
	CreateSamplerState(desc *metadata.SamplerStateCreationDescription) (any, error)
	CreateShader(desc *metadata.ShaderCreationDescription) (any, error)
	CreateQuery(desc *metadata.QueryCreationDescription) (any, error)
	ReadQuery(query any) (result uint64, ready bool, err error)
	CreateVertexDeclaration(desc *metadata.VertexDeclarationCreationDescription, shader any) (any, error)

	CreateTextureResourceView(texture any, textureDesc *metadata.TextureCreationDescription, desc *metadata.TextureResourceViewCreationDescription) (any, error)
	CreateBufferResourceView(buffer any, bufferDesc *metadata.BufferCreationDescription, desc *metadata.BufferResourceViewCreationDescription) (any, error)
	CreateRenderTargetView(texture any, textureDesc *metadata.TextureCreationDescription, desc *metadata.RenderTargetViewCreationDescription) (any, error)
	CreateTextureUnorderedAccessView(texture any, textureDesc *metadata.TextureCreationDescription, desc *metadata.TextureUnorderedAccessViewCreationDescription) (any, error)
	CreateBufferUnorderedAccessView(buffer any, bufferDesc *metadata.BufferCreationDescription, desc *metadata.BufferUnorderedAccessViewCreationDescription) (any, error)

	// Destroy releases a native object. The device only calls it once the GPU
	// can no longer reference the object.
	Destroy(kind metadata.ObjectType, native any)

	Commands
}

/**
 * @brief Command recording. Every call records into the command buffer
 * handed out by the frame ring.
 */
type Commands interface {
	CmdBeginRenderPass(cb any, info *cache.RenderPassBeginInfo)
	CmdEndRenderPass(cb any)
	CmdBindPipeline(cb any, pipeline *cache.Pipeline)
	CmdSetViewport(cb any, viewport math.Viewport)
	CmdSetScissor(cb any, scissor math.Rectangle)
	CmdBindVertexBuffers(cb any, firstSlot uint32, buffers []any, offsets []uint64)
	CmdBindIndexBuffer(cb any, buffer any, offset uint64, indexType metadata.IndexType)
	CmdBindDescriptorSet(cb any, layout *cache.PipelineLayout, set uint32, entries []cache.DescriptorEntry, compute bool) error
	CmdPushConstants(cb any, layout *cache.PipelineLayout, offset uint32, data []byte)
	CmdPipelineBarrier(cb any, batch barrier.Batch[barrier.ResourceKey])

	CmdDraw(cb any, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb any, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDrawIndirect(cb any, buffer any, offset uint64, drawCount, stride uint32, indexed bool)
	CmdDispatch(cb any, x, y, z uint32)
	CmdDispatchIndirect(cb any, buffer any, offset uint64)

	CmdCopyBuffer(cb any, src, dst any, regions []metadata.BufferCopyRegion)
	CmdUpdateBuffer(cb any, dst any, offset uint64, data []byte)
	CmdCopyTexture(cb any, src, dst any, region metadata.TextureCopyRegion)
	CmdClearUnorderedAccessView(cb any, view any, values [4]uint32)

	CmdBeginQuery(cb any, query any)
	CmdEndQuery(cb any, query any)
	CmdBeginDebugMarker(cb any, name string)
	CmdEndDebugMarker(cb any)
}

/**
 * @brief A presentable chain of back buffers. Implemented per backend and
 * created through the injected SwapChainFactory.
 */
type SwapChainPlatform interface {
	// BackBufferDescription describes every back buffer texture.
	BackBufferDescription() metadata.TextureCreationDescription
	// BackBuffers returns the native image of every back buffer.
	BackBuffers() []any
	// Acquire returns the index of the next back buffer and a semaphore the
	// first submission using it must wait on (nil when not needed).
	Acquire(timeout time.Duration) (index int, wait any, err error)
	// RenderFinished returns the semaphore the last submission before Present
	// must signal (nil when not needed).
	RenderFinished() any
	// Present queues the current back buffer.
	Present() error
	// Update applies a new present mode. recreated reports that the back
	// buffers changed.
	Update(mode metadata.PresentMode) (recreated bool, err error)
	Destroy()
}

// SwapChainFactory creates the swap chains of a device. The window in the
// description is only interpreted by the factory.
type SwapChainFactory func(desc *metadata.SwapChainCreationDescription) (SwapChainPlatform, error)

type BackendType uint8

const (
	BackendTypeVulkan BackendType = iota
	BackendTypeNull
)

func (t BackendType) String() string {
	switch t {
	case BackendTypeVulkan:
		return "vulkan"
	case BackendTypeNull:
		return "null"
	default:
		return "unknown"
	}
}
