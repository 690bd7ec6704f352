package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/containers"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

type (
	BufferHandle                     = containers.Handle[*Buffer]
	TextureHandle                    = containers.Handle[*Texture]
	TextureResourceViewHandle        = containers.Handle[*TextureResourceView]
	BufferResourceViewHandle         = containers.Handle[*BufferResourceView]
	RenderTargetViewHandle           = containers.Handle[*RenderTargetView]
	TextureUnorderedAccessViewHandle = containers.Handle[*TextureUnorderedAccessView]
	BufferUnorderedAccessViewHandle  = containers.Handle[*BufferUnorderedAccessView]
	ShaderHandle                     = containers.Handle[*Shader]
	QueryHandle                      = containers.Handle[*Query]
	SwapChainHandle                  = containers.Handle[*SwapChain]
	BlendStateHandle                 = containers.Handle[*BlendState]
	DepthStencilStateHandle          = containers.Handle[*DepthStencilState]
	RasterizerStateHandle            = containers.Handle[*RasterizerState]
	SamplerStateHandle               = containers.Handle[*SamplerState]
	VertexDeclarationHandle          = containers.Handle[*VertexDeclaration]
)

/**
 * @brief A buffer and the views created from it.
 */
type Buffer struct {
	Description metadata.BufferCreationDescription
	Native      any
	/** @brief Created with the buffer when the usage asks for shader visibility. */
	DefaultView BufferResourceViewHandle

	/** @brief State left behind by the initial upload. */
	initialState  barrier.State
	resourceViews map[uint64]BufferResourceViewHandle
	uavs          map[uint64]BufferUnorderedAccessViewHandle
}

/**
 * @brief A texture and the views created from it. Proxy textures share the
 * native of their parent and expose one slice of it.
 */
type Texture struct {
	Description metadata.TextureCreationDescription
	Native      any
	Name        string

	DefaultView         TextureResourceViewHandle
	DefaultRenderTarget RenderTargetViewHandle

	/** @brief For proxies: the array or cube texture and the exposed slice. */
	Parent TextureHandle
	Slice  uint32
	/** @brief For shared textures: the exported handle. */
	Shared metadata.PlatformSharedHandle

	ownsNative    bool
	initialState  barrier.State
	resourceViews map[uint64]TextureResourceViewHandle
	renderTargets map[uint64]RenderTargetViewHandle
	uavs          map[uint64]TextureUnorderedAccessViewHandle
	proxies       map[TextureHandle]struct{}
}

func (t *Texture) IsProxy() bool {
	return !t.Parent.IsInvalid()
}

type TextureResourceView struct {
	Description metadata.TextureResourceViewCreationDescription
	Native      any
	Texture     TextureHandle
}

type BufferResourceView struct {
	Description metadata.BufferResourceViewCreationDescription
	Native      any
	Buffer      BufferHandle
}

type RenderTargetView struct {
	Description metadata.RenderTargetViewCreationDescription
	Native      any
	Texture     TextureHandle
	/** @brief Resolved format, size and sample count of the viewed mip. */
	Format      metadata.ResourceFormat
	Width       uint32
	Height      uint32
	SampleCount metadata.MSAASampleCount
}

func (v *RenderTargetView) IsDepth() bool {
	return v.Format.IsDepth()
}

type TextureUnorderedAccessView struct {
	Description metadata.TextureUnorderedAccessViewCreationDescription
	Native      any
	Texture     TextureHandle
}

type BufferUnorderedAccessView struct {
	Description metadata.BufferUnorderedAccessViewCreationDescription
	Native      any
	Buffer      BufferHandle
}

type Shader struct {
	Description metadata.ShaderCreationDescription
	Native      any
	Layout      cache.PipelineLayoutDescription
}

type Query struct {
	Description metadata.QueryCreationDescription
	Native      any
}

/**
 * @brief A swap chain and the textures registered for its back buffers.
 */
type SwapChain struct {
	Description metadata.SwapChainCreationDescription
	Platform    SwapChainPlatform
	BackBuffers []TextureHandle
	Current     int
	PresentMode metadata.PresentMode
}

/**
 * @brief A ref-counted, de-duplicated state object.
 */
type SharedState[D any] struct {
	Description D
	Native      any

	refCount uint32
	hash     uint64
}

func (s *SharedState[D]) RefCount() uint32 {
	return s.refCount
}

/**
 * @brief Vertex input of a shader. Declarations are shared per shader.
 */
type VertexInput struct {
	Declaration metadata.VertexDeclarationCreationDescription
	Shader      ShaderHandle
}

type (
	BlendState        = SharedState[metadata.BlendStateCreationDescription]
	DepthStencilState = SharedState[metadata.DepthStencilStateCreationDescription]
	RasterizerState   = SharedState[metadata.RasterizerStateCreationDescription]
	SamplerState      = SharedState[metadata.SamplerStateCreationDescription]
	VertexDeclaration = SharedState[VertexInput]
)
