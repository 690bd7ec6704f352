package metadata

/**
 * @brief The kinds of objects owned by the device. Used to tag dead objects
 * and backend teardown calls.
 */
type ObjectType uint8

const (
	ObjectTypeBlendState ObjectType = iota
	ObjectTypeDepthStencilState
	ObjectTypeRasterizerState
	ObjectTypeSamplerState
	ObjectTypeShader
	ObjectTypeBuffer
	ObjectTypeTexture
	ObjectTypeTextureResourceView
	ObjectTypeBufferResourceView
	ObjectTypeRenderTargetView
	ObjectTypeTextureUnorderedAccessView
	ObjectTypeBufferUnorderedAccessView
	ObjectTypeSwapChain
	ObjectTypeQuery
	ObjectTypeVertexDeclaration

	ObjectTypeCount
)

var objectTypeNames = [ObjectTypeCount]string{
	ObjectTypeBlendState:                 "BlendState",
	ObjectTypeDepthStencilState:          "DepthStencilState",
	ObjectTypeRasterizerState:            "RasterizerState",
	ObjectTypeSamplerState:               "SamplerState",
	ObjectTypeShader:                     "Shader",
	ObjectTypeBuffer:                     "Buffer",
	ObjectTypeTexture:                    "Texture",
	ObjectTypeTextureResourceView:        "TextureResourceView",
	ObjectTypeBufferResourceView:         "BufferResourceView",
	ObjectTypeRenderTargetView:           "RenderTargetView",
	ObjectTypeTextureUnorderedAccessView: "TextureUnorderedAccessView",
	ObjectTypeBufferUnorderedAccessView:  "BufferUnorderedAccessView",
	ObjectTypeSwapChain:                  "SwapChain",
	ObjectTypeQuery:                      "Query",
	ObjectTypeVertexDeclaration:          "VertexDeclaration",
}

func (t ObjectType) String() string {
	if t >= ObjectTypeCount {
		return "Unknown"
	}
	return objectTypeNames[t]
}

/** @brief Lifecycle notifications fired by the device. */
type DeviceEventType uint8

const (
	DeviceEventAfterInit DeviceEventType = iota
	DeviceEventBeforeShutdown
	DeviceEventBeforeBeginFrame
	DeviceEventAfterBeginFrame
	DeviceEventBeforeEndFrame
	DeviceEventAfterEndFrame
	DeviceEventBeforeBeginPipeline
	DeviceEventAfterBeginPipeline
	DeviceEventBeforeEndPipeline
	DeviceEventAfterEndPipeline
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceEventAfterInit:
		return "AfterInit"
	case DeviceEventBeforeShutdown:
		return "BeforeShutdown"
	case DeviceEventBeforeBeginFrame:
		return "BeforeBeginFrame"
	case DeviceEventAfterBeginFrame:
		return "AfterBeginFrame"
	case DeviceEventBeforeEndFrame:
		return "BeforeEndFrame"
	case DeviceEventAfterEndFrame:
		return "AfterEndFrame"
	case DeviceEventBeforeBeginPipeline:
		return "BeforeBeginPipeline"
	case DeviceEventAfterBeginPipeline:
		return "AfterBeginPipeline"
	case DeviceEventBeforeEndPipeline:
		return "BeforeEndPipeline"
	case DeviceEventAfterEndPipeline:
		return "AfterEndPipeline"
	default:
		return "Unknown"
	}
}

/**
 * @brief What the backend can do. Filled in once at device init.
 */
type Capabilities struct {
	/** @brief Human readable adapter name. */
	AdapterName string
	/** @brief Dedicated video memory in bytes. */
	DedicatedMemory uint64
	/** @brief System memory shared with the GPU in bytes. */
	SharedMemory uint64

	SupportsMultithreadedResourceCreation bool
	SupportsSharedTextures                bool
	SupportsConservativeRasterization     bool
	SupportsIndirectDraw                  bool

	MaxTextureSize          uint32
	MaxPushConstantsSize    uint32
	MinConstantAlignment    uint32
	TimestampTicksPerSecond uint64
}
