package metadata

/** @brief Max number of simultaneously bound render targets. */
const MAX_RENDERTARGET_COUNT = 8

/** @brief Max number of vertex buffer slots. */
const MAX_VERTEX_BUFFER_COUNT = 16

/** @brief Max number of vertex attributes in one declaration. */
const MAX_VERTEX_ATTRIBUTE_COUNT = 16

type MSAASampleCount uint8

const (
	MSAASampleCountNone MSAASampleCount = 1
	MSAASampleCount2x   MSAASampleCount = 2
	MSAASampleCount4x   MSAASampleCount = 4
	MSAASampleCount8x   MSAASampleCount = 8
)

// IsMultisampled reports whether the count describes an MSAA resource. The
// zero value is treated as a single sample.
func (c MSAASampleCount) IsMultisampled() bool {
	return c > MSAASampleCountNone
}

/**
 * @brief Represents various types of textures.
 */
type TextureType uint8

const (
	TextureTypeInvalid TextureType = iota
	/** @brief A standard two-dimensional texture. */
	TextureType2D
	/** @brief A cube texture, used for cubemaps. */
	TextureTypeCube
	/** @brief A three dimensional texture. */
	TextureType3D
	/** @brief A 2d texture that can be shared with another process or device. */
	TextureType2DShared
	/** @brief A single slice of an array or cube texture. */
	TextureType2DProxy
)

func (t TextureType) String() string {
	switch t {
	case TextureType2D:
		return "Texture2D"
	case TextureTypeCube:
		return "TextureCube"
	case TextureType3D:
		return "Texture3D"
	case TextureType2DShared:
		return "Texture2DShared"
	case TextureType2DProxy:
		return "Texture2DProxy"
	default:
		return "Invalid"
	}
}

type BufferUsageFlags uint16

const (
	BufferUsageVertexBuffer BufferUsageFlags = 1 << iota
	BufferUsageIndexBuffer
	BufferUsageConstantBuffer
	BufferUsageTexelBuffer
	BufferUsageStructuredBuffer
	/** @brief Allows raw (byte address) views of the buffer. */
	BufferUsageByteAddressBuffer
	BufferUsageShaderResource
	BufferUsageUnorderedAccess
	BufferUsageDrawIndirect
)

func (f BufferUsageFlags) IsSet(flag BufferUsageFlags) bool {
	return f&flag == flag
}

func (f BufferUsageFlags) IsAnySet(flag BufferUsageFlags) bool {
	return f&flag != 0
}

type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageHull
	ShaderStageDomain
	ShaderStageGeometry
	ShaderStagePixel
	ShaderStageCompute

	ShaderStageCount
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageHull:
		return "hull"
	case ShaderStageDomain:
		return "domain"
	case ShaderStageGeometry:
		return "geometry"
	case ShaderStagePixel:
		return "pixel"
	case ShaderStageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

/** @brief A bit mask of shader stages. */
type ShaderStageFlags uint8

func ShaderStageBit(stage ShaderStage) ShaderStageFlags {
	return ShaderStageFlags(1) << stage
}

func (f ShaderStageFlags) Has(stage ShaderStage) bool {
	return f&ShaderStageBit(stage) != 0
}

type Blend uint8

const (
	BlendZero Blend = iota
	BlendOne
	BlendSrcColor
	BlendInvSrcColor
	BlendSrcAlpha
	BlendInvSrcAlpha
	BlendDestAlpha
	BlendInvDestAlpha
	BlendDestColor
	BlendInvDestColor
	BlendSrcAlphaSaturated
	BlendBlendFactor
	BlendInvBlendFactor
)

type BlendOp uint8

const (
	BlendOpAdd BlendOp = iota
	BlendOpSubtract
	BlendOpRevSubtract
	BlendOpMin
	BlendOpMax
)

type StencilOp uint8

const (
	StencilOpKeep StencilOp = iota
	StencilOpZero
	StencilOpReplace
	StencilOpIncrementSaturated
	StencilOpDecrementSaturated
	StencilOpInvert
	StencilOpIncrement
	StencilOpDecrement
)

type CompareFunc uint8

const (
	CompareFuncNever CompareFunc = iota
	CompareFuncLess
	CompareFuncEqual
	CompareFuncLessEqual
	CompareFuncGreater
	CompareFuncNotEqual
	CompareFuncGreaterEqual
	CompareFuncAlways
)

type CullMode uint8

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type TextureFilterMode uint8

const (
	TextureFilterModePoint TextureFilterMode = iota
	TextureFilterModeLinear
	TextureFilterModeAnisotropic
)

type AddressMode uint8

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClamp
	AddressModeClampBorder
	AddressModeMirror
	AddressModeMirrorOnce
)

type QueryType uint8

const (
	/** @brief Number of samples that passed the depth and stencil test. */
	QueryTypeNumSamplesPassed QueryType = iota
	/** @brief Whether any sample passed the depth and stencil test. */
	QueryTypeAnySamplesPassed
	/** @brief GPU timestamp. */
	QueryTypeTimestamp
)

type PresentMode uint8

const (
	PresentModeImmediate PresentMode = iota
	PresentModeVSync
)

func (m PresentMode) String() string {
	if m == PresentModeImmediate {
		return "immediate"
	}
	return "vsync"
}

type IndexType uint8

const (
	IndexTypeNone IndexType = iota
	IndexTypeUShort
	IndexTypeUInt
)

// Size returns the size of one index in bytes.
func (t IndexType) Size() uint32 {
	switch t {
	case IndexTypeUShort:
		return 2
	case IndexTypeUInt:
		return 4
	default:
		return 0
	}
}

type PrimitiveTopology uint8

const (
	PrimitiveTopologyPoints PrimitiveTopology = iota
	PrimitiveTopologyLines
	PrimitiveTopologyTriangles
)

type VertexAttributeSemantic uint8

const (
	VertexAttributeSemanticPosition VertexAttributeSemantic = iota
	VertexAttributeSemanticNormal
	VertexAttributeSemanticTangent
	VertexAttributeSemanticColor0
	VertexAttributeSemanticColor1
	VertexAttributeSemanticTexCoord0
	VertexAttributeSemanticTexCoord1
	VertexAttributeSemanticTexCoord2
	VertexAttributeSemanticTexCoord3
	VertexAttributeSemanticBoneIndices0
	VertexAttributeSemanticBoneWeights0
)

/**
 * @brief Controls how an UpdateBuffer call interacts with work already
 * recorded against the buffer.
 */
type UpdateMode uint8

const (
	/** @brief The previous content is discarded, no synchronization is required. */
	UpdateModeDiscard UpdateMode = iota
	/** @brief The previous content is not touched by in-flight work. */
	UpdateModeNoOverwrite
	/** @brief The update is recorded as a copy inside the command stream. */
	UpdateModeCopyToTempStorage
)

/** @brief Attachment clear flags used by RenderingSetup. */
type ClearFlags uint8

const (
	ClearFlagsNone    ClearFlags = 0
	ClearFlagsDepth   ClearFlags = 1 << 0
	ClearFlagsStencil ClearFlags = 1 << 1
)
