package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

var formatTable = [metadata.ResourceFormatCount]vk.Format{
	metadata.ResourceFormatInvalid:                 vk.FormatUndefined,
	metadata.ResourceFormatRGBAFloat:               vk.FormatR32g32b32a32Sfloat,
	metadata.ResourceFormatRGBAUInt:                vk.FormatR32g32b32a32Uint,
	metadata.ResourceFormatRGBAInt:                 vk.FormatR32g32b32a32Sint,
	metadata.ResourceFormatRGBFloat:                vk.FormatR32g32b32Sfloat,
	metadata.ResourceFormatRGFloat:                 vk.FormatR32g32Sfloat,
	metadata.ResourceFormatRFloat:                  vk.FormatR32Sfloat,
	metadata.ResourceFormatRUInt:                   vk.FormatR32Uint,
	metadata.ResourceFormatRInt:                    vk.FormatR32Sint,
	metadata.ResourceFormatRUShort:                 vk.FormatR16Uint,
	metadata.ResourceFormatRGBAHalf:                vk.FormatR16g16b16a16Sfloat,
	metadata.ResourceFormatRGHalf:                  vk.FormatR16g16Sfloat,
	metadata.ResourceFormatRHalf:                   vk.FormatR16Sfloat,
	metadata.ResourceFormatRGBAUByteNormalized:     vk.FormatR8g8b8a8Unorm,
	metadata.ResourceFormatRGBAUByteNormalizedsRGB: vk.FormatR8g8b8a8Srgb,
	metadata.ResourceFormatBGRAUByteNormalized:     vk.FormatB8g8r8a8Unorm,
	metadata.ResourceFormatBGRAUByteNormalizedsRGB: vk.FormatB8g8r8a8Srgb,
	metadata.ResourceFormatRGUByteNormalized:       vk.FormatR8g8Unorm,
	metadata.ResourceFormatRUByteNormalized:        vk.FormatR8Unorm,
	metadata.ResourceFormatRGB10A2UIntNormalized:   vk.FormatA2b10g10r10UnormPack32,
	metadata.ResourceFormatRG11B10Float:            vk.FormatB10g11r11UfloatPack32,
	metadata.ResourceFormatD16:                     vk.FormatD16Unorm,
	metadata.ResourceFormatD24S8:                   vk.FormatD24UnormS8Uint,
	metadata.ResourceFormatD32Float:                vk.FormatD32Sfloat,
	metadata.ResourceFormatD32FloatS8:              vk.FormatD32SfloatS8Uint,
}

func toVkFormat(f metadata.ResourceFormat) vk.Format {
	if f >= metadata.ResourceFormatCount {
		return vk.FormatUndefined
	}
	return formatTable[f]
}

// fromVkFormat maps a surface format back. Unknown formats map to Invalid.
func fromVkFormat(f vk.Format) metadata.ResourceFormat {
	for i, vf := range formatTable {
		if vf == f && f != vk.FormatUndefined {
			return metadata.ResourceFormat(i)
		}
	}
	return metadata.ResourceFormatInvalid
}

func aspectOf(f metadata.ResourceFormat) vk.ImageAspectFlags {
	if !f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if f.IsStencil() {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return aspect
}

func toVkSampleCount(c metadata.MSAASampleCount) vk.SampleCountFlagBits {
	switch c {
	case metadata.MSAASampleCount2x:
		return vk.SampleCount2Bit
	case metadata.MSAASampleCount4x:
		return vk.SampleCount4Bit
	case metadata.MSAASampleCount8x:
		return vk.SampleCount8Bit
	default:
		return vk.SampleCount1Bit
	}
}

func toVkBlendFactor(b metadata.Blend) vk.BlendFactor {
	switch b {
	case metadata.BlendZero:
		return vk.BlendFactorZero
	case metadata.BlendSrcColor:
		return vk.BlendFactorSrcColor
	case metadata.BlendInvSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case metadata.BlendSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case metadata.BlendInvSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case metadata.BlendDestAlpha:
		return vk.BlendFactorDstAlpha
	case metadata.BlendInvDestAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case metadata.BlendDestColor:
		return vk.BlendFactorDstColor
	case metadata.BlendInvDestColor:
		return vk.BlendFactorOneMinusDstColor
	case metadata.BlendSrcAlphaSaturated:
		return vk.BlendFactorSrcAlphaSaturate
	case metadata.BlendBlendFactor:
		return vk.BlendFactorConstantColor
	case metadata.BlendInvBlendFactor:
		return vk.BlendFactorOneMinusConstantColor
	default:
		return vk.BlendFactorOne
	}
}

func toVkBlendOp(op metadata.BlendOp) vk.BlendOp {
	switch op {
	case metadata.BlendOpSubtract:
		return vk.BlendOpSubtract
	case metadata.BlendOpRevSubtract:
		return vk.BlendOpReverseSubtract
	case metadata.BlendOpMin:
		return vk.BlendOpMin
	case metadata.BlendOpMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

func toVkColorMask(m metadata.ColorWriteMask) vk.ColorComponentFlags {
	var flags vk.ColorComponentFlags
	if m&metadata.ColorWriteMaskRed != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentRBit)
	}
	if m&metadata.ColorWriteMaskGreen != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentGBit)
	}
	if m&metadata.ColorWriteMaskBlue != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentBBit)
	}
	if m&metadata.ColorWriteMaskAlpha != 0 {
		flags |= vk.ColorComponentFlags(vk.ColorComponentABit)
	}
	return flags
}

func toVkStencilOp(op metadata.StencilOp) vk.StencilOp {
	switch op {
	case metadata.StencilOpZero:
		return vk.StencilOpZero
	case metadata.StencilOpReplace:
		return vk.StencilOpReplace
	case metadata.StencilOpIncrementSaturated:
		return vk.StencilOpIncrementAndClamp
	case metadata.StencilOpDecrementSaturated:
		return vk.StencilOpDecrementAndClamp
	case metadata.StencilOpInvert:
		return vk.StencilOpInvert
	case metadata.StencilOpIncrement:
		return vk.StencilOpIncrementAndWrap
	case metadata.StencilOpDecrement:
		return vk.StencilOpDecrementAndWrap
	default:
		return vk.StencilOpKeep
	}
}

func toVkCompareOp(f metadata.CompareFunc) vk.CompareOp {
	switch f {
	case metadata.CompareFuncNever:
		return vk.CompareOpNever
	case metadata.CompareFuncLess:
		return vk.CompareOpLess
	case metadata.CompareFuncEqual:
		return vk.CompareOpEqual
	case metadata.CompareFuncLessEqual:
		return vk.CompareOpLessOrEqual
	case metadata.CompareFuncGreater:
		return vk.CompareOpGreater
	case metadata.CompareFuncNotEqual:
		return vk.CompareOpNotEqual
	case metadata.CompareFuncGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	default:
		return vk.CompareOpAlways
	}
}

func toVkCullMode(m metadata.CullMode) vk.CullModeFlags {
	switch m {
	case metadata.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

func toVkAddressMode(m metadata.AddressMode) vk.SamplerAddressMode {
	switch m {
	case metadata.AddressModeClamp:
		return vk.SamplerAddressModeClampToEdge
	case metadata.AddressModeClampBorder:
		return vk.SamplerAddressModeClampToBorder
	case metadata.AddressModeMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case metadata.AddressModeMirrorOnce:
		return vk.SamplerAddressModeMirrorClampToEdge
	default:
		return vk.SamplerAddressModeRepeat
	}
}

// toVkBorderColor picks the closest fixed border color.
func toVkBorderColor(c [4]float32) vk.BorderColor {
	switch {
	case c[3] == 0:
		return vk.BorderColorFloatTransparentBlack
	case c[0] == 1 && c[1] == 1 && c[2] == 1:
		return vk.BorderColorFloatOpaqueWhite
	default:
		return vk.BorderColorFloatOpaqueBlack
	}
}

func toVkTopology(t metadata.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case metadata.PrimitiveTopologyPoints:
		return vk.PrimitiveTopologyPointList
	case metadata.PrimitiveTopologyLines:
		return vk.PrimitiveTopologyLineList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func toVkIndexType(t metadata.IndexType) vk.IndexType {
	if t == metadata.IndexTypeUShort {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

var shaderStageBits = [metadata.ShaderStageCount]vk.ShaderStageFlagBits{
	metadata.ShaderStageVertex:   vk.ShaderStageVertexBit,
	metadata.ShaderStageHull:     vk.ShaderStageTessellationControlBit,
	metadata.ShaderStageDomain:   vk.ShaderStageTessellationEvaluationBit,
	metadata.ShaderStageGeometry: vk.ShaderStageGeometryBit,
	metadata.ShaderStagePixel:    vk.ShaderStageFragmentBit,
	metadata.ShaderStageCompute:  vk.ShaderStageComputeBit,
}

func toVkShaderStages(flags metadata.ShaderStageFlags) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	for stage := metadata.ShaderStage(0); stage < metadata.ShaderStageCount; stage++ {
		if flags.Has(stage) {
			out |= vk.ShaderStageFlags(shaderStageBits[stage])
		}
	}
	if out == 0 {
		out = vk.ShaderStageFlags(vk.ShaderStageAll)
	}
	return out
}

// toVkDescriptorType decides how a shader binding is laid out. Read only
// structured and byte address buffers are storage buffers in SPIR-V.
func toVkDescriptorType(t metadata.ShaderResourceType) vk.DescriptorType {
	switch t {
	case metadata.ShaderResourceTypeConstantBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.ShaderResourceTypeTexture:
		return vk.DescriptorTypeSampledImage
	case metadata.ShaderResourceTypeCombinedTextureSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.ShaderResourceTypeSampler:
		return vk.DescriptorTypeSampler
	case metadata.ShaderResourceTypeTextureUAV:
		return vk.DescriptorTypeStorageImage
	default:
		return vk.DescriptorTypeStorageBuffer
	}
}

func toVkLoadOp(op cache.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case cache.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case cache.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	default:
		return vk.AttachmentLoadOpLoad
	}
}

func toVkStoreOp(op cache.StoreOp) vk.AttachmentStoreOp {
	if op == cache.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}
