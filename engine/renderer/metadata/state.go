package metadata

import "math"

type ColorWriteMask uint8

const (
	ColorWriteMaskRed ColorWriteMask = 1 << iota
	ColorWriteMaskGreen
	ColorWriteMaskBlue
	ColorWriteMaskAlpha

	ColorWriteMaskAll = ColorWriteMaskRed | ColorWriteMaskGreen | ColorWriteMaskBlue | ColorWriteMaskAlpha
)

/**
 * @brief Blend setup of one render target slot.
 */
type RenderTargetBlendDescription struct {
	BlendEnable    bool
	SrcBlend       Blend
	DestBlend      Blend
	BlendOp        BlendOp
	SrcBlendAlpha  Blend
	DestBlendAlpha Blend
	BlendOpAlpha   BlendOp
	WriteMask      ColorWriteMask
}

func DefaultRenderTargetBlendDescription() RenderTargetBlendDescription {
	return RenderTargetBlendDescription{
		SrcBlend:       BlendOne,
		DestBlend:      BlendZero,
		BlendOp:        BlendOpAdd,
		SrcBlendAlpha:  BlendOne,
		DestBlendAlpha: BlendZero,
		BlendOpAlpha:   BlendOpAdd,
		WriteMask:      ColorWriteMaskAll,
	}
}

func (d *RenderTargetBlendDescription) hash(w *hashWriter) {
	w.bool(d.BlendEnable)
	w.uint32(uint32(d.SrcBlend))
	w.uint32(uint32(d.DestBlend))
	w.uint32(uint32(d.BlendOp))
	w.uint32(uint32(d.SrcBlendAlpha))
	w.uint32(uint32(d.DestBlendAlpha))
	w.uint32(uint32(d.BlendOpAlpha))
	w.uint32(uint32(d.WriteMask))
}

/**
 * @brief Describes a blend state. When IndependentBlend is false only the
 * first render target entry is used.
 */
type BlendStateCreationDescription struct {
	AlphaToCoverage  bool
	IndependentBlend bool
	RenderTargets    [MAX_RENDERTARGET_COUNT]RenderTargetBlendDescription
}

func DefaultBlendStateCreationDescription() BlendStateCreationDescription {
	d := BlendStateCreationDescription{}
	for i := range d.RenderTargets {
		d.RenderTargets[i] = DefaultRenderTargetBlendDescription()
	}
	return d
}

// SetAlphaBlending enables classic src-alpha / inv-src-alpha blending on the
// first render target.
func (d *BlendStateCreationDescription) SetAlphaBlending() {
	rt := &d.RenderTargets[0]
	rt.BlendEnable = true
	rt.SrcBlend = BlendSrcAlpha
	rt.DestBlend = BlendInvSrcAlpha
	rt.SrcBlendAlpha = BlendOne
	rt.DestBlendAlpha = BlendInvSrcAlpha
}

func (d *BlendStateCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.bool(d.AlphaToCoverage)
	w.bool(d.IndependentBlend)
	count := 1
	if d.IndependentBlend {
		count = MAX_RENDERTARGET_COUNT
	}
	for i := 0; i < count; i++ {
		d.RenderTargets[i].hash(w)
	}
	return w.sum()
}

type StencilOpDescription struct {
	FailOp      StencilOp
	DepthFailOp StencilOp
	PassOp      StencilOp
	Func        CompareFunc
}

func DefaultStencilOpDescription() StencilOpDescription {
	return StencilOpDescription{
		FailOp:      StencilOpKeep,
		DepthFailOp: StencilOpKeep,
		PassOp:      StencilOpKeep,
		Func:        CompareFuncAlways,
	}
}

func (d *StencilOpDescription) hash(w *hashWriter) {
	w.uint32(uint32(d.FailOp))
	w.uint32(uint32(d.DepthFailOp))
	w.uint32(uint32(d.PassOp))
	w.uint32(uint32(d.Func))
}

type DepthStencilStateCreationDescription struct {
	DepthTest        bool
	DepthWrite       bool
	DepthFunc        CompareFunc
	StencilEnable    bool
	StencilReadMask  uint8
	StencilWriteMask uint8
	FrontFace        StencilOpDescription
	BackFace         StencilOpDescription
}

func DefaultDepthStencilStateCreationDescription() DepthStencilStateCreationDescription {
	return DepthStencilStateCreationDescription{
		DepthTest:        true,
		DepthWrite:       true,
		DepthFunc:        CompareFuncLess,
		StencilReadMask:  0xFF,
		StencilWriteMask: 0xFF,
		FrontFace:        DefaultStencilOpDescription(),
		BackFace:         DefaultStencilOpDescription(),
	}
}

func (d *DepthStencilStateCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.bool(d.DepthTest)
	w.bool(d.DepthWrite)
	w.uint32(uint32(d.DepthFunc))
	w.bool(d.StencilEnable)
	w.uint32(uint32(d.StencilReadMask))
	w.uint32(uint32(d.StencilWriteMask))
	d.FrontFace.hash(w)
	d.BackFace.hash(w)
	return w.sum()
}

type RasterizerStateCreationDescription struct {
	Wireframe             bool
	CullMode              CullMode
	FrontCounterClockwise bool
	DepthBias             int32
	DepthBiasClamp        float32
	SlopeScaledDepthBias  float32
	DepthClip             bool
	/** @brief When false the encoder uses the viewport rectangle as scissor. */
	ScissorTest bool
	/** @brief Only honored when Capabilities.SupportsConservativeRasterization. */
	ConservativeRasterization bool
}

func DefaultRasterizerStateCreationDescription() RasterizerStateCreationDescription {
	return RasterizerStateCreationDescription{
		CullMode:  CullModeBack,
		DepthClip: true,
	}
}

func (d *RasterizerStateCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.bool(d.Wireframe)
	w.uint32(uint32(d.CullMode))
	w.bool(d.FrontCounterClockwise)
	w.int32(d.DepthBias)
	w.float32(d.DepthBiasClamp)
	w.float32(d.SlopeScaledDepthBias)
	w.bool(d.DepthClip)
	w.bool(d.ScissorTest)
	w.bool(d.ConservativeRasterization)
	return w.sum()
}

type SamplerStateCreationDescription struct {
	Filter        TextureFilterMode
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	MipLODBias    float32
	MaxAnisotropy uint32
	/** @brief CompareFuncNever disables depth comparison. */
	ComparisonFunc CompareFunc
	BorderColor    [4]float32
	MinLOD         float32
	MaxLOD         float32
}

func DefaultSamplerStateCreationDescription() SamplerStateCreationDescription {
	return SamplerStateCreationDescription{
		Filter:         TextureFilterModeLinear,
		AddressU:       AddressModeRepeat,
		AddressV:       AddressModeRepeat,
		AddressW:       AddressModeRepeat,
		MaxAnisotropy:  1,
		ComparisonFunc: CompareFuncNever,
		MinLOD:         -math.MaxFloat32,
		MaxLOD:         math.MaxFloat32,
	}
}

func (d *SamplerStateCreationDescription) IsComparison() bool {
	return d.ComparisonFunc != CompareFuncNever
}

func (d *SamplerStateCreationDescription) CalculateHash() uint64 {
	w := newHashWriter()
	w.uint32(uint32(d.Filter))
	w.uint32(uint32(d.AddressU))
	w.uint32(uint32(d.AddressV))
	w.uint32(uint32(d.AddressW))
	w.float32(d.MipLODBias)
	w.uint32(d.MaxAnisotropy)
	w.uint32(uint32(d.ComparisonFunc))
	for _, c := range d.BorderColor {
		w.float32(c)
	}
	w.float32(d.MinLOD)
	w.float32(d.MaxLOD)
	return w.sum()
}
