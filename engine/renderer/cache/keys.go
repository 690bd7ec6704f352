package cache

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

type LoadOp uint8

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

/**
 * @brief One binding of a descriptor set layout.
 */
type LayoutBinding struct {
	Binding uint32
	Type    metadata.ShaderResourceType
	Count   uint32
	Stages  metadata.ShaderStageFlags
}

type DescriptorSetLayoutDescription struct {
	Bindings []LayoutBinding
}

/**
 * @brief All descriptor set layouts plus the push constant range of a shader.
 */
type PipelineLayoutDescription struct {
	Sets         []DescriptorSetLayoutDescription
	PushConstant metadata.PushConstantRange
}

// PipelineLayoutFromReflection groups the declared bindings by set. Sets that
// declare nothing stay empty so set indices keep their meaning.
func PipelineLayoutFromReflection(r *metadata.ShaderReflection) PipelineLayoutDescription {
	desc := PipelineLayoutDescription{
		Sets:         make([]DescriptorSetLayoutDescription, r.SetCount()),
		PushConstant: r.PushConstant,
	}
	for _, b := range r.Bindings {
		count := b.ArraySize
		if count == 0 {
			count = 1
		}
		set := &desc.Sets[b.Set]
		set.Bindings = append(set.Bindings, LayoutBinding{
			Binding: b.Binding,
			Type:    b.ResourceType,
			Count:   count,
			Stages:  b.Stages,
		})
	}
	return desc
}

func (d *PipelineLayoutDescription) Hash() uint64 {
	h := newKeyHasher()
	h.u32(uint32(len(d.Sets)))
	for _, set := range d.Sets {
		h.u32(uint32(len(set.Bindings)))
		for _, b := range set.Bindings {
			h.u32(b.Binding)
			h.u32(uint32(b.Type))
			h.u32(b.Count)
			h.u32(uint32(b.Stages))
		}
	}
	h.u32(d.PushConstant.Offset)
	h.u32(d.PushConstant.Size)
	h.u32(uint32(d.PushConstant.Stages))
	return h.sum()
}

/**
 * @brief Attachment formats and load/store behavior of a render pass.
 */
type RenderPassDescription struct {
	ColorCount   uint32
	ColorFormats [metadata.MAX_RENDERTARGET_COUNT]metadata.ResourceFormat
	ColorLoad    [metadata.MAX_RENDERTARGET_COUNT]LoadOp
	ColorStore   [metadata.MAX_RENDERTARGET_COUNT]StoreOp
	DepthFormat  metadata.ResourceFormat
	DepthLoad    LoadOp
	DepthStore   StoreOp
	StencilLoad  LoadOp
	SampleCount  metadata.MSAASampleCount
	/** @brief The color attachment is presented after the pass. */
	Present bool
}

func (d *RenderPassDescription) HasDepth() bool {
	return d.DepthFormat != metadata.ResourceFormatInvalid
}

func (d *RenderPassDescription) Hash() uint64 {
	h := newKeyHasher()
	h.u32(d.ColorCount)
	for i := uint32(0); i < d.ColorCount; i++ {
		h.u32(uint32(d.ColorFormats[i]))
		h.u32(uint32(d.ColorLoad[i]))
		h.u32(uint32(d.ColorStore[i]))
	}
	h.u32(uint32(d.DepthFormat))
	h.u32(uint32(d.DepthLoad))
	h.u32(uint32(d.DepthStore))
	h.u32(uint32(d.StencilLoad))
	h.u32(uint32(d.SampleCount))
	h.bool(d.Present)
	return h.sum()
}

/**
 * @brief Full structural key of a graphics or compute pipeline. Natives are
 * carried for the factory and never hashed.
 */
type PipelineDescription struct {
	Compute bool

	/** @brief Raw handle of the shader, used for eviction. */
	Shader       uint64
	ShaderNative any
	ShaderDesc   *metadata.ShaderCreationDescription

	Layout PipelineLayoutDescription

	Blend        metadata.BlendStateCreationDescription
	DepthStencil metadata.DepthStencilStateCreationDescription
	Rasterizer   metadata.RasterizerStateCreationDescription
	Topology     metadata.PrimitiveTopology
	VertexInput  *metadata.VertexDeclarationCreationDescription

	RenderPass RenderPassDescription
}

func (d *PipelineDescription) Hash() uint64 {
	h := newKeyHasher()
	h.bool(d.Compute)
	h.u64(d.Shader)
	h.u64(d.Layout.Hash())
	if d.Compute {
		return h.sum()
	}
	h.u64(d.Blend.CalculateHash())
	h.u64(d.DepthStencil.CalculateHash())
	h.u64(d.Rasterizer.CalculateHash())
	h.u32(uint32(d.Topology))
	if d.VertexInput != nil {
		h.u64(d.VertexInput.CalculateHash())
	} else {
		h.u64(0)
	}
	h.u64(d.RenderPass.Hash())
	return h.sum()
}

/**
 * @brief Attachments of one framebuffer, identified by the raw handles of
 * their render target views.
 */
type FramebufferDescription struct {
	RenderPass  RenderPassDescription
	Attachments []uint64
	Natives     []any
	Width       uint32
	Height      uint32
	Layers      uint32
}

func (d *FramebufferDescription) Hash() uint64 {
	h := newKeyHasher()
	h.u64(d.RenderPass.Hash())
	h.u32(uint32(len(d.Attachments)))
	for _, a := range d.Attachments {
		h.u64(a)
	}
	h.u32(d.Width)
	h.u32(d.Height)
	h.u32(d.Layers)
	return h.sum()
}

/**
 * @brief One resolved entry of a descriptor set, ready for the backend.
 */
type DescriptorEntry struct {
	Binding uint32
	Type    metadata.ShaderResourceType
	/** @brief Image view, buffer or texel view. */
	Resource any
	Sampler  any
	Offset   uint64
	Range    uint64
}

type keyHasher struct {
	buf [8]byte
	h   hash.Hash64
}

func newKeyHasher() *keyHasher {
	return &keyHasher{h: fnv.New64a()}
}

func (k *keyHasher) u32(v uint32) {
	binary.LittleEndian.PutUint32(k.buf[:4], v)
	k.h.Write(k.buf[:4])
}

func (k *keyHasher) u64(v uint64) {
	binary.LittleEndian.PutUint64(k.buf[:], v)
	k.h.Write(k.buf[:])
}

func (k *keyHasher) bool(v bool) {
	if v {
		k.u32(1)
	} else {
		k.u32(0)
	}
}

func (k *keyHasher) sum() uint64 {
	return k.h.Sum64()
}

/**
 * @brief Everything needed to open a render pass instance.
 */
type RenderPassBeginInfo struct {
	RenderPass   *RenderPass
	Framebuffer  *Framebuffer
	Width        uint32
	Height       uint32
	ClearColors  [metadata.MAX_RENDERTARGET_COUNT][4]float32
	ClearDepth   float32
	ClearStencil uint8
}
