package vulkan

import (
	"fmt"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

// Fixed function state is baked into pipelines, so these natives only keep
// the description.
type BlendState struct {
	Description metadata.BlendStateCreationDescription
}

type DepthStencilState struct {
	Description metadata.DepthStencilStateCreationDescription
}

type RasterizerState struct {
	Description metadata.RasterizerStateCreationDescription
}

type Sampler struct {
	Handle vk.Sampler
}

/**
 * @brief A pool holding a single query.
 */
type Query struct {
	Pool vk.QueryPool
	Type metadata.QueryType
	/** @brief The query was reset and not begun since. */
	fresh  bool
	active bool
	/** @brief The query was ended at least once. */
	ended bool
}

/**
 * @brief Vertex input state. Attribute i feeds shader location i.
 */
type VertexInput struct {
	Bindings   []vk.VertexInputBindingDescription
	Attributes []vk.VertexInputAttributeDescription
}

const maxSamplerLod = 1000.0

func (b *Backend) CreateBlendState(desc *metadata.BlendStateCreationDescription) (any, error) {
	return &BlendState{Description: *desc}, nil
}

func (b *Backend) CreateDepthStencilState(desc *metadata.DepthStencilStateCreationDescription) (any, error) {
	return &DepthStencilState{Description: *desc}, nil
}

func (b *Backend) CreateRasterizerState(desc *metadata.RasterizerStateCreationDescription) (any, error) {
	return &RasterizerState{Description: *desc}, nil
}

func (b *Backend) CreateSamplerState(desc *metadata.SamplerStateCreationDescription) (any, error) {
	filter, mipmap := vk.FilterLinear, vk.SamplerMipmapModeLinear
	if desc.Filter == metadata.TextureFilterModePoint {
		filter, mipmap = vk.FilterNearest, vk.SamplerMipmapModeNearest
	}

	limits := b.properties.Limits
	limits.Deref()
	anisotropy := desc.Filter == metadata.TextureFilterModeAnisotropic &&
		desc.MaxAnisotropy > 1 && b.features.SamplerAnisotropy == vk.True

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              mipmap,
		AddressModeU:            toVkAddressMode(desc.AddressU),
		AddressModeV:            toVkAddressMode(desc.AddressV),
		AddressModeW:            toVkAddressMode(desc.AddressW),
		MipLodBias:              desc.MipLODBias,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  float32(math.Max(float64(desc.MinLOD), 0)),
		MaxLod:                  float32(math.Min(float64(desc.MaxLOD), maxSamplerLod)),
		BorderColor:             toVkBorderColor(desc.BorderColor),
		UnnormalizedCoordinates: vk.False,
	}
	if anisotropy {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = float32(math.Min(float64(desc.MaxAnisotropy), float64(limits.MaxSamplerAnisotropy)))
	}
	if desc.ComparisonFunc != metadata.CompareFuncNever {
		samplerInfo.CompareEnable = vk.True
		samplerInfo.CompareOp = toVkCompareOp(desc.ComparisonFunc)
	}
	if samplerInfo.MaxLod < samplerInfo.MinLod {
		samplerInfo.MaxLod = samplerInfo.MinLod
	}

	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(b.device, &samplerInfo, b.allocator, &sampler)); err != nil {
		err = fmt.Errorf("failed to create sampler: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	return &Sampler{Handle: sampler}, nil
}

func (b *Backend) CreateQuery(desc *metadata.QueryCreationDescription) (any, error) {
	queryType := vk.QueryTypeOcclusion
	if desc.Type == metadata.QueryTypeTimestamp {
		queryType = vk.QueryTypeTimestamp
	}
	poolInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  queryType,
		QueryCount: 1,
	}
	var pool vk.QueryPool
	if res := vk.CreateQueryPool(b.device, &poolInfo, b.allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create query pool: %s", VulkanResultString(res, false))
		core.LogError("%s", err)
		return nil, err
	}
	q := &Query{Pool: pool, Type: desc.Type}
	b.queueQueryReset(q)
	return q, nil
}

func (b *Backend) queueQueryReset(q *Query) {
	_ = b.locks.SafeCall(QueryManagement, func() error {
		b.pendingResets[q] = struct{}{}
		return nil
	})
}

// flushQueryResets records the resets queued since the last command buffer
// began. Queries destroyed meanwhile are skipped.
func (b *Backend) flushQueryResets(cb *CommandBuffer) {
	_ = b.locks.SafeCall(QueryManagement, func() error {
		for q := range b.pendingResets {
			if q.Pool != nil {
				vk.CmdResetQueryPool(cb.Handle, q.Pool, 0, 1)
				q.fresh = true
			}
			delete(b.pendingResets, q)
		}
		return nil
	})
}

func asQuery(native any) (*Query, error) {
	q, ok := native.(*Query)
	if !ok || q == nil {
		return nil, fmt.Errorf("vulkan: unexpected query %T: %w", native, core.ErrInvalidHandle)
	}
	return q, nil
}

// ReadQuery does not block. A query that never ran is not ready.
func (b *Backend) ReadQuery(native any) (uint64, bool, error) {
	q, err := asQuery(native)
	if err != nil {
		return 0, false, err
	}
	if !q.ended {
		return 0, false, nil
	}
	var result uint64
	res := vk.GetQueryPoolResults(b.device, q.Pool, 0, 1, uint(unsafe.Sizeof(result)), unsafe.Pointer(&result),
		vk.DeviceSize(unsafe.Sizeof(result)), vk.QueryResultFlags(vk.QueryResult64Bit))
	switch res {
	case vk.Success:
	case vk.NotReady:
		return 0, false, nil
	case vk.ErrorDeviceLost:
		return 0, false, core.ErrDeviceLost
	default:
		return 0, false, fmt.Errorf("vulkan: GetQueryPoolResults: %s", VulkanResultString(res, false))
	}
	if q.Type == metadata.QueryTypeAnySamplesPassed && result > 0 {
		result = 1
	}
	return result, true, nil
}

func buildVertexInput(desc *metadata.VertexDeclarationCreationDescription) (*VertexInput, error) {
	input := &VertexInput{}
	if desc == nil {
		return input, nil
	}
	perInstance := make(map[uint32]bool)
	for i, a := range desc.Attributes {
		format := toVkFormat(a.Format)
		if format == vk.FormatUndefined {
			return nil, fmt.Errorf("vulkan: attribute %d has format %s: %w", i, a.Format, core.ErrValidation)
		}
		input.Attributes = append(input.Attributes, vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  a.Slot,
			Format:   format,
			Offset:   a.Offset,
		})
		perInstance[a.Slot] = perInstance[a.Slot] || a.PerInstance
	}
	used := desc.UsedSlots()
	for slot := uint32(0); slot < metadata.MAX_VERTEX_BUFFER_COUNT; slot++ {
		if used&(1<<slot) == 0 {
			continue
		}
		rate := vk.VertexInputRateVertex
		if perInstance[slot] {
			rate = vk.VertexInputRateInstance
		}
		input.Bindings = append(input.Bindings, vk.VertexInputBindingDescription{
			Binding:   slot,
			Stride:    desc.Stride(slot),
			InputRate: rate,
		})
	}
	return input, nil
}

func (b *Backend) CreateVertexDeclaration(desc *metadata.VertexDeclarationCreationDescription, shader any) (any, error) {
	input, err := buildVertexInput(desc)
	if err != nil {
		core.LogError("CreateVertexDeclaration: %s", err)
		return nil, err
	}
	if s, ok := shader.(*Shader); ok && s.Compute {
		core.LogWarn("CreateVertexDeclaration: shader `%s` is a compute shader", s.Name)
	}
	return input, nil
}
