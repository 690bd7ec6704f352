package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief Descriptor set layouts plus the pipeline layout built from them.
 */
type PipelineLayout struct {
	Handle     vk.PipelineLayout
	SetLayouts []vk.DescriptorSetLayout
	/** @brief Stages the push constant range is visible to. */
	PushStages vk.ShaderStageFlags
}

type Pipeline struct {
	Handle    vk.Pipeline
	BindPoint vk.PipelineBindPoint
}

func asPipelineLayout(native any) (*PipelineLayout, error) {
	l, ok := native.(*PipelineLayout)
	if !ok || l == nil {
		return nil, fmt.Errorf("vulkan: unexpected pipeline layout %T: %w", native, core.ErrInvalidHandle)
	}
	return l, nil
}

func asPipeline(native any) (*Pipeline, error) {
	p, ok := native.(*Pipeline)
	if !ok || p == nil {
		return nil, fmt.Errorf("vulkan: unexpected pipeline %T: %w", native, core.ErrInvalidHandle)
	}
	return p, nil
}

func (b *Backend) CreatePipelineLayout(desc *cache.PipelineLayoutDescription) (any, error) {
	out := &PipelineLayout{SetLayouts: make([]vk.DescriptorSetLayout, 0, len(desc.Sets))}

	for set := range desc.Sets {
		bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(desc.Sets[set].Bindings))
		for _, binding := range desc.Sets[set].Bindings {
			bindings = append(bindings, vk.DescriptorSetLayoutBinding{
				Binding:         binding.Binding,
				DescriptorType:  toVkDescriptorType(binding.Type),
				DescriptorCount: max(binding.Count, 1),
				StageFlags:      toVkShaderStages(binding.Stages),
			})
		}
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		var setLayout vk.DescriptorSetLayout
		if res := vk.CreateDescriptorSetLayout(b.device, &layoutInfo, b.allocator, &setLayout); res != vk.Success {
			b.destroyPipelineLayout(out)
			err := fmt.Errorf("failed to create descriptor set layout %d: %s", set, VulkanResultString(res, true))
			core.LogError("%s", err)
			return nil, err
		}
		out.SetLayouts = append(out.SetLayouts, setLayout)
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(out.SetLayouts)),
		PSetLayouts:    out.SetLayouts,
	}
	if pc := desc.PushConstant; pc.Size > 0 {
		limit := b.capabilities.MaxPushConstantsSize
		if limit > 0 && pc.Offset+pc.Size > limit {
			b.destroyPipelineLayout(out)
			err := fmt.Errorf("vulkan: push constants end at byte %d, limit is %d: %w", pc.Offset+pc.Size, limit, core.ErrValidation)
			core.LogError("%s", err)
			return nil, err
		}
		out.PushStages = toVkShaderStages(pc.Stages)
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: out.PushStages,
			Offset:     pc.Offset,
			Size:       pc.Size,
		}}
	}

	var handle vk.PipelineLayout
	if res := vk.CreatePipelineLayout(b.device, &layoutInfo, b.allocator, &handle); res != vk.Success {
		b.destroyPipelineLayout(out)
		err := fmt.Errorf("vkCreatePipelineLayout failed with %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	out.Handle = handle
	return out, nil
}

func (b *Backend) destroyPipelineLayout(l *PipelineLayout) {
	if l.Handle != nil {
		vk.DestroyPipelineLayout(b.device, l.Handle, b.allocator)
		l.Handle = nil
	}
	for _, setLayout := range l.SetLayouts {
		vk.DestroyDescriptorSetLayout(b.device, setLayout, b.allocator)
	}
	l.SetLayouts = nil
}

func (b *Backend) rasterizationState(desc *metadata.RasterizerStateCreationDescription) vk.PipelineRasterizationStateCreateInfo {
	info := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                toVkCullMode(desc.CullMode),
		FrontFace:               vk.FrontFaceClockwise,
	}
	if desc.FrontCounterClockwise {
		info.FrontFace = vk.FrontFaceCounterClockwise
	}
	if desc.Wireframe {
		if b.features.FillModeNonSolid == vk.True {
			info.PolygonMode = vk.PolygonModeLine
		} else {
			core.LogWarn("wireframe rasterization is not supported by this device")
		}
	}
	if !desc.DepthClip && b.features.DepthClamp == vk.True {
		info.DepthClampEnable = vk.True
	}
	if desc.DepthBias != 0 || desc.SlopeScaledDepthBias != 0 {
		info.DepthBiasEnable = vk.True
		info.DepthBiasConstantFactor = float32(desc.DepthBias)
		info.DepthBiasSlopeFactor = desc.SlopeScaledDepthBias
		if b.features.DepthBiasClamp == vk.True {
			info.DepthBiasClamp = desc.DepthBiasClamp
		}
	}
	return info
}

func stencilOpState(desc *metadata.DepthStencilStateCreationDescription, face metadata.StencilOpDescription) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      toVkStencilOp(face.FailOp),
		PassOp:      toVkStencilOp(face.PassOp),
		DepthFailOp: toVkStencilOp(face.DepthFailOp),
		CompareOp:   toVkCompareOp(face.Func),
		CompareMask: uint32(desc.StencilReadMask),
		WriteMask:   uint32(desc.StencilWriteMask),
	}
}

func depthStencilState(desc *metadata.DepthStencilStateCreationDescription) vk.PipelineDepthStencilStateCreateInfo {
	info := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    vk.CompareOpAlways,
		StencilTestEnable: vk.False,
		MinDepthBounds:    0,
		MaxDepthBounds:    1,
	}
	if desc.DepthTest {
		info.DepthTestEnable = vk.True
		info.DepthCompareOp = toVkCompareOp(desc.DepthFunc)
	}
	if desc.DepthWrite {
		info.DepthWriteEnable = vk.True
	}
	if desc.StencilEnable {
		info.StencilTestEnable = vk.True
		info.Front = stencilOpState(desc, desc.FrontFace)
		info.Back = stencilOpState(desc, desc.BackFace)
	}
	return info
}

func (b *Backend) blendAttachments(desc *metadata.BlendStateCreationDescription, count uint32) []vk.PipelineColorBlendAttachmentState {
	independent := desc.IndependentBlend
	if independent && b.features.IndependentBlend != vk.True {
		core.LogWarn("independent blending is not supported, using render target 0 for all")
		independent = false
	}
	out := make([]vk.PipelineColorBlendAttachmentState, count)
	for i := range out {
		rt := &desc.RenderTargets[0]
		if independent {
			rt = &desc.RenderTargets[i]
		}
		state := vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.False,
			SrcColorBlendFactor: toVkBlendFactor(rt.SrcBlend),
			DstColorBlendFactor: toVkBlendFactor(rt.DestBlend),
			ColorBlendOp:        toVkBlendOp(rt.BlendOp),
			SrcAlphaBlendFactor: toVkBlendFactor(rt.SrcBlendAlpha),
			DstAlphaBlendFactor: toVkBlendFactor(rt.DestBlendAlpha),
			AlphaBlendOp:        toVkBlendOp(rt.BlendOpAlpha),
			ColorWriteMask:      toVkColorMask(rt.WriteMask),
		}
		if rt.BlendEnable {
			state.BlendEnable = vk.True
		}
		out[i] = state
	}
	return out
}

func (b *Backend) CreateGraphicsPipeline(desc *cache.PipelineDescription, layout any, renderPass any) (any, error) {
	pl, err := asPipelineLayout(layout)
	if err != nil {
		return nil, err
	}
	rp, err := asRenderPass(renderPass)
	if err != nil {
		return nil, err
	}
	shader, err := asShader(desc.ShaderNative)
	if err != nil {
		return nil, err
	}
	stages := shader.stageInfos()
	if len(stages) == 0 {
		err := fmt.Errorf("vulkan: shader `%s` has no graphics stages: %w", shader.Name, core.ErrValidation)
		core.LogError("%s", err)
		return nil, err
	}
	input, err := buildVertexInput(desc.VertexInput)
	if err != nil {
		core.LogError("CreateGraphicsPipeline: %s", err)
		return nil, err
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(input.Bindings)),
		PVertexBindingDescriptions:      input.Bindings,
		VertexAttributeDescriptionCount: uint32(len(input.Attributes)),
		PVertexAttributeDescriptions:    input.Attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toVkTopology(desc.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport and scissor are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := b.rasterizationState(&desc.Rasterizer)

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  toVkSampleCount(desc.RenderPass.SampleCount),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}
	if desc.Blend.AlphaToCoverage {
		multisampling.AlphaToCoverageEnable = vk.True
	}

	depthStencil := depthStencilState(&desc.DepthStencil)
	if !rp.HasDepth {
		depthStencil.DepthTestEnable = vk.False
		depthStencil.DepthWriteEnable = vk.False
		depthStencil.StencilTestEnable = vk.False
	}

	attachments := b.blendAttachments(&desc.Blend, rp.ColorCount)
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              pl.Handle,
		RenderPass:          rp.Handle,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(b.device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineInfo}, b.allocator, pipelines); res != vk.Success {
		err := fmt.Errorf("vkCreateGraphicsPipelines failed for `%s` with %s", shader.Name, VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	core.LogDebug("graphics pipeline created for shader `%s`", shader.Name)
	return &Pipeline{Handle: pipelines[0], BindPoint: vk.PipelineBindPointGraphics}, nil
}

func (b *Backend) CreateComputePipeline(desc *cache.PipelineDescription, layout any) (any, error) {
	pl, err := asPipelineLayout(layout)
	if err != nil {
		return nil, err
	}
	shader, err := asShader(desc.ShaderNative)
	if err != nil {
		return nil, err
	}
	stage, ok := shader.computeStage()
	if !ok {
		err := fmt.Errorf("vulkan: shader `%s` has no compute stage: %w", shader.Name, core.ErrValidation)
		core.LogError("%s", err)
		return nil, err
	}

	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType:             vk.StructureTypeComputePipelineCreateInfo,
		Stage:             stage,
		Layout:            pl.Handle,
		BasePipelineIndex: -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(b.device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{pipelineInfo}, b.allocator, pipelines); res != vk.Success {
		err := fmt.Errorf("vkCreateComputePipelines failed for `%s` with %s", shader.Name, VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	return &Pipeline{Handle: pipelines[0], BindPoint: vk.PipelineBindPointCompute}, nil
}
