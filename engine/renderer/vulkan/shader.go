package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

const spirvMagic = 0x07230203

/**
 * @brief One compiled stage of a shader program.
 */
type ShaderStage struct {
	Stage  metadata.ShaderStage
	Handle vk.ShaderModule
	/** @brief Pipeline stage info, entry point included. */
	CreateInfo vk.PipelineShaderStageCreateInfo
}

/**
 * @brief The SPIR-V modules of a shader program.
 */
type Shader struct {
	Name    string
	Stages  []ShaderStage
	Compute bool
}

func asShader(native any) (*Shader, error) {
	s, ok := native.(*Shader)
	if !ok || s == nil {
		return nil, fmt.Errorf("vulkan: unexpected shader %T: %w", native, core.ErrInvalidHandle)
	}
	return s, nil
}

// repackUint32 turns SPIR-V bytes into words. The byte code must be a whole
// number of little endian words starting with the SPIR-V magic.
func repackUint32(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("vulkan: SPIR-V size %d is not a multiple of 4: %w", len(code), core.ErrValidation)
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("vulkan: byte code is not SPIR-V (magic %#x): %w", words[0], core.ErrValidation)
	}
	return words, nil
}

func (b *Backend) CreateShader(desc *metadata.ShaderCreationDescription) (any, error) {
	shader := &Shader{Name: desc.Name, Compute: desc.IsCompute()}
	entryPoint := VulkanSafeString(desc.EntryPointName())

	for stage := metadata.ShaderStage(0); stage < metadata.ShaderStageCount; stage++ {
		if !desc.HasByteCodeForStage(stage) {
			continue
		}
		code, err := repackUint32(desc.ByteCodes[stage])
		if err != nil {
			core.LogError("CreateShader `%s`: stage %d: %s", desc.Name, stage, err)
			b.destroyShader(shader)
			return nil, err
		}
		createInfo := vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint(len(desc.ByteCodes[stage])),
			PCode:    code,
		}
		var module vk.ShaderModule
		if res := vk.CreateShaderModule(b.device, &createInfo, b.allocator, &module); res != vk.Success {
			err := fmt.Errorf("failed to create the shader module of `%s` stage %d: %s", desc.Name, stage, VulkanResultString(res, false))
			core.LogError("%s", err)
			b.destroyShader(shader)
			return nil, err
		}
		shader.Stages = append(shader.Stages, ShaderStage{
			Stage:  stage,
			Handle: module,
			CreateInfo: vk.PipelineShaderStageCreateInfo{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  shaderStageBits[stage],
				Module: module,
				PName:  entryPoint,
			},
		})
	}
	if len(shader.Stages) == 0 {
		return nil, fmt.Errorf("vulkan: shader `%s` has no byte code: %w", desc.Name, core.ErrValidation)
	}
	return shader, nil
}

func (s *Shader) stageInfos() []vk.PipelineShaderStageCreateInfo {
	infos := make([]vk.PipelineShaderStageCreateInfo, 0, len(s.Stages))
	for _, stage := range s.Stages {
		if stage.Stage != metadata.ShaderStageCompute {
			infos = append(infos, stage.CreateInfo)
		}
	}
	return infos
}

func (s *Shader) computeStage() (vk.PipelineShaderStageCreateInfo, bool) {
	for _, stage := range s.Stages {
		if stage.Stage == metadata.ShaderStageCompute {
			return stage.CreateInfo, true
		}
	}
	return vk.PipelineShaderStageCreateInfo{}, false
}

func (b *Backend) destroyShader(s *Shader) {
	for i := range s.Stages {
		if s.Stages[i].Handle != nil {
			vk.DestroyShaderModule(b.device, s.Stages[i].Handle, b.allocator)
			s.Stages[i].Handle = nil
		}
	}
	s.Stages = nil
}
