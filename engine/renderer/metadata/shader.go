package metadata

/**
 * @brief The kind of resource a shader binding expects. It decides which
 * encoder slot array is consulted and which fallback resource is used when
 * nothing is bound.
 */
type ShaderResourceType uint8

const (
	ShaderResourceTypeConstantBuffer ShaderResourceType = iota
	ShaderResourceTypeTexture
	ShaderResourceTypeBuffer
	ShaderResourceTypeSampler
	/** @brief A texture and a sampler merged into one descriptor entry. */
	ShaderResourceTypeCombinedTextureSampler
	ShaderResourceTypeTextureUAV
	ShaderResourceTypeBufferUAV
)

func (t ShaderResourceType) String() string {
	switch t {
	case ShaderResourceTypeConstantBuffer:
		return "constant-buffer"
	case ShaderResourceTypeTexture:
		return "texture"
	case ShaderResourceTypeBuffer:
		return "buffer"
	case ShaderResourceTypeSampler:
		return "sampler"
	case ShaderResourceTypeCombinedTextureSampler:
		return "combined-texture-sampler"
	case ShaderResourceTypeTextureUAV:
		return "texture-uav"
	case ShaderResourceTypeBufferUAV:
		return "buffer-uav"
	default:
		return "unknown"
	}
}

// IsWritable reports whether the binding is an unordered access binding.
func (t ShaderResourceType) IsWritable() bool {
	return t == ShaderResourceTypeTextureUAV || t == ShaderResourceTypeBufferUAV
}

/**
 * @brief One binding declared by a shader.
 */
type ShaderResourceBinding struct {
	Name string
	/** @brief Descriptor set index. */
	Set uint32
	/** @brief Binding index inside the set. */
	Binding uint32
	/** @brief Encoder slot the resource is taken from. */
	Slot uint32
	/** @brief Sampler slot for combined texture samplers. */
	SamplerSlot  uint32
	ResourceType ShaderResourceType
	/** @brief Dimension expected for texture bindings, used to pick a fallback. */
	TextureType TextureType
	ArraySize   uint32
	Stages      ShaderStageFlags
}

/**
 * @brief Push constant block shared by all stages of a shader.
 */
type PushConstantRange struct {
	Offset uint32
	Size   uint32
	Stages ShaderStageFlags
}

type ShaderReflection struct {
	Bindings     []ShaderResourceBinding
	PushConstant PushConstantRange
	/** @brief Workgroup size of a compute shader. */
	ThreadGroupSize [3]uint32
}

// SetCount returns the number of descriptor sets the bindings span.
func (r *ShaderReflection) SetCount() uint32 {
	var count uint32
	for _, b := range r.Bindings {
		if b.Set+1 > count {
			count = b.Set + 1
		}
	}
	return count
}

/**
 * @brief Describes a shader program: one bytecode blob per stage plus its
 * reflection data.
 */
type ShaderCreationDescription struct {
	Name       string
	ByteCodes  [ShaderStageCount][]byte
	EntryPoint string
	Reflection ShaderReflection
}

func (d *ShaderCreationDescription) HasByteCodeForStage(stage ShaderStage) bool {
	return stage < ShaderStageCount && len(d.ByteCodes[stage]) > 0
}

func (d *ShaderCreationDescription) HasAnyByteCode() bool {
	for stage := ShaderStage(0); stage < ShaderStageCount; stage++ {
		if d.HasByteCodeForStage(stage) {
			return true
		}
	}
	return false
}

// IsCompute reports whether the program is a compute-only program.
func (d *ShaderCreationDescription) IsCompute() bool {
	return d.HasByteCodeForStage(ShaderStageCompute)
}

func (d *ShaderCreationDescription) Stages() ShaderStageFlags {
	var flags ShaderStageFlags
	for stage := ShaderStage(0); stage < ShaderStageCount; stage++ {
		if d.HasByteCodeForStage(stage) {
			flags |= ShaderStageBit(stage)
		}
	}
	return flags
}

func (d *ShaderCreationDescription) EntryPointName() string {
	if d.EntryPoint == "" {
		return "main"
	}
	return d.EntryPoint
}
