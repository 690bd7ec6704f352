package assets

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

const ManifestExtension = ".shader.toml"

type bindingManifest struct {
	Name        string   `toml:"name"`
	Set         uint32   `toml:"set"`
	Binding     uint32   `toml:"binding"`
	Slot        uint32   `toml:"slot"`
	SamplerSlot uint32   `toml:"sampler_slot"`
	Type        string   `toml:"type"`
	Texture     string   `toml:"texture"`
	ArraySize   uint32   `toml:"array_size"`
	Stages      []string `toml:"stages"`
}

type pushConstantManifest struct {
	Offset uint32   `toml:"offset"`
	Size   uint32   `toml:"size"`
	Stages []string `toml:"stages"`
}

/**
 * @brief The TOML description of a shader program: one source file per
 * stage plus the reflection data the device needs to build layouts.
 */
type ShaderManifest struct {
	Name            string               `toml:"name"`
	EntryPoint      string               `toml:"entry_point"`
	Stages          map[string]string    `toml:"stages"`
	Bindings        []bindingManifest    `toml:"bindings"`
	PushConstant    pushConstantManifest `toml:"push_constant"`
	ThreadGroupSize [3]uint32            `toml:"thread_group_size"`

	/** @brief Directory the stage paths are relative to. */
	dir string
}

func LoadManifest(path string) (*ShaderManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader manifest `%s`: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("shader manifest `%s`: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), ManifestExtension)
	}
	return m, nil
}

func ParseManifest(data []byte) (*ShaderManifest, error) {
	m := &ShaderManifest{}
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(m); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown fields:\n%s", strict.String())
		}
		return nil, err
	}
	if len(m.Stages) == 0 {
		return nil, errors.New("no stages declared")
	}
	return m, nil
}

// StagePaths returns the source file of every declared stage.
func (m *ShaderManifest) StagePaths() (map[metadata.ShaderStage]string, error) {
	out := make(map[metadata.ShaderStage]string, len(m.Stages))
	for name, file := range m.Stages {
		stage, err := parseStage(name)
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(m.dir, file)
		}
		out[stage] = file
	}
	return out, nil
}

// Reflection converts the declared bindings.
func (m *ShaderManifest) Reflection() (metadata.ShaderReflection, error) {
	r := metadata.ShaderReflection{ThreadGroupSize: m.ThreadGroupSize}
	for _, b := range m.Bindings {
		resourceType, err := parseResourceType(b.Type)
		if err != nil {
			return r, fmt.Errorf("binding `%s`: %w", b.Name, err)
		}
		stages, err := parseStages(b.Stages)
		if err != nil {
			return r, fmt.Errorf("binding `%s`: %w", b.Name, err)
		}
		textureType := metadata.TextureTypeInvalid
		switch resourceType {
		case metadata.ShaderResourceTypeTexture, metadata.ShaderResourceTypeCombinedTextureSampler, metadata.ShaderResourceTypeTextureUAV:
			textureType, err = parseTextureType(b.Texture)
			if err != nil {
				return r, fmt.Errorf("binding `%s`: %w", b.Name, err)
			}
		}
		r.Bindings = append(r.Bindings, metadata.ShaderResourceBinding{
			Name:         b.Name,
			Set:          b.Set,
			Binding:      b.Binding,
			Slot:         b.Slot,
			SamplerSlot:  b.SamplerSlot,
			ResourceType: resourceType,
			TextureType:  textureType,
			ArraySize:    b.ArraySize,
			Stages:       stages,
		})
	}
	if m.PushConstant.Size > 0 {
		stages, err := parseStages(m.PushConstant.Stages)
		if err != nil {
			return r, fmt.Errorf("push constant: %w", err)
		}
		r.PushConstant = metadata.PushConstantRange{
			Offset: m.PushConstant.Offset,
			Size:   m.PushConstant.Size,
			Stages: stages,
		}
	}
	return r, nil
}

func parseStage(name string) (metadata.ShaderStage, error) {
	for stage := metadata.ShaderStage(0); stage < metadata.ShaderStageCount; stage++ {
		if stage.String() == name {
			return stage, nil
		}
	}
	return metadata.ShaderStageCount, fmt.Errorf("unknown shader stage `%s`", name)
}

// parseStages returns every stage when the list is empty.
func parseStages(names []string) (metadata.ShaderStageFlags, error) {
	if len(names) == 0 {
		var all metadata.ShaderStageFlags
		for stage := metadata.ShaderStage(0); stage < metadata.ShaderStageCount; stage++ {
			all |= metadata.ShaderStageBit(stage)
		}
		return all, nil
	}
	var flags metadata.ShaderStageFlags
	for _, name := range names {
		stage, err := parseStage(name)
		if err != nil {
			return 0, err
		}
		flags |= metadata.ShaderStageBit(stage)
	}
	return flags, nil
}

func parseResourceType(name string) (metadata.ShaderResourceType, error) {
	for t := metadata.ShaderResourceTypeConstantBuffer; t <= metadata.ShaderResourceTypeBufferUAV; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown resource type `%s`", name)
}

// parseTextureType defaults to a 2d texture.
func parseTextureType(name string) (metadata.TextureType, error) {
	switch strings.ToLower(name) {
	case "", "2d", "texture2d":
		return metadata.TextureType2D, nil
	case "cube", "texturecube":
		return metadata.TextureTypeCube, nil
	case "3d", "texture3d":
		return metadata.TextureType3D, nil
	default:
		return metadata.TextureTypeInvalid, fmt.Errorf("unknown texture type `%s`", name)
	}
}
