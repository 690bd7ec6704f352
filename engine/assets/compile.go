package assets

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

const spirvMagic = 0x07230203

// compileStage returns SPIR-V for one stage source. WGSL goes through naga,
// anything ending in .spv is taken as is.
func compileStage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader source `%s`: %w", path, err)
	}
	switch filepath.Ext(path) {
	case ".spv":
		if err := checkSPIRV(data); err != nil {
			return nil, fmt.Errorf("`%s`: %w", path, err)
		}
		return data, nil
	case ".wgsl":
		code, err := naga.Compile(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to compile `%s`: %w", path, err)
		}
		return code, nil
	default:
		return nil, fmt.Errorf("unsupported shader source `%s`", path)
	}
}

func checkSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return fmt.Errorf("SPIR-V size %d is not a multiple of 4", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != spirvMagic {
		return fmt.Errorf("bad SPIR-V magic %#x", magic)
	}
	return nil
}

// CompileManifest reads a manifest and compiles every stage it lists. The
// returned sources are the manifest followed by the stage files.
func CompileManifest(path string) (*metadata.ShaderCreationDescription, []string, error) {
	manifest, err := LoadManifest(path)
	if err != nil {
		return nil, nil, err
	}
	paths, err := manifest.StagePaths()
	if err != nil {
		return nil, nil, fmt.Errorf("shader `%s`: %w", manifest.Name, err)
	}
	reflection, err := manifest.Reflection()
	if err != nil {
		return nil, nil, fmt.Errorf("shader `%s`: %w", manifest.Name, err)
	}

	desc := &metadata.ShaderCreationDescription{
		Name:       manifest.Name,
		EntryPoint: manifest.EntryPoint,
		Reflection: reflection,
	}
	if desc.EntryPoint == "" {
		desc.EntryPoint = "main"
	}
	sources := []string{path}
	for stage, stagePath := range paths {
		code, err := compileStage(stagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("shader `%s` %s stage: %w", manifest.Name, stage, err)
		}
		desc.ByteCodes[stage] = code
		sources = append(sources, stagePath)
	}
	return desc, sources, nil
}
