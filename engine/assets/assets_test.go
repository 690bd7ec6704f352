package assets

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-gal/engine/config"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gal/engine/renderer/null"
	"github.com/spaghettifunk/anima-gal/engine/systems"
)

const litManifest = `
entry_point = "main"

[stages]
vertex = "lit.vert.spv"
pixel = "lit.frag.spv"

[[bindings]]
name = "globals"
set = 0
binding = 0
slot = 0
type = "constant-buffer"
stages = ["vertex", "pixel"]

[[bindings]]
name = "albedo"
set = 1
binding = 0
slot = 0
sampler_slot = 0
type = "combined-texture-sampler"
texture = "2d"
stages = ["pixel"]

[push_constant]
size = 64
stages = ["vertex"]
`

func newTestDevice(t *testing.T) *renderer.Device {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendNull
	d, err := renderer.NewDevice(renderer.DeviceOptions{
		Config:  cfg,
		Backend: null.New(null.Options{}),
	})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { d.Shutdown() })
	return d
}

// fakeSPIRV returns a module header with the given id bound, enough to pass
// the magic check.
func fakeSPIRV(bound uint32) []byte {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code[0:], spirvMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010300)
	binary.LittleEndian.PutUint32(code[12:], bound)
	return code
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func writeLitShader(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, "lit"+ManifestExtension), []byte(litManifest))
	writeFile(t, filepath.Join(dir, "lit.vert.spv"), fakeSPIRV(1))
	writeFile(t, filepath.Join(dir, "lit.frag.spv"), fakeSPIRV(1))
}

func newLibrary(t *testing.T, dir string, hotReload bool) (*ShaderLibrary, *renderer.Device) {
	t.Helper()
	d := newTestDevice(t)
	l, err := NewShaderLibrary(config.ShaderConfig{Directory: dir, HotReload: hotReload}, d)
	if err != nil {
		t.Fatalf("NewShaderLibrary() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, d
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"valid", litManifest, ""},
		{"unknown field", "colour = 1\n[stages]\nvertex = \"a.spv\"\n", "unknown fields"},
		{"no stages", "entry_point = \"main\"\n", "no stages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ParseManifest() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ParseManifest() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestManifestReflection(t *testing.T) {
	m, err := ParseManifest([]byte(litManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	r, err := m.Reflection()
	if err != nil {
		t.Fatalf("Reflection() error = %v", err)
	}
	if len(r.Bindings) != 2 || r.SetCount() != 2 {
		t.Fatalf("got %d bindings over %d sets", len(r.Bindings), r.SetCount())
	}
	albedo := r.Bindings[1]
	if albedo.ResourceType != metadata.ShaderResourceTypeCombinedTextureSampler ||
		albedo.TextureType != metadata.TextureType2D ||
		albedo.Stages != metadata.ShaderStageBit(metadata.ShaderStagePixel) {
		t.Fatalf("unexpected albedo binding %+v", albedo)
	}
	if r.Bindings[0].TextureType != metadata.TextureTypeInvalid {
		t.Fatalf("constant buffer has texture type %s", r.Bindings[0].TextureType)
	}
	if r.PushConstant.Size != 64 || !r.PushConstant.Stages.Has(metadata.ShaderStageVertex) {
		t.Fatalf("unexpected push constant %+v", r.PushConstant)
	}

	m.Bindings[0].Type = "uniform"
	if _, err := m.Reflection(); err == nil {
		t.Fatalf("unknown resource type accepted")
	}
	m.Bindings[0].Type = "constant-buffer"
	m.Bindings[0].Stages = []string{"fragment"}
	if _, err := m.Reflection(); err == nil {
		t.Fatalf("unknown stage accepted")
	}
}

func TestLoadShader(t *testing.T) {
	dir := t.TempDir()
	writeLitShader(t, dir)
	l, d := newLibrary(t, dir, false)

	h, err := l.Load("lit")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if h.IsInvalid() {
		t.Fatalf("Load() returned an invalid handle")
	}
	if again, _ := l.Load("lit"); again != h {
		t.Fatalf("second Load() = %s, want %s", again, h)
	}
	if got, ok := l.Get("lit"); !ok || got != h {
		t.Fatalf("Get() = %s, %v", got, ok)
	}

	s, ok := d.GetShader(h)
	if !ok {
		t.Fatalf("device does not know %s", h)
	}
	if s.Description.EntryPoint != "main" || s.Description.IsCompute() {
		t.Fatalf("unexpected description %+v", s.Description)
	}
	if !s.Description.HasByteCodeForStage(metadata.ShaderStagePixel) || len(s.Description.Reflection.Bindings) != 2 {
		t.Fatalf("shader stages or bindings missing")
	}
}

func TestPreloadAll(t *testing.T) {
	dir := t.TempDir()
	writeLitShader(t, dir)
	writeFile(t, filepath.Join(dir, "broken.shader.toml"), []byte("[stages]\nvertex = \"broken.spv\"\n"))
	writeFile(t, filepath.Join(dir, "broken.spv"), []byte("not spirv!!!"))
	writeFile(t, filepath.Join(dir, "fill.shader.toml"), []byte("[stages]\ncompute = \"fill.comp.spv\"\n"))
	writeFile(t, filepath.Join(dir, "fill.comp.spv"), fakeSPIRV(1))
	l, d := newLibrary(t, dir, false)

	jobs, err := systems.NewJobSystem(2, 0)
	if err != nil {
		t.Fatalf("NewJobSystem() error = %v", err)
	}
	defer jobs.Shutdown()

	n, err := l.PreloadAll(jobs)
	if err == nil || !strings.Contains(err.Error(), "magic") {
		t.Fatalf("PreloadAll() error = %v, want the broken shader reported", err)
	}
	if n != 2 {
		t.Fatalf("PreloadAll() loaded %d shaders, want 2", n)
	}
	for _, name := range []string{"lit", "fill"} {
		if _, ok := l.Get(name); !ok {
			t.Fatalf("%s was not preloaded", name)
		}
	}
	if _, ok := l.Get("broken"); ok {
		t.Fatalf("broken shader was registered")
	}
	if got := d.Stats().Shaders; got != 2 {
		t.Fatalf("device has %d shaders, want 2", got)
	}

	if n, _ := l.PreloadAll(jobs); n != 0 {
		t.Fatalf("second PreloadAll() loaded %d shaders, want 0", n)
	}
}

func TestLoadShaderErrors(t *testing.T) {
	dir := t.TempDir()
	writeLitShader(t, dir)
	writeFile(t, filepath.Join(dir, "broken.shader.toml"), []byte("[stages]\nvertex = \"broken.spv\"\n"))
	writeFile(t, filepath.Join(dir, "broken.spv"), []byte("not spirv!!!"))
	writeFile(t, filepath.Join(dir, "novertex.shader.toml"), []byte("[stages]\npixel = \"lit.frag.spv\"\n"))
	l, _ := newLibrary(t, dir, false)

	if _, err := l.Load("missing"); err == nil {
		t.Fatalf("Load() of a missing manifest succeeded")
	}
	if _, err := l.Load("broken"); err == nil || !strings.Contains(err.Error(), "magic") {
		t.Fatalf("Load() of bad SPIR-V error = %v", err)
	}
	if _, err := l.Load("novertex"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("Load() without vertex stage error = %v, want ErrValidation", err)
	}
	if len(l.Names()) != 0 {
		t.Fatalf("failed loads were registered: %v", l.Names())
	}
}

func TestReloadReplacesHandle(t *testing.T) {
	dir := t.TempDir()
	writeLitShader(t, dir)
	l, _ := newLibrary(t, dir, false)

	old, err := l.Load("lit")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	var events []ShaderReloadEvent
	l.OnReload.Register(func(ev ShaderReloadEvent) { events = append(events, ev) })

	if n := l.ApplyPendingReloads(); n != 0 {
		t.Fatalf("ApplyPendingReloads() with nothing queued = %d", n)
	}
	if err := l.Reload("lit"); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if n := l.ApplyPendingReloads(); n != 1 {
		t.Fatalf("ApplyPendingReloads() = %d, want 1", n)
	}
	if len(events) != 1 || events[0].Old != old || events[0].New == old || events[0].Name != "lit" {
		t.Fatalf("unexpected reload events %+v", events)
	}
	if got, _ := l.Get("lit"); got != events[0].New {
		t.Fatalf("Get() = %s after reload, want %s", got, events[0].New)
	}
	if err := l.Reload("unknown"); err == nil {
		t.Fatalf("Reload() of an unknown shader succeeded")
	}
}

func TestReloadFailureKeepsHandle(t *testing.T) {
	dir := t.TempDir()
	writeLitShader(t, dir)
	l, _ := newLibrary(t, dir, false)

	h, err := l.Load("lit")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	writeFile(t, filepath.Join(dir, "lit.frag.spv"), []byte{1, 2, 3})
	if err := l.Reload("lit"); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if n := l.ApplyPendingReloads(); n != 0 {
		t.Fatalf("ApplyPendingReloads() = %d, want 0", n)
	}
	if got, _ := l.Get("lit"); got != h {
		t.Fatalf("Get() = %s after failed reload, want %s", got, h)
	}
}

func TestHotReloadWatcher(t *testing.T) {
	dir := t.TempDir()
	writeLitShader(t, dir)
	l, _ := newLibrary(t, dir, true)

	old, err := l.Load("lit")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	writeFile(t, filepath.Join(dir, "lit.vert.spv"), fakeSPIRV(2))

	deadline := time.Now().Add(5 * time.Second)
	for l.ApplyPendingReloads() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no reload after the vertex source changed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got, _ := l.Get("lit"); got == old {
		t.Fatalf("handle unchanged after hot reload")
	}
}

func TestCloseDestroysShaders(t *testing.T) {
	dir := t.TempDir()
	writeLitShader(t, dir)
	d := newTestDevice(t)
	l, err := NewShaderLibrary(config.ShaderConfig{Directory: dir, HotReload: true}, d)
	if err != nil {
		t.Fatalf("NewShaderLibrary() error = %v", err)
	}
	if _, err := l.Load("lit"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); !errors.Is(err, ErrLibraryClosed) {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := l.Load("lit"); !errors.Is(err, ErrLibraryClosed) {
		t.Fatalf("Load() after Close() error = %v", err)
	}
}

func TestCompileWGSL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clear.comp.wgsl"), []byte("@compute @workgroup_size(1)\nfn main() {}\n"))
	writeFile(t, filepath.Join(dir, "clear.shader.toml"), []byte(
		"thread_group_size = [1, 1, 1]\n[stages]\ncompute = \"clear.comp.wgsl\"\n"))

	code, err := compileStage(filepath.Join(dir, "clear.comp.wgsl"))
	if err != nil {
		t.Fatalf("compileStage() error = %v", err)
	}
	if err := checkSPIRV(code); err != nil {
		t.Fatalf("naga output: %v", err)
	}

	l, d := newLibrary(t, dir, false)
	h, err := l.Load("clear")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s, _ := d.GetShader(h)
	if s == nil || !s.Description.IsCompute() {
		t.Fatalf("clear is not a compute shader")
	}

	if _, err := compileStage(filepath.Join(dir, "clear.shader.toml")); err == nil {
		t.Fatalf("compileStage() accepted a manifest")
	}
}
