package engine

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/anima-gal/engine/config"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
)

func nullConfig(t *testing.T) *config.DeviceConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendNull
	cfg.FenceTimeoutMS = 20
	cfg.Shaders.Directory = t.TempDir()
	return cfg
}

func TestEngineRunsFrames(t *testing.T) {
	var initialized bool
	var rendered, withBackBuffer int
	var resized [2]uint32
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Name: "engine-test", MaxFrames: 4},
		FnInitialize: func(e *Engine) error {
			initialized = e.Device() != nil && e.Shaders() != nil
			return nil
		},
		FnOnResize: func(width, height uint32) error {
			resized = [2]uint32{width, height}
			return nil
		},
		FnRender: func(d *renderer.Device, backBuffer renderer.TextureHandle, delta float64) error {
			rendered++
			if !backBuffer.IsInvalid() {
				withBackBuffer++
			}
			return nil
		},
	}
	e, err := New(g, nullConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !initialized {
		t.Fatalf("FnInitialize did not see the device, shader library and job system")
	}
	if w, h := e.GetFramebufferSize(); resized != [2]uint32{w, h} {
		t.Fatalf("FnOnResize got %v, want %dx%d", resized, w, h)
	}
	if e.SwapChain().IsInvalid() {
		t.Fatalf("windowed null engine has no swap chain")
	}

	if err := e.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rendered != 4 || withBackBuffer != 4 {
		t.Fatalf("rendered %d frames, %d with a back buffer, want 4", rendered, withBackBuffer)
	}
	s := e.Stats()
	if s.Frame != 4 || s.Device.SwapChains != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestEngineHeadless(t *testing.T) {
	var rendered int
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Headless: true, MaxFrames: 2},
		FnRender: func(d *renderer.Device, backBuffer renderer.TextureHandle, delta float64) error {
			if !backBuffer.IsInvalid() {
				t.Errorf("headless frame has back buffer %s", backBuffer)
			}
			rendered++
			return nil
		},
	}
	e, err := New(g, nullConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !e.SwapChain().IsInvalid() {
		t.Fatalf("headless engine created a swap chain")
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rendered != 2 {
		t.Fatalf("rendered %d frames, want 2", rendered)
	}
	if g.ApplicationConfig.Name != config.Default().ApplicationName {
		t.Fatalf("application name = %q, want the config default", g.ApplicationConfig.Name)
	}
}

func TestEngineRenderErrorStopsLoop(t *testing.T) {
	boom := errors.New("boom")
	var rendered int
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Headless: true, MaxFrames: 10},
		FnRender: func(d *renderer.Device, backBuffer renderer.TextureHandle, delta float64) error {
			rendered++
			return boom
		},
	}
	e, err := New(g, nullConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := e.Run(); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if rendered != 1 {
		t.Fatalf("rendered %d frames after the error, want 1", rendered)
	}
}

func TestEngineLifecycleErrors(t *testing.T) {
	if _, err := New(&Game{}, nil); err == nil {
		t.Fatalf("New() without an application config succeeded")
	}

	cfg := nullConfig(t)
	cfg.Backend = "metal"
	if _, err := New(&Game{ApplicationConfig: &ApplicationConfig{}}, cfg); err == nil {
		t.Fatalf("New() with an unknown backend succeeded")
	}

	e, err := New(&Game{ApplicationConfig: &ApplicationConfig{Headless: true}}, nullConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Run(); !errors.Is(err, core.ErrUnbalancedBracket) {
		t.Fatalf("Run() before Initialize() error = %v", err)
	}
}
