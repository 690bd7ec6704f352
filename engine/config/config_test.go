package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
debug = true
backend = "null"
frames_in_flight = 3
fence_timeout_ms = 250

[swapchain]
width = 800
height = 600
`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug || cfg.Backend != BackendNull || cfg.FramesInFlight != 3 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.FenceTimeout() != 250*time.Millisecond {
		t.Fatalf("unexpected fence timeout %s", cfg.FenceTimeout())
	}
	if cfg.Swapchain.Width != 800 || cfg.Swapchain.Height != 600 || !cfg.Swapchain.VSync {
		t.Fatalf("unexpected swapchain config %+v", cfg.Swapchain)
	}
	// untouched values keep their defaults
	if cfg.Shaders.Directory != "assets/shaders" || cfg.TableCapacity != 64 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown field":    `framez_in_flight = 2`,
		"frames in flight": `frames_in_flight = 0`,
		"backend":          `backend = "metal"`,
		"fence timeout":    `fence_timeout_ms = -1`,
		"syntax":           `debug = `,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.ApplicationName = "roundtrip"
	cfg.FramesInFlight = 4
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "device.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ApplicationName != "roundtrip" || loaded.FramesInFlight != 4 {
		t.Fatalf("unexpected config %+v", loaded)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
