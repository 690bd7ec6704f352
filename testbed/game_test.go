package testbed

import (
	"testing"

	"github.com/spaghettifunk/anima-gal/engine"
	"github.com/spaghettifunk/anima-gal/engine/config"
)

func TestTestbedOnNullBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendNull
	cfg.FenceTimeoutMS = 20
	cfg.Shaders.Directory = "../assets/shaders"

	for _, headless := range []bool{false, true} {
		tb := NewTestGame(&engine.ApplicationConfig{Name: "testbed", Headless: headless, MaxFrames: 3})
		e, err := engine.New(tb.Game, cfg)
		if err != nil {
			t.Fatalf("engine.New() error = %v", err)
		}
		if err := e.Initialize(); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if err := e.Run(); err != nil {
			t.Fatalf("Run(headless=%v) error = %v", headless, err)
		}
		s := e.Stats()
		if s.Frame != 3 || s.Device.Buffers < 3 {
			t.Fatalf("unexpected stats %+v", s)
		}
		if err := e.Shutdown(); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	}
}
