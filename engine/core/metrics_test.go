package core

import (
	"strings"
	"testing"
)

func TestFrameMetrics(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	if got := m.FrameTime(); got < 15.9 || got > 16.1 {
		t.Fatalf("expected ~16ms average, got %f", got)
	}

	for i := 0; i < 40; i++ {
		m.Update(0.016)
	}
	if m.FPS() == 0 {
		t.Fatalf("expected fps to be computed after more than one second of frames")
	}
}

func TestIdentifierNew(t *testing.T) {
	a := IdentifierNew("swapchain")
	b := IdentifierNew("swapchain")
	if a == b {
		t.Fatalf("identifiers must be unique")
	}
	if !strings.HasPrefix(a, "swapchain-") {
		t.Fatalf("missing prefix in %q", a)
	}
}
