package testbed

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spaghettifunk/anima-gal/engine"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
)

type fakeSource struct {
	stats engine.Stats
	polls int
}

func (f *fakeSource) Stats() engine.Stats {
	f.polls++
	return f.stats
}

func TestStatsModelRefreshes(t *testing.T) {
	src := &fakeSource{stats: engine.Stats{Frame: 42, Reloads: 3, Device: renderer.DeviceStats{Buffers: 5, BufferMemory: 2048}}}
	m := NewStatsModel(src, nil)

	m, cmd := m.Update(statsTickMsg{})
	if cmd == nil {
		t.Fatalf("tick did not schedule the next refresh")
	}
	if src.polls != 1 {
		t.Fatalf("source polled %d times, want 1", src.polls)
	}
	view := m.View()
	for _, want := range []string{"42", "5 (2.0 KiB)", "3 reloads"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view is missing %q:\n%s", want, view)
		}
	}
}

func TestStatsModelDone(t *testing.T) {
	src := &fakeSource{}
	m := NewStatsModel(src, nil)

	m, cmd := m.Update(StatsDoneMsg{Err: errors.New("device lost")})
	if cmd == nil {
		t.Fatalf("done message did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("done message returned %T, want tea.QuitMsg", cmd())
	}
	if !strings.Contains(m.View(), "device lost") {
		t.Fatalf("view does not show the loop error")
	}
	if _, cmd := m.Update(statsTickMsg{}); cmd != nil {
		t.Fatalf("tick after done scheduled another refresh")
	}
}

func TestStatsModelQuit(t *testing.T) {
	var quit bool
	m := NewStatsModel(&fakeSource{}, func() { quit = true })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !quit || cmd == nil {
		t.Fatalf("q did not stop the engine")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{3 * 1024 * 1024, "3.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Fatalf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
