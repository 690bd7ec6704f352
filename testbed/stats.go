package testbed

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spaghettifunk/anima-gal/engine"
)

const statsRefresh = 250 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(22)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// StatsSource is what the view polls. *engine.Engine satisfies it.
type StatsSource interface {
	Stats() engine.Stats
}

type statsTickMsg time.Time

// StatsDoneMsg ends the view. Send it with the error the loop returned.
type StatsDoneMsg struct {
	Err error
}

type statsModel struct {
	source StatsSource
	stats  engine.Stats
	done   bool
	err    error
	onQuit func()
}

// NewStatsModel returns a view that refreshes the engine stats until it
// receives a StatsDoneMsg. onQuit runs when the user quits.
func NewStatsModel(source StatsSource, onQuit func()) tea.Model {
	return &statsModel{source: source, onQuit: onQuit}
}

func tick() tea.Cmd {
	return tea.Tick(statsRefresh, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func (m *statsModel) Init() tea.Cmd {
	return tick()
}

func (m *statsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
	case statsTickMsg:
		m.stats = m.source.Stats()
		if m.done {
			return m, nil
		}
		return m, tick()
	case StatsDoneMsg:
		m.stats = m.source.Stats()
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *statsModel) View() string {
	s := m.stats
	d := s.Device

	var b strings.Builder
	b.WriteString(titleStyle.Render("anima-gal testbed"))
	b.WriteString("\n\n")

	row := func(label, format string, args ...any) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(fmt.Sprintf(format, args...)))
		b.WriteString("\n")
	}
	row("frame", "%d", s.Frame)
	row("fps", "%.1f (%.2f ms)", d.FPS, d.FrameTime)
	row("submissions", "%d", d.Frame.Submissions)
	row("buffers", "%d (%s)", d.Buffers, formatBytes(d.BufferMemory))
	row("textures", "%d (%s)", d.Textures, formatBytes(d.TextureMemory))
	row("views", "%d", d.Views)
	row("shaders", "%d, %d reloads", d.Shaders, s.Reloads)
	row("pipelines", "%d, hit rate %.0f%%", d.Cache.Pipelines, d.Cache.HitRate()*100)
	row("barriers", "%d in %d flushes", d.Barriers, d.BarrierFlushes)
	row("dead objects", "%d pending, %d destroyed", d.PendingDeadObjects, d.DestroyedObjects)
	row("pending deletions", "%d", d.Frame.PendingDeletions)

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q: quit"))
	b.WriteString("\n")
	return b.String()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
