package tui

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogViewModel shows the most recent log records.
type LogViewModel struct {
	records       func() []slog.Record
	width, height int
}

// NewLogViewModel creates a LogViewModel reading from records.
func NewLogViewModel(records func() []slog.Record) *LogViewModel {
	return &LogViewModel{records: records}
}

func (m *LogViewModel) Init() tea.Cmd { return nil }

func (m *LogViewModel) Resize(width, height int) {
	m.width, m.height = width, height
}

func (m *LogViewModel) IsConsumingInput() bool { return false }

func (m *LogViewModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "l":
			return m, send(popViewMsg{})
		}
	}
	return m, nil
}

func (m *LogViewModel) View() string {
	var s strings.Builder
	s.WriteString("Latest logs (press 'q' to return):\n\n")

	var logs []slog.Record
	if m.records != nil {
		logs = m.records()
	}
	// Keep the newest lines on screen.
	if limit := m.height - 3; limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	for _, r := range logs {
		s.WriteString(formatRecord(r))
		s.WriteString("\n")
	}
	return s.String()
}

func formatRecord(r slog.Record) string {
	var style lipgloss.Style
	switch {
	case r.Level >= slog.LevelError:
		style = lipgloss.NewStyle().Foreground(CurrentTheme.Error)
	case r.Level >= slog.LevelWarn:
		style = lipgloss.NewStyle().Foreground(CurrentTheme.Warning)
	case r.Level < slog.LevelInfo:
		style = lipgloss.NewStyle().Foreground(CurrentTheme.Subtle)
	default:
		style = lipgloss.NewStyle().Foreground(CurrentTheme.Normal)
	}
	var line strings.Builder
	fmt.Fprintf(&line, "%s [%s] %s", r.Time.Format("15:04:05"), r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&line, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	return style.Render(line.String())
}
