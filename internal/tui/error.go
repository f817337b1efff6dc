package tui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifimgr/wifi"
)

// ErrorModel shows an error until any key is pressed.
type ErrorModel struct {
	err           error
	width, height int
}

func NewErrorModel(err error) *ErrorModel {
	return &ErrorModel{err: err}
}

func (m *ErrorModel) Init() tea.Cmd { return nil }

func (m *ErrorModel) Resize(width, height int) {
	m.width, m.height = width, height
}

func (m *ErrorModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	switch msg.(type) {
	case tea.KeyMsg:
		// Any key press dismisses the error
		return m, send(popViewMsg{})
	}
	return m, nil
}

func (m *ErrorModel) View() string {
	errorViewStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder(), true).
		BorderForeground(CurrentTheme.Error).
		Padding(1, 2)
	body := fmt.Sprintf("Error: %s", m.err)
	if hint := errorHint(m.err); hint != "" {
		body += "\n\n" + lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render(hint)
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(errorViewStyle.Render(body))
}

// IsConsumingInput returns whether the model is focused on a text input.
func (m *ErrorModel) IsConsumingInput() bool {
	return false
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, wifi.ErrPermissionDenied):
		return "Try running with elevated privileges."
	case errors.Is(err, wifi.ErrNotAvailable):
		return "No WiFi adapter was found. Try --simulator=always."
	case errors.Is(err, wifi.ErrAuthenticationFailed):
		return "Check the password and try again."
	case errors.Is(err, wifi.ErrConnectionTimeout):
		return "The network did not respond in time."
	}
	return ""
}
