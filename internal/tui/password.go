package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifimgr/wifi"
)

// PasswordModel prompts for a network password before connecting.
type PasswordModel struct {
	network       wifi.Network
	input         textinput.Model
	width, height int
}

func NewPasswordModel(network wifi.Network) *PasswordModel {
	input := textinput.New()
	input.Placeholder = "password"
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.CharLimit = 63
	input.Width = 40
	input.Focus()
	return &PasswordModel{network: network, input: input}
}

func (m *PasswordModel) Init() tea.Cmd { return textinput.Blink }

func (m *PasswordModel) Resize(width, height int) {
	m.width, m.height = width, height
}

func (m *PasswordModel) IsConsumingInput() bool { return true }

func (m *PasswordModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			if m.input.Value() == "" {
				return m, nil
			}
			return m, send(connectMsg{network: m.network, password: m.input.Value()})
		case "esc":
			return m, send(popViewMsg{})
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *PasswordModel) View() string {
	title := lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true).
		Render(fmt.Sprintf("Password for '%s' (%s)", m.network.SSID, m.network.Security))
	help := lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render("enter connect • esc cancel")
	dialog := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(CurrentTheme.Primary).
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", m.input.View(), "", help))
	if m.width == 0 || m.height == 0 {
		return dialog
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}
