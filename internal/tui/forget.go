package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifimgr/wifi"
)

// ForgetModel asks for confirmation before forgetting a saved network.
type ForgetModel struct {
	network       wifi.Network
	width, height int
}

func NewForgetModel(network wifi.Network) *ForgetModel {
	return &ForgetModel{network: network}
}

func (m *ForgetModel) Init() tea.Cmd { return nil }

func (m *ForgetModel) Resize(width, height int) {
	m.width, m.height = width, height
}

func (m *ForgetModel) IsConsumingInput() bool { return false }

func (m *ForgetModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "y", "Y", "enter":
			return m, send(forgetMsg{network: m.network})
		case "n", "N", "q", "esc":
			return m, send(popViewMsg{})
		}
	}
	return m, nil
}

func (m *ForgetModel) View() string {
	question := fmt.Sprintf("Forget network '%s'? (Y/n)", m.network.SSID)
	questionStyle := lipgloss.NewStyle().Width(50).Align(lipgloss.Center).Render(question)
	dialog := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2).BorderForeground(CurrentTheme.Error).Render(questionStyle)
	if m.width == 0 || m.height == 0 {
		return dialog
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}
