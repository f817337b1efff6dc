package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifimgr/netmgr"
	"github.com/shazow/wifimgr/wifi"
)

const ssidColumnWidth = 30

// networkItem is a single row in the network list.
type networkItem struct {
	wifi.Network
	Active  bool
	Visible bool
}

func (i networkItem) Title() string { return i.SSID }
func (i networkItem) Description() string {
	if i.Visible && i.SignalStrength > 0 {
		return fmt.Sprintf("%d%%", i.SignalStrength)
	}
	if !i.Visible {
		return "not in range"
	}
	return ""
}
func (i networkItem) FilterValue() string { return i.SSID + " " + i.BSSID }

// networkItems lists visible networks in scan order followed by saved
// networks that were not seen.
func networkItems(s netmgr.Snapshot) []list.Item {
	var activeBSSID string
	if s.Session != nil && s.Status == wifi.StatusConnected {
		activeBSSID = s.Session.Network.BSSID
	}

	items := make([]list.Item, 0, len(s.Available)+len(s.Saved))
	seen := map[string]bool{}
	for _, n := range s.Available {
		seen[n.BSSID] = true
		items = append(items, networkItem{Network: n, Visible: true, Active: wifi.SameBSSID(n.BSSID, activeBSSID)})
	}
	for _, n := range s.Saved {
		if seen[n.BSSID] {
			continue
		}
		items = append(items, networkItem{Network: n, Active: wifi.SameBSSID(n.BSSID, activeBSSID)})
	}
	return items
}

// itemDelegate is our custom list delegate
type itemDelegate struct {
	list.DefaultDelegate
}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(networkItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, listItem)
		return
	}

	var icon string
	switch {
	case i.Saved:
		icon = CurrentTheme.NetworkSavedIcon
	case i.Security == wifi.SecurityOpen:
		icon = CurrentTheme.NetworkOpenIcon
	case i.Security == wifi.SecurityUnknown:
		icon = CurrentTheme.NetworkUnknownIcon
	default:
		icon = CurrentTheme.NetworkSecureIcon
	}
	title := icon + i.Title()

	// Truncate title if it's too long
	if lipgloss.Width(title) > ssidColumnWidth {
		runes := []rune(title)
		for lipgloss.Width(string(runes)) > ssidColumnWidth-1 {
			runes = runes[:len(runes)-1]
		}
		title = string(runes) + "…"
	}
	padding := strings.Repeat(" ", max(0, ssidColumnWidth-lipgloss.Width(title)))

	var titleStyle lipgloss.Style
	switch {
	case !i.Visible:
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Disabled)
	case i.Active:
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Success).Bold(true)
	case i.Saved:
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Saved)
	default:
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Normal)
	}
	title = titleStyle.Render(title)

	security := lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render(fmt.Sprintf("%-16s", i.Security))
	var desc string
	if i.Visible && i.SignalStrength > 0 {
		desc = lipgloss.NewStyle().Foreground(CurrentTheme.SignalColor(i.SignalStrength)).Render(fmt.Sprintf("%4s", i.Description()))
	} else {
		desc = lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render(i.Description())
	}
	if i.Active {
		desc += " (Connected)"
	}

	var line string
	if index == m.Index() {
		line = lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render("▶ ") + title + padding + " " + security + " " + desc
	} else {
		line = "  " + title + padding + " " + security + " " + desc
	}
	fmt.Fprint(w, line)
}

// ListModel shows the known networks and turns key presses into actions.
type ListModel struct {
	list    list.Model
	scanner *ScanSchedule
}

func NewListModel(scanner *ScanSchedule) *ListModel {
	l := list.New([]list.Item{}, itemDelegate{}, 0, 0)
	l.Title = fmt.Sprintf("%-*s %-16s %s", ssidColumnWidth-1, CurrentTheme.TitleIcon+"WiFi Network", "Security", "Signal")
	l.SetShowStatusBar(false)
	l.SetShowHelp(true)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{
			key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan")),
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
			key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disconnect")),
			key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "forget")),
			key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto scan")),
		}
	}
	// Make 'q' the only quit key
	l.KeyMap.Quit = key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit"))
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true)
	l.Styles.FilterPrompt = lipgloss.NewStyle().Foreground(CurrentTheme.Normal)
	l.Styles.FilterCursor = lipgloss.NewStyle().Foreground(CurrentTheme.Primary)

	return &ListModel{list: l, scanner: scanner}
}

func (m *ListModel) Init() tea.Cmd { return nil }

func (m *ListModel) Resize(width, height int) {
	m.list.SetSize(width, height)
}

// IsConsumingInput returns whether the list filter has focus.
func (m *ListModel) IsConsumingInput() bool {
	return m.list.FilterState() == list.Filtering
}

// SetNetworks replaces the rows, keeping the selection on the same radio.
func (m *ListModel) SetNetworks(items []list.Item) tea.Cmd {
	var selected string
	if item, ok := m.list.SelectedItem().(networkItem); ok {
		selected = item.BSSID
	}
	cmd := m.list.SetItems(items)
	for idx, item := range items {
		if item.(networkItem).BSSID == selected {
			m.list.Select(idx)
			break
		}
	}
	return cmd
}

// Selected returns the highlighted network.
func (m *ListModel) Selected() (networkItem, bool) {
	item, ok := m.list.SelectedItem().(networkItem)
	return item, ok
}

func (m *ListModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && !m.IsConsumingInput() {
		switch keyMsg.String() {
		case "q":
			return m, tea.Quit
		case "s":
			return m, send(scanMsg{})
		case "d":
			return m, send(disconnectMsg{})
		case "l":
			return m, send(showLogsMsg{})
		case "a":
			_, cmd := m.scanner.Toggle()
			return m, cmd
		case "enter":
			if item, ok := m.Selected(); ok {
				return m, send(selectMsg{network: item.Network})
			}
			return m, nil
		case "f":
			if item, ok := m.Selected(); ok && item.Saved {
				return m, send(confirmForgetMsg{network: item.Network})
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ListModel) View() string {
	return m.list.View()
}
