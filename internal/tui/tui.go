package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	wifilog "github.com/shazow/wifimgr/internal/log"
	"github.com/shazow/wifimgr/netmgr"
	"github.com/shazow/wifimgr/wifi"
)

// recentEvents is how many engine events the events pane keeps.
const recentEvents = 5

// Options configure the monitor.
type Options struct {
	// Logs receives log.LogMsg values to refresh the log view.
	Logs <-chan tea.Msg
	// Records returns the buffered log records. Defaults to the default
	// log handler's records.
	Records func() []slog.Record
	// ScanInterval is the auto scan period.
	ScanInterval time.Duration
}

// Model is the monitor's root bubbletea model.
type Model struct {
	ctx         context.Context
	engine      Engine
	events      <-chan netmgr.Event
	unsubscribe func()
	logs        <-chan tea.Msg
	records     func() []slog.Record

	stack    *ComponentStack
	list     *ListModel
	scanner  *ScanSchedule
	spinner  spinner.Model
	progress progress.Model

	snapshot      netmgr.Snapshot
	recent        []string
	loading       bool
	statusMessage string
	lastError     string
	closed        bool
	width, height int
}

// NewModel creates the monitor for engine and subscribes to its events.
func NewModel(ctx context.Context, engine Engine, opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(CurrentTheme.Primary)

	p := progress.New(progress.WithGradient(CurrentTheme.SignalLow.hex(), CurrentTheme.SignalHigh.hex()))
	p.ShowPercentage = true

	records := opts.Records
	if records == nil {
		records = wifilog.Logs
	}

	scanner := NewScanSchedule(opts.ScanInterval, func() tea.Msg { return scanMsg{} })
	list := NewListModel(scanner)
	events, unsubscribe := engine.Subscribe()

	return &Model{
		ctx:           ctx,
		engine:        engine,
		events:        events,
		unsubscribe:   unsubscribe,
		logs:          opts.Logs,
		records:       records,
		stack:         NewComponentStack(list),
		list:          list,
		scanner:       scanner,
		spinner:       s,
		progress:      p,
		loading:       true,
		statusMessage: "Loading networks...",
	}
}

// Close drops the event subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init is the first command that is run when the program starts
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.stack.Top().Init(),
		waitForEvent(m.events),
		waitForLog(m.logs),
		refreshState(m.engine),
	)
}

// Update handles all incoming messages and updates the model accordingly
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, msg.Width-4)
		m.layout()
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m.handleEvent(netmgr.Event(msg))
		return m, tea.Batch(refreshState(m.engine), waitForEvent(m.events))
	case eventsClosedMsg:
		m.closed = true
		m.loading = false
		m.statusMessage = "Engine stopped"
		return m, nil
	case stateMsg:
		m.snapshot = netmgr.Snapshot(msg)
		if m.statusMessage == "Loading networks..." {
			m.loading = false
			m.statusMessage = ""
		}
		return m, m.list.SetNetworks(networkItems(m.snapshot))
	case wifilog.LogMsg:
		return m, waitForLog(m.logs)
	case errorMsg:
		m.loading = false
		m.statusMessage = ""
		m.lastError = msg.err.Error()
		return m, m.stack.Push(NewErrorModel(msg.err))
	case passwordNeeded:
		m.loading = false
		m.statusMessage = ""
		return m, m.stack.Push(NewPasswordModel(msg.network))
	case actionFinishedMsg:
		m.loading = false
		m.statusMessage = msg.status
		return m, refreshState(m.engine)
	case popViewMsg:
		m.stack.Pop()
		return m, nil
	case showLogsMsg:
		return m, m.stack.Push(NewLogViewModel(m.records))
	case tickMsg:
		return m, m.scanner.Update(msg)
	case scanMsg:
		m.loading = true
		m.statusMessage = "Scanning for networks..."
		return m, startScan(m.ctx, m.engine)
	case selectMsg:
		if s := m.snapshot.Session; s != nil && m.snapshot.Status == wifi.StatusConnected && wifi.SameBSSID(s.Network.BSSID, msg.network.BSSID) {
			m.statusMessage = fmt.Sprintf("Already connected to '%s'", msg.network.SSID)
			return m, nil
		}
		m.loading = true
		m.statusMessage = fmt.Sprintf("Connecting to '%s'...", msg.network.SSID)
		return m, connect(m.ctx, m.engine, msg.network, "")
	case connectMsg:
		// Sent by the password dialog, which is on top.
		m.stack.Pop()
		m.loading = true
		m.statusMessage = fmt.Sprintf("Connecting to '%s'...", msg.network.SSID)
		return m, connect(m.ctx, m.engine, msg.network, msg.password)
	case disconnectMsg:
		m.loading = true
		m.statusMessage = "Disconnecting..."
		return m, disconnect(m.ctx, m.engine)
	case confirmForgetMsg:
		return m, m.stack.Push(NewForgetModel(msg.network))
	case forgetMsg:
		// Sent by the confirmation dialog, which is on top.
		m.stack.Pop()
		m.loading = true
		m.statusMessage = fmt.Sprintf("Forgetting '%s'...", msg.network.SSID)
		return m, forget(m.ctx, m.engine, msg.network)
	}

	// Delegate to the component on the stack
	return m, m.stack.Update(msg)
}

// handleEvent records e in the events pane and updates the status line.
func (m *Model) handleEvent(e netmgr.Event) {
	m.recent = append(m.recent, formatEvent(e))
	if len(m.recent) > recentEvents {
		m.recent = m.recent[len(m.recent)-recentEvents:]
	}

	ssid := ""
	if e.Network != nil {
		ssid = e.Network.SSID
	}
	switch e.Type {
	case netmgr.EventScanStarted:
		m.loading = true
		m.statusMessage = "Scanning for networks..."
	case netmgr.EventScanProgress:
		m.snapshot.Scan.Progress = e.Progress
	case netmgr.EventScanCompleted:
		m.loading = false
		m.statusMessage = fmt.Sprintf("Found %d networks", len(e.Networks))
	case netmgr.EventScanError:
		m.loading = false
		m.statusMessage = ""
		m.lastError = fmt.Sprintf("Scan failed: %s", errString(e.Err))
	case netmgr.EventAuthenticationStarted:
		m.loading = true
		m.statusMessage = fmt.Sprintf("Authenticating with '%s'...", ssid)
	case netmgr.EventConnectionSuccessful, netmgr.EventRetrySuccessful:
		m.loading = false
		m.lastError = ""
		m.statusMessage = fmt.Sprintf("Connected to '%s'", ssid)
	case netmgr.EventConnectionError, netmgr.EventRetryFailed:
		m.lastError = fmt.Sprintf("Connection to '%s' failed: %s", ssid, errString(e.Err))
	case netmgr.EventRetryScheduled:
		m.loading = true
		m.statusMessage = fmt.Sprintf("Retrying '%s' in %s (attempt %d)", ssid, e.Delay.Round(time.Millisecond), e.RetryCount)
	case netmgr.EventMaxRetriesReached:
		m.loading = false
		m.statusMessage = ""
		m.lastError = fmt.Sprintf("Gave up on '%s' after %d retries", ssid, e.RetryCount)
	case netmgr.EventDisconnected:
		m.loading = false
		m.statusMessage = "Disconnected"
	case netmgr.EventWeakSignal:
		m.statusMessage = fmt.Sprintf("Weak signal on '%s' (%d%%)", ssid, e.SignalStrength)
	case netmgr.EventRedirect:
		m.statusMessage = fmt.Sprintf("Open %s to finish signing in", e.URL)
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// formatEvent renders e as a single line for the events pane.
func formatEvent(e netmgr.Event) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Format("15:04:05 "))
	}
	b.WriteString(string(e.Type))
	if e.Network != nil {
		fmt.Fprintf(&b, " ssid=%q", e.Network.SSID)
	}
	switch e.Type {
	case netmgr.EventScanProgress:
		fmt.Fprintf(&b, " progress=%d", e.Progress)
	case netmgr.EventScanCompleted:
		fmt.Fprintf(&b, " count=%d", len(e.Networks))
	case netmgr.EventRetryScheduled:
		fmt.Fprintf(&b, " retry=%d delay=%s", e.RetryCount, e.Delay)
	case netmgr.EventRetryStarted, netmgr.EventRetryFailed, netmgr.EventMaxRetriesReached, netmgr.EventRetrySuccessful:
		fmt.Fprintf(&b, " retry=%d", e.RetryCount)
	case netmgr.EventConnectionSuccessful:
		if e.IPAddress != "" {
			fmt.Fprintf(&b, " ip=%s", e.IPAddress)
		}
	case netmgr.EventSignalStrengthUpdate, netmgr.EventWeakSignal:
		fmt.Fprintf(&b, " signal=%d", e.SignalStrength)
	case netmgr.EventRedirectScheduled, netmgr.EventRedirect:
		fmt.Fprintf(&b, " url=%s", e.URL)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " error=%q", e.Err)
	}
	return b.String()
}

// layout sizes the component stack to what is left after the fixed panes.
func (m *Model) layout() {
	// header, progress, blank, events title, events, blank, status
	reserved := 1 + 1 + 1 + 1 + recentEvents + 1 + 1
	m.stack.Resize(m.width, max(0, m.height-reserved))
}

func (m *Model) header() string {
	title := lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true).Render("wifimgr")
	status := m.snapshot.Status
	if status == "" {
		status = wifi.StatusDisconnected
	}
	line := title + " " + lipgloss.NewStyle().Foreground(CurrentTheme.StatusColor(status)).Render(string(status))
	if s := m.snapshot.Session; s != nil {
		line += " " + lipgloss.NewStyle().Foreground(CurrentTheme.Normal).Render(s.Network.SSID)
		if status == wifi.StatusConnected && s.SignalStrength > 0 {
			line += " " + lipgloss.NewStyle().Foreground(CurrentTheme.SignalColor(s.SignalStrength)).Render(fmt.Sprintf("%d%%", s.SignalStrength))
		}
		if s.IPAddress != "" {
			line += " " + lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render(s.IPAddress)
		}
		if s.Simulated {
			line += " " + lipgloss.NewStyle().Foreground(CurrentTheme.Warning).Render("(simulated)")
		}
	}
	if m.scanner.Enabled() {
		line += " " + lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render("[auto scan]")
	}
	return line
}

// View renders the UI based on the current model state
func (m *Model) View() string {
	var s strings.Builder
	s.WriteString(m.header())
	s.WriteString("\n")
	if m.snapshot.Scan.IsScanning {
		s.WriteString(m.progress.ViewAs(float64(m.snapshot.Scan.Progress) / 100))
	}
	s.WriteString("\n")

	s.WriteString(m.stack.View())

	subtle := lipgloss.NewStyle().Foreground(CurrentTheme.Subtle)
	s.WriteString("\n\n")
	s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render("Events"))
	for _, line := range m.recent {
		s.WriteString("\n")
		s.WriteString(subtle.Render(line))
	}

	if m.loading {
		s.WriteString(fmt.Sprintf("\n\n%s %s", m.spinner.View(), lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render(m.statusMessage)))
	} else if m.statusMessage != "" {
		s.WriteString(fmt.Sprintf("\n\n%s", lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render(m.statusMessage)))
	}
	if m.lastError != "" {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Error).Render(m.lastError))
	}

	return s.String()
}

// Run starts the interactive monitor and blocks until it exits.
func Run(ctx context.Context, engine Engine, opts Options) error {
	m := NewModel(ctx, engine, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running monitor: %w", err)
	}
	return nil
}
