package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shazow/wifimgr/netmgr"
	"github.com/shazow/wifimgr/wifi"
)

// Component is the interface for a TUI component.
type Component interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Component, tea.Cmd)
	View() string
	Resize(width, height int)
	IsConsumingInput() bool
}

// Engine is the subset of *netmgr.Manager the monitor drives.
type Engine interface {
	StartScan(ctx context.Context) (string, error)
	Connect(ctx context.Context, network wifi.Network, opts netmgr.ConnectOptions) error
	Disconnect(ctx context.Context) error
	Forget(ctx context.Context, bssid string) error
	State() netmgr.Snapshot
	Subscribe() (<-chan netmgr.Event, func())
}

// Bubbletea messages are used to communicate between the main loop and commands
type (
	// From the engine
	eventMsg          netmgr.Event
	eventsClosedMsg   struct{}
	stateMsg          netmgr.Snapshot
	errorMsg          struct{ err error }
	passwordNeeded    struct{ network wifi.Network }
	actionFinishedMsg struct{ status string }

	// To the main model
	popViewMsg    struct{}
	showLogsMsg   struct{}
	scanMsg       struct{}
	disconnectMsg struct{}
	selectMsg     struct{ network wifi.Network }
	connectMsg    struct {
		network  wifi.Network
		password string
	}
	confirmForgetMsg struct{ network wifi.Network }
	forgetMsg        struct{ network wifi.Network }
)

// --- Commands that interact with the engine ---

func waitForEvent(ch <-chan netmgr.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

func waitForLog(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		return <-ch
	}
}

func refreshState(e Engine) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(e.State())
	}
}

func startScan(ctx context.Context, e Engine) tea.Cmd {
	return func() tea.Msg {
		if _, err := e.StartScan(ctx); err != nil {
			if errors.Is(err, wifi.ErrScanInProgress) {
				slog.Debug("scan already running")
				return nil
			}
			return errorMsg{fmt.Errorf("failed to start scan: %w", err)}
		}
		return nil
	}
}

func connect(ctx context.Context, e Engine, network wifi.Network, password string) tea.Cmd {
	return func() tea.Msg {
		err := e.Connect(ctx, network, netmgr.ConnectOptions{Password: password})
		switch {
		case errors.Is(err, wifi.ErrPasswordRequired):
			return passwordNeeded{network: network}
		case err != nil:
			return errorMsg{err}
		}
		return actionFinishedMsg{status: fmt.Sprintf("Connected to '%s'", network.SSID)}
	}
}

func disconnect(ctx context.Context, e Engine) tea.Cmd {
	return func() tea.Msg {
		if err := e.Disconnect(ctx); err != nil {
			return errorMsg{fmt.Errorf("failed to disconnect: %w", err)}
		}
		return actionFinishedMsg{status: "Disconnected"}
	}
}

func forget(ctx context.Context, e Engine, network wifi.Network) tea.Cmd {
	return func() tea.Msg {
		if err := e.Forget(ctx, network.BSSID); err != nil {
			return errorMsg{fmt.Errorf("failed to forget network: %w", err)}
		}
		return actionFinishedMsg{status: fmt.Sprintf("Forgot '%s'", network.SSID)}
	}
}

func send(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
