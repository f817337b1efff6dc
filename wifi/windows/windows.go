// Package windows implements wifi.Adapter on top of netsh.
package windows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shazow/wifimgr/wifi"
)

// Adapter implements the wifi.Adapter interface for Windows.
type Adapter struct {
	Runner wifi.Runner
	Logger *slog.Logger
}

// New creates a new windows.Adapter.
func New(runner wifi.Runner, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{Runner: runner, Logger: logger.With("adapter", "netsh")}
}

func (a *Adapter) Name() string { return "netsh" }

func (a *Adapter) netsh(ctx context.Context, args ...string) (string, error) {
	out, err := a.Runner.Run(ctx, "netsh", append([]string{"wlan"}, args...)...)
	return string(out), err
}

// IsAvailable checks that netsh lists at least one wireless interface.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	out, err := a.netsh(ctx, "show", "interfaces")
	if err != nil {
		a.Logger.Debug("netsh unavailable", "error", err)
		return false
	}
	return hasInterface(out)
}

func (a *Adapter) AvailableNetworks(ctx context.Context) ([]wifi.Network, error) {
	out, err := a.netsh(ctx, "show", "networks", "mode=bssid")
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	networks, skipped := parseNetworks(out)
	if skipped > 0 {
		a.Logger.Debug("skipped malformed network entries", "count", skipped)
	}
	return networks, nil
}

func (a *Adapter) CurrentNetwork(ctx context.Context) (*wifi.Network, error) {
	out, err := a.netsh(ctx, "show", "interfaces")
	if err != nil {
		return nil, fmt.Errorf("failed to show interfaces: %w", err)
	}
	return parseInterfaces(out), nil
}

func (a *Adapter) SavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	out, err := a.netsh(ctx, "show", "profiles")
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return parseProfiles(out), nil
}

func (a *Adapter) StartScan(ctx context.Context) error {
	out, err := a.netsh(ctx, "scan")
	if err != nil {
		return fmt.Errorf("failed to trigger scan: %w", err)
	}
	return wifi.CheckPermission(out)
}

// Connect joins a network through its stored profile. netsh cannot join a
// network from a bare password: that needs a profile XML to be added first,
// so a password for an unknown SSID yields wifi.ErrProfileRequired.
func (a *Adapter) Connect(ctx context.Context, ssid string, password string) error {
	if password != "" {
		saved, err := a.SavedNetworks(ctx)
		if err != nil {
			return err
		}
		found := false
		for _, n := range saved {
			if n.SSID == ssid {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("cannot join %q without a profile: %w", ssid, wifi.ErrProfileRequired)
		}
	}

	out, err := a.netsh(ctx, "connect", "name="+ssid)
	if err != nil {
		return fmt.Errorf("failed to connect to %q: %w: %w", ssid, wifi.ErrConnectionFailed, err)
	}
	if err := wifi.CheckPermission(out); err != nil {
		return err
	}
	if !strings.Contains(out, "completed successfully") {
		if strings.Contains(out, "no profile") || strings.Contains(out, "is not found") {
			return fmt.Errorf("no profile for %q: %w", ssid, wifi.ErrProfileRequired)
		}
		return fmt.Errorf("failed to connect to %q: %w: %s", ssid, wifi.ErrConnectionFailed, strings.TrimSpace(out))
	}
	return nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	out, err := a.netsh(ctx, "disconnect")
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return wifi.CheckPermission(out)
}
