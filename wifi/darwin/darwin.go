// Package darwin implements wifi.Adapter on top of networksetup, airport
// and system_profiler.
package darwin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shazow/wifimgr/wifi"
)

// AirportPath is the location of the private airport utility.
const AirportPath = "/System/Library/PrivateFrameworks/Apple80211.framework/Versions/Current/Resources/airport"

// Adapter implements the wifi.Adapter interface for macOS.
type Adapter struct {
	Runner wifi.Runner
	Logger *slog.Logger

	mu     sync.Mutex
	device string
}

// New creates a new darwin.Adapter. The Wi-Fi device is discovered lazily.
func New(runner wifi.Runner, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{Runner: runner, Logger: logger.With("adapter", "networksetup")}
}

func (a *Adapter) Name() string { return "networksetup" }

func (a *Adapter) run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := a.Runner.Run(ctx, name, args...)
	return string(out), err
}

// wifiDevice finds the Wi-Fi interface name (e.g., en0) and caches it.
func (a *Adapter) wifiDevice(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != "" {
		return a.device, nil
	}

	out, err := a.run(ctx, "networksetup", "-listallhardwareports")
	if err != nil {
		return "", fmt.Errorf("failed to list hardware ports: %w: %w", wifi.ErrOperationFailed, err)
	}
	device, err := findWifiDevice(out)
	if err != nil {
		return "", err
	}
	a.device = device
	return device, nil
}

// IsAvailable checks that a Wi-Fi device exists and its radio is on.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	device, err := a.wifiDevice(ctx)
	if err != nil {
		a.Logger.Debug("no wifi device", "error", err)
		return false
	}
	out, err := a.run(ctx, "networksetup", "-getairportpower", device)
	if err != nil {
		a.Logger.Debug("failed to read airport power", "error", err)
		return false
	}
	return strings.Contains(out, ": On")
}

// AvailableNetworks tries airport first, then system_profiler (airport is
// deprecated and missing on newer releases), then the preferred list.
func (a *Adapter) AvailableNetworks(ctx context.Context) ([]wifi.Network, error) {
	out, err := a.run(ctx, AirportPath, "-s")
	if err == nil {
		networks, skipped := parseAirportScan(out)
		if skipped > 0 {
			a.Logger.Debug("skipped malformed airport rows", "count", skipped)
		}
		if len(networks) > 0 {
			return networks, nil
		}
	} else {
		a.Logger.Debug("airport scan failed, trying system_profiler", "error", err)
	}

	out, err = a.run(ctx, "system_profiler", "SPAirPortDataType")
	if err == nil {
		if networks := parseSystemProfilerOutput(out); len(networks) > 0 {
			return networks, nil
		}
	} else {
		a.Logger.Debug("system_profiler failed, using preferred networks", "error", err)
	}

	networks, err := a.SavedNetworks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for networks: %w", err)
	}
	return networks, nil
}

func (a *Adapter) CurrentNetwork(ctx context.Context) (*wifi.Network, error) {
	out, err := a.run(ctx, AirportPath, "-I")
	if err == nil {
		return parseAirportInfo(out), nil
	}
	a.Logger.Debug("airport info failed, trying networksetup", "error", err)

	device, err := a.wifiDevice(ctx)
	if err != nil {
		return nil, err
	}
	out, err = a.run(ctx, "networksetup", "-getairportnetwork", device)
	if err != nil {
		return nil, fmt.Errorf("failed to get current network: %w", err)
	}
	ssid := parseAirportNetwork(out)
	if ssid == "" {
		return nil, nil
	}
	n := wifi.NewNetwork(wifi.SyntheticBSSID(ssid), ssid, wifi.SecurityUnknown, 0)
	return &n, nil
}

func (a *Adapter) SavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	device, err := a.wifiDevice(ctx)
	if err != nil {
		return nil, err
	}
	out, err := a.run(ctx, "networksetup", "-listpreferredwirelessnetworks", device)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferred networks: %w: %w", wifi.ErrOperationFailed, err)
	}
	return parsePreferredNetworks(out)
}

// StartScan triggers a scan. airport has no trigger-only mode, so the
// results are discarded.
func (a *Adapter) StartScan(ctx context.Context) error {
	if _, err := a.run(ctx, AirportPath, "-s"); err != nil {
		return fmt.Errorf("failed to trigger scan: %w", err)
	}
	return nil
}

// Connect joins a network. For known networks networksetup uses stored
// credentials from the keychain automatically.
func (a *Adapter) Connect(ctx context.Context, ssid string, password string) error {
	device, err := a.wifiDevice(ctx)
	if err != nil {
		return err
	}
	args := []string{"-setairportnetwork", device, ssid}
	if password != "" {
		args = append(args, password)
	}
	out, err := a.run(ctx, "networksetup", args...)
	if err != nil {
		return fmt.Errorf("failed to connect to %q: %w: %w", ssid, wifi.ErrConnectionFailed, err)
	}
	if err := wifi.CheckPermission(out); err != nil {
		return err
	}

	// networksetup exits zero on failure and reports on stdout.
	switch {
	case strings.Contains(out, "Could not find network"):
		return fmt.Errorf("network %q: %w", ssid, wifi.ErrNotFound)
	case strings.Contains(out, "Failed to join"):
		if strings.Contains(out, "-3900") {
			return fmt.Errorf("failed to join %q: %w", ssid, wifi.ErrAuthenticationFailed)
		}
		return fmt.Errorf("failed to join %q: %w: %s", ssid, wifi.ErrConnectionFailed, strings.TrimSpace(out))
	}
	return nil
}

// Disconnect cycles the radio, since networksetup has no disassociate command.
func (a *Adapter) Disconnect(ctx context.Context) error {
	device, err := a.wifiDevice(ctx)
	if err != nil {
		return err
	}
	for _, state := range []string{"off", "on"} {
		out, err := a.run(ctx, "networksetup", "-setairportpower", device, state)
		if err != nil {
			return fmt.Errorf("failed to set airport power %s: %w", state, err)
		}
		if err := wifi.CheckPermission(out); err != nil {
			return err
		}
	}
	return nil
}
