// Package linux implements wifi.Adapter on top of nmcli, with NetworkManager
// D-Bus, nl80211 and wireless-tools fallbacks.
package linux

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shazow/wifimgr/wifi"
)

// DefaultInterface is used when no wireless device can be discovered.
const DefaultInterface = "wlan0"

// BusProbe reads radio state from NetworkManager over the system bus.
type BusProbe interface {
	// WirelessEnabled reports the radio state. ok is false when
	// NetworkManager does not own its bus name.
	WirelessEnabled(ctx context.Context) (enabled bool, ok bool)
	// WirelessInterface returns the first wireless device name, or "".
	WirelessInterface(ctx context.Context) string
}

// StationReader reads the associated BSS of an interface from the kernel.
type StationReader interface {
	// Station returns the associated network, or nil when not associated.
	Station(ctx context.Context, iface string) (*wifi.Network, error)
}

// Adapter implements the wifi.Adapter interface for Linux.
type Adapter struct {
	Runner   wifi.Runner
	Logger   *slog.Logger
	Bus      BusProbe
	Stations StationReader

	mu    sync.Mutex
	iface string
}

// New creates a new linux.Adapter using the host's D-Bus and nl80211 probes.
func New(runner wifi.Runner, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("adapter", "nmcli")
	return &Adapter{
		Runner:   runner,
		Logger:   logger,
		Bus:      newBusProbe(logger),
		Stations: newStationReader(),
	}
}

func (a *Adapter) Name() string { return "nmcli" }

func (a *Adapter) run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := a.Runner.Run(ctx, name, args...)
	return string(out), err
}

func (a *Adapter) nmcli(ctx context.Context, args ...string) (string, error) {
	return a.run(ctx, "nmcli", args...)
}

// wirelessInterface discovers the wireless device and caches it.
func (a *Adapter) wirelessInterface(ctx context.Context) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.iface != "" {
		return a.iface
	}

	iface := a.Bus.WirelessInterface(ctx)
	if iface == "" {
		if out, err := a.nmcli(ctx, "-t", "-f", "DEVICE,TYPE", "device"); err == nil {
			iface = parseNmcliDevices(out)
		}
	}
	if iface == "" {
		a.Logger.Debug("no wireless device discovered, using default", "iface", DefaultInterface)
		iface = DefaultInterface
	}
	a.iface = iface
	return iface
}

// hasWirelessDevice reports whether NetworkManager knows a wireless device.
// Unlike wirelessInterface it never falls back to DefaultInterface.
func (a *Adapter) hasWirelessDevice(ctx context.Context) bool {
	if a.Bus.WirelessInterface(ctx) != "" {
		return true
	}
	out, err := a.nmcli(ctx, "-t", "-f", "DEVICE,TYPE", "device")
	return err == nil && parseNmcliDevices(out) != ""
}

// IsAvailable checks the radio state over D-Bus when NetworkManager is
// running, then via nmcli, then via iwconfig. An enabled radio only counts
// when a wireless device exists.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if enabled, ok := a.Bus.WirelessEnabled(ctx); ok {
		return enabled && a.hasWirelessDevice(ctx)
	}
	out, err := a.nmcli(ctx, "-t", "-f", "WIFI", "general")
	if err == nil {
		return strings.TrimSpace(out) == "enabled" && a.hasWirelessDevice(ctx)
	}
	a.Logger.Debug("nmcli unavailable", "error", err)

	out, err = a.run(ctx, "iwconfig", a.wirelessInterface(ctx))
	if err != nil {
		a.Logger.Debug("iwconfig unavailable", "error", err)
		return false
	}
	return hasWirelessExtensions(out)
}

func (a *Adapter) AvailableNetworks(ctx context.Context) ([]wifi.Network, error) {
	out, err := a.nmcli(ctx, "-t", "-f", "SSID,BSSID,SIGNAL,SECURITY", "device", "wifi", "list")
	if err == nil {
		networks, skipped := parseNmcliList(out)
		if skipped > 0 {
			a.Logger.Debug("skipped malformed nmcli rows", "count", skipped)
		}
		return networks, nil
	}
	a.Logger.Debug("nmcli list failed, trying iwlist", "error", err)

	out, err = a.run(ctx, "iwlist", a.wirelessInterface(ctx), "scan")
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	networks, skipped := parseIwlist(out)
	if skipped > 0 {
		a.Logger.Debug("skipped malformed iwlist cells", "count", skipped)
	}
	return networks, nil
}

func (a *Adapter) CurrentNetwork(ctx context.Context) (*wifi.Network, error) {
	out, err := a.nmcli(ctx, "-t", "-f", "ACTIVE,SSID,BSSID,SIGNAL,SECURITY", "device", "wifi", "list")
	if err == nil {
		return parseNmcliActive(out), nil
	}
	a.Logger.Debug("nmcli active lookup failed, trying nl80211", "error", err)

	iface := a.wirelessInterface(ctx)
	n, err := a.Stations.Station(ctx, iface)
	if err == nil {
		return n, nil
	}
	a.Logger.Debug("nl80211 station lookup failed, trying iwconfig", "error", err)

	out, err = a.run(ctx, "iwconfig", iface)
	if err != nil {
		return nil, fmt.Errorf("failed to get current network: %w", err)
	}
	return parseIwconfig(out), nil
}

func (a *Adapter) SavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	out, err := a.nmcli(ctx, "-t", "-f", "NAME,TYPE,AUTOCONNECT", "connection", "show")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return parseNmcliConnections(out), nil
}

func (a *Adapter) StartScan(ctx context.Context) error {
	_, err := a.nmcli(ctx, "device", "wifi", "rescan")
	if err != nil {
		// NetworkManager rate limits rescans; the cached list is still fresh.
		if strings.Contains(err.Error(), "not allowed immediately") {
			return nil
		}
		return fmt.Errorf("failed to trigger scan: %w", err)
	}
	return nil
}

func (a *Adapter) Connect(ctx context.Context, ssid string, password string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	out, err := a.nmcli(ctx, args...)
	if err != nil {
		msg := err.Error() + out
		switch {
		case strings.Contains(msg, "Secrets were required"), strings.Contains(msg, "802-11-wireless-security.psk: property is invalid"):
			return fmt.Errorf("failed to connect to %q: %w", ssid, wifi.ErrAuthenticationFailed)
		case strings.Contains(msg, "No network with SSID"):
			return fmt.Errorf("network %q: %w", ssid, wifi.ErrNotFound)
		}
		return fmt.Errorf("failed to connect to %q: %w: %w", ssid, wifi.ErrConnectionFailed, err)
	}
	return wifi.CheckPermission(out)
}

// Disconnect takes down the active wireless connection, if any.
func (a *Adapter) Disconnect(ctx context.Context) error {
	out, err := a.nmcli(ctx, "-t", "-f", "NAME,TYPE", "connection", "show", "--active")
	if err != nil {
		return fmt.Errorf("failed to list active connections: %w", err)
	}
	name := parseActiveWifiConnection(out)
	if name == "" {
		a.Logger.Debug("no active wireless connection")
		return nil
	}
	if _, err := a.nmcli(ctx, "connection", "down", name); err != nil {
		return fmt.Errorf("failed to take down %q: %w", name, err)
	}
	return nil
}
