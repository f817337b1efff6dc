//go:build linux

// Package networkmanager is a wifi.Adapter that talks to NetworkManager over
// D-Bus instead of shelling out to nmcli.
package networkmanager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/google/uuid"

	"github.com/shazow/wifimgr/wifi"
)

const wirelessType = "802-11-wireless"

// Security bits of the AccessPoint WpaFlags and RsnFlags properties.
const (
	keyMgmt8021X = 0x200
	keyMgmtSAE   = 0x400
)

// Adapter implements wifi.Adapter using NetworkManager's D-Bus API.
type Adapter struct {
	NM       gonetworkmanager.NetworkManager
	Settings gonetworkmanager.Settings
	Logger   *slog.Logger

	mu     sync.Mutex
	device gonetworkmanager.DeviceWireless
}

// New connects to NetworkManager on the system bus.
func New(logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create network manager client: %w", wifi.ErrNotAvailable)
	}
	settings, err := gonetworkmanager.NewSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", wifi.ErrNotAvailable)
	}
	return &Adapter{NM: nm, Settings: settings, Logger: logger.With("adapter", "networkmanager")}, nil
}

func (a *Adapter) Name() string { return "networkmanager" }

// wirelessDevice finds the first wireless device and caches it.
func (a *Adapter) wirelessDevice() (gonetworkmanager.DeviceWireless, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device != nil {
		return a.device, nil
	}

	devices, err := a.NM.GetDevices()
	if err != nil {
		return nil, classify(err)
	}
	for _, device := range devices {
		if dev, ok := device.(gonetworkmanager.DeviceWireless); ok {
			a.device = dev
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no wireless device found: %w", wifi.ErrNotAvailable)
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	enabled, err := a.NM.GetPropertyWirelessEnabled()
	if err != nil || !enabled {
		return false
	}
	_, err = a.wirelessDevice()
	return err == nil
}

func (a *Adapter) StartScan(ctx context.Context) error {
	dev, err := a.wirelessDevice()
	if err != nil {
		return err
	}
	if err := dev.RequestScan(); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) AvailableNetworks(ctx context.Context) ([]wifi.Network, error) {
	dev, err := a.wirelessDevice()
	if err != nil {
		return nil, err
	}
	aps, err := dev.GetAccessPoints()
	if err != nil {
		return nil, classify(err)
	}

	networks := make([]wifi.Network, 0, len(aps))
	for _, ap := range aps {
		n, err := accessPointNetwork(ap)
		if err != nil {
			a.Logger.Debug("skipping access point", "error", err)
			continue
		}
		networks = append(networks, n)
	}
	return networks, nil
}

func (a *Adapter) CurrentNetwork(ctx context.Context) (*wifi.Network, error) {
	dev, err := a.wirelessDevice()
	if err != nil {
		return nil, err
	}
	ap, err := dev.GetPropertyActiveAccessPoint()
	if err != nil {
		return nil, classify(err)
	}
	if ap == nil {
		return nil, nil
	}
	n, err := accessPointNetwork(ap)
	if err != nil {
		return nil, nil
	}
	return &n, nil
}

func (a *Adapter) SavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	conns, err := a.Settings.ListConnections()
	if err != nil {
		return nil, classify(err)
	}
	var networks []wifi.Network
	for _, conn := range conns {
		s, err := conn.GetSettings()
		if err != nil {
			a.Logger.Debug("skipping unreadable profile", "error", err)
			continue
		}
		if n, ok := profileNetwork(s); ok {
			networks = append(networks, n)
		}
	}
	return networks, nil
}

// findProfile returns the saved connection for ssid, if any.
func (a *Adapter) findProfile(ssid string) (gonetworkmanager.Connection, gonetworkmanager.ConnectionSettings) {
	conns, err := a.Settings.ListConnections()
	if err != nil {
		return nil, nil
	}
	for _, conn := range conns {
		s, err := conn.GetSettings()
		if err != nil {
			continue
		}
		if n, ok := profileNetwork(s); ok && n.SSID == ssid {
			return conn, s
		}
	}
	return nil, nil
}

// strongestAccessPoint returns the access point for ssid with the best signal.
func strongestAccessPoint(dev gonetworkmanager.DeviceWireless, ssid string) (gonetworkmanager.AccessPoint, wifi.Network, error) {
	aps, err := dev.GetAccessPoints()
	if err != nil {
		return nil, wifi.Network{}, classify(err)
	}
	var best gonetworkmanager.AccessPoint
	var bestNetwork wifi.Network
	for _, ap := range aps {
		n, err := accessPointNetwork(ap)
		if err != nil || n.SSID != ssid {
			continue
		}
		if best == nil || n.SignalStrength > bestNetwork.SignalStrength {
			best, bestNetwork = ap, n
		}
	}
	if best == nil {
		return nil, wifi.Network{}, fmt.Errorf("access point not found for %s: %w", ssid, wifi.ErrNotFound)
	}
	return best, bestNetwork, nil
}

func (a *Adapter) Connect(ctx context.Context, ssid string, password string) error {
	dev, err := a.wirelessDevice()
	if err != nil {
		return err
	}
	ap, network, err := strongestAccessPoint(dev, ssid)
	if err != nil {
		return err
	}

	var active gonetworkmanager.ActiveConnection
	conn, settings := a.findProfile(ssid)
	switch {
	case conn != nil:
		if password != "" {
			if err := updateSecret(conn, settings, password); err != nil {
				return classify(err)
			}
		}
		active, err = a.NM.ActivateWirelessConnection(conn, dev, ap)
	default:
		iface, _ := dev.GetPropertyInterface()
		profile, perr := newProfile(ssid, password, network.Security, iface)
		if perr != nil {
			return perr
		}
		active, err = a.NM.AddAndActivateWirelessConnection(profile, dev, ap)
	}
	if err != nil {
		return fmt.Errorf("activate %s: %w: %w", ssid, wifi.ErrConnectionFailed, classify(err))
	}
	return waitActivated(ctx, active)
}

// waitActivated blocks until the connection is activated, fails or ctx ends.
func waitActivated(ctx context.Context, active gonetworkmanager.ActiveConnection) error {
	stateChanges := make(chan gonetworkmanager.StateChange, 1)
	done := make(chan struct{})
	defer close(done)
	if err := active.SubscribeState(stateChanges, done); err != nil {
		return classify(err)
	}

	// Check the initial state first
	state, err := active.GetPropertyState()
	if err != nil {
		return classify(err)
	}
	if state == gonetworkmanager.NmActiveConnectionStateActivated {
		return nil
	}

	for {
		select {
		case change := <-stateChanges:
			switch change.State {
			case gonetworkmanager.NmActiveConnectionStateActivated:
				return nil
			case gonetworkmanager.NmActiveConnectionStateDeactivated:
				return fmt.Errorf("connection deactivated (reason %v): %w", change.Reason, wifi.ErrConnectionFailed)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	actives, err := a.NM.GetPropertyActiveConnections()
	if err != nil {
		return classify(err)
	}
	for _, ac := range actives {
		typ, err := ac.GetPropertyType()
		if err != nil || typ != wirelessType {
			continue
		}
		if err := a.NM.DeactivateConnection(ac); err != nil {
			return classify(err)
		}
	}
	return nil
}

// accessPointNetwork reads the properties of ap.
func accessPointNetwork(ap gonetworkmanager.AccessPoint) (wifi.Network, error) {
	ssid, err := ap.GetPropertySSID()
	if err != nil {
		return wifi.Network{}, err
	}
	if ssid == "" {
		return wifi.Network{}, fmt.Errorf("hidden access point")
	}
	bssid, err := ap.GetPropertyHWAddress()
	if err != nil {
		return wifi.Network{}, err
	}
	if !wifi.ValidBSSID(bssid) {
		return wifi.Network{}, fmt.Errorf("invalid bssid %q", bssid)
	}
	strength, _ := ap.GetPropertyStrength()
	flags, _ := ap.GetPropertyFlags()
	wpaFlags, _ := ap.GetPropertyWPAFlags()
	rsnFlags, _ := ap.GetPropertyRSNFlags()
	return wifi.NewNetwork(bssid, ssid, securityFromFlags(uint32(flags), uint32(wpaFlags), uint32(rsnFlags)), int(strength)), nil
}

// securityFromFlags maps the AccessPoint privacy and key management flags.
func securityFromFlags(flags, wpaFlags, rsnFlags uint32) wifi.SecurityType {
	switch {
	case (wpaFlags|rsnFlags)&keyMgmt8021X != 0:
		return wifi.SecurityWPA2Enterprise
	case rsnFlags&keyMgmtSAE != 0:
		return wifi.SecurityWPA3
	case rsnFlags != 0:
		return wifi.SecurityWPA2
	case wpaFlags != 0:
		return wifi.SecurityWPA
	case flags&uint32(gonetworkmanager.Nm80211APFlagsPrivacy) != 0:
		return wifi.SecurityWEP
	}
	return wifi.SecurityOpen
}

// profileNetwork converts a saved wireless connection.
func profileNetwork(s gonetworkmanager.ConnectionSettings) (wifi.Network, bool) {
	if typ, _ := s["connection"]["type"].(string); typ != wirelessType {
		return wifi.Network{}, false
	}
	wireless := s[wirelessType]
	ssidBytes, _ := wireless["ssid"].([]byte)
	if len(ssidBytes) == 0 {
		return wifi.Network{}, false
	}
	ssid := string(ssidBytes)

	bssid := wifi.SyntheticBSSID(ssid)
	if hw, ok := wireless["bssid"].([]byte); ok && len(hw) == 6 {
		bssid = net.HardwareAddr(hw).String()
	}

	security := wifi.SecurityOpen
	if sec, ok := s["802-11-wireless-security"]; ok {
		mgmt, _ := sec["key-mgmt"].(string)
		security = keyMgmtSecurity(mgmt)
	}

	n := wifi.NewNetwork(bssid, ssid, security, 0)
	n.Saved = true
	n.Settings.AutoConnect = true
	if ac, ok := s["connection"]["autoconnect"].(bool); ok {
		n.Settings.AutoConnect = ac
	}
	if hidden, ok := wireless["hidden"].(bool); ok {
		n.Settings.Hidden = hidden
	}
	if prio, ok := s["connection"]["autoconnect-priority"].(int32); ok {
		n.Settings.Priority = int(prio)
	}
	return n, true
}

func keyMgmtSecurity(mgmt string) wifi.SecurityType {
	switch mgmt {
	case "none", "ieee8021x":
		return wifi.SecurityWEP
	case "wpa-psk":
		return wifi.SecurityWPA2
	case "sae":
		return wifi.SecurityWPA3
	case "wpa-eap", "wpa-eap-suite-b-192":
		return wifi.SecurityWPA2Enterprise
	}
	return wifi.SecurityUnknown
}

// newProfile builds the settings for a new connection to ssid.
func newProfile(ssid, password string, security wifi.SecurityType, iface string) (map[string]map[string]interface{}, error) {
	connection := map[string]map[string]interface{}{
		"connection": {
			"id":          ssid,
			"uuid":        uuid.New().String(),
			"type":        wirelessType,
			"autoconnect": true,
		},
		wirelessType: {
			"mode": "infrastructure",
			"ssid": []byte(ssid),
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "auto"},
	}
	if iface != "" {
		connection["connection"]["interface-name"] = iface
	}

	switch security {
	case wifi.SecurityOpen:
		// No security settings needed
		return connection, nil
	case wifi.SecurityWPA2Enterprise:
		return nil, fmt.Errorf("%s needs an 802.1X profile: %w", ssid, wifi.ErrProfileRequired)
	}
	if password == "" {
		return nil, fmt.Errorf("%s: %w", ssid, wifi.ErrPasswordRequired)
	}

	connection[wirelessType]["security"] = "802-11-wireless-security"
	switch security {
	case wifi.SecurityWEP:
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "none",
			"wep-key0": password,
		}
	case wifi.SecurityWPA3:
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "sae",
			"psk":      password,
		}
	default: // WPA/WPA2
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      password,
		}
	}
	return connection, nil
}

// applyUpdateWorkaround modifies the settings map to workaround D-Bus type errors.
//
// NetworkManager returns ipv6.addresses and ipv6.routes as 'aav' but expects
// structs on update, so they are dropped before calling Update.
//
// See: https://github.com/Wifx/gonetworkmanager/issues/13 and https://github.com/godbus/dbus/issues/400
func applyUpdateWorkaround(settings map[string]map[string]interface{}) {
	if ipv6Settings, ok := settings["ipv6"]; ok {
		delete(ipv6Settings, "addresses")
		delete(ipv6Settings, "routes")
	}
}

func updateSecret(conn gonetworkmanager.Connection, settings gonetworkmanager.ConnectionSettings, password string) error {
	if _, ok := settings["802-11-wireless-security"]; !ok {
		return nil
	}
	settings["802-11-wireless-security"]["psk"] = password
	applyUpdateWorkaround(settings)
	return conn.Update(settings)
}

// classify maps D-Bus authorization failures onto wifi.ErrPermissionDenied.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if perm := wifi.CheckPermission(err.Error()); perm != nil {
		return fmt.Errorf("%w: %w", wifi.ErrPermissionDenied, err)
	}
	return err
}
