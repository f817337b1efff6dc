//go:build linux

// Package iwd is a wifi.Adapter for the iwd daemon, spoken to over D-Bus.
package iwd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/shazow/wifimgr/wifi"
)

// IWD constants
const (
	iwdDest              = "net.connman.iwd"
	iwdPath              = dbus.ObjectPath("/")
	iwdAgentManagerIface = "net.connman.iwd.AgentManager"
	iwdAgentIface        = "net.connman.iwd.Agent"
	iwdDeviceIface       = "net.connman.iwd.Device"
	iwdNetworkIface      = "net.connman.iwd.Network"
	iwdStationIface      = "net.connman.iwd.Station"
	iwdKnownNetworkIface = "net.connman.iwd.KnownNetwork"
	objectManagerIface   = "org.freedesktop.DBus.ObjectManager"

	agentPath = dbus.ObjectPath("/com/github/shazow/wifimgr/agent")
)

// managedObjects is the reply of ObjectManager.GetManagedObjects: interface
// properties keyed by object path and interface name.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// orderedNetwork is one entry of Station.GetOrderedNetworks. Signal is in
// hundredths of a dBm.
type orderedNetwork struct {
	Path   dbus.ObjectPath
	Signal int16
}

// Adapter implements wifi.Adapter on top of iwd. Networks are keyed by SSID
// since iwd does not expose per-radio BSSIDs, so every record carries a
// synthetic BSSID.
type Adapter struct {
	// Conn is needed to export the passphrase agent. Without it only open
	// and known networks can be joined.
	Conn   *dbus.Conn
	Object func(path dbus.ObjectPath) dbus.BusObject
	Logger *slog.Logger
}

// New connects to iwd on the system bus.
func New(logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w: %w", wifi.ErrNotAvailable, err)
	}
	a := &Adapter{
		Conn: conn,
		Object: func(path dbus.ObjectPath) dbus.BusObject {
			return conn.Object(iwdDest, path)
		},
		Logger: logger.With("adapter", "iwd"),
	}
	if _, err := a.objects(context.Background()); err != nil {
		return nil, fmt.Errorf("iwd is not available: %w", wifi.ErrNotAvailable)
	}
	return a, nil
}

func (a *Adapter) Name() string { return "iwd" }

func (a *Adapter) objects(ctx context.Context) (managedObjects, error) {
	var objs managedObjects
	err := a.Object(iwdPath).CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0).Store(&objs)
	if err != nil {
		return nil, classify(err)
	}
	return objs, nil
}

// station returns the first device in station mode.
func (objs managedObjects) station() (dbus.ObjectPath, error) {
	paths := make([]dbus.ObjectPath, 0, len(objs))
	for path, ifaces := range objs {
		if _, ok := ifaces[iwdStationIface]; ok {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no station device found: %w", wifi.ErrNotAvailable)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths[0], nil
}

func (objs managedObjects) prop(path dbus.ObjectPath, iface, name string) (dbus.Variant, bool) {
	v, ok := objs[path][iface][name]
	return v, ok
}

func (objs managedObjects) stringProp(path dbus.ObjectPath, iface, name string) string {
	v, _ := objs.prop(path, iface, name)
	s, _ := v.Value().(string)
	return s
}

func (objs managedObjects) boolProp(path dbus.ObjectPath, iface, name string) (bool, bool) {
	v, ok := objs.prop(path, iface, name)
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

// findNetwork returns the visible network object named ssid.
func (objs managedObjects) findNetwork(ssid string) (dbus.ObjectPath, bool) {
	for path, ifaces := range objs {
		props, ok := ifaces[iwdNetworkIface]
		if !ok {
			continue
		}
		if name, _ := props["Name"].Value().(string); name == ssid {
			return path, true
		}
	}
	return "", false
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	objs, err := a.objects(ctx)
	if err != nil {
		return false
	}
	station, err := objs.station()
	if err != nil {
		return false
	}
	powered, ok := objs.boolProp(station, iwdDeviceIface, "Powered")
	return ok && powered
}

func (a *Adapter) StartScan(ctx context.Context) error {
	objs, err := a.objects(ctx)
	if err != nil {
		return err
	}
	station, err := objs.station()
	if err != nil {
		return err
	}
	err = a.Object(station).CallWithContext(ctx, iwdStationIface+".Scan", 0).Err
	if errorName(err) == "net.connman.iwd.Busy" {
		return wifi.ErrScanInProgress
	}
	return classify(err)
}

func (a *Adapter) orderedNetworks(ctx context.Context, station dbus.ObjectPath) ([]orderedNetwork, error) {
	var ordered []orderedNetwork
	err := a.Object(station).CallWithContext(ctx, iwdStationIface+".GetOrderedNetworks", 0).Store(&ordered)
	if err != nil {
		return nil, classify(err)
	}
	return ordered, nil
}

func (a *Adapter) AvailableNetworks(ctx context.Context) ([]wifi.Network, error) {
	objs, err := a.objects(ctx)
	if err != nil {
		return nil, err
	}
	station, err := objs.station()
	if err != nil {
		return nil, err
	}
	ordered, err := a.orderedNetworks(ctx, station)
	if err != nil {
		return nil, err
	}

	networks := make([]wifi.Network, 0, len(ordered))
	for _, o := range ordered {
		if n, ok := visibleNetwork(objs, o); ok {
			networks = append(networks, n)
		}
	}
	return networks, nil
}

func visibleNetwork(objs managedObjects, o orderedNetwork) (wifi.Network, bool) {
	ssid := objs.stringProp(o.Path, iwdNetworkIface, "Name")
	if ssid == "" {
		return wifi.Network{}, false
	}
	security := securityFromType(objs.stringProp(o.Path, iwdNetworkIface, "Type"))
	n := wifi.NewNetwork(wifi.SyntheticBSSID(ssid), ssid, security, wifi.SignalFromRSSI(int(o.Signal)/100))
	if v, ok := objs.prop(o.Path, iwdNetworkIface, "KnownNetwork"); ok {
		if known, _ := v.Value().(dbus.ObjectPath); known != "" {
			n.Saved = true
		}
	}
	return n, true
}

func (a *Adapter) CurrentNetwork(ctx context.Context) (*wifi.Network, error) {
	objs, err := a.objects(ctx)
	if err != nil {
		return nil, err
	}
	station, err := objs.station()
	if err != nil {
		return nil, err
	}
	if objs.stringProp(station, iwdStationIface, "State") != "connected" {
		return nil, nil
	}
	v, ok := objs.prop(station, iwdStationIface, "ConnectedNetwork")
	if !ok {
		return nil, nil
	}
	path, _ := v.Value().(dbus.ObjectPath)

	ordered, err := a.orderedNetworks(ctx, station)
	if err != nil {
		return nil, err
	}
	entry := orderedNetwork{Path: path, Signal: -10000}
	for _, o := range ordered {
		if o.Path == path {
			entry = o
			break
		}
	}
	n, ok := visibleNetwork(objs, entry)
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (a *Adapter) SavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	objs, err := a.objects(ctx)
	if err != nil {
		return nil, err
	}
	var networks []wifi.Network
	for path, ifaces := range objs {
		if _, ok := ifaces[iwdKnownNetworkIface]; !ok {
			continue
		}
		ssid := objs.stringProp(path, iwdKnownNetworkIface, "Name")
		if ssid == "" {
			continue
		}
		n := wifi.NewNetwork(wifi.SyntheticBSSID(ssid), ssid, securityFromType(objs.stringProp(path, iwdKnownNetworkIface, "Type")), 0)
		n.Saved = true
		n.Settings.AutoConnect = true
		if auto, ok := objs.boolProp(path, iwdKnownNetworkIface, "AutoConnect"); ok {
			n.Settings.AutoConnect = auto
		}
		if hidden, ok := objs.boolProp(path, iwdKnownNetworkIface, "Hidden"); ok {
			n.Settings.Hidden = hidden
		}
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i].SSID < networks[j].SSID })
	return networks, nil
}

// Connect joins ssid. iwd replies once the connection is established, so
// there is no polling. Passwords are handed over through a short-lived agent.
func (a *Adapter) Connect(ctx context.Context, ssid string, password string) error {
	objs, err := a.objects(ctx)
	if err != nil {
		return err
	}
	station, err := objs.station()
	if err != nil {
		return err
	}

	path, visible := objs.findNetwork(ssid)
	if visible {
		_, known := objs.prop(path, iwdNetworkIface, "KnownNetwork")
		security := securityFromType(objs.stringProp(path, iwdNetworkIface, "Type"))
		if !known {
			switch {
			case security == wifi.SecurityWPA2Enterprise:
				return fmt.Errorf("%s needs an 802.1X profile: %w", ssid, wifi.ErrProfileRequired)
			case security.RequiresPassword() && password == "":
				return fmt.Errorf("%s: %w", ssid, wifi.ErrPasswordRequired)
			}
		}
	}

	if password != "" {
		release, err := a.registerAgent(ctx, password)
		if err != nil {
			return err
		}
		defer release()
	}

	var call *dbus.Call
	if visible {
		call = a.Object(path).CallWithContext(ctx, iwdNetworkIface+".Connect", 0)
	} else {
		call = a.Object(station).CallWithContext(ctx, iwdStationIface+".ConnectHiddenNetwork", 0, ssid)
	}
	return connectError(ssid, call.Err)
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	objs, err := a.objects(ctx)
	if err != nil {
		return err
	}
	station, err := objs.station()
	if err != nil {
		return err
	}
	err = a.Object(station).CallWithContext(ctx, iwdStationIface+".Disconnect", 0).Err
	if errorName(err) == "net.connman.iwd.NotConnected" {
		return nil
	}
	return classify(err)
}

// agent answers iwd passphrase requests for a single connection attempt.
type agent struct {
	password string
}

func (ag *agent) Release() *dbus.Error { return nil }

func (ag *agent) RequestPassphrase(network dbus.ObjectPath) (string, *dbus.Error) {
	return ag.password, nil
}

func (ag *agent) RequestPrivateKeyPassphrase(network dbus.ObjectPath) (string, *dbus.Error) {
	return ag.password, nil
}

func (ag *agent) Cancel(reason string) *dbus.Error { return nil }

// registerAgent exports an agent holding password and registers it with iwd.
func (a *Adapter) registerAgent(ctx context.Context, password string) (func(), error) {
	if a.Conn == nil {
		return nil, fmt.Errorf("passphrase agent needs a bus connection: %w", wifi.ErrNotSupported)
	}
	if err := a.Conn.Export(&agent{password: password}, agentPath, iwdAgentIface); err != nil {
		return nil, err
	}
	manager := a.Object(iwdPath)
	if err := manager.CallWithContext(ctx, iwdAgentManagerIface+".RegisterAgent", 0, agentPath).Err; err != nil {
		a.Conn.Export(nil, agentPath, iwdAgentIface)
		return nil, classify(err)
	}
	return func() {
		if err := manager.Call(iwdAgentManagerIface+".UnregisterAgent", 0, agentPath).Err; err != nil {
			a.Logger.Debug("failed to unregister agent", "error", err)
		}
		a.Conn.Export(nil, agentPath, iwdAgentIface)
	}, nil
}

// securityFromType maps the Type property of Network and KnownNetwork.
func securityFromType(t string) wifi.SecurityType {
	switch t {
	case "open":
		return wifi.SecurityOpen
	case "wep":
		return wifi.SecurityWEP
	case "psk":
		return wifi.SecurityWPA2
	case "8021x":
		return wifi.SecurityWPA2Enterprise
	}
	return wifi.SecurityUnknown
}

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Name
	}
	return ""
}

func connectError(ssid string, err error) error {
	if err == nil {
		return nil
	}
	switch errorName(err) {
	case "net.connman.iwd.NotConfigured", "net.connman.iwd.NoAgent":
		return fmt.Errorf("%s: %w", ssid, wifi.ErrPasswordRequired)
	case "net.connman.iwd.InvalidFormat":
		return fmt.Errorf("%s: %w", ssid, wifi.ErrAuthenticationFailed)
	case "net.connman.iwd.Busy", "net.connman.iwd.InProgress":
		return fmt.Errorf("%s: %w", ssid, wifi.ErrConnectionInProgress)
	case "net.connman.iwd.NotFound":
		return fmt.Errorf("%s: %w", ssid, wifi.ErrNotFound)
	case "net.connman.iwd.Timeout":
		return fmt.Errorf("%s: %w", ssid, wifi.ErrConnectionTimeout)
	case "net.connman.iwd.Failed", "net.connman.iwd.Aborted":
		return fmt.Errorf("%s: %w: %w", ssid, wifi.ErrConnectionFailed, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", ssid, wifi.ErrConnectionTimeout)
	}
	return classify(err)
}

// classify maps D-Bus authorization failures onto wifi.ErrPermissionDenied.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch errorName(err) {
	case "net.connman.iwd.PermissionDenied", "org.freedesktop.DBus.Error.AccessDenied":
		return fmt.Errorf("%w: %w", wifi.ErrPermissionDenied, err)
	case "org.freedesktop.DBus.Error.ServiceUnknown":
		return fmt.Errorf("%w: %w", wifi.ErrNotAvailable, err)
	}
	if perm := wifi.CheckPermission(err.Error()); perm != nil {
		return fmt.Errorf("%w: %w", wifi.ErrPermissionDenied, err)
	}
	return err
}
