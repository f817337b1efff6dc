//go:build linux

package linux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Wifx/gonetworkmanager/v3"
	"github.com/godbus/dbus/v5"
	nl80211 "github.com/mdlayher/wifi"

	"github.com/shazow/wifimgr/wifi"
)

const networkManagerBusName = "org.freedesktop.NetworkManager"

// dbusProbe talks to NetworkManager only after confirming it owns its bus
// name, so hosts without NetworkManager fall through quickly.
type dbusProbe struct {
	logger *slog.Logger
}

func newBusProbe(logger *slog.Logger) BusProbe {
	return dbusProbe{logger: logger}
}

func (p dbusProbe) networkManager(ctx context.Context) (gonetworkmanager.NetworkManager, bool) {
	conn, err := dbus.SystemBus()
	if err != nil {
		p.logger.Debug("system bus unavailable", "error", err)
		return nil, false
	}
	var owned bool
	err = conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, networkManagerBusName).Store(&owned)
	if err != nil || !owned {
		return nil, false
	}
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		p.logger.Debug("failed to connect to NetworkManager", "error", err)
		return nil, false
	}
	return nm, true
}

func (p dbusProbe) WirelessEnabled(ctx context.Context) (bool, bool) {
	nm, ok := p.networkManager(ctx)
	if !ok {
		return false, false
	}
	enabled, err := nm.GetPropertyWirelessEnabled()
	if err != nil {
		p.logger.Debug("failed to read WirelessEnabled", "error", err)
		return false, false
	}
	return enabled, true
}

func (p dbusProbe) WirelessInterface(ctx context.Context) string {
	nm, ok := p.networkManager(ctx)
	if !ok {
		return ""
	}
	devices, err := nm.GetDevices()
	if err != nil {
		return ""
	}
	for _, device := range devices {
		deviceType, err := device.GetPropertyDeviceType()
		if err != nil || deviceType != gonetworkmanager.NmDeviceTypeWifi {
			continue
		}
		if name, err := device.GetPropertyInterface(); err == nil && name != "" {
			return name
		}
	}
	return ""
}

// nl80211Stations reads the associated BSS through generic netlink.
type nl80211Stations struct{}

func newStationReader() StationReader {
	return nl80211Stations{}
}

func (nl80211Stations) Station(ctx context.Context, iface string) (*wifi.Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := nl80211.New()
	if err != nil {
		return nil, fmt.Errorf("open nl80211: %w", err)
	}
	defer c.Close()

	ifis, err := c.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for _, ifi := range ifis {
		if ifi.Name != iface {
			continue
		}
		bss, err := c.BSS(ifi)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read BSS of %s: %w", iface, err)
		}
		n := wifi.NewNetwork(bss.BSSID.String(), bss.SSID, wifi.SecurityUnknown, 0)
		if stations, err := c.StationInfo(ifi); err == nil && len(stations) > 0 {
			n.SignalStrength = wifi.SignalFromRSSI(stations[0].Signal)
		}
		return &n, nil
	}
	return nil, fmt.Errorf("interface %q: %w", iface, wifi.ErrNotFound)
}
