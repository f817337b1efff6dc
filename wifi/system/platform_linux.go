//go:build linux

package system

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifimgr/wifi"
	"github.com/shazow/wifimgr/wifi/iwd"
	"github.com/shazow/wifimgr/wifi/linux"
	"github.com/shazow/wifimgr/wifi/networkmanager"
)

func platformAdapter(runner wifi.Runner, logger *slog.Logger) wifi.Adapter {
	return linux.New(runner, logger)
}

func namedAdapter(name string, runner wifi.Runner, logger *slog.Logger) (wifi.Adapter, error) {
	switch name {
	case "nmcli":
		return linux.New(runner, logger), nil
	case "networkmanager":
		return networkmanager.New(logger)
	case "iwd":
		return iwd.New(logger)
	}
	return nil, fmt.Errorf("unknown backend: %w", wifi.ErrNotSupported)
}
