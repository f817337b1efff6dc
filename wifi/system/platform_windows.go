//go:build windows

package system

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifimgr/wifi"
	"github.com/shazow/wifimgr/wifi/windows"
)

func platformAdapter(runner wifi.Runner, logger *slog.Logger) wifi.Adapter {
	return windows.New(runner, logger)
}

func namedAdapter(name string, runner wifi.Runner, logger *slog.Logger) (wifi.Adapter, error) {
	if name == "netsh" {
		return windows.New(runner, logger), nil
	}
	return nil, fmt.Errorf("unknown backend: %w", wifi.ErrNotSupported)
}
