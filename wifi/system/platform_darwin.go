//go:build darwin

package system

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifimgr/wifi"
	"github.com/shazow/wifimgr/wifi/darwin"
)

func platformAdapter(runner wifi.Runner, logger *slog.Logger) wifi.Adapter {
	return darwin.New(runner, logger)
}

func namedAdapter(name string, runner wifi.Runner, logger *slog.Logger) (wifi.Adapter, error) {
	if name == "networksetup" {
		return darwin.New(runner, logger), nil
	}
	return nil, fmt.Errorf("unknown backend: %w", wifi.ErrNotSupported)
}
