//go:build !linux && !darwin && !windows

package system

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifimgr/wifi"
)

func platformAdapter(wifi.Runner, *slog.Logger) wifi.Adapter {
	return nil
}

func namedAdapter(string, wifi.Runner, *slog.Logger) (wifi.Adapter, error) {
	return nil, fmt.Errorf("unknown backend: %w", wifi.ErrNotSupported)
}
