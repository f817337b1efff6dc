//go:build !linux

package linux

import (
	"context"
	"log/slog"

	"github.com/shazow/wifimgr/wifi"
)

type noBus struct{}

func newBusProbe(*slog.Logger) BusProbe { return noBus{} }

func (noBus) WirelessEnabled(context.Context) (bool, bool) { return false, false }
func (noBus) WirelessInterface(context.Context) string     { return "" }

type noStations struct{}

func newStationReader() StationReader { return noStations{} }

func (noStations) Station(context.Context, string) (*wifi.Network, error) {
	return nil, wifi.ErrNotSupported
}
