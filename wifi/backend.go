package wifi

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SecurityType represents the security protocol of a network.
type SecurityType int

const (
	SecurityUnknown SecurityType = iota
	SecurityOpen
	SecurityWEP
	SecurityWPA
	SecurityWPA2
	SecurityWPA2Enterprise
	SecurityWPA3
)

var securityNames = map[SecurityType]string{
	SecurityUnknown:        "UNKNOWN",
	SecurityOpen:           "OPEN",
	SecurityWEP:            "WEP",
	SecurityWPA:            "WPA",
	SecurityWPA2:           "WPA2",
	SecurityWPA2Enterprise: "WPA2_ENTERPRISE",
	SecurityWPA3:           "WPA3",
}

func (s SecurityType) String() string {
	if name, ok := securityNames[s]; ok {
		return name
	}
	return securityNames[SecurityUnknown]
}

// RequiresPassword reports whether joining a network of this type needs a
// secret. Unknown security is attempted without one and the platform reports
// ErrPasswordRequired if it turns out to need it.
func (s SecurityType) RequiresPassword() bool {
	return s != SecurityOpen && s != SecurityUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (s SecurityType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SecurityType) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for k, v := range securityNames {
		if v == name {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("invalid security type %q: %w", text, ErrNotSupported)
}

// NetworkType is the transport of a network. Only WIFI exists today.
type NetworkType string

const NetworkTypeWiFi NetworkType = "WIFI"

// NetworkSettings are the user-controlled properties of a network.
type NetworkSettings struct {
	AutoConnect     bool          `json:"autoConnect" yaml:"autoConnect"`
	RedirectURL     string        `json:"redirectUrl,omitempty" yaml:"redirectUrl,omitempty"` // empty means none
	Hidden          bool          `json:"hidden" yaml:"hidden"`
	Priority        int           `json:"priority" yaml:"priority"`
	RedirectTimeout time.Duration `json:"redirectTimeout" yaml:"redirectTimeout"` // zero means use the global default
}

// Network is a single access point radio, visible or saved.
type Network struct {
	BSSID          string          `json:"bssid" yaml:"bssid"`
	SSID           string          `json:"ssid" yaml:"ssid"`
	Security       SecurityType    `json:"security" yaml:"security"`
	SignalStrength int             `json:"signalStrength" yaml:"signalStrength"` // 0-100, 0 when not observed
	Type           NetworkType     `json:"type" yaml:"type"`
	Saved          bool            `json:"saved" yaml:"saved"`
	Settings       NetworkSettings `json:"settings" yaml:"settings"`
}

// NewNetwork returns a scan-derived network record with default settings.
func NewNetwork(bssid, ssid string, security SecurityType, strength int) Network {
	return Network{
		BSSID:          NormalizeBSSID(bssid),
		SSID:           ssid,
		Security:       security,
		SignalStrength: ClampStrength(strength),
		Type:           NetworkTypeWiFi,
	}
}

// Is reports whether both records identify the same radio.
func (n Network) Is(other Network) bool {
	return SameBSSID(n.BSSID, other.BSSID)
}

// ConnectionStatus is the state of the connection state machine.
type ConnectionStatus string

const (
	StatusDisconnected   ConnectionStatus = "DISCONNECTED"
	StatusConnecting     ConnectionStatus = "CONNECTING"
	StatusAuthenticating ConnectionStatus = "AUTHENTICATING"
	StatusConnected      ConnectionStatus = "CONNECTED"
	StatusError          ConnectionStatus = "ERROR"
)

// Adapter translates one platform's native WiFi tooling into Networks.
type Adapter interface {
	// Name identifies the adapter in logs, e.g. "nmcli".
	Name() string
	// IsAvailable reports whether the tooling and a wireless device are usable.
	// It fails closed: any command error yields false.
	IsAvailable(ctx context.Context) bool
	// AvailableNetworks lists the networks from the most recent scan.
	AvailableNetworks(ctx context.Context) ([]Network, error)
	// CurrentNetwork returns the associated network, or nil if there is none.
	CurrentNetwork(ctx context.Context) (*Network, error)
	// SavedNetworks enumerates profiles stored by the operating system.
	SavedNetworks(ctx context.Context) ([]Network, error)
	// StartScan triggers a scan. It does not wait for results.
	StartScan(ctx context.Context) error
	// Connect joins the network with the given SSID.
	Connect(ctx context.Context, ssid string, password string) error
	// Disconnect drops the current association.
	Disconnect(ctx context.Context) error
}
