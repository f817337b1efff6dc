package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/shazow/wifimgr/wifi"
)

// Color is a terminal color that can be decoded from TOML either as a
// single color string or as a [light, dark] pair.
type Color struct {
	lipgloss.TerminalColor
}

// UnmarshalTOML implements toml.Unmarshaler.
func (c *Color) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		c.TerminalColor = lipgloss.Color(v)
		return nil
	case []any:
		if len(v) != 2 {
			return fmt.Errorf("adaptive color needs [light, dark], got %d values", len(v))
		}
		light, ok1 := v[0].(string)
		dark, ok2 := v[1].(string)
		if !ok1 || !ok2 {
			return fmt.Errorf("adaptive color values must be strings")
		}
		c.TerminalColor = lipgloss.AdaptiveColor{Light: light, Dark: dark}
		return nil
	}
	return fmt.Errorf("unsupported color value %v", v)
}

// hex returns the color's hex string for the current background.
func (c Color) hex() string {
	switch v := c.TerminalColor.(type) {
	case lipgloss.AdaptiveColor:
		if lipgloss.HasDarkBackground() {
			return v.Dark
		}
		return v.Light
	case lipgloss.Color:
		return string(v)
	}
	return ""
}

// Theme contains the colors and icons for the application.
type Theme struct {
	Primary  Color `toml:"Primary"`
	Subtle   Color `toml:"Subtle"`
	Success  Color `toml:"Success"`
	Error    Color `toml:"Error"`
	Warning  Color `toml:"Warning"`
	Normal   Color `toml:"Normal"`
	Disabled Color `toml:"Disabled"`
	Border   Color `toml:"Border"`
	Saved    Color `toml:"Saved"`

	SignalHigh Color `toml:"SignalHigh"`
	SignalLow  Color `toml:"SignalLow"`

	TitleIcon          string `toml:"TitleIcon"`
	NetworkOpenIcon    string `toml:"NetworkOpenIcon"`
	NetworkSecureIcon  string `toml:"NetworkSecureIcon"`
	NetworkUnknownIcon string `toml:"NetworkUnknownIcon"`
	NetworkSavedIcon   string `toml:"NetworkSavedIcon"`
}

// CurrentTheme is the active theme for the application.
var CurrentTheme = NewDefaultTheme()

// NewDefaultTheme creates a new default theme.
func NewDefaultTheme() Theme {
	return Theme{
		Primary:  Color{lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#D359E3"}},
		Subtle:   Color{lipgloss.AdaptiveColor{Light: "#9E9E9E", Dark: "#757575"}},
		Success:  Color{lipgloss.AdaptiveColor{Light: "#388E3C", Dark: "#81C784"}},
		Error:    Color{lipgloss.AdaptiveColor{Light: "#D32F2F", Dark: "#E57373"}},
		Warning:  Color{lipgloss.AdaptiveColor{Light: "#F57C00", Dark: "#FFB74D"}},
		Normal:   Color{lipgloss.AdaptiveColor{Light: "#212121", Dark: "#FFFFFF"}},
		Disabled: Color{lipgloss.AdaptiveColor{Light: "#BDBDBD", Dark: "#616161"}},
		Border:   Color{lipgloss.AdaptiveColor{Light: "#BDBDBD", Dark: "#616161"}},
		Saved:    Color{lipgloss.AdaptiveColor{Light: "#1976D2", Dark: "#64B5F6"}},

		SignalHigh: Color{lipgloss.AdaptiveColor{Light: "#00B300", Dark: "#00FF00"}},
		SignalLow:  Color{lipgloss.AdaptiveColor{Light: "#D05F00", Dark: "#BC3C00"}},

		TitleIcon:          "📡 ",
		NetworkOpenIcon:    "🔓 ",
		NetworkSecureIcon:  "🔒 ",
		NetworkUnknownIcon: "❓ ",
		NetworkSavedIcon:   "💾 ",
	}
}

// SignalColor blends between SignalLow and SignalHigh by strength (0-100).
func (t Theme) SignalColor(strength int) lipgloss.Color {
	start, err := colorful.Hex(t.SignalLow.hex())
	if err != nil {
		return lipgloss.Color(t.SignalLow.hex())
	}
	end, err := colorful.Hex(t.SignalHigh.hex())
	if err != nil {
		return lipgloss.Color(t.SignalHigh.hex())
	}
	p := float64(wifi.ClampStrength(strength)) / 100.0
	return lipgloss.Color(start.BlendRgb(end, p).Clamped().Hex())
}

// StatusColor returns the color for a connection status.
func (t Theme) StatusColor(status wifi.ConnectionStatus) lipgloss.TerminalColor {
	switch status {
	case wifi.StatusConnected:
		return t.Success
	case wifi.StatusConnecting, wifi.StatusAuthenticating:
		return t.Warning
	case wifi.StatusError:
		return t.Error
	}
	return t.Subtle
}
