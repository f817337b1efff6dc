package netmgr

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

// SimulatorMode selects when the synthetic scan/connect path is used.
type SimulatorMode string

const (
	// SimulatorOff never simulates; an unavailable adapter surfaces as an error.
	SimulatorOff SimulatorMode = "off"
	// SimulatorFallback simulates only when the adapter reports wifi.ErrNotAvailable.
	SimulatorFallback SimulatorMode = "fallback"
	// SimulatorAlways never touches the adapter.
	SimulatorAlways SimulatorMode = "always"
)

// ParseSimulatorMode parses "off", "fallback" or "always".
func ParseSimulatorMode(s string) (SimulatorMode, error) {
	switch mode := SimulatorMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case SimulatorOff, SimulatorFallback, SimulatorAlways:
		return mode, nil
	case "":
		return SimulatorFallback, nil
	}
	return "", fmt.Errorf("invalid simulator mode %q: %w", s, wifi.ErrNotSupported)
}

// Settings are the global engine settings. They are replaced as a whole.
type Settings struct {
	MaxRetryAttempts      int           `json:"maxRetryAttempts" yaml:"maxRetryAttempts"`
	RetryDelay            time.Duration `json:"retryDelay" yaml:"retryDelay"`
	ConnectionTimeout     time.Duration `json:"connectionTimeout" yaml:"connectionTimeout"`
	ScanTickInterval      time.Duration `json:"scanTickInterval" yaml:"scanTickInterval"`
	DefaultRedirectURL    string        `json:"defaultRedirectUrl" yaml:"defaultRedirectUrl"`
	RedirectTimeout       time.Duration `json:"redirectTimeout" yaml:"redirectTimeout"`
	AutoReconnect         bool          `json:"autoReconnect" yaml:"autoReconnect"`
	SignalMonitorInterval time.Duration `json:"signalMonitorInterval" yaml:"signalMonitorInterval"`
	SignalNoiseThreshold  int           `json:"signalNoiseThreshold" yaml:"signalNoiseThreshold"`
	LogLevel              string        `json:"logLevel" yaml:"logLevel"`
	SimulatedFailureRate  float64       `json:"simulatedFailureRate" yaml:"simulatedFailureRate"`
}

// DefaultSettings returns the settings used when none are persisted.
func DefaultSettings() Settings {
	return Settings{
		MaxRetryAttempts:      3,
		RetryDelay:            2 * time.Second,
		ConnectionTimeout:     30 * time.Second,
		ScanTickInterval:      300 * time.Millisecond,
		RedirectTimeout:       3 * time.Second,
		AutoReconnect:         true,
		SignalMonitorInterval: 5 * time.Second,
		SignalNoiseThreshold:  5,
		LogLevel:              "info",
		SimulatedFailureRate:  0.1,
	}
}

// ParseLevel parses a slog level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	switch {
	case s.MaxRetryAttempts < 0:
		return fmt.Errorf("maxRetryAttempts must not be negative")
	case s.RetryDelay <= 0:
		return fmt.Errorf("retryDelay must be positive")
	case s.ConnectionTimeout <= 0:
		return fmt.Errorf("connectionTimeout must be positive")
	case s.ScanTickInterval <= 0:
		return fmt.Errorf("scanTickInterval must be positive")
	case s.RedirectTimeout < 0:
		return fmt.Errorf("redirectTimeout must not be negative")
	case s.SignalMonitorInterval <= 0:
		return fmt.Errorf("signalMonitorInterval must be positive")
	case s.SignalNoiseThreshold < 0:
		return fmt.Errorf("signalNoiseThreshold must not be negative")
	case s.SimulatedFailureRate < 0 || s.SimulatedFailureRate > 1:
		return fmt.Errorf("simulatedFailureRate must be within [0, 1]")
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

type settingField struct {
	get func(s *Settings) string
	set func(s *Settings, v string) error
}

func durationField(field func(s *Settings) *time.Duration) settingField {
	return settingField{
		get: func(s *Settings) string { return field(s).String() },
		set: func(s *Settings, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*field(s) = d
			return nil
		},
	}
}

func intField(field func(s *Settings) *int) settingField {
	return settingField{
		get: func(s *Settings) string { return strconv.Itoa(*field(s)) },
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(s) = n
			return nil
		},
	}
}

var settingFields = map[string]settingField{
	"maxRetryAttempts":      intField(func(s *Settings) *int { return &s.MaxRetryAttempts }),
	"retryDelay":            durationField(func(s *Settings) *time.Duration { return &s.RetryDelay }),
	"connectionTimeout":     durationField(func(s *Settings) *time.Duration { return &s.ConnectionTimeout }),
	"scanTickInterval":      durationField(func(s *Settings) *time.Duration { return &s.ScanTickInterval }),
	"redirectTimeout":       durationField(func(s *Settings) *time.Duration { return &s.RedirectTimeout }),
	"signalMonitorInterval": durationField(func(s *Settings) *time.Duration { return &s.SignalMonitorInterval }),
	"signalNoiseThreshold":  intField(func(s *Settings) *int { return &s.SignalNoiseThreshold }),
	"defaultRedirectUrl": {
		get: func(s *Settings) string { return s.DefaultRedirectURL },
		set: func(s *Settings, v string) error { s.DefaultRedirectURL = v; return nil },
	},
	"logLevel": {
		get: func(s *Settings) string { return s.LogLevel },
		set: func(s *Settings, v string) error { s.LogLevel = strings.ToLower(v); return nil },
	},
	"autoReconnect": {
		get: func(s *Settings) string { return strconv.FormatBool(s.AutoReconnect) },
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			s.AutoReconnect = b
			return nil
		},
	},
	"simulatedFailureRate": {
		get: func(s *Settings) string { return strconv.FormatFloat(s.SimulatedFailureRate, 'g', -1, 64) },
		set: func(s *Settings, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			s.SimulatedFailureRate = f
			return nil
		},
	},
}

// SettingKeys returns the names accepted by Set, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingFields))
	for k := range settingFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the string form of the named setting.
func (s Settings) Get(key string) (string, error) {
	f, ok := settingFields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q: %w", key, wifi.ErrNotFound)
	}
	return f.get(&s), nil
}

// Set parses value into the named setting.
func (s *Settings) Set(key, value string) error {
	f, ok := settingFields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, wifi.ErrNotFound)
	}
	if err := f.set(s, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
