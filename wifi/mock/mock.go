// Package mock provides an in-memory wifi.Adapter for tests and demos.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

var DefaultActionSleep = 500 * time.Millisecond

// Profile is a network stored by the mock operating system.
type Profile struct {
	SSID        string
	Secret      string
	AutoConnect bool
}

// Adapter is a mock implementation of the wifi.Adapter interface for testing.
// All fields may be changed between calls; access from other goroutines
// must go through Update.
type Adapter struct {
	mu sync.Mutex

	Visible  []wifi.Network
	Profiles []Profile
	// CurrentBSSID is the associated radio, or "".
	CurrentBSSID string
	// Available is reported by IsAvailable.
	Available bool

	ScanError       error
	ListError       error
	CurrentError    error
	SavedError      error
	DisconnectError error
	// ConnectErrors are returned by successive Connect calls; a nil entry
	// lets that call succeed. Once drained, Connect behaves normally.
	ConnectErrors []error
	// Signals are returned as the current network's strength by successive
	// CurrentNetwork calls. The last value sticks.
	Signals []int
	// PanicOn makes the named method panic, to exercise recovery.
	PanicOn string

	// ActionSleep is a delay before every action, to better emulate a real-world backend for the frontend. Set to 0 during testing.
	ActionSleep time.Duration
	// ConnectSleep is an additional delay inside Connect.
	ConnectSleep time.Duration

	calls map[string]int
}

// New creates a new mock.Adapter with a list of fun wifi networks.
func New() *Adapter {
	visible := []wifi.Network{
		wifi.NewNetwork("02:00:5e:00:00:01", "HideYoKidsHideYoWiFi", wifi.SecurityWPA2, 72),
		wifi.NewNetwork("02:00:5e:00:00:02", "GET off my LAN", wifi.SecurityWPA2, 35),
		wifi.NewNetwork("02:00:5e:00:00:03", "NeverGonnaGiveYouIP", wifi.SecurityWEP, 41),
		wifi.NewNetwork("02:00:5e:00:00:04", "Unencrypted_Honeypot", wifi.SecurityOpen, 66),
		wifi.NewNetwork("02:00:5e:00:00:05", "Dunder MiffLAN", wifi.SecurityWPA2, 58),
		wifi.NewNetwork("02:00:5e:00:00:06", "Police Surveillance 2", wifi.SecurityWPA2, 48),
		wifi.NewNetwork("02:00:5e:00:00:07", "I Believe Wi Can Fi", wifi.SecurityWPA, 23),
		wifi.NewNetwork("02:00:5e:00:00:08", "Hot singles in your area", wifi.SecurityWPA3, 30),
		wifi.NewNetwork("02:00:5e:00:00:09", "Password is password", wifi.SecurityWPA2, 87),
		wifi.NewNetwork("02:00:5e:00:00:0a", "TacoBoutAGoodSignal", wifi.SecurityWPA2, 99),
		wifi.NewNetwork("00:11:22:33:44:55", "Multi-AP Network", wifi.SecurityWPA2, 80),
		wifi.NewNetwork("aa:bb:cc:dd:ee:ff", "Multi-AP Network", wifi.SecurityWPA2, 60),
		wifi.NewNetwork("11:22:33:44:55:66", "Multi-AP Network", wifi.SecurityWPA2, 40),
		wifi.NewNetwork("02:00:5e:00:00:0b", "Corporate Fortress", wifi.SecurityWPA2Enterprise, 54),
	}
	profiles := []Profile{
		{SSID: "HideYoKidsHideYoWiFi", Secret: "hidden", AutoConnect: true},
		{SSID: "GET off my LAN", AutoConnect: false},
		{SSID: "Password is password", Secret: "password", AutoConnect: true},
	}
	return &Adapter{
		Visible:     visible,
		Profiles:    profiles,
		Available:   true,
		ActionSleep: DefaultActionSleep,
	}
}

// Update runs fn with the adapter locked.
func (m *Adapter) Update(fn func(m *Adapter)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// Calls returns how many times the named method was invoked.
func (m *Adapter) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// enter records the call, applies PanicOn and sleeps outside the lock.
func (m *Adapter) enter(ctx context.Context, method string, extra time.Duration) error {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[method]++
	sleep := m.ActionSleep + extra
	panicking := m.PanicOn == method
	m.mu.Unlock()

	if panicking {
		panic(fmt.Sprintf("mock: %s exploded", method))
	}
	if sleep <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Adapter) Name() string { return "mock" }

func (m *Adapter) IsAvailable(ctx context.Context) bool {
	if err := m.enter(ctx, "IsAvailable", 0); err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Available
}

func (m *Adapter) StartScan(ctx context.Context) error {
	if err := m.enter(ctx, "StartScan", 0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScanError != nil {
		return m.ScanError
	}
	return nil
}

// Shuffle re-randomizes visible signal strengths, like a fresh scan would.
func (m *Adapter) Shuffle(r *rand.Rand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Visible {
		m.Visible[i].SignalStrength = r.Intn(70) + 30
	}
}

func (m *Adapter) AvailableNetworks(ctx context.Context) ([]wifi.Network, error) {
	if err := m.enter(ctx, "AvailableNetworks", 0); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	networks := make([]wifi.Network, len(m.Visible))
	copy(networks, m.Visible)
	return networks, nil
}

func (m *Adapter) CurrentNetwork(ctx context.Context) (*wifi.Network, error) {
	if err := m.enter(ctx, "CurrentNetwork", 0); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CurrentError != nil {
		return nil, m.CurrentError
	}
	if m.CurrentBSSID == "" {
		return nil, nil
	}
	for _, n := range m.Visible {
		if !wifi.SameBSSID(n.BSSID, m.CurrentBSSID) {
			continue
		}
		if len(m.Signals) > 0 {
			n.SignalStrength = m.Signals[0]
			if len(m.Signals) > 1 {
				m.Signals = m.Signals[1:]
			}
		}
		return &n, nil
	}
	return nil, nil
}

func (m *Adapter) SavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	if err := m.enter(ctx, "SavedNetworks", 0); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SavedError != nil {
		return nil, m.SavedError
	}
	var networks []wifi.Network
	for _, p := range m.Profiles {
		n := wifi.NewNetwork(wifi.SyntheticBSSID(p.SSID), p.SSID, wifi.SecurityUnknown, 0)
		n.Saved = true
		n.Settings.AutoConnect = p.AutoConnect
		networks = append(networks, n)
	}
	return networks, nil
}

// Connect joins the strongest visible radio with the given SSID. Secured
// networks need the stored secret, or any password when no profile exists.
func (m *Adapter) Connect(ctx context.Context, ssid string, password string) error {
	m.mu.Lock()
	extra := m.ConnectSleep
	m.mu.Unlock()
	if err := m.enter(ctx, "Connect", extra); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.ConnectErrors) > 0 {
		err := m.ConnectErrors[0]
		m.ConnectErrors = m.ConnectErrors[1:]
		if err != nil {
			return err
		}
	}

	var target *wifi.Network
	for i, n := range m.Visible {
		if n.SSID == ssid && (target == nil || n.SignalStrength > target.SignalStrength) {
			target = &m.Visible[i]
		}
	}
	if target == nil {
		return fmt.Errorf("cannot join unknown network %s: %w", ssid, wifi.ErrNotFound)
	}

	// "Act on first match" logic for ambiguity.
	profile := -1
	for i, p := range m.Profiles {
		if p.SSID == ssid {
			profile = i
			break
		}
	}
	if target.Security != wifi.SecurityOpen {
		switch {
		case profile >= 0 && m.Profiles[profile].Secret != "" && password != "" && password != m.Profiles[profile].Secret:
			return fmt.Errorf("wrong password for %s: %w", ssid, wifi.ErrAuthenticationFailed)
		case profile < 0 && password == "":
			return fmt.Errorf("no secrets for %s: %w", ssid, wifi.ErrAuthenticationFailed)
		}
	}

	if profile < 0 {
		m.Profiles = append(m.Profiles, Profile{SSID: ssid, Secret: password, AutoConnect: true})
	} else if password != "" {
		m.Profiles[profile].Secret = password
	}
	m.CurrentBSSID = target.BSSID
	return nil
}

func (m *Adapter) Disconnect(ctx context.Context) error {
	if err := m.enter(ctx, "Disconnect", 0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DisconnectError != nil {
		return m.DisconnectError
	}
	m.CurrentBSSID = ""
	return nil
}
