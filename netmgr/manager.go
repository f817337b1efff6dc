// Package netmgr orchestrates scans and the connection lifecycle on top of
// a platform wifi service: timeouts, retries, signal monitoring, redirects,
// saved networks and settings, reported through an ordered event stream.
//
// All state is owned by a single event-loop goroutine. Public methods submit
// closures to the loop; platform calls run on worker goroutines and post
// their results back, so the loop never waits on a subprocess.
package netmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shazow/wifimgr/internal/store"
	"github.com/shazow/wifimgr/wifi"
)

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("network manager closed")

// Record keys in the store.
const (
	KeySavedNetworks = "saved_networks"
	KeySettings      = "settings"
	KeyLastConnected = "last_connected"
)

// Service is the platform facade driven by the Manager.
// *system.Service implements it.
type Service interface {
	IsAvailable(ctx context.Context) bool
	StartScan(ctx context.Context) error
	AvailableNetworks(ctx context.Context) ([]wifi.Network, error)
	SavedNetworks(ctx context.Context) ([]wifi.Network, error)
	CurrentNetwork(ctx context.Context) *wifi.Network
	Connect(ctx context.Context, ssid string, password string) error
	Disconnect(ctx context.Context) error
}

// Credentials stores network passwords by BSSID.
// *credentials.Store implements it.
type Credentials interface {
	Save(ctx context.Context, bssid string, password string) error
	Get(ctx context.Context, bssid string) (string, error)
	Has(ctx context.Context, bssid string) bool
	Delete(ctx context.Context, bssid string) error
}

// LastConnected marks the most recent successful connection.
type LastConnected struct {
	BSSID     string    `json:"bssid" yaml:"bssid"`
	SSID      string    `json:"ssid" yaml:"ssid"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// ScanState describes the current or most recent scan.
type ScanState struct {
	IsScanning   bool          `json:"isScanning" yaml:"isScanning"`
	Progress     int           `json:"progress" yaml:"progress"`
	ScanID       string        `json:"scanId,omitempty" yaml:"scanId,omitempty"`
	LastScanTime time.Time     `json:"lastScanTime,omitempty" yaml:"lastScanTime,omitempty"`
	Duration     time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Session is a snapshot of the active connection session.
type Session struct {
	ConnectionID   string       `json:"connectionId" yaml:"connectionId"`
	Network        wifi.Network `json:"network" yaml:"network"`
	StartTime      time.Time    `json:"startTime" yaml:"startTime"`
	RetryCount     int          `json:"retryCount" yaml:"retryCount"`
	IPAddress      string       `json:"ipAddress,omitempty" yaml:"ipAddress,omitempty"`
	SignalStrength int          `json:"signalStrength" yaml:"signalStrength"`
	Simulated      bool         `json:"simulated" yaml:"simulated"`
}

// Snapshot is a consistent copy of the Manager's state.
type Snapshot struct {
	Status    wifi.ConnectionStatus `json:"status" yaml:"status"`
	Scan      ScanState             `json:"scan" yaml:"scan"`
	Session   *Session              `json:"session,omitempty" yaml:"session,omitempty"`
	Available []wifi.Network        `json:"available" yaml:"available"`
	Saved     []wifi.Network        `json:"saved" yaml:"saved"`
	Settings  Settings              `json:"settings" yaml:"settings"`
}

// Options configure a Manager.
type Options struct {
	Service     Service
	Store       store.Store
	Credentials Credentials
	Logger      *slog.Logger

	// Simulator selects when the synthetic path is used. Defaults to
	// SimulatorFallback.
	Simulator SimulatorMode
	// Seed seeds the default simulator.
	Seed int64
	// Sim overrides the default simulator, e.g. to shorten its delays.
	Sim *Simulator
	// LevelVar, if set, follows Settings.LogLevel.
	LevelVar *slog.LevelVar
	// NewID generates scan and connection IDs. Defaults to uuid.NewString.
	NewID func() string
}

// Manager is the network manager. Create it with New and release it with
// Close.
type Manager struct {
	svc      Service
	records  store.Store
	creds    Credentials
	logger   *slog.Logger
	mode     SimulatorMode
	sim      *Simulator
	levelVar *slog.LevelVar
	newID    func() string
	events   *broker

	ops       chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	settings  Settings
	saved     []wifi.Network
	available []wifi.Network
	scan      ScanState
	scanStart time.Time
	status    wifi.ConnectionStatus
	session   *session
	writes    map[chan struct{}]struct{}
}

// New loads settings and saved networks from the store (persisting default
// settings when absent) and starts the event loop.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Service == nil || opts.Store == nil || opts.Credentials == nil {
		return nil, fmt.Errorf("netmgr: service, store and credentials are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Simulator == "" {
		opts.Simulator = SimulatorFallback
	}
	if opts.Sim == nil {
		opts.Sim = NewSimulator(opts.Seed)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	mctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		svc:      opts.Service,
		records:  opts.Store,
		creds:    opts.Credentials,
		logger:   opts.Logger,
		mode:     opts.Simulator,
		sim:      opts.Sim,
		levelVar: opts.LevelVar,
		newID:    opts.NewID,
		events:   newBroker(),
		ops:      make(chan func()),
		ctx:      mctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   wifi.StatusDisconnected,
		writes:   make(map[chan struct{}]struct{}),
	}

	if err := m.loadSettings(ctx); err != nil {
		cancel()
		return nil, err
	}
	if err := m.loadSaved(ctx); err != nil {
		cancel()
		return nil, err
	}
	m.applyLogLevel(m.settings.LogLevel)

	go m.run()
	return m, nil
}

func (m *Manager) loadSettings(ctx context.Context) error {
	settings := DefaultSettings()
	err := m.records.Get(ctx, KeySettings, &settings)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := m.records.Set(ctx, KeySettings, settings); err != nil {
			return fmt.Errorf("persist default settings: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		m.logger.Warn("persisted settings are invalid, using defaults", "error", err)
		settings = DefaultSettings()
	}
	m.settings = settings
	return nil
}

func (m *Manager) loadSaved(ctx context.Context) error {
	var saved []wifi.Network
	err := m.records.Get(ctx, KeySavedNetworks, &saved)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load saved networks: %w", err)
	}
	for i := range saved {
		saved[i].BSSID = wifi.NormalizeBSSID(saved[i].BSSID)
		saved[i].Saved = true
	}
	m.saved = saved
	return nil
}

func (m *Manager) applyLogLevel(name string) {
	if m.levelVar == nil {
		return
	}
	level, err := ParseLevel(name)
	if err != nil {
		m.logger.Warn("ignoring log level", "error", err)
		return
	}
	m.levelVar.Set(level)
}

func (m *Manager) run() {
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.done:
			return
		}
	}
}

// call runs fn on the loop and waits for it to finish.
func (m *Manager) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case m.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// send queues fn on the loop from a worker goroutine or timer. Sends from
// one goroutine run in order. It must not be called from the loop.
func (m *Manager) send(fn func()) {
	select {
	case m.ops <- fn:
	case <-m.done:
	}
}

// emit publishes an event. Loop only.
func (m *Manager) emit(e Event) {
	e.Time = time.Now()
	m.logger.Debug("event", "type", e.Type)
	m.events.publish(e)
}

// Subscribe returns a channel receiving every subsequent event in emission
// order, and a function to stop the subscription. Slow subscribers never
// block the Manager.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// Start adopts the operating system's current association, or reconnects
// to the last connected network when auto-reconnect is enabled for it.
func (m *Manager) Start(ctx context.Context) error {
	if m.mode != SimulatorAlways {
		if current := m.svc.CurrentNetwork(ctx); current != nil {
			return m.adopt(ctx, *current)
		}
	}

	var (
		settings Settings
		saved    []wifi.Network
	)
	if err := m.call(ctx, func() {
		settings = m.settings
		saved = slices.Clone(m.saved)
	}); err != nil {
		return err
	}
	if !settings.AutoReconnect {
		return nil
	}

	var last LastConnected
	if err := m.records.Get(ctx, KeyLastConnected, &last); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("failed to read last connected network", "error", err)
		}
		return nil
	}
	for _, n := range saved {
		if !wifi.SameBSSID(n.BSSID, last.BSSID) || !n.Settings.AutoConnect {
			continue
		}
		network := n
		m.logger.Info("reconnecting to last network", "ssid", network.SSID, "bssid", network.BSSID)
		go func() {
			if err := m.Connect(m.ctx, network, ConnectOptions{}); err != nil {
				m.logger.Warn("auto-reconnect failed", "ssid", network.SSID, "error", err)
			}
		}()
		break
	}
	return nil
}

func (m *Manager) adopt(ctx context.Context, current wifi.Network) error {
	return m.call(ctx, func() {
		if m.session != nil {
			return
		}
		network := m.withSavedSettings(current)
		s := &session{
			id:       m.newID(),
			network:  network,
			start:    time.Now(),
			signal:   network.SignalStrength,
			reported: true,
		}
		m.session = s
		m.status = wifi.StatusConnected
		m.logger.Info("adopted existing connection", "ssid", network.SSID, "bssid", network.BSSID)
		m.startMonitor(s)
	})
}

// Close stops all session tasks and the event loop, and closes every
// subscription.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		_ = m.call(context.Background(), func() {
			if m.session != nil {
				m.session.stopTasks()
				m.session.deliver(ErrClosed)
			}
		})
		_ = m.Sync(context.Background())
		m.cancel()
		close(m.done)
		m.events.closeAll()
	})
	return nil
}

// snapshot runs fn on the loop, ignoring cancellation.
func (m *Manager) snapshot(fn func()) {
	_ = m.call(context.Background(), fn)
}

// State returns a consistent copy of the Manager's state.
func (m *Manager) State() Snapshot {
	var s Snapshot
	m.snapshot(func() {
		s = Snapshot{
			Status:    m.status,
			Scan:      m.scan,
			Session:   m.sessionInfo(),
			Available: slices.Clone(m.available),
			Saved:     slices.Clone(m.saved),
			Settings:  m.settings,
		}
	})
	return s
}

// Status returns the connection status.
func (m *Manager) Status() wifi.ConnectionStatus {
	status := wifi.StatusDisconnected
	m.snapshot(func() { status = m.status })
	return status
}

// ScanState returns the current or most recent scan state.
func (m *Manager) ScanState() ScanState {
	var scan ScanState
	m.snapshot(func() { scan = m.scan })
	return scan
}

// Session returns the active session, or nil.
func (m *Manager) Session() *Session {
	var s *Session
	m.snapshot(func() { s = m.sessionInfo() })
	return s
}

func (m *Manager) sessionInfo() *Session {
	s := m.session
	if s == nil {
		return nil
	}
	return &Session{
		ConnectionID:   s.id,
		Network:        s.network,
		StartTime:      s.start,
		RetryCount:     s.retryCount,
		IPAddress:      s.ipAddress,
		SignalStrength: s.signal,
		Simulated:      s.simulated,
	}
}

// AvailableNetworks returns the networks found by the last scan, reconciled
// with the saved set.
func (m *Manager) AvailableNetworks() []wifi.Network {
	var networks []wifi.Network
	m.snapshot(func() { networks = slices.Clone(m.available) })
	return networks
}

// SavedNetworks returns the saved set.
func (m *Manager) SavedNetworks() []wifi.Network {
	var networks []wifi.Network
	m.snapshot(func() { networks = slices.Clone(m.saved) })
	return networks
}

// CurrentNetwork returns the connected network, or nil.
func (m *Manager) CurrentNetwork() *wifi.Network {
	var current *wifi.Network
	m.snapshot(func() {
		if m.session != nil && m.status == wifi.StatusConnected {
			n := m.session.network
			current = &n
		}
	})
	return current
}

// SystemSavedNetworks lists the profiles stored by the operating system.
func (m *Manager) SystemSavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	if m.mode == SimulatorAlways {
		return nil, nil
	}
	return m.svc.SavedNetworks(ctx)
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings {
	var settings Settings
	m.snapshot(func() { settings = m.settings })
	return settings
}

// UpdateSettings validates and replaces the settings as a whole, persists
// them and emits settingsUpdated.
func (m *Manager) UpdateSettings(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	var err error
	if callErr := m.call(ctx, func() {
		if err = m.records.Set(m.ctx, KeySettings, settings); err != nil {
			return
		}
		old := m.settings
		m.settings = settings
		m.applyLogLevel(settings.LogLevel)
		next := settings
		m.emit(Event{Type: EventSettingsUpdated, OldSettings: &old, NewSettings: &next})
	}); callErr != nil {
		return callErr
	}
	if err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}
