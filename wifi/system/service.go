// Package system selects the platform adapter for the host and wraps it in
// a facade that never panics and normalizes errors.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/shazow/wifimgr/wifi"
	"github.com/shazow/wifimgr/wifi/mock"
)

// Service is the only component that touches a wifi.Adapter. Every
// operation checks availability first; reads degrade and writes report
// wifi.ErrNotAvailable when the adapter is unusable.
type Service struct {
	adapter  wifi.Adapter
	platform string
	logger   *slog.Logger
}

// New wraps adapter. A nil adapter yields a permanently unavailable service.
func New(platform string, adapter wifi.Adapter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		adapter:  adapter,
		platform: platform,
		logger:   logger.With("platform", platform),
	}
}

// NewForHost picks the adapter for the running operating system.
func NewForHost(runner wifi.Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	adapter := platformAdapter(runner, logger)
	if adapter == nil {
		logger.Warn("no wifi adapter for this platform", "os", runtime.GOOS)
	}
	return New(runtime.GOOS, adapter, logger)
}

// NewForBackend builds a service around the adapter called name. "auto"
// and "" pick the host default and "mock" the simulated radio. Other names
// are platform specific, e.g. "networkmanager" and "iwd" on linux.
func NewForBackend(name string, runner wifi.Runner, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch name {
	case "", "auto":
		return NewForHost(runner, logger), nil
	case "mock":
		return New("mock", mock.New(), logger), nil
	}
	adapter, err := namedAdapter(name, runner, logger)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	return New(runtime.GOOS, adapter, logger), nil
}

// Platform returns the host platform name, e.g. "linux".
func (s *Service) Platform() string { return s.platform }

// Adapter returns the wrapped adapter, which may be nil.
func (s *Service) Adapter() wifi.Adapter { return s.adapter }

// AdapterName returns the adapter's name, or "none".
func (s *Service) AdapterName() string {
	if s.adapter == nil {
		return "none"
	}
	return s.adapter.Name()
}

// guard runs fn, converting a panic into an error wrapping fallback.
func (s *Service) guard(op string, fallback error, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("adapter panicked", "op", op, "panic", r)
			err = fmt.Errorf("%s: adapter panicked: %v: %w", op, r, fallback)
		}
	}()
	if err := fn(); err != nil {
		return normalize(op, fallback, err)
	}
	return nil
}

// normalize keeps taxonomy and context errors as they are and wraps
// anything else in fallback.
func normalize(op string, fallback error, err error) error {
	if wifi.IsKnown(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, fallback, err)
}

// IsAvailable reports whether the adapter exists and is usable. It never
// panics and fails closed.
func (s *Service) IsAvailable(ctx context.Context) bool {
	if s.adapter == nil {
		return false
	}
	available := false
	err := s.guard("availability check", wifi.ErrNotAvailable, func() error {
		available = s.adapter.IsAvailable(ctx)
		return nil
	})
	if err != nil {
		return false
	}
	return available
}

func (s *Service) unavailable(op string) error {
	s.logger.Debug("adapter unavailable", "op", op)
	return fmt.Errorf("%s: %w", op, wifi.ErrNotAvailable)
}

// StartScan triggers a platform scan.
func (s *Service) StartScan(ctx context.Context) error {
	if !s.IsAvailable(ctx) {
		return s.unavailable("start scan")
	}
	return s.guard("start scan", wifi.ErrOperationFailed, func() error {
		return s.adapter.StartScan(ctx)
	})
}

// AvailableNetworks lists visible networks.
func (s *Service) AvailableNetworks(ctx context.Context) ([]wifi.Network, error) {
	if !s.IsAvailable(ctx) {
		return nil, s.unavailable("cannot enumerate available networks")
	}
	var networks []wifi.Network
	err := s.guard("cannot enumerate available networks", wifi.ErrOperationFailed, func() (err error) {
		networks, err = s.adapter.AvailableNetworks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return networks, nil
}

// SavedNetworks lists profiles stored by the operating system.
func (s *Service) SavedNetworks(ctx context.Context) ([]wifi.Network, error) {
	if !s.IsAvailable(ctx) {
		return nil, s.unavailable("cannot enumerate saved networks")
	}
	var networks []wifi.Network
	err := s.guard("cannot enumerate saved networks", wifi.ErrOperationFailed, func() (err error) {
		networks, err = s.adapter.SavedNetworks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return networks, nil
}

// CurrentNetwork returns the associated network, or nil when there is none
// or it cannot be determined.
func (s *Service) CurrentNetwork(ctx context.Context) *wifi.Network {
	if !s.IsAvailable(ctx) {
		return nil
	}
	var current *wifi.Network
	err := s.guard("current network", wifi.ErrOperationFailed, func() (err error) {
		current, err = s.adapter.CurrentNetwork(ctx)
		return err
	})
	if err != nil {
		s.logger.Debug("failed to read current network", "error", err)
		return nil
	}
	return current
}

// Connect joins the network with the given SSID.
func (s *Service) Connect(ctx context.Context, ssid string, password string) error {
	if !s.IsAvailable(ctx) {
		return s.unavailable("connect")
	}
	return s.guard("connect", wifi.ErrConnectionFailed, func() error {
		return s.adapter.Connect(ctx, ssid, password)
	})
}

// Disconnect drops the current association.
func (s *Service) Disconnect(ctx context.Context) error {
	if !s.IsAvailable(ctx) {
		return s.unavailable("disconnect")
	}
	return s.guard("disconnect", wifi.ErrOperationFailed, func() error {
		return s.adapter.Disconnect(ctx)
	})
}
