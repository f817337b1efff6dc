package netmgr

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

// catalogue is the fixed part of every simulated scan.
var catalogue = []wifi.Network{
	wifi.NewNetwork("00:11:22:33:44:55", "HomeNetwork", wifi.SecurityWPA2, 85),
	wifi.NewNetwork("00:11:22:33:44:56", "HomeNetwork_5G", wifi.SecurityWPA2, 78),
	wifi.NewNetwork("66:77:88:99:aa:bb", "CoffeeShop_Guest", wifi.SecurityOpen, 62),
	wifi.NewNetwork("aa:bb:cc:dd:ee:ff", "CorpNet", wifi.SecurityWPA2Enterprise, 54),
	wifi.NewNetwork("12:34:56:78:9a:bc", "Neighbor_WiFi", wifi.SecurityWPA3, 31),
	wifi.NewNetwork("de:ad:be:ef:00:01", "OldRouter", wifi.SecurityWEP, 18),
}

var randomSecurity = []wifi.SecurityType{wifi.SecurityOpen, wifi.SecurityWPA, wifi.SecurityWPA2, wifi.SecurityWPA3}

// Simulator is the deterministic, seedable stand-in for the platform when
// no adapter is used.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand

	// ConnectDelay is how long a simulated association takes.
	ConnectDelay time.Duration
	// AuthDelay is the extra time enterprise authentication takes.
	AuthDelay time.Duration
}

// NewSimulator returns a Simulator seeded with seed.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		rng:          rand.New(rand.NewSource(seed)),
		ConnectDelay: 1500 * time.Millisecond,
		AuthDelay:    500 * time.Millisecond,
	}
}

// Networks returns the fixed catalogue plus 1-3 random networks.
func (s *Simulator) Networks() []wifi.Network {
	s.mu.Lock()
	defer s.mu.Unlock()

	networks := make([]wifi.Network, len(catalogue), len(catalogue)+3)
	copy(networks, catalogue)
	for i, extra := 0, s.rng.Intn(3)+1; i < extra; i++ {
		bssid := fmt.Sprintf("02:5a:%02x:%02x:%02x:%02x", s.rng.Intn(256), s.rng.Intn(256), s.rng.Intn(256), s.rng.Intn(256))
		ssid := fmt.Sprintf("Network_%04d", s.rng.Intn(10000))
		security := randomSecurity[s.rng.Intn(len(randomSecurity))]
		networks = append(networks, wifi.NewNetwork(bssid, ssid, security, s.rng.Intn(90)+10))
	}
	return networks
}

// Perturb returns strength moved by up to ±10, clamped to 0-100.
func (s *Simulator) Perturb(strength int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wifi.ClampStrength(strength + s.rng.Intn(21) - 10)
}

// IPAddress returns a private address for a simulated association.
func (s *Simulator) IPAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("192.168.1.%d", s.rng.Intn(200)+20)
}

func (s *Simulator) fails(rate float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect simulates an association. onAuth is called before the
// authentication step of enterprise networks; it may be nil.
func (s *Simulator) Connect(ctx context.Context, network wifi.Network, failureRate float64, onAuth func()) error {
	if err := sleepCtx(ctx, s.ConnectDelay); err != nil {
		return err
	}
	if network.Security == wifi.SecurityWPA2Enterprise {
		if onAuth != nil {
			onAuth()
		}
		if err := sleepCtx(ctx, s.AuthDelay); err != nil {
			return err
		}
		if s.fails(failureRate) {
			return fmt.Errorf("simulated: %w", wifi.ErrAuthenticationFailed)
		}
		return nil
	}
	if s.fails(failureRate) {
		return fmt.Errorf("simulated: %w", wifi.ErrConnectionFailed)
	}
	return nil
}
