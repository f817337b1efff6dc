package netmgr

import (
	"context"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

// WeakSignalThreshold is the strength below which weakSignal is emitted.
const WeakSignalThreshold = 20

// signalChange filters a reading through the noise threshold: changes of at
// most threshold keep prev.
func signalChange(prev, reading, threshold int) (int, bool) {
	delta := reading - prev
	if delta < 0 {
		delta = -delta
	}
	if delta <= threshold {
		return prev, false
	}
	return reading, true
}

// startMonitor polls the connected network's signal until the session ends.
// Loop only.
func (m *Manager) startMonitor(s *session) {
	ctx, cancel := context.WithCancel(m.ctx)
	s.stopMonitor = cancel
	interval := m.settings.SignalMonitorInterval
	simulated := s.simulated || m.mode == SimulatorAlways
	network := s.network

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if simulated {
				m.send(func() {
					if m.session == s {
						m.applySignal(s, m.sim.Perturb(s.signal))
					}
				})
				continue
			}

			current := m.svc.CurrentNetwork(ctx)
			if current == nil || (!current.Is(network) && current.SSID != network.SSID) {
				m.logger.Debug("monitored network not associated", "ssid", network.SSID)
				continue
			}
			reading := current.SignalStrength
			m.send(func() {
				if m.session == s {
					m.applySignal(s, reading)
				}
			})
		}
	}()
}

// applySignal records a signal reading for the session. Loop only.
func (m *Manager) applySignal(s *session, reading int) {
	next, changed := signalChange(s.signal, reading, m.settings.SignalNoiseThreshold)
	if !changed {
		return
	}
	s.signal = next
	s.network.SignalStrength = next
	for i := range m.available {
		if m.available[i].Is(s.network) {
			m.available[i].SignalStrength = next
		}
	}

	network := s.network
	m.emit(Event{Type: EventSignalStrengthUpdate, Network: &network, SignalStrength: next})
	if next < WeakSignalThreshold {
		m.logger.Info("weak signal", "ssid", network.SSID, "signal", next)
		m.emit(Event{Type: EventWeakSignal, Network: &network, SignalStrength: next})
	}
}

// scheduleRedirect emits redirectScheduled and, after the timeout, redirect,
// when a redirect URL is configured for the network or globally. Loop only.
func (m *Manager) scheduleRedirect(s *session) {
	url := s.network.Settings.RedirectURL
	if url == "" {
		url = m.settings.DefaultRedirectURL
	}
	if url == "" {
		return
	}
	timeout := s.network.Settings.RedirectTimeout
	if timeout <= 0 {
		timeout = m.settings.RedirectTimeout
	}

	network := s.network
	m.emit(Event{Type: EventRedirectScheduled, URL: url, Network: &network})
	s.redirect = time.AfterFunc(timeout, func() {
		m.send(func() {
			if m.session != s || m.status != wifi.StatusConnected {
				return
			}
			m.emit(Event{Type: EventRedirect, URL: url, Network: &network})
		})
	})
}
