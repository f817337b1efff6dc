package netmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shazow/wifimgr/internal/store"
	"github.com/shazow/wifimgr/wifi"
)

// withSavedSettings applies the saved record's settings to network. Loop only.
func (m *Manager) withSavedSettings(network wifi.Network) wifi.Network {
	for _, saved := range m.saved {
		if saved.Is(network) {
			network.Saved = true
			network.Settings = saved.Settings
			if network.Security == wifi.SecurityUnknown {
				network.Security = saved.Security
			}
			return network
		}
	}
	return network
}

func (m *Manager) savedIndex(bssid string) int {
	return slices.IndexFunc(m.saved, func(n wifi.Network) bool {
		return wifi.SameBSSID(n.BSSID, bssid)
	})
}

// setSaved persists next as the whole saved set and refreshes the cached
// scan results. Loop only.
func (m *Manager) setSaved(next []wifi.Network) error {
	if err := m.records.Set(m.ctx, KeySavedNetworks, next); err != nil {
		return fmt.Errorf("persist saved networks: %w", err)
	}
	m.saved = next
	m.available = wifi.Reconcile(m.available, m.saved)
	wifi.SortNetworks(m.available)
	return nil
}

// saveNetwork adds or replaces network in the saved set, stores password if
// given, and emits networkSaved. Unless overwrite is set, an existing
// record keeps its settings. Loop only.
func (m *Manager) saveNetwork(network wifi.Network, password string, overwrite bool) (wifi.Network, error) {
	network.BSSID = wifi.NormalizeBSSID(network.BSSID)
	network.Saved = true
	if network.Type == "" {
		network.Type = wifi.NetworkTypeWiFi
	}

	next := slices.Clone(m.saved)
	if i := m.savedIndex(network.BSSID); i >= 0 {
		if !overwrite {
			network.Settings = next[i].Settings
		}
		next[i] = network
	} else {
		next = append(next, network)
	}
	if err := m.setSaved(next); err != nil {
		return network, err
	}
	saved := network
	announce := func() { m.emit(Event{Type: EventNetworkSaved, Network: &saved}) }
	if password == "" {
		announce()
	} else {
		m.storeCredentials(network, password, announce)
	}
	return network, nil
}

// storeCredentials saves password on a worker goroutine, since key
// derivation is slow, and then runs then on the loop. Loop only.
func (m *Manager) storeCredentials(network wifi.Network, password string, then func()) {
	done := make(chan struct{})
	m.writes[done] = struct{}{}
	go func() {
		err := m.creds.Save(m.ctx, network.BSSID, password)
		close(done)
		m.send(func() {
			delete(m.writes, done)
			if err != nil {
				m.logger.Warn("failed to store credentials", "ssid", network.SSID, "error", err)
			}
			then()
		})
	}()
}

// Sync blocks until every credential write started before the call has
// finished.
func (m *Manager) Sync(ctx context.Context) error {
	var pending []chan struct{}
	if err := m.call(ctx, func() {
		for done := range m.writes {
			pending = append(pending, done)
		}
	}); err != nil {
		return err
	}
	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SaveNetwork adds network, with its settings, to the saved set and stores
// password when given. The networkSaved event follows once the password is
// stored.
func (m *Manager) SaveNetwork(ctx context.Context, network wifi.Network, password string) error {
	if wifi.NormalizeBSSID(network.BSSID) == "" {
		return fmt.Errorf("save network %q: missing bssid: %w", network.SSID, wifi.ErrOperationFailed)
	}
	var err error
	if callErr := m.call(ctx, func() {
		_, err = m.saveNetwork(network, password, true)
	}); callErr != nil {
		return callErr
	}
	return err
}

// UpdateNetworkSettings replaces the settings of a saved network and emits
// networkSettingsUpdated. It fails with wifi.ErrNotFound if the network is
// not saved.
func (m *Manager) UpdateNetworkSettings(ctx context.Context, bssid string, settings wifi.NetworkSettings) (wifi.Network, error) {
	var (
		updated wifi.Network
		err     error
	)
	if callErr := m.call(ctx, func() {
		i := m.savedIndex(bssid)
		if i < 0 {
			err = fmt.Errorf("update settings for %s: %w", bssid, wifi.ErrNotFound)
			return
		}
		next := slices.Clone(m.saved)
		next[i].Settings = settings
		if err = m.setSaved(next); err != nil {
			return
		}
		updated = next[i]
		if m.session != nil && m.session.network.Is(updated) {
			m.session.network.Settings = settings
		}
		network := updated
		m.emit(Event{Type: EventNetworkSettingsUpdated, Network: &network})
	}); callErr != nil {
		return wifi.Network{}, callErr
	}
	return updated, err
}

// Forget removes a network from the saved set and deletes its credentials,
// disconnecting first if it is the active network. Forgetting a network that
// is neither saved nor active only clears stray credentials.
func (m *Manager) Forget(ctx context.Context, bssid string) error {
	bssid = wifi.NormalizeBSSID(bssid)
	if err := m.Sync(ctx); err != nil {
		return err
	}

	var active, saved bool
	if err := m.call(ctx, func() {
		active = m.session != nil && wifi.SameBSSID(m.session.network.BSSID, bssid)
		saved = m.savedIndex(bssid) >= 0
	}); err != nil {
		return err
	}

	if !active && !saved {
		if err := m.creds.Delete(ctx, bssid); err != nil {
			m.logger.Debug("no credentials to forget", "bssid", bssid, "error", err)
		}
		return nil
	}

	if active {
		if err := m.Disconnect(ctx); err != nil {
			m.logger.Warn("failed to disconnect forgotten network", "bssid", bssid, "error", err)
		}
	}
	if err := m.creds.Delete(ctx, bssid); err != nil {
		m.logger.Warn("failed to delete credentials", "bssid", bssid, "error", err)
	}

	var err error
	if callErr := m.call(ctx, func() {
		i := m.savedIndex(bssid)
		if i < 0 {
			return
		}
		forgotten := m.saved[i]
		forgotten.Saved = false
		next := slices.Delete(slices.Clone(m.saved), i, i+1)
		if err = m.setSaved(next); err != nil {
			return
		}
		m.clearLastConnected(bssid)
		m.logger.Info("forgot network", "ssid", forgotten.SSID, "bssid", bssid)
		m.emit(Event{Type: EventNetworkForgotten, Network: &forgotten})
	}); callErr != nil {
		return callErr
	}
	return err
}

func (m *Manager) clearLastConnected(bssid string) {
	var last LastConnected
	err := m.records.Get(m.ctx, KeyLastConnected, &last)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		m.logger.Warn("failed to read last connected network", "error", err)
		return
	}
	if !wifi.SameBSSID(last.BSSID, bssid) {
		return
	}
	if err := m.records.Delete(m.ctx, KeyLastConnected); err != nil {
		m.logger.Warn("failed to clear last connected network", "error", err)
	}
}
