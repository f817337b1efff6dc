package netmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

// ConnectOptions modify a Connect call.
type ConnectOptions struct {
	// Password overrides any stored credential.
	Password string
	// DontSave skips adding the network to the saved set on success.
	DontSave bool
}

// session is the loop-owned state of one connection session: the first
// attempt, its retries, and once connected, the monitor and redirect.
type session struct {
	id        string
	network   wifi.Network
	password  string
	dontSave  bool
	start     time.Time
	simulated bool

	retryCount int
	ipAddress  string
	signal     int

	// gen identifies the attempt in flight; stale worker results and timers
	// compare against it.
	gen        int
	attempting bool
	authed     bool

	cancelAttempt context.CancelFunc
	timeout       *time.Timer
	retry         *time.Timer
	redirect      *time.Timer
	stopMonitor   context.CancelFunc

	// result receives the outcome of the first attempt exactly once.
	result   chan error
	reported bool
}

func (s *session) stopTasks() {
	if s.cancelAttempt != nil {
		s.cancelAttempt()
	}
	for _, t := range []*time.Timer{s.timeout, s.retry, s.redirect} {
		if t != nil {
			t.Stop()
		}
	}
	if s.stopMonitor != nil {
		s.stopMonitor()
	}
	s.attempting = false
}

// deliver reports the first attempt's outcome to the Connect caller.
func (s *session) deliver(err error) {
	if s.reported {
		return
	}
	s.reported = true
	s.result <- err
}

var errSessionEnded = fmt.Errorf("connection attempt abandoned: %w", context.Canceled)

// Connect starts a connection session to network and returns once the first
// attempt succeeds or fails; retries continue in the background and are
// reported as events.
//
// A network that requires a password and has none stored fails with
// wifi.ErrPasswordRequired before any event is emitted. Connecting to the
// network that is already connected is a no-op; any other active session is
// disconnected first.
func (m *Manager) Connect(ctx context.Context, network wifi.Network, opts ConnectOptions) error {
	network.BSSID = wifi.NormalizeBSSID(network.BSSID)
	if network.Type == "" {
		network.Type = wifi.NetworkTypeWiFi
	}

	password, err := m.resolvePassword(ctx, network, opts.Password)
	if err != nil {
		return err
	}

	var busy, already, teardown bool
	if err := m.call(ctx, func() {
		s := m.session
		switch {
		case s == nil:
		case s.attempting:
			busy = true
		case m.status == wifi.StatusConnected && s.network.Is(network):
			already = true
		default:
			teardown = true
		}
	}); err != nil {
		return err
	}
	switch {
	case busy:
		return fmt.Errorf("connect to %s: %w", network.SSID, wifi.ErrConnectionInProgress)
	case already:
		m.logger.Info("already connected", "ssid", network.SSID, "bssid", network.BSSID)
		return nil
	case teardown:
		if err := m.Disconnect(ctx); err != nil {
			m.logger.Warn("failed to disconnect previous network", "error", err)
		}
	}

	var result chan error
	if err := m.call(ctx, func() {
		if m.session != nil {
			if m.session.attempting {
				busy = true
				return
			}
			m.session.stopTasks()
			m.session.deliver(errSessionEnded)
		}
		s := &session{
			id:       m.newID(),
			network:  m.withSavedSettings(network),
			password: password,
			dontSave: opts.DontSave,
			start:    time.Now(),
			result:   make(chan error, 1),
		}
		m.session = s
		m.status = wifi.StatusConnecting
		m.logger.Info("connecting", "ssid", network.SSID, "bssid", network.BSSID, "connectionId", s.id)
		m.emit(m.sessionEvent(EventConnectionStarted, s))
		m.startAttempt(s)
		result = s.result
	}); err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("connect to %s: %w", network.SSID, wifi.ErrConnectionInProgress)
	}

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("connect to %s: %w", network.SSID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) resolvePassword(ctx context.Context, network wifi.Network, password string) (string, error) {
	if password != "" || !network.Security.RequiresPassword() {
		return password, nil
	}
	stored, err := m.creds.Get(ctx, network.BSSID)
	if err == nil && stored != "" {
		return stored, nil
	}
	if err != nil && !errors.Is(err, wifi.ErrCredentialsNotFound) {
		m.logger.Warn("failed to read stored credentials", "bssid", network.BSSID, "error", err)
	}
	return "", fmt.Errorf("connect to %s: %w", network.SSID, wifi.ErrPasswordRequired)
}

func (m *Manager) sessionEvent(t EventType, s *session) Event {
	network := s.network
	return Event{Type: t, ConnectionID: s.id, Network: &network, RetryCount: s.retryCount}
}

// live reports whether gen is the attempt in flight for the active session.
func (m *Manager) live(s *session, gen int) bool {
	return m.session == s && s.gen == gen && s.attempting
}

// startAttempt launches one association attempt. Loop only.
func (m *Manager) startAttempt(s *session) {
	s.gen++
	gen := s.gen
	s.attempting = true
	s.authed = false

	ctx, cancel := context.WithCancel(m.ctx)
	s.cancelAttempt = cancel
	timeout := m.settings.ConnectionTimeout
	s.timeout = time.AfterFunc(timeout, func() {
		m.send(func() { m.attemptTimedOut(s, gen, timeout) })
	})

	network, password := s.network, s.password
	failureRate := m.settings.SimulatedFailureRate
	simulate := m.mode == SimulatorAlways
	fallback := m.mode == SimulatorFallback

	if network.Security == wifi.SecurityWPA2Enterprise && !simulate {
		m.authenticating(s)
	}

	go func() {
		defer cancel()
		simulated := simulate
		var err error
		if !simulate {
			err = m.svc.Connect(ctx, network.SSID, password)
			if fallback && errors.Is(err, wifi.ErrNotAvailable) {
				m.logger.Info("adapter unavailable, simulating connection", "ssid", network.SSID)
				simulated = true
			}
		}
		if simulated {
			onAuth := func() {
				m.send(func() {
					if m.live(s, gen) && !s.authed {
						m.authenticating(s)
					}
				})
			}
			err = m.sim.Connect(ctx, network, failureRate, onAuth)
		}
		m.send(func() { m.finishAttempt(s, gen, simulated, err) })
	}()
}

func (m *Manager) authenticating(s *session) {
	s.authed = true
	m.status = wifi.StatusAuthenticating
	m.emit(m.sessionEvent(EventAuthenticationStarted, s))
}

func (m *Manager) attemptTimedOut(s *session, gen int, timeout time.Duration) {
	if !m.live(s, gen) {
		return
	}
	s.cancelAttempt()
	s.attempting = false
	m.logger.Warn("connection attempt timed out", "ssid", s.network.SSID, "timeout", timeout)
	m.attemptFailed(s, fmt.Errorf("no association after %s: %w", timeout, wifi.ErrConnectionTimeout))
}

func (m *Manager) finishAttempt(s *session, gen int, simulated bool, err error) {
	if !m.live(s, gen) {
		return
	}
	s.attempting = false
	s.timeout.Stop()
	s.simulated = simulated
	if err != nil {
		m.attemptFailed(s, err)
		return
	}
	m.connected(s)
}

func (m *Manager) connected(s *session) {
	m.status = wifi.StatusConnected
	s.signal = s.network.SignalStrength
	if s.simulated {
		s.ipAddress = m.sim.IPAddress()
	}
	m.logger.Info("connected", "ssid", s.network.SSID, "bssid", s.network.BSSID, "retries", s.retryCount)

	if s.retryCount > 0 {
		m.emit(m.sessionEvent(EventRetrySuccessful, s))
	} else {
		e := m.sessionEvent(EventConnectionSuccessful, s)
		e.IPAddress = s.ipAddress
		e.ConnectionTime = time.Since(s.start)
		m.emit(e)
	}
	s.deliver(nil)

	last := LastConnected{BSSID: s.network.BSSID, SSID: s.network.SSID, Timestamp: time.Now()}
	if err := m.records.Set(m.ctx, KeyLastConnected, last); err != nil {
		m.logger.Warn("failed to persist last connected network", "error", err)
	}
	if !s.dontSave {
		network := s.network
		if !network.Saved {
			network.Settings.AutoConnect = true
		}
		saved, err := m.saveNetwork(network, s.password, false)
		if err != nil {
			m.logger.Warn("failed to save network", "ssid", network.SSID, "error", err)
		} else {
			s.network.Saved = true
			s.network.Settings = saved.Settings
		}
	}

	m.startMonitor(s)
	m.scheduleRedirect(s)
}

func (m *Manager) attemptFailed(s *session, err error) {
	m.status = wifi.StatusError
	m.logger.Warn("connection attempt failed", "ssid", s.network.SSID, "retry", s.retryCount, "error", err)

	if s.retryCount == 0 {
		e := m.sessionEvent(EventConnectionError, s)
		e.Err = err
		m.emit(e)
		s.deliver(err)
	} else {
		e := m.sessionEvent(EventRetryFailed, s)
		e.Err = err
		m.emit(e)
	}

	if !IsRetryable(err) {
		return
	}
	if s.retryCount >= m.settings.MaxRetryAttempts {
		m.emit(m.sessionEvent(EventMaxRetriesReached, s))
		return
	}

	s.retryCount++
	n := s.retryCount
	delay := RetryDelay(m.settings.RetryDelay, n)
	e := m.sessionEvent(EventRetryScheduled, s)
	e.Delay = delay
	m.emit(e)
	s.retry = time.AfterFunc(delay, func() {
		m.send(func() { m.startRetry(s, n) })
	})
}

func (m *Manager) startRetry(s *session, n int) {
	if m.session != s || s.retryCount != n || s.attempting {
		return
	}
	m.emit(m.sessionEvent(EventRetryStarted, s))
	m.status = wifi.StatusConnecting
	m.startAttempt(s)
}

// Disconnect ends the active session, cancelling any attempt, retry,
// monitor and redirect, then asks the platform to drop the association and
// emits disconnected. Without a session it does nothing. A platform error
// is returned after the event is emitted.
func (m *Manager) Disconnect(ctx context.Context) error {
	var s *session
	if err := m.call(ctx, func() {
		s = m.endSession()
	}); err != nil {
		return err
	}
	if s == nil {
		m.logger.Warn("disconnect requested without an active connection")
		return nil
	}

	var err error
	if !s.simulated && m.mode != SimulatorAlways {
		err = m.svc.Disconnect(ctx)
		if errors.Is(err, wifi.ErrNotAvailable) && m.mode == SimulatorFallback {
			err = nil
		}
		if err != nil {
			m.logger.Warn("platform disconnect failed", "ssid", s.network.SSID, "error", err)
		}
	}

	network := s.network
	if callErr := m.call(context.WithoutCancel(ctx), func() {
		m.emit(Event{Type: EventDisconnected, Network: &network})
	}); callErr != nil {
		return callErr
	}
	m.logger.Info("disconnected", "ssid", network.SSID)
	return err
}

// endSession stops and clears the active session. Loop only.
func (m *Manager) endSession() *session {
	s := m.session
	if s == nil {
		return nil
	}
	s.stopTasks()
	s.deliver(errSessionEnded)
	m.session = nil
	m.status = wifi.StatusDisconnected
	return s
}
