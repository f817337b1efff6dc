package netmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

// scanTicks is the number of progress events per scan, 10% each.
const scanTicks = 10

// StartScan begins a scan and returns its ID immediately. Progress and the
// result are reported as events: scanStarted, ten scanProgress events, then
// exactly one of scanCompleted or scanError. Only one scan runs at a time.
func (m *Manager) StartScan(ctx context.Context) (string, error) {
	var (
		scanID string
		busy   bool
	)
	if err := m.call(ctx, func() {
		if m.scan.IsScanning {
			busy = true
			return
		}
		scanID = m.newID()
		m.scan = ScanState{
			IsScanning:   true,
			ScanID:       scanID,
			LastScanTime: m.scan.LastScanTime,
		}
		m.scanStart = time.Now()
		m.logger.Info("scan started", "scanId", scanID)
		m.emit(Event{Type: EventScanStarted, ScanID: scanID})
		go m.runScan(scanID, m.settings.ScanTickInterval)
	}); err != nil {
		return "", err
	}
	if busy {
		return "", fmt.Errorf("start scan: %w", wifi.ErrScanInProgress)
	}
	return scanID, nil
}

// runScan is the worker side of a scan.
func (m *Manager) runScan(scanID string, tick time.Duration) {
	ctx := m.ctx
	simulate := m.mode == SimulatorAlways

	if !simulate {
		err := m.svc.StartScan(ctx)
		switch {
		case errors.Is(err, wifi.ErrNotAvailable) && m.mode == SimulatorFallback:
			m.logger.Info("adapter unavailable, simulating scan", "scanId", scanID)
			simulate = true
		case errors.Is(err, wifi.ErrNotAvailable):
			m.send(func() { m.failScan(scanID, err) })
			return
		case err != nil:
			m.logger.Warn("scan trigger failed, listing cached results", "scanId", scanID, "error", err)
		}
	}

	for i := 1; i <= scanTicks; i++ {
		if sleepCtx(ctx, tick) != nil {
			return
		}
		progress := i * 100 / scanTicks
		m.send(func() {
			if !m.scan.IsScanning || m.scan.ScanID != scanID {
				return
			}
			m.scan.Progress = progress
			m.emit(Event{Type: EventScanProgress, ScanID: scanID, Progress: progress})
		})
	}

	var (
		networks []wifi.Network
		err      error
	)
	if simulate {
		networks = m.sim.Networks()
	} else {
		networks, err = m.svc.AvailableNetworks(ctx)
		if errors.Is(err, wifi.ErrNotAvailable) && m.mode == SimulatorFallback {
			networks, err = m.sim.Networks(), nil
		}
	}
	m.send(func() {
		if err != nil {
			m.failScan(scanID, err)
			return
		}
		m.completeScan(scanID, networks)
	})
}

func (m *Manager) completeScan(scanID string, scanned []wifi.Network) {
	if m.scan.ScanID != scanID {
		return
	}
	networks := wifi.Reconcile(scanned, m.saved)
	wifi.SortNetworks(networks)
	m.available = networks

	now := time.Now()
	m.scan = ScanState{
		Progress:     100,
		ScanID:       scanID,
		LastScanTime: now,
		Duration:     now.Sub(m.scanStart),
	}
	m.logger.Info("scan completed", "scanId", scanID, "networks", len(networks), "duration", m.scan.Duration)
	m.emit(Event{
		Type:     EventScanCompleted,
		ScanID:   scanID,
		Networks: slices.Clone(networks),
		Duration: m.scan.Duration,
	})
}

func (m *Manager) failScan(scanID string, err error) {
	if m.scan.ScanID != scanID {
		return
	}
	m.scan.IsScanning = false
	m.scan.Duration = time.Since(m.scanStart)
	m.scan.Error = err.Error()
	m.logger.Warn("scan failed", "scanId", scanID, "error", err)
	m.emit(Event{Type: EventScanError, ScanID: scanID, Err: err})
}
