package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	ScanOff     = 0
	ScanDefault = 10 * time.Second
)

// ScanSchedule requests a scan at a regular interval while enabled.
type ScanSchedule struct {
	callback func() tea.Msg
	every    time.Duration
	interval time.Duration
	// gen invalidates ticks scheduled before the last change.
	gen int
}

// NewScanSchedule creates a disabled schedule that calls callback every
// interval once enabled.
func NewScanSchedule(every time.Duration, callback func() tea.Msg) *ScanSchedule {
	if every <= 0 {
		every = ScanDefault
	}
	return &ScanSchedule{callback: callback, every: every}
}

// Enabled reports whether periodic scanning is on.
func (s *ScanSchedule) Enabled() bool {
	return s.interval != ScanOff
}

// Toggle enables or disables the scan schedule.
func (s *ScanSchedule) Toggle() (bool, tea.Cmd) {
	if s.Enabled() {
		return false, s.SetSchedule(ScanOff)
	}
	return true, s.SetSchedule(s.every)
}

// SetSchedule sets the scan interval. Enabling it scans immediately.
func (s *ScanSchedule) SetSchedule(interval time.Duration) tea.Cmd {
	starting := !s.Enabled() && interval != ScanOff
	s.interval = interval
	s.gen++
	if starting {
		return tea.Batch(s.callback, s.tick())
	}
	return nil
}

// Update handles messages for the ScanSchedule.
func (s *ScanSchedule) Update(msg tea.Msg) tea.Cmd {
	tick, ok := msg.(tickMsg)
	if !ok || !s.Enabled() || tick.gen != s.gen {
		return nil
	}
	return tea.Batch(s.callback, s.tick())
}

// internal message to trigger a tick
type tickMsg struct{ gen int }

func (s *ScanSchedule) tick() tea.Cmd {
	if !s.Enabled() {
		return nil
	}
	gen := s.gen
	return tea.Tick(s.interval, func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}
