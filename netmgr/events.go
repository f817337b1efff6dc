package netmgr

import (
	"sync"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

// EventType names an engine event.
type EventType string

const (
	EventScanStarted            EventType = "scanStarted"
	EventScanProgress           EventType = "scanProgress"
	EventScanCompleted          EventType = "scanCompleted"
	EventScanError              EventType = "scanError"
	EventConnectionStarted      EventType = "connectionStarted"
	EventAuthenticationStarted  EventType = "authenticationStarted"
	EventConnectionSuccessful   EventType = "connectionSuccessful"
	EventConnectionError        EventType = "connectionError"
	EventRetryScheduled         EventType = "retryScheduled"
	EventRetryStarted           EventType = "retryStarted"
	EventRetrySuccessful        EventType = "retrySuccessful"
	EventRetryFailed            EventType = "retryFailed"
	EventMaxRetriesReached      EventType = "maxRetriesReached"
	EventDisconnected           EventType = "disconnected"
	EventNetworkSaved           EventType = "networkSaved"
	EventNetworkForgotten       EventType = "networkForgotten"
	EventNetworkSettingsUpdated EventType = "networkSettingsUpdated"
	EventSignalStrengthUpdate   EventType = "signalStrengthUpdate"
	EventWeakSignal             EventType = "weakSignal"
	EventRedirectScheduled      EventType = "redirectScheduled"
	EventRedirect               EventType = "redirect"
	EventSettingsUpdated        EventType = "settingsUpdated"
)

// Event is emitted by the Manager. Only the fields relevant to Type are set;
// Payload returns exactly those.
type Event struct {
	Type EventType
	Time time.Time

	ScanID         string
	ConnectionID   string
	Network        *wifi.Network
	Networks       []wifi.Network
	Progress       int
	Duration       time.Duration
	Err            error
	RetryCount     int
	Delay          time.Duration
	IPAddress      string
	ConnectionTime time.Duration
	SignalStrength int
	URL            string
	OldSettings    *Settings
	NewSettings    *Settings
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Payload returns the event's payload keyed by wire name. Durations are in
// milliseconds.
func (e Event) Payload() map[string]any {
	switch e.Type {
	case EventScanStarted:
		return map[string]any{"scanId": e.ScanID}
	case EventScanProgress:
		return map[string]any{"scanId": e.ScanID, "progress": e.Progress}
	case EventScanCompleted:
		return map[string]any{
			"scanId":   e.ScanID,
			"networks": e.Networks,
			"count":    len(e.Networks),
			"duration": e.Duration.Milliseconds(),
		}
	case EventScanError:
		return map[string]any{"scanId": e.ScanID, "error": errString(e.Err)}
	case EventConnectionStarted, EventAuthenticationStarted:
		return map[string]any{"connectionId": e.ConnectionID, "network": e.Network}
	case EventConnectionSuccessful:
		return map[string]any{
			"connectionId":   e.ConnectionID,
			"network":        e.Network,
			"ipAddress":      e.IPAddress,
			"connectionTime": e.ConnectionTime.Milliseconds(),
		}
	case EventConnectionError:
		return map[string]any{"connectionId": e.ConnectionID, "error": errString(e.Err), "network": e.Network}
	case EventRetryScheduled:
		return map[string]any{
			"connectionId": e.ConnectionID,
			"retryCount":   e.RetryCount,
			"network":      e.Network,
			"delay":        e.Delay.Milliseconds(),
		}
	case EventRetryStarted, EventRetrySuccessful, EventRetryFailed, EventMaxRetriesReached:
		return map[string]any{"connectionId": e.ConnectionID, "retryCount": e.RetryCount, "network": e.Network}
	case EventDisconnected, EventNetworkSaved, EventNetworkForgotten, EventNetworkSettingsUpdated:
		return map[string]any{"network": e.Network}
	case EventSignalStrengthUpdate, EventWeakSignal:
		return map[string]any{"network": e.Network, "signalStrength": e.SignalStrength}
	case EventRedirectScheduled, EventRedirect:
		return map[string]any{"url": e.URL, "network": e.Network}
	case EventSettingsUpdated:
		return map[string]any{"oldSettings": e.OldSettings, "newSettings": e.NewSettings}
	}
	return map[string]any{}
}

// subscriber buffers events without bound so the emitter never blocks and
// order is preserved.
type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	out    chan Event
	done   chan struct{}
}

func newSubscriber() *subscriber {
	s := &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}

// broker fans events out to subscribers.
type broker struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newBroker() *broker {
	return &broker{subs: map[*subscriber]struct{}{}}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	s := newSubscriber()
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.out, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			s.close()
		})
	}
}

func (b *broker) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(e)
	}
}

func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.close()
		delete(b.subs, s)
	}
}
