package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shazow/wifimgr/netmgr"
	"github.com/shazow/wifimgr/wifi"
)

type fakeEngine struct {
	mu          sync.Mutex
	state       netmgr.Snapshot
	events      chan netmgr.Event
	connectErr  error
	passwords   []string
	scans       int
	disconnects int
	forgotten   []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan netmgr.Event, 10)}
}

func (f *fakeEngine) StartScan(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return "scan-1", nil
}

func (f *fakeEngine) Connect(ctx context.Context, network wifi.Network, opts netmgr.ConnectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords = append(f.passwords, opts.Password)
	if f.connectErr != nil && !(errors.Is(f.connectErr, wifi.ErrPasswordRequired) && opts.Password != "") {
		return f.connectErr
	}
	return nil
}

func (f *fakeEngine) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeEngine) Forget(ctx context.Context, bssid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, bssid)
	return nil
}

func (f *fakeEngine) State() netmgr.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) Subscribe() (<-chan netmgr.Event, func()) {
	return f.events, func() {}
}

func newTestModel(t *testing.T, engine Engine) *Model {
	t.Helper()
	m := NewModel(context.Background(), engine, Options{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(*Model)
}

func update(t *testing.T, m *Model, msg tea.Msg) (*Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(*Model), cmd
}

var (
	homeNet = wifi.Network{BSSID: "aa:bb:cc:dd:ee:01", SSID: "HomeNet", Security: wifi.SecurityWPA2, SignalStrength: 80, Saved: true}
	cafeNet = wifi.Network{BSSID: "aa:bb:cc:dd:ee:02", SSID: "CafeNet", Security: wifi.SecurityOpen, SignalStrength: 40}
)

func TestModel_StateUpdatesList(t *testing.T) {
	m := newTestModel(t, newFakeEngine())

	m, _ = update(t, m, stateMsg(netmgr.Snapshot{
		Status:    wifi.StatusDisconnected,
		Available: []wifi.Network{homeNet, cafeNet},
	}))

	view := m.View()
	for _, want := range []string{"HomeNet", "CafeNet", "DISCONNECTED"} {
		if !strings.Contains(view, want) {
			t.Errorf("View does not contain %q in\n%s", want, view)
		}
	}
	if strings.Contains(view, "Loading networks") {
		t.Errorf("View still loading after state arrived:\n%s", view)
	}
}

func TestModel_HeaderShowsSession(t *testing.T) {
	m := newTestModel(t, newFakeEngine())

	m, _ = update(t, m, stateMsg(netmgr.Snapshot{
		Status:    wifi.StatusConnected,
		Session:   &netmgr.Session{Network: homeNet, SignalStrength: 72, IPAddress: "192.168.1.42", Simulated: true},
		Available: []wifi.Network{homeNet},
	}))

	view := m.View()
	for _, want := range []string{"CONNECTED", "72%", "192.168.1.42", "(simulated)", "(Connected)"} {
		if !strings.Contains(view, want) {
			t.Errorf("View does not contain %q in\n%s", want, view)
		}
	}
}

func TestModel_PasswordFlow(t *testing.T) {
	engine := newFakeEngine()
	engine.connectErr = wifi.ErrPasswordRequired
	m := newTestModel(t, engine)

	m, cmd := update(t, m, selectMsg{network: homeNet})
	msg := cmd()
	if _, ok := msg.(passwordNeeded); !ok {
		t.Fatalf("expected passwordNeeded, got %T", msg)
	}

	m, _ = update(t, m, msg)
	if _, ok := m.stack.Top().(*PasswordModel); !ok {
		t.Fatalf("expected password dialog on top, got %T", m.stack.Top())
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hunter22")})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	msg = cmd()
	connect, ok := msg.(connectMsg)
	if !ok {
		t.Fatalf("expected connectMsg, got %T", msg)
	}
	if connect.password != "hunter22" {
		t.Errorf("password = %q, want %q", connect.password, "hunter22")
	}

	m, cmd = update(t, m, connect)
	if m.stack.Len() != 1 {
		t.Errorf("password dialog not dismissed, stack has %d components", m.stack.Len())
	}
	if _, ok := cmd().(actionFinishedMsg); !ok {
		t.Errorf("expected actionFinishedMsg after connecting")
	}
	if got := engine.passwords; len(got) != 2 || got[0] != "" || got[1] != "hunter22" {
		t.Errorf("Connect passwords = %q", got)
	}
}

func TestModel_PasswordEscCancels(t *testing.T) {
	m := newTestModel(t, newFakeEngine())
	m, _ = update(t, m, passwordNeeded{network: homeNet})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m, _ = update(t, m, cmd())
	if m.stack.Len() != 1 {
		t.Errorf("expected dialog popped, stack has %d components", m.stack.Len())
	}
}

func TestModel_SelectConnectedNetwork(t *testing.T) {
	engine := newFakeEngine()
	m := newTestModel(t, engine)
	m, _ = update(t, m, stateMsg(netmgr.Snapshot{
		Status:  wifi.StatusConnected,
		Session: &netmgr.Session{Network: homeNet},
	}))

	m, cmd := update(t, m, selectMsg{network: homeNet})
	if cmd != nil {
		t.Errorf("expected no command when selecting the connected network")
	}
	if !strings.Contains(m.View(), "Already connected to 'HomeNet'") {
		t.Errorf("missing status in\n%s", m.View())
	}
	if len(engine.passwords) != 0 {
		t.Errorf("Connect should not be called, got %d calls", len(engine.passwords))
	}
}

func TestModel_ForgetFlow(t *testing.T) {
	engine := newFakeEngine()
	m := newTestModel(t, engine)

	m, _ = update(t, m, confirmForgetMsg{network: homeNet})
	if _, ok := m.stack.Top().(*ForgetModel); !ok {
		t.Fatalf("expected forget dialog on top, got %T", m.stack.Top())
	}
	if !strings.Contains(m.View(), "Forget network 'HomeNet'?") {
		t.Errorf("missing confirmation in\n%s", m.View())
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	msg := cmd()
	if _, ok := msg.(forgetMsg); !ok {
		t.Fatalf("expected forgetMsg, got %T", msg)
	}
	m, cmd = update(t, m, msg)
	if m.stack.Len() != 1 {
		t.Errorf("forget dialog not dismissed")
	}
	if _, ok := cmd().(actionFinishedMsg); !ok {
		t.Errorf("expected actionFinishedMsg")
	}
	if len(engine.forgotten) != 1 || engine.forgotten[0] != homeNet.BSSID {
		t.Errorf("forgotten = %v", engine.forgotten)
	}
}

func TestModel_ForgetDeclined(t *testing.T) {
	engine := newFakeEngine()
	m := newTestModel(t, engine)
	m, _ = update(t, m, confirmForgetMsg{network: homeNet})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	msg := cmd()
	if _, ok := msg.(popViewMsg); !ok {
		t.Fatalf("expected popViewMsg, got %T", msg)
	}
	m, _ = update(t, m, msg)
	if m.stack.Len() != 1 {
		t.Errorf("forget dialog not dismissed")
	}
	if len(engine.forgotten) != 0 {
		t.Errorf("nothing should be forgotten, got %v", engine.forgotten)
	}
}

func TestModel_ErrorDismissed(t *testing.T) {
	m := newTestModel(t, newFakeEngine())

	m, _ = update(t, m, errorMsg{wifi.ErrPermissionDenied})
	view := m.View()
	if !strings.Contains(view, "elevated privileges") {
		t.Errorf("missing hint in\n%s", view)
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m, _ = update(t, m, cmd())
	if _, ok := m.stack.Top().(*ListModel); !ok {
		t.Errorf("expected list on top after dismissing error, got %T", m.stack.Top())
	}
}

func TestModel_Events(t *testing.T) {
	m := newTestModel(t, newFakeEngine())

	m, cmd := update(t, m, eventMsg(netmgr.Event{Type: netmgr.EventScanCompleted, Networks: []wifi.Network{homeNet, cafeNet}}))
	if cmd == nil {
		t.Fatal("expected follow up commands after an event")
	}
	view := m.View()
	for _, want := range []string{"scanCompleted count=2", "Found 2 networks"} {
		if !strings.Contains(view, want) {
			t.Errorf("View does not contain %q in\n%s", want, view)
		}
	}

	for i := 0; i < recentEvents+3; i++ {
		m, _ = update(t, m, eventMsg(netmgr.Event{Type: netmgr.EventScanProgress, Progress: i * 10}))
	}
	if len(m.recent) != recentEvents {
		t.Errorf("recent events = %d, want %d", len(m.recent), recentEvents)
	}

	m, _ = update(t, m, eventMsg(netmgr.Event{Type: netmgr.EventMaxRetriesReached, RetryCount: 3, Network: &homeNet}))
	if !strings.Contains(m.View(), "Gave up on 'HomeNet' after 3 retries") {
		t.Errorf("missing error line in\n%s", m.View())
	}
}

func TestModel_EventsClosed(t *testing.T) {
	m := newTestModel(t, newFakeEngine())
	m, cmd := update(t, m, eventsClosedMsg{})
	if cmd != nil {
		t.Errorf("expected no further event wait")
	}
	if !m.closed || !strings.Contains(m.View(), "Engine stopped") {
		t.Errorf("expected stopped status in\n%s", m.View())
	}
}

func TestModel_ScanAndDisconnect(t *testing.T) {
	engine := newFakeEngine()
	m := newTestModel(t, engine)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	m, cmd = update(t, m, cmd())
	if msg := cmd(); msg != nil {
		t.Errorf("expected nil after starting scan, got %T", msg)
	}
	if engine.scans != 1 {
		t.Errorf("scans = %d, want 1", engine.scans)
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	_, cmd = update(t, m, cmd())
	if msg, ok := cmd().(actionFinishedMsg); !ok || msg.status != "Disconnected" {
		t.Errorf("unexpected disconnect result %#v", msg)
	}
	if engine.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", engine.disconnects)
	}
}

func TestModel_ConnectError(t *testing.T) {
	engine := newFakeEngine()
	engine.connectErr = wifi.ErrAuthenticationFailed
	m := newTestModel(t, engine)

	_, cmd := update(t, m, selectMsg{network: cafeNet})
	msg, ok := cmd().(errorMsg)
	if !ok {
		t.Fatalf("expected errorMsg")
	}
	if !errors.Is(msg.err, wifi.ErrAuthenticationFailed) {
		t.Errorf("err = %v", msg.err)
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		event netmgr.Event
		want  string
	}{
		{netmgr.Event{Type: netmgr.EventScanProgress, Progress: 30}, "scanProgress progress=30"},
		{netmgr.Event{Type: netmgr.EventConnectionSuccessful, Network: &homeNet, IPAddress: "10.0.0.2"}, `connectionSuccessful ssid="HomeNet" ip=10.0.0.2`},
		{netmgr.Event{Type: netmgr.EventWeakSignal, Network: &homeNet, SignalStrength: 12}, `weakSignal ssid="HomeNet" signal=12`},
		{netmgr.Event{Type: netmgr.EventConnectionError, Network: &cafeNet, Err: wifi.ErrConnectionTimeout}, `connectionError ssid="CafeNet" error=`},
	}
	for _, tt := range tests {
		if got := formatEvent(tt.event); !strings.HasPrefix(got, tt.want) {
			t.Errorf("formatEvent(%s) = %q, want prefix %q", tt.event.Type, got, tt.want)
		}
	}
}
