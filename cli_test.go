package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shazow/wifimgr/internal/config"
	"github.com/shazow/wifimgr/wifi"
	"github.com/shazow/wifimgr/wifi/mock"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()

	adapter := mock.New()
	adapter.ActionSleep = 0

	var out bytes.Buffer
	a := &app{
		stdout:  &out,
		stderr:  io.Discard,
		adapter: adapter,
		cfg: config.Config{
			DB:        ":memory:",
			KeyFile:   filepath.Join(t.TempDir(), "key"),
			Simulator: "off",
			Backend:   "mock",
			Seed:      1,
			LogFormat: "text",
			Format:    FormatText,
		},
	}
	ctx := context.Background()
	if err := a.open(ctx, false); err != nil {
		t.Fatalf("open() failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	settings := a.manager.Settings()
	settings.ScanTickInterval = time.Millisecond
	settings.RetryDelay = time.Millisecond
	settings.SignalMonitorInterval = time.Hour
	settings.SimulatedFailureRate = 0
	if err := a.manager.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings() failed: %v", err)
	}
	return a, &out
}

func TestRunScan(t *testing.T) {
	a, out := newTestApp(t)

	if err := runScan(context.Background(), out, FormatText, a.manager); err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 14 {
		t.Fatalf("runScan() output has wrong number of lines. got=%d, want=14\n---\n%s\n---", len(lines), out.String())
	}
	if want := "TacoBoutAGoodSignal\t02:00:5e:00:00:0a\t99%, WPA2"; lines[0] != want {
		t.Errorf("runScan() first line wrong. got=%q, want=%q", lines[0], want)
	}
}

func TestRunList(t *testing.T) {
	a, out := newTestApp(t)

	if err := runList(context.Background(), out, FormatText, a.svc); err != nil {
		t.Fatalf("runList() failed: %v", err)
	}
	if !strings.Contains(out.String(), "Unencrypted_Honeypot\t02:00:5e:00:00:04\t66%, OPEN\n") {
		t.Errorf("runList() output missing open network. got=%q", out.String())
	}
}

func TestRunConnectLifecycle(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()
	const bssid = "02:00:5e:00:00:04"

	if err := runConnect(ctx, out, a.manager, "Unencrypted_Honeypot", connectOptions{}); err != nil {
		t.Fatalf("runConnect() failed: %v", err)
	}
	if !strings.Contains(out.String(), `Connected to "Unencrypted_Honeypot"`) {
		t.Errorf("runConnect() output wrong. got=%q", out.String())
	}

	out.Reset()
	if err := runCurrent(out, FormatText, a.manager); err != nil {
		t.Fatalf("runCurrent() failed: %v", err)
	}
	for _, want := range []string{"SSID: Unencrypted_Honeypot", "BSSID: " + bssid, "Status: CONNECTED"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("runCurrent() output missing %q. got=%q", want, out.String())
		}
	}

	out.Reset()
	if err := runSaved(ctx, out, FormatText, a.manager, false); err != nil {
		t.Fatalf("runSaved() failed: %v", err)
	}
	if !strings.Contains(out.String(), "Unencrypted_Honeypot\t"+bssid) || !strings.Contains(out.String(), "saved, auto") {
		t.Errorf("runSaved() output wrong. got=%q", out.String())
	}

	out.Reset()
	if err := runQR(ctx, out, a.manager, a.creds, bssid); err != nil {
		t.Fatalf("runQR() failed: %v", err)
	}
	if out.Len() == 0 {
		t.Errorf("runQR() printed nothing")
	}

	out.Reset()
	if err := runDisconnect(ctx, out, a.manager); err != nil {
		t.Fatalf("runDisconnect() failed: %v", err)
	}
	if !strings.Contains(out.String(), `Disconnected from "Unencrypted_Honeypot"`) {
		t.Errorf("runDisconnect() output wrong. got=%q", out.String())
	}

	out.Reset()
	if err := runForget(ctx, out, a.manager, strings.ToUpper(bssid)); err != nil {
		t.Fatalf("runForget() failed: %v", err)
	}
	if got := out.String(); got != "Forgot "+bssid+"\n" {
		t.Errorf("runForget() output wrong. got=%q", got)
	}
	if saved := a.manager.SavedNetworks(); len(saved) != 0 {
		t.Errorf("expected no saved networks after forget, got %d", len(saved))
	}
}

func TestRunConnectWithPassword(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	err := runConnect(ctx, out, a.manager, "HideYoKidsHideYoWiFi", connectOptions{})
	if !errors.Is(err, wifi.ErrPasswordRequired) {
		t.Fatalf("runConnect() without password error = %v, want ErrPasswordRequired", err)
	}

	if err := runConnect(ctx, out, a.manager, "02:00:5E:00:00:01", connectOptions{Password: "hidden"}); err != nil {
		t.Fatalf("runConnect() failed: %v", err)
	}
	password, err := a.creds.Get(ctx, "02:00:5e:00:00:01")
	if err != nil || password != "hidden" {
		t.Errorf("stored password = %q, %v", password, err)
	}

	out.Reset()
	if err := runQR(ctx, out, a.manager, a.creds, "02:00:5e:00:00:01"); err != nil {
		t.Fatalf("runQR() failed: %v", err)
	}
}

func TestRunConnectNoSave(t *testing.T) {
	a, out := newTestApp(t)

	if err := runConnect(context.Background(), out, a.manager, "Unencrypted_Honeypot", connectOptions{NoSave: true}); err != nil {
		t.Fatalf("runConnect() failed: %v", err)
	}
	if saved := a.manager.SavedNetworks(); len(saved) != 0 {
		t.Errorf("expected nothing saved with NoSave, got %d", len(saved))
	}
}

func TestRunConnectNotFound(t *testing.T) {
	a, out := newTestApp(t)

	err := runConnect(context.Background(), out, a.manager, "NotFound", connectOptions{})
	if !errors.Is(err, wifi.ErrNotFound) {
		t.Fatalf("runConnect() error = %v, want ErrNotFound", err)
	}
}

func TestRunConnectWait(t *testing.T) {
	a, out := newTestApp(t)
	a.adapter.(*mock.Adapter).Update(func(m *mock.Adapter) {
		m.ConnectErrors = []error{wifi.ErrConnectionFailed}
	})

	if err := runConnect(context.Background(), out, a.manager, "Unencrypted_Honeypot", connectOptions{Wait: true}); err != nil {
		t.Fatalf("runConnect() failed: %v", err)
	}
	if !strings.Contains(out.String(), "retrying...") || !strings.Contains(out.String(), `Connected to "Unencrypted_Honeypot"`) {
		t.Errorf("runConnect() output wrong. got=%q", out.String())
	}
}

func TestRunConnectWaitGivesUp(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	settings := a.manager.Settings()
	settings.MaxRetryAttempts = 1
	if err := a.manager.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings() failed: %v", err)
	}
	a.adapter.(*mock.Adapter).Update(func(m *mock.Adapter) {
		for i := 0; i < 5; i++ {
			m.ConnectErrors = append(m.ConnectErrors, wifi.ErrConnectionFailed)
		}
	})

	err := runConnect(ctx, out, a.manager, "Unencrypted_Honeypot", connectOptions{Wait: true})
	if err == nil || !strings.Contains(err.Error(), "gave up") {
		t.Fatalf("runConnect() error = %v, want it to give up", err)
	}
	if strings.Contains(out.String(), "Connected to") {
		t.Errorf("runConnect() reported success. got=%q", out.String())
	}
	if got := a.manager.Status(); got != wifi.StatusError {
		t.Errorf("Status() = %s, want %s", got, wifi.StatusError)
	}
}

func TestRunConnectWaitTerminalRetryError(t *testing.T) {
	a, out := newTestApp(t)
	a.adapter.(*mock.Adapter).Update(func(m *mock.Adapter) {
		m.ConnectErrors = []error{wifi.ErrConnectionFailed, wifi.ErrPermissionDenied}
	})

	err := runConnect(context.Background(), out, a.manager, "Unencrypted_Honeypot", connectOptions{Wait: true})
	if !errors.Is(err, wifi.ErrPermissionDenied) {
		t.Fatalf("runConnect() error = %v, want ErrPermissionDenied", err)
	}
}

func TestRunSettings(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	if err := runSettings(ctx, out, FormatText, a.manager, []string{"maxRetryAttempts=5", "autoReconnect=false"}); err != nil {
		t.Fatalf("runSettings() failed: %v", err)
	}
	for _, want := range []string{"maxRetryAttempts=5\n", "autoReconnect=false\n", "scanTickInterval=1ms\n"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("runSettings() output missing %q. got=%q", want, out.String())
		}
	}
	if got := a.manager.Settings().MaxRetryAttempts; got != 5 {
		t.Errorf("MaxRetryAttempts = %d, want 5", got)
	}

	if err := runSettings(ctx, out, FormatText, a.manager, []string{"bogus=1"}); !errors.Is(err, wifi.ErrNotFound) {
		t.Errorf("unknown key error = %v", err)
	}
	if err := runSettings(ctx, out, FormatText, a.manager, []string{"maxRetryAttempts"}); err == nil {
		t.Errorf("expected an error for a missing value")
	}
	if err := runSettings(ctx, out, FormatText, a.manager, []string{"maxRetryAttempts=-1"}); err == nil {
		t.Errorf("expected a validation error")
	}
}

func TestRunForgetInvalid(t *testing.T) {
	a, out := newTestApp(t)
	if err := runForget(context.Background(), out, a.manager, "not-a-bssid"); err == nil {
		t.Errorf("expected an error for an invalid bssid")
	}
}

func TestWriteNetworksFormats(t *testing.T) {
	networks := []wifi.Network{wifi.NewNetwork("02:00:5e:00:00:01", "Cafe", wifi.SecurityOpen, 50)}

	tests := []struct {
		format string
		want   string
	}{
		{FormatText, "Cafe\t02:00:5e:00:00:01\t50%, OPEN\n"},
		{FormatJSON, `"ssid": "Cafe"`},
		{FormatYAML, "ssid: Cafe"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := writeNetworks(&buf, tt.format, networks); err != nil {
			t.Fatalf("writeNetworks(%s) failed: %v", tt.format, err)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("writeNetworks(%s) = %q, want it to contain %q", tt.format, buf.String(), tt.want)
		}
	}

	var buf bytes.Buffer
	if err := writeNetworks(&buf, FormatJSON, nil); err != nil || strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty json = %q, %v", buf.String(), err)
	}
	if err := writeNetworks(&buf, "xml", networks); err == nil {
		t.Errorf("expected an error for an unknown format")
	}
}

func TestWifiQRString(t *testing.T) {
	tests := []struct {
		ssid, password string
		security       wifi.SecurityType
		hidden         bool
		want           string
	}{
		{"Home", "secret", wifi.SecurityWPA2, false, "WIFI:S:Home;T:WPA;P:secret;;"},
		{"Home", "secret", wifi.SecurityWPA3, true, "WIFI:S:Home;T:WPA;P:secret;H:true;;"},
		{"Old", "12345", wifi.SecurityWEP, false, "WIFI:S:Old;T:WEP;P:12345;;"},
		{"Cafe", "", wifi.SecurityOpen, false, "WIFI:S:Cafe;T:nopass;;"},
		{`a;b,c:"d\`, `p;w`, wifi.SecurityWPA, false, `WIFI:S:a\;b\,c\:\"d\\;T:WPA;P:p\;w;;`},
	}
	for _, tt := range tests {
		if got := WifiQRString(tt.ssid, tt.password, tt.security, tt.hidden); got != tt.want {
			t.Errorf("WifiQRString(%q) = %q, want %q", tt.ssid, got, tt.want)
		}
	}
}

func TestCommandsParse(t *testing.T) {
	t.Setenv("WIFIMGR_SIMULATOR", "always")

	a := &app{stdout: io.Discard, stderr: io.Discard}
	root := a.commands()
	if err := root.Parse([]string{"-format", "yaml", "-backend", "mock", "connect", "-wait", "Cafe"}); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if a.cfg.Format != FormatYAML || a.cfg.Backend != "mock" {
		t.Errorf("flags not parsed: %+v", a.cfg)
	}
	if a.cfg.Simulator != "always" {
		t.Errorf("env var not applied: simulator=%q", a.cfg.Simulator)
	}
}
