package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shazow/wifimgr/netmgr"
	"github.com/shazow/wifimgr/wifi"
)

// Output formats accepted by -format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// writeOutput encodes v as json or yaml, or calls text for the text format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return text(w)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func formatNetwork(n wifi.Network) string {
	var parts []string
	if n.SignalStrength > 0 {
		parts = append(parts, fmt.Sprintf("%d%%", n.SignalStrength))
	}
	parts = append(parts, n.Security.String())
	if n.Saved {
		parts = append(parts, "saved")
	}
	if n.Settings.AutoConnect {
		parts = append(parts, "auto")
	}
	if n.Settings.Hidden {
		parts = append(parts, "hidden")
	}
	return strings.Join(parts, ", ")
}

func writeNetworks(w io.Writer, format string, networks []wifi.Network) error {
	if networks == nil {
		networks = []wifi.Network{}
	}
	return writeOutput(w, format, networks, func(w io.Writer) error {
		for _, n := range networks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", n.SSID, n.BSSID, formatNetwork(n))
		}
		return nil
	})
}

// runScan starts a scan and prints the reconciled results once it settles.
func runScan(ctx context.Context, w io.Writer, format string, m *netmgr.Manager) error {
	networks, err := scanAndWait(ctx, m)
	if err != nil {
		return err
	}
	return writeNetworks(w, format, networks)
}

func scanAndWait(ctx context.Context, m *netmgr.Manager) ([]wifi.Network, error) {
	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	scanID, err := m.StartScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start scan: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil, netmgr.ErrClosed
			}
			if e.ScanID != scanID {
				continue
			}
			switch e.Type {
			case netmgr.EventScanCompleted:
				return e.Networks, nil
			case netmgr.EventScanError:
				return nil, fmt.Errorf("scan failed: %w", e.Err)
			}
		}
	}
}

// runList prints the networks the service currently sees, without scanning.
func runList(ctx context.Context, w io.Writer, format string, svc netmgr.Service) error {
	networks, err := svc.AvailableNetworks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	wifi.SortNetworks(networks)
	return writeNetworks(w, format, networks)
}

func runCurrent(w io.Writer, format string, m *netmgr.Manager) error {
	state := m.State()
	return writeOutput(w, format, state.Session, func(w io.Writer) error {
		s := state.Session
		if s == nil {
			fmt.Fprintln(w, "Not connected")
			return nil
		}
		fmt.Fprintf(w, "SSID: %s\n", s.Network.SSID)
		fmt.Fprintf(w, "BSSID: %s\n", s.Network.BSSID)
		fmt.Fprintf(w, "Status: %s\n", state.Status)
		fmt.Fprintf(w, "Security: %s\n", s.Network.Security)
		fmt.Fprintf(w, "Strength: %d%%\n", s.SignalStrength)
		if s.IPAddress != "" {
			fmt.Fprintf(w, "IP Address: %s\n", s.IPAddress)
		}
		fmt.Fprintf(w, "Connected For: %s\n", formatDuration(s.StartTime))
		if s.Simulated {
			fmt.Fprintln(w, "Simulated: true")
		}
		return nil
	})
}

func runSaved(ctx context.Context, w io.Writer, format string, m *netmgr.Manager, system bool) error {
	if !system {
		return writeNetworks(w, format, m.SavedNetworks())
	}
	networks, err := m.SystemSavedNetworks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list system profiles: %w", err)
	}
	return writeNetworks(w, format, networks)
}

// findNetwork resolves target, a BSSID or an SSID, against the available
// networks, scanning once if it is not there yet.
func findNetwork(ctx context.Context, m *netmgr.Manager, target string) (wifi.Network, error) {
	match := func(networks []wifi.Network) (wifi.Network, bool) {
		for _, n := range networks {
			if wifi.SameBSSID(n.BSSID, target) || n.SSID == target {
				return n, true
			}
		}
		return wifi.Network{}, false
	}

	if n, ok := match(m.AvailableNetworks()); ok {
		return n, nil
	}
	networks, err := scanAndWait(ctx, m)
	if err != nil {
		return wifi.Network{}, err
	}
	if n, ok := match(networks); ok {
		return n, nil
	}
	if n, ok := match(m.SavedNetworks()); ok {
		return n, nil
	}
	return wifi.Network{}, fmt.Errorf("network %q: %w", target, wifi.ErrNotFound)
}

type connectOptions struct {
	Password string
	NoSave   bool
	Wait     bool
}

// runConnect connects to target. With Wait set, a failed first attempt
// blocks until the retries succeed or give up.
func runConnect(ctx context.Context, w io.Writer, m *netmgr.Manager, target string, opts connectOptions) error {
	network, err := findNetwork(ctx, m, target)
	if err != nil {
		return err
	}

	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	err = m.Connect(ctx, network, netmgr.ConnectOptions{Password: opts.Password, DontSave: opts.NoSave})
	if err != nil && (!opts.Wait || !netmgr.IsRetryable(err) || m.Settings().MaxRetryAttempts == 0) {
		return fmt.Errorf("failed to connect to %q: %w", network.SSID, err)
	}
	if err != nil {
		fmt.Fprintf(w, "Connection to %q failed (%v), retrying...\n", network.SSID, err)
		if err := waitForRetries(ctx, events); err != nil {
			return fmt.Errorf("failed to connect to %q: %w", network.SSID, err)
		}
	}

	if err := m.Sync(ctx); err != nil {
		return err
	}

	var ip string
	if s := m.Session(); s != nil {
		ip = s.IPAddress
	}
	if ip != "" {
		fmt.Fprintf(w, "Connected to %q (%s)\n", network.SSID, ip)
	} else {
		fmt.Fprintf(w, "Connected to %q\n", network.SSID)
	}
	return nil
}

// waitForRetries blocks until a retry succeeds or the manager stops retrying.
func waitForRetries(ctx context.Context, events <-chan netmgr.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return netmgr.ErrClosed
			}
			switch e.Type {
			case netmgr.EventRetrySuccessful:
				return nil
			case netmgr.EventMaxRetriesReached:
				return fmt.Errorf("gave up after %d retries", e.RetryCount)
			case netmgr.EventRetryFailed:
				// Retryable failures are followed by another retry or by
				// maxRetriesReached.
				if e.Err != nil && !netmgr.IsRetryable(e.Err) {
					return e.Err
				}
			case netmgr.EventDisconnected:
				return errors.New("connection cancelled")
			}
		}
	}
}

func runDisconnect(ctx context.Context, w io.Writer, m *netmgr.Manager) error {
	current := m.Session()
	if err := m.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	if current == nil {
		fmt.Fprintln(w, "Not connected")
		return nil
	}
	fmt.Fprintf(w, "Disconnected from %q\n", current.Network.SSID)
	return nil
}

func runForget(ctx context.Context, w io.Writer, m *netmgr.Manager, bssid string) error {
	if !wifi.ValidBSSID(bssid) {
		return fmt.Errorf("invalid bssid %q", bssid)
	}
	if err := m.Forget(ctx, bssid); err != nil {
		return fmt.Errorf("failed to forget network: %w", err)
	}
	fmt.Fprintf(w, "Forgot %s\n", wifi.NormalizeBSSID(bssid))
	return nil
}

// runSettings prints the settings, after applying any key=value pairs.
func runSettings(ctx context.Context, w io.Writer, format string, m *netmgr.Manager, assignments []string) error {
	settings := m.Settings()
	if len(assignments) > 0 {
		for _, a := range assignments {
			key, value, ok := strings.Cut(a, "=")
			if !ok {
				return fmt.Errorf("expected key=value, got %q", a)
			}
			if err := settings.Set(key, value); err != nil {
				return err
			}
		}
		if err := m.UpdateSettings(ctx, settings); err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}
		settings = m.Settings()
	}

	return writeOutput(w, format, settings, func(w io.Writer) error {
		for _, key := range netmgr.SettingKeys() {
			value, err := settings.Get(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s=%s\n", key, value)
		}
		return nil
	})
}

// runQR prints a QR code that joins the saved network bssid.
func runQR(ctx context.Context, w io.Writer, m *netmgr.Manager, creds netmgr.Credentials, bssid string) error {
	var network *wifi.Network
	for _, n := range m.SavedNetworks() {
		if wifi.SameBSSID(n.BSSID, bssid) {
			network = &n
			break
		}
	}
	if network == nil {
		return fmt.Errorf("saved network %q: %w", bssid, wifi.ErrNotFound)
	}

	password, err := creds.Get(ctx, network.BSSID)
	if err != nil && !errors.Is(err, wifi.ErrCredentialsNotFound) {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	if password == "" && network.Security != wifi.SecurityOpen {
		return fmt.Errorf("no stored password for %q: %w", network.SSID, wifi.ErrCredentialsNotFound)
	}

	code, err := GenerateWifiQRCode(network.SSID, password, network.Security, network.Settings.Hidden)
	if err != nil {
		return fmt.Errorf("failed to generate qr code: %w", err)
	}
	fmt.Fprintln(w, code)
	return nil
}

func formatDuration(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
