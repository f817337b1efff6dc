package linux

import (
	"context"
	"errors"
	"testing"

	"github.com/shazow/wifimgr/internal/testutil"
	"github.com/shazow/wifimgr/wifi"
)

type fakeBus struct {
	enabled bool
	present bool
	iface   string
}

func (b fakeBus) WirelessEnabled(context.Context) (bool, bool) { return b.enabled, b.present }
func (b fakeBus) WirelessInterface(context.Context) string     { return b.iface }

type fakeStations struct {
	network *wifi.Network
	err     error
}

func (s fakeStations) Station(context.Context, string) (*wifi.Network, error) {
	return s.network, s.err
}

func newTestAdapter(t *testing.T, r *testutil.FakeRunner) *Adapter {
	a := New(r, testutil.Logger(t))
	a.Bus = fakeBus{}
	a.Stations = fakeStations{err: wifi.ErrNotSupported}
	return a
}

const nmcliListOutput = `HomeNet:00\:11\:22\:33\:44\:55:90:WPA2
Corp\: East:AA\:BB\:CC\:DD\:EE\:FF:65:WPA1 WPA2 802.1X
Cafe:10\:20\:30\:40\:50\:60:30:
Broken:not-a-mac:50:WPA2
Short:row
`

const nmcliActiveOutput = `no:Cafe:10\:20\:30\:40\:50\:60:30:
yes:HomeNet:00\:11\:22\:33\:44\:55:88:WPA2
`

const iwlistOutput = `wlan0     Scan completed :
          Cell 01 - Address: 00:11:22:33:44:55
                    Channel:36
                    Frequency:5.18 GHz (Channel 36)
                    Quality=60/70  Signal level=-45 dBm
                    Encryption key:on
                    ESSID:"HomeNet"
                    IE: IEEE 802.11i/WPA2 Version 1
                        Group Cipher : CCMP
                        Pairwise Ciphers (1) : CCMP
                        Authentication Suites (1) : PSK
          Cell 02 - Address: AA:BB:CC:DD:EE:FF
                    Quality=35/70  Signal level=-75 dBm
                    Encryption key:off
                    ESSID:"Guest"
          Cell 03 - Address: 10:20:30:40:50:60
                    Quality=42/70
                    Encryption key:on
                    ESSID:"Legacy"
          Cell 04 - Address: 11:22:33:44:55:66
                    Signal level=70/100
                    Encryption key:on
                    ESSID:"Modern"
                    IE: IEEE 802.11i/WPA2 Version 1
                        Authentication Suites (1) : SAE
          Cell 05 - Address: garbage
                    ESSID:"Bad"
`

const iwconfigOutput = `wlan0     IEEE 802.11  ESSID:"HomeNet"
          Mode:Managed  Frequency:5.18 GHz  Access Point: 00:11:22:33:44:55
          Bit Rate=866.7 Mb/s   Tx-Power=22 dBm
          Link Quality=60/70  Signal level=-62 dBm
`

func TestSplitTerse(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{`a:b:c`, []string{"a", "b", "c"}},
		{`00\:11\:22:x`, []string{"00:11:22", "x"}},
		{`back\\slash:`, []string{`back\slash`, ""}},
		{``, []string{""}},
	}
	for _, tt := range tests {
		got := splitTerse(tt.line)
		if len(got) != len(tt.want) {
			t.Errorf("splitTerse(%q) = %q, want %q", tt.line, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitTerse(%q) = %q, want %q", tt.line, got, tt.want)
				break
			}
		}
	}
}

func TestParseNmcliList(t *testing.T) {
	networks, skipped := parseNmcliList(nmcliListOutput)
	if skipped != 2 {
		t.Errorf("expected 2 skipped rows, got %d", skipped)
	}
	if len(networks) != 3 {
		t.Fatalf("expected 3 networks, got %d: %+v", len(networks), networks)
	}
	if n := networks[0]; n.SSID != "HomeNet" || n.BSSID != "00:11:22:33:44:55" || n.SignalStrength != 90 || n.Security != wifi.SecurityWPA2 {
		t.Errorf("unexpected HomeNet: %+v", n)
	}
	if n := networks[1]; n.SSID != "Corp: East" || n.Security != wifi.SecurityWPA2Enterprise || n.BSSID != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("unexpected Corp: %+v", n)
	}
	if n := networks[2]; n.Security != wifi.SecurityOpen {
		t.Errorf("Cafe should be open, got %s", n.Security)
	}
}

func TestParseNmcliActive(t *testing.T) {
	n := parseNmcliActive(nmcliActiveOutput)
	if n == nil || n.SSID != "HomeNet" || n.SignalStrength != 88 {
		t.Fatalf("unexpected active network: %+v", n)
	}
	if n := parseNmcliActive("no:Cafe:10\\:20\\:30\\:40\\:50\\:60:30:\n"); n != nil {
		t.Errorf("expected nil without an active row, got %+v", n)
	}
}

func TestParseNmcliConnections(t *testing.T) {
	output := "HomeNet:802-11-wireless:yes\nWired connection 1:802-3-ethernet:yes\nOffice:802-11-wireless:no\n"
	networks := parseNmcliConnections(output)
	if len(networks) != 2 {
		t.Fatalf("expected 2 wireless connections, got %+v", networks)
	}
	if !networks[0].Settings.AutoConnect || networks[1].Settings.AutoConnect {
		t.Errorf("autoconnect not parsed: %+v", networks)
	}
	if !networks[1].Saved || networks[1].BSSID != wifi.SyntheticBSSID("Office") {
		t.Errorf("unexpected saved record: %+v", networks[1])
	}
}

func TestParseIwlist(t *testing.T) {
	networks, skipped := parseIwlist(iwlistOutput)
	if skipped != 1 {
		t.Errorf("expected 1 skipped cell, got %d", skipped)
	}
	if len(networks) != 4 {
		t.Fatalf("expected 4 networks, got %d: %+v", len(networks), networks)
	}

	tests := []struct {
		ssid     string
		security wifi.SecurityType
		strength int
	}{
		{"HomeNet", wifi.SecurityWPA2, 100},
		{"Guest", wifi.SecurityOpen, 40},
		{"Legacy", wifi.SecurityWEP, 60},
		{"Modern", wifi.SecurityWPA3, 70},
	}
	for i, tt := range tests {
		n := networks[i]
		if n.SSID != tt.ssid || n.Security != tt.security || n.SignalStrength != tt.strength {
			t.Errorf("network %d = %+v, want %+v", i, n, tt)
		}
	}
}

func TestParseIwconfig(t *testing.T) {
	n := parseIwconfig(iwconfigOutput)
	if n == nil {
		t.Fatal("expected a current network")
	}
	if n.SSID != "HomeNet" || n.BSSID != "00:11:22:33:44:55" || n.SignalStrength != 60 {
		t.Errorf("unexpected network: %+v", n)
	}

	notAssociated := `wlan0     IEEE 802.11  ESSID:off/any
          Mode:Managed  Access Point: Not-Associated   Tx-Power=22 dBm
`
	if n := parseIwconfig(notAssociated); n != nil {
		t.Errorf("expected nil when not associated, got %+v", n)
	}
}

func TestIsAvailable(t *testing.T) {
	ctx := context.Background()

	a := newTestAdapter(t, testutil.NewFakeRunner())
	a.Bus = fakeBus{enabled: true, present: true, iface: "wlan0"}
	if !a.IsAvailable(ctx) {
		t.Error("expected D-Bus radio state to be used")
	}
	a.Bus = fakeBus{enabled: false, present: true, iface: "wlan0"}
	if a.IsAvailable(ctx) {
		t.Error("expected disabled radio to be unavailable")
	}

	r := testutil.NewFakeRunner().
		On("nmcli -t -f WIFI general", "enabled\n").
		On("nmcli -t -f DEVICE,TYPE device", "eth0:ethernet\nwlp2s0:wifi\n")
	if !newTestAdapter(t, r).IsAvailable(ctx) {
		t.Error("expected nmcli fallback to report available")
	}

	r = testutil.NewFakeRunner().
		Fail("nmcli -t -f WIFI general", errors.New("not found")).
		Fail("nmcli -t -f DEVICE,TYPE device", errors.New("not found")).
		On("iwconfig wlan0", iwconfigOutput)
	if !newTestAdapter(t, r).IsAvailable(ctx) {
		t.Error("expected iwconfig fallback to report available")
	}

	if newTestAdapter(t, testutil.NewFakeRunner()).IsAvailable(ctx) {
		t.Error("expected adapter to fail closed")
	}
}

func TestIsAvailableWithoutWirelessDevice(t *testing.T) {
	ctx := context.Background()
	devices := "eth0:ethernet\nlo:loopback\n"

	r := testutil.NewFakeRunner().On("nmcli -t -f DEVICE,TYPE device", devices)
	a := newTestAdapter(t, r)
	a.Bus = fakeBus{enabled: true, present: true}
	if a.IsAvailable(ctx) {
		t.Error("expected an enabled radio without a wireless device to be unavailable over D-Bus")
	}

	r = testutil.NewFakeRunner().
		On("nmcli -t -f WIFI general", "enabled\n").
		On("nmcli -t -f DEVICE,TYPE device", devices)
	if newTestAdapter(t, r).IsAvailable(ctx) {
		t.Error("expected an enabled radio without a wireless device to be unavailable via nmcli")
	}
}

func TestAvailableNetworksFallsBackToIwlist(t *testing.T) {
	r := testutil.NewFakeRunner().
		Fail("nmcli -t -f SSID,BSSID,SIGNAL,SECURITY device wifi list", errors.New("nmcli: not found")).
		On("nmcli -t -f DEVICE,TYPE device", "eth0:ethernet\nwlp2s0:wifi\n").
		On("iwlist wlp2s0 scan", iwlistOutput)

	networks, err := newTestAdapter(t, r).AvailableNetworks(context.Background())
	if err != nil {
		t.Fatalf("AvailableNetworks() error = %v", err)
	}
	if len(networks) != 4 {
		t.Errorf("expected iwlist networks, got %+v", networks)
	}
}

func TestCurrentNetworkFallbacks(t *testing.T) {
	ctx := context.Background()
	listCmd := "nmcli -t -f ACTIVE,SSID,BSSID,SIGNAL,SECURITY device wifi list"

	r := testutil.NewFakeRunner().On(listCmd, nmcliActiveOutput)
	n, err := newTestAdapter(t, r).CurrentNetwork(ctx)
	if err != nil || n == nil || n.SSID != "HomeNet" {
		t.Fatalf("CurrentNetwork() = %+v, %v", n, err)
	}

	station := wifi.NewNetwork("00:11:22:33:44:55", "HomeNet", wifi.SecurityUnknown, 80)
	r = testutil.NewFakeRunner().Fail(listCmd, errors.New("nmcli: not found"))
	a := newTestAdapter(t, r)
	a.Bus = fakeBus{iface: "wlan1"}
	a.Stations = fakeStations{network: &station}
	n, err = a.CurrentNetwork(ctx)
	if err != nil || n == nil || n.SignalStrength != 80 {
		t.Fatalf("CurrentNetwork() via nl80211 = %+v, %v", n, err)
	}

	r = testutil.NewFakeRunner().
		Fail(listCmd, errors.New("nmcli: not found")).
		Fail("nmcli -t -f DEVICE,TYPE device", errors.New("nmcli: not found")).
		On("iwconfig wlan0", iwconfigOutput)
	n, err = newTestAdapter(t, r).CurrentNetwork(ctx)
	if err != nil || n == nil || n.BSSID != "00:11:22:33:44:55" {
		t.Fatalf("CurrentNetwork() via iwconfig = %+v, %v", n, err)
	}
}

func TestConnectErrors(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewFakeRunner().
		On("nmcli device wifi connect HomeNet password secret", "Device 'wlan0' successfully activated with 'abc'.").
		Fail("nmcli device wifi connect HomeNet password wrong", errors.New("exit status 4: Error: Connection activation failed: Secrets were required, but not provided.")).
		Fail("nmcli device wifi connect Nowhere", errors.New("exit status 10: Error: No network with SSID 'Nowhere' found.")).
		Fail("nmcli device wifi connect Flaky", errors.New("exit status 4: Error: Connection activation failed."))
	a := newTestAdapter(t, r)

	if err := a.Connect(ctx, "HomeNet", "secret"); err != nil {
		t.Errorf("Connect() error = %v", err)
	}
	if err := a.Connect(ctx, "HomeNet", "wrong"); !errors.Is(err, wifi.ErrAuthenticationFailed) {
		t.Errorf("Connect(wrong) error = %v, want ErrAuthenticationFailed", err)
	}
	if err := a.Connect(ctx, "Nowhere", ""); !errors.Is(err, wifi.ErrNotFound) {
		t.Errorf("Connect(Nowhere) error = %v, want ErrNotFound", err)
	}
	if err := a.Connect(ctx, "Flaky", ""); !errors.Is(err, wifi.ErrConnectionFailed) {
		t.Errorf("Connect(Flaky) error = %v, want ErrConnectionFailed", err)
	}
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewFakeRunner().
		On("nmcli -t -f NAME,TYPE connection show --active", "Wired:802-3-ethernet\nHome Net:802-11-wireless\n").
		On("nmcli connection down Home Net", "Connection 'Home Net' successfully deactivated.")
	if err := newTestAdapter(t, r).Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !r.Called("nmcli connection down Home Net") {
		t.Errorf("expected connection down, calls: %v", r.Calls())
	}

	r = testutil.NewFakeRunner().On("nmcli -t -f NAME,TYPE connection show --active", "Wired:802-3-ethernet\n")
	if err := newTestAdapter(t, r).Disconnect(ctx); err != nil {
		t.Errorf("Disconnect() without a wireless connection error = %v", err)
	}
}
