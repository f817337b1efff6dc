package darwin

import (
	"context"
	"errors"
	"testing"

	"github.com/shazow/wifimgr/internal/testutil"
	"github.com/shazow/wifimgr/wifi"
)

const hardwarePortsOutput = `Hardware Port: Wi-Fi
Device: en0
Ethernet Address: a1:b2:c3:d4:e5:f6

Hardware Port: Bluetooth PAN
Device: en8
Ethernet Address: a1:b2:c3:d4:e5:f7

Hardware Port: Thunderbolt Bridge
Device: bridge0
Ethernet Address: a1:b2:c3:d4:e5:f8`

const airportScanOutput = `                            SSID BSSID             RSSI CHANNEL HT CC SECURITY (auth/unicast/group)
                     HomeNetwork 00:11:22:33:44:55 -48  36      Y  US WPA2(PSK/AES/AES)
                    Corp Network 0:1a:2b:3c:4d:5e  -63  149     Y  US WPA2(802.1x/AES/AES)
                       OpenCafe 66:77:88:99:aa:bb -85  6       Y  -- NONE
                         garbage 66:77:88:99:aa:bc n/a
`

const airportInfoOutput = `     agrCtlRSSI: -58
     agrExtRSSI: 0
    agrCtlNoise: -92
          state: running
        op mode: station
     lastTxRate: 866
    802.11 auth: open
      link auth: wpa2-psk
          BSSID: 0:11:22:33:44:55
           SSID: HomeNetwork
        channel: 36,80
`

const systemProfilerOutput = `Wi-Fi:

      Software Versions:
          CoreWLAN: 16.0 (1657)
      Interfaces:
        en0:
          Card Type: Wi-Fi
          Status: Connected
          Current Network Information:
            MyHomeNetwork:
              PHY Mode: 802.11ac
              Channel: 36 (5GHz, 80MHz)
              Network Type: Infrastructure
              Security: WPA2 Personal
              Signal / Noise: -55 dBm / -95 dBm
              Transmit Rate: 866
          Other Local Wi-Fi Networks:
            NeighborWiFi:
              PHY Mode: 802.11n
              Channel: 6 (2GHz, 20MHz)
              Network Type: Infrastructure
              Security: WPA2 Personal
              Signal / Noise: -75 dBm / -90 dBm
            OpenCafe:
              PHY Mode: 802.11g
              Channel: 11 (2GHz, 20MHz)
              Network Type: Infrastructure
              Security: Open
        awdl0:
          MAC Address: 00:11:22:33:44:55`

const preferredOutput = `Preferred networks on en0:
	HomeNetwork
	Office Guest
`

func TestFindWifiDevice(t *testing.T) {
	device, err := findWifiDevice(hardwarePortsOutput)
	if err != nil {
		t.Fatalf("findWifiDevice returned an error: %v", err)
	}
	if device != "en0" {
		t.Fatalf(`findWifiDevice returned "%s", want "en0"`, device)
	}

	_, err = findWifiDevice("Hardware Port: Ethernet\nDevice: en1\n")
	if !errors.Is(err, wifi.ErrNotFound) {
		t.Errorf("expected ErrNotFound without a Wi-Fi port, got %v", err)
	}
}

func TestParseAirportScan(t *testing.T) {
	networks, skipped := parseAirportScan(airportScanOutput)
	if skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", skipped)
	}
	if len(networks) != 3 {
		t.Fatalf("expected 3 networks, got %d", len(networks))
	}

	tests := []struct {
		ssid     string
		bssid    string
		security wifi.SecurityType
		strength int
	}{
		{"HomeNetwork", "00:11:22:33:44:55", wifi.SecurityWPA2, 100},
		{"Corp Network", "00:1a:2b:3c:4d:5e", wifi.SecurityWPA2Enterprise, 60},
		{"OpenCafe", "66:77:88:99:aa:bb", wifi.SecurityOpen, 20},
	}
	for i, tt := range tests {
		n := networks[i]
		if n.SSID != tt.ssid || n.BSSID != tt.bssid || n.Security != tt.security || n.SignalStrength != tt.strength {
			t.Errorf("network %d = %+v, want %+v", i, n, tt)
		}
	}
}

func TestParseAirportInfo(t *testing.T) {
	n := parseAirportInfo(airportInfoOutput)
	if n == nil {
		t.Fatal("expected a current network")
	}
	if n.SSID != "HomeNetwork" || n.BSSID != "00:11:22:33:44:55" {
		t.Errorf("unexpected identity: %+v", n)
	}
	if n.SignalStrength != 80 || n.Security != wifi.SecurityWPA2 {
		t.Errorf("unexpected signal/security: %+v", n)
	}

	if n := parseAirportInfo("AirPort: Off\n"); n != nil {
		t.Errorf("expected nil when the radio is off, got %+v", n)
	}
	if n := parseAirportInfo("     agrCtlRSSI: 0\n          state: init\n"); n != nil {
		t.Errorf("expected nil when not associated, got %+v", n)
	}
}

func TestParseSystemProfilerOutput(t *testing.T) {
	networks := parseSystemProfilerOutput(systemProfilerOutput)

	if len(networks) != 3 {
		t.Fatalf("expected 3 networks, got %d: %+v", len(networks), networks)
	}

	byName := map[string]wifi.Network{}
	for _, n := range networks {
		byName[n.SSID] = n
	}

	home, ok := byName["MyHomeNetwork"]
	if !ok {
		t.Fatal("MyHomeNetwork not found in parsed networks")
	}
	if home.SignalStrength != 80 {
		t.Errorf("MyHomeNetwork strength should be 80, got %d", home.SignalStrength)
	}
	if home.Security != wifi.SecurityWPA2 {
		t.Errorf("MyHomeNetwork security should be WPA2, got %v", home.Security)
	}
	if home.BSSID != wifi.SyntheticBSSID("MyHomeNetwork") {
		t.Errorf("MyHomeNetwork should have a synthetic BSSID, got %q", home.BSSID)
	}

	if n := byName["NeighborWiFi"]; n.SignalStrength != 40 {
		t.Errorf("NeighborWiFi strength should be 40, got %d", n.SignalStrength)
	}
	if n := byName["OpenCafe"]; n.Security != wifi.SecurityOpen || n.SignalStrength != 0 {
		t.Errorf("OpenCafe should be open and unobserved, got %+v", n)
	}
}

func TestParsePreferredNetworks(t *testing.T) {
	networks, err := parsePreferredNetworks(preferredOutput)
	if err != nil {
		t.Fatalf("parsePreferredNetworks() error = %v", err)
	}
	if len(networks) != 2 || networks[1].SSID != "Office Guest" {
		t.Fatalf("unexpected preferred networks: %+v", networks)
	}
	if !networks[0].Saved || networks[0].Security != wifi.SecurityUnknown {
		t.Errorf("preferred networks should be saved with unknown security: %+v", networks[0])
	}

	if _, err := parsePreferredNetworks("en1 is not a Wi-Fi interface.\n"); !errors.Is(err, wifi.ErrOperationFailed) {
		t.Errorf("expected ErrOperationFailed, got %v", err)
	}
}

func newFakeAdapter(t *testing.T) (*Adapter, *testutil.FakeRunner) {
	r := testutil.NewFakeRunner().
		On("networksetup -listallhardwareports", hardwarePortsOutput).
		On("networksetup -getairportpower en0", "Wi-Fi Power (en0): On").
		On("networksetup -listpreferredwirelessnetworks en0", preferredOutput)
	return New(r, testutil.Logger(t)), r
}

func TestAvailableNetworksFallback(t *testing.T) {
	ctx := context.Background()

	a, r := newFakeAdapter(t)
	r.Fail(AirportPath+" -s", errors.New("no such file"))
	r.On("system_profiler SPAirPortDataType", systemProfilerOutput)

	networks, err := a.AvailableNetworks(ctx)
	if err != nil {
		t.Fatalf("AvailableNetworks() error = %v", err)
	}
	if len(networks) != 3 {
		t.Errorf("expected system_profiler networks, got %+v", networks)
	}

	a, r = newFakeAdapter(t)
	r.Fail(AirportPath+" -s", errors.New("no such file"))
	r.Fail("system_profiler SPAirPortDataType", errors.New("timed out"))

	networks, err = a.AvailableNetworks(ctx)
	if err != nil {
		t.Fatalf("AvailableNetworks() error = %v", err)
	}
	if len(networks) != 2 || networks[0].SSID != "HomeNetwork" {
		t.Errorf("expected preferred networks, got %+v", networks)
	}
}

func TestIsAvailable(t *testing.T) {
	ctx := context.Background()
	a, r := newFakeAdapter(t)
	if !a.IsAvailable(ctx) {
		t.Error("expected adapter to be available")
	}

	r.On("networksetup -getairportpower en0", "Wi-Fi Power (en0): Off")
	if a.IsAvailable(ctx) {
		t.Error("expected adapter to be unavailable with the radio off")
	}

	if New(testutil.NewFakeRunner(), testutil.Logger(t)).IsAvailable(ctx) {
		t.Error("expected adapter to fail closed without networksetup")
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	a, r := newFakeAdapter(t)
	r.On("networksetup -setairportnetwork en0 HomeNetwork secret", "").
		On("networksetup -setairportnetwork en0 Nowhere", "Could not find network Nowhere.").
		On("networksetup -setairportnetwork en0 HomeNetwork wrong", "Failed to join network HomeNetwork.\nError: -3900  The operation couldn't be completed.")

	if err := a.Connect(ctx, "HomeNetwork", "secret"); err != nil {
		t.Errorf("Connect() error = %v", err)
	}
	if err := a.Connect(ctx, "Nowhere", ""); !errors.Is(err, wifi.ErrNotFound) {
		t.Errorf("Connect(Nowhere) error = %v, want ErrNotFound", err)
	}
	if err := a.Connect(ctx, "HomeNetwork", "wrong"); !errors.Is(err, wifi.ErrAuthenticationFailed) {
		t.Errorf("Connect(wrong password) error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestDisconnectCyclesPower(t *testing.T) {
	a, r := newFakeAdapter(t)
	r.On("networksetup -setairportpower en0 off", "").
		On("networksetup -setairportpower en0 on", "")

	if err := a.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	calls := r.Calls()
	if calls[len(calls)-2] != "networksetup -setairportpower en0 off" || calls[len(calls)-1] != "networksetup -setairportpower en0 on" {
		t.Errorf("unexpected command order: %v", calls)
	}
}
