package wifi

import (
	"reflect"
	"testing"
)

func TestSortNetworks(t *testing.T) {
	tests := []struct {
		name     string
		networks []Network
		expected []Network
	}{
		{
			name: "Sort by strength",
			networks: []Network{
				{SSID: "Weak", SignalStrength: 10},
				{SSID: "Strong", SignalStrength: 90},
			},
			expected: []Network{
				{SSID: "Strong", SignalStrength: 90},
				{SSID: "Weak", SignalStrength: 10},
			},
		},
		{
			name: "Sort by saved",
			networks: []Network{
				{SSID: "Unsaved", SignalStrength: 60},
				{SSID: "Saved", SignalStrength: 60, Saved: true},
			},
			expected: []Network{
				{SSID: "Saved", SignalStrength: 60, Saved: true},
				{SSID: "Unsaved", SignalStrength: 60},
			},
		},
		{
			name: "Sort by priority",
			networks: []Network{
				{SSID: "Low", Saved: true, Settings: NetworkSettings{Priority: 1}},
				{SSID: "High", Saved: true, Settings: NetworkSettings{Priority: 5}},
			},
			expected: []Network{
				{SSID: "High", Saved: true, Settings: NetworkSettings{Priority: 5}},
				{SSID: "Low", Saved: true, Settings: NetworkSettings{Priority: 1}},
			},
		},
		{
			name: "Sort by SSID",
			networks: []Network{
				{SSID: "B"},
				{SSID: "A"},
			},
			expected: []Network{
				{SSID: "A"},
				{SSID: "B"},
			},
		},
		{
			name: "Complex sort",
			networks: []Network{
				{SSID: "Saved Unseen", Saved: true},
				{SSID: "Visible Weak", SignalStrength: 20},
				{SSID: "Visible Strong", SignalStrength: 90},
				{SSID: "Unseen"},
			},
			expected: []Network{
				{SSID: "Visible Strong", SignalStrength: 90},
				{SSID: "Visible Weak", SignalStrength: 20},
				{SSID: "Saved Unseen", Saved: true},
				{SSID: "Unseen"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortNetworks(tt.networks)
			if !reflect.DeepEqual(tt.networks, tt.expected) {
				t.Errorf("SortNetworks() got = %v, want %v", tt.networks, tt.expected)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	saved := []Network{{
		BSSID:    "00:11:22:33:44:55",
		SSID:     "Home",
		Security: SecurityWPA2,
		Saved:    true,
		Settings: NetworkSettings{AutoConnect: true, RedirectURL: "http://portal", Priority: 3},
	}}
	scanned := []Network{
		NewNetwork("00:11:22:33:44:55", "Home", SecurityWPA2, 80),
		NewNetwork("AA:BB:CC:DD:EE:FF", "Cafe", SecurityOpen, 40),
		NewNetwork("aa:bb:cc:dd:ee:ff", "Cafe", SecurityOpen, 45),
		{SSID: "no bssid"},
	}

	got := Reconcile(scanned, saved)
	if len(got) != 2 {
		t.Fatalf("expected 2 networks, got %d: %v", len(got), got)
	}

	home := got[0]
	if !home.Saved {
		t.Error("Home should be marked saved")
	}
	if home.Settings.RedirectURL != "http://portal" || home.Settings.Priority != 3 {
		t.Errorf("saved settings should win, got %+v", home.Settings)
	}
	if home.SignalStrength != 80 {
		t.Errorf("scan-derived signal should be kept, got %d", home.SignalStrength)
	}

	cafe := got[1]
	if cafe.Saved {
		t.Error("Cafe should not be marked saved")
	}
	if cafe.SignalStrength != 45 {
		t.Errorf("later record for the same BSSID should win, got %d", cafe.SignalStrength)
	}
}
