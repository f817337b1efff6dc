package darwin

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shazow/wifimgr/wifi"
)

var (
	bssidRe  = regexp.MustCompile(`[0-9a-fA-F]{1,2}(?::[0-9a-fA-F]{1,2}){5}`)
	signalRe = regexp.MustCompile(`Signal / Noise:\s*(-?\d+)\s*dBm`)
)

// parseAirportScan parses `airport -s`. The SSID column is right aligned and
// may contain spaces, so each row is split around the BSSID.
func parseAirportScan(output string) (networks []wifi.Network, skipped int) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		loc := bssidRe.FindStringIndex(line)
		if loc == nil {
			if strings.TrimSpace(line) != "" && !strings.Contains(line, "BSSID") {
				skipped++
			}
			continue
		}
		ssid := strings.TrimSpace(line[:loc[0]])
		bssid := line[loc[0]:loc[1]]

		// RSSI CHANNEL HT CC SECURITY...
		fields := strings.Fields(line[loc[1]:])
		if len(fields) < 1 {
			skipped++
			continue
		}
		rssi, err := strconv.Atoi(fields[0])
		if err != nil {
			skipped++
			continue
		}
		security := ""
		if len(fields) > 4 {
			security = strings.Join(fields[4:], " ")
		}
		networks = append(networks, wifi.NewNetwork(bssid, ssid, wifi.ParseSecurity(security), wifi.SignalFromRSSI(rssi)))
	}
	return networks, skipped
}

// parseAirportInfo parses `airport -I`. It returns nil when the radio is off
// or not associated.
func parseAirportInfo(output string) *wifi.Network {
	fields := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if strings.EqualFold(fields["AirPort"], "Off") {
		return nil
	}
	ssid := fields["SSID"]
	if ssid == "" {
		return nil
	}

	bssid := fields["BSSID"]
	if !wifi.ValidBSSID(bssid) {
		// Recent releases redact the BSSID without location permission.
		bssid = wifi.SyntheticBSSID(ssid)
	}
	strength := 0
	if rssi, err := strconv.Atoi(fields["agrCtlRSSI"]); err == nil && rssi < 0 {
		strength = wifi.SignalFromRSSI(rssi)
	}
	n := wifi.NewNetwork(bssid, ssid, wifi.ParseSecurity(fields["link auth"]), strength)
	return &n
}

// parseSystemProfilerOutput parses `system_profiler SPAirPortDataType`.
// Networks carry synthetic BSSIDs since system_profiler does not print them.
func parseSystemProfilerOutput(output string) []wifi.Network {
	var (
		networks      []wifi.Network
		index         = map[string]int{}
		sectionIndent = -1
		current       *wifi.Network
	)

	flush := func() {
		if current == nil {
			return
		}
		if i, seen := index[current.SSID]; seen {
			if networks[i].SignalStrength == 0 {
				networks[i].SignalStrength = current.SignalStrength
			}
		} else {
			index[current.SSID] = len(networks)
			networks = append(networks, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " "))

		if trimmed == "Current Network Information:" || trimmed == "Other Local Wi-Fi Networks:" {
			flush()
			sectionIndent = indent
			continue
		}
		// Stop at the next interface (like awdl0).
		if strings.HasPrefix(trimmed, "awdl") {
			break
		}
		if sectionIndent < 0 || trimmed == "" {
			continue
		}
		if indent <= sectionIndent {
			flush()
			sectionIndent = -1
			continue
		}

		if strings.HasSuffix(trimmed, ":") && !strings.Contains(trimmed, ": ") {
			flush()
			ssid := strings.TrimSuffix(trimmed, ":")
			n := wifi.NewNetwork(wifi.SyntheticBSSID(ssid), ssid, wifi.SecurityOpen, 0)
			current = &n
			continue
		}
		if current == nil {
			continue
		}
		if m := signalRe.FindStringSubmatch(line); m != nil {
			if rssi, err := strconv.Atoi(m[1]); err == nil {
				current.SignalStrength = wifi.SignalFromRSSI(rssi)
			}
		}
		if value, ok := strings.CutPrefix(trimmed, "Security:"); ok {
			current.Security = wifi.ParseSecurity(value)
		}
	}
	flush()
	return networks
}

// parsePreferredNetworks parses `networksetup -listpreferredwirelessnetworks`.
func parsePreferredNetworks(output string) ([]wifi.Network, error) {
	var networks []wifi.Network
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Contains(line, "is not a Wi-Fi interface") || strings.HasPrefix(line, "Error") {
			return nil, fmt.Errorf("%s: %w", line, wifi.ErrOperationFailed)
		}
		if strings.HasPrefix(line, "Preferred networks on") {
			continue
		}
		n := wifi.NewNetwork(wifi.SyntheticBSSID(line), line, wifi.SecurityUnknown, 0)
		n.Saved = true
		networks = append(networks, n)
	}
	return networks, nil
}

// parseAirportNetwork parses `networksetup -getairportnetwork` and returns
// the SSID, or "" when not associated.
func parseAirportNetwork(output string) string {
	ssid, ok := strings.CutPrefix(strings.TrimSpace(output), "Current Wi-Fi Network:")
	if !ok {
		return ""
	}
	return strings.TrimSpace(ssid)
}

// findWifiDevice parses the output of `networksetup -listallhardwareports` to find the Wi-Fi device.
func findWifiDevice(output string) (string, error) {
	// The output is a series of stanzas, separated by blank lines.
	for _, stanza := range strings.Split(output, "\n\n") {
		var device string
		isWifiPort := false
		for _, line := range strings.Split(stanza, "\n") {
			if port, ok := strings.CutPrefix(line, "Hardware Port: "); ok {
				isWifiPort = strings.Contains(port, "Wi-Fi") || strings.Contains(port, "AirPort")
			}
			if d, ok := strings.CutPrefix(line, "Device: "); ok {
				device = strings.TrimSpace(d)
			}
		}
		if isWifiPort && device != "" {
			return device, nil
		}
	}
	return "", fmt.Errorf("no Wi-Fi interface found: %w", wifi.ErrNotFound)
}
