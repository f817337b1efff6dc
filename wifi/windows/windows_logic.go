package windows

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/shazow/wifimgr/wifi"
)

var (
	ssidHeaderRe  = regexp.MustCompile(`^SSID \d+\s*:\s?(.*)$`)
	bssidHeaderRe = regexp.MustCompile(`^BSSID \d+\s*:\s*(.+)$`)
	percentRe     = regexp.MustCompile(`^(\d+)\s*%$`)
)

// keyValue splits a netsh "Key    : value" line at the first colon. Values
// such as BSSIDs may contain further colons.
func keyValue(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

func parsePercent(s string) (int, bool) {
	m := percentRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return wifi.ClampStrength(pct), true
}

type bssidEntry struct {
	bssid  string
	signal int
	valid  bool
}

// parseNetworks parses `netsh wlan show networks mode=bssid`. Every BSSID
// under an SSID block becomes one Network; entries with an unparseable
// address or signal are skipped individually.
func parseNetworks(output string) (networks []wifi.Network, skipped int) {
	var (
		ssid     string
		security wifi.SecurityType
		inSSID   bool
		current  *bssidEntry
	)

	flush := func() {
		if current == nil {
			return
		}
		if current.valid && wifi.ValidBSSID(current.bssid) {
			networks = append(networks, wifi.NewNetwork(current.bssid, ssid, security, current.signal))
		} else {
			skipped++
		}
		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := ssidHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			ssid = strings.TrimSpace(m[1])
			security = wifi.SecurityOpen
			inSSID = true
			continue
		}
		if !inSSID {
			continue
		}
		if m := bssidHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &bssidEntry{bssid: strings.TrimSpace(m[1])}
			continue
		}

		key, value, ok := keyValue(line)
		if !ok {
			continue
		}
		switch key {
		case "Authentication":
			security = wifi.ParseSecurity(value)
		case "Signal":
			if current != nil {
				current.signal, current.valid = parsePercent(value)
			}
		}
	}
	flush()
	return networks, skipped
}

// parseInterfaces parses `netsh wlan show interfaces` and returns the first
// connected interface's network, or nil.
func parseInterfaces(output string) *wifi.Network {
	fields := map[string]string{}

	finish := func() *wifi.Network {
		defer func() { fields = map[string]string{} }()
		if !strings.EqualFold(fields["State"], "connected") {
			return nil
		}
		bssid := fields["BSSID"]
		if bssid == "" {
			bssid = fields["AP BSSID"]
		}
		if !wifi.ValidBSSID(bssid) {
			return nil
		}
		signal, _ := parsePercent(fields["Signal"])
		n := wifi.NewNetwork(bssid, fields["SSID"], wifi.ParseSecurity(fields["Authentication"]), signal)
		return &n
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := keyValue(scanner.Text())
		if !ok {
			continue
		}
		// Each interface block starts with its Name.
		if key == "Name" && len(fields) > 0 {
			if n := finish(); n != nil {
				return n
			}
		}
		if _, seen := fields[key]; !seen {
			fields[key] = value
		}
	}
	return finish()
}

// parseProfiles parses `netsh wlan show profiles`.
func parseProfiles(output string) []wifi.Network {
	var networks []wifi.Network
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := keyValue(scanner.Text())
		if !ok || value == "" {
			continue
		}
		if key != "All User Profile" && key != "Current User Profile" {
			continue
		}
		n := wifi.NewNetwork(wifi.SyntheticBSSID(value), value, wifi.SecurityUnknown, 0)
		n.Saved = true
		networks = append(networks, n)
	}
	return networks
}

// hasInterface reports whether `netsh wlan show interfaces` lists any
// wireless interface.
func hasInterface(output string) bool {
	if strings.Contains(output, "There is no wireless interface") {
		return false
	}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if key, _, ok := keyValue(scanner.Text()); ok && key == "Name" {
			return true
		}
	}
	return false
}
