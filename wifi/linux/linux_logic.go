package linux

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/shazow/wifimgr/wifi"
)

// splitTerse splits one line of `nmcli -t` output. Separators inside values
// are escaped as `\:` and backslashes as `\\`.
func splitTerse(line string) []string {
	var (
		fields []string
		field  strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			field.WriteByte(line[i])
		case c == ':':
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	return append(fields, field.String())
}

func parseNmcliNetwork(fields []string) (wifi.Network, bool) {
	ssid, bssid, signal, security := fields[0], fields[1], fields[2], fields[3]
	if !wifi.ValidBSSID(bssid) {
		return wifi.Network{}, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(signal))
	if err != nil {
		return wifi.Network{}, false
	}
	return wifi.NewNetwork(bssid, ssid, wifi.ParseSecurity(security), pct), true
}

// parseNmcliList parses `nmcli -t -f SSID,BSSID,SIGNAL,SECURITY device wifi list`.
func parseNmcliList(output string) (networks []wifi.Network, skipped int) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitTerse(line)
		if len(fields) != 4 {
			skipped++
			continue
		}
		n, ok := parseNmcliNetwork(fields)
		if !ok {
			skipped++
			continue
		}
		networks = append(networks, n)
	}
	return networks, skipped
}

// parseNmcliActive parses `nmcli -t -f ACTIVE,SSID,BSSID,SIGNAL,SECURITY
// device wifi list` and returns the active network, or nil.
func parseNmcliActive(output string) *wifi.Network {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) != 5 || fields[0] != "yes" {
			continue
		}
		if n, ok := parseNmcliNetwork(fields[1:]); ok {
			return &n
		}
	}
	return nil
}

func isWifiConnectionType(t string) bool {
	return t == "802-11-wireless" || t == "wifi"
}

// parseNmcliConnections parses `nmcli -t -f NAME,TYPE,AUTOCONNECT connection show`.
func parseNmcliConnections(output string) []wifi.Network {
	var networks []wifi.Network
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) < 2 || !isWifiConnectionType(fields[1]) {
			continue
		}
		name := fields[0]
		n := wifi.NewNetwork(wifi.SyntheticBSSID(name), name, wifi.SecurityUnknown, 0)
		n.Saved = true
		if len(fields) > 2 {
			n.Settings.AutoConnect = fields[2] == "yes"
		}
		networks = append(networks, n)
	}
	return networks
}

// parseActiveWifiConnection parses `nmcli -t -f NAME,TYPE connection show
// --active` and returns the first wireless connection name.
func parseActiveWifiConnection(output string) string {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) >= 2 && isWifiConnectionType(fields[1]) {
			return fields[0]
		}
	}
	return ""
}

// parseNmcliDevices parses `nmcli -t -f DEVICE,TYPE device`.
func parseNmcliDevices(output string) string {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) >= 2 && fields[1] == "wifi" {
			return fields[0]
		}
	}
	return ""
}

var (
	cellRe        = regexp.MustCompile(`Cell \d+ - Address:\s*(\S+)`)
	essidRe       = regexp.MustCompile(`ESSID:"(.*)"`)
	signalDBmRe   = regexp.MustCompile(`Signal level[=:]\s*(-?\d+)\s*dBm`)
	signalRatioRe = regexp.MustCompile(`Signal level[=:]\s*(\d+)/(\d+)`)
	qualityRe     = regexp.MustCompile(`Quality[=:]\s*(\d+)/(\d+)`)
	accessPointRe = regexp.MustCompile(`Access Point:\s*(\S+)`)
)

func ratio(num, den string) (int, bool) {
	n, err1 := strconv.Atoi(num)
	d, err2 := strconv.Atoi(den)
	if err1 != nil || err2 != nil || d == 0 {
		return 0, false
	}
	return wifi.ClampStrength(n * 100 / d), true
}

// signalFromWirelessTools reads "Signal level=-50 dBm", "Signal level=70/100"
// or "Quality=42/70", in that order of preference.
func signalFromWirelessTools(line string) (int, bool) {
	if m := signalDBmRe.FindStringSubmatch(line); m != nil {
		if dbm, err := strconv.Atoi(m[1]); err == nil {
			return wifi.SignalFromRSSI(dbm), true
		}
	}
	if m := signalRatioRe.FindStringSubmatch(line); m != nil {
		return ratio(m[1], m[2])
	}
	if m := qualityRe.FindStringSubmatch(line); m != nil {
		return ratio(m[1], m[2])
	}
	return 0, false
}

type iwlistCell struct {
	bssid     string
	ssid      string
	signal    int
	encrypted bool
	tokens    []string
}

func (c iwlistCell) security() wifi.SecurityType {
	if !c.encrypted {
		return wifi.SecurityOpen
	}
	if len(c.tokens) == 0 {
		return wifi.SecurityWEP
	}
	return wifi.ParseSecurity(strings.Join(c.tokens, " "))
}

// parseIwlist parses `iwlist <if> scan`.
func parseIwlist(output string) (networks []wifi.Network, skipped int) {
	var cell *iwlistCell

	flush := func() {
		if cell == nil {
			return
		}
		if wifi.ValidBSSID(cell.bssid) {
			networks = append(networks, wifi.NewNetwork(cell.bssid, cell.ssid, cell.security(), cell.signal))
		} else {
			skipped++
		}
		cell = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := cellRe.FindStringSubmatch(line); m != nil {
			flush()
			cell = &iwlistCell{bssid: m[1]}
			continue
		}
		if cell == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "ESSID:"):
			if m := essidRe.FindStringSubmatch(line); m != nil {
				cell.ssid = m[1]
			}
		case strings.HasPrefix(line, "Encryption key:"):
			cell.encrypted = strings.HasSuffix(line, "on")
		case strings.HasPrefix(line, "IE:"):
			ie := strings.TrimSpace(strings.TrimPrefix(line, "IE:"))
			if !strings.HasPrefix(ie, "Unknown") {
				cell.tokens = append(cell.tokens, ie)
			}
		case strings.HasPrefix(line, "Authentication Suites"):
			if _, suites, ok := strings.Cut(line, ":"); ok {
				suites = strings.TrimSpace(suites)
				if strings.Contains(strings.ToUpper(suites), "SAE") {
					suites += " WPA3"
				}
				cell.tokens = append(cell.tokens, suites)
			}
		default:
			if signal, ok := signalFromWirelessTools(line); ok {
				cell.signal = signal
			}
		}
	}
	flush()
	return networks, skipped
}

// parseIwconfig parses `iwconfig <if>` and returns the associated network,
// or nil. Security is not reported by iwconfig.
func parseIwconfig(output string) *wifi.Network {
	var (
		ssid, bssid string
		signal      int
	)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if m := essidRe.FindStringSubmatch(line); m != nil {
			ssid = m[1]
		}
		if m := accessPointRe.FindStringSubmatch(line); m != nil {
			bssid = m[1]
		}
		if s, ok := signalFromWirelessTools(line); ok {
			signal = s
		}
	}
	if ssid == "" || !wifi.ValidBSSID(bssid) {
		return nil
	}
	n := wifi.NewNetwork(bssid, ssid, wifi.SecurityUnknown, signal)
	return &n
}

// hasWirelessExtensions reports whether iwconfig output lists a wireless
// interface.
func hasWirelessExtensions(output string) bool {
	return strings.Contains(output, "IEEE 802.11")
}
