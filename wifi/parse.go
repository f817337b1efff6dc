package wifi

import (
	"crypto/sha1"
	"fmt"
	"net"
	"strings"
)

// SignalFromRSSI converts a dBm reading into the 0-100 scale used by Network.
// Every adapter must use this staircase so strengths compare across platforms.
func SignalFromRSSI(dbm int) int {
	switch {
	case dbm >= -50:
		return 100
	case dbm >= -60:
		return 80
	case dbm >= -70:
		return 60
	case dbm >= -80:
		return 40
	case dbm >= -90:
		return 20
	default:
		return 10
	}
}

// ClampStrength bounds a percentage to 0-100.
func ClampStrength(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

var enterpriseTokens = []string{"ENTERPRISE", "802.1X", "EAP"}

// ParseSecurity infers the security type from free-form tool output such as
// "WPA2-Personal", "WPA1 WPA2 802.1X" or "WPA2(PSK/AES/AES)".
// The most specific tokens are checked first.
func ParseSecurity(s string) SecurityType {
	s = strings.ToUpper(s)
	switch {
	case strings.Contains(s, "WPA3"):
		return SecurityWPA3
	case strings.Contains(s, "WPA2"):
		for _, token := range enterpriseTokens {
			if strings.Contains(s, token) {
				return SecurityWPA2Enterprise
			}
		}
		return SecurityWPA2
	case strings.Contains(s, "WPA"):
		return SecurityWPA
	case strings.Contains(s, "WEP"):
		return SecurityWEP
	}
	return SecurityOpen
}

// NormalizeBSSID returns the canonical lower-case, zero-padded, colon
// separated form of a MAC address. Input that does not parse is returned
// lower-cased and trimmed.
func NormalizeBSSID(bssid string) string {
	bssid = strings.TrimSpace(bssid)
	parts := strings.Split(bssid, ":")
	if len(parts) == 6 {
		for i, p := range parts {
			if len(p) == 1 {
				parts[i] = "0" + p
			}
		}
		bssid = strings.Join(parts, ":")
	}
	if hw, err := net.ParseMAC(bssid); err == nil && len(hw) == 6 {
		return hw.String()
	}
	return strings.ToLower(bssid)
}

// ValidBSSID reports whether s is a 6-octet MAC address.
func ValidBSSID(s string) bool {
	hw, err := net.ParseMAC(NormalizeBSSID(s))
	return err == nil && len(hw) == 6
}

// SameBSSID compares two BSSIDs case-insensitively.
func SameBSSID(a, b string) bool {
	return a != "" && NormalizeBSSID(a) == NormalizeBSSID(b)
}

// SyntheticBSSID derives a stable, locally administered MAC address for
// records whose tool does not expose the radio address (saved OS profiles,
// system_profiler output).
func SyntheticBSSID(ssid string) string {
	sum := sha1.Sum([]byte(ssid))
	return fmt.Sprintf("02:%02x:%02x:%02x:%02x:%02x", sum[0], sum[1], sum[2], sum[3], sum[4])
}
