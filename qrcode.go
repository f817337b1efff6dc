package main

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/shazow/wifimgr/wifi"
)

// EscapeWifiString handles the special character escaping for SSID and Password.
func EscapeWifiString(s string) string {
	// A replacer is more efficient than calling strings.Replace multiple times.
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		`:`, `\:`,
		`"`, `\"`,
	)
	return r.Replace(s)
}

// WifiQRString builds the WIFI: URI that phones understand when scanning a
// joining QR code.
func WifiQRString(ssid, password string, security wifi.SecurityType, isHidden bool) string {
	var b strings.Builder

	b.WriteString("WIFI:S:")
	b.WriteString(EscapeWifiString(ssid))
	b.WriteString(";")

	switch security {
	case wifi.SecurityWPA, wifi.SecurityWPA2, wifi.SecurityWPA3:
		b.WriteString("T:WPA;P:")
		b.WriteString(EscapeWifiString(password))
		b.WriteString(";")
	case wifi.SecurityWEP:
		b.WriteString("T:WEP;P:")
		b.WriteString(EscapeWifiString(password))
		b.WriteString(";")
	case wifi.SecurityOpen:
		b.WriteString("T:nopass;")
	default:
		// Enterprise and unknown networks have no standard form; readers
		// assume WPA when T is missing.
		if password != "" {
			b.WriteString("P:")
			b.WriteString(EscapeWifiString(password))
			b.WriteString(";")
		}
	}

	if isHidden {
		b.WriteString("H:true;")
	}

	b.WriteString(";")
	return b.String()
}

// GenerateWifiQRCode returns a terminal-friendly QR code for the network.
func GenerateWifiQRCode(ssid, password string, security wifi.SecurityType, isHidden bool) (string, error) {
	q, err := qrcode.New(WifiQRString(ssid, password, security, isHidden), qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
