package wifi

import "sort"

// SortNetworks sorts a slice of Networks in place.
// The sorting order is:
// 1. Observed networks, by signal strength (strongest first).
// 2. Saved networks before unsaved ones, then by priority (highest first).
// 3. Fallback to SSID alphabetically, then BSSID.
func SortNetworks(networks []Network) {
	sort.SliceStable(networks, func(i, j int) bool {
		a := networks[i]
		b := networks[j]

		if a.SignalStrength != b.SignalStrength {
			return a.SignalStrength > b.SignalStrength
		}

		if a.Saved != b.Saved {
			return a.Saved
		}
		if a.Settings.Priority != b.Settings.Priority {
			return a.Settings.Priority > b.Settings.Priority
		}

		if a.SSID != b.SSID {
			return a.SSID < b.SSID
		}
		return a.BSSID < b.BSSID
	})
}

// Reconcile merges scan results with the saved set. Records are keyed by
// BSSID; later scan records for the same radio replace earlier ones, and a
// saved record's settings always win over scan-derived defaults. Saved
// networks that were not observed are not included.
func Reconcile(scanned []Network, saved []Network) []Network {
	savedByBSSID := make(map[string]Network, len(saved))
	for _, s := range saved {
		savedByBSSID[NormalizeBSSID(s.BSSID)] = s
	}

	index := make(map[string]int, len(scanned))
	var result []Network
	for _, n := range scanned {
		key := NormalizeBSSID(n.BSSID)
		if key == "" {
			continue
		}
		n.BSSID = key
		if n.Type == "" {
			n.Type = NetworkTypeWiFi
		}
		if s, ok := savedByBSSID[key]; ok {
			n.Saved = true
			n.Settings = s.Settings
			if n.Security == SecurityUnknown {
				n.Security = s.Security
			}
		} else {
			n.Saved = false
		}
		if i, ok := index[key]; ok {
			result[i] = n
			continue
		}
		index[key] = len(result)
		result = append(result, n)
	}
	return result
}
