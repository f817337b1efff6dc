package netmgr

import (
	"errors"
	"math"
	"time"

	"github.com/shazow/wifimgr/wifi"
)

// RetryDelay returns the backoff before retry n (1-based): base * 1.5^(n-1).
func RetryDelay(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(float64(base) * math.Pow(1.5, float64(n-1)))
}

var terminalErrors = []error{
	wifi.ErrPasswordRequired,
	wifi.ErrCredentialsNotFound,
	wifi.ErrPermissionDenied,
	wifi.ErrNotAvailable,
	wifi.ErrProfileRequired,
}

// IsRetryable reports whether a failed connection attempt may be retried.
// Retrying will not fix missing secrets, privileges or hardware.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range terminalErrors {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}
