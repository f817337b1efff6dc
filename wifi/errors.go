package wifi

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported     = errors.New("not supported")
	ErrNotFound         = errors.New("not found")
	ErrNotAvailable     = errors.New("wifi adapter not available")
	ErrOperationFailed  = errors.New("operation failed")
	ErrWirelessDisabled = errors.New("wireless is disabled")

	ErrScanInProgress       = errors.New("scan already in progress")
	ErrConnectionInProgress = errors.New("connection attempt already in progress")
	ErrPasswordRequired     = errors.New("password required")
	ErrConnectionTimeout    = errors.New("connection timed out")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrCredentialsNotFound  = errors.New("credentials not found")

	// ErrProfileRequired is returned when the platform can only join networks
	// that already have a stored profile.
	ErrProfileRequired = fmt.Errorf("a saved profile is required: %w", ErrNotSupported)
)

var taxonomy = []error{
	ErrNotSupported,
	ErrNotFound,
	ErrNotAvailable,
	ErrOperationFailed,
	ErrWirelessDisabled,
	ErrScanInProgress,
	ErrConnectionInProgress,
	ErrPasswordRequired,
	ErrConnectionTimeout,
	ErrConnectionFailed,
	ErrAuthenticationFailed,
	ErrPermissionDenied,
	ErrCredentialsNotFound,
}

// IsKnown reports whether err wraps one of the package's sentinel errors.
func IsKnown(err error) bool {
	for _, target := range taxonomy {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
