// goban/utils/system.go
package utils

import (
	"time"
)

// Now returns the current time. Useful for mocking in tests.
func Now() time.Time {
	return time.Now()
}

// SQLNow returns the current time in UTC for database storage.
func SQLNow() time.Time {
	return time.Now().UTC()
}
