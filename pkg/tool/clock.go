package tool

import "time"

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// SystemClock returns UTC wall time truncated to microseconds, the
// precision Postgres stores, so values read back compare equal.
func SystemClock() Clock {
	return func() time.Time {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
}
