// Package testfixtures carries the shared test doubles: a controllable
// clock and an in-memory stand-in for the hosted data platform.
package testfixtures

import "time"

// ReferenceTime is the fixed instant portal tests anchor to.
func ReferenceTime() time.Time {
	return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
}
