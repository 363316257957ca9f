package service

import "time"

// Clock returns the current instant. Tests substitute a fixed clock.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

// NewSystemClock is the fx provider for the wall clock.
func NewSystemClock() Clock {
	return SystemClock
}
