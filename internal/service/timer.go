package service

import "time"

// Deadline is the absolute instant an attempt started at start expires.
func Deadline(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}

// Remaining is the time left before the deadline, never negative.
func Remaining(start time.Time, durationMinutes int, now time.Time) time.Duration {
	left := Deadline(start, durationMinutes).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether now is at or past the deadline.
func Expired(start time.Time, durationMinutes int, now time.Time) bool {
	return !now.Before(Deadline(start, durationMinutes))
}
