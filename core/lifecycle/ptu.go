package lifecycle

import "time"

// PtuIndex returns the 1-based PTU index of t for the given PTU duration
// in minutes.
func PtuIndex(t time.Time, durationMinutes int) int {
	return (t.Hour()*60+t.Minute())/durationMinutes + 1
}

// NextBoundary returns the smallest instant >= t that falls on a PTU
// boundary: a multiple of the PTU duration in minutes past midnight,
// wrapping across midnight.
func NextBoundary(t time.Time, durationMinutes int) time.Time {
	minutes := t.Hour()*60 + t.Minute()
	if minutes%durationMinutes == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	next := (minutes/durationMinutes + 1) * durationMinutes
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.Add(time.Duration(next) * time.Minute)
}

// day truncates t to midnight of its calendar day.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
