package utils

import "time"

// NowUTC is the single clock used by scheduler and worker loops.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// EnsureUTC normalizes a timestamp read from the database to a UTC instant.
// Naive or session-local times are forbidden everywhere else.
func EnsureUTC(t time.Time) time.Time {
	return t.UTC()
}

func FormatClock(t time.Time) string {
	return t.UTC().Format("15:04")
}
