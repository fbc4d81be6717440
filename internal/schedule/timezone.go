package schedule

import (
	"fmt"
	"time"
)

// NormalizeClockTime converts an "HH:MM" wall clock entered in the given
// IANA zone into its UTC representation, using the zone's offset at the
// moment the user saves. Persisting the UTC clock here keeps every later
// calculation timezone-free.
func NormalizeClockTime(clock, tzName string, now time.Time) (string, error) {
	if tzName == "" || tzName == "UTC" {
		if _, err := time.Parse("15:04", clock); err != nil {
			return "", fmt.Errorf("invalid time %q: %w", clock, err)
		}
		return clock, nil
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return "", fmt.Errorf("invalid timezone %q: %w", tzName, err)
	}
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: %w", clock, err)
	}

	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc)
	return at.UTC().Format("15:04"), nil
}
