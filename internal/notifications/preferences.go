package notifications

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is returned for quiet-hour bounds not shaped like HH:MM[:SS].
var ErrInvalidClock = errors.New("invalid clock value")

// ShouldSend decides whether a notification of category may reach the owner
// of prefs at now, evaluated in the school's timezone.
//
// A nil prefs row means everything is enabled and there are no quiet hours.
// Quiet hours compare zero-padded "HH:MM" strings, which order the same way
// as the times they denote. A window whose start is after its end wraps
// midnight. Malformed bounds disable the quiet-hours check.
func ShouldSend(prefs *Preferences, category Category, now time.Time, timezone string) bool {
	if prefs == nil {
		return true
	}
	if enabled, ok := prefs.Categories[category]; ok && !enabled {
		return false
	}
	if !prefs.QuietHoursEnabled || prefs.QuietHoursStart == "" || prefs.QuietHoursEnd == "" {
		return true
	}

	start, err := NormalizeClock(prefs.QuietHoursStart)
	if err != nil {
		return true
	}
	end, err := NormalizeClock(prefs.QuietHoursEnd)
	if err != nil {
		return true
	}

	return !inQuietHours(LocalClock(timezone, now), start, end)
}

func inQuietHours(local, start, end string) bool {
	if start > end {
		return local >= start || local < end
	}
	return local >= start && local < end
}

// NormalizeClock validates "HH:MM" or "HH:MM:SS" and returns "HH:MM".
func NormalizeClock(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	limits := []int{23, 59, 59}
	for i, p := range parts {
		if len(p) != 2 {
			return "", fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return "", fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	return parts[0] + ":" + parts[1], nil
}
