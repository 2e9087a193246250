package notifications

import "time"

// Window is a daily local-time trigger window: Hour:Minute ± Tolerance minutes.
type Window struct {
	Hour      int
	Minute    int
	Tolerance int
}

// Production trigger windows. The tolerance is matched to an external
// scheduler firing every 10 to 15 minutes.
var (
	HomeworkReminderWindow = Window{Hour: 18, Minute: 0, Tolerance: 7}
	TeacherSummaryWindow   = Window{Hour: 7, Minute: 0, Tolerance: 7}
)

// Contains reports whether now falls inside the window in timezone.
func (w Window) Contains(timezone string, now time.Time) bool {
	return IsInWindow(timezone, w.Hour, w.Minute, w.Tolerance, now)
}

// IsInWindow converts now to wall-clock time in timezone and reports whether
// it lies within tolerance minutes (inclusive) of targetHour:targetMinute.
// It does not guard against being called twice in the same window.
func IsInWindow(timezone string, targetHour, targetMinute, toleranceMinutes int, now time.Time) bool {
	local := now.In(loadLocation(timezone))
	total := local.Hour()*60 + local.Minute()
	target := targetHour*60 + targetMinute
	return total >= target-toleranceMinutes && total <= target+toleranceMinutes
}

// LocalDate returns today's calendar date in timezone as YYYY-MM-DD.
func LocalDate(timezone string, now time.Time) string {
	return now.In(loadLocation(timezone)).Format(time.DateOnly)
}

// TomorrowLocalDate returns the calendar day after today's local date in
// timezone. The increment is done on a date-only value so 23 and 25 hour
// days around DST changes do not skew the result.
func TomorrowLocalDate(timezone string, now time.Time) string {
	local := now.In(loadLocation(timezone))
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, 1).Format(time.DateOnly)
}

// LocalClock returns now as zero-padded "HH:MM" in timezone.
func LocalClock(timezone string, now time.Time) string {
	return now.In(loadLocation(timezone)).Format("15:04")
}

// loadLocation falls back to UTC for empty or unknown zone names.
func loadLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
