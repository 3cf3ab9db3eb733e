package schedules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
)

// fallbackInterval is used for frequencies the clock does not recognise.
const fallbackInterval = 24 * time.Hour

// TimeOfDay is a wall-clock hour and minute in the reference zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, apperr.Validation("time_of_day", "must be in HH:MM format")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, apperr.Validation("time_of_day", "hour must be between 00 and 23")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, apperr.Validation("time_of_day", "minute must be between 00 and 59")
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// NextRun returns the first run strictly after now. Daily and weekly
// schedules start from today at the time of day, monthly ones from the
// first of the current month; the candidate is then stepped forward by the
// recurrence until it passes now. Unknown frequencies run one day later.
// All computation happens in UTC.
func NextRun(frequency string, at TimeOfDay, now time.Time) time.Time {
	now = now.UTC()

	var (
		freq      rrule.Frequency
		candidate time.Time
	)
	switch frequency {
	case models.FrequencyDaily:
		freq = rrule.DAILY
		candidate = time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, time.UTC)
	case models.FrequencyWeekly:
		freq = rrule.WEEKLY
		candidate = time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, time.UTC)
	case models.FrequencyMonthly:
		freq = rrule.MONTHLY
		candidate = time.Date(now.Year(), now.Month(), 1, at.Hour, at.Minute, 0, 0, time.UTC)
	default:
		return now.Add(fallbackInterval)
	}

	if candidate.After(now) {
		return candidate
	}

	rule, err := rrule.NewRRule(rrule.ROption{Freq: freq, Dtstart: candidate})
	if err != nil {
		return now.Add(fallbackInterval)
	}
	next := rule.After(now, false)
	if next.IsZero() {
		return now.Add(fallbackInterval)
	}
	return next.UTC()
}

// IsKnownFrequency reports whether the clock has a recurrence for frequency.
func IsKnownFrequency(frequency string) bool {
	switch frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
		return true
	}
	return false
}
