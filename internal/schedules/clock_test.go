package schedules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name      string
		frequency string
		at        TimeOfDay
		now       string
		want      string
	}{
		{"daily later today", "daily", TimeOfDay{8, 0}, "2024-01-01T07:00:00Z", "2024-01-01T08:00:00Z"},
		{"daily already passed", "daily", TimeOfDay{8, 0}, "2024-01-01T09:00:00Z", "2024-01-02T08:00:00Z"},
		{"daily exactly now", "daily", TimeOfDay{8, 0}, "2024-01-01T08:00:00Z", "2024-01-02T08:00:00Z"},
		{"daily across year end", "daily", TimeOfDay{0, 30}, "2023-12-31T23:00:00Z", "2024-01-01T00:30:00Z"},
		{"weekly later today", "weekly", TimeOfDay{18, 15}, "2024-03-06T10:00:00Z", "2024-03-06T18:15:00Z"},
		{"weekly passed", "weekly", TimeOfDay{8, 0}, "2024-03-06T10:00:00Z", "2024-03-13T08:00:00Z"},
		{"monthly before first run", "monthly", TimeOfDay{8, 0}, "2024-03-01T07:59:00Z", "2024-03-01T08:00:00Z"},
		{"monthly mid month", "monthly", TimeOfDay{8, 0}, "2024-01-31T12:00:00Z", "2024-02-01T08:00:00Z"},
		{"monthly across year end", "monthly", TimeOfDay{6, 0}, "2024-12-15T00:00:00Z", "2025-01-01T06:00:00Z"},
		{"monthly february", "monthly", TimeOfDay{8, 0}, "2024-02-29T23:59:00Z", "2024-03-01T08:00:00Z"},
		{"unknown frequency", "hourly", TimeOfDay{8, 0}, "2024-01-01T09:00:00Z", "2024-01-02T09:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.frequency, tt.at, mustTime(t, tt.now))
			assert.True(t, mustTime(t, tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestNextRunAlwaysMovesForward(t *testing.T) {
	start := mustTime(t, "2024-01-01T00:00:00Z")
	times := []TimeOfDay{{0, 0}, {8, 0}, {12, 30}, {23, 59}}
	for _, frequency := range []string{"daily", "weekly", "monthly", "quarterly"} {
		for _, at := range times {
			// Step through a leap year in uneven increments.
			for now := start; now.Before(start.AddDate(1, 0, 1)); now = now.Add(7*time.Hour + 13*time.Minute) {
				next := NextRun(frequency, at, now)
				require.Truef(t, next.After(now), "%s %s at %s gave %s", frequency, at, now, next)
			}
		}
	}
}

func TestNextRunUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, loc) // 07:00Z
	got := NextRun("daily", TimeOfDay{8, 0}, now)
	assert.True(t, mustTime(t, "2024-01-01T08:00:00Z").Equal(got))
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("08:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 8, Minute: 5}, got)
	assert.Equal(t, "08:05", got.String())

	got, err = ParseTimeOfDay("7:30")
	require.NoError(t, err)
	assert.Equal(t, "07:30", got.String())

	for _, bad := range []string{"", "8", "24:00", "12:60", "ab:cd", "12:30:00", "-1:10"} {
		_, err := ParseTimeOfDay(bad)
		assert.Truef(t, apperr.IsValidation(err), "expected validation error for %q", bad)
	}
}
