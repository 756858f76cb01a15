package scheduler

import (
	"testing"
	"time"
)

func TestNextStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset) }

	cases := []struct {
		name      string
		current   string
		scheduled time.Time
		want      string
	}{
		{"completed stays completed", "completed", day(-30), "completed"},
		{"overdue stays overdue", "overdue", day(3), "overdue"},
		{"past date becomes overdue", "pending", day(-1), "overdue"},
		{"today becomes upcoming", "pending", day(0), "upcoming"},
		{"within a week becomes upcoming", "pending", day(7), "upcoming"},
		{"beyond a week stays pending", "pending", day(8), "pending"},
		{"upcoming past date becomes overdue", "upcoming", day(-2), "overdue"},
		{"upcoming far out reverts to pending", "upcoming", day(20), "pending"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextStatus(tc.current, tc.scheduled, now); got != tc.want {
				t.Errorf("NextStatus(%q, %s) = %q, want %q", tc.current, tc.scheduled.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

// A run shortly after local midnight must already see yesterday's schedule
// as overdue, even while UTC is still on the previous day.
func TestNextStatusUsesLocalCalendarDay(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)
	// 01:00 June 15 in Nairobi is 22:00 June 14 UTC.
	now := time.Date(2025, 6, 15, 1, 0, 0, 0, nairobi)
	scheduled := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)

	if got := NextStatus("pending", scheduled, now); got != "overdue" {
		t.Errorf("NextStatus = %q, want overdue", got)
	}

	// Today's schedule is upcoming, not overdue.
	scheduled = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if got := NextStatus("pending", scheduled, now); got != "upcoming" {
		t.Errorf("NextStatus = %q, want upcoming", got)
	}
}
