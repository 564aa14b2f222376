package dispatch

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestBusinessDaysBetween(t *testing.T) {
	monday := date(2026, time.August, 3)

	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same day", monday, monday, 0},
		{"reversed range", monday, monday.Add(-48 * time.Hour), 0},
		{"monday to tuesday", monday, date(2026, time.August, 4), 1},
		{"monday to friday", monday, date(2026, time.August, 7), 4},
		{"friday over weekend to monday", date(2026, time.August, 7), date(2026, time.August, 10), 1},
		{"two full weeks", monday, date(2026, time.August, 17), 10},
		{"saturday to sunday", date(2026, time.August, 8), date(2026, time.August, 9), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := BusinessDaysBetween(tc.from, tc.to); got != tc.want {
				t.Fatalf("BusinessDaysBetween(%v, %v) = %d, want %d", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestBusinessDaysBetweenLocationIndependent(t *testing.T) {
	// Dispatch timestamps come back from Postgres in whatever location the
	// driver picked; the count must depend on the instants only.
	west := time.FixedZone("UTC-11", -11*3600)
	east := time.FixedZone("UTC+13", 13*3600)

	from := time.Date(2026, time.August, 9, 5, 0, 0, 0, time.UTC)  // Sunday
	to := time.Date(2026, time.August, 11, 5, 0, 0, 0, time.UTC)   // Tuesday
	want := 2                                                      // Monday, Tuesday

	for _, loc := range []*time.Location{time.UTC, west, east} {
		if got := BusinessDaysBetween(from.In(loc), to.In(loc)); got != want {
			t.Fatalf("count in %v = %d, want %d", loc, got, want)
		}
	}
}

func TestBusinessDaysBetweenNonUTCWeekendBoundary(t *testing.T) {
	west := time.FixedZone("UTC-11", -11*3600)

	// Local Friday evening is already Saturday in UTC; the UTC calendar is
	// the one the count follows.
	from := time.Date(2026, time.August, 7, 18, 0, 0, 0, west) // Sat 05:00 UTC
	to := time.Date(2026, time.August, 10, 18, 0, 0, 0, west)  // Tue 05:00 UTC
	if got := BusinessDaysBetween(from, to); got != 2 {
		t.Fatalf("BusinessDaysBetween = %d, want 2 (Monday and Tuesday UTC)", got)
	}
}
