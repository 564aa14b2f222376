package dispatch

import "time"

// BusinessDaysBetween counts the Monday-to-Friday days after from, up to and
// including to. Same-day and reversed ranges yield zero. Public holidays are
// not modeled; the partner's production calendar ignores them too.
//
// Days are calendar days in UTC, stepped via time.Date so DST shifts in the
// inputs' locations cannot stretch or shrink a day.
func BusinessDaysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	day := startOfDayUTC(from)
	end := startOfDayUTC(to)
	days := 0
	for day.Before(end) {
		day = day.AddDate(0, 0, 1)
		switch day.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}

func startOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
