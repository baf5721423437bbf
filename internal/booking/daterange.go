package booking

import "time"

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DatesBetween returns every calendar date in [from, to), in order.
// It returns an empty slice when to <= from.
func DatesBetween(from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)

	dates := []time.Time{}
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// RemoveRange returns dates with every date in [from, to) removed,
// preserving the relative order of the remainder.
func RemoveRange(dates []time.Time, from, to time.Time) []time.Time {
	from, to = Day(from), Day(to)

	remaining := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if d.Before(from) || !d.Before(to) {
			remaining = append(remaining, d)
		}
	}
	return remaining
}
