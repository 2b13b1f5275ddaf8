package query

import (
	"fmt"
	"time"
)

// Window is one contiguous study-date range, both bounds inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// DateRange renders the window as a DICOM date-range matching value.
func (w Window) DateRange() string {
	return fmt.Sprintf("%s-%s", w.Start.Format("20060102"), w.End.Format("20060102"))
}

// MonthlyWindows tiles [from, to] with calendar-month windows: no gaps,
// no overlap, union exactly covering the range. Archives commonly cap
// per-request response sizes, so one month per request keeps responses
// bounded. An inverted range yields no windows.
func MonthlyWindows(from, to time.Time) []Window {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil
	}

	var windows []Window
	start := from
	for !start.After(to) {
		monthEnd := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location()).
			AddDate(0, 1, -1)
		end := monthEnd
		if end.After(to) {
			end = to
		}
		windows = append(windows, Window{Start: start, End: end})
		start = end.AddDate(0, 0, 1)
	}

	return windows
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
