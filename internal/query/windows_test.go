package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthlyWindowsSingleMonth(t *testing.T) {
	windows := MonthlyWindows(date(2024, time.March, 1), date(2024, time.March, 31))

	require.Len(t, windows, 1)
	assert.Equal(t, "20240301-20240331", windows[0].DateRange())
}

func TestMonthlyWindowsPartialEdges(t *testing.T) {
	windows := MonthlyWindows(date(2024, time.January, 15), date(2024, time.March, 10))

	require.Len(t, windows, 3)
	assert.Equal(t, "20240115-20240131", windows[0].DateRange())
	assert.Equal(t, "20240201-20240229", windows[1].DateRange()) // leap year
	assert.Equal(t, "20240301-20240310", windows[2].DateRange())
}

func TestMonthlyWindowsSingleDay(t *testing.T) {
	windows := MonthlyWindows(date(2024, time.June, 5), date(2024, time.June, 5))

	require.Len(t, windows, 1)
	assert.Equal(t, "20240605-20240605", windows[0].DateRange())
}

func TestMonthlyWindowsInvertedRange(t *testing.T) {
	assert.Empty(t, MonthlyWindows(date(2024, time.June, 1), date(2024, time.May, 1)))
}

// The windows must tile the range: start at from, end at to, and each
// window must begin the day after its predecessor ends.
func TestMonthlyWindowsTiling(t *testing.T) {
	from := date(2023, time.November, 20)
	to := date(2024, time.October, 3)

	windows := MonthlyWindows(from, to)
	require.NotEmpty(t, windows)

	assert.True(t, windows[0].Start.Equal(from))
	assert.True(t, windows[len(windows)-1].End.Equal(to))

	for i, w := range windows {
		assert.False(t, w.End.Before(w.Start), "window %d inverted", i)
		if i > 0 {
			assert.True(t, w.Start.Equal(windows[i-1].End.AddDate(0, 0, 1)),
				"gap or overlap between window %d and %d", i-1, i)
		}
	}
}

func TestMonthlyWindowsIgnoresTimeOfDay(t *testing.T) {
	from := time.Date(2024, time.April, 1, 13, 45, 0, 0, time.UTC)
	to := time.Date(2024, time.April, 30, 2, 10, 0, 0, time.UTC)

	windows := MonthlyWindows(from, to)
	require.Len(t, windows, 1)
	assert.Equal(t, "20240401-20240430", windows[0].DateRange())
}
