// Package stats derives institution and study-time statistics from a
// normalized result set.
package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/otcheredev/pacs-study-toolkit/internal/models"
)

// Timeframe selects a trailing window of studies, measured back from an
// explicit reference time.
type Timeframe string

const (
	TimeframeAll       Timeframe = "all"
	TimeframeSixMonths Timeframe = "6m"
	TimeframeThree     Timeframe = "3m"
	TimeframeOneMonth  Timeframe = "1m"
)

// ParseTimeframe validates a timeframe flag value.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TimeframeAll, TimeframeSixMonths, TimeframeThree, TimeframeOneMonth:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("invalid timeframe %q (expected all, 6m, 3m or 1m)", s)
}

// months returns the trailing window length, 0 meaning unbounded.
func (tf Timeframe) months() int {
	switch tf {
	case TimeframeSixMonths:
		return 6
	case TimeframeThree:
		return 3
	case TimeframeOneMonth:
		return 1
	}
	return 0
}

// ParseStudyDateTime combines DICOM DA and TM values into a time.Time.
// Fractional seconds are dropped; a missing or short time value defaults
// its remaining components to zero.
func ParseStudyDateTime(date, tm string) (time.Time, error) {
	if len(date) != 8 {
		return time.Time{}, fmt.Errorf("invalid study date %q", date)
	}

	if idx := strings.IndexByte(tm, '.'); idx != -1 {
		tm = tm[:idx]
	}
	for len(tm) < 6 {
		tm += "0"
	}

	return time.Parse("20060102150405", date+tm[:6])
}

// Filter returns the records whose study date falls inside the trailing
// timeframe window ending at now. The reference time is an explicit
// parameter so results are reproducible. Records with unparseable dates
// are kept only for the unbounded timeframe.
func Filter(records models.ResultSet, tf Timeframe, now time.Time) models.ResultSet {
	if tf.months() == 0 {
		return records
	}

	cutoff := now.AddDate(0, -tf.months(), 0)

	var kept models.ResultSet
	for _, record := range records {
		studyTime, err := ParseStudyDateTime(record[models.LabelStudyDate], record[models.LabelStudyTime])
		if err != nil {
			continue
		}
		if !studyTime.Before(cutoff) && !studyTime.After(now) {
			kept = append(kept, record)
		}
	}

	return kept
}
