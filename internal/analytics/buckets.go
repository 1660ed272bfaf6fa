// Package analytics turns raw event view timestamps into the daily series
// shown on the organizer dashboard.
package analytics

import "time"

const (
	DefaultDays = 30
	MaxDays     = 90
)

// DayCount is the number of views on one UTC calendar day.
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Views int    `json:"views"`
}

// ClampDays bounds a requested window to [1, MaxDays]; zero or negative
// selects DefaultDays.
func ClampDays(days int) int {
	switch {
	case days <= 0:
		return DefaultDays
	case days > MaxDays:
		return MaxDays
	}
	return days
}

// WindowStart returns midnight UTC of the first day of a window of days
// days ending on now's UTC day.
func WindowStart(now time.Time, days int) time.Time {
	today := truncateDay(now)
	return today.AddDate(0, 0, -(days - 1))
}

// DailyViews buckets timestamps by UTC day over the window of days days
// ending today.  Every day in the window appears exactly once, oldest
// first, with zero for days without views.  Timestamps outside the window
// are ignored.
func DailyViews(now time.Time, days int, timestamps []time.Time) []DayCount {
	start := WindowStart(now, days)
	out := make([]DayCount, days)
	for i := range out {
		out[i].Date = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	for _, ts := range timestamps {
		d := truncateDay(ts)
		if d.Before(start) {
			continue
		}
		idx := int(d.Sub(start).Hours() / 24)
		if idx >= days {
			continue
		}
		out[idx].Views++
	}
	return out
}

// Total sums the views of a series.
func Total(series []DayCount) int {
	n := 0
	for _, d := range series {
		n += d.Views
	}
	return n
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
