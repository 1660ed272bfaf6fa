package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampDays(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, DefaultDays},
		{-4, DefaultDays},
		{1, 1},
		{45, 45},
		{90, 90},
		{365, MaxDays},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClampDays(c.in), "in=%d", c.in)
	}
}

func TestDailyViewsZeroFilledOldestFirst(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	ts := []time.Time{
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC),  // before window
		time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC), // after window
	}
	got := DailyViews(now, 3, ts)
	require.Len(t, got, 3)
	assert.Equal(t, []DayCount{
		{Date: "2026-03-08", Views: 1},
		{Date: "2026-03-09", Views: 0},
		{Date: "2026-03-10", Views: 2},
	}, got)
	assert.Equal(t, 3, Total(got))
}

func TestDailyViewsUsesUTCDay(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*3600)
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, saoPaulo) // 2026-03-11 01:00 UTC
	// 21:30 local on the 10th is 00:30 UTC on the 11th.
	view := time.Date(2026, 3, 10, 21, 30, 0, 0, saoPaulo)
	got := DailyViews(now, 2, []time.Time{view})
	assert.Equal(t, []DayCount{{Date: "2026-03-10"}, {Date: "2026-03-11", Views: 1}}, got)
}

func TestDailyViewsEmpty(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := DailyViews(now, 30, nil)
	require.Len(t, got, 30)
	assert.Equal(t, "2025-12-03", got[0].Date)
	assert.Equal(t, "2026-01-01", got[29].Date)
	assert.Zero(t, Total(got))
	assert.Equal(t, time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC), WindowStart(now, 30))
}
