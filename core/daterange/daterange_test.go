package daterange

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/core/dates"
)

func day(y int, m time.Month, d int) time.Time {
	return dates.Date(y, m, d, time.UTC)
}

func TestResolve(t *testing.T) {
	today := time.Date(2024, time.June, 15, 16, 45, 0, 0, time.UTC)

	tests := []struct {
		name      string
		option    Option
		custom    *Bounds
		wantStart time.Time
		wantEnd   time.Time
		wantDays  int
		wantLabel string
	}{
		{
			name: "last7", option: Last7,
			wantStart: day(2024, time.June, 9), wantEnd: day(2024, time.June, 15), wantDays: 7,
			wantLabel: "2024-06-09 — 2024-06-15",
		},
		{
			name: "last15", option: Last15,
			wantStart: day(2024, time.June, 1), wantEnd: day(2024, time.June, 15), wantDays: 15,
			wantLabel: "2024-06-01 — 2024-06-15",
		},
		{
			name: "lastMonth", option: LastMonth,
			wantStart: day(2024, time.May, 1), wantEnd: day(2024, time.May, 31), wantDays: 31,
			wantLabel: "May 2024",
		},
		{
			name: "currentMonth", option: CurrentMonth,
			wantStart: day(2024, time.June, 1), wantEnd: day(2024, time.June, 15), wantDays: 15,
			wantLabel: "2024-06-01 — 2024-06-15",
		},
		{
			name: "last3Months", option: Last3Months,
			wantStart: day(2024, time.March, 1), wantEnd: day(2024, time.May, 31), wantDays: 92,
			wantLabel: "Mar 2024 — May 2024",
		},
		{
			name: "last6Months", option: Last6Months,
			wantStart: day(2023, time.December, 1), wantEnd: day(2024, time.May, 31), wantDays: 183,
			wantLabel: "Dec 2023 — May 2024",
		},
		{
			name: "lastYear", option: LastYear,
			wantStart: day(2023, time.June, 1), wantEnd: day(2024, time.May, 31), wantDays: 366,
			wantLabel: "2023-06-01 — 2024-05-31",
		},
		{
			name: "custom", option: Custom, custom: &Bounds{Start: "2024-02-27", End: "2024-03-02"},
			wantStart: day(2024, time.February, 27), wantEnd: day(2024, time.March, 2), wantDays: 5,
			wantLabel: "2024-02-27 — 2024-03-02",
		},
		{
			name: "custom single day", option: Custom, custom: &Bounds{Start: "2024-06-10", End: "2024-06-10"},
			wantStart: day(2024, time.June, 10), wantEnd: day(2024, time.June, 10), wantDays: 1,
			wantLabel: "2024-06-10 — 2024-06-10",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Resolve(tt.option, tt.custom, today)
			assert.Equal(t, tt.option, w.Option)
			assert.True(t, tt.wantStart.Equal(w.Start), "start = %v, want %v", w.Start, tt.wantStart)
			assert.True(t, tt.wantEnd.Equal(w.End), "end = %v, want %v", w.End, tt.wantEnd)
			assert.Equal(t, tt.wantDays, w.DayCount)
			assert.Equal(t, tt.wantLabel, w.Label)
			assert.False(t, w.End.Before(w.Start))
		})
	}
}

func TestResolveFallsBackToLast7(t *testing.T) {
	today := day(2024, time.June, 15)
	want := Resolve(Last7, nil, today)

	tests := []struct {
		name   string
		option Option
		custom *Bounds
	}{
		{name: "custom without bounds", option: Custom},
		{name: "custom with empty bounds", option: Custom, custom: &Bounds{}},
		{name: "custom missing end", option: Custom, custom: &Bounds{Start: "2024-06-01"}},
		{name: "custom malformed", option: Custom, custom: &Bounds{Start: "01/06/2024", End: "2024-06-10"}},
		{name: "unknown option", option: Option("fortnight")},
		{name: "empty option", option: Option("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, want, Resolve(tt.option, tt.custom, today))
		})
	}
}

func TestResolveCustomKeepsInvertedBounds(t *testing.T) {
	w := Resolve(Custom, &Bounds{Start: "2024-06-10", End: "2024-06-01"}, day(2024, time.June, 15))
	assert.Equal(t, Custom, w.Option)
	assert.Equal(t, "2024-06-10", w.StartKey())
	assert.Equal(t, "2024-06-01", w.EndKey())
	assert.Equal(t, 1, w.DayCount, "day count is floored at 1")
	assert.Equal(t, "2024-06-10 — 2024-06-01", w.Label)
	assert.Len(t, w.Days(), 1)
}

func TestResolveLast7EndsToday(t *testing.T) {
	eat := time.FixedZone("EAT", 3*60*60)
	// 22:30 UTC on the 15th is already the 16th in EAT
	now := time.Date(2024, time.June, 15, 22, 30, 0, 0, time.UTC).In(eat)

	w := Resolve(Last7, nil, now)
	assert.Equal(t, 7, w.DayCount)
	assert.Equal(t, "2024-06-16", w.EndKey())
	assert.Equal(t, "2024-06-10", w.StartKey())
}

func TestResolveLastMonthAcrossYear(t *testing.T) {
	w := Resolve(LastMonth, nil, day(2025, time.January, 3))
	assert.Equal(t, "2024-12-01", w.StartKey())
	assert.Equal(t, "2024-12-31", w.EndKey())
	assert.Equal(t, "December 2024", w.Label)

	for _, today := range []time.Time{day(2024, time.March, 31), day(2024, time.July, 1), day(2023, time.March, 15)} {
		w := Resolve(LastMonth, nil, today)
		prev := dates.FirstOfMonth(today, -1)
		assert.Equal(t, prev.Month(), w.Start.Month())
		assert.Equal(t, prev.Month(), w.End.Month())
		assert.Equal(t, 1, w.Start.Day())
		assert.Equal(t, 1, dates.AddDays(w.End, 1).Day())
	}
}

func TestResolveKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// DST starts on 2024-03-10
	w := Resolve(Custom, &Bounds{Start: "2024-03-08", End: "2024-03-12"}, time.Date(2024, time.March, 20, 9, 0, 0, 0, loc))
	assert.Equal(t, 5, w.DayCount)
	assert.Equal(t, loc, w.Start.Location())
	assert.Len(t, w.Days(), 5)
	for i, d := range w.Days() {
		assert.Equal(t, 0, d.Hour(), "day %d", i)
	}
}

func TestParseOption(t *testing.T) {
	assert.Equal(t, LastMonth, ParseOption("lastMonth"))
	assert.Equal(t, Last3Months, ParseOption(" last3Months "))
	assert.Equal(t, Last7, ParseOption("LASTMONTH"), "options are case sensitive")
	assert.Equal(t, Last7, ParseOption("Custom"))
	assert.Equal(t, Custom, ParseOption("custom"))
	assert.Equal(t, Last7, ParseOption("yesterday"))
	assert.Equal(t, Last7, ParseOption(""))
}

func TestWindow(t *testing.T) {
	w := Resolve(Last7, nil, day(2024, time.June, 15))

	days := w.Days()
	require.Len(t, days, 7)
	assert.Equal(t, "2024-06-09", dates.Key(days[0]))
	assert.Equal(t, "2024-06-15", dates.Key(days[6]))

	assert.True(t, w.Contains(time.Date(2024, time.June, 9, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2024, time.June, 15, 23, 59, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, time.June, 16, 0, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, time.June, 8, 12, 0, 0, 0, time.UTC)))

	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"option":"last7","start":"2024-06-09","end":"2024-06-15","day_count":7,"label":"2024-06-09 — 2024-06-15"}`, string(b))
}
