// Package daterange turns a named range option (or custom bounds) into a concrete window of calendar days.
package daterange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/mahudhurio/core/dates"
)

type Option string

const (
	Last7        Option = "last7"
	Last15       Option = "last15"
	LastMonth    Option = "lastMonth"
	CurrentMonth Option = "currentMonth"
	Last3Months  Option = "last3Months"
	Last6Months  Option = "last6Months"
	LastYear     Option = "lastYear"
	Custom       Option = "custom"

	// Default is used whenever an option or custom bounds can't be honoured.
	Default = Last7

	labelSep = " — "
)

var Options = []Option{Last7, Last15, LastMonth, CurrentMonth, Last3Months, Last6Months, LastYear, Custom}

// ParseOption matches s exactly against the known options, ignoring surrounding spaces. Unknown values yield Default.
func ParseOption(s string) Option {
	s = strings.TrimSpace(s)
	for _, opt := range Options {
		if string(opt) == s {
			return opt
		}
	}
	return Default
}

// Bounds are caller supplied YYYY-MM-DD dates for the Custom option.
type Bounds struct {
	Start string `json:"start" query:"start"`
	End   string `json:"end" query:"end"`
}

// Window is a contiguous, inclusive run of calendar days.
type Window struct {
	Option   Option
	Start    time.Time
	End      time.Time
	DayCount int
	Label    string
}

// Resolve computes the window for opt relative to today's calendar day (in today's location).
// It never fails: unknown options and Custom with missing or malformed bounds resolve like Last7.
// Custom bounds are kept as given, so an end before the start yields a single-day count.
func Resolve(opt Option, custom *Bounds, today time.Time) Window {
	today = dates.StartOfDay(today)

	var start, end time.Time
	switch opt {
	case Last7:
		start, end = dates.AddDays(today, -6), today
	case Last15:
		start, end = dates.AddDays(today, -14), today
	case LastMonth:
		start, end = dates.FirstOfMonth(today, -1), dates.LastOfPrevMonth(today)
	case CurrentMonth:
		start, end = dates.FirstOfMonth(today, 0), today
	case Last3Months:
		start, end = dates.FirstOfMonth(today, -3), dates.LastOfPrevMonth(today)
	case Last6Months:
		start, end = dates.FirstOfMonth(today, -6), dates.LastOfPrevMonth(today)
	case LastYear:
		start, end = dates.FirstOfMonth(today, -12), dates.LastOfPrevMonth(today)
	case Custom:
		var ok bool
		if start, end, ok = customBounds(custom, today.Location()); !ok {
			return Resolve(Default, nil, today)
		}
	default:
		return Resolve(Default, nil, today)
	}

	return Window{
		Option:   opt,
		Start:    start,
		End:      end,
		DayCount: dayCount(start, end),
		Label:    label(opt, start, end),
	}
}

func customBounds(b *Bounds, loc *time.Location) (start, end time.Time, ok bool) {
	if b == nil || strings.TrimSpace(b.Start) == "" || strings.TrimSpace(b.End) == "" {
		return
	}
	var err error
	if start, err = dates.Parse(b.Start, loc); err != nil {
		return
	}
	if end, err = dates.Parse(b.End, loc); err != nil {
		return
	}
	return start, end, true
}

func dayCount(start, end time.Time) int {
	if n := dates.DaysBetween(start, end) + 1; n > 1 {
		return n
	}
	return 1
}

func label(opt Option, start, end time.Time) string {
	switch opt {
	case LastMonth:
		return fmt.Sprintf("%s %d", start.Month(), start.Year())
	case Last3Months, Last6Months:
		return fmt.Sprintf("%s %d%s%s %d", start.Format("Jan"), start.Year(), labelSep, end.Format("Jan"), end.Year())
	default:
		return dates.Key(start) + labelSep + dates.Key(end)
	}
}

// StartKey returns the first day as YYYY-MM-DD.
func (w Window) StartKey() string { return dates.Key(w.Start) }

// EndKey returns the last day as YYYY-MM-DD.
func (w Window) EndKey() string { return dates.Key(w.End) }

// Days lists every calendar day of the window in order.
func (w Window) Days() []time.Time {
	days := make([]time.Time, 0, w.DayCount)
	for i := 0; i < w.DayCount; i++ {
		days = append(days, dates.AddDays(w.Start, i))
	}
	return days
}

// Contains reports whether t's calendar day is inside the window.
func (w Window) Contains(t time.Time) bool {
	day := dates.In(t, w.Start.Location())
	return !day.Before(w.Start) && !day.After(w.End)
}

type windowJSON struct {
	Option   Option `json:"option"`
	Start    string `json:"start"`
	End      string `json:"end"`
	DayCount int    `json:"day_count"`
	Label    string `json:"label"`
}

func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{
		Option:   w.Option,
		Start:    w.StartKey(),
		End:      w.EndKey(),
		DayCount: w.DayCount,
		Label:    w.Label,
	})
}
