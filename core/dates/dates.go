// Package dates holds the local-calendar helpers every attendance computation goes through.
// Calendar days are always built from their components in the school's location, never by
// parsing strings as UTC instants, so a date never shifts by a day across timezones.
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Layout is the canonical calendar-day layout used on the wire.
const Layout = "2006-01-02"

var errInvalidClock = errors.New("invalid time of day, expected HH:MM")

// ToLocalDateKey builds the YYYY-MM-DD key of the given calendar components.
// Out of range components are normalized the way time.Date does (e.g. month 13 is January of next year).
func ToLocalDateKey(y int, m time.Month, d int) string {
	return Key(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// Date returns local midnight of the given calendar day in loc.
func Date(y int, m time.Month, d int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// StartOfDay returns midnight of t's calendar day, in t's own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// In returns midnight of the calendar day t falls on when observed from loc.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return StartOfDay(t.In(loc))
}

// Key formats t's calendar day as YYYY-MM-DD (in t's location).
func Key(t time.Time) string {
	return t.Format(Layout)
}

// LocalKey converts an instant (e.g. a created_at timestamp) to the local calendar day key.
func LocalKey(instant time.Time, loc *time.Location) string {
	return Key(In(instant, loc))
}

// Parse parses a YYYY-MM-DD string as local midnight in loc.
func Parse(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing date %q", s)
	}
	return t, nil
}

// AddDays moves t by n calendar days, keeping it at local midnight across DST changes.
func AddDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from a to b (negative if b is before a).
// Each day is read in its own location.
func DaysBetween(a, b time.Time) int {
	return int(dayNumber(b) - dayNumber(a))
}

// dayNumber counts days since the Unix epoch for t's calendar day.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// SameDay reports whether a and b fall on the same calendar day (each in its own location).
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FirstOfMonth returns the first day of t's month, offset by the given number of months.
func FirstOfMonth(t time.Time, monthOffset int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(monthOffset), 1, 0, 0, 0, 0, t.Location())
}

// LastOfPrevMonth returns the last day of the month preceding t's month.
func LastOfPrevMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 0, 0, 0, 0, 0, t.Location())
}

// Clock is a time of day, e.g. an expected arrival time.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (a trailing ":SS" is accepted and ignored).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, errInvalidClock
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, errInvalidClock
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, errInvalidClock
	}
	return Clock{Hour: h, Minute: m}, nil
}

// On returns the instant of this time of day on day's calendar date, in day's location.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
