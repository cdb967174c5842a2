// Package calendar decides which days are school days and which days a user may still edit.
package calendar

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/dates"
)

// Calendar knows the school's timezone and its non-working days: every Sunday plus a list of holidays.
type Calendar struct {
	loc *time.Location

	mu       sync.RWMutex
	holidays map[string]struct{}
}

// New returns a Calendar for loc (time.Local when nil). Holidays are YYYY-MM-DD keys.
func New(loc *time.Location, holidays ...string) (*Calendar, error) {
	if loc == nil {
		loc = time.Local
	}
	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		if err := c.AddHoliday(h); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

// AddHoliday marks the YYYY-MM-DD day as a holiday.
func (c *Calendar) AddHoliday(key string) error {
	day, err := dates.Parse(key, c.loc)
	if err != nil {
		return errors.Wrap(err, "calendar.AddHoliday")
	}
	c.mu.Lock()
	c.holidays[dates.Key(day)] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Holidays returns the registered holiday keys, sorted.
func (c *Calendar) Holidays() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.holidays))
	for k := range c.holidays {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Day returns the local calendar day t falls on.
func (c *Calendar) Day(t time.Time) time.Time {
	return dates.In(t, c.loc)
}

// IsHoliday reports whether day is in the holiday list.
func (c *Calendar) IsHoliday(day time.Time) bool {
	c.mu.RLock()
	_, ok := c.holidays[dates.LocalKey(day, c.loc)]
	c.mu.RUnlock()
	return ok
}

// IsOffDay reports whether day is a Sunday or a holiday. Off days never take a status.
func (c *Calendar) IsOffDay(day time.Time) bool {
	return c.Day(day).Weekday() == time.Sunday || c.IsHoliday(day)
}

// IsToday reports whether day is the same local calendar day as now.
func (c *Calendar) IsToday(day, now time.Time) bool {
	return c.Day(day).Equal(c.Day(now))
}

// IsFuture reports whether day is after now's local calendar day.
func (c *Calendar) IsFuture(day, now time.Time) bool {
	return c.Day(day).After(c.Day(now))
}

// CanEdit reports whether a status may be set on day:
// never on off days or future days, any other day for admins, only today for everyone else.
func (c *Calendar) CanEdit(day, now time.Time, admin bool) bool {
	if c.IsOffDay(day) || c.IsFuture(day, now) {
		return false
	}
	return admin || c.IsToday(day, now)
}
