// Package clock abstracts wall-clock time and delayed callbacks so time-driven code can be tested.
package clock

import (
	"time"

	"github.com/robfig/cron/v3"
)

type (
	// Timer is a cancellable delayed callback.
	Timer interface {
		// Stop cancels the callback. It returns false if the callback already ran or was stopped.
		Stop() bool
	}

	// Clock tells the time and schedules delayed callbacks.
	Clock interface {
		Now() time.Time
		AfterFunc(d time.Duration, f func()) Timer
	}
)

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

var midnight cron.Schedule

func init() {
	var err error
	if midnight, err = cron.ParseStandard("@midnight"); err != nil {
		panic(err)
	}
}

// NextMidnight returns the first local midnight strictly after t, in loc.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return midnight.Next(t.In(loc))
}
