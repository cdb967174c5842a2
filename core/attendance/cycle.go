package attendance

import (
	"time"

	"github.com/trezcool/mahudhurio/core/dates"
)

// DefaultLateGrace is how long after the expected arrival time a subject still counts as present.
const DefaultLateGrace = 15 * time.Minute

// Next returns the status a click on a day's status control moves to:
// none -> present -> absent -> leave -> present -> ...
// Late is never reached by cycling; a late record cycles to absent, like present does.
func Next(current Status) Status {
	switch current {
	case StatusPresent, StatusLate:
		return StatusAbsent
	case StatusAbsent:
		return StatusLeave
	default:
		return StatusPresent
	}
}

// FollowUpFor returns the reason collection flow a write of st must trigger.
func FollowUpFor(st Status) FollowUp {
	switch st {
	case StatusLeave:
		return FollowUpLeaveReason
	case StatusLate:
		return FollowUpLateReason
	default:
		return FollowUpNone
	}
}

// IsLate reports whether a mark made at now for day is late: day must be now's calendar day (in day's
// location) and now must be more than grace past expected on that day. A negative grace means DefaultLateGrace.
func IsLate(now time.Time, expected dates.Clock, day time.Time, grace time.Duration) bool {
	if grace < 0 {
		grace = DefaultLateGrace
	}
	day = dates.StartOfDay(day)
	if !dates.In(now, day.Location()).Equal(day) {
		return false
	}
	return now.After(expected.On(day).Add(grace))
}
