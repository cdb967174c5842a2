// Package grid implements the sliding, date indexed view over attendance records that drives the attendance grid.
package grid

import (
	"sync"
	"time"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/calendar"
	"github.com/trezcool/mahudhurio/core/clock"
	"github.com/trezcool/mahudhurio/core/daterange"
	"github.com/trezcool/mahudhurio/core/dates"
	"github.com/trezcool/mahudhurio/core/user"
)

// DefaultDayCount is the number of visible days when Options.DayCount is not set.
const DefaultDayCount = 7

// NavigateFunc is told about every new visible window so the caller can fetch its records.
type NavigateFunc func(start, end time.Time)

type Options struct {
	Calendar *calendar.Calendar // required
	Clock    clock.Clock        // defaults to the wall clock
	Session  user.Session

	DayCount int
	// Start is the first visible day. Zero means the window ends today.
	Start time.Time
	// MinDate and MaxDate bound paging when set.
	MinDate time.Time
	MaxDate time.Time
	// ClampToToday bounds forward paging to the current day, following midnight rollovers.
	ClampToToday bool

	OnNavigate NavigateFunc
}

// Cell is one visible day.
type Cell struct {
	Date            time.Time          `json:"-"`
	Key             string             `json:"date"`
	Record          *attendance.Record `json:"record,omitempty"`
	OffDay          bool               `json:"off_day"`
	IsToday         bool               `json:"is_today"`
	Editable        bool               `json:"editable"`
	Locked          bool               `json:"locked"`
	CanCycle        bool               `json:"can_cycle"`
	ShowReasonEntry bool               `json:"show_reason_entry"`
}

// Window keeps a fixed number of consecutive days visible and pages through them.
// Mount starts the midnight rollover; Unmount must be called to release its timer.
type Window struct {
	cal        *calendar.Calendar
	clock      clock.Clock
	session    user.Session
	dayCount   int
	min, max   time.Time
	clampToday bool
	onNavigate NavigateFunc
	midnight   *clock.MidnightTask

	mu      sync.RWMutex
	now     time.Time
	start   time.Time
	records map[string]attendance.Record
}

func New(opts Options) *Window {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.DayCount < 1 {
		opts.DayCount = DefaultDayCount
	}

	cal := opts.Calendar
	w := &Window{
		cal:        cal,
		clock:      opts.Clock,
		session:    opts.Session,
		dayCount:   opts.DayCount,
		clampToday: opts.ClampToToday,
		onNavigate: opts.OnNavigate,
		now:        opts.Clock.Now(),
		records:    make(map[string]attendance.Record),
	}
	if !opts.MinDate.IsZero() {
		w.min = cal.Day(opts.MinDate)
	}
	if !opts.MaxDate.IsZero() {
		w.max = cal.Day(opts.MaxDate)
	}
	if opts.Start.IsZero() {
		w.start = dates.AddDays(cal.Day(w.now), 1-w.dayCount)
	} else {
		w.start = cal.Day(opts.Start)
	}
	w.midnight = clock.NewMidnightTask(w.clock, cal.Location(), w.rollover)
	return w
}

// FromRange seeds the visible window with a resolved range: its first day and its day count.
func FromRange(rng daterange.Window, opts Options) *Window {
	opts.Start = rng.Start
	opts.DayCount = rng.DayCount
	return New(opts)
}

// Mount starts the midnight rollover. Mounting again only replaces the pending timer.
func (w *Window) Mount() { w.midnight.Start() }

// Unmount cancels the midnight rollover.
func (w *Window) Unmount() { w.midnight.Stop() }

func (w *Window) Mounted() bool { return w.midnight.Running() }

func (w *Window) DayCount() int { return w.dayCount }

func (w *Window) Now() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.now
}

// Bounds returns the first and last visible days.
func (w *Window) Bounds() (start, end time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.start, w.end(w.start)
}

func (w *Window) end(start time.Time) time.Time {
	return dates.AddDays(start, w.dayCount-1)
}

// SetRecords replaces the known records with recs. The latest call wins, whatever window it was fetched for.
func (w *Window) SetRecords(recs []attendance.Record) {
	byDay := make(map[string]attendance.Record, len(recs))
	for _, rec := range recs {
		byDay[rec.Date] = rec
	}
	w.mu.Lock()
	w.records = byDay
	w.mu.Unlock()
}

// PutRecord adds or replaces the record of its day, e.g. after a successful write.
func (w *Window) PutRecord(rec attendance.Record) {
	w.mu.Lock()
	w.records[rec.Date] = rec
	w.mu.Unlock()
}

// RemoveRecord forgets the record of the given day.
func (w *Window) RemoveRecord(date string) {
	w.mu.Lock()
	delete(w.records, date)
	w.mu.Unlock()
}

// Cells returns the visible days in order, exactly DayCount of them.
func (w *Window) Cells() []Cell {
	w.mu.RLock()
	defer w.mu.RUnlock()

	admin := w.session.IsAdmin()
	cells := make([]Cell, 0, w.dayCount)
	for i := 0; i < w.dayCount; i++ {
		day := dates.AddDays(w.start, i)
		cell := Cell{
			Date:     day,
			Key:      dates.Key(day),
			OffDay:   w.cal.IsOffDay(day),
			IsToday:  w.cal.IsToday(day, w.now),
			Editable: w.cal.CanEdit(day, w.now, admin),
		}
		if rec, ok := w.records[cell.Key]; ok && !cell.OffDay {
			rec := rec
			cell.Record = &rec
			cell.Locked = rec.Locked()
			cell.ShowReasonEntry = rec.NeedsReason()
		}
		cell.CanCycle = cell.Editable && (!cell.Locked || admin)
		cells = append(cells, cell)
	}
	return cells
}

// PageBackward shows the previous DayCount days, stopping at MinDate.
func (w *Window) PageBackward() {
	w.navigate(-w.dayCount)
}

// PageForward shows the next DayCount days, stopping at MaxDate (or today).
func (w *Window) PageForward() {
	w.navigate(w.dayCount)
}

func (w *Window) navigate(offset int) {
	w.mu.Lock()
	start := w.clamp(dates.AddDays(w.start, offset))
	w.start = start
	w.mu.Unlock()

	w.notify(start)
}

// clamp keeps the window between the bounds. When both can't hold, MinDate wins. Must hold w.mu.
func (w *Window) clamp(start time.Time) time.Time {
	max := w.max
	if w.clampToday {
		if today := w.cal.Day(w.now); max.IsZero() || today.Before(max) {
			max = today
		}
	}
	if !max.IsZero() && w.end(start).After(max) {
		start = dates.AddDays(max, 1-w.dayCount)
	}
	if !w.min.IsZero() && start.Before(w.min) {
		start = w.min
	}
	return start
}

func (w *Window) notify(start time.Time) {
	if w.onNavigate != nil {
		w.onNavigate(start, w.end(start))
	}
}

// rollover runs at local midnight: today moves on and so does the window, by exactly one day.
func (w *Window) rollover(now time.Time) {
	w.mu.Lock()
	w.now = now
	start := dates.AddDays(w.start, 1)
	w.start = start
	w.mu.Unlock()

	w.notify(start)
}
