package clock

import (
	"sync"
	"time"
)

// MidnightTask runs a callback at every local midnight.
// At most one timer is pending at any time: scheduling always clears the previous timer first.
type MidnightTask struct {
	clock Clock
	loc   *time.Location
	fn    func(now time.Time)

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	running bool
}

func NewMidnightTask(c Clock, loc *time.Location, fn func(now time.Time)) *MidnightTask {
	if c == nil {
		c = New()
	}
	if loc == nil {
		loc = time.Local
	}
	return &MidnightTask{clock: c, loc: loc, fn: fn}
}

// Start schedules the task for the next midnight. Calling Start again replaces the pending timer.
func (t *MidnightTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.schedule()
}

// Stop cancels the pending timer. The task can be started again later.
func (t *MidnightTask) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.clear()
}

// Running reports whether the task is started.
func (t *MidnightTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// must hold t.mu
func (t *MidnightTask) clear() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// must hold t.mu
func (t *MidnightTask) schedule() {
	t.clear()
	gen := t.gen
	now := t.clock.Now()
	wait := NextMidnight(now, t.loc).Sub(now)
	t.timer = t.clock.AfterFunc(wait, func() { t.fire(gen) })
}

func (t *MidnightTask) fire(gen uint64) {
	t.mu.Lock()
	if !t.running || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.fn(t.clock.Now().In(t.loc))

	t.mu.Lock()
	defer t.mu.Unlock()
	// a Stop or Start during the callback already took care of the timer
	if t.running && gen == t.gen {
		t.schedule()
	}
}
