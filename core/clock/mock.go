package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a manually driven Clock. Timers fire synchronously from Add and Set.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

type mockTimer struct {
	mock    *Mock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

var _ Clock = (*Mock)(nil)

func NewMock(now time.Time) *Mock {
	return &Mock{now: now}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{mock: m, at: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Add moves the clock forward by d, firing due timers in order.
func (m *Mock) Add(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to t, firing due timers in order.
func (m *Mock) Set(t time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDue(t)
		if next == nil {
			m.now = t
			m.mu.Unlock()
			return
		}
		m.now = next.at
		next.fired = true
		m.mu.Unlock()

		next.f()
	}
}

// must hold m.mu
func (m *Mock) nextDue(until time.Time) *mockTimer {
	active := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			active = append(active, t)
		}
	}
	m.timers = active
	sort.SliceStable(m.timers, func(i, j int) bool { return m.timers[i].at.Before(m.timers[j].at) })
	if len(m.timers) > 0 && !m.timers[0].at.After(until) {
		return m.timers[0]
	}
	return nil
}

// Pending returns the number of timers waiting to fire.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
