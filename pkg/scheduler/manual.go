package scheduler

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance. Callbacks run synchronously on the
// goroutine calling Advance, ordered by due time and then by scheduling order.
type Manual struct {
	lock   sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	m      *Manual
	id     uint64
	at     time.Time
	period time.Duration
	f      func()
}

// NewManual returns a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		timers: map[uint64]*manualTimer{},
	}
}

func (m *Manual) Now() time.Time {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	return m.add(d, 0, f)
}

func (m *Manual) Every(d time.Duration, f func()) Timer {
	return m.add(d, d, f)
}

func (m *Manual) add(d, period time.Duration, f func()) Timer {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.seq++
	t := &manualTimer{
		m:      m,
		id:     m.seq,
		at:     m.now.Add(d),
		period: period,
		f:      f,
	}
	m.timers[t.id] = t
	return t
}

// Pending returns the number of active timers.
func (m *Manual) Pending() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, firing every timer that becomes due.
// Timers scheduled by callbacks fire within the same call if they fall due.
func (m *Manual) Advance(d time.Duration) {
	m.lock.Lock()
	target := m.now.Add(d)
	m.lock.Unlock()

	for {
		m.lock.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.lock.Unlock()
			return
		}
		m.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			delete(m.timers, next.id)
		}
		f := next.f
		m.lock.Unlock()

		f()
	}
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	var next *manualTimer
	for _, t := range m.timers {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
			next = t
		}
	}
	return next
}

func (t *manualTimer) Stop() bool {
	t.m.lock.Lock()
	defer t.m.lock.Unlock()

	if _, ok := t.m.timers[t.id]; !ok {
		return false
	}
	delete(t.m.timers, t.id)
	return true
}
