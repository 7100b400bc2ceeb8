package scheduler

import (
	"sync"
	"time"
)

// Timer is a scheduled one-shot or periodic callback.
type Timer interface {
	// Stop prevents further invocations. It reports whether the timer was still active.
	Stop() bool
}

// Scheduler runs callbacks after a delay or at a fixed period.
// Callbacks run on a goroutine owned by the scheduler, never on the caller's.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

// Real is a Scheduler backed by the runtime timers.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (Real) Every(d time.Duration, f func()) Timer {
	t := &ticker{
		ticker: time.NewTicker(d),
		stopCh: make(chan struct{}),
	}
	go t.run(f)
	return t
}

type ticker struct {
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
}

func (t *ticker) run(f func()) {
	for {
		select {
		case <-t.stopCh:
			return
		case <-t.ticker.C:
			// stop may race with a pending tick
			select {
			case <-t.stopCh:
				return
			default:
			}
			f()
		}
	}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.stopCh)
		stopped = true
	})
	return stopped
}
