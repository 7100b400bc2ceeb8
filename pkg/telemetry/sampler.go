package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"vpnshield/pkg/scheduler"
)

// Sampler emits one Sample per interval between Start and Stop.
//
// deliverLock is held from the run check until onSample returns, so Stop can wait
// for a delivery that is already in progress.
type Sampler struct {
	sched    scheduler.Scheduler
	interval time.Duration
	gen      Generator

	deliverLock sync.Mutex

	lock  sync.Mutex
	timer scheduler.Timer
	run   uint64
}

func NewSampler(sched scheduler.Scheduler, interval time.Duration, gen Generator) *Sampler {
	return &Sampler{
		sched:    sched,
		interval: interval,
		gen:      gen,
	}
}

// Start begins sampling. A running sampler is stopped and restarted.
func (s *Sampler) Start(onSample func(Sample)) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopLocked()
	s.run++
	run := s.run
	s.timer = s.sched.Every(s.interval, func() {
		s.tick(run, onSample)
	})
}

// Stop ends sampling and waits for a delivery in progress to return.
// No sample is delivered after Stop returns. Stop must not be called from onSample,
// nor while holding a lock that onSample acquires.
func (s *Sampler) Stop() {
	s.lock.Lock()
	s.stopLocked()
	s.lock.Unlock()

	s.deliverLock.Lock()
	s.deliverLock.Unlock()
}

func (s *Sampler) active() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.timer != nil
}

func (s *Sampler) stopLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.run++
}

func (s *Sampler) current(run uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return run == s.run
}

func (s *Sampler) tick(run uint64, onSample func(Sample)) {
	s.deliverLock.Lock()
	defer s.deliverLock.Unlock()

	if !s.current(run) {
		return
	}

	now := s.sched.Now()
	down, up, err := s.gen.Next(now)
	if err != nil {
		slog.Warn("failed to read throughput", slog.Any("err", err))
		down, up = 0, 0
	}

	// a Stop issued while the generator was reading discards this sample
	if !s.current(run) {
		return
	}

	onSample(Sample{
		TimestampSeconds: unixSeconds(now),
		DownloadMbps:     down,
		UploadMbps:       up,
	})
}
