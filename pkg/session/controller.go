package session

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"vpnshield/pkg/assessor"
	"vpnshield/pkg/bus"
	"vpnshield/pkg/catalog"
	"vpnshield/pkg/config"
	"vpnshield/pkg/ippool"
	"vpnshield/pkg/scheduler"
	"vpnshield/pkg/telemetry"

	"github.com/google/uuid"
)

// Assessor produces the security assessment for a connected endpoint. It must not fail.
type Assessor interface {
	Assess(ctx context.Context, city, region string) assessor.Assessment
}

type Options struct {
	Config    config.SessionConfig
	Scheduler scheduler.Scheduler
	Allocator ippool.Allocator
	Assessor  Assessor
	Generator telemetry.Generator
}

// Controller owns the connection state machine of a single session.
//
// All session fields are guarded by lock. A mutation takes publishLock before lock and
// keeps it until its snapshot is published, so observers see snapshots in mutation order.
// Nothing waits on publishLock while holding lock. Notify runs with publishLock held:
// observers may call Snapshot and State but must not call mutators.
type Controller struct {
	cfg    config.SessionConfig
	sched  scheduler.Scheduler
	alloc  ippool.Allocator
	assess Assessor
	gen    telemetry.Generator
	bus    *bus.Bus[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	publishLock sync.Mutex

	lock       sync.Mutex
	closed     bool
	state      State
	endpoint   *catalog.Endpoint
	sessionID  string
	generation uint64
	elapsed    uint64
	address    netip.Addr
	startedAt  time.Time
	assessment *assessor.Assessment
	samples    *telemetry.Ring

	// sampler runs while connected; retired samplers are stopped once both locks are released
	sampler *telemetry.Sampler
	retired []*telemetry.Sampler

	handshakeTimer   scheduler.Timer
	settleTimer      scheduler.Timer
	elapsedTicker    scheduler.Timer
	idleTicker       scheduler.Timer
	cancelAssessment context.CancelFunc
}

func New(opts Options) *Controller {
	sched := opts.Scheduler
	if sched == nil {
		sched = scheduler.Real{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:     opts.Config,
		sched:   sched,
		alloc:   opts.Allocator,
		assess:  opts.Assessor,
		gen:     opts.Generator,
		bus:     bus.New[Snapshot](),
		ctx:     ctx,
		cancel:  cancel,
		state:   Disconnected,
		samples: telemetry.NewRing(opts.Config.GetBufferCapacity()),
	}
	c.samples.Reset(sched.Now(), opts.Config.GetSampleInterval())
	return c
}

// Start begins the idle sampling cadence that keeps the sample buffer moving while not connected.
func (c *Controller) Start() {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed || c.idleTicker != nil {
		return
	}
	c.idleTicker = c.sched.Every(c.cfg.GetSampleInterval(), c.idle)
}

// Close stops every timer, cancels a pending assessment and waits for it to return.
func (c *Controller) Close() {
	c.lockForUpdate()
	if c.closed {
		c.unlock()
		return
	}
	c.closed = true
	stopTimer(&c.idleTicker)
	stopTimer(&c.handshakeTimer)
	stopTimer(&c.settleTimer)
	c.leaveConnectedLocked()
	c.cancel()
	c.unlock()

	c.wg.Wait()
	slog.Debug("session controller closed")
}

func (c *Controller) Subscribe(observer bus.Observer[Snapshot]) bus.Handle {
	handle := c.bus.Subscribe(observer)
	slog.Debug("observer subscribed", slog.Uint64("handle", uint64(handle)), slog.Int("observers", c.bus.Len()))
	return handle
}

func (c *Controller) Unsubscribe(handle bus.Handle) {
	c.bus.Unsubscribe(handle)
	slog.Debug("observer unsubscribed", slog.Uint64("handle", uint64(handle)), slog.Int("observers", c.bus.Len()))
}

func (c *Controller) Snapshot() Snapshot {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.snapshotLocked(nil)
}

func (c *Controller) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Select makes ep the endpoint used by the next connection.
// It is rejected unless the session is disconnected.
func (c *Controller) Select(ep catalog.Endpoint) bool {
	c.lockForUpdate()
	if c.closed || c.state != Disconnected {
		state := c.state
		c.unlock()
		slog.Debug("endpoint selection ignored", slog.String("endpoint", ep.ID),
			slog.String("state", state.String()), slog.Any("err", ErrInvalidTransition))
		return false
	}

	c.endpoint = &ep
	c.unlockAndPublish(nil)
	return true
}

// ToggleConnection connects when disconnected and disconnects when connected.
// While connecting or disconnecting the call is ignored. When disconnected, ep selects
// the endpoint; nil reuses the current selection.
func (c *Controller) ToggleConnection(ep *catalog.Endpoint) error {
	c.lockForUpdate()
	if c.closed {
		c.unlock()
		return ErrClosed
	}

	switch c.state {
	case Disconnected:
		if ep != nil {
			selected := *ep
			c.endpoint = &selected
		}
		if c.endpoint == nil {
			c.unlock()
			return ErrNoEndpoint
		}
		c.beginConnectLocked()
		c.unlockAndPublish(nil)
		return nil
	case Connected:
		c.beginDisconnectLocked()
		c.unlockAndPublish(nil)
		return nil
	default:
		state := c.state
		c.unlock()
		slog.Debug("toggle ignored", slog.String("state", state.String()), slog.Any("err", ErrInvalidTransition))
		return nil
	}
}

func (c *Controller) beginConnectLocked() {
	c.generation++
	c.sessionID = uuid.NewString()
	c.state = Connecting
	analyzing := assessor.Analyzing()
	c.assessment = &analyzing

	gen := c.generation
	c.handshakeTimer = c.sched.AfterFunc(c.cfg.GetHandshakeDelay(), func() {
		c.completeHandshake(gen)
	})

	slog.Info("connecting", slog.String("endpoint", c.endpoint.ID),
		slog.String("session_id", c.sessionID), slog.Uint64("generation", gen))
}

func (c *Controller) completeHandshake(gen uint64) {
	c.lockForUpdate()
	if !c.currentLocked(gen, Connecting) {
		c.unlock()
		return
	}
	c.handshakeTimer = nil
	ep := *c.endpoint
	c.unlock()

	// allocation may block, e.g. on a STUN round trip
	addr, err := c.alloc.Acquire(c.ctx)

	c.lockForUpdate()
	if !c.currentLocked(gen, Connecting) {
		c.unlock()
		if err == nil {
			c.alloc.Release(addr)
		}
		return
	}

	if err != nil {
		slog.Warn("handshake failed", slog.String("endpoint", ep.ID), slog.Any("err", err))
		c.state = Disconnected
		c.sessionID = ""
		c.assessment = nil
		c.unlockAndPublish(&Event{
			Kind:    EventAssignmentFailed,
			Message: ErrAssignmentFailed.Error() + ": " + err.Error(),
		})
		return
	}

	c.state = Connected
	c.address = addr
	c.startedAt = c.sched.Now()
	c.elapsed = 0
	c.elapsedTicker = c.sched.Every(time.Second, func() {
		c.tick(gen)
	})
	c.sampler = telemetry.NewSampler(c.sched, c.cfg.GetSampleInterval(), c.gen)
	c.sampler.Start(func(s telemetry.Sample) {
		c.onSample(gen, s)
	})

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelAssessment = cancel
	c.wg.Add(1)
	go c.requestAssessment(ctx, gen, ep)

	slog.Info("connected", slog.String("endpoint", ep.ID), slog.String("address", addr.String()),
		slog.String("session_id", c.sessionID))
	c.unlockAndPublish(nil)
}

func (c *Controller) requestAssessment(ctx context.Context, gen uint64, ep catalog.Endpoint) {
	defer c.wg.Done()

	a := c.assess.Assess(ctx, ep.City, ep.Region)

	c.lockForUpdate()
	if !c.currentLocked(gen, Connected) {
		c.unlock()
		slog.Debug("dropping stale assessment", slog.String("endpoint", ep.ID), slog.Uint64("generation", gen))
		return
	}
	c.assessment = &a
	c.unlockAndPublish(nil)
}

func (c *Controller) beginDisconnectLocked() {
	c.state = Disconnecting
	c.leaveConnectedLocked()

	gen := c.generation
	c.settleTimer = c.sched.AfterFunc(c.cfg.GetSettleDelay(), func() {
		c.completeDisconnect(gen)
	})

	slog.Info("disconnecting", slog.String("session_id", c.sessionID))
}

// leaveConnectedLocked tears down everything that only exists while connected.
func (c *Controller) leaveConnectedLocked() {
	stopTimer(&c.elapsedTicker)
	if c.sampler != nil {
		c.retired = append(c.retired, c.sampler)
		c.sampler = nil
	}
	if c.cancelAssessment != nil {
		c.cancelAssessment()
		c.cancelAssessment = nil
	}
	if c.address.IsValid() {
		c.alloc.Release(c.address)
		c.address = netip.Addr{}
	}
	c.elapsed = 0
	c.startedAt = time.Time{}
}

func (c *Controller) completeDisconnect(gen uint64) {
	c.lockForUpdate()
	if !c.currentLocked(gen, Disconnecting) {
		c.unlock()
		return
	}

	c.settleTimer = nil
	c.state = Disconnected
	c.sessionID = ""
	c.assessment = nil
	c.samples.Reset(c.sched.Now(), c.cfg.GetSampleInterval())

	slog.Info("disconnected")
	c.unlockAndPublish(nil)
}

func (c *Controller) tick(gen uint64) {
	c.lockForUpdate()
	if !c.currentLocked(gen, Connected) {
		c.unlock()
		return
	}
	c.elapsed++
	c.unlockAndPublish(nil)
}

func (c *Controller) onSample(gen uint64, s telemetry.Sample) {
	c.lockForUpdate()
	if !c.currentLocked(gen, Connected) {
		c.unlock()
		return
	}
	c.samples.Push(s)
	c.unlockAndPublish(nil)
}

func (c *Controller) idle() {
	c.lockForUpdate()
	if c.closed || c.state == Connected {
		c.unlock()
		return
	}
	c.samples.Push(telemetry.ZeroSample(c.sched.Now()))
	c.unlockAndPublish(nil)
}

func (c *Controller) currentLocked(gen uint64, state State) bool {
	return !c.closed && c.generation == gen && c.state == state
}

// lockForUpdate takes publishLock and then lock. Release with unlock or unlockAndPublish.
func (c *Controller) lockForUpdate() {
	c.publishLock.Lock()
	c.lock.Lock()
}

func (c *Controller) unlock() {
	retired := c.takeRetiredLocked()
	c.lock.Unlock()
	c.publishLock.Unlock()
	stopSamplers(retired)
}

// unlockAndPublish releases lock, publishes the snapshot taken under it and then releases publishLock.
func (c *Controller) unlockAndPublish(event *Event) {
	snap := c.snapshotLocked(event)
	retired := c.takeRetiredLocked()
	c.lock.Unlock()

	c.bus.Publish(snap)
	c.publishLock.Unlock()
	stopSamplers(retired)
}

func (c *Controller) takeRetiredLocked() []*telemetry.Sampler {
	retired := c.retired
	c.retired = nil
	return retired
}

// stopSamplers must run without publishLock: Stop waits for a delivery that may be blocked on it.
func stopSamplers(samplers []*telemetry.Sampler) {
	for _, s := range samplers {
		s.Stop()
	}
}

func (c *Controller) snapshotLocked(event *Event) Snapshot {
	snap := Snapshot{
		State:          c.state,
		SessionID:      c.sessionID,
		Generation:     c.generation,
		ElapsedSeconds: c.elapsed,
		RecentSamples:  c.samples.Samples(),
		Event:          event,
	}
	if c.endpoint != nil {
		ep := *c.endpoint
		snap.Endpoint = &ep
	}
	if c.address.IsValid() {
		snap.AssignedAddress = c.address.String()
	}
	if !c.startedAt.IsZero() {
		startedAt := c.startedAt
		snap.StartedAt = &startedAt
	}
	if c.assessment != nil {
		a := *c.assessment
		snap.Assessment = &a
	}
	return snap
}

func stopTimer(t *scheduler.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
