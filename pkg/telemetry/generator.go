package telemetry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"vpnshield/pkg/config"
	"vpnshield/pkg/netroute"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
)

// Generator produces the throughput for one sampling tick.
type Generator interface {
	Next(now time.Time) (downloadMbps, uploadMbps float64, err error)
}

// NewGenerator builds the generator selected by cfg.Generator.
func NewGenerator(cfg config.TelemetryConfig) (Generator, error) {
	switch cfg.Generator {
	case "", config.GeneratorRandom:
		downMin, downMax, upMin, upMax := cfg.GetRanges()
		return NewRandomGenerator(downMin, downMax, upMin, upMax), nil
	case config.GeneratorLink:
		return NewLinkGenerator(cfg.Interface), nil
	case config.GeneratorWireguard:
		return NewWireguardGenerator(cfg.Interface)
	default:
		return nil, fmt.Errorf("unsupported telemetry generator: %s", cfg.Generator)
	}
}

// RandomGenerator draws whole-Mbps values uniformly from fixed ranges.
type RandomGenerator struct {
	downMin, downMax float64
	upMin, upMax     float64
}

func NewRandomGenerator(downMin, downMax, upMin, upMax float64) *RandomGenerator {
	return &RandomGenerator{
		downMin: downMin,
		downMax: downMax,
		upMin:   upMin,
		upMax:   upMax,
	}
}

func (g *RandomGenerator) Next(time.Time) (float64, float64, error) {
	return uniform(g.downMin, g.downMax), uniform(g.upMin, g.upMax), nil
}

func uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + float64(rand.IntN(int(hi-lo)+1))
}

// rateTracker turns monotonically increasing byte counters into Mbps.
type rateTracker struct {
	lock   sync.Mutex
	primed bool
	last   time.Time
	rx, tx uint64
}

func (r *rateTracker) update(now time.Time, rx, tx uint64) (float64, float64) {
	r.lock.Lock()
	defer r.lock.Unlock()

	defer func() {
		r.primed = true
		r.last = now
		r.rx = rx
		r.tx = tx
	}()

	elapsed := now.Sub(r.last).Seconds()
	// first reading, clock going backwards, or counters reset
	if !r.primed || elapsed <= 0 || rx < r.rx || tx < r.tx {
		return 0, 0
	}

	return bytesToMbps(rx-r.rx, elapsed), bytesToMbps(tx-r.tx, elapsed)
}

func bytesToMbps(bytes uint64, seconds float64) float64 {
	return float64(bytes) * 8 / 1e6 / seconds
}

// LinkGenerator reads interface statistics over netlink.
type LinkGenerator struct {
	name  string
	rates rateTracker
}

// NewLinkGenerator reads the counters of the named interface, or of the
// default route interface when name is empty.
func NewLinkGenerator(name string) *LinkGenerator {
	return &LinkGenerator{name: name}
}

func (g *LinkGenerator) Next(now time.Time) (float64, float64, error) {
	if g.name == "" {
		name, err := netroute.DefaultLinkName()
		if err != nil {
			return 0, 0, fmt.Errorf("resolve default link: %w", err)
		}
		g.name = name
	}

	link, err := netlink.LinkByName(g.name)
	if err != nil {
		return 0, 0, fmt.Errorf("get link %s: %w", g.name, err)
	}
	stats := link.Attrs().Statistics
	if stats == nil {
		return 0, 0, fmt.Errorf("link %s: no statistics", g.name)
	}

	down, up := g.rates.update(now, stats.RxBytes, stats.TxBytes)
	return down, up, nil
}

// WireguardGenerator sums peer transfer counters of a wireguard device.
type WireguardGenerator struct {
	name  string
	ctrl  *wgctrl.Client
	rates rateTracker
}

func NewWireguardGenerator(name string) (*WireguardGenerator, error) {
	ctrl, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("create wireguard control client: %w", err)
	}
	return &WireguardGenerator{name: name, ctrl: ctrl}, nil
}

func (g *WireguardGenerator) Next(now time.Time) (float64, float64, error) {
	device, err := g.ctrl.Device(g.name)
	if err != nil {
		return 0, 0, fmt.Errorf("get wireguard device %s: %w", g.name, err)
	}

	var rx, tx int64
	for _, peer := range device.Peers {
		rx += peer.ReceiveBytes
		tx += peer.TransmitBytes
	}
	if rx < 0 || tx < 0 {
		return 0, 0, errors.New("negative wireguard transfer counters")
	}

	down, up := g.rates.update(now, uint64(rx), uint64(tx))
	return down, up, nil
}

func (g *WireguardGenerator) Close() error {
	return g.ctrl.Close()
}
