package ippool

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sync"
)

// StaticPool hands out a random free address from a fixed list.
type StaticPool struct {
	lock  sync.Mutex
	addrs []netip.Addr
	busy  map[netip.Addr]struct{}
}

func NewStatic(addrs []string) (*StaticPool, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("static pool: no addresses")
	}

	p := &StaticPool{
		addrs: make([]netip.Addr, 0, len(addrs)),
		busy:  map[netip.Addr]struct{}{},
	}
	seen := map[netip.Addr]struct{}{}
	for _, s := range addrs {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("static pool: parse address %q: %w", s, err)
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		p.addrs = append(p.addrs, addr)
	}
	return p, nil
}

func (p *StaticPool) Acquire(_ context.Context) (netip.Addr, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	free := make([]netip.Addr, 0, len(p.addrs))
	for _, addr := range p.addrs {
		if _, ok := p.busy[addr]; !ok {
			free = append(free, addr)
		}
	}
	if len(free) == 0 {
		return netip.Addr{}, fmt.Errorf("static: %w", ErrExhausted)
	}

	addr := free[rand.IntN(len(free))]
	p.busy[addr] = struct{}{}
	return addr, nil
}

func (p *StaticPool) Release(addr netip.Addr) {
	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.busy, addr)
}

// Size returns the number of distinct addresses in the pool.
func (p *StaticPool) Size() int {
	return len(p.addrs)
}
