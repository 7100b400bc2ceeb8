package ippool

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"vpnshield/pkg/config"
)

var ErrExhausted = errors.New("address pool exhausted")

// Allocator hands out the address a session is reachable at while connected.
type Allocator interface {
	Acquire(ctx context.Context) (netip.Addr, error)
	Release(addr netip.Addr)
}

// Fallback addresses used when a static pool has no configured addresses.
var defaultAddresses = []string{
	"104.23.11.45",
	"192.168.44.12",
	"45.33.22.11",
	"198.51.100.22",
	"203.0.113.5",
}

// New builds the allocator selected by cfg.Mode.
func New(cfg config.AddressPoolConfig) (Allocator, error) {
	switch cfg.Mode {
	case "", config.AddressPoolStatic:
		addrs := cfg.Addresses
		if len(addrs) == 0 {
			addrs = defaultAddresses
		}
		pool, err := NewStatic(addrs)
		if err != nil {
			return nil, err
		}
		slog.Info("static address pool", slog.Int("addresses", pool.Size()))
		return pool, nil
	case config.AddressPoolSubnet:
		pool, err := NewSubnet("session", cfg.Subnet)
		if err != nil {
			return nil, err
		}
		slog.Info("subnet address pool", slog.String("subnet", pool.subnet.String()),
			slog.String("gateway", pool.gateway().String()))
		return pool, nil
	case config.AddressPoolSTUN:
		return NewSTUN(cfg.STUNServers, cfg.GetSTUNTimeout()), nil
	case config.AddressPoolRoute:
		return NewRoute(), nil
	default:
		return nil, fmt.Errorf("unsupported address pool mode: %s", cfg.Mode)
	}
}

// SubnetPool allocates sequential host addresses from a prefix, reusing released ones first.
type SubnetPool struct {
	name      string
	lock      sync.Mutex
	subnet    netip.Prefix
	broadcast netip.Addr
	iter      netip.Addr
	busy      map[netip.Addr]struct{}
	free      map[netip.Addr]struct{}
}

func NewSubnet(name, subnetCidr string) (*SubnetPool, error) {
	prefix, err := netip.ParsePrefix(subnetCidr)
	if err != nil {
		return nil, fmt.Errorf("parse subnet %s: %w", subnetCidr, err)
	}
	prefix = prefix.Masked()

	// skip network and gateway addresses
	iter := prefix.Addr().Next().Next()

	return &SubnetPool{
		name:      name,
		subnet:    prefix,
		broadcast: broadcastAddr(prefix),
		iter:      iter,
		busy:      map[netip.Addr]struct{}{},
		free:      map[netip.Addr]struct{}{},
	}, nil
}

// broadcastAddr returns the last address of an IPv4 prefix, or the zero Addr when
// the prefix has none.
func broadcastAddr(prefix netip.Prefix) netip.Addr {
	if !prefix.Addr().Is4() || prefix.Bits() >= 31 {
		return netip.Addr{}
	}
	a4 := prefix.Addr().As4()
	v := binary.BigEndian.Uint32(a4[:]) | ^uint32(0)>>prefix.Bits()
	binary.BigEndian.PutUint32(a4[:], v)
	return netip.AddrFrom4(a4)
}

// gateway is the first host address of the subnet.
func (s *SubnetPool) gateway() netip.Addr {
	return s.subnet.Addr().Next()
}

// reserve marks addr as busy without handing it out.
func (s *SubnetPool) reserve(addr netip.Addr) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.free, addr)
	s.busy[addr] = struct{}{}
}

func (s *SubnetPool) Acquire(_ context.Context) (netip.Addr, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for addr := range s.free {
		delete(s.free, addr)
		s.busy[addr] = struct{}{}
		return addr, nil
	}

	// skip reserved addresses
	for s.iter.IsValid() {
		if _, ok := s.busy[s.iter]; !ok {
			break
		}
		s.iter = s.iter.Next()
	}

	if !s.iter.IsValid() || !s.subnet.Contains(s.iter) || s.iter == s.broadcast {
		return netip.Addr{}, fmt.Errorf("%s: %w", s.name, ErrExhausted)
	}

	addr := s.iter
	s.iter = s.iter.Next()

	s.busy[addr] = struct{}{}
	return addr, nil
}

func (s *SubnetPool) Release(addr netip.Addr) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.busy[addr]; !ok {
		return
	}
	delete(s.busy, addr)
	s.free[addr] = struct{}{}
}
