package ippool

import (
	"context"
	"fmt"
	"net/netip"

	"vpnshield/pkg/netroute"
)

// RouteAllocator reports the source address of the host's default route.
// Nothing is reserved, so Release is a no-op.
type RouteAllocator struct {
	lookup func() (netip.Addr, error)
}

func NewRoute() *RouteAllocator {
	return &RouteAllocator{lookup: netroute.SourceAddr}
}

func (s *RouteAllocator) Acquire(ctx context.Context) (netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, err
	}
	addr, err := s.lookup()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("route: %w", err)
	}
	return addr, nil
}

func (s *RouteAllocator) Release(netip.Addr) {}
