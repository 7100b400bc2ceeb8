package ippool

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// STUNAllocator reports the public mapped address seen by a STUN server.
// Nothing is reserved, so Release is a no-op.
type STUNAllocator struct {
	servers []string
	timeout time.Duration
}

func NewSTUN(servers []string, timeout time.Duration) *STUNAllocator {
	return &STUNAllocator{
		servers: servers,
		timeout: timeout,
	}
}

func (s *STUNAllocator) Acquire(ctx context.Context) (netip.Addr, error) {
	if len(s.servers) == 0 {
		return netip.Addr{}, fmt.Errorf("stun: no servers configured")
	}

	var lastErr error
	for _, server := range s.servers {
		addr, err := s.probe(ctx, server)
		if err != nil {
			slog.Warn("stun probe failed", slog.String("server", server), slog.Any("err", err))
			lastErr = err
			continue
		}
		return addr, nil
	}

	return netip.Addr{}, fmt.Errorf("stun: %w: %v", ErrExhausted, lastErr)
}

func (s *STUNAllocator) Release(netip.Addr) {}

func (s *STUNAllocator) probe(ctx context.Context, server string) (netip.Addr, error) {
	uri, err := stun.ParseURI(stunURI(server))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse stun uri: %w", err)
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dial stun server: %w", err)
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case mapped := <-result:
		addr, ok := netip.AddrFromSlice(mapped.IP)
		if !ok {
			return netip.Addr{}, fmt.Errorf("invalid mapped address: %s", mapped.String())
		}
		return addr.Unmap(), nil
	case err := <-fail:
		return netip.Addr{}, err
	case <-ctx.Done():
		return netip.Addr{}, ctx.Err()
	}
}

func stunURI(server string) string {
	uri := strings.TrimSpace(server)
	if !strings.HasPrefix(uri, "stun:") {
		uri = "stun:" + uri
	}
	return uri
}
