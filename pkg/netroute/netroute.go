package netroute

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

var ErrNoRoute = errors.New("no default route")

// Probe destinations; only the routing decision is used, nothing is sent.
var (
	probeIPv4 = net.ParseIP("1.1.1.1")
	probeIPv6 = net.ParseIP("2606:4700:4700::1111")
)

func probeIP(family int) (net.IP, error) {
	switch family {
	case unix.AF_INET:
		return probeIPv4, nil
	case unix.AF_INET6:
		return probeIPv6, nil
	default:
		return nil, fmt.Errorf("unknown network family: %d", family)
	}
}

// ExternalLink returns the interface and source address of the default route for family.
func ExternalLink(family int) (netlink.Link, netip.Addr, error) {
	ip, err := probeIP(family)
	if err != nil {
		return nil, netip.Addr{}, err
	}

	routes, err := netlink.RouteGet(ip)
	if err != nil {
		return nil, netip.Addr{}, fmt.Errorf("failed to get default route: %w", err)
	}
	if len(routes) == 0 {
		return nil, netip.Addr{}, ErrNoRoute
	}

	link, err := netlink.LinkByIndex(routes[0].LinkIndex)
	if err != nil {
		return nil, netip.Addr{}, fmt.Errorf("failed to get interface by index: %w", err)
	}

	src, _ := netip.AddrFromSlice(routes[0].Src)
	return link, src.Unmap(), nil
}

// SourceAddr returns the source address of the default route, preferring IPv4.
func SourceAddr() (netip.Addr, error) {
	var errs []error
	for _, family := range []int{unix.AF_INET, unix.AF_INET6} {
		_, addr, err := ExternalLink(family)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if addr.IsValid() {
			return addr, nil
		}
	}
	errs = append(errs, ErrNoRoute)
	return netip.Addr{}, errors.Join(errs...)
}

// DefaultLinkName returns the name of the interface carrying the IPv4 default route.
func DefaultLinkName() (string, error) {
	link, _, err := ExternalLink(unix.AF_INET)
	if err != nil {
		return "", err
	}
	return link.Attrs().Name, nil
}
