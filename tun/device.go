// Package tun provisions the virtual interface dohtun reads packets from.
package tun

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
)

const (
	DefaultName     = "dohtun0"
	DefaultAddress  = "10.0.0.2"
	DefaultMTU      = 1500
	DefaultTable    = 7053
	DefaultPriority = 7053
)

// Well-known public resolvers routed through the interface in split mode so
// that clients hard-coding them are answered too.
var publicResolvers = []string{"8.8.8.8", "8.8.4.4"}

// Device is a duplex channel of raw IPv4 datagrams.
type Device interface {
	io.ReadWriteCloser

	// MTU returns the largest datagram Read will hand out.
	MTU() int
}

type Options struct {
	Name    string
	Address string
	MTU     int

	// DNSServers are advertised to clients and, in split mode, routed.
	DNSServers []string

	SplitTunnel bool

	// Mark is the fwmark of protected sockets. Routes live in Table, which
	// only traffic without the mark consults.
	Mark     uint32
	Table    int
	Priority int
}

func (o Options) WithDefaults() Options {
	if len(o.Name) == 0 {
		o.Name = DefaultName
	}
	if len(o.Address) == 0 {
		o.Address = DefaultAddress
	}
	if o.MTU <= 0 {
		o.MTU = DefaultMTU
	}
	if o.Table == 0 {
		o.Table = DefaultTable
	}
	if o.Priority == 0 {
		o.Priority = DefaultPriority
	}
	return o
}

// Routes returns the destinations sent through the interface: host routes
// for the DNS servers and the public resolvers in split mode, the default
// route otherwise.
func Routes(o Options) ([]netip.Prefix, error) {
	if !o.SplitTunnel {
		return []netip.Prefix{netip.PrefixFrom(netip.IPv4Unspecified(), 0)}, nil
	}

	var seen = make(map[netip.Addr]struct{})
	var routes []netip.Prefix
	for _, raw := range append(append([]string(nil), o.DNSServers...), publicResolvers...) {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", raw, err)
		}
		if !addr.Is4() {
			return nil, fmt.Errorf("route %q: %w", raw, ErrNotIPv4)
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		routes = append(routes, netip.PrefixFrom(addr, 32))
	}

	return routes, nil
}

var (
	ErrNotIPv4      = errors.New("only ipv4 is supported")
	ErrNotSupported = errors.New("tun device is not supported on this platform")
	ErrMarkRequired = errors.New("a socket mark is required to keep resolver traffic out of the tunnel")
)
