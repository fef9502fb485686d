// Package protect keeps sockets opened by dohtun out of its own tunnel.
package protect

import (
	"context"
	"net"
	"syscall"
	"time"
)

// Protector marks a socket so the traffic it carries bypasses the virtual
// interface. It is applied once, before the socket connects.
type Protector func(fd uintptr)

// Control adapts p to net.Dialer.Control. A nil p leaves sockets untouched.
func Control(p Protector) func(network, address string, c syscall.RawConn) error {
	if p == nil {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		return c.Control(p)
	}
}

// Dialer returns a dialer whose sockets are protected by p.
func Dialer(p Protector, timeout time.Duration) *net.Dialer {
	return &net.Dialer{Timeout: timeout, Control: Control(p)}
}

// DialContext dials addr on a protected socket.
func DialContext(ctx context.Context, p Protector, network, addr string, timeout time.Duration) (net.Conn, error) {
	return Dialer(p, timeout).DialContext(ctx, network, addr)
}
