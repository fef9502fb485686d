package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/treemana/dohtun/protect"
)

const (
	timeoutDial      = 3 * time.Second
	timeoutHandshake = 3 * time.Second
)

// Options tune NewConn. Zero values dial u.Host with system roots.
type Options struct {
	// Target is dialled instead of u.Host, the name in u is still verified.
	Target  string
	Protect protect.Protector
	Config  *tls.Config
}

// NewConn new a tls.Conn from url.URL
// return conn, elapse, error
func NewConn(ctx context.Context, u url.URL, opts Options) (*tls.Conn, time.Duration, error) {

	ept := time.Now() // entry point time

	addr := opts.Target
	if len(addr) == 0 {
		addr = u.Host
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "443")
	}

	// dial
	dialer := protect.Dialer(opts.Protect, timeoutDial)
	start := time.Now()
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	elapse := time.Since(start)
	if err != nil {
		return nil, math.MaxInt64, fmt.Errorf("dial [%+v], elapse %s", err, elapse)
	}

	var config *tls.Config
	if opts.Config != nil {
		config = opts.Config.Clone()
	} else {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if len(config.ServerName) == 0 {
		config.ServerName = u.Hostname()
	}

	// set deadline
	conn := tls.Client(rawConn, config)
	if err = conn.SetDeadline(time.Now().Add(timeoutHandshake)); err != nil {
		_ = conn.Close()
		return nil, math.MaxInt64, fmt.Errorf("set deadline [%+v]", err)
	}

	// handshake
	start = time.Now()
	err = conn.HandshakeContext(ctx)
	elapse = time.Since(start)
	if err != nil {
		_ = conn.Close()
		return nil, math.MaxInt64, fmt.Errorf("handshake [%+v], elapse %s", err, elapse)
	}

	return conn, time.Since(ept), nil
}
