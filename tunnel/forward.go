package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/treemana/dohtun/metrics"
	"github.com/treemana/dohtun/protect"
)

// Forwarder relays raw datagrams over one protected, connected UDP socket
// and returns the single datagram that answers each.
type Forwarder struct {
	conn    net.Conn
	timeout time.Duration
	buf     []byte

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewForwarder(ctx context.Context, upstream string, p protect.Protector, timeout time.Duration) (*Forwarder, error) {
	if len(upstream) == 0 {
		return nil, errors.New("upstream address needed")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	conn, err := protect.DialContext(ctx, p, "udp", upstream, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial upstream %s: %w", upstream, err)
	}

	return &Forwarder{conn: conn, timeout: timeout, buf: make([]byte, 65535)}, nil
}

// Forward writes p and waits up to the timeout for a reply. A timeout is
// not an error; the reply is then empty.
func (f *Forwarder) Forward(p []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.conn.SetDeadline(time.Now().Add(f.timeout)); err != nil {
		return nil, err
	}

	if _, err := f.conn.Write(p); err != nil {
		return nil, err
	}
	metrics.ForwardedTotal.WithLabelValues(metrics.DirectionUp).Inc()

	n, err := f.conn.Read(f.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	metrics.ForwardedTotal.WithLabelValues(metrics.DirectionDown).Inc()

	reply := make([]byte, n)
	copy(reply, f.buf[:n])
	return reply, nil
}

// Close is idempotent.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.conn.Close()
	})
	return f.closeErr
}
