package resolver

import (
	"context"
	"time"

	"github.com/miekg/dns"

	"github.com/treemana/dohtun/protect"
)

// UDP sends the query in one datagram to the primary server and waits for
// a single answer. There is no retry.
type UDP struct {
	address string
	timeout time.Duration
	bufSize int
	protect protect.Protector
}

func NewUDP(config Config) *UDP {
	config = config.WithDefaults()
	return &UDP{
		address: withPort(config.Primary, portDNS),
		timeout: config.Timeout,
		bufSize: config.UDPBufferSize,
		protect: config.Protect,
	}
}

func (u *UDP) String() string { return string(PlainUDP) + "://" + u.address }

func (u *UDP) Resolve(ctx context.Context, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	start := time.Now()
	conn, err := protect.DialContext(ctx, u.protect, "udp", u.address, u.timeout)
	if err != nil {
		return nil, failure(u.String(), query, err)
	}
	defer func() { _ = conn.Close() }()

	deadline, _ := ctx.Deadline()
	if err = conn.SetDeadline(deadline); err != nil {
		return nil, failure(u.String(), query, err)
	}

	var dnsConn = dns.Conn{Conn: conn}
	if _, err = dnsConn.Write(query); err != nil {
		return nil, failure(u.String(), query, err)
	}

	buf := make([]byte, u.bufSize)
	var n int
	if n, err = dnsConn.Read(buf); err != nil {
		return nil, failure(u.String(), query, err)
	}

	return checkResponse(u.String(), query, buf[:n], time.Since(start))
}
