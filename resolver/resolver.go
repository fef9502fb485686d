package resolver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/treemana/dohtun/log"
	"github.com/treemana/dohtun/protect"
	"github.com/treemana/dohtun/util"
)

// Transport names a resolution strategy.
type Transport string

const (
	PlainUDP Transport = "plain-udp"
	DohPost  Transport = "doh-post"
	DohGet   Transport = "doh-get"

	DefaultPrimary   = "1.1.1.1"
	DefaultSecondary = "1.0.0.1"
	DefaultEndpoint  = "https://cloudflare-dns.com/dns-query"
	DefaultTimeout   = 5000 * time.Millisecond

	// MinUDPBufferSize caps plain UDP answers; longer ones are cut off.
	MinUDPBufferSize = 1024

	portDNS   = "53"
	portHTTPS = "443"
)

// ErrResolution wraps every failure to obtain a response.
var ErrResolution = errors.New("resolution failure")

// Resolver turns a raw DNS query into a raw DNS response.
type Resolver interface {
	Resolve(ctx context.Context, query []byte) ([]byte, error)
}

type Config struct {
	Transport Transport

	// Primary receives plain UDP queries and is the address DoH connections
	// are dialled to. A port is optional.
	Primary string

	// Secondary is advertised to clients only.
	Secondary string

	Endpoint      string
	Timeout       time.Duration
	UDPBufferSize int

	// Fallback transports are tried in order after Transport fails.
	Fallback []Transport

	Protect protect.Protector

	// TLS overrides the client TLS settings of the DoH transports.
	TLS *tls.Config
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if len(c.Transport) == 0 {
		c.Transport = DohPost
	}
	if len(c.Primary) == 0 {
		c.Primary = DefaultPrimary
	}
	if len(c.Secondary) == 0 {
		c.Secondary = DefaultSecondary
	}
	if len(c.Endpoint) == 0 {
		c.Endpoint = DefaultEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UDPBufferSize < MinUDPBufferSize {
		c.UDPBufferSize = MinUDPBufferSize
	}
	return c
}

// New builds the resolver selected by config. With fallback transports
// configured the result is a Chain.
func New(config Config) (Resolver, error) {
	config = config.WithDefaults()

	primary, err := newTransport(config, config.Transport)
	if err != nil {
		return nil, err
	}

	if len(config.Fallback) == 0 {
		return primary, nil
	}

	var links = []Link{{Transport: config.Transport, Resolver: primary}}
	for _, t := range config.Fallback {
		if t == config.Transport {
			continue
		}
		var r Resolver
		if r, err = newTransport(config, t); err != nil {
			return nil, err
		}
		links = append(links, Link{Transport: t, Resolver: r})
	}

	return NewChain(links...), nil
}

func newTransport(config Config, t Transport) (Resolver, error) {
	switch t {
	case PlainUDP:
		return NewUDP(config), nil
	case DohPost, DohGet:
		return NewDoH(config, t)
	default:
		return nil, fmt.Errorf("unknown transport %q", t)
	}
}

// withPort appends port to host unless it already carries one.
func withPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("endpoint %s: scheme %q not supported", raw, u.Scheme)
	}
	if len(u.Host) == 0 {
		return nil, fmt.Errorf("endpoint %s: host missing", raw)
	}
	return u, nil
}

// failure logs and wraps err as ErrResolution.
func failure(name string, query []byte, err error) error {
	if s, e := util.DNSSummarize(query); e == nil {
		log.Sugar.Warnf("%s %s error=[%+v]", name, s, err)
	} else {
		log.Sugar.Warnf("%s error=[%+v]", name, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrResolution, name, err)
}

func checkResponse(name string, query, resp []byte, elapsed time.Duration) ([]byte, error) {
	if !util.DNSMatch(query, resp) {
		return nil, failure(name, query, errors.New("unmatched request and response"))
	}

	if s, err := util.DNSSummarize(resp); err == nil {
		log.Sugar.Debugf("%s %s, cost %s", name, s, elapsed)
	} else {
		log.Sugar.Debugf("%s response len=%d, cost %s", name, len(resp), elapsed)
	}

	return resp, nil
}
