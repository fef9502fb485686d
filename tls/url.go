package tls

import (
	"context"
	"math"
	"net/url"
	"time"

	"github.com/treemana/dohtun/log"
)

// Latency is the TLS connect time to one target of an endpoint.
type Latency struct {
	Target string
	Elapse time.Duration
	Err    error
}

// Probe handshakes with rawURL once through every target and reports each
// elapse, in target order. A failed target carries math.MaxInt64.
func Probe(ctx context.Context, rawURL string, targets []string, opts Options) ([]Latency, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		targets = []string{u.Host}
	}

	var seen = make(map[string]struct{}, len(targets))
	var out = make([]Latency, 0, len(targets))
	for _, target := range targets {
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}

		o := opts
		o.Target = target
		conn, elapse, err := NewConn(ctx, *u, o)
		if err != nil {
			log.Sugar.Warnf("%s via %s tls connection [%+v]", u.Host, target, err)
			out = append(out, Latency{Target: target, Elapse: math.MaxInt64, Err: err})
			continue
		}
		_ = conn.Close()

		out = append(out, Latency{Target: target, Elapse: elapse})
	}

	return out, nil
}

// Fastest returns the reachable entry with the smallest elapse, or nil.
func Fastest(latencies []Latency) *Latency {
	var fast *Latency
	for i := range latencies {
		l := &latencies[i]
		if l.Err != nil {
			continue
		}
		if fast == nil || l.Elapse < fast.Elapse {
			fast = l
		}
	}
	return fast
}
