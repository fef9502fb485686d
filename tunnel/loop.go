package tunnel

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/treemana/dohtun/log"
	"github.com/treemana/dohtun/metrics"
	"github.com/treemana/dohtun/packet"
)

// Drop reasons beyond the classifier verdicts.
const (
	dropTruncated = "truncated"
	dropResolve   = "resolve"
	dropInvariant = "invariant"
	dropDevice    = "device"
	dropForward   = "forward"
	dropPanic     = "panic"
	dropBypass    = "bypass"
)

// isClosed reports read errors that mean the interface is gone.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) ||
		errors.Is(err, fs.ErrClosed) || errors.Is(err, io.EOF)
}

// read pumps datagrams from the device. A blocked Read is interrupted by
// closing the device, which is what Stop does.
func (e *Engine) read(ctx context.Context, dev io.Reader, mtu int, packets chan<- []byte, fatal chan<- error) {
	bytes := make([]byte, mtu)
	for {
		n, err := dev.Read(bytes)
		if err != nil {
			if isClosed(err) {
				select {
				case fatal <- err:
				case <-ctx.Done():
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			log.Sugar.Errorf("engine read error=[%+v]", err)
			metrics.DropsTotal.WithLabelValues(dropDevice).Inc()
			e.sleep(ctx)
			continue
		}

		if n <= 0 {
			e.sleep(ctx)
			continue
		}

		// bytes is reused by the next Read
		p := make([]byte, n)
		copy(p, bytes[:n])

		select {
		case packets <- p:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) sleep(ctx context.Context) {
	t := time.NewTimer(e.config.IdleSleep)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (e *Engine) loop(ctx context.Context, s *session, done chan struct{}) {
	defer close(done)

	mtu := s.device.MTU()
	if mtu <= 0 {
		mtu = 1500
	}

	packets := make(chan []byte)
	fatal := make(chan error, 1)
	go e.read(ctx, s.device, mtu, packets, fatal)

	for {
		select {
		case <-ctx.Done():
			log.Sugar.Info("engine loop cancelled")
			if e.State() == Running {
				// the caller's context ended without Stop
				go func() { _ = e.Stop() }()
			}
			return

		case err := <-fatal:
			if ctx.Err() != nil {
				return
			}
			log.Sugar.Errorf("engine interface lost error=[%+v]", err)
			go func() { _ = e.Stop() }()
			return

		case p := <-packets:
			if e.State() != Running {
				return
			}
			e.handle(ctx, s, p, e.serial.Add(1))
		}
	}
}

// handle processes one datagram. Nothing that goes wrong here reaches the
// loop.
func (e *Engine) handle(ctx context.Context, s *session, p []byte, sn uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Sugar.Errorf("sn=%d, packet handling panic=[%v]", sn, r)
			metrics.DropsTotal.WithLabelValues(dropPanic).Inc()
			e.stats.dropped.Add(1)
		}
	}()

	e.stats.packets.Add(1)

	v := packet.Classify(p)
	metrics.PacketsTotal.WithLabelValues(string(v.Reason)).Inc()

	if v.IsDNS {
		ex, err := packet.Extract(p)
		if err != nil {
			log.Sugar.Debugf("sn=%d, extract error=[%+v]", sn, err)
			metrics.DropsTotal.WithLabelValues(dropTruncated).Inc()
			e.stats.dropped.Add(1)
			return
		}
		e.dispatch(ctx, s, ex, sn)
		return
	}

	if s.forwarder == nil {
		metrics.DropsTotal.WithLabelValues(dropBypass).Inc()
		return
	}

	if err := e.forward(s, p, sn); err != nil {
		metrics.DropsTotal.WithLabelValues(dropForward).Inc()
		e.stats.dropped.Add(1)
	}
}

// dispatch runs the exchange inline, or on a worker when a pool is set.
func (e *Engine) dispatch(ctx context.Context, s *session, ex *packet.Exchange, sn uint64) {
	if s.workers == nil {
		e.exchange(ctx, s, ex, sn)
		return
	}

	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		return
	}

	s.workWG.Add(1)
	go func() {
		defer func() {
			<-s.workers
			s.workWG.Done()
			if r := recover(); r != nil {
				log.Sugar.Errorf("sn=%d, exchange panic=[%v]", sn, r)
				metrics.DropsTotal.WithLabelValues(dropPanic).Inc()
				e.stats.dropped.Add(1)
			}
		}()
		e.exchange(ctx, s, ex, sn)
	}()
}

// exchange resolves one query and writes the reply back to the device.
func (e *Engine) exchange(ctx context.Context, s *session, ex *packet.Exchange, sn uint64) {
	log.Sugar.Debugf("sn=%d, %s", sn, ex)

	// Stop does not abort a resolution in flight; the resolver timeout does.
	rctx := context.WithoutCancel(ctx)

	start := time.Now()
	resp, err := e.resolver.Resolve(rctx, ex.Query)
	metrics.ResolutionSeconds.WithLabelValues(e.config.Transport).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Sugar.Warnf("sn=%d, %s resolve error=[%+v]", sn, ex.Source(), err)
		metrics.ResolutionsTotal.WithLabelValues(e.config.Transport, metrics.ResultFailure).Inc()
		metrics.DropsTotal.WithLabelValues(dropResolve).Inc()
		e.stats.dropped.Add(1)
		return
	}
	metrics.ResolutionsTotal.WithLabelValues(e.config.Transport, metrics.ResultSuccess).Inc()

	var opts []packet.Option
	if e.config.UDPChecksum {
		opts = append(opts, packet.WithUDPChecksum())
	}

	reply, err := packet.Synthesize(ex, resp, opts...)
	if err != nil {
		log.Sugar.Errorf("sn=%d, synthesize error=[%+v]", sn, err)
		metrics.DropsTotal.WithLabelValues(dropInvariant).Inc()
		e.stats.dropped.Add(1)
		return
	}

	if err = e.write(s, reply); err != nil {
		log.Sugar.Warnf("sn=%d, device write error=[%+v]", sn, err)
		metrics.DropsTotal.WithLabelValues(dropDevice).Inc()
		e.stats.dropped.Add(1)
		return
	}

	e.stats.answered.Add(1)
	log.Sugar.Debugf("sn=%d, answered %s with %d bytes", sn, ex.Source(), len(resp))
}

func (e *Engine) write(s *session, p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.device.Write(p)
	return err
}

// forward relays one non-DNS datagram through the upstream socket and
// writes back whatever single datagram comes back.
func (e *Engine) forward(s *session, p []byte, sn uint64) error {
	reply, err := s.forwarder.Forward(p)
	if err != nil {
		log.Sugar.Debugf("sn=%d, forward error=[%+v]", sn, err)
		return err
	}
	if len(reply) == 0 {
		return nil
	}

	if err = e.write(s, reply); err != nil {
		log.Sugar.Warnf("sn=%d, device write error=[%+v]", sn, err)
		return err
	}
	return nil
}
