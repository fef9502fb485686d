// Package tunnel runs the interception loop between the virtual interface
// and the resolver.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/treemana/dohtun/log"
	"github.com/treemana/dohtun/metrics"
	"github.com/treemana/dohtun/protect"
	"github.com/treemana/dohtun/resolver"
	"github.com/treemana/dohtun/tun"
)

const (
	defaultIdleSleep = 50 * time.Millisecond
	defaultTimeout   = resolver.DefaultTimeout
)

type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// OpenFunc establishes the virtual interface for one session.
type OpenFunc func() (tun.Device, error)

type Config struct {
	// SplitTunnel leaves non-DNS packets to the host stack. Without it they
	// are relayed through Upstream.
	SplitTunnel bool

	// Upstream receives raw non-DNS datagrams in full tunnel mode.
	Upstream string

	// Transport labels resolution metrics.
	Transport string

	// Timeout bounds each full tunnel relay.
	Timeout time.Duration

	// Workers resolves up to this many queries concurrently; zero keeps one
	// query in flight at a time.
	Workers int

	UDPChecksum bool
	Protect     protect.Protector

	// IdleSleep is the pause after an empty read.
	IdleSleep time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = defaultIdleSleep
	}
	if len(c.Transport) == 0 {
		c.Transport = string(resolver.DohPost)
	}
	return c
}

// Engine owns the interception loop. Start and Stop may be called any
// number of times from any goroutine.
type Engine struct {
	open     OpenFunc
	resolver resolver.Resolver
	config   Config

	mu       sync.Mutex // serialises Start and Stop
	state    atomic.Int32
	cancelFn context.CancelFunc
	done     chan struct{}
	session  *session

	serial atomic.Uint64
	stats  counters
}

// session holds what one Start acquires and Stop releases.
type session struct {
	device    tun.Device
	forwarder *Forwarder

	writeMu sync.Mutex // device writes from workers
	workWG  sync.WaitGroup
	workers chan struct{}

	started time.Time
}

func New(open OpenFunc, r resolver.Resolver, config Config) *Engine {
	e := &Engine{
		open:     open,
		resolver: r,
		config:   config.withDefaults(),
		done:     make(chan struct{}),
	}
	close(e.done)
	return e
}

func (e *Engine) State() State { return State(e.state.Load()) }

// Done is closed when the current session's loop has exited.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Start opens the interface, and in full tunnel mode the upstream socket,
// then launches the loop. Starting a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == Running {
		log.Sugar.Warn("engine already running")
		return nil
	}

	device, err := e.open()
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}

	s := &session{device: device, started: time.Now()}

	if !e.config.SplitTunnel {
		if s.forwarder, err = NewForwarder(ctx, e.config.Upstream, e.config.Protect, e.config.Timeout); err != nil {
			_ = device.Close()
			return fmt.Errorf("open upstream: %w", err)
		}
	}

	if e.config.Workers > 0 {
		s.workers = make(chan struct{}, e.config.Workers)
	}

	var loopCtx context.Context
	loopCtx, e.cancelFn = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.session = s

	e.state.Store(int32(Running))
	metrics.EngineRunning.Set(1)
	e.stats.sessions.Add(1)

	go e.loop(loopCtx, s, e.done)

	log.Sugar.Infof("engine running ..., split=%t, transport=%s, workers=%d", e.config.SplitTunnel, e.config.Transport, e.config.Workers)

	return nil
}

// Stop interrupts the loop, closes the upstream socket and releases the
// interface. Each step runs even when another fails. Resolutions already
// in flight finish within their timeout; no new ones start. Stopping a
// stopped engine returns nil.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}

	log.Sugar.Info("engine stopping")
	e.state.Store(int32(Stopped))
	metrics.EngineRunning.Set(0)

	s := e.session
	e.session = nil

	var errs []error
	errs = append(errs, guard("cancel read", func() error {
		if e.cancelFn != nil {
			e.cancelFn()
		}
		return nil
	}))
	errs = append(errs, guard("close upstream", func() error {
		if s.forwarder == nil {
			return nil
		}
		return s.forwarder.Close()
	}))
	errs = append(errs, guard("close device", s.device.Close))

	<-e.done
	s.workWG.Wait()

	e.stats.connected.Add(int64(time.Since(s.started)))
	log.Sugar.Infof("engine stopped, serial=%d", e.serial.Load())

	return errors.Join(errs...)
}

// guard runs one shutdown step, turning a panic into an error.
func guard(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", step, r)
		}
	}()
	if err = fn(); err != nil {
		log.Sugar.Warnf("engine %s error=[%+v]", step, err)
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}
