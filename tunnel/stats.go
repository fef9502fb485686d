package tunnel

import (
	"sync/atomic"
	"time"
)

type counters struct {
	sessions  atomic.Uint64
	connected atomic.Int64 // nanoseconds over finished sessions
	packets   atomic.Uint64
	answered  atomic.Uint64
	dropped   atomic.Uint64
}

// Stats is a snapshot of the engine counters. Totals span every session
// since New.
type Stats struct {
	State    State
	Uptime   time.Duration // current session, zero when stopped
	Sessions uint64

	// Connected sums the length of all sessions, the current one included.
	Connected time.Duration

	Packets  uint64
	Answered uint64
	Dropped  uint64
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{
		State:     e.State(),
		Sessions:  e.stats.sessions.Load(),
		Connected: time.Duration(e.stats.connected.Load()),
		Packets:   e.stats.packets.Load(),
		Answered:  e.stats.answered.Load(),
		Dropped:   e.stats.dropped.Load(),
	}
	if e.session != nil {
		st.Uptime = time.Since(e.session.started)
		st.Connected += st.Uptime
	}
	return st
}
