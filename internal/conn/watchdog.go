package conn

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Phase is the liveness timer's current window.
type Phase int

const (
	// PhaseNew waits for the first line after connecting.
	PhaseNew Phase = iota
	// PhaseIdle waits for any traffic on an established session.
	PhaseIdle
	// PhasePingSent waits for the reply to a liveness PING.
	PhasePingSent
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseIdle:
		return "idle"
	case PhasePingSent:
		return "ping_sent"
	default:
		return "unknown"
	}
}

// Timeouts holds the length of each watchdog window.
type Timeouts struct {
	New       time.Duration
	Idle      time.Duration
	PingReply time.Duration
}

// DefaultTimeouts returns the standard windows: 60s, 300s and 30s.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		New:       60 * time.Second,
		Idle:      300 * time.Second,
		PingReply: 30 * time.Second,
	}
}

func (t Timeouts) forPhase(p Phase) time.Duration {
	switch p {
	case PhaseIdle:
		return t.Idle
	case PhasePingSent:
		return t.PingReply
	default:
		return t.New
	}
}

// watchdog is the dual-interval liveness timer. Silence in PhaseIdle sends a
// PING; silence in PhaseNew or PhasePingSent expires the session.
type watchdog struct {
	clock    clock.Clock
	timeouts Timeouts
	onQuiet  func()
	onExpire func()

	mu      sync.Mutex
	phase   Phase
	timer   *clock.Timer
	gen     uint64
	running bool
}

func newWatchdog(c clock.Clock, t Timeouts, onQuiet, onExpire func()) *watchdog {
	return &watchdog{
		clock:    c,
		timeouts: t,
		onQuiet:  onQuiet,
		onExpire: onExpire,
	}
}

// Start arms the timer in PhaseNew.
func (w *watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = true
	w.setLocked(PhaseNew)
}

// Touch records inbound traffic: back to PhaseIdle with a full window.
func (w *watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.setLocked(PhaseIdle)
}

// Stop disarms the timer. Pending callbacks are discarded.
func (w *watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Phase returns the current window.
func (w *watchdog) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

func (w *watchdog) setLocked(p Phase) {
	w.phase = p
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = w.clock.AfterFunc(w.timeouts.forPhase(p), func() { w.fire(gen) })
}

func (w *watchdog) fire(gen uint64) {
	w.mu.Lock()
	if !w.running || gen != w.gen {
		w.mu.Unlock()
		return
	}

	if w.phase == PhaseIdle {
		w.setLocked(PhasePingSent)
		w.mu.Unlock()
		w.onQuiet()
		return
	}

	w.running = false
	w.timer = nil
	w.mu.Unlock()
	w.onExpire()
}
