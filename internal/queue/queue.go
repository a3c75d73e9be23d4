// Package queue paces outgoing protocol messages. Two FIFO lanes share one
// release slot per interval: the high lane always drains first, and a message
// enqueued while the queue is idle skips the wait entirely.
package queue

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"

	"github.com/vovakirdan/streamchat/internal/irc"
)

// DefaultInterval matches the server limit of 20 messages per 32 seconds.
const DefaultInterval = 1600 * time.Millisecond

// ReleaseFunc receives each message the queue lets through.
type ReleaseFunc func(msg irc.Message)

// Option customizes a Queue.
type Option func(*Queue)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithInterval sets the release interval. Zero or negative turns flood
// control off and every message is released as soon as it is enqueued.
func WithInterval(d time.Duration) Option {
	return func(q *Queue) {
		q.interval = d
	}
}

// Queue is a two-priority, ticker-driven scheduler.
type Queue struct {
	clock    clock.Clock
	interval time.Duration
	release  ReleaseFunc

	mu            sync.Mutex
	high          deque.Deque[irc.Message]
	normal        deque.Deque[irc.Message]
	running       bool
	sentLastCycle bool
	ticker        *clock.Ticker
	quit          chan struct{}
}

// New builds a queue and starts its ticker.
func New(release ReleaseFunc, opts ...Option) *Queue {
	q := &Queue{
		clock:    clock.New(),
		interval: DefaultInterval,
		release:  release,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.Start()
	return q
}

// Enqueue schedules msg. When the queue is running, empty and nothing went out
// during the previous cycle, msg is released on the caller's goroutine before
// Enqueue returns.
func (q *Queue) Enqueue(msg irc.Message, high bool) {
	q.mu.Lock()
	if q.running && (q.interval <= 0 || q.idleLocked()) {
		q.sentLastCycle = true
		q.mu.Unlock()
		q.release(msg)
		return
	}
	if high {
		q.high.PushBack(msg)
	} else {
		q.normal.PushBack(msg)
	}
	q.mu.Unlock()
}

func (q *Queue) idleLocked() bool {
	return !q.sentLastCycle && q.high.Len() == 0 && q.normal.Len() == 0
}

// Start resumes releasing. It is a no-op on a running queue.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true

	if q.interval <= 0 {
		pending := q.drainLocked()
		q.mu.Unlock()
		for _, msg := range pending {
			q.release(msg)
		}
		return
	}

	q.ticker = q.clock.Ticker(q.interval)
	q.quit = make(chan struct{})
	go q.loop(q.ticker, q.quit)
	q.mu.Unlock()
}

// Stop halts the ticker. Queued messages stay queued and new ones are held
// until Start.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}
	q.running = false
	if q.ticker != nil {
		q.ticker.Stop()
		q.ticker = nil
	}
	if q.quit != nil {
		close(q.quit)
		q.quit = nil
	}
}

// Clear drops every queued message without releasing it.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.high.Clear()
	q.normal.Clear()
	q.mu.Unlock()
}

// Len reports how many messages are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.high.Len() + q.normal.Len()
}

// Running reports whether the ticker is active.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Interval returns the configured release interval.
func (q *Queue) Interval() time.Duration {
	return q.interval
}

func (q *Queue) loop(ticker *clock.Ticker, quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			q.tick(ticker)
		}
	}
}

func (q *Queue) tick(ticker *clock.Ticker) {
	q.mu.Lock()
	// a tick buffered before Stop must not leak into the next run
	if !q.running || q.ticker != ticker {
		q.mu.Unlock()
		return
	}
	msg, ok := q.nextLocked()
	q.sentLastCycle = ok
	q.mu.Unlock()

	if ok {
		q.release(msg)
	}
}

func (q *Queue) nextLocked() (irc.Message, bool) {
	if q.high.Len() > 0 {
		return q.high.PopFront(), true
	}
	if q.normal.Len() > 0 {
		return q.normal.PopFront(), true
	}
	return irc.Message{}, false
}

func (q *Queue) drainLocked() []irc.Message {
	pending := make([]irc.Message, 0, q.high.Len()+q.normal.Len())
	for {
		msg, ok := q.nextLocked()
		if !ok {
			return pending
		}
		pending = append(pending, msg)
	}
}
