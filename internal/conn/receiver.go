package conn

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/irc"
)

type receiverConfig struct {
	logger    zerolog.Logger
	clock     clock.Clock
	grace     time.Duration
	onReceive func(raw string, msg irc.Message)
	onLost    func(error)
}

// receiver runs the blocking read loop on its own goroutine.
type receiver struct {
	cfg    receiverConfig
	reader *bufio.Reader

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

func newReceiver(r io.Reader, cfg receiverConfig) *receiver {
	if cfg.onReceive == nil {
		cfg.onReceive = func(string, irc.Message) {}
	}
	if cfg.onLost == nil {
		cfg.onLost = func(error) {}
	}
	return &receiver{
		cfg:    cfg,
		reader: bufio.NewReader(r),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the read loop once.
func (r *receiver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	go r.run()
}

// Stop ends the loop. A read blocked on the socket only returns once the
// socket is closed; no loss is reported after Stop.
func (r *receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
	if !r.started {
		close(r.done)
	}
}

// Done is closed when the loop has exited.
func (r *receiver) Done() <-chan struct{} {
	return r.done
}

func (r *receiver) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *receiver) run() {
	defer close(r.done)

	connected := false
	for {
		line, err := r.reader.ReadString('\n')
		if r.isStopped() {
			return
		}

		if err != nil {
			if !connected {
				r.cfg.logger.Debug().Err(err).Msg("read failed, connection lost")
				r.mu.Lock()
				if r.stopped {
					r.mu.Unlock()
					return
				}
				r.stopped = true
				close(r.stopCh)
				r.mu.Unlock()
				r.cfg.onLost(err)
				return
			}
			connected = false
			r.cfg.logger.Warn().Err(err).Dur("grace", r.cfg.grace).Msg("read failed, retrying")
			if !r.wait() {
				return
			}
			continue
		}

		connected = true
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.cfg.onReceive(line, irc.Decode(line))
	}
}

func (r *receiver) wait() bool {
	timer := r.cfg.clock.Timer(r.cfg.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !r.isStopped()
	case <-r.stopCh:
		return false
	}
}
