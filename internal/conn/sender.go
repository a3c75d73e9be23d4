package conn

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/queue"
)

// DefaultGracePeriod is how long the pumps wait before retrying after an I/O
// failure.
const DefaultGracePeriod = 5 * time.Second

type senderConfig struct {
	logger   zerolog.Logger
	clock    clock.Clock
	interval time.Duration
	grace    time.Duration
	onSent   func(irc.Message)
	onLost   func(error)
}

// sender writes encoded lines to the socket, paced by its queue.
type sender struct {
	cfg senderConfig
	w   io.Writer

	writeMu sync.Mutex
	queue   *queue.Queue

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

func newSender(w io.Writer, cfg senderConfig) *sender {
	if cfg.onSent == nil {
		cfg.onSent = func(irc.Message) {}
	}
	if cfg.onLost == nil {
		cfg.onLost = func(error) {}
	}
	s := &sender{
		cfg:    cfg,
		w:      w,
		stopCh: make(chan struct{}),
	}
	s.queue = queue.New(s.deliver, queue.WithClock(cfg.clock), queue.WithInterval(cfg.interval))
	return s
}

// Enqueue hands msg to the queue.
func (s *sender) Enqueue(msg irc.Message, high bool) error {
	if s.isStopped() {
		return ErrNotConnected
	}
	s.queue.Enqueue(msg, high)
	return nil
}

// SendNow writes msg immediately, skipping the queue and the retry logic.
func (s *sender) SendNow(msg irc.Message) error {
	if s.isStopped() {
		return ErrNotConnected
	}
	line := irc.Encode(msg)
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if err := s.write(line); err != nil {
		return err
	}
	s.cfg.onSent(msg)
	return nil
}

// Pending reports the queue depth.
func (s *sender) Pending() int {
	return s.queue.Len()
}

// Stop refuses further sends and drops whatever is still queued.
func (s *sender) Stop() {
	s.halt()
}

func (s *sender) halt() bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.queue.Stop()
	s.queue.Clear()
	return true
}

func (s *sender) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// deliver is the queue's release callback.
func (s *sender) deliver(msg irc.Message) {
	if s.isStopped() {
		return
	}
	line := irc.Encode(msg)
	if strings.TrimSpace(line) == "" {
		return
	}

	err := s.write(line)
	if err == nil {
		s.cfg.onSent(msg)
		return
	}

	s.cfg.logger.Warn().Err(err).Dur("grace", s.cfg.grace).Msg("write failed, pausing queue")
	s.queue.Stop()
	if !s.wait() {
		return
	}

	if err := s.write(line); err != nil {
		s.cfg.logger.Error().Err(err).Msg("write retry failed")
		if s.halt() {
			s.cfg.onLost(err)
		}
		return
	}

	s.cfg.logger.Info().Msg("write recovered, resuming queue")
	s.queue.Start()
	s.cfg.onSent(msg)
}

func (s *sender) write(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := io.WriteString(s.w, line+"\r\n")
	return err
}

// wait sleeps for the grace period. It returns false if Stop interrupted it.
func (s *sender) wait() bool {
	timer := s.cfg.clock.Timer(s.cfg.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !s.isStopped()
	case <-s.stopCh:
		return false
	}
}
