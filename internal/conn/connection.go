// Package conn runs one chat session over a socket: the paced send pump, the
// read loop, the liveness watchdog and automatic reconnection.
package conn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/queue"
	"github.com/vovakirdan/streamchat/internal/telemetry"
	"github.com/vovakirdan/streamchat/internal/utils"
)

// quitTimeout bounds the synchronous QUIT write on Disconnect.
const quitTimeout = 5 * time.Second

// Data is what Connect needs to log in. It is kept and reused for every
// automatic reconnect.
type Data struct {
	Nickname string
	Password string
	Host     string
	Port     int
}

// Addr returns host:port.
func (d Data) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// validate rejects credentials that would split the PASS or NICK line.
func (d Data) validate() error {
	if strings.ContainsAny(d.Nickname+d.Password+d.Host, "\r\n\x00") {
		return fmt.Errorf("login data: %w", irc.ErrLineBreak)
	}
	return nil
}

// State of the session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Reason explains a disconnect.
type Reason int

const (
	ReasonClientDisconnected Reason = iota
	ReasonTimedOut
	ReasonDisposed
	ReasonHostNotFound
)

func (r Reason) String() string {
	switch r {
	case ReasonClientDisconnected:
		return "client_disconnected"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonDisposed:
		return "disposed"
	case ReasonHostNotFound:
		return "host_not_found"
	default:
		return "unknown"
	}
}

// DisconnectEvent is delivered to OnDisconnected listeners.
type DisconnectEvent struct {
	Reason       Reason
	Reconnecting bool
}

// Option customizes a Connection.
type Option func(*Connection)

// WithLogger sets the parent logger. Defaults to zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Connection) { c.log = logger }
}

// WithClock replaces the wall clock used by the queue, watchdog and grace
// waits. Tests pass a mock.
func WithClock(clk clock.Clock) Option {
	return func(c *Connection) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithDialer sets how sockets are opened. Defaults to a plain TCP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Connection) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithMetrics records connection activity into m. Nil disables metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

// WithSendInterval sets the flood control interval. Zero disables pacing.
func WithSendInterval(d time.Duration) Option {
	return func(c *Connection) { c.interval = d }
}

// WithTimeouts overrides the watchdog timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(c *Connection) { c.timeouts = t }
}

// WithGracePeriod sets how long the pumps wait before retrying I/O.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Connection) { c.grace = d }
}

// session is everything bound to one socket.
type session struct {
	id       string
	netConn  net.Conn
	sender   *sender
	receiver *receiver
	watchdog *watchdog
}

func (s *session) stop() error {
	s.watchdog.Stop()
	s.sender.Stop()
	s.receiver.Stop()
	return s.netConn.Close()
}

// Connection is a self-healing chat session. All methods are safe for
// concurrent use. Listeners run synchronously on the goroutine that produced
// the event, in registration order.
type Connection struct {
	log      zerolog.Logger
	clock    clock.Clock
	dialer   Dialer
	metrics  *telemetry.Metrics
	interval time.Duration
	timeouts Timeouts
	grace    time.Duration

	mu      sync.Mutex
	data    Data
	state   State
	gen     uint64
	closed  bool
	current *session

	rawListeners        utils.Listeners[string]
	messageListeners    utils.Listeners[irc.Message]
	registeredListeners utils.Listeners[struct{}]
	disconnectListeners utils.Listeners[DisconnectEvent]
	sentListeners       utils.Listeners[irc.Message]
}

// New returns an idle connection.
func New(opts ...Option) *Connection {
	c := &Connection{
		log:      zerolog.Nop(),
		clock:    clock.New(),
		dialer:   TCPDialer{Timeout: 10 * time.Second},
		interval: queue.DefaultInterval,
		timeouts: DefaultTimeouts(),
		grace:    DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "conn").Logger()
	return c
}

// OnRawMessage registers fn for every non-blank line received.
func (c *Connection) OnRawMessage(fn func(raw string)) func() {
	return c.rawListeners.Add(fn)
}

// OnMessage registers fn for every decoded inbound message.
func (c *Connection) OnMessage(fn func(msg irc.Message)) func() {
	return c.messageListeners.Add(fn)
}

// OnRegistered registers fn for successful logins, including after reconnects.
func (c *Connection) OnRegistered(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return c.registeredListeners.Add(func(struct{}) { fn() })
}

// OnDisconnected registers fn for every disconnect.
func (c *Connection) OnDisconnected(fn func(ev DisconnectEvent)) func() {
	return c.disconnectListeners.Add(fn)
}

// OnMessageSent registers fn for every line written to the socket. The
// message's Source is set to the session's nickname.
func (c *Connection) OnMessageSent(fn func(msg irc.Message)) func() {
	return c.sentListeners.Add(fn)
}

// State returns the current session state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Registered reports whether the server accepted the login.
func (c *Connection) Registered() bool {
	return c.State() == StateRegistered
}

// Data returns the login data of the last Connect.
func (c *Connection) Data() Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Pending reports the number of queued outgoing messages.
func (c *Connection) Pending() int {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.sender.Pending()
}

// Connect dials the server and starts the login handshake. A dial failure
// raises a HostNotFound disconnect and is returned; it is not retried. An
// existing session is dropped silently first.
func (c *Connection) Connect(ctx context.Context, data Data) error {
	if err := data.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.data = data
	old := c.detachLocked()
	c.mu.Unlock()

	if old != nil {
		if err := old.stop(); err != nil {
			c.log.Debug().Err(err).Str("session", old.id).Msg("close previous socket")
		}
	}

	return c.dial(ctx)
}

func (c *Connection) dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	data := c.data
	c.mu.Unlock()

	id := utils.ShortID()
	log := c.log.With().Str("session", id).Logger()
	addr := data.Addr()

	log.Info().Str("addr", addr).Str("nickname", data.Nickname).Msg("connecting")
	nc, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("dial failed")
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.emitDisconnected(DisconnectEvent{Reason: ReasonHostNotFound})
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	s := &session{id: id, netConn: nc}
	s.sender = newSender(nc, senderConfig{
		logger:   log.With().Str("pump", "send").Logger(),
		clock:    c.clock,
		interval: c.interval,
		grace:    c.grace,
		onSent:   c.handleSent,
		onLost:   func(err error) { c.handleLost(gen, "sender", err) },
	})
	s.receiver = newReceiver(nc, receiverConfig{
		logger:    log.With().Str("pump", "receive").Logger(),
		clock:     c.clock,
		grace:     c.grace,
		onReceive: func(raw string, msg irc.Message) { c.handleReceived(gen, raw, msg) },
		onLost:    func(err error) { c.handleLost(gen, "receiver", err) },
	})
	s.watchdog = newWatchdog(c.clock, c.timeouts,
		func() { c.handleQuiet(gen) },
		func() { c.handleExpired(gen) },
	)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		_ = nc.Close()
		return ErrClosed
	}
	c.current = s
	c.mu.Unlock()

	c.metrics.IncConnects()
	s.watchdog.Start()
	s.receiver.Start()

	if err := s.sender.Enqueue(irc.Raw(irc.CommandPass+" "+data.Password), true); err != nil {
		return err
	}
	return s.sender.Enqueue(irc.Raw(irc.CommandNick+" "+data.Nickname), true)
}

// Send queues msg for delivery.
func (c *Connection) Send(msg irc.Message, high bool) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}

	err := s.sender.Enqueue(msg, high)
	c.metrics.SetQueueDepth(s.sender.Pending())
	return err
}

// Disconnect writes QUIT, closes the socket and raises a ClientDisconnected
// event. No reconnect follows.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	s := c.detachLocked()
	c.state = StateDisconnected
	c.mu.Unlock()

	if s == nil {
		return ErrNotConnected
	}

	err := c.quit(s)
	c.log.Info().Str("session", s.id).Msg("disconnected by client")
	c.emitDisconnected(DisconnectEvent{Reason: ReasonClientDisconnected})
	return err
}

// Close ends the session for good. Later calls to Connect return ErrClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.detachLocked()
	c.state = StateDisconnected
	c.mu.Unlock()

	var err error
	if s != nil {
		err = c.quit(s)
	}
	c.emitDisconnected(DisconnectEvent{Reason: ReasonDisposed})
	return err
}

func (c *Connection) quit(s *session) error {
	_ = s.netConn.SetWriteDeadline(time.Now().Add(quitTimeout))
	return multierr.Combine(
		s.sender.SendNow(irc.Raw(irc.CommandQuit)),
		s.stop(),
	)
}

// detachLocked unbinds the current session and invalidates its callbacks.
func (c *Connection) detachLocked() *session {
	s := c.current
	c.current = nil
	c.gen++
	return s
}

func (c *Connection) sessionFor(gen uint64) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return nil
	}
	return c.current
}

func (c *Connection) handleReceived(gen uint64, raw string, msg irc.Message) {
	s := c.sessionFor(gen)
	if s == nil {
		return
	}
	s.watchdog.Touch()
	c.metrics.IncReceived()

	c.rawListeners.Emit(raw)

	switch msg.Command {
	case irc.CommandPing:
		if err := s.sender.Enqueue(irc.Raw(irc.CommandPong), true); err != nil {
			c.log.Debug().Err(err).Msg("pong not queued")
		}
	case irc.ReplyWelcome:
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateRegistered
		}
		c.mu.Unlock()
		c.log.Info().Str("session", s.id).Msg("registered")
		c.metrics.IncRegistrations()
		c.registeredListeners.Emit(struct{}{})
	}

	c.messageListeners.Emit(msg)
}

// handleSent also runs for the QUIT written after a session was detached.
func (c *Connection) handleSent(msg irc.Message) {
	c.metrics.IncSent()

	c.mu.Lock()
	msg.Source = c.data.Nickname
	s := c.current
	c.mu.Unlock()
	if s != nil {
		c.metrics.SetQueueDepth(s.sender.Pending())
	}

	c.sentListeners.Emit(msg)
}

func (c *Connection) handleQuiet(gen uint64) {
	s := c.sessionFor(gen)
	if s == nil {
		return
	}
	c.log.Debug().Str("session", s.id).Msg("server quiet, sending ping")
	if err := s.sender.Enqueue(irc.Raw(irc.CommandPing), true); err != nil {
		c.log.Debug().Err(err).Msg("ping not queued")
	}
}

func (c *Connection) handleExpired(gen uint64) {
	c.reconnect(gen, "watchdog", nil)
}

func (c *Connection) handleLost(gen uint64, source string, err error) {
	c.reconnect(gen, source, err)
}

// reconnect tears the session down and dials again with the stored data.
func (c *Connection) reconnect(gen uint64, source string, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	s := c.detachLocked()
	c.state = StateTimedOut
	c.mu.Unlock()

	if s != nil {
		if err := s.stop(); err != nil {
			c.log.Debug().Err(err).Str("session", s.id).Msg("close socket")
		}
		c.log.Warn().Err(cause).Str("session", s.id).Str("source", source).Msg("connection timed out, reconnecting")
	}

	c.emitDisconnected(DisconnectEvent{Reason: ReasonTimedOut, Reconnecting: true})
	c.metrics.IncReconnects()

	if err := c.dial(context.Background()); err != nil {
		c.log.Error().Err(err).Msg("reconnect failed")
	}
}

func (c *Connection) emitDisconnected(ev DisconnectEvent) {
	c.metrics.IncDisconnects(ev.Reason.String())
	c.metrics.SetQueueDepth(0)
	c.disconnectListeners.Emit(ev)
}
