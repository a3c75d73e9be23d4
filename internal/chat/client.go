// Package chat is the session façade applications use: it owns the
// connection and the channel state, negotiates capabilities and keeps the
// joined channel set across reconnects.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/conn"
	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/state"
	"github.com/vovakirdan/streamchat/internal/telemetry"
	"github.com/vovakirdan/streamchat/internal/utils"
)

// Capabilities selects the twitch.tv/* extensions requested after login.
type Capabilities struct {
	Tags       bool `mapstructure:"tags" yaml:"tags" json:"tags"`
	Membership bool `mapstructure:"membership" yaml:"membership" json:"membership"`
	Commands   bool `mapstructure:"commands" yaml:"commands" json:"commands"`
}

// Requests returns the CAP REQ lines in the order they are sent.
func (c Capabilities) Requests() []string {
	var reqs []string
	if c.Tags {
		reqs = append(reqs, "CAP REQ :twitch.tv/tags")
	}
	if c.Commands {
		reqs = append(reqs, "CAP REQ :twitch.tv/commands")
	}
	if c.Membership {
		reqs = append(reqs, "CAP REQ :twitch.tv/membership")
	}
	return reqs
}

// Config configures a Client.
type Config struct {
	Capabilities Capabilities
	Metrics      *telemetry.Metrics
}

// Status summarizes the session.
type Status struct {
	State      string   `json:"state"`
	Registered bool     `json:"registered"`
	Nickname   string   `json:"nickname"`
	Channels   []string `json:"channels"`
	Pending    int      `json:"pending"`
}

// ErrInvalidChannel is returned for blank channel names.
var ErrInvalidChannel = errors.New("invalid channel name")

// Client is safe for concurrent use.
type Client struct {
	log     zerolog.Logger
	conn    *conn.Connection
	tracker *state.Tracker
	caps    Capabilities
	metrics *telemetry.Metrics

	rawListeners        utils.Listeners[string]
	messageListeners    utils.Listeners[irc.Message]
	registeredListeners utils.Listeners[struct{}]
	disconnectListeners utils.Listeners[conn.DisconnectEvent]
	sentListeners       utils.Listeners[irc.Message]
}

// New builds a client. opts are passed through to the connection.
func New(cfg Config, logger zerolog.Logger, opts ...conn.Option) *Client {
	connOpts := append([]conn.Option{
		conn.WithLogger(logger),
		conn.WithMetrics(cfg.Metrics),
	}, opts...)

	c := &Client{
		log:     logger.With().Str("component", "chat").Logger(),
		conn:    conn.New(connOpts...),
		tracker: state.NewTracker(),
		caps:    cfg.Capabilities,
		metrics: cfg.Metrics,
	}

	c.conn.OnRawMessage(c.rawListeners.Emit)
	c.conn.OnMessage(c.handleMessage)
	c.conn.OnRegistered(c.handleRegistered)
	c.conn.OnDisconnected(c.handleDisconnected)
	c.conn.OnMessageSent(c.sentListeners.Emit)

	return c
}

// OnRawMessage registers fn for every raw inbound line.
func (c *Client) OnRawMessage(fn func(raw string)) func() {
	return c.rawListeners.Add(fn)
}

// OnMessage registers fn for every decoded inbound message. Channel state is
// already updated when fn runs.
func (c *Client) OnMessage(fn func(msg irc.Message)) func() {
	return c.messageListeners.Add(fn)
}

// OnRegistered registers fn for every completed login. Capability requests
// and rejoins are already queued when fn runs.
func (c *Client) OnRegistered(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return c.registeredListeners.Add(func(struct{}) { fn() })
}

// OnDisconnected registers fn for every disconnect.
func (c *Client) OnDisconnected(fn func(ev conn.DisconnectEvent)) func() {
	return c.disconnectListeners.Add(fn)
}

// OnMessageSent registers fn for every line written to the server.
func (c *Client) OnMessageSent(fn func(msg irc.Message)) func() {
	return c.sentListeners.Add(fn)
}

// Connect logs in with data. Channels joined earlier are joined once the
// server accepts the login.
func (c *Client) Connect(ctx context.Context, data conn.Data) error {
	c.tracker.SetNickname(strings.ToLower(data.Nickname))
	return c.conn.Connect(ctx, data)
}

// Disconnect quits the session and forgets all channels.
func (c *Client) Disconnect() error {
	return c.conn.Disconnect()
}

// Close disconnects for good.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send queues an arbitrary message.
func (c *Client) Send(msg irc.Message, high bool) error {
	return c.conn.Send(msg, high)
}

// SendRaw queues a line that is written verbatim.
func (c *Client) SendRaw(line string, high bool) error {
	return c.conn.Send(irc.Raw(line), high)
}

// Say sends a chat message to channel.
func (c *Client) Say(channel, text string, high bool) error {
	name := state.NormalizeChannel(channel)
	if name == "" {
		return ErrInvalidChannel
	}
	return c.conn.Send(irc.Message{Command: irc.CommandPrivmsg, Channel: name, Text: text}, high)
}

// Join tracks the channels and, once registered, joins them. Channels that
// are already tracked are skipped.
func (c *Client) Join(channels ...string) error {
	var errs []error
	for _, channel := range channels {
		name := state.NormalizeChannel(channel)
		if name == "" {
			errs = append(errs, ErrInvalidChannel)
			continue
		}
		if !c.tracker.Add(name) {
			continue
		}
		c.log.Info().Str("channel", name).Msg("join")
		if c.conn.Registered() {
			errs = append(errs, c.conn.Send(irc.Message{Command: irc.CommandJoin, Channel: name}, true))
		}
	}
	c.metrics.SetChannels(c.tracker.Len())
	return errors.Join(errs...)
}

// Part leaves the channels and stops tracking them.
func (c *Client) Part(channels ...string) error {
	var errs []error
	for _, channel := range channels {
		name := state.NormalizeChannel(channel)
		if name == "" {
			errs = append(errs, ErrInvalidChannel)
			continue
		}
		if !c.tracker.Remove(name) {
			continue
		}
		c.log.Info().Str("channel", name).Msg("part")
		if c.conn.Registered() {
			errs = append(errs, c.conn.Send(irc.Message{Command: irc.CommandPart, Channel: name}, true))
		}
	}
	c.metrics.SetChannels(c.tracker.Len())
	return errors.Join(errs...)
}

// Channels returns a snapshot of every tracked channel.
func (c *Client) Channels() []state.ChannelInfo {
	return c.tracker.Channels()
}

// Channel returns a snapshot of one channel.
func (c *Client) Channel(name string) (state.ChannelInfo, bool) {
	ch, ok := c.tracker.Channel(name)
	if !ok {
		return state.ChannelInfo{}, false
	}
	return ch.Info(), true
}

// Users returns snapshots of the users seen in a channel.
func (c *Client) Users(channel string) ([]state.UserInfo, bool) {
	ch, ok := c.tracker.Channel(channel)
	if !ok {
		return nil, false
	}
	return ch.Users(), true
}

// User returns a snapshot of one user in one channel.
func (c *Client) User(channel, name string) (state.UserInfo, bool) {
	return c.tracker.User(channel, name)
}

// Status summarizes the session.
func (c *Client) Status() Status {
	return Status{
		State:      c.conn.State().String(),
		Registered: c.conn.Registered(),
		Nickname:   c.conn.Data().Nickname,
		Channels:   c.tracker.Names(),
		Pending:    c.conn.Pending(),
	}
}

func (c *Client) handleMessage(msg irc.Message) {
	c.tracker.Apply(msg)
	c.metrics.SetChannels(c.tracker.Len())
	c.messageListeners.Emit(msg)
}

// handleRegistered requests capabilities first, then rejoins every tracked
// channel.
func (c *Client) handleRegistered() {
	for _, req := range c.caps.Requests() {
		if err := c.conn.Send(irc.Raw(req), true); err != nil {
			c.log.Warn().Err(err).Str("request", req).Msg("capability request not sent")
		}
	}
	for _, name := range c.tracker.Names() {
		if err := c.conn.Send(irc.Message{Command: irc.CommandJoin, Channel: name}, true); err != nil {
			c.log.Warn().Err(err).Str("channel", name).Msg("rejoin not sent")
		}
	}
	c.registeredListeners.Emit(struct{}{})
}

func (c *Client) handleDisconnected(ev conn.DisconnectEvent) {
	if ev.Reconnecting {
		c.tracker.ResetUsers()
	} else {
		c.tracker.Clear()
	}
	c.metrics.SetChannels(c.tracker.Len())
	c.log.Info().Str("reason", ev.Reason.String()).Bool("reconnecting", ev.Reconnecting).Msg("disconnected")
	c.disconnectListeners.Emit(ev)
}
