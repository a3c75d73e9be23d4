package http

import (
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/vovakirdan/streamchat/internal/chat"
	"github.com/vovakirdan/streamchat/internal/conn"
	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/state"
)

// Feed inbound types.
const (
	InboundTypeJoin = "join"
	InboundTypePart = "part"
	InboundTypeSay  = "say"
)

// Error codes reported on the feed.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnknownType  = "invalid_message"
	ErrCodeNotConnected = "not_connected"
)

// Inbound is a command sent by a feed client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ChannelData is the payload of join and part.
type ChannelData struct {
	Channel string `json:"channel"`
}

// SayData is the payload of say and of POST /api/channels/:name/messages.
type SayData struct {
	Channel      string `json:"channel,omitempty"`
	Text         string `json:"text"`
	HighPriority bool   `json:"high_priority"`
}

// Outbound is a frame written to a feed client.
type Outbound struct {
	Type  string     `json:"type"`
	Event string     `json:"event,omitempty"`
	Data  any        `json:"data,omitempty"`
	Error *FeedError `json:"error,omitempty"`
}

// FeedError describes a rejected feed command.
type FeedError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// EventMessage is one received chat message.
type EventMessage struct {
	Command string            `json:"command"`
	Channel string            `json:"channel,omitempty"`
	Source  string            `json:"source,omitempty"`
	Target  string            `json:"target,omitempty"`
	Text    string            `json:"text,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
	TS      int64             `json:"ts"`
}

type commandKind int

const (
	commandJoin commandKind = iota
	commandPart
	commandSay
)

type command struct {
	kind    commandKind
	channel string
	text    string
	high    bool
}

func (c *command) apply(svc ChatService) error {
	switch c.kind {
	case commandJoin:
		return svc.Join(c.channel)
	case commandPart:
		return svc.Part(c.channel)
	default:
		return svc.Say(c.channel, c.text, c.high)
	}
}

func inboundToCommand(inbound Inbound) (*command, *FeedError, error) {
	switch inbound.Type {
	case InboundTypeJoin, InboundTypePart:
		var data ChannelData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		name := state.NormalizeChannel(data.Channel)
		if name == "" {
			return nil, &FeedError{Code: ErrCodeBadRequest, Msg: "invalid channel name"}, nil
		}
		kind := commandJoin
		if inbound.Type == InboundTypePart {
			kind = commandPart
		}
		return &command{kind: kind, channel: name}, nil, nil
	case InboundTypeSay:
		var data SayData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		name := state.NormalizeChannel(data.Channel)
		if name == "" {
			return nil, &FeedError{Code: ErrCodeBadRequest, Msg: "invalid channel name"}, nil
		}
		if strings.TrimSpace(data.Text) == "" {
			return nil, &FeedError{Code: ErrCodeBadRequest, Msg: "text is required"}, nil
		}
		if err := sayMessage(name, data.Text).Validate(); err != nil {
			return nil, &FeedError{Code: ErrCodeBadRequest, Msg: err.Error()}, nil
		}
		return &command{kind: commandSay, channel: name, text: data.Text, high: data.HighPriority}, nil, nil
	default:
		return nil, &FeedError{Code: ErrCodeUnknownType, Msg: "unknown message type"}, nil
	}
}

func sayMessage(channel, text string) irc.Message {
	return irc.Message{Command: irc.CommandPrivmsg, Channel: channel, Text: text}
}

func outboundFromMessage(msg irc.Message, at time.Time) Outbound {
	return Outbound{
		Type:  "event",
		Event: "message",
		Data: EventMessage{
			Command: msg.Command,
			Channel: msg.Channel,
			Source:  msg.Source,
			Target:  msg.Target,
			Text:    msg.Text,
			Tags:    irc.ParseTags(msg.Tags),
			TS:      at.Unix(),
		},
	}
}

func feedErrorFrom(err error) *FeedError {
	if errors.Is(err, conn.ErrNotConnected) || errors.Is(err, conn.ErrClosed) {
		return &FeedError{Code: ErrCodeNotConnected, Msg: err.Error()}
	}
	return &FeedError{Code: ErrCodeBadRequest, Msg: err.Error()}
}

// statusFor maps a chat error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidChannel), errors.Is(err, irc.ErrLineBreak):
		return stdhttp.StatusBadRequest
	case errors.Is(err, conn.ErrNotConnected), errors.Is(err, conn.ErrClosed):
		return stdhttp.StatusServiceUnavailable
	default:
		return stdhttp.StatusInternalServerError
	}
}
