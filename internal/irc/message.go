package irc

import "strings"

// Commands and numerics the client produces or reacts to.
const (
	CommandRaw     = "RAW"
	CommandPing    = "PING"
	CommandPong    = "PONG"
	CommandPass    = "PASS"
	CommandNick    = "NICK"
	CommandQuit    = "QUIT"
	CommandJoin    = "JOIN"
	CommandPart    = "PART"
	CommandMode    = "MODE"
	CommandPrivmsg = "PRIVMSG"
	CommandNotice  = "NOTICE"
	CommandCap     = "CAP"

	CommandUserState = "USERSTATE"
	CommandRoomState = "ROOMSTATE"
	CommandClearChat = "CLEARCHAT"

	// ReplyWelcome is the first numeric sent after a successful login.
	ReplyWelcome = "001"
	// ReplyNames carries a batch of users already present in a channel.
	ReplyNames = "353"
	// ReplyEndOfNames terminates a names list.
	ReplyEndOfNames = "366"
	// ReplyUnknownCommand is returned for commands the server does not know.
	ReplyUnknownCommand = "421"
)

// Well-known message sources.
const (
	SourceServer = "tmi"
	SourceJTV    = "jtv"
)

// Message is one parsed protocol line. Absent parts are empty strings.
type Message struct {
	Source  string // sender nickname or server short name
	Target  string // secondary addressee, e.g. the nick affected by MODE
	Channel string // addressed channel, "#name" for channel traffic
	Command string // verb, numeric or CommandRaw
	Text    string // trailing payload
	Tags    string // raw "k=v;k=v" block without the leading '@'
}

// Raw wraps text that must be written to the wire verbatim.
func Raw(text string) Message {
	return Message{Command: CommandRaw, Text: text}
}

// IsRaw reports whether the message is a verbatim passthrough.
func (m Message) IsRaw() bool {
	return strings.EqualFold(m.Command, CommandRaw)
}

// Tag returns the value of a single tag and whether it was present.
func (m Message) Tag(key string) (string, bool) {
	v, ok := ParseTags(m.Tags)[key]
	return v, ok
}

// Validate reports ErrLineBreak when any part of m holds CR, LF or NUL, since
// such a message would reach the server as more than one command.
func (m Message) Validate() error {
	for _, part := range [...]string{m.Command, m.Channel, m.Target, m.Text} {
		if strings.ContainsAny(part, "\r\n\x00") {
			return ErrLineBreak
		}
	}
	return nil
}
