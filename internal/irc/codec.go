package irc

import (
	"errors"
	"strings"

	sorcix "gopkg.in/sorcix/irc.v2"
)

// ErrLineBreak is returned for messages that would not fit on a single line.
var ErrLineBreak = errors.New("message contains a line break")

// Decode parses a single line received from the server. It never fails: lines
// that do not fit the layout of their command come back as a RAW message
// holding the original line.
func Decode(line string) Message {
	rest := line
	var tags string
	if strings.HasPrefix(rest, "@") {
		idx := strings.IndexByte(rest, ' ')
		if idx < 0 {
			return Raw(line)
		}
		tags = rest[1:idx]
		rest = rest[idx+1:]
	}

	head, _, _ := strings.Cut(rest, " ")
	if head = strings.TrimPrefix(head, ":"); head == CommandPing || head == CommandPong {
		return Message{Command: head}
	}

	parsed := sorcix.ParseMessage(rest)
	if parsed == nil || parsed.Prefix == nil {
		return Raw(line)
	}

	msg, ok := decodeParams(sourceOf(parsed.Prefix.Name), parsed.Command, parsed.Params)
	if !ok {
		return Raw(line)
	}
	msg.Tags = tags
	return msg
}

// minParams is the number of parameters each layout needs, the trailing
// parameter included.
var minParams = map[string]int{
	CommandJoin:         1,
	CommandPart:         1,
	CommandPrivmsg:      2,
	CommandMode:         3,
	ReplyNames:          4,
	ReplyEndOfNames:     3,
	ReplyUnknownCommand: 3,
	CommandUserState:    1,
	CommandRoomState:    1,
	CommandCap:          3,
}

func decodeParams(source, command string, params []string) (Message, bool) {
	if command == "" {
		return Message{}, false
	}
	need, known := minParams[command]
	if !known {
		need = 1
	}
	if len(params) < need {
		return Message{}, false
	}

	msg := Message{
		Source:  source,
		Command: command,
	}

	switch command {
	case CommandJoin, CommandPart, CommandUserState, CommandRoomState:
		msg.Channel = params[0]
	case CommandMode:
		// :jtv MODE #channel +o nickname
		msg.Channel = params[0]
		msg.Text = params[1]
		msg.Target = params[2]
	case ReplyNames:
		// :nick.tmi.twitch.tv 353 nick = #channel :name name name
		msg.Channel = params[2]
		msg.Text = trailing(params, 3)
	case ReplyEndOfNames:
		// :nick.tmi.twitch.tv 366 nick #channel :End of /NAMES list
		msg.Channel = params[1]
		msg.Text = trailing(params, 2)
	case ReplyUnknownCommand:
		// :tmi.twitch.tv 421 nick BADCOMMAND :Unknown command
		msg.Channel = params[0]
		msg.Text = trailing(params, 2) + ": " + params[1]
	case CommandCap:
		// :tmi.twitch.tv CAP * ACK :twitch.tv/tags
		msg.Text = params[1] + " " + trailing(params, 2)
	default:
		msg.Channel = params[0]
		msg.Text = trailing(params, 1)
	}

	return msg, true
}

// sourceOf reduces "nick!nick@nick.tmi.twitch.tv", "tmi.twitch.tv" or "jtv"
// to the bare name.
func sourceOf(prefix string) string {
	src := prefix
	if idx := strings.IndexByte(src, '.'); idx >= 0 {
		src = src[:idx]
	}
	if idx := strings.IndexByte(src, '!'); idx >= 0 {
		src = src[:idx]
	}
	return src
}

func trailing(params []string, from int) string {
	if from >= len(params) {
		return ""
	}
	return strings.TrimSpace(strings.Join(params[from:], " "))
}

// Encode renders a message as a wire line without the line terminator. Line
// breaks never reach the output; Validate rejects such messages up front.
func Encode(m Message) string {
	if m.IsRaw() {
		return stripLineBreaks(m.Text)
	}

	fields := make([]string, 0, 3)
	if c := strings.TrimSpace(m.Command); c != "" {
		fields = append(fields, c)
	}
	if ch := strings.TrimSpace(m.Channel); ch != "" {
		fields = append(fields, ch)
	}
	if strings.TrimSpace(m.Text) != "" {
		fields = append(fields, ":"+m.Text)
	}
	return stripLineBreaks(strings.TrimRight(strings.Join(fields, " "), " \t"))
}

var lineBreaks = strings.NewReplacer("\r", "", "\n", "", "\x00", "")

func stripLineBreaks(s string) string {
	if !strings.ContainsAny(s, "\r\n\x00") {
		return s
	}
	return lineBreaks.Replace(s)
}

// ParseTags splits a "k=v;k=v" block and unescapes the values. A key without
// '=' maps to "".
func ParseTags(raw string) map[string]string {
	tags := make(map[string]string)
	if raw == "" {
		return tags
	}
	for _, pair := range strings.Split(raw, ";") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTag(value)
	}
	return tags
}

// unescapeTag reverses IRCv3 tag value escaping: \: \s \\ \r \n. Any other
// escaped character stands for itself and a lone trailing backslash is
// dropped.
func unescapeTag(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(value) {
			break
		}
		switch value[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}
