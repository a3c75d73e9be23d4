package irc

import (
	"testing"
)

func TestDecodeValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Message
	}{
		{
			"PRIVMSG",
			":ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :Kappa Keepo Kappa",
			Message{Source: "ronni", Command: CommandPrivmsg, Channel: "#dallas", Text: "Kappa Keepo Kappa"},
		},
		{
			"PRIVMSG with colon in text",
			":ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :see: this",
			Message{Source: "ronni", Command: CommandPrivmsg, Channel: "#dallas", Text: "see: this"},
		},
		{
			"JOIN",
			":ronni!ronni@ronni.tmi.twitch.tv JOIN #dallas",
			Message{Source: "ronni", Command: CommandJoin, Channel: "#dallas"},
		},
		{
			"PART",
			":ronni!ronni@ronni.tmi.twitch.tv PART #dallas",
			Message{Source: "ronni", Command: CommandPart, Channel: "#dallas"},
		},
		{
			"MODE",
			":jtv MODE #dallas +o ronni",
			Message{Source: "jtv", Command: CommandMode, Channel: "#dallas", Text: "+o", Target: "ronni"},
		},
		{
			"names list",
			":nick.tmi.twitch.tv 353 nick = #dallas :alice bob carol",
			Message{Source: "nick", Command: ReplyNames, Channel: "#dallas", Text: "alice bob carol"},
		},
		{
			"end of names",
			":nick.tmi.twitch.tv 366 nick #dallas :End of /NAMES list",
			Message{Source: "nick", Command: ReplyEndOfNames, Channel: "#dallas", Text: "End of /NAMES list"},
		},
		{
			"unknown command",
			":tmi.twitch.tv 421 nick WHO :Unknown command",
			Message{Source: "tmi", Command: ReplyUnknownCommand, Channel: "nick", Text: "Unknown command: WHO"},
		},
		{
			"ROOMSTATE",
			":tmi.twitch.tv ROOMSTATE #dallas",
			Message{Source: "tmi", Command: CommandRoomState, Channel: "#dallas"},
		},
		{
			"USERSTATE",
			":tmi.twitch.tv USERSTATE #dallas",
			Message{Source: "tmi", Command: CommandUserState, Channel: "#dallas"},
		},
		{
			"CAP ACK",
			":tmi.twitch.tv CAP * ACK :twitch.tv/tags",
			Message{Source: "tmi", Command: CommandCap, Text: "ACK twitch.tv/tags"},
		},
		{
			"welcome",
			":tmi.twitch.tv 001 nick :Welcome, GLHF!",
			Message{Source: "tmi", Command: ReplyWelcome, Channel: "nick", Text: "Welcome, GLHF!"},
		},
		{
			"CLEARCHAT without user",
			":tmi.twitch.tv CLEARCHAT #dallas",
			Message{Source: "tmi", Command: CommandClearChat, Channel: "#dallas"},
		},
		{
			"PING from server",
			"PING :tmi.twitch.tv",
			Message{Command: CommandPing},
		},
		{
			"bare PONG",
			"PONG",
			Message{Command: CommandPong},
		},
		{
			"tagged ROOMSTATE",
			"@broadcaster-lang=;r9k=0;slow=120;subs-only=0 :tmi.twitch.tv ROOMSTATE #dallas",
			Message{
				Source:  "tmi",
				Command: CommandRoomState,
				Channel: "#dallas",
				Tags:    "broadcaster-lang=;r9k=0;slow=120;subs-only=0",
			},
		},
		{
			"tagged PRIVMSG",
			"@color=#0D4200;display-name=Ronni;user-type=mod :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :hi",
			Message{
				Source:  "ronni",
				Command: CommandPrivmsg,
				Channel: "#dallas",
				Text:    "hi",
				Tags:    "color=#0D4200;display-name=Ronni;user-type=mod",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.input)
			if got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeMalformedFallsBackToRaw(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty line", ""},
		{"single token", ":tmi.twitch.tv"},
		{"JOIN without channel", ":ronni!ronni@ronni.tmi.twitch.tv JOIN"},
		{"MODE without target", ":jtv MODE #dallas +o"},
		{"names without names", ":nick.tmi.twitch.tv 353 nick = #dallas"},
		{"end of names truncated", ":nick.tmi.twitch.tv 366 nick #dallas"},
		{"421 truncated", ":tmi.twitch.tv 421 nick WHO"},
		{"CAP truncated", ":tmi.twitch.tv CAP * ACK"},
		{"PRIVMSG without channel", ":ronni!ronni@ronni.tmi.twitch.tv PRIVMSG"},
		{"PRIVMSG without text", ":ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas"},
		{"tag block only", "@color=#FFFFFF;turbo=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.input)
			want := Message{Command: CommandRaw, Text: tt.input}
			if got != want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.input, got, want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"PRIVMSG", Message{Command: CommandPrivmsg, Channel: "#dallas", Text: "hello there"}, "PRIVMSG #dallas :hello there"},
		{"JOIN", Message{Command: CommandJoin, Channel: "#dallas"}, "JOIN #dallas"},
		{"PART", Message{Command: CommandPart, Channel: "#dallas"}, "PART #dallas"},
		{"raw", Raw("PASS oauth:abc"), "PASS oauth:abc"},
		{"raw lowercase command", Message{Command: "raw", Text: "PING"}, "PING"},
		{"raw empty", Raw(""), ""},
		{"command only", Message{Command: CommandQuit}, "QUIT"},
		{"CAP request", Message{Command: "CAP REQ", Text: "twitch.tv/tags"}, "CAP REQ :twitch.tv/tags"},
		{"line breaks in text", Message{Command: CommandPrivmsg, Channel: "#dallas", Text: "hi\r\nPART #dallas"}, "PRIVMSG #dallas :hiPART #dallas"},
		{"line breaks in raw", Raw("PING\r\nQUIT"), "PINGQUIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Encode(tt.msg); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeEncodePreservesCommandAndChannel(t *testing.T) {
	lines := []string{
		":ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :Kappa Keepo Kappa",
		":ronni!ronni@ronni.tmi.twitch.tv JOIN #dallas",
		":ronni!ronni@ronni.tmi.twitch.tv PART #dallas",
		"@badges=;color= :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :tagged",
		"PING :tmi.twitch.tv",
		"PONG :tmi.twitch.tv",
	}

	for _, line := range lines {
		first := Decode(line)
		second := Decode(":" + first.Source + " " + Encode(first))
		if first.Command == CommandPing || first.Command == CommandPong {
			second = Decode(Encode(first))
		}
		if second.Command != first.Command {
			t.Errorf("%q: command %q became %q", line, first.Command, second.Command)
		}
		if second.Channel != first.Channel {
			t.Errorf("%q: channel %q became %q", line, first.Channel, second.Channel)
		}
	}
}

func TestParseTags(t *testing.T) {
	tags := ParseTags("broadcaster-lang=;r9k=0;slow=120;emote-only;=x")
	want := map[string]string{
		"broadcaster-lang": "",
		"r9k":              "0",
		"slow":             "120",
		"emote-only":       "",
		"":                 "x",
	}
	if len(tags) != len(want) {
		t.Fatalf("ParseTags() returned %d tags, want %d: %v", len(tags), len(want), tags)
	}
	for k, v := range want {
		if tags[k] != v {
			t.Errorf("tag %q = %q, want %q", k, tags[k], v)
		}
	}

	if got := ParseTags(""); len(got) != 0 {
		t.Errorf("ParseTags(\"\") = %v, want empty", got)
	}
}

func TestMessageTag(t *testing.T) {
	msg := Decode("@ban-duration=600;ban-reason= :tmi.twitch.tv CLEARCHAT #dallas :ronni")

	if v, ok := msg.Tag("ban-duration"); !ok || v != "600" {
		t.Errorf("Tag(ban-duration) = %q, %v", v, ok)
	}
	if v, ok := msg.Tag("ban-reason"); !ok || v != "" {
		t.Errorf("Tag(ban-reason) = %q, %v", v, ok)
	}
	if _, ok := msg.Tag("missing"); ok {
		t.Errorf("Tag(missing) reported present")
	}
	if msg.Text != "ronni" {
		t.Errorf("Text = %q, want ronni", msg.Text)
	}
}

func TestParseTagsUnescapesValues(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`ban-reason=Spamming\slinks`, "Spamming links"},
		{`ban-reason=a\:b`, "a;b"},
		{`ban-reason=back\\slash`, `back\slash`},
		{`ban-reason=two\r\nlines`, "two\r\nlines"},
		{`ban-reason=\x`, "x"},
		{`ban-reason=dangling\`, "dangling"},
	}

	for _, tt := range tests {
		if got := ParseTags(tt.raw)["ban-reason"]; got != tt.want {
			t.Errorf("ParseTags(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"plain PRIVMSG", Message{Command: CommandPrivmsg, Channel: "#dallas", Text: "hi"}, false},
		{"CRLF in text", Message{Command: CommandPrivmsg, Channel: "#dallas", Text: "hi\r\nPART #dallas"}, true},
		{"LF in channel", Message{Command: CommandJoin, Channel: "#evil\nQUIT"}, true},
		{"CR in raw", Raw("PING\rQUIT"), true},
		{"NUL in text", Message{Command: CommandPrivmsg, Channel: "#dallas", Text: "a\x00b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr && err != ErrLineBreak {
				t.Fatalf("Validate() = %v, want ErrLineBreak", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}
