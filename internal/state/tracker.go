// Package state tracks joined channels and the users in them, driven by the
// decoded inbound message stream.
package state

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vovakirdan/streamchat/internal/irc"
)

// NormalizeChannel lowercases name and makes sure it starts with '#'. Names
// holding whitespace, commas or control characters come back empty.
func NormalizeChannel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "#" {
		return ""
	}
	if strings.IndexFunc(name, invalidChannelRune) >= 0 {
		return ""
	}
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}
	return name
}

func invalidChannelRune(r rune) bool {
	return r == ',' || unicode.IsSpace(r) || unicode.IsControl(r)
}

// Tracker owns the channel map. Apply runs on the read loop while queries may
// come from any goroutine.
type Tracker struct {
	channels *xsync.MapOf[string, *Channel]

	mu       sync.RWMutex
	nickname string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		channels: xsync.NewMapOf[string, *Channel](),
	}
}

// SetNickname records the client's own login. It decides which PART removes
// a whole channel and whom USERSTATE describes.
func (t *Tracker) SetNickname(nick string) {
	t.mu.Lock()
	t.nickname = nick
	t.mu.Unlock()
}

func (t *Tracker) Nickname() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nickname
}

// Add starts tracking a channel. It reports whether the channel is new.
func (t *Tracker) Add(name string) bool {
	name = NormalizeChannel(name)
	if name == "" {
		return false
	}
	_, loaded := t.channels.LoadOrCompute(name, func() *Channel { return newChannel(name) })
	return !loaded
}

// Remove stops tracking a channel. It reports whether it was tracked.
func (t *Tracker) Remove(name string) bool {
	_, ok := t.channels.LoadAndDelete(NormalizeChannel(name))
	return ok
}

// Has reports whether name is tracked.
func (t *Tracker) Has(name string) bool {
	_, ok := t.channels.Load(NormalizeChannel(name))
	return ok
}

// Len returns the number of tracked channels.
func (t *Tracker) Len() int {
	return t.channels.Size()
}

// Names returns the tracked channel names, sorted.
func (t *Tracker) Names() []string {
	names := make([]string, 0, t.channels.Size())
	t.channels.Range(func(name string, _ *Channel) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Channels returns a snapshot of every tracked channel, sorted by name.
func (t *Tracker) Channels() []ChannelInfo {
	out := make([]ChannelInfo, 0, t.channels.Size())
	t.channels.Range(func(_ string, ch *Channel) bool {
		out = append(out, ch.Info())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Channel returns the live channel for name.
func (t *Tracker) Channel(name string) (*Channel, bool) {
	return t.channels.Load(NormalizeChannel(name))
}

// User returns a snapshot of one user in one channel.
func (t *Tracker) User(channel, name string) (UserInfo, bool) {
	ch, ok := t.Channel(channel)
	if !ok {
		return UserInfo{}, false
	}
	u, ok := ch.User(name)
	if !ok {
		return UserInfo{}, false
	}
	return u.Info(), true
}

// ResetUsers forgets every user but keeps the channels, so they can be joined
// again after a reconnect.
func (t *Tracker) ResetUsers() {
	t.channels.Range(func(_ string, ch *Channel) bool {
		ch.resetUsers()
		return true
	})
}

// Clear forgets everything.
func (t *Tracker) Clear() {
	t.channels.Range(func(name string, _ *Channel) bool {
		t.channels.Delete(name)
		return true
	})
}

func (t *Tracker) channel(name string) *Channel {
	ch, _ := t.channels.LoadOrCompute(name, func() *Channel { return newChannel(name) })
	return ch
}

// Apply updates channel and user state from one inbound message. Messages
// that do not address a '#' channel are ignored.
func (t *Tracker) Apply(msg irc.Message) {
	if !strings.HasPrefix(msg.Channel, "#") {
		return
	}
	name := NormalizeChannel(msg.Channel)

	switch msg.Source {
	case irc.SourceServer:
		t.applyServer(name, msg)
		return
	case irc.SourceJTV:
		t.applyMode(name, msg)
		return
	case "":
		return
	}

	switch msg.Command {
	case irc.ReplyNames:
		ch := t.channel(name)
		for _, user := range strings.Fields(msg.Text) {
			ch.addUser(user)
		}
	case irc.ReplyEndOfNames:
	case irc.CommandPart:
		if ch, ok := t.channels.Load(name); ok {
			ch.removeUser(msg.Source)
		}
		if strings.EqualFold(msg.Source, t.Nickname()) {
			t.channels.Delete(name)
		}
	default:
		u := t.channel(name).addUser(msg.Source)
		if msg.Tags != "" {
			u.applyTags(irc.ParseTags(msg.Tags))
		}
	}
}

func (t *Tracker) applyServer(name string, msg irc.Message) {
	switch msg.Command {
	case irc.CommandRoomState:
		t.channel(name).applyRoomState(irc.ParseTags(msg.Tags))
	case irc.CommandClearChat:
		ch := t.channel(name)
		if msg.Text == "" {
			return
		}
		u, ok := ch.User(msg.Text)
		if !ok {
			return
		}
		tags := irc.ParseTags(msg.Tags)
		duration := PermanentBan
		if v, err := strconv.Atoi(tags["ban-duration"]); err == nil {
			duration = v
		}
		u.ban(duration, tags["ban-reason"])
	case irc.CommandUserState:
		nick := t.Nickname()
		if nick == "" {
			return
		}
		t.channel(name).addUser(nick).applyTags(irc.ParseTags(msg.Tags))
	}
}

func (t *Tracker) applyMode(name string, msg irc.Message) {
	if msg.Command != irc.CommandMode || msg.Target == "" {
		return
	}
	ch := t.channel(name)
	switch msg.Text {
	case "+o":
		ch.addUser(msg.Target).setModerator(true)
	case "-o":
		// MODE can arrive after the user already left.
		if u, ok := ch.User(msg.Target); ok {
			u.setModerator(false)
		}
	}
}
