package state

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultLanguage is reported when the room sends an empty broadcaster-lang.
const DefaultLanguage = "English"

// Channel is one joined room and the users seen in it.
type Channel struct {
	name  string
	users *xsync.MapOf[string, *User]

	mu        sync.RWMutex
	language  string
	r9k       bool
	subsOnly  bool
	emoteOnly bool
	slow      int
}

// ChannelInfo is a point-in-time copy of a Channel's room state.
type ChannelInfo struct {
	Name             string `json:"name"`
	Language         string `json:"language"`
	R9K              bool   `json:"r9k"`
	SubscribersOnly  bool   `json:"subscribers_only"`
	EmoteOnly        bool   `json:"emote_only"`
	SlowModeInterval int    `json:"slow_mode_interval"`
	SlowModeEnabled  bool   `json:"slow_mode_enabled"`
	Users            int    `json:"users"`
}

func newChannel(name string) *Channel {
	return &Channel{
		name:     name,
		users:    xsync.NewMapOf[string, *User](),
		language: DefaultLanguage,
	}
}

// Name returns the channel name including the leading '#'.
func (c *Channel) Name() string {
	return c.name
}

// SlowModeEnabled is true exactly when the slow mode interval is positive.
func (c *Channel) SlowModeEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slow > 0
}

// Info returns a snapshot of the room state.
func (c *Channel) Info() ChannelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ChannelInfo{
		Name:             c.name,
		Language:         c.language,
		R9K:              c.r9k,
		SubscribersOnly:  c.subsOnly,
		EmoteOnly:        c.emoteOnly,
		SlowModeInterval: c.slow,
		SlowModeEnabled:  c.slow > 0,
		Users:            c.users.Size(),
	}
}

// Users returns snapshots of every user, sorted by name.
func (c *Channel) Users() []UserInfo {
	out := make([]UserInfo, 0, c.users.Size())
	c.users.Range(func(_ string, u *User) bool {
		out = append(out, u.Info())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// User looks a user up by login, case-insensitively.
func (c *Channel) User(name string) (*User, bool) {
	return c.users.Load(strings.ToLower(name))
}

// addUser returns the user, creating it on first reference. The broadcaster
// is created as owner.
func (c *Channel) addUser(name string) *User {
	u, _ := c.users.LoadOrCompute(strings.ToLower(name), func() *User {
		return newUser(name, c.isOwner(name))
	})
	return u
}

func (c *Channel) removeUser(name string) bool {
	_, ok := c.users.LoadAndDelete(strings.ToLower(name))
	return ok
}

func (c *Channel) resetUsers() {
	c.users.Range(func(key string, _ *User) bool {
		c.users.Delete(key)
		return true
	})
}

func (c *Channel) isOwner(name string) bool {
	return strings.EqualFold(name, strings.TrimPrefix(c.name, "#"))
}

// applyRoomState updates the room from a ROOMSTATE tag block, e.g.
// broadcaster-lang=;r9k=0;slow=0;subs-only=0
func (c *Channel) applyRoomState(tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range tags {
		switch key {
		case "broadcaster-lang":
			if value == "" {
				value = DefaultLanguage
			}
			c.language = value
		case "r9k":
			if on, ok := parseFlag(value); ok {
				c.r9k = on
			}
		case "subs-only":
			if on, ok := parseFlag(value); ok {
				c.subsOnly = on
			}
		case "emote-only":
			if on, ok := parseFlag(value); ok {
				c.emoteOnly = on
			}
		case "slow":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				c.slow = n
			}
		}
	}
}
