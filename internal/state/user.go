package state

import (
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultColor is used until a user picks a name color.
	DefaultColor = "#000000"
	// DefaultEmoteSets is the emote set every account has.
	DefaultEmoteSets = "0"
	// PermanentBan is the ban duration recorded when the server sends none.
	PermanentBan = -1
)

// User is one participant as seen from one channel.
type User struct {
	name string

	mu          sync.RWMutex
	displayName string
	moderator   bool
	subscriber  bool
	turbo       bool
	globalMod   bool
	staff       bool
	admin       bool
	owner       bool
	color       string
	emoteSets   string
	banned      bool
	banDuration int
	banReason   string
}

// UserInfo is a point-in-time copy of a User.
type UserInfo struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Moderator       bool   `json:"moderator"`
	Subscriber      bool   `json:"subscriber"`
	Turbo           bool   `json:"turbo"`
	GlobalModerator bool   `json:"global_moderator"`
	Staff           bool   `json:"staff"`
	Admin           bool   `json:"admin"`
	ChannelOwner    bool   `json:"channel_owner"`
	Color           string `json:"color"`
	EmoteSets       string `json:"emote_sets"`
	Banned          bool   `json:"banned"`
	BanDuration     int    `json:"ban_duration,omitempty"`
	BanReason       string `json:"ban_reason,omitempty"`
}

func newUser(name string, owner bool) *User {
	return &User{
		name:        name,
		displayName: name,
		owner:       owner,
		moderator:   owner,
		color:       DefaultColor,
		emoteSets:   DefaultEmoteSets,
	}
}

// Name returns the login the user was first seen with.
func (u *User) Name() string {
	return u.name
}

// Info returns a snapshot.
func (u *User) Info() UserInfo {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return UserInfo{
		Name:            u.name,
		DisplayName:     u.displayName,
		Moderator:       u.moderator,
		Subscriber:      u.subscriber,
		Turbo:           u.turbo,
		GlobalModerator: u.globalMod,
		Staff:           u.staff,
		Admin:           u.admin,
		ChannelOwner:    u.owner,
		Color:           u.color,
		EmoteSets:       u.emoteSets,
		Banned:          u.banned,
		BanDuration:     u.banDuration,
		BanReason:       u.banReason,
	}
}

// applyTags updates the user from a message's tag block, e.g.
// color=#FF0000;display-name=Ronni;emote-sets=0;subscriber=0;turbo=0;user-type=
func (u *User) applyTags(tags map[string]string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for key, value := range tags {
		switch key {
		case "color":
			u.color = parseColor(value)
		case "display-name":
			if value != "" {
				u.displayName = value
			}
		case "emote-sets":
			if value == "" {
				value = DefaultEmoteSets
			}
			u.emoteSets = value
		case "subscriber":
			if on, ok := parseFlag(value); ok {
				u.subscriber = on
			}
		case "turbo":
			if on, ok := parseFlag(value); ok {
				u.turbo = on
			}
		case "user-type":
			u.setUserTypeLocked(value)
		}
	}
}

func (u *User) setUserTypeLocked(userType string) {
	switch userType {
	case "":
		// The role was revoked. Owners stay moderators.
		u.globalMod = false
		u.admin = false
		u.staff = false
		u.moderator = u.owner
	case "mod":
		u.moderator = true
	case "global_mod":
		u.globalMod = true
		u.moderator = true
	case "admin":
		u.admin = true
		u.moderator = true
	case "staff":
		u.staff = true
	}
}

func (u *User) setModerator(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.moderator = on || u.owner
}

func (u *User) ban(duration int, reason string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.banned = true
	u.banDuration = duration
	u.banReason = reason
}

func parseFlag(value string) (bool, bool) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return false, false
	}
	return n != 0, true
}

// parseColor accepts "#RRGGBB" and falls back to DefaultColor.
func parseColor(value string) string {
	if len(value) != 7 || value[0] != '#' {
		return DefaultColor
	}
	if _, err := strconv.ParseUint(value[1:], 16, 32); err != nil {
		return DefaultColor
	}
	return strings.ToUpper(value)
}
