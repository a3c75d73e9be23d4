package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/vovakirdan/streamchat/internal/irc"
)

func mustChannel(t *testing.T, tr *Tracker, name string) *Channel {
	t.Helper()
	ch, ok := tr.Channel(name)
	if !ok {
		t.Fatalf("channel %s not tracked", name)
	}
	return ch
}

func mustUser(t *testing.T, tr *Tracker, channel, name string) UserInfo {
	t.Helper()
	u, ok := tr.User(channel, name)
	if !ok {
		t.Fatalf("user %s not in %s", name, channel)
	}
	return u
}

func TestNormalizeChannel(t *testing.T) {
	tests := map[string]string{
		"dallas":       "#dallas",
		"#Dallas":      "#dallas",
		"  #dallas ":   "#dallas",
		"":             "",
		"#":            "",
		"evil\r\nQUIT": "",
		"#dal las":     "",
		"#a,#b":        "",
		"#tab\there":   "",
	}
	for in, want := range tests {
		if got := NormalizeChannel(in); got != want {
			t.Errorf("NormalizeChannel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoomStateFromTags(t *testing.T) {
	tr := NewTracker()
	msg := irc.Decode("@broadcaster-lang=;r9k=0;slow=120;subs-only=0 :tmi.twitch.tv ROOMSTATE #dallas")
	tr.Apply(msg)

	info := mustChannel(t, tr, "#dallas").Info()
	if info.Language != "English" {
		t.Errorf("language = %q, want English", info.Language)
	}
	if info.R9K || info.SubscribersOnly || info.EmoteOnly {
		t.Errorf("unexpected toggles: %+v", info)
	}
	if info.SlowModeInterval != 120 || !info.SlowModeEnabled {
		t.Errorf("slow mode = %d/%v, want 120/true", info.SlowModeInterval, info.SlowModeEnabled)
	}

	tr.Apply(irc.Decode("@broadcaster-lang=de;r9k=1;slow=0;emote-only=1;subs-only=x;bogus=1 :tmi.twitch.tv ROOMSTATE #dallas"))
	info = mustChannel(t, tr, "#dallas").Info()
	if info.Language != "de" || !info.R9K || !info.EmoteOnly {
		t.Errorf("unexpected room state: %+v", info)
	}
	if info.SubscribersOnly {
		t.Errorf("unparsable subs-only changed state")
	}
	if info.SlowModeEnabled || info.SlowModeInterval != 0 {
		t.Errorf("slow mode still enabled: %+v", info)
	}
}

func TestSlowModeEnabledFollowsInterval(t *testing.T) {
	tr := NewTracker()
	for _, slow := range []string{"0", "1", "30", "-5", "nope", "0"} {
		tr.Apply(irc.Decode("@slow=" + slow + " :tmi.twitch.tv ROOMSTATE #dallas"))
		ch := mustChannel(t, tr, "#dallas")
		info := ch.Info()
		if info.SlowModeEnabled != (info.SlowModeInterval > 0) || ch.SlowModeEnabled() != info.SlowModeEnabled {
			t.Fatalf("slow=%s: enabled=%v interval=%d", slow, info.SlowModeEnabled, info.SlowModeInterval)
		}
	}
}

func TestNamesListAddsUsers(t *testing.T) {
	tr := NewTracker()
	tr.Add("#dallas")
	tr.Apply(irc.Decode(":nick.tmi.twitch.tv 353 nick = #dallas :alice bob carol"))
	tr.Apply(irc.Decode(":nick.tmi.twitch.tv 366 nick #dallas :End of /NAMES list"))

	users := mustChannel(t, tr, "#dallas").Users()
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3: %+v", len(users), users)
	}
	for i, name := range []string{"alice", "bob", "carol"} {
		u := users[i]
		if u.Name != name {
			t.Fatalf("user %d = %q, want %q", i, u.Name, name)
		}
		if u.Moderator || u.ChannelOwner || u.Staff || u.Admin || u.GlobalModerator {
			t.Fatalf("user %s is privileged: %+v", name, u)
		}
		if u.Color != DefaultColor || u.EmoteSets != DefaultEmoteSets {
			t.Fatalf("user %s defaults: %+v", name, u)
		}
	}
}

func TestBroadcasterIsOwnerAndModerator(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode(":dallas!dallas@dallas.tmi.twitch.tv JOIN #dallas"))

	u := mustUser(t, tr, "#dallas", "Dallas")
	if !u.ChannelOwner || !u.Moderator {
		t.Fatalf("broadcaster = %+v, want owner and moderator", u)
	}
}

func TestEmptyUserTypeClearsRoles(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode("@user-type=mod :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :a"))
	tr.Apply(irc.Decode("@user-type=staff :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :b"))

	u := mustUser(t, tr, "#dallas", "ronni")
	if !u.Moderator || !u.Staff {
		t.Fatalf("before clearing: %+v", u)
	}

	tr.Apply(irc.Decode("@user-type= :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :c"))
	u = mustUser(t, tr, "#dallas", "ronni")
	if u.Moderator || u.Staff || u.GlobalModerator || u.Admin {
		t.Fatalf("after clearing: %+v", u)
	}
}

func TestEmptyUserTypeKeepsOwnerModerator(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode("@user-type=staff :dallas!dallas@dallas.tmi.twitch.tv PRIVMSG #dallas :a"))
	tr.Apply(irc.Decode("@user-type= :dallas!dallas@dallas.tmi.twitch.tv PRIVMSG #dallas :b"))

	u := mustUser(t, tr, "#dallas", "dallas")
	if !u.ChannelOwner || !u.Moderator {
		t.Fatalf("owner lost moderator: %+v", u)
	}
	if u.Staff {
		t.Fatalf("owner kept staff: %+v", u)
	}
}

func TestUserTypeRoles(t *testing.T) {
	tests := []struct {
		userType string
		check    func(UserInfo) bool
	}{
		{"mod", func(u UserInfo) bool { return u.Moderator && !u.GlobalModerator }},
		{"global_mod", func(u UserInfo) bool { return u.Moderator && u.GlobalModerator }},
		{"admin", func(u UserInfo) bool { return u.Moderator && u.Admin }},
		{"staff", func(u UserInfo) bool { return u.Staff && !u.Moderator }},
	}
	for _, tt := range tests {
		t.Run(tt.userType, func(t *testing.T) {
			tr := NewTracker()
			tr.Apply(irc.Decode("@user-type=" + tt.userType + " :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :hi"))
			if u := mustUser(t, tr, "#dallas", "ronni"); !tt.check(u) {
				t.Fatalf("unexpected roles: %+v", u)
			}
		})
	}
}

func TestTagsUpdateUser(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode("@color=#0d4200;display-name=Ronni;emote-sets=0,33,50;subscriber=1;turbo=1 :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :hi"))

	u := mustUser(t, tr, "#dallas", "ronni")
	if u.Color != "#0D4200" || u.DisplayName != "Ronni" || u.EmoteSets != "0,33,50" || !u.Subscriber || !u.Turbo {
		t.Fatalf("unexpected user: %+v", u)
	}

	tr.Apply(irc.Decode("@color=;subscriber=0;turbo=zzz :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :hi"))
	u = mustUser(t, tr, "#dallas", "ronni")
	if u.Color != DefaultColor || u.Subscriber || !u.Turbo {
		t.Fatalf("unexpected user after update: %+v", u)
	}

	tr.Apply(irc.Decode("@color=red :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #dallas :hi"))
	if u := mustUser(t, tr, "#dallas", "ronni"); u.Color != DefaultColor {
		t.Fatalf("invalid color kept: %q", u.Color)
	}
}

func TestModeChanges(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode(":jtv MODE #dallas +o ronni"))
	if u := mustUser(t, tr, "#dallas", "ronni"); !u.Moderator {
		t.Fatalf("+o did not promote: %+v", u)
	}

	tr.Apply(irc.Decode(":jtv MODE #dallas -o ronni"))
	if u := mustUser(t, tr, "#dallas", "ronni"); u.Moderator {
		t.Fatalf("-o did not demote: %+v", u)
	}

	tr.Apply(irc.Decode(":jtv MODE #dallas -o ghost"))
	if _, ok := tr.User("#dallas", "ghost"); ok {
		t.Fatal("-o created an unknown user")
	}

	tr.Apply(irc.Decode(":jtv MODE #dallas -o dallas"))
	tr.Apply(irc.Decode(":jtv MODE #dallas +o dallas"))
	tr.Apply(irc.Decode(":jtv MODE #dallas -o dallas"))
	if u := mustUser(t, tr, "#dallas", "dallas"); !u.Moderator || !u.ChannelOwner {
		t.Fatalf("owner demoted: %+v", u)
	}
}

func TestPartRemovesUserAndOwnChannel(t *testing.T) {
	tr := NewTracker()
	tr.SetNickname("bot")
	tr.Add("#dallas")
	tr.Apply(irc.Decode(":nick.tmi.twitch.tv 353 bot = #dallas :alice bob bot"))

	tr.Apply(irc.Decode(":alice!alice@alice.tmi.twitch.tv PART #dallas"))
	if _, ok := tr.User("#dallas", "alice"); ok {
		t.Fatal("alice still present after PART")
	}
	if _, ok := tr.User("#dallas", "bob"); !ok {
		t.Fatal("bob removed by alice's PART")
	}

	tr.Apply(irc.Decode(":ghost!ghost@ghost.tmi.twitch.tv PART #nowhere"))
	if tr.Has("#nowhere") {
		t.Fatal("PART created a channel")
	}

	tr.Apply(irc.Decode(":Bot!bot@bot.tmi.twitch.tv PART #dallas"))
	if tr.Has("#dallas") {
		t.Fatal("own PART did not remove the channel")
	}
}

func TestClearChatBansKnownUser(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode(":ronni!ronni@ronni.tmi.twitch.tv JOIN #dallas"))
	tr.Apply(irc.Decode(":bob!bob@bob.tmi.twitch.tv JOIN #dallas"))

	tr.Apply(irc.Decode("@ban-duration=600;ban-reason=Spamming\\slinks :tmi.twitch.tv CLEARCHAT #dallas :ronni"))
	u := mustUser(t, tr, "#dallas", "ronni")
	if !u.Banned || u.BanDuration != 600 || u.BanReason != "Spamming links" {
		t.Fatalf("timeout not applied: %+v", u)
	}

	tr.Apply(irc.Decode(":tmi.twitch.tv CLEARCHAT #dallas :bob"))
	u = mustUser(t, tr, "#dallas", "bob")
	if !u.Banned || u.BanDuration != PermanentBan || u.BanReason != "" {
		t.Fatalf("ban not applied: %+v", u)
	}

	tr.Apply(irc.Decode(":tmi.twitch.tv CLEARCHAT #dallas :ghost"))
	if _, ok := tr.User("#dallas", "ghost"); ok {
		t.Fatal("CLEARCHAT created an unknown user")
	}
}

func TestUserStateDescribesSelf(t *testing.T) {
	tr := NewTracker()
	tr.SetNickname("bot")
	tr.Apply(irc.Decode("@color=#FF0000;display-name=Bot;user-type=mod :tmi.twitch.tv USERSTATE #dallas"))

	u := mustUser(t, tr, "#dallas", "bot")
	if !u.Moderator || u.Color != "#FF0000" || u.DisplayName != "Bot" {
		t.Fatalf("unexpected self: %+v", u)
	}
}

func TestIgnoresNonChannelMessages(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode(":tmi.twitch.tv 001 bot :Welcome, GLHF!"))
	tr.Apply(irc.Decode("PING :tmi.twitch.tv"))
	tr.Apply(irc.Decode(":tmi.twitch.tv NOTICE * :Login authentication failed"))
	tr.Apply(irc.Decode("garbage"))

	if tr.Len() != 0 {
		t.Fatalf("tracked %v", tr.Names())
	}
}

func TestResetUsersAndClear(t *testing.T) {
	tr := NewTracker()
	tr.Apply(irc.Decode(":nick.tmi.twitch.tv 353 nick = #dallas :alice bob"))
	tr.Apply(irc.Decode(":nick.tmi.twitch.tv 353 nick = #austin :carol"))

	tr.ResetUsers()
	if got := tr.Names(); len(got) != 2 || got[0] != "#austin" || got[1] != "#dallas" {
		t.Fatalf("Names() = %v", got)
	}
	for _, info := range tr.Channels() {
		if info.Users != 0 {
			t.Fatalf("%s kept %d users", info.Name, info.Users)
		}
	}

	tr.Clear()
	if tr.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", tr.Len())
	}
}

func TestConcurrentApplyAndRead(t *testing.T) {
	tr := NewTracker()
	tr.Add("#dallas")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			name := fmt.Sprintf("user%d", i%20)
			tr.Apply(irc.Decode("@subscriber=1 :" + name + "!" + name + "@" + name + ".tmi.twitch.tv PRIVMSG #dallas :hi"))
			if i%7 == 0 {
				tr.Apply(irc.Decode(":" + name + "!" + name + "@" + name + ".tmi.twitch.tv PART #dallas"))
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = tr.Channels()
			if ch, ok := tr.Channel("#dallas"); ok {
				_ = ch.Users()
			}
			_, _ = tr.User("#dallas", "user3")
		}
	}()
	wg.Wait()
}

func BenchmarkApplyPrivmsg(b *testing.B) {
	tr := NewTracker()
	tr.Add("#bench")
	msg := irc.Decode("@color=#0D4200;display-name=Ronni;subscriber=1;turbo=0;user-type= :ronni!ronni@ronni.tmi.twitch.tv PRIVMSG #bench :payload")

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		tr.Apply(msg)
	}
}
