package http

import (
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/auth"
	"github.com/vovakirdan/streamchat/internal/chat"
	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/conn"
	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/state"
	"github.com/vovakirdan/streamchat/internal/telemetry"
	"github.com/vovakirdan/streamchat/internal/utils"
)

type said struct {
	channel string
	text    string
	high    bool
}

// fakeChat is an in-memory ChatService.
type fakeChat struct {
	mu         sync.Mutex
	registered bool
	channels   map[string][]state.UserInfo
	said       []said
	listeners  utils.Listeners[irc.Message]
}

func newFakeChat() *fakeChat {
	return &fakeChat{registered: true, channels: map[string][]state.UserInfo{}}
}

func (f *fakeChat) Status() chat.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := chat.Status{State: "registered", Registered: f.registered, Nickname: "bot"}
	for name := range f.channels {
		st.Channels = append(st.Channels, name)
	}
	sort.Strings(st.Channels)
	return st
}

func (f *fakeChat) Channels() []state.ChannelInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []state.ChannelInfo
	for name, users := range f.channels {
		out = append(out, state.ChannelInfo{Name: name, Language: state.DefaultLanguage, Users: len(users)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *fakeChat) Channel(name string) (state.ChannelInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users, ok := f.channels[name]
	if !ok {
		return state.ChannelInfo{}, false
	}
	return state.ChannelInfo{Name: name, Language: state.DefaultLanguage, Users: len(users)}, true
}

func (f *fakeChat) Users(channel string) ([]state.UserInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users, ok := f.channels[channel]
	return users, ok
}

func (f *fakeChat) User(channel, name string) (state.UserInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.channels[channel] {
		if u.Name == name {
			return u, true
		}
	}
	return state.UserInfo{}, false
}

func (f *fakeChat) Join(channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		name := state.NormalizeChannel(ch)
		if name == "" {
			return chat.ErrInvalidChannel
		}
		if _, ok := f.channels[name]; !ok {
			f.channels[name] = nil
		}
	}
	return nil
}

func (f *fakeChat) Part(channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		delete(f.channels, state.NormalizeChannel(ch))
	}
	return nil
}

func (f *fakeChat) Say(channel, text string, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.registered {
		return conn.ErrNotConnected
	}
	f.said = append(f.said, said{channel: channel, text: text, high: high})
	return nil
}

func (f *fakeChat) OnMessage(fn func(msg irc.Message)) func() {
	return f.listeners.Add(fn)
}

func (f *fakeChat) saidLines() []said {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]said(nil), f.said...)
}

func (f *fakeChat) setUsers(channel string, users ...state.UserInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channel] = users
}

func (f *fakeChat) setRegistered(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = on
}

const testSecret = "test-secret"

// testToken signs a bearer token accepted by startTestServer.
func testToken(t *testing.T) string {
	t.Helper()
	return mustToken(t, testSecret)
}

func mustToken(t *testing.T, secret string) string {
	t.Helper()

	token, err := auth.GenerateToken(auth.NewJWTConfig(secret, time.Hour), "tester")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func startTestServer(t *testing.T, svc ChatService) *httptest.Server {
	t.Helper()
	return startTestServerWith(t, svc, testSecret)
}

func startTestServerWith(t *testing.T, svc ChatService, secret string, origins ...string) *httptest.Server {
	t.Helper()

	logger := zerolog.New(nil)
	server := NewServer(svc, telemetry.New().Handler(), config.Config{
		StatusAddr:        ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		APISecret:         secret,
		AllowedOrigins:    origins,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts
}
