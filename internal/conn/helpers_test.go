package conn

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

// fakeServer is the far end of a net.Pipe handed out by pipeDialer.
type fakeServer struct {
	t     *testing.T
	conn  net.Conn
	lines chan string
}

func newFakeServer(t *testing.T, c net.Conn) *fakeServer {
	s := &fakeServer{t: t, conn: c, lines: make(chan string, 64)}
	go func() {
		reader := bufio.NewReader(c)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(s.lines)
				return
			}
			s.lines <- strings.TrimRight(line, "\r\n")
		}
	}()
	return s
}

func (s *fakeServer) send(line string) {
	s.t.Helper()
	_ = s.conn.SetWriteDeadline(time.Now().Add(waitTimeout))
	if _, err := s.conn.Write([]byte(line + "\r\n")); err != nil {
		s.t.Fatalf("server write %q: %v", line, err)
	}
}

func (s *fakeServer) expect(want string) {
	s.t.Helper()
	select {
	case got, ok := <-s.lines:
		if !ok {
			s.t.Fatalf("connection closed while waiting for %q", want)
		}
		if got != want {
			s.t.Fatalf("server got %q, want %q", got, want)
		}
	case <-time.After(waitTimeout):
		s.t.Fatalf("timed out waiting for %q", want)
	}
}

func (s *fakeServer) expectHandshake(password, nick string) {
	s.t.Helper()
	s.expect("PASS " + password)
	s.expect("NICK " + nick)
}

// pipeDialer hands out one fakeServer per Dial.
type pipeDialer struct {
	t       *testing.T
	mu      sync.Mutex
	addrs   []string
	servers chan *fakeServer
}

func newPipeDialer(t *testing.T) *pipeDialer {
	return &pipeDialer{t: t, servers: make(chan *fakeServer, 8)}
}

func (d *pipeDialer) Dial(_ context.Context, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	d.mu.Lock()
	d.addrs = append(d.addrs, addr)
	d.mu.Unlock()

	fs := newFakeServer(d.t, server)
	d.t.Cleanup(func() { _ = server.Close() })
	d.servers <- fs
	return client, nil
}

func (d *pipeDialer) next() *fakeServer {
	d.t.Helper()
	select {
	case s := <-d.servers:
		return s
	case <-time.After(waitTimeout):
		d.t.Fatal("timed out waiting for a dial")
		return nil
	}
}

func mustReceive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func expectNothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

var testData = Data{
	Nickname: "bot",
	Password: "oauth:secret",
	Host:     "irc.example.test",
	Port:     6667,
}
