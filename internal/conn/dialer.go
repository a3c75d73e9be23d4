package conn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/coder/websocket"
)

// Dialer opens the byte stream a Connection talks over.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string) (net.Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return f(ctx, addr)
}

// TCPDialer dials plain TCP, usually irc.chat.twitch.tv:6667.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, "tcp", addr)
}

// TLSDialer dials TCP wrapped in TLS, usually irc.chat.twitch.tv:6697.
type TLSDialer struct {
	Timeout time.Duration
	Config  *tls.Config
}

func (d TLSDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	cfg := d.Config
	if cfg == nil {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		cfg = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	td := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    cfg,
	}
	return td.DialContext(ctx, "tcp", addr)
}

// WebSocketDialer reaches the chat server over a websocket, usually
// wss://irc-ws.chat.twitch.tv:443. Each text frame carries one or more lines.
type WebSocketDialer struct {
	Timeout time.Duration
	// Scheme defaults to "wss".
	Scheme string
}

func (d WebSocketDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	scheme := d.Scheme
	if scheme == "" {
		scheme = "wss"
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s://%s", scheme, addr)
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	// NetConn ties the socket lifetime to this context, so it must outlive
	// the dial timeout.
	return websocket.NetConn(context.Background(), ws, websocket.MessageText), nil
}

// DialerFor maps a transport name from the configuration to a Dialer.
func DialerFor(transport string, timeout time.Duration) (Dialer, error) {
	switch transport {
	case "", "tcp":
		return TCPDialer{Timeout: timeout}, nil
	case "tls":
		return TLSDialer{Timeout: timeout}, nil
	case "websocket", "ws", "wss":
		scheme := "wss"
		if transport == "ws" {
			scheme = "ws"
		}
		return WebSocketDialer{Timeout: timeout, Scheme: scheme}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}
