package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/vovakirdan/streamchat/internal/chat"
	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/conn"
	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/telemetry"
	transporthttp "github.com/vovakirdan/streamchat/internal/transport/http"
)

// App wires the chat client and the status server together.
type App struct {
	client          *chat.Client
	server          *stdhttp.Server
	data            conn.Data
	channels        []string
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. opts are
// applied after the ones derived from cfg.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...conn.Option) (*App, error) {
	dialer, err := conn.DialerFor(cfg.Transport, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("init dialer: %w", err)
	}

	metrics := telemetry.New()

	connOpts := append([]conn.Option{
		conn.WithDialer(dialer),
		conn.WithSendInterval(cfg.SendInterval),
	}, opts...)

	client := chat.New(chat.Config{
		Capabilities: chat.Capabilities(cfg.Capabilities),
		Metrics:      metrics,
	}, *logger, connOpts...)

	a := &App{
		client: client,
		server: transporthttp.NewServer(client, metrics.Handler(), *cfg, logger),
		data: conn.Data{
			Nickname: cfg.Nickname,
			Password: cfg.Token,
			Host:     cfg.Host,
			Port:     cfg.Port,
		},
		channels:        cfg.Channels,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	client.OnRegistered(a.logRegistered)
	client.OnMessage(a.logMessage)

	return a, nil
}

// Client exposes the chat client.
func (a *App) Client() *chat.Client {
	return a.client
}

// Run connects, starts the HTTP server and blocks until context cancellation
// or fatal error.
func (a *App) Run(ctx context.Context) error {
	if err := a.client.Join(a.channels...); err != nil {
		a.log.Warn().Err(err).Msg("some configured channels were skipped")
	}

	a.log.Info().Str("addr", a.data.Addr()).Str("nickname", a.data.Nickname).Msg("connecting")
	if err := a.client.Connect(ctx, a.data); err != nil {
		return multierr.Append(fmt.Errorf("connect: %w", err), a.client.Close())
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("status server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return multierr.Append(err, a.cleanup())
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		err = multierr.Append(err, a.cleanup())
		return multierr.Append(err, <-serverErr)
	}
}

// cleanup quits the chat session.
func (a *App) cleanup() error {
	if err := a.client.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close chat connection")
		return err
	}
	a.log.Info().Msg("chat connection closed")
	return nil
}

func (a *App) logRegistered() {
	a.log.Info().Strs("channels", a.client.Status().Channels).Msg("logged in")
}

func (a *App) logMessage(msg irc.Message) {
	switch msg.Command {
	case irc.CommandPrivmsg:
		a.log.Info().
			Str("channel", msg.Channel).
			Str("user", msg.Source).
			Str("text", msg.Text).
			Msg("chat")
	case irc.CommandNotice:
		a.log.Info().Str("channel", msg.Channel).Str("text", msg.Text).Msg("notice")
	default:
		a.log.Debug().Str("command", msg.Command).Str("channel", msg.Channel).Msg("message")
	}
}
