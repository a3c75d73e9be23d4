package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/streamchat/internal/app"
	"github.com/vovakirdan/streamchat/internal/auth"
	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/log"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		envFile    string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "streamchat",
		Short:         "Headless Twitch chat daemon with a status API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}

			bootLogger := log.New("info", "console")
			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				bootLogger.Error().Err(err).Str("path", path).Msg("failed to load config")
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel, cfg.LogFormat)
			if err := cfg.Validate(); err != nil {
				logger.Error().Err(err).Str("path", path).Msg("invalid config")
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to build app")
				return err
			}

			logger.Info().Str("config", path).Str("status_addr", cfg.StatusAddr).Msg("starting streamchat")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("streamchat exited with error")
				return err
			}
			logger.Info().Msg("streamchat stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&overrides.Nickname, "nickname", "", "login name")
	flags.StringVar(&overrides.Host, "host", "", "chat server host")
	flags.IntVar(&overrides.Port, "port", 0, "chat server port")
	flags.StringVar(&overrides.Transport, "transport", "", "tcp, tls or websocket")
	flags.StringSliceVar(&overrides.Channels, "channel", nil, "channel to join (repeatable)")
	flags.DurationVar(&overrides.SendInterval, "send-interval", 0, "minimum gap between queued sends")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "trace, debug, info, warn or error")
	flags.StringVar(&overrides.LogFormat, "log-format", "", "console or json")
	flags.StringVar(&overrides.StatusAddr, "status-addr", "", "status API listen address")

	cmd.AddCommand(newVersionCommand(), newTokenCommand())

	return cmd
}

var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// newTokenCommand signs a bearer token for the status API with the configured
// api_secret.
func newTokenCommand() *cobra.Command {
	var (
		configPath string
		envFile    string
		subject    string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for join, part, say and /ws",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, _, err := config.Load(nil, configPath)
			if err != nil {
				return err
			}

			token, err := auth.GenerateToken(auth.NewJWTConfig(cfg.APISecret, ttl), subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&subject, "subject", "operator", "token subject")
	flags.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
