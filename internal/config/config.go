package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingNickname is returned by Validate when no login name is set.
	ErrMissingNickname = errors.New("nickname is required")
	// ErrMissingToken is returned by Validate when no oauth token is set.
	ErrMissingToken = errors.New("token is required")
)

// Capabilities toggles the twitch.tv/* extensions requested after login.
type Capabilities struct {
	Tags       bool `mapstructure:"tags" yaml:"tags"`
	Membership bool `mapstructure:"membership" yaml:"membership"`
	Commands   bool `mapstructure:"commands" yaml:"commands"`
}

// Config holds daemon configuration values.
type Config struct {
	Nickname     string        `mapstructure:"nickname" yaml:"nickname"`
	Token        string        `mapstructure:"token" yaml:"token"`
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Transport    string        `mapstructure:"transport" yaml:"transport"`
	Channels     []string      `mapstructure:"channels" yaml:"channels"`
	SendInterval time.Duration `mapstructure:"send_interval" yaml:"send_interval"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Capabilities Capabilities  `mapstructure:"capabilities" yaml:"capabilities"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	StatusAddr        string        `mapstructure:"status_addr" yaml:"status_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// APISecret signs the bearer tokens for join, part, say and /ws. Those
	// routes answer 403 while it is empty.
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	// AllowedOrigins are host patterns browsers may open /ws from, besides
	// the status server's own host.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Host:              "irc.chat.twitch.tv",
		Port:              6667,
		Transport:         "tcp",
		Channels:          []string{},
		SendInterval:      1600 * time.Millisecond,
		DialTimeout:       10 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		StatusAddr:        "127.0.0.1:8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		AllowedOrigins:    []string{},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Capability toggles can only be switched on this way.
func (c *Config) UpdateFrom(other Config) {
	if other.Nickname != "" {
		c.Nickname = other.Nickname
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.Host != "" {
		c.Host = other.Host
	}
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.Transport != "" {
		c.Transport = other.Transport
	}
	if len(other.Channels) > 0 {
		c.Channels = other.Channels
	}
	if other.SendInterval != 0 {
		c.SendInterval = other.SendInterval
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	c.Capabilities.Tags = c.Capabilities.Tags || other.Capabilities.Tags
	c.Capabilities.Membership = c.Capabilities.Membership || other.Capabilities.Membership
	c.Capabilities.Commands = c.Capabilities.Commands || other.Capabilities.Commands
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.StatusAddr != "" {
		c.StatusAddr = other.StatusAddr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.APISecret != "" {
		c.APISecret = other.APISecret
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Nickname == "" {
		return ErrMissingNickname
	}
	if c.Token == "" {
		return ErrMissingToken
	}
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Transport {
	case "tcp", "tls", "websocket", "ws", "wss":
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.SendInterval < 0 {
		return fmt.Errorf("send_interval must not be negative, got %s", c.SendInterval)
	}
	return nil
}
