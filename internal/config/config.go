// Package config loads turnbot settings from a config file, TURNBOT_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TURNBOT_WEBHOOK_SECRET.
const EnvPrefix = "TURNBOT"

// MaxPollTimeout keeps a getUpdates long poll inside the Bot API client's 35s
// HTTP timeout.
const MaxPollTimeout = 30 * time.Second

const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"
)

var ErrNoToken = errors.New("no bot token: set TURNBOT_TOKEN, the token key, or run `turnbot token set`")

// Config is the resolved configuration.
type Config struct {
	Token         string         `mapstructure:"token"`
	Mode          string         `mapstructure:"mode"`
	CommandPrefix string         `mapstructure:"command_prefix"`
	BotName       string         `mapstructure:"bot_name"`
	Poll          PollConfig     `mapstructure:"poll"`
	Webhook       WebhookConfig  `mapstructure:"webhook"`
	Sessions      SessionsConfig `mapstructure:"sessions"`
	Policy        PolicyConfig   `mapstructure:"policy"`
	Callbacks     CallbackConfig `mapstructure:"callbacks"`
	Replies       Replies        `mapstructure:"replies"`
	Log           LogConfig      `mapstructure:"log"`
	Metrics       MetricsConfig  `mapstructure:"metrics"`
}

type PollConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Backoff time.Duration `mapstructure:"backoff"`
}

type WebhookConfig struct {
	Listen string `mapstructure:"listen"`
	URL    string `mapstructure:"url"`
	Path   string `mapstructure:"path"`
	Secret string `mapstructure:"secret"`
}

type SessionsConfig struct {
	Max int `mapstructure:"max"`
}

type PolicyConfig struct {
	AllowedChats []int64         `mapstructure:"allowed_chats"`
	Freshness    time.Duration   `mapstructure:"freshness"`
	DedupSize    int             `mapstructure:"dedup_size"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits updates per chat. Max 0 disables it.
type RateLimitConfig struct {
	Max     int           `mapstructure:"max"`
	Window  time.Duration `mapstructure:"window"`
	Lockout time.Duration `mapstructure:"lockout"`
}

type CallbackConfig struct {
	AutoAnswer bool `mapstructure:"auto_answer"`
}

// Replies are the user-facing texts that can be changed without a restart.
type Replies struct {
	UnknownCommand string `mapstructure:"unknown_command"`
	WrongScope     string `mapstructure:"wrong_scope"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// SetDefaults registers every key with its default. Keys must be known to viper
// for environment variables to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("token", "")
	v.SetDefault("mode", ModePoll)
	v.SetDefault("command_prefix", "/")
	v.SetDefault("bot_name", "")
	v.SetDefault("poll.timeout", 30*time.Second)
	v.SetDefault("poll.backoff", 5*time.Second)
	v.SetDefault("webhook.listen", ":8443")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.path", "/telegram/webhook")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("sessions.max", 10000)
	v.SetDefault("policy.allowed_chats", []int64{})
	v.SetDefault("policy.freshness", time.Duration(0))
	v.SetDefault("policy.dedup_size", 10000)
	v.SetDefault("policy.rate_limit.max", 0)
	v.SetDefault("policy.rate_limit.window", time.Minute)
	v.SetDefault("policy.rate_limit.lockout", time.Duration(0))
	v.SetDefault("callbacks.auto_answer", true)
	v.SetDefault("replies.unknown_command", "Sorry, I don't know {command}. Try /help.")
	v.SetDefault("replies.wrong_scope", "{command} can only be used in {scope}.")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9090")
}

// New creates a viper instance bound to the environment and, when path is not
// empty, to the given config file.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.BotName = strings.TrimPrefix(strings.TrimSpace(cfg.BotName), "@")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile is New followed by Load.
func LoadFile(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Load(v)
}

// Validate checks values that cannot be represented by their types.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePoll, ModeWebhook:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModePoll, ModeWebhook, c.Mode)
	}
	if len(c.CommandPrefix) != 1 || unicode.IsSpace(rune(c.CommandPrefix[0])) {
		return fmt.Errorf("command_prefix must be a single non-space character, got %q", c.CommandPrefix)
	}
	if c.Mode == ModeWebhook && c.Webhook.Listen == "" {
		return errors.New("webhook.listen is required in webhook mode")
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with '/', got %q", c.Webhook.Path)
	}
	if c.Sessions.Max < 0 {
		return errors.New("sessions.max must not be negative")
	}
	if c.Policy.Freshness < 0 {
		return errors.New("policy.freshness must not be negative")
	}
	if c.Policy.DedupSize <= 0 {
		return errors.New("policy.dedup_size must be positive")
	}
	if rl := c.Policy.RateLimit; rl.Max < 0 || rl.Window < 0 || rl.Lockout < 0 {
		return errors.New("policy.rate_limit values must not be negative")
	}
	if c.Poll.Timeout < 0 || c.Poll.Backoff < 0 {
		return errors.New("poll durations must not be negative")
	}
	if c.Poll.Timeout > MaxPollTimeout {
		return fmt.Errorf("poll.timeout must be at most %s, got %s", MaxPollTimeout, c.Poll.Timeout)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Prefix returns the command prefix character.
func (c *Config) Prefix() byte { return c.CommandPrefix[0] }

// ResolveToken fills Token from the keychain when it is not configured.
func (c *Config) ResolveToken(lookup func() (string, error)) error {
	if c.Token != "" {
		return nil
	}
	if lookup != nil {
		if token, err := lookup(); err == nil && strings.TrimSpace(token) != "" {
			c.Token = strings.TrimSpace(token)
			return nil
		}
	}
	return ErrNoToken
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
