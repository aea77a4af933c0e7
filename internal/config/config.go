package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the process configuration. Defaults are provided via struct tags.
type Config struct {
	// ChatmiEndpoint is the webhook URL. ENV: CHATMI_ENDPOINT
	ChatmiEndpoint string `env:"CHATMI_ENDPOINT,default=https://admin.chatme.ai/connector/webim/webim_message/a7e28b914256ab13395ec974e7bb9548/bot_api_webhook"`
	// ChatmiTimeout bounds each webhook call; zero disables it. ENV: CHATMI_TIMEOUT
	ChatmiTimeout time.Duration `env:"CHATMI_TIMEOUT,default=0s"`

	// ListenAddr like ":8080". ENV: LISTEN_ADDR
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	// MessagePath is where the JSON-RPC endpoint is mounted. ENV: MESSAGE_PATH
	MessagePath string `env:"MESSAGE_PATH,default=/api/message"`
	// SSEPath is where the event-stream endpoint is mounted. ENV: SSE_PATH
	SSEPath string `env:"SSE_PATH,default=/api/sse"`

	// SSEKeepAliveInterval is the ping period. ENV: SSE_KEEPALIVE_INTERVAL
	SSEKeepAliveInterval time.Duration `env:"SSE_KEEPALIVE_INTERVAL,default=15s"`
	// SSEMaxDuration caps the lifetime of a stream. It exists to stay under
	// the host platform's execution limit. ENV: SSE_MAX_DURATION
	SSEMaxDuration time.Duration `env:"SSE_MAX_DURATION,default=50s"`

	// ShutdownTimeout bounds graceful shutdown. ENV: SHUTDOWN_TIMEOUT
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=60s"`

	// LogLevel is one of debug, info, warn, error. ENV: LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL,default=info"`
	// LogFormat is json or text. ENV: LOG_FORMAT
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// FromEnv decodes Config from the environment and validates it.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.ChatmiEndpoint)
	if err != nil {
		return fmt.Errorf("CHATMI_ENDPOINT: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CHATMI_ENDPOINT must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}
	if c.ChatmiTimeout < 0 {
		return fmt.Errorf("CHATMI_TIMEOUT must not be negative, got %s", c.ChatmiTimeout)
	}
	if c.SSEKeepAliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be positive, got %s", c.SSEKeepAliveInterval)
	}
	if c.SSEMaxDuration <= 0 {
		return fmt.Errorf("SSE_MAX_DURATION must be positive, got %s", c.SSEMaxDuration)
	}
	if !strings.HasPrefix(c.MessagePath, "/") || !strings.HasPrefix(c.SSEPath, "/") {
		return fmt.Errorf("MESSAGE_PATH and SSE_PATH must start with '/'")
	}
	if c.MessagePath == c.SSEPath {
		return fmt.Errorf("MESSAGE_PATH and SSE_PATH must differ")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
