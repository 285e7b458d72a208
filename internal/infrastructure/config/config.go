package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sessions  SessionConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Secrets   SecretsConfig
	Rules     RulesConfig
	Notify    NotifyConfig
	Tracing   TracingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// CORSOrigins lists browser origins allowed to call the API; "*" allows any.
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// MessagesPerMinute limits messages sent by one owner.
	MessagesPerMinute int `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
}

// SessionConfig controls the Claude Code processes.
type SessionConfig struct {
	WorkspaceBase  string        `envconfig:"WORKSPACE_BASE" default:"/workspace"`
	MaxSessions    int           `envconfig:"MAX_SESSIONS" default:"10"`
	TimeoutHours   int           `envconfig:"SESSION_TIMEOUT_HOURS" default:"24"`
	Command        string        `envconfig:"CLAUDE_COMMAND" default:"claude"`
	Args           []string      `envconfig:"CLAUDE_ARGS" default:"--permission-mode,default"`
	SendTimeout    time.Duration `envconfig:"SEND_TIMEOUT" default:"60s"`
	TerminateGrace time.Duration `envconfig:"TERMINATE_GRACE" default:"10s"`
	ReapSchedule   string        `envconfig:"REAP_SCHEDULE" default:"@every 5m"`
}

// IdleTimeout is how long a session may stay inactive before it is reaped.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.TimeoutHours) * time.Hour
}

// AuthConfig restricts the API to a single owner when set.
type AuthConfig struct {
	AuthorizedUserID string `envconfig:"AUTHORIZED_USER_ID"`
}

// AuthorizedUser returns the configured owner. Unset or unparsable values
// leave the API open to every owner.
func (c AuthConfig) AuthorizedUser() (int64, bool) {
	s := strings.TrimSpace(c.AuthorizedUserID)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// StorageConfig holds the database location. Empty means in-memory.
type StorageConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// SecretsConfig holds values that may come from mounted secret files.
type SecretsConfig struct {
	Dir             string `envconfig:"SECRETS_DIR" default:"/run/secrets"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
}

// RulesConfig points at an optional heuristics override file.
type RulesConfig struct {
	File string `envconfig:"RULES_FILE"`
}

// NotifyConfig configures the outbound webhook.
type NotifyConfig struct {
	WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"NOTIFY_MAX_RETRIES" default:"3"`
	// Secret signs each payload with keyed BLAKE2b when set.
	Secret string `envconfig:"NOTIFY_SECRET"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled  bool   `envconfig:"TRACING_ENABLED" default:"false"`
	Exporter string `envconfig:"TRACING_EXPORTER" default:"log"`
}

// Load loads configuration from environment variables and secret files.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func (c *Config) resolveSecrets() {
	c.Secrets.AnthropicAPIKey = strings.TrimSpace(
		ResolveSecret(c.Secrets.Dir, "anthropic_api_key", c.Secrets.AnthropicAPIKey))
	c.Notify.WebhookURL = strings.TrimSpace(
		ResolveSecret(c.Secrets.Dir, "notify_webhook_url", c.Notify.WebhookURL))
	c.Notify.Secret = strings.TrimSpace(
		ResolveSecret(c.Secrets.Dir, "notify_secret", c.Notify.Secret))
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Sessions.MaxSessions < 1:
		return fmt.Errorf("MAX_SESSIONS must be positive, got %d", c.Sessions.MaxSessions)
	case c.Sessions.Command == "":
		return fmt.Errorf("CLAUDE_COMMAND must not be empty")
	case c.Sessions.WorkspaceBase == "":
		return fmt.Errorf("WORKSPACE_BASE must not be empty")
	case c.Sessions.SendTimeout <= 0:
		return fmt.Errorf("SEND_TIMEOUT must be positive, got %s", c.Sessions.SendTimeout)
	case c.RateLimit.MessagesPerMinute < 0:
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative, got %d", c.RateLimit.MessagesPerMinute)
	case len(c.Notify.Secret) > 64:
		return fmt.Errorf("NOTIFY_SECRET must be at most 64 bytes")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8000",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			MessagesPerMinute: 60,
		},
		Sessions: SessionConfig{
			WorkspaceBase:  "/workspace",
			MaxSessions:    10,
			TimeoutHours:   24,
			Command:        "claude",
			Args:           []string{"--permission-mode", "default"},
			SendTimeout:    60 * time.Second,
			TerminateGrace: 10 * time.Second,
			ReapSchedule:   "@every 5m",
		},
		Secrets: SecretsConfig{
			Dir: "/run/secrets",
		},
		Notify: NotifyConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Tracing: TracingConfig{
			Exporter: "log",
		},
	}
}
