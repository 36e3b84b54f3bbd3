package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Config holds runtime settings for the ticketdesk CLI.
type Config struct {
	// ServerEndpointAddr is the API root, e.g. "http://127.0.0.1:8000/api/".
	ServerEndpointAddr string `koanf:"server_endpoint_addr"`

	// OnlineCheckInterval is how often the backend health endpoint is probed.
	OnlineCheckInterval time.Duration `koanf:"online_check_interval"`

	RequestTimeout time.Duration `koanf:"request_timeout"`

	// DatabasePath is the SQLite file holding the credential store.
	DatabasePath string `koanf:"database_path"`

	// AuthScheme prefixes the credential in the Authorization header.
	AuthScheme string `koanf:"auth_scheme"`

	ResendCooldown time.Duration `koanf:"resend_cooldown"`

	Log     LogConfig     `koanf:"log"`
	Breaker BreakerConfig `koanf:"breaker"`
}

type LogConfig struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`
	Backend string `koanf:"backend"`
}

// BreakerConfig tunes the circuit breaker; MaxFailures 0 disables it.
type BreakerConfig struct {
	MaxFailures uint32        `koanf:"max_failures"`
	Interval    time.Duration `koanf:"interval"`
	Timeout     time.Duration `koanf:"timeout"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8000/api/"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.DatabasePath = "ticketdesk.db"
	c.AuthScheme = "Token"
	c.ResendCooldown = 60 * time.Second
	c.Log = LogConfig{Level: "info", Format: "text", Backend: "slog"}
	c.Breaker = BreakerConfig{MaxFailures: 5, Interval: time.Minute, Timeout: 30 * time.Second}
}

// Validate reports settings the client cannot run with.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerEndpointAddr, validation.Required),
		validation.Field(&c.OnlineCheckInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.DatabasePath, validation.Required),
		validation.Field(&c.AuthScheme, validation.Required),
		validation.Field(&c.ResendCooldown, validation.Min(time.Duration(0))),
		validation.Field(&c.Log),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
		validation.Field(&l.Backend, validation.In("slog", "zap")),
	)
}
