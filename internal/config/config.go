// Package config loads procview settings from PROCVIEW_* environment
// variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ripkitten-co/procview"
)

// Message group backends.
const (
	MessageStoreMemory   = "memory"
	MessageStoreRedis    = "redis"
	MessageStorePostgres = "postgres"
)

type Config struct {
	DatabaseURL string `env:"PROCVIEW_DATABASE_URL"`

	MessageStore     string        `env:"PROCVIEW_MESSAGE_STORE"     envDefault:"postgres"`
	RedisAddr        string        `env:"PROCVIEW_REDIS_ADDR"        envDefault:"localhost:6379"`
	RedisPassword    string        `env:"PROCVIEW_REDIS_PASSWORD"`
	RedisDB          int           `env:"PROCVIEW_REDIS_DB"          envDefault:"0"`
	AppliedRetention time.Duration `env:"PROCVIEW_APPLIED_RETENTION" envDefault:"24h"`
	DestinationsFile string        `env:"PROCVIEW_DESTINATIONS_FILE"`

	PollInterval  time.Duration `env:"PROCVIEW_POLL_INTERVAL" envDefault:"1s"`
	BatchSize     int           `env:"PROCVIEW_BATCH_SIZE"    envDefault:"100"`
	MaxRetries    int           `env:"PROCVIEW_MAX_RETRIES"   envDefault:"5"`
	Notifications bool          `env:"PROCVIEW_NOTIFY"        envDefault:"true"`

	ErrorMessageLength int `env:"PROCVIEW_ERROR_MESSAGE_LENGTH" envDefault:"255"`

	AppName        string `env:"PROCVIEW_APP_NAME"`
	AppVersion     string `env:"PROCVIEW_APP_VERSION"`
	ServiceName    string `env:"PROCVIEW_SERVICE_NAME"    envDefault:"procview"`
	ServiceVersion string `env:"PROCVIEW_SERVICE_VERSION"`

	LogLevel  string `env:"PROCVIEW_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"PROCVIEW_LOG_FORMAT" envDefault:"json"`

	// OTLP/HTTP collector URL; tracing is off when empty.
	OTelEndpoint string `env:"PROCVIEW_OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch {
	case !slices.Contains([]string{MessageStoreMemory, MessageStoreRedis, MessageStorePostgres}, c.MessageStore):
		return invalid("PROCVIEW_MESSAGE_STORE", c.MessageStore)
	case c.MessageStore == MessageStoreRedis && c.RedisAddr == "":
		return invalid("PROCVIEW_REDIS_ADDR", c.RedisAddr)
	case c.PollInterval <= 0:
		return invalid("PROCVIEW_POLL_INTERVAL", c.PollInterval)
	case c.BatchSize <= 0:
		return invalid("PROCVIEW_BATCH_SIZE", c.BatchSize)
	case c.MaxRetries < 1:
		return invalid("PROCVIEW_MAX_RETRIES", c.MaxRetries)
	case c.ErrorMessageLength <= 0:
		return invalid("PROCVIEW_ERROR_MESSAGE_LENGTH", c.ErrorMessageLength)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return invalid("PROCVIEW_LOG_FORMAT", c.LogFormat)
	}
	if _, err := c.level(); err != nil {
		return invalid("PROCVIEW_LOG_LEVEL", c.LogLevel)
	}
	return nil
}

// RequireDatabase fails when no database URL is configured.
func (c Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: PROCVIEW_DATABASE_URL is not set: %w", procview.ErrValidation)
	}
	return nil
}

// Logger builds the slog logger described by LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, invalid("PROCVIEW_LOG_LEVEL", c.LogLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

func invalid(name string, value any) error {
	return fmt.Errorf("config: %s=%v: %w", name, value, procview.ErrValidation)
}
