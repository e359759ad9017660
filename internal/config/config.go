// Package config loads relay settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the relay server configuration.
type Config struct {
	Addr            string        `env:"RELAY_ADDR" envDefault:"127.0.0.1:8080"`
	QueueCapacity   int           `env:"RELAY_QUEUE_CAPACITY" envDefault:"16"`
	WelcomeMessage  string        `env:"RELAY_WELCOME" envDefault:"Welcome to chat! Type a message"`
	MaxMessageSize  int64         `env:"RELAY_MAX_MESSAGE_SIZE" envDefault:"8192"`
	WriteWait       time.Duration `env:"RELAY_WRITE_WAIT" envDefault:"10s"`
	PongWait        time.Duration `env:"RELAY_PONG_WAIT" envDefault:"60s"`
	AllowedOrigins  []string      `env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	DBPath string `env:"DB_PATH" envDefault:"data/relay.db"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	GinMode   string `env:"GIN_MODE" envDefault:"release"`
}

// Load reads an optional .env file and parses the environment into a Config.
// Variables already set in the environment take precedence over .env values.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that numeric settings are usable.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("RELAY_ADDR must not be empty")
	case c.QueueCapacity <= 0:
		return fmt.Errorf("RELAY_QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	case c.MaxMessageSize <= 0:
		return fmt.Errorf("RELAY_MAX_MESSAGE_SIZE must be positive, got %d", c.MaxMessageSize)
	case c.WriteWait <= 0:
		return fmt.Errorf("RELAY_WRITE_WAIT must be positive, got %s", c.WriteWait)
	case c.PongWait <= 0:
		return fmt.Errorf("RELAY_PONG_WAIT must be positive, got %s", c.PongWait)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("RELAY_SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}

	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode)
	}
	return nil
}
