// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/tsudo/taskrelay/internal/logging"
)

// Config holds the complete server configuration.
type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Store    StoreConfig    `envPrefix:"STORE_"`
	Retry    RetryConfig    `envPrefix:"RETRY_"`
	Activity ActivityConfig `envPrefix:"ACTIVITY_"`
	Channel  ChannelConfig  `envPrefix:"CHANNEL_"`
	Worker   WorkerConfig   `envPrefix:"WORKER_"`
	Logging  logging.Config `envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr string `env:"ADDR" envDefault:":8080"`
}

type StoreConfig struct {
	// Path is the SQLite database file holding instances and queued tasks.
	Path string `env:"PATH" envDefault:"taskrelay.db"`
}

type RetryConfig struct {
	MaxAttempts       int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	InitialBackoff    time.Duration `env:"INITIAL_BACKOFF" envDefault:"1s"`
	BackoffMultiplier float64       `env:"BACKOFF_MULTIPLIER" envDefault:"2.0"`
	MaxBackoff        time.Duration `env:"MAX_BACKOFF" envDefault:"1m"`
}

type ActivityConfig struct {
	// WaitDuration is how long the wait activity runs before reporting success.
	WaitDuration time.Duration `env:"WAIT_DURATION" envDefault:"60s"`
	// Timeout bounds a single activity attempt.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5m"`
}

// ChannelConfig configures the push messaging channel used for
// out-of-band result delivery. An empty AccessToken switches delivery to
// the log notifier and an empty Secret disables request verification.
type ChannelConfig struct {
	AccessToken string `env:"ACCESS_TOKEN"`
	Secret      string `env:"SECRET"`
	Endpoint    string `env:"ENDPOINT" envDefault:"https://api.line.me/v2/bot/message/push"`
}

type WorkerConfig struct {
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`
}

// Load reads the configuration from TASKRELAY_-prefixed environment
// variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TASKRELAY_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialBackoff < 0 {
		return fmt.Errorf("retry initial backoff must not be negative, got %s", c.Retry.InitialBackoff)
	}
	if c.Activity.WaitDuration <= 0 {
		return fmt.Errorf("activity wait duration must be positive, got %s", c.Activity.WaitDuration)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	return nil
}
