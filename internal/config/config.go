// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/database"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/timestamp"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Env   string `env:"APP_ENV" envDefault:"development"`
	Port  string `env:"PORT" envDefault:"8080"`
	Store string `env:"STORE" envDefault:"postgres"`

	DB       database.Config
	RedisURL string `env:"REDIS_URL"`

	// Zone-less schedule values are read in this location.
	Timezone string `env:"TIMEZONE" envDefault:"UTC"`
	// Slash dates are read with this fixed order, never guessed per value.
	DateOrder string `env:"DATE_ORDER" envDefault:"day-first"`

	CountedPaymentStatuses []string `env:"COUNTED_PAYMENT_STATUSES" envSeparator:"," envDefault:"completed,paid,registered"`

	ReconcileSchedule    string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 5m"`
	ReconcileTimeout     time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"2m"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"8"`
	RunHistoryTTL        time.Duration `env:"RUN_HISTORY_TTL" envDefault:"168h"`
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Order(); err != nil {
		return err
	}
	if _, err := c.CountedSet(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ReconcileSchedule) == "" {
		return fmt.Errorf("RECONCILE_SCHEDULE must not be empty")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

// Order resolves DateOrder.
func (c *Config) Order() (timestamp.DateOrder, error) {
	o, err := timestamp.ParseDateOrder(c.DateOrder)
	if err != nil {
		return o, fmt.Errorf("DATE_ORDER: %w", err)
	}
	return o, nil
}

// CountedSet resolves CountedPaymentStatuses.
func (c *Config) CountedSet() (lifecycle.CountedSet, error) {
	set, err := lifecycle.ParseCountedSet(c.CountedPaymentStatuses)
	if err != nil {
		return nil, fmt.Errorf("COUNTED_PAYMENT_STATUSES: %w", err)
	}
	return set, nil
}

// Normalizer builds the timestamp normalizer described by the config.
func (c *Config) Normalizer() (*timestamp.Normalizer, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	order, err := c.Order()
	if err != nil {
		return nil, err
	}
	return timestamp.New(order, loc), nil
}
