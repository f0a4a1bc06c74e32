package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"washdesk/internal/database"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBHost     string `envconfig:"BLUEPRINT_DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"BLUEPRINT_DB_PORT" default:"5432"`
	DBDatabase string `envconfig:"BLUEPRINT_DB_DATABASE" default:"washdesk"`
	DBUsername string `envconfig:"BLUEPRINT_DB_USERNAME" default:"postgres"`
	DBPassword string `envconfig:"BLUEPRINT_DB_PASSWORD" default:"postgres"`
	DBSchema   string `envconfig:"BLUEPRINT_DB_SCHEMA" default:"public"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:""`
	AMQPURL   string `envconfig:"AMQP_URL" default:""`

	RateFeedURL         string        `envconfig:"RATE_FEED_URL" default:""`
	RatePairBase        string        `envconfig:"RATE_PAIR_BASE" default:"USD"`
	RatePairQuote       string        `envconfig:"RATE_PAIR_QUOTE" default:"VES"`
	RateRefreshInterval time.Duration `envconfig:"RATE_REFRESH_INTERVAL" default:"5m"`
	RateFetchTimeout    time.Duration `envconfig:"RATE_FETCH_TIMEOUT" default:"5s"`

	SettlementTolerance string        `envconfig:"SETTLEMENT_TOLERANCE" default:"0.01"`
	LockWaitTimeout     time.Duration `envconfig:"LOCK_WAIT_TIMEOUT" default:"2s"`
	SubscriberBuffer    int           `envconfig:"SUBSCRIBER_BUFFER" default:"64"`

	JWTSecret   string `envconfig:"JWT_SECRET" default:""`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("STORE_DRIVER must be memory or postgres, got %q", c.StoreDriver)
	}
	tol, err := decimal.NewFromString(c.SettlementTolerance)
	if err != nil || tol.IsNegative() {
		return fmt.Errorf("SETTLEMENT_TOLERANCE must be a non-negative decimal, got %q", c.SettlementTolerance)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// Tolerance is validated by Load.
func (c *Config) Tolerance() decimal.Decimal {
	return decimal.RequireFromString(c.SettlementTolerance)
}

func (c *Config) Database() database.Settings {
	return database.Settings{
		Host:     c.DBHost,
		Port:     c.DBPort,
		Database: c.DBDatabase,
		Username: c.DBUsername,
		Password: c.DBPassword,
		Schema:   c.DBSchema,
	}
}

func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// StaleAfter is the age at which a rate snapshot is reported stale.
func (c *Config) StaleAfter() time.Duration {
	return 2 * c.RateRefreshInterval
}
