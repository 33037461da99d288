// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const minProductionSecretBytes = 32

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	SentryDSN   string `env:"SENTRY_DSN"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`
	RunMigrations     bool          `env:"RUN_MIGRATIONS_ON_STARTUP" envDefault:"true"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	CronSecret              string `env:"CRON_SECRET"`
	SessionCleanupBatchSize int    `env:"SESSION_CLEANUP_BATCH_SIZE" envDefault:"500"`

	AuditKafkaBrokers []string `env:"AUDIT_KAFKA_BROKERS" envSeparator:","`
	AuditKafkaTopic   string   `env:"AUDIT_KAFKA_TOPIC" envDefault:"auth.audit"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load(loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AuditKafkaBrokers = trimCSV(cfg.AuditKafkaBrokers)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func (c Config) validate() error {
	if c.IsProduction() && len(c.JWTSecret) < minProductionSecretBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretBytes)
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if c.SessionCleanupBatchSize <= 0 {
		return errors.New("SESSION_CLEANUP_BATCH_SIZE must be positive")
	}
	return nil
}

func trimCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
