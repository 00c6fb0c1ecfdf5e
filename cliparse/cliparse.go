// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string

	TableCodeSalt string
	JWTSecret     string
	TokenTTL      time.Duration

	GatewayURL    string
	GatewayKey    string
	WebhookSecret string
	Currency      string

	RedisURL string

	PoolTTL        time.Duration
	PaymentTTL     time.Duration
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	PublicBaseURL string
}

// ParseFlags reads flags, falling back to environment variables (and a
// .env file when one exists) for anything not given on the command line.
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	// Missing .env is normal in production
	_ = godotenv.Load()

	fs := flag.NewFlagSet("tablepay", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.TableCodeSalt, "code-salt", "", "Table code salt (prefer env)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "Staff token signing secret (prefer env)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", 0, "Staff token lifetime")

	fs.StringVar(&cfg.GatewayURL, "gateway-url", "", "Payment gateway base URL")
	fs.StringVar(&cfg.GatewayKey, "gateway-key", "", "Payment gateway secret key (prefer env)")
	fs.StringVar(&cfg.WebhookSecret, "webhook-secret", "", "Gateway webhook signing secret (prefer env)")
	fs.StringVar(&cfg.Currency, "currency", "", "ISO currency code")

	fs.StringVar(&cfg.RedisURL, "redis", "", "Redis URL for cross-instance events")

	fs.DurationVar(&cfg.PoolTTL, "pool-ttl", 0, "How long a payment pool stays open")
	fs.DurationVar(&cfg.PaymentTTL, "payment-ttl", 0, "How long a card payment may stay pending")
	fs.DurationVar(&cfg.SessionIdleTTL, "session-ttl", 0, "Idle time before a settled session is closed")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 0, "Cleanup interval")

	fs.StringVar(&cfg.BootstrapAdminEmail, "admin-email", "", "Create this admin on startup if missing")
	fs.StringVar(&cfg.BootstrapAdminPassword, "admin-password", "", "Password for the bootstrap admin (prefer env)")

	fs.StringVar(&cfg.PublicBaseURL, "base-url", "", "Public URL of the customer app")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3318 // default
		}
	}

	envString(&cfg.DatabaseURL, "DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	envString(&cfg.DatabaseType, "DATABASE_TYPE", "sqlite")
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	// Secrets - MUST be provided
	envString(&cfg.TableCodeSalt, "TABLE_CODE_SALT", "")
	if cfg.TableCodeSalt == "" {
		return Config{}, errors.New("TABLE_CODE_SALT required")
	}
	envString(&cfg.JWTSecret, "JWT_SECRET", "")
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	envString(&cfg.GatewayURL, "GATEWAY_URL", "https://api.stripe.com")
	envString(&cfg.GatewayKey, "GATEWAY_SECRET_KEY", "")
	envString(&cfg.WebhookSecret, "GATEWAY_WEBHOOK_SECRET", "")
	envString(&cfg.Currency, "CURRENCY", "usd")
	envString(&cfg.RedisURL, "REDIS_URL", "")
	envString(&cfg.BootstrapAdminEmail, "ADMIN_EMAIL", "")
	envString(&cfg.BootstrapAdminPassword, "ADMIN_PASSWORD", "")
	envString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL", "http://localhost:5173")

	durations := []struct {
		dst *time.Duration
		env string
		def time.Duration
	}{
		{&cfg.TokenTTL, "TOKEN_TTL", 12 * time.Hour},
		{&cfg.PoolTTL, "POOL_TTL", 30 * time.Minute},
		{&cfg.PaymentTTL, "PAYMENT_TTL", 20 * time.Minute},
		{&cfg.SessionIdleTTL, "SESSION_IDLE_TTL", 6 * time.Hour},
		{&cfg.SweepInterval, "SWEEP_INTERVAL", time.Minute},
	}
	for _, d := range durations {
		if err := envDuration(d.dst, d.env, d.def); err != nil {
			return Config{}, err
		}
	}

	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword == "" {
		return Config{}, errors.New("ADMIN_PASSWORD required when ADMIN_EMAIL is set")
	}

	return cfg, nil
}

// PaymentsEnabled reports whether a gateway key was configured
func (c Config) PaymentsEnabled() bool {
	return c.GatewayKey != ""
}

func envString(dst *string, key, def string) {
	if *dst != "" {
		return
	}
	*dst = os.Getenv(key)
	if *dst == "" {
		*dst = def
	}
}

func envDuration(dst *time.Duration, key string, def time.Duration) error {
	if *dst != 0 {
		return nil
	}
	raw := os.Getenv(key)
	if raw == "" {
		*dst = def
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s env variable", key)
	}
	*dst = d
	return nil
}
