// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("TABLE_CODE_SALT", "code-salt")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestParseFlags_EnvVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("POOL_TTL", "45m")
	t.Setenv("DATABASE_TYPE", "postgres")

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.PoolTTL != 45*time.Minute {
		t.Errorf("expected pool ttl 45m, got %v", cfg.PoolTTL)
	}
	if cfg.DatabaseType != "postgres" {
		t.Errorf("expected postgres, got %q", cfg.DatabaseType)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := ParseFlags([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 3318 {
		t.Errorf("expected default port 3318, got %d", cfg.Port)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected sqlite by default, got %q", cfg.DatabaseType)
	}
	if cfg.Currency != "usd" {
		t.Errorf("expected usd, got %q", cfg.Currency)
	}
	if cfg.TokenTTL != 12*time.Hour || cfg.SweepInterval != time.Minute {
		t.Errorf("unexpected duration defaults: token %v sweep %v", cfg.TokenTTL, cfg.SweepInterval)
	}
	if cfg.PaymentsEnabled() {
		t.Error("payments should be disabled without a gateway key")
	}
}

func TestParseFlags_CLIOverridesEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("GATEWAY_SECRET_KEY", "sk_env")

	cfg, err := ParseFlags([]string{"-p", "8080", "-gateway-key", "sk_cli", "-pool-ttl", "5m"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 8080 {
		t.Errorf("CLI should override env: expected 8080, got %d", cfg.Port)
	}
	if cfg.GatewayKey != "sk_cli" {
		t.Errorf("CLI should override env: expected sk_cli, got %q", cfg.GatewayKey)
	}
	if cfg.PoolTTL != 5*time.Minute {
		t.Errorf("expected pool ttl 5m, got %v", cfg.PoolTTL)
	}
}

func TestParseFlags_MissingSecrets(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"no database", "DATABASE_URL"},
		{"no code salt", "TABLE_CODE_SALT"},
		{"no jwt secret", "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			if _, err := ParseFlags([]string{}); err == nil {
				t.Errorf("expected error with %s unset", tt.unset)
			}
		})
	}
}

func TestParseFlags_InvalidValues(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PAYMENT_TTL", "soon")
		if _, err := ParseFlags([]string{}); err == nil {
			t.Error("expected error for PAYMENT_TTL=soon")
		}
	})

	t.Run("bad database type", func(t *testing.T) {
		setRequiredEnv(t)
		if _, err := ParseFlags([]string{"-t", "mysql"}); err == nil {
			t.Error("expected error for mysql")
		}
	})

	t.Run("admin email without password", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ADMIN_EMAIL", "owner@example.com")
		t.Setenv("ADMIN_PASSWORD", "")
		if _, err := ParseFlags([]string{}); err == nil {
			t.Error("expected error for missing ADMIN_PASSWORD")
		}
	})
}
