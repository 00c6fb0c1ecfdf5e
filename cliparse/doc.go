// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

A .env file in the working directory is loaded first when present.

# CLI Flags and Environment Variables

Flags fall back to environment variables:

	-p               PORT (default 3318)
	-d               DATABASE_URL
	-t               DATABASE_TYPE (sqlite or postgres, default sqlite)
	--code-salt      TABLE_CODE_SALT
	--jwt-secret     JWT_SECRET
	--token-ttl      TOKEN_TTL (default 12h)
	--gateway-url    GATEWAY_URL
	--gateway-key    GATEWAY_SECRET_KEY
	--webhook-secret GATEWAY_WEBHOOK_SECRET
	--currency       CURRENCY (default usd)
	--redis          REDIS_URL
	--pool-ttl       POOL_TTL (default 30m)
	--payment-ttl    PAYMENT_TTL (default 20m)
	--session-ttl    SESSION_IDLE_TTL (default 6h)
	--sweep-interval SWEEP_INTERVAL (default 1m)
	--admin-email    ADMIN_EMAIL
	--admin-password ADMIN_PASSWORD
	--base-url       PUBLIC_BASE_URL

CLI flags take precedence over environment variables.

# Validation

ParseFlags returns an error if:

  - DATABASE_URL is missing or DATABASE_TYPE is unknown
  - TABLE_CODE_SALT or JWT_SECRET is missing
  - a duration is not positive
  - ADMIN_EMAIL is set without ADMIN_PASSWORD

Without a gateway key, PaymentsEnabled reports false and only cash is taken.
*/
package cliparse
