// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the TablePay API server.

TablePay lets restaurant guests scan a QR code at their table, join the
table's session under a display name, order from the menu and pay: each guest
for their own orders, or together through a shared payment pool. Waiters and
the kitchen follow along over WebSockets; cash and refunds go through staff.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=tablepay.db TABLE_CODE_SALT=... JWT_SECRET=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..."

A .env file in the working directory is loaded when present.

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - TABLE_CODE_SALT (--code-salt): Secret for QR table codes
  - JWT_SECRET (--jwt-secret): Signing secret for staff tokens

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - GATEWAY_SECRET_KEY, GATEWAY_WEBHOOK_SECRET, GATEWAY_URL: card payments;
    without a key only cash is accepted
  - REDIS_URL: share events and the sweep lock between instances
  - ADMIN_EMAIL, ADMIN_PASSWORD: create the first admin on startup
  - POOL_TTL, PAYMENT_TTL, SESSION_IDLE_TTL, SWEEP_INTERVAL: cleanup timing
  - OTEL_*: standard OpenTelemetry exporter settings

# Architecture

  - handlers: HTTP request handlers (tables, menu, orders, payments, staff,
    admin, reports, streams)
  - router: Route definitions using Go 1.22+ routing
  - billing: Payments, pools, cash, refunds, session close and the sweeper
  - payments: Card gateway client and webhook verification
  - events: Realtime fan-out, in memory or through Redis
  - telemetry: Tracing, metrics and trace-aware logging
  - middleware: CORS, logging, JSON helpers, staff auth
  - models: Request/response types
  - auth: IDs, table codes, passwords and staff tokens
  - db: Connections and schema
  - cliparse: Configuration parsing

The tabctl command in cmd/tabctl administers the same database.
*/
package main
