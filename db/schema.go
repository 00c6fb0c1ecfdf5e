// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The DDL is limited to what both PostgreSQL and SQLite accept.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Staff accounts (admin, waiter, kitchen)
CREATE TABLE IF NOT EXISTS staff (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('admin', 'waiter', 'kitchen')),
    password_hash TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Tables in the dining room; code is what the QR sticker encodes
CREATE TABLE IF NOT EXISTS dining_table (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL UNIQUE,
    code TEXT NOT NULL UNIQUE,
    seats INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Menu
CREATE TABLE IF NOT EXISTS menu_category (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS menu_item (
    id TEXT PRIMARY KEY,
    category_id TEXT NOT NULL REFERENCES menu_category(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price_cents BIGINT NOT NULL CHECK (price_cents > 0),
    available BOOLEAN NOT NULL DEFAULT TRUE,
    sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_menu_item_category ON menu_item(category_id);

-- Table sessions: one sitting at a table, from first scan to settlement
CREATE TABLE IF NOT EXISTS table_session (
    id TEXT PRIMARY KEY,
    table_id TEXT NOT NULL REFERENCES dining_table(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
    opened_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    closed_at TIMESTAMP,
    last_active_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_table_session_one_open ON table_session(table_id) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_table_session_status ON table_session(status);

-- Guests
CREATE TABLE IF NOT EXISTS guest (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES table_session(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    device_uuid TEXT,
    ip_hash TEXT,
    joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (session_id, name)
);

CREATE INDEX IF NOT EXISTS idx_guest_session ON guest(session_id);

-- Card payments made by a single guest for their own orders
CREATE TABLE IF NOT EXISTS payment (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES table_session(id) ON DELETE CASCADE,
    guest_id TEXT NOT NULL REFERENCES guest(id) ON DELETE CASCADE,
    intent_id TEXT UNIQUE,
    amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
    tip_cents BIGINT NOT NULL DEFAULT 0 CHECK (tip_cents >= 0),
    currency TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'authorized', 'captured', 'failed', 'cancelled', 'refunded')),
    failure_reason TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_payment_session ON payment(session_id);
CREATE INDEX IF NOT EXISTS idx_payment_status ON payment(status);

-- Shared pools: guests contribute card holds towards a fixed target
CREATE TABLE IF NOT EXISTS payment_pool (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES table_session(id) ON DELETE CASCADE,
    opened_by TEXT NOT NULL REFERENCES guest(id) ON DELETE CASCADE,
    target_cents BIGINT NOT NULL CHECK (target_cents > 0),
    captured_cents BIGINT NOT NULL DEFAULT 0,
    currency TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open'
        CHECK (status IN ('open', 'capturing', 'captured', 'cancelled', 'expired')),
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_pool_one_active ON payment_pool(session_id) WHERE status IN ('open', 'capturing');

CREATE TABLE IF NOT EXISTS pool_contribution (
    id TEXT PRIMARY KEY,
    pool_id TEXT NOT NULL REFERENCES payment_pool(id) ON DELETE CASCADE,
    guest_id TEXT NOT NULL REFERENCES guest(id) ON DELETE CASCADE,
    intent_id TEXT UNIQUE,
    amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
    tip_cents BIGINT NOT NULL DEFAULT 0 CHECK (tip_cents >= 0),
    captured_cents BIGINT NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'authorized', 'captured', 'failed', 'cancelled')),
    authorized_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (pool_id, guest_id)
);

CREATE INDEX IF NOT EXISTS idx_pool_contribution_pool ON pool_contribution(pool_id);

-- Orders; payment_id and pool_id lock an order to exactly one settlement
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES table_session(id) ON DELETE CASCADE,
    guest_id TEXT NOT NULL REFERENCES guest(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'preparing', 'ready', 'served', 'cancelled')),
    total_cents BIGINT NOT NULL CHECK (total_cents >= 0),
    payment_id TEXT REFERENCES payment(id) ON DELETE SET NULL,
    pool_id TEXT REFERENCES payment_pool(id) ON DELETE SET NULL,
    paid_at TIMESTAMP,
    paid_method TEXT,
    collected_by TEXT REFERENCES staff(id),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_session ON orders(session_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS order_item (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    menu_item_id TEXT NOT NULL REFERENCES menu_item(id),
    name TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    unit_price_cents BIGINT NOT NULL,
    notes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_order_item_order ON order_item(order_id);

-- Call-waiter / bring-the-bill requests
CREATE TABLE IF NOT EXISTS service_request (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES table_session(id) ON DELETE CASCADE,
    guest_id TEXT NOT NULL REFERENCES guest(id) ON DELETE CASCADE,
    kind TEXT NOT NULL CHECK (kind IN ('waiter', 'bill')),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    acked_at TIMESTAMP,
    acked_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_service_request_session ON service_request(session_id);

-- Receipts: immutable settlement snapshot written on session close
CREATE TABLE IF NOT EXISTS receipt (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL UNIQUE REFERENCES table_session(id) ON DELETE CASCADE,
    closed_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);
`
