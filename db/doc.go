// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens database connections and creates the schema.

# Connections

Open accepts "sqlite" (modernc.org/sqlite, pure Go) or "postgres" (lib/pq):

	conn, err := db.Open(db.TypeSQLite, "tablepay.db")

SQLite connections enable foreign keys, WAL and immediate transactions.
Queries throughout the module use $N placeholders and pass timestamps as
parameters so the same SQL runs on both databases.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - staff: Staff accounts with bcrypt password hashes
  - dining_table: Tables and their QR codes
  - menu_category, menu_item: The menu
  - table_session: One sitting at a table
  - guest: Named guests in a session
  - orders, order_item: Orders with price snapshots
  - payment: Individual card payments
  - payment_pool, pool_contribution: Shared pools
  - service_request: Call-waiter and bill requests
  - receipt: Immutable receipt written on close

# Relationships

	dining_table 1──* table_session
	table_session 1──* guest
	table_session 1──* orders 1──* order_item
	table_session 1──* payment
	table_session 1──* payment_pool 1──* pool_contribution
	table_session 1──1 receipt

# Uniqueness

Partial unique indexes enforce at most one open session per table and at
most one active pool per session. Guest names are unique within a session.
IsUniqueViolation recognises the resulting errors from either driver.

# Transactions

WithTx runs a function inside a transaction and commits when it returns nil.
*/
package db
