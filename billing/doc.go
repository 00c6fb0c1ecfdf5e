// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package billing settles table sessions.

An order is paid exactly once, by one of three routes:

  - Individual: a guest pays for their own unpaid orders. The orders are
    locked to a payment row (orders.payment_id) before the card hold is
    created and marked paid when the hold is captured.
  - Pool: a guest opens a pool covering every unlocked order at the table
    (orders.pool_id). Guests contribute card holds of any size; when the
    authorized contributions reach the target the holds are captured in
    authorization order, the last one partially, so the pool collects
    exactly its target. Unneeded holds are cancelled.
  - Cash: staff settle whatever is left.

Locks are taken with conditional UPDATEs inside transactions and verified by
re-summing, so two guests racing for the same orders cannot both win. The
database's partial unique index allows a single active pool per session.

[Sweeper] cleans up abandoned state: pools past their deadline, card payments
that never completed, and idle sessions with nothing outstanding.
*/
package billing
