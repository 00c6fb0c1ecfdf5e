// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the TablePay API.

# Handler Types

Each handler is a struct with database and config dependencies, plus the
shared services it needs:

  - TableHandler: Table lookup, joining a table, guest view, service requests
  - MenuHandler: Public menu and menu administration
  - OrderHandler: Guest ordering and the kitchen queue
  - PaymentHandler: Bill, individual payments, pools, gateway webhooks, receipts
  - StaffHandler: Staff login and the waiter floor view
  - AdminHandler: Tables, staff accounts, refunds, manual sweeps
  - ReportHandler: Sales reports as JSON or XLSX
  - StreamHandler: WebSocket event streams

Handlers are created via constructor functions:

	tableHandler := handlers.NewTableHandler(db, cfg, hub)

# Guest Flow

Guests reach a table through the code printed on its QR sticker:

	POST /t/{code}/join     → Join (opens the session if needed, returns guest_token)
	POST /t/{code}/orders   → PlaceOrder (prices are snapshotted)
	GET  /t/{code}/bill     → GetBill
	POST /t/{code}/payments → StartPayment (card hold for the guest's own orders)
	POST /t/{code}/pool     → OpenPool (shared payment for the whole table)

Guest operations require the X-Guest-Token header. WebSocket clients pass
?guest_token= instead.

# Payments

Card holds are authorized by the client against the gateway, then captured
by the server. Authorization reaches the server either through the signed
gateway webhook or through POST /payments/{intent}/confirm, which re-reads
the intent at the gateway before trusting it.

# Staff

Staff log in with email and password and receive a bearer token. Routes are
guarded by role in the router; admins pass every role check.
*/
package handlers
