// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the TablePay API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, router.Deps{
		Billing: svc,
		Sweeper: sweeper,
		Hub:     hub,
		Metrics: metrics,
	})

Routes use Go 1.22+ method and path patterns.

# Endpoints

Health:

	GET /health

Guests (X-Guest-Token from join, except menu, table lookup and join):

	GET  /menu                          - Available menu
	GET  /t/{code}                      - Table and open session
	POST /t/{code}/join                 - Join under a display name
	GET  /t/{code}/me                   - Own orders and amount due
	POST /t/{code}/requests             - Call a waiter or ask for the bill
	POST /t/{code}/orders               - Place an order
	GET  /t/{code}/orders               - Orders at the table
	POST /t/{code}/orders/{id}/cancel   - Cancel an own pending order

Paying:

	GET  /t/{code}/bill                 - Totals and even split
	POST /t/{code}/payments             - Pay own orders by card
	POST /t/{code}/pool                 - Open a shared pool
	GET  /t/{code}/pool                 - Pool progress
	POST /t/{code}/pool/cancel          - Cancel the pool (opener only)
	POST /t/{code}/pool/contributions   - Contribute to the pool
	GET  /t/{code}/receipt              - Receipt once the session is closed
	POST /payments/{intent}/confirm     - Re-check an intent after card entry
	POST /webhooks/gateway              - Signed gateway events

Staff (bearer token from /staff/login):

	POST /staff/login
	GET  /staff/tables                  - Floor overview (waiter)
	GET  /staff/requests                - Open service requests (waiter)
	POST /staff/requests/{id}/ack       - Acknowledge a request (waiter)
	POST /staff/sessions/{id}/cash      - Settle the rest in cash (waiter)
	POST /staff/sessions/{id}/close     - Close and write the receipt (waiter)
	GET  /kitchen/orders                - Order queue (kitchen)
	POST /kitchen/orders/{id}/status    - Advance or cancel an order (kitchen)

Admin:

	/admin/tables, /admin/menu/..., /admin/staff, /admin/payments/{id}/refund,
	/admin/sweep, /admin/reports/sales and /admin/reports/sales.xlsx

Live updates (WebSocket):

	GET /ws/t/{code}?guest_token=...
	GET /ws/kitchen?token=...
	GET /ws/staff?token=...

# Handler Initialization

The router creates handler instances with dependency injection. Every
handler receives the database connection and configuration; handlers that
move money share the billing.Service, and handlers that notify share the
events.Hub. Admin tokens pass every role check.
*/
package router
