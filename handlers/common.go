// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/payments"
)

const guestTokenHeader = "X-Guest-Token"

// guestContext is a guest resolved from their token
type guestContext struct {
	Guest         models.Guest
	TableID       string
	TableLabel    string
	SessionStatus string
}

func (g guestContext) sessionOpen() bool {
	return g.SessionStatus == models.SessionOpen
}

func now() time.Time {
	return time.Now().UTC()
}

// findTable looks up a table by its printed code
func findTable(ctx context.Context, db *sql.DB, code string) (models.DiningTable, error) {
	var t models.DiningTable
	err := db.QueryRowContext(ctx, `
		SELECT id, label, code, seats, active, created_at
		FROM dining_table WHERE code = $1
	`, code).Scan(&t.ID, &t.Label, &t.Code, &t.Seats, &t.Active, &t.CreatedAt)
	return t, err
}

// resolveGuest authenticates the guest token (header, or guest_token query
// parameter for WebSocket clients) against the table code in the path. It
// writes the error response itself and returns false on failure.
func resolveGuest(w http.ResponseWriter, r *http.Request, db *sql.DB) (guestContext, bool) {
	token := r.Header.Get(guestTokenHeader)
	if token == "" {
		token = r.URL.Query().Get("guest_token")
	}
	if token == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Guest-Token header required")
		return guestContext{}, false
	}

	var g guestContext
	var code string
	err := db.QueryRowContext(r.Context(), `
		SELECT g.id, g.session_id, g.name, g.joined_at, s.status, t.id, t.label, t.code
		FROM guest g
		JOIN table_session s ON s.id = g.session_id
		JOIN dining_table t ON t.id = s.table_id
		WHERE g.token = $1
	`, token).Scan(&g.Guest.ID, &g.Guest.SessionID, &g.Guest.Name, &g.Guest.JoinedAt,
		&g.SessionStatus, &g.TableID, &g.TableLabel, &code)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid guest token")
		return guestContext{}, false
	}
	if err != nil {
		slog.Error("failed to resolve guest", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return guestContext{}, false
	}

	if pathCode := r.PathValue("code"); pathCode != "" && pathCode != code {
		middleware.ErrorResponse(w, http.StatusForbidden, "Guest token belongs to another table")
		return guestContext{}, false
	}

	return g, true
}

// billingError maps billing and gateway errors to HTTP responses
func billingError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Not found")
	case errors.Is(err, billing.ErrSessionClosed):
		middleware.ErrorResponse(w, http.StatusConflict, "Table session is closed")
	case errors.Is(err, billing.ErrNothingToPay):
		middleware.ErrorResponse(w, http.StatusConflict, "Nothing left to pay")
	case errors.Is(err, billing.ErrConflict):
		middleware.ErrorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, billing.ErrPoolExists):
		middleware.ErrorResponse(w, http.StatusConflict, "A payment pool is already open for this table")
	case errors.Is(err, billing.ErrNoPool):
		middleware.ErrorResponse(w, http.StatusNotFound, "No payment pool for this table")
	case errors.Is(err, billing.ErrPoolClosed):
		middleware.ErrorResponse(w, http.StatusConflict, "Payment pool is no longer open")
	case errors.Is(err, billing.ErrAlreadyContributed):
		middleware.ErrorResponse(w, http.StatusConflict, "You already contributed to this pool")
	case errors.Is(err, billing.ErrInvalidAmount):
		middleware.ErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, billing.ErrUnpaidOrders):
		middleware.ErrorResponse(w, http.StatusConflict, "Session has unpaid orders")
	case errors.Is(err, billing.ErrNotRefundable):
		middleware.ErrorResponse(w, http.StatusConflict, "Payment cannot be refunded")
	case errors.Is(err, billing.ErrPaymentsUnavailable), errors.Is(err, payments.ErrNotConfigured):
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Card payments are not available")
	default:
		var gwErr *payments.GatewayError
		if errors.As(err, &gwErr) {
			slog.Warn("gateway rejected request", "action", action, "status", gwErr.StatusCode, "code", gwErr.Code)
			middleware.ErrorResponse(w, http.StatusBadGateway, "Payment provider error: "+gwErr.Message)
			return
		}
		slog.Error("billing operation failed", "action", action, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to "+action)
	}
}
