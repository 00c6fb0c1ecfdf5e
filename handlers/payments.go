// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/payments"
)

// webhookTolerance bounds how old a signed webhook may be
const webhookTolerance = 5 * time.Minute

const maxWebhookBytes = 64 << 10

type PaymentHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	svc *billing.Service
}

func NewPaymentHandler(db *sql.DB, cfg cliparse.Config, svc *billing.Service) *PaymentHandler {
	return &PaymentHandler{db: db, cfg: cfg, svc: svc}
}

// GetBill handles GET /t/{code}/bill
func (h *PaymentHandler) GetBill(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	bill, err := h.svc.Bill(r.Context(), g.Guest.SessionID)
	if err != nil {
		billingError(w, err, "load bill")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, bill)
}

// StartPayment handles POST /t/{code}/payments
func (h *PaymentHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	if !h.svc.CardPaymentsEnabled() {
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Card payments are not available; ask for the bill")
		return
	}

	var req models.StartPaymentRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.StartIndividualPayment(r.Context(), g.Guest.SessionID, g.Guest.ID, req.TipCents, req.TipPercent)
	if err != nil {
		billingError(w, err, "start payment")
		return
	}

	slog.Info("payment started", "payment_id", resp.PaymentID, "guest", g.Guest.Name, "amount_cents", resp.AmountCents)
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// OpenPool handles POST /t/{code}/pool
func (h *PaymentHandler) OpenPool(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	if !h.svc.CardPaymentsEnabled() {
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Card payments are not available; ask for the bill")
		return
	}

	pool, err := h.svc.OpenPool(r.Context(), g.Guest.SessionID, g.Guest.ID)
	if err != nil {
		billingError(w, err, "open pool")
		return
	}
	middleware.JSONResponse(w, http.StatusCreated, pool)
}

// GetPool handles GET /t/{code}/pool
func (h *PaymentHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	view, err := h.svc.PoolStatus(r.Context(), g.Guest.SessionID)
	if err != nil {
		billingError(w, err, "load pool")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, view)
}

// CancelPool handles POST /t/{code}/pool/cancel. Only the guest who opened
// the pool may cancel it.
func (h *PaymentHandler) CancelPool(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}

	ctx := r.Context()
	poolID, openedBy, err := h.svc.ActivePoolID(ctx, g.Guest.SessionID)
	if err != nil {
		billingError(w, err, "cancel pool")
		return
	}
	if openedBy != g.Guest.ID {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only the guest who opened the pool can cancel it")
		return
	}

	if err := h.svc.CancelPool(ctx, poolID); err != nil {
		billingError(w, err, "cancel pool")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, map[string]string{"pool_id": poolID, "status": models.PoolCancelled})
}

// Contribute handles POST /t/{code}/pool/contributions
func (h *PaymentHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	var req models.ContributeRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.Contribute(r.Context(), g.Guest.SessionID, g.Guest.ID, req.AmountCents, req.TipCents)
	if err != nil {
		billingError(w, err, "contribute")
		return
	}
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// Confirm handles POST /payments/{intent}/confirm. The client's word is not
// trusted; the intent is re-read at the gateway.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	intentID := r.PathValue("intent")
	ctx := r.Context()

	owner, _, err := h.intentState(ctx, intentID)
	if err == sql.ErrNoRows || (err == nil && owner != g.Guest.ID) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		slog.Error("failed to query intent", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if _, err := h.svc.SyncIntent(ctx, intentID); err != nil {
		// A failed capture is already recorded on the payment; report its state
		slog.Warn("intent sync failed", "intent_id", intentID, "error", err)
		if errors.Is(err, payments.ErrNotConfigured) {
			billingError(w, err, "confirm payment")
			return
		}
	}

	_, status, err := h.intentState(ctx, intentID)
	if err != nil {
		slog.Error("failed to query intent", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.ConfirmPaymentResponse{IntentID: intentID, Status: status})
}

// intentState returns the guest and local status behind an intent, whether
// it belongs to a payment or a pool contribution
func (h *PaymentHandler) intentState(ctx context.Context, intentID string) (guestID, status string, err error) {
	err = h.db.QueryRowContext(ctx, `
		SELECT guest_id, status FROM payment WHERE intent_id = $1
		UNION ALL
		SELECT guest_id, status FROM pool_contribution WHERE intent_id = $1
	`, intentID).Scan(&guestID, &status)
	return guestID, status, err
}

// Webhook handles POST /webhooks/gateway
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Could not read body")
		return
	}

	err = payments.VerifyWebhook(payload, r.Header.Get(payments.SignatureHeader), h.cfg.WebhookSecret, webhookTolerance, time.Now())
	switch {
	case errors.Is(err, payments.ErrNotConfigured):
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Webhooks are not configured")
		return
	case err != nil:
		slog.Warn("rejected webhook", "error", err, "remote", middleware.GetClientIP(r))
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	ev, err := payments.ParseEvent(payload)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if !ev.Handled() {
		slog.Debug("ignoring webhook", "event_id", ev.ID, "type", ev.Type)
		middleware.JSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx := r.Context()
	intentID := ev.Data.Object.ID
	switch ev.Type {
	case payments.EventAmountCapturable:
		err = h.svc.MarkAuthorized(ctx, intentID)
	case payments.EventPaymentFailed, payments.EventCanceled:
		err = h.svc.MarkFailed(ctx, intentID, ev.Data.Object.FailureReason())
	default:
		middleware.JSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if errors.Is(err, billing.ErrNotFound) {
		// Not ours, or the payment row was never written
		slog.Info("webhook for unknown intent", "intent_id", intentID, "type", ev.Type)
		middleware.JSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		// Capture failures are already recorded; the gateway need not retry
		var gwErr *payments.GatewayError
		if errors.As(err, &gwErr) {
			slog.Warn("webhook processing hit gateway error", "intent_id", intentID, "error", err)
			middleware.JSONResponse(w, http.StatusOK, map[string]string{"status": "recorded"})
			return
		}
		slog.Error("failed to process webhook", "event_id", ev.ID, "type", ev.Type, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	slog.Info("webhook processed", "event_id", ev.ID, "type", ev.Type, "intent_id", intentID)
	middleware.JSONResponse(w, http.StatusOK, map[string]string{"status": "processed"})
}

// GetReceipt handles GET /t/{code}/receipt
func (h *PaymentHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	if g.sessionOpen() {
		middleware.ErrorResponse(w, http.StatusConflict, "Receipt is available once the table is settled")
		return
	}

	receipt, err := h.svc.LoadReceipt(r.Context(), g.Guest.SessionID)
	if err != nil {
		billingError(w, err, "load receipt")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, receipt)
}
