// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/telemetry"
)

// orderTransitions lists the statuses the kitchen may move an order to
var orderTransitions = map[string][]string{
	models.OrderPending:   {models.OrderPreparing, models.OrderCancelled},
	models.OrderPreparing: {models.OrderReady, models.OrderCancelled},
	models.OrderReady:     {models.OrderServed},
}

// unlockedOrder holds for orders no settlement has claimed yet
const unlockedOrder = `payment_id IS NULL AND pool_id IS NULL AND paid_at IS NULL`

type menuItemError struct {
	itemID string
	reason string
}

func (e *menuItemError) Error() string {
	return fmt.Sprintf("menu item %s %s", e.itemID, e.reason)
}

type OrderHandler struct {
	db      *sql.DB
	cfg     cliparse.Config
	hub     events.Hub
	metrics *telemetry.Metrics
}

func NewOrderHandler(db *sql.DB, cfg cliparse.Config, hub events.Hub, metrics *telemetry.Metrics) *OrderHandler {
	return &OrderHandler{db: db, cfg: cfg, hub: hub, metrics: metrics}
}

// PlaceOrder handles POST /t/{code}/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	var req models.PlaceOrderRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	orderID, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate order ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to place order")
		return
	}

	ctx := r.Context()
	err = db.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		placedAt := now()
		// Holds the session row until commit so a close cannot slip in between
		if err := billing.LockOpenSession(ctx, tx, g.Guest.SessionID, placedAt); err != nil {
			return err
		}

		type line struct {
			models.OrderItemRequest
			name  string
			price int64
		}
		lines := make([]line, 0, len(req.Items))
		var total int64
		for _, it := range req.Items {
			var l line
			var available bool
			l.OrderItemRequest = it
			err := tx.QueryRowContext(ctx, `
				SELECT name, price_cents, available FROM menu_item WHERE id = $1
			`, it.MenuItemID).Scan(&l.name, &l.price, &available)
			if err == sql.ErrNoRows {
				return &menuItemError{itemID: it.MenuItemID, reason: "does not exist"}
			}
			if err != nil {
				return err
			}
			if !available {
				return &menuItemError{itemID: it.MenuItemID, reason: "is not available"}
			}
			total += l.price * int64(it.Quantity)
			lines = append(lines, l)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, session_id, guest_id, status, total_cents, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, orderID, g.Guest.SessionID, g.Guest.ID, models.OrderPending, total, placedAt); err != nil {
			return err
		}
		for _, l := range lines {
			itemID, err := auth.GenerateID(12)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_item (id, order_id, menu_item_id, name, quantity, unit_price_cents, notes)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, itemID, orderID, l.MenuItemID, l.name, l.Quantity, l.price, strings.TrimSpace(l.Notes)); err != nil {
				return err
			}
		}
		return nil
	})

	var itemErr *menuItemError
	switch {
	case errors.As(err, &itemErr):
		middleware.ErrorResponse(w, http.StatusUnprocessableEntity, itemErr.Error())
		return
	case errors.Is(err, billing.ErrSessionClosed):
		middleware.ErrorResponse(w, http.StatusConflict, "Table session is closed")
		return
	case err != nil:
		slog.Error("failed to place order", "error", err, "session_id", g.Guest.SessionID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to place order")
		return
	}

	orders, err := billing.ListOrders(ctx, h.db, billing.OrderFilter{OrderID: orderID})
	if err != nil || len(orders) == 0 {
		slog.Error("failed to reload order", "error", err, "order_id", orderID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	order := orders[0]

	slog.Info("order placed", "order_id", orderID, "table", g.TableLabel, "guest", g.Guest.Name, "total_cents", order.TotalCents)
	h.metrics.OrderPlaced(ctx)
	events.PublishAll(ctx, h.hub, events.TypeOrderPlaced, order,
		events.TopicKitchen, events.TopicStaff, events.SessionTopic(order.SessionID))

	middleware.JSONResponse(w, http.StatusCreated, models.PlaceOrderResponse{Order: order})
}

// ListOrders handles GET /t/{code}/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}

	orders, err := billing.ListOrders(r.Context(), h.db, billing.OrderFilter{SessionID: g.Guest.SessionID})
	if err != nil {
		slog.Error("failed to list orders", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, orders)
}

// CancelOrder handles POST /t/{code}/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	orderID := r.PathValue("id")

	var owner, status string
	err := h.db.QueryRowContext(r.Context(), `
		SELECT guest_id, status FROM orders WHERE id = $1 AND session_id = $2
	`, orderID, g.Guest.SessionID).Scan(&owner, &status)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		slog.Error("failed to query order", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if owner != g.Guest.ID {
		middleware.ErrorResponse(w, http.StatusForbidden, "You can only cancel your own orders")
		return
	}

	res, err := h.db.ExecContext(r.Context(), `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND `+unlockedOrder,
		models.OrderCancelled, now(), orderID, models.OrderPending)
	if err != nil {
		slog.Error("failed to cancel order", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to cancel order")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		middleware.ErrorResponse(w, http.StatusConflict, "Only pending, unpaid orders can be cancelled")
		return
	}

	slog.Info("order cancelled by guest", "order_id", orderID, "guest", g.Guest.Name)
	payload := map[string]string{"order_id": orderID, "status": models.OrderCancelled}
	events.PublishAll(r.Context(), h.hub, events.TypeOrderCancelled, payload,
		events.TopicKitchen, events.TopicStaff, events.SessionTopic(g.Guest.SessionID))

	middleware.JSONResponse(w, http.StatusOK, payload)
}

// KitchenOrders handles GET /kitchen/orders. ?status=a,b overrides the
// default of everything not yet served.
func (h *OrderHandler) KitchenOrders(w http.ResponseWriter, r *http.Request) {
	statuses := []string{models.OrderPending, models.OrderPreparing, models.OrderReady}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}

	orders, err := billing.ListOrders(r.Context(), h.db, billing.OrderFilter{Statuses: statuses, OpenSessions: true})
	if err != nil {
		slog.Error("failed to list kitchen orders", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, orders)
}

// UpdateStatus handles POST /kitchen/orders/{id}/status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	var req models.UpdateOrderStatusRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	var current, sessionID string
	err := h.db.QueryRowContext(ctx, `SELECT status, session_id FROM orders WHERE id = $1`, orderID).Scan(&current, &sessionID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		slog.Error("failed to query order", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if !slices.Contains(orderTransitions[current], req.Status) {
		middleware.ErrorResponse(w, http.StatusConflict, "Cannot move order from "+current+" to "+req.Status)
		return
	}

	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	if req.Status == models.OrderCancelled {
		// Cancelling a paid or in-payment order would desync the bill
		query += ` AND ` + unlockedOrder
	}
	res, err := h.db.ExecContext(ctx, query, req.Status, now(), orderID, current)
	if err != nil {
		slog.Error("failed to update order status", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update order")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		middleware.ErrorResponse(w, http.StatusConflict, "Order changed or is being paid; reload and retry")
		return
	}

	staffID := ""
	if claims, ok := middleware.StaffFromContext(ctx); ok {
		staffID = claims.StaffID
	}
	slog.Info("order status updated", "order_id", orderID, "from", current, "to", req.Status, "staff_id", staffID)

	eventType := events.TypeOrderStatus
	if req.Status == models.OrderCancelled {
		eventType = events.TypeOrderCancelled
	}
	payload := map[string]string{"order_id": orderID, "status": req.Status}
	events.PublishAll(ctx, h.hub, eventType, payload,
		events.TopicKitchen, events.TopicStaff, events.SessionTopic(sessionID))

	middleware.JSONResponse(w, http.StatusOK, payload)
}
