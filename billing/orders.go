// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/models"
)

// unsettled matches orders that still need paying and are not locked to a
// payment or pool. Only valid against the bare orders table.
const unsettled = `status <> 'cancelled' AND paid_at IS NULL AND payment_id IS NULL AND pool_id IS NULL`

// OrderFilter narrows ListOrders. Zero fields do not filter.
type OrderFilter struct {
	OrderID      string
	SessionID    string
	GuestID      string
	Statuses     []string
	OpenSessions bool
}

func (f OrderFilter) where() (string, []any) {
	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.OrderID != "" {
		clauses = append(clauses, "o.id = "+next(f.OrderID))
	}
	if f.SessionID != "" {
		clauses = append(clauses, "o.session_id = "+next(f.SessionID))
	}
	if f.GuestID != "" {
		clauses = append(clauses, "o.guest_id = "+next(f.GuestID))
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = next(s)
		}
		clauses = append(clauses, "o.status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.OpenSessions {
		clauses = append(clauses, "s.status = 'open'")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListOrders returns matching orders, oldest first, with their items.
func ListOrders(ctx context.Context, q db.Querier, f OrderFilter) ([]models.Order, error) {
	where, args := f.where()
	from := `
		FROM orders o
		JOIN guest g ON g.id = o.guest_id
		JOIN table_session s ON s.id = o.session_id
		JOIN dining_table t ON t.id = s.table_id` + where

	rows, err := q.QueryContext(ctx, `
		SELECT o.id, o.session_id, o.guest_id, g.name, t.label, o.status, o.total_cents,
		       o.payment_id, o.pool_id, o.paid_at, o.paid_method, o.created_at, o.updated_at`+from+`
		ORDER BY o.created_at, o.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := []models.Order{}
	index := map[string]int{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.SessionID, &o.GuestID, &o.GuestName, &o.TableLabel, &o.Status,
			&o.TotalCents, &o.PaymentID, &o.PoolID, &o.PaidAt, &o.PaidMethod, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Items = []models.OrderItem{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := q.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.menu_item_id, oi.name, oi.quantity, oi.unit_price_cents, oi.notes
		FROM order_item oi
		JOIN orders o ON o.id = oi.order_id
		JOIN table_session s ON s.id = o.session_id`+where+`
		ORDER BY oi.order_id, oi.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it models.OrderItem
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPriceCents, &it.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if i, ok := index[it.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return orders, itemRows.Err()
}

// GuestDue is what a guest would be charged by an individual payment now
func GuestDue(ctx context.Context, q db.Querier, sessionID, guestID string) (int64, error) {
	var due int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0) FROM orders
		WHERE session_id = $1 AND guest_id = $2 AND `+unsettled,
		sessionID, guestID,
	).Scan(&due)
	if err != nil {
		return 0, fmt.Errorf("failed to compute amount due: %w", err)
	}
	return due, nil
}
