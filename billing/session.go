// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/models"
)

// Bill summarises what the table owes
func (s *Service) Bill(ctx context.Context, sessionID string) (models.BillView, error) {
	orders, err := ListOrders(ctx, s.db, OrderFilter{SessionID: sessionID})
	if err != nil {
		return models.BillView{}, err
	}

	bill := models.BillView{
		SessionID: sessionID,
		Currency:  s.currency,
		Orders:    orders,
	}
	for _, o := range orders {
		if o.Status == models.OrderCancelled {
			continue
		}
		bill.TotalCents += o.TotalCents
		switch {
		case o.PaidAt != nil:
			bill.PaidCents += o.TotalCents
		case o.PaymentID != nil || o.PoolID != nil:
			bill.LockedCents += o.TotalCents
		}
	}
	bill.OutstandingCents = bill.TotalCents - bill.PaidCents

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guest WHERE session_id = $1`, sessionID).Scan(&bill.GuestCount); err != nil {
		return models.BillView{}, fmt.Errorf("failed to count guests: %w", err)
	}
	bill.EvenSplitCents = SplitEvenly(bill.OutstandingCents, bill.GuestCount)
	return bill, nil
}

// CloseSession ends a sitting and writes its receipt. Unless forced, a session
// with unpaid orders stays open. Forcing cancels an open pool and any card
// payment still in flight; unpaid orders are left unpaid on the receipt.
// The unpaid check, the status change and the receipt share one transaction.
func (s *Service) CloseSession(ctx context.Context, sessionID string, force bool) (models.Receipt, error) {
	var status, tableLabel string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.status, t.label FROM table_session s
		JOIN dining_table t ON t.id = s.table_id
		WHERE s.id = $1`, sessionID,
	).Scan(&status, &tableLabel)
	if err == sql.ErrNoRows {
		return models.Receipt{}, ErrNotFound
	}
	if err != nil {
		return models.Receipt{}, fmt.Errorf("failed to load session: %w", err)
	}
	if status != models.SessionOpen {
		return models.Receipt{}, ErrSessionClosed
	}

	if force {
		s.abandonInFlight(ctx, sessionID)
	}

	now := s.now()
	var receipt models.Receipt
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// Flipping the status first takes the session row lock. Orders and
		// payments that locked the row before us are visible to the reads below.
		res, err := tx.ExecContext(ctx, `
			UPDATE table_session SET status = 'closed', closed_at = $1
			WHERE id = $2 AND status = 'open'`, now, sessionID)
		if err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrSessionClosed
		}

		var unpaid int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM orders
			WHERE session_id = $1 AND status <> 'cancelled' AND paid_at IS NULL`, sessionID,
		).Scan(&unpaid); err != nil {
			return fmt.Errorf("failed to count unpaid orders: %w", err)
		}
		if unpaid > 0 && !force {
			return ErrUnpaidOrders
		}

		receipt, err = s.buildReceipt(ctx, tx, sessionID, tableLabel, now)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("failed to encode receipt: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO receipt (id, session_id, closed_at, payload) VALUES ($1, $2, $3, $4)`,
			receipt.ID, sessionID, now, string(payload)); err != nil {
			return fmt.Errorf("failed to store receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Receipt{}, err
	}

	slog.InfoContext(ctx, "session closed",
		"session_id", sessionID, "table", tableLabel, "total", receipt.TotalCents, "paid", receipt.PaidCents, "forced", force)
	events.PublishAll(ctx, s.hub, events.TypeSessionClosed, map[string]string{"session_id": sessionID},
		events.SessionTopic(sessionID), events.TopicStaff, events.TopicKitchen)
	return receipt, nil
}

func (s *Service) abandonInFlight(ctx context.Context, sessionID string) {
	if poolID, _, err := s.ActivePoolID(ctx, sessionID); err == nil {
		if err := s.CancelPool(ctx, poolID); err != nil {
			slog.WarnContext(ctx, "failed to cancel pool on close", "pool_id", poolID, "error", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(intent_id, '') FROM payment
		WHERE session_id = $1 AND status IN ('pending', 'authorized')`, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list in-flight payments", "session_id", sessionID, "error", err)
		return
	}
	type inFlight struct{ id, intentID string }
	var pending []inFlight
	for rows.Next() {
		var p inFlight
		if err := rows.Scan(&p.id, &p.intentID); err != nil {
			slog.ErrorContext(ctx, "failed to scan in-flight payment", "session_id", sessionID, "error", err)
			continue
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "failed to list in-flight payments", "session_id", sessionID, "error", err)
	}
	rows.Close()

	for _, p := range pending {
		if s.failPayment(ctx, p.id, "session closed") {
			s.cancelHold(ctx, p.intentID)
		}
	}
}

func (s *Service) buildReceipt(ctx context.Context, q db.Querier, sessionID, tableLabel string, closedAt time.Time) (models.Receipt, error) {
	id, err := auth.GenerateID(16)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("failed to generate receipt ID: %w", err)
	}
	receipt := models.Receipt{
		ID:         id,
		SessionID:  sessionID,
		TableLabel: tableLabel,
		Currency:   s.currency,
		ClosedAt:   closedAt,
		Lines:      []models.ReceiptLine{},
		Payments:   []models.ReceiptEntry{},
	}

	rows, err := q.QueryContext(ctx, `
		SELECT oi.name, oi.quantity, oi.unit_price_cents, g.name
		FROM order_item oi
		JOIN orders o ON o.id = oi.order_id
		JOIN guest g ON g.id = o.guest_id
		WHERE o.session_id = $1 AND o.status <> 'cancelled'
		ORDER BY o.created_at, oi.id`, sessionID)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("failed to load receipt lines: %w", err)
	}
	for rows.Next() {
		var l models.ReceiptLine
		if err := rows.Scan(&l.Name, &l.Quantity, &l.UnitPriceCents, &l.GuestName); err != nil {
			rows.Close()
			return models.Receipt{}, fmt.Errorf("failed to scan receipt line: %w", err)
		}
		receipt.TotalCents += int64(l.Quantity) * l.UnitPriceCents
		receipt.Lines = append(receipt.Lines, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return models.Receipt{}, fmt.Errorf("failed to load receipt lines: %w", err)
	}
	rows.Close()

	entries := []struct {
		method string
		query  string
	}{
		{models.MethodCard, `
			SELECT g.name, p.amount_cents, p.tip_cents FROM payment p
			JOIN guest g ON g.id = p.guest_id
			WHERE p.session_id = $1 AND p.status = 'captured'
			ORDER BY p.created_at, p.id`},
		{models.MethodPool, `
			SELECT g.name, c.captured_cents, c.tip_cents FROM pool_contribution c
			JOIN payment_pool pp ON pp.id = c.pool_id
			JOIN guest g ON g.id = c.guest_id
			WHERE pp.session_id = $1 AND c.status = 'captured'
			ORDER BY c.authorized_at, c.id`},
	}
	for _, e := range entries {
		rows, err := q.QueryContext(ctx, e.query, sessionID)
		if err != nil {
			return models.Receipt{}, fmt.Errorf("failed to load receipt payments: %w", err)
		}
		for rows.Next() {
			entry := models.ReceiptEntry{Method: e.method}
			if err := rows.Scan(&entry.GuestName, &entry.AmountCents, &entry.TipCents); err != nil {
				rows.Close()
				return models.Receipt{}, fmt.Errorf("failed to scan receipt payment: %w", err)
			}
			receipt.PaidCents += entry.AmountCents
			receipt.TipCents += entry.TipCents
			receipt.Payments = append(receipt.Payments, entry)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return models.Receipt{}, fmt.Errorf("failed to load receipt payments: %w", err)
		}
		rows.Close()
	}

	var cash int64
	if err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0) FROM orders
		WHERE session_id = $1 AND paid_method = 'cash' AND status <> 'cancelled'`, sessionID,
	).Scan(&cash); err != nil {
		return models.Receipt{}, fmt.Errorf("failed to sum cash: %w", err)
	}
	if cash > 0 {
		receipt.PaidCents += cash
		receipt.Payments = append(receipt.Payments, models.ReceiptEntry{Method: models.MethodCash, AmountCents: cash})
	}

	return receipt, nil
}

// LoadReceipt returns the receipt of a closed session
func (s *Service) LoadReceipt(ctx context.Context, sessionID string) (models.Receipt, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM receipt WHERE session_id = $1`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.Receipt{}, ErrNotFound
	}
	if err != nil {
		return models.Receipt{}, fmt.Errorf("failed to load receipt: %w", err)
	}

	var receipt models.Receipt
	if err := json.Unmarshal([]byte(payload), &receipt); err != nil {
		return models.Receipt{}, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return receipt, nil
}
