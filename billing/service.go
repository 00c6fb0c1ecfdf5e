// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/payments"
	"github.com/danielhkuo/tablepay/telemetry"
)

type Options struct {
	Currency string
	PoolTTL  time.Duration
	Hub      events.Hub
	Metrics  *telemetry.Metrics
}

// Service owns every state change that moves money: individual payments,
// shared pools, cash settlement, refunds and closing a session.
type Service struct {
	db       *sql.DB
	gateway  payments.Gateway
	hub      events.Hub
	metrics  *telemetry.Metrics
	currency string
	poolTTL  time.Duration
	now      func() time.Time
}

func NewService(conn *sql.DB, gateway payments.Gateway, opts Options) *Service {
	if gateway == nil {
		gateway = payments.DisabledGateway{}
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.PoolTTL <= 0 {
		opts.PoolTTL = 30 * time.Minute
	}
	return &Service{
		db:       conn,
		gateway:  gateway,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		currency: opts.Currency,
		poolTTL:  opts.PoolTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CardPaymentsEnabled reports whether a gateway is configured
func (s *Service) CardPaymentsEnabled() bool {
	_, disabled := s.gateway.(payments.DisabledGateway)
	return !disabled
}

func (s *Service) Currency() string {
	return s.currency
}

// LockOpenSession marks activity on an open session. The conditional update
// takes the session row lock, so it serialises against CloseSession: whichever
// transaction commits first wins and the other sees the result.
func LockOpenSession(ctx context.Context, q db.Querier, sessionID string, now time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE table_session SET last_active_at = $1 WHERE id = $2 AND status = 'open'`, now, sessionID)
	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM table_session WHERE id = $1`, sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	return ErrSessionClosed
}

func (s *Service) publish(ctx context.Context, sessionID, eventType string, data interface{}) {
	events.PublishAll(ctx, s.hub, eventType, data, events.SessionTopic(sessionID), events.TopicStaff)
}

// cancelHold releases a card hold, logging failures
func (s *Service) cancelHold(ctx context.Context, intentID string) {
	if intentID == "" {
		return
	}
	if _, err := s.gateway.Cancel(ctx, intentID); err != nil {
		slog.WarnContext(ctx, "failed to cancel card hold", "intent_id", intentID, "error", err)
	}
}

// StartIndividualPayment locks the guest's unpaid orders to a new payment and
// places a card hold for their total plus tip. A pending payment the guest
// started earlier is abandoned and its orders are re-locked to the new one.
func (s *Service) StartIndividualPayment(ctx context.Context, sessionID, guestID string, tipCents int64, tipPercent float64) (models.StartPaymentResponse, error) {
	if tipCents < 0 || tipPercent < 0 {
		return models.StartPaymentResponse{}, ErrInvalidAmount
	}
	paymentID, err := auth.GenerateID(16)
	if err != nil {
		return models.StartPaymentResponse{}, fmt.Errorf("failed to generate payment ID: %w", err)
	}

	now := s.now()
	var amount, tip int64
	var abandoned []string

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := LockOpenSession(ctx, tx, sessionID, now); err != nil {
			return err
		}

		type pending struct{ id, intentID string }
		var previous []pending
		rows, err := tx.QueryContext(ctx, `
			SELECT id, COALESCE(intent_id, '') FROM payment
			WHERE session_id = $1 AND guest_id = $2 AND status = 'pending'`,
			sessionID, guestID)
		if err != nil {
			return fmt.Errorf("failed to query pending payments: %w", err)
		}
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.intentID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan payment: %w", err)
			}
			previous = append(previous, p)
		}
		rows.Close()

		for _, p := range previous {
			res, err := tx.ExecContext(ctx, `
				UPDATE payment SET status = 'cancelled', updated_at = $1
				WHERE id = $2 AND status = 'pending'`, now, p.id)
			if err != nil {
				return fmt.Errorf("failed to abandon payment: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET payment_id = NULL, updated_at = $1
				WHERE payment_id = $2 AND paid_at IS NULL`, now, p.id); err != nil {
				return fmt.Errorf("failed to release orders: %w", err)
			}
			abandoned = append(abandoned, p.intentID)
		}

		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_cents), 0) FROM orders
			WHERE session_id = $1 AND guest_id = $2 AND `+unsettled,
			sessionID, guestID,
		).Scan(&amount); err != nil {
			return fmt.Errorf("failed to compute amount: %w", err)
		}
		if amount <= 0 {
			return ErrNothingToPay
		}
		tip = ResolveTip(amount, tipCents, tipPercent)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payment (id, session_id, guest_id, amount_cents, tip_cents, currency, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $7)`,
			paymentID, sessionID, guestID, amount, tip, s.currency, now,
		); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET payment_id = $1, updated_at = $2
			WHERE session_id = $3 AND guest_id = $4 AND `+unsettled,
			paymentID, now, sessionID, guestID,
		); err != nil {
			return fmt.Errorf("failed to lock orders: %w", err)
		}

		var locked int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_cents), 0) FROM orders WHERE payment_id = $1`, paymentID,
		).Scan(&locked); err != nil {
			return fmt.Errorf("failed to verify locked orders: %w", err)
		}
		if locked != amount {
			return ErrConflict
		}

		return nil
	})
	if err != nil {
		return models.StartPaymentResponse{}, err
	}

	for _, intentID := range abandoned {
		s.cancelHold(ctx, intentID)
	}

	intent, err := s.gateway.CreateHold(ctx, payments.HoldRequest{
		AmountCents: amount + tip,
		Currency:    s.currency,
		Description: "Table order",
		Metadata: map[string]string{
			"payment_id": paymentID,
			"session_id": sessionID,
		},
	})
	if err != nil {
		s.failPayment(ctx, paymentID, err.Error())
		return models.StartPaymentResponse{}, fmt.Errorf("failed to place card hold: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE payment SET intent_id = $1, updated_at = $2 WHERE id = $3`,
		intent.ID, s.now(), paymentID,
	); err != nil {
		s.cancelHold(ctx, intent.ID)
		s.failPayment(ctx, paymentID, "failed to record intent")
		return models.StartPaymentResponse{}, fmt.Errorf("failed to record intent: %w", err)
	}

	slog.InfoContext(ctx, "individual payment started",
		"payment_id", paymentID, "session_id", sessionID, "amount", amount, "tip", tip)
	s.publish(ctx, sessionID, events.TypePaymentUpdated, map[string]string{"payment_id": paymentID, "status": models.PaymentPending})

	return models.StartPaymentResponse{
		PaymentID:    paymentID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  amount,
		TipCents:     tip,
		Currency:     s.currency,
	}, nil
}

// failPayment marks a payment failed and releases its orders. Reports
// whether this call made the change.
func (s *Service) failPayment(ctx context.Context, paymentID, reason string) bool {
	var changed bool
	now := s.now()
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment SET status = 'failed', failure_reason = $1, updated_at = $2
			WHERE id = $3 AND status IN ('pending', 'authorized')`,
			reason, now, paymentID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		changed = true
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET payment_id = NULL, updated_at = $1
			WHERE payment_id = $2 AND paid_at IS NULL`, now, paymentID)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to mark payment failed", "payment_id", paymentID, "error", err)
		return false
	}
	return changed
}

func (s *Service) paymentByIntent(ctx context.Context, intentID string) (models.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, paymentSelect+` WHERE intent_id = $1`, intentID).Scan)
}

func (s *Service) GetPayment(ctx context.Context, paymentID string) (models.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, paymentSelect+` WHERE id = $1`, paymentID).Scan)
}

const paymentSelect = `
	SELECT id, session_id, guest_id, COALESCE(intent_id, ''), amount_cents, tip_cents,
	       currency, status, failure_reason, created_at, updated_at
	FROM payment`

func scanPayment(scan func(dest ...any) error) (models.Payment, error) {
	var p models.Payment
	err := scan(&p.ID, &p.SessionID, &p.GuestID, &p.IntentID, &p.AmountCents, &p.TipCents,
		&p.Currency, &p.Status, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Payment{}, ErrNotFound
	}
	if err != nil {
		return models.Payment{}, fmt.Errorf("failed to load payment: %w", err)
	}
	return p, nil
}

// MarkAuthorized records that the card hold behind intentID is in place.
// Individual payments are captured at once; pool contributions capture the
// whole pool when it becomes fully funded. Safe to call more than once.
func (s *Service) MarkAuthorized(ctx context.Context, intentID string) error {
	p, err := s.paymentByIntent(ctx, intentID)
	if err == nil {
		return s.settlePayment(ctx, p)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	c, err := s.contributionByIntent(ctx, intentID)
	if err != nil {
		return err
	}
	return s.authorizeContribution(ctx, c)
}

func (s *Service) settlePayment(ctx context.Context, p models.Payment) error {
	switch p.Status {
	case models.PaymentPending:
	case models.PaymentCancelled, models.PaymentFailed:
		// authorized after being abandoned
		s.cancelHold(ctx, p.IntentID)
		return nil
	default:
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payment SET status = 'authorized', updated_at = $1
		WHERE id = $2 AND status = 'pending'`, s.now(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to authorize payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	return s.capturePayment(ctx, p)
}

// capturePayment captures an authorized payment and marks its orders paid.
// A failed capture fails the payment and releases its orders.
func (s *Service) capturePayment(ctx context.Context, p models.Payment) error {
	total := p.AmountCents + p.TipCents
	if _, err := s.gateway.Capture(ctx, p.IntentID, total); err != nil {
		s.failPayment(ctx, p.ID, err.Error())
		s.cancelHold(ctx, p.IntentID)
		s.publish(ctx, p.SessionID, events.TypePaymentUpdated, map[string]string{"payment_id": p.ID, "status": models.PaymentFailed})
		return fmt.Errorf("failed to capture payment %s: %w", p.ID, err)
	}
	return s.recordCaptured(ctx, p)
}

// recordCaptured stores a capture the gateway has already made
func (s *Service) recordCaptured(ctx context.Context, p models.Payment) error {
	total := p.AmountCents + p.TipCents
	now := s.now()
	var changed bool
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment SET status = 'captured', updated_at = $1
			WHERE id = $2 AND status = 'authorized'`, now, p.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		changed = true
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET paid_at = $1, paid_method = 'card', updated_at = $1
			WHERE payment_id = $2 AND paid_at IS NULL`, now, p.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record captured payment: %w", err)
	}
	if !changed {
		return nil
	}

	slog.InfoContext(ctx, "payment captured", "payment_id", p.ID, "amount", total)
	s.metrics.PaymentCaptured(ctx, models.MethodCard, total)
	s.publish(ctx, p.SessionID, events.TypePaymentUpdated, map[string]string{"payment_id": p.ID, "status": models.PaymentCaptured})
	return nil
}

// reconcileAuthorized finishes a payment left authorized by an interrupted
// capture, following what the gateway reports for its intent. It returns
// the payment's status afterwards.
func (s *Service) reconcileAuthorized(ctx context.Context, p models.Payment) (string, error) {
	intent, err := s.gateway.GetIntent(ctx, p.IntentID)
	if err != nil {
		return p.Status, fmt.Errorf("failed to read intent %s: %w", p.IntentID, err)
	}

	switch {
	case intent.Status == payments.StatusSucceeded:
		err = s.recordCaptured(ctx, p)
	case intent.Authorized():
		err = s.capturePayment(ctx, p)
	case intent.Failed():
		if s.failPayment(ctx, p.ID, intent.FailureReason()) {
			s.publish(ctx, p.SessionID, events.TypePaymentUpdated, map[string]string{"payment_id": p.ID, "status": models.PaymentFailed})
		}
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to reconcile authorized payment", "payment_id", p.ID, "intent_status", intent.Status, "error", err)
	}

	current, gerr := s.GetPayment(ctx, p.ID)
	if gerr != nil {
		return p.Status, gerr
	}
	return current.Status, nil
}

// MarkFailed records a declined or cancelled card for intentID
func (s *Service) MarkFailed(ctx context.Context, intentID, reason string) error {
	p, err := s.paymentByIntent(ctx, intentID)
	if err == nil {
		if s.failPayment(ctx, p.ID, reason) {
			slog.InfoContext(ctx, "payment failed", "payment_id", p.ID, "reason", reason)
			s.publish(ctx, p.SessionID, events.TypePaymentUpdated, map[string]string{"payment_id": p.ID, "status": models.PaymentFailed})
		}
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	c, err := s.contributionByIntent(ctx, intentID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pool_contribution SET status = 'failed'
		WHERE id = $1 AND status IN ('pending', 'authorized')`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to mark contribution failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "pool contribution failed", "contribution_id", c.ID, "reason", reason)
		sessionID, err := s.poolSession(ctx, c.PoolID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load pool session", "pool_id", c.PoolID, "error", err)
			return nil
		}
		s.publish(ctx, sessionID, events.TypePoolUpdated, map[string]string{"pool_id": c.PoolID})
	}
	return nil
}

// SyncIntent re-reads an intent at the gateway and applies its state. Used
// when a client reports completion and by the sweeper for stale payments.
func (s *Service) SyncIntent(ctx context.Context, intentID string) (payments.Intent, error) {
	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return payments.Intent{}, err
	}
	switch {
	case intent.Authorized():
		err = s.MarkAuthorized(ctx, intentID)
	case intent.Failed():
		err = s.MarkFailed(ctx, intentID, intent.FailureReason())
	}
	return intent, err
}

// RecordCash settles every remaining unlocked order of a session as paid in
// cash collected by staffID and returns the amount collected.
func (s *Service) RecordCash(ctx context.Context, sessionID, staffID string) (int64, error) {
	if staffID == "" {
		return 0, ErrStaffRequired
	}
	now := s.now()
	var amount int64
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := LockOpenSession(ctx, tx, sessionID, now); err != nil {
			return err
		}
		var count int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(total_cents), 0) FROM orders
			WHERE session_id = $1 AND `+unsettled, sessionID,
		).Scan(&count, &amount); err != nil {
			return fmt.Errorf("failed to compute cash amount: %w", err)
		}
		if count == 0 {
			return ErrNothingToPay
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET paid_at = $1, paid_method = 'cash', collected_by = $2, updated_at = $1
			WHERE session_id = $3 AND `+unsettled, now, staffID, sessionID)
		if err != nil {
			return fmt.Errorf("failed to record cash: %w", err)
		}
		if n, _ := res.RowsAffected(); n != count {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "cash recorded", "session_id", sessionID, "amount", amount, "staff_id", staffID)
	s.metrics.PaymentCaptured(ctx, models.MethodCash, amount)
	s.publish(ctx, sessionID, events.TypePaymentUpdated, map[string]interface{}{
		"method":       models.MethodCash,
		"amount_cents": amount,
		"collected_by": staffID,
	})
	return amount, nil
}

// Refund returns a captured individual payment in full
func (s *Service) Refund(ctx context.Context, paymentID string) (models.Payment, error) {
	p, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return models.Payment{}, err
	}
	if p.Status != models.PaymentCaptured {
		return models.Payment{}, ErrNotRefundable
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payment SET status = 'refunded', updated_at = $1
		WHERE id = $2 AND status = 'captured'`, s.now(), paymentID)
	if err != nil {
		return models.Payment{}, fmt.Errorf("failed to mark refund: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Payment{}, ErrNotRefundable
	}

	if _, err := s.gateway.Refund(ctx, p.IntentID, p.AmountCents+p.TipCents); err != nil {
		if _, rerr := s.db.ExecContext(ctx, `
			UPDATE payment SET status = 'captured' WHERE id = $1 AND status = 'refunded'`, paymentID); rerr != nil {
			slog.ErrorContext(ctx, "failed to revert refund state", "payment_id", paymentID, "error", rerr)
		}
		return models.Payment{}, fmt.Errorf("failed to refund payment: %w", err)
	}

	slog.InfoContext(ctx, "payment refunded", "payment_id", paymentID, "amount", p.AmountCents+p.TipCents)
	s.publish(ctx, p.SessionID, events.TypePaymentUpdated, map[string]string{"payment_id": p.ID, "status": models.PaymentRefunded})
	return s.GetPayment(ctx, paymentID)
}
