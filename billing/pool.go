// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/payments"
)

// OpenPool locks every unpaid, unlocked order of the session to a new pool
// whose target is their total. Only one pool per session can be active.
func (s *Service) OpenPool(ctx context.Context, sessionID, guestID string) (models.PaymentPool, error) {
	poolID, err := auth.GenerateID(16)
	if err != nil {
		return models.PaymentPool{}, fmt.Errorf("failed to generate pool ID: %w", err)
	}

	now := s.now()
	pool := models.PaymentPool{
		ID:        poolID,
		SessionID: sessionID,
		OpenedBy:  guestID,
		Currency:  s.currency,
		Status:    models.PoolOpen,
		ExpiresAt: now.Add(s.poolTTL),
		CreatedAt: now,
	}

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := LockOpenSession(ctx, tx, sessionID, now); err != nil {
			return err
		}

		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM payment_pool
			WHERE session_id = $1 AND status IN ('open', 'capturing')`, sessionID,
		).Scan(&active); err != nil {
			return fmt.Errorf("failed to check pools: %w", err)
		}
		if active > 0 {
			return ErrPoolExists
		}

		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_cents), 0) FROM orders
			WHERE session_id = $1 AND `+unsettled, sessionID,
		).Scan(&pool.TargetCents); err != nil {
			return fmt.Errorf("failed to compute pool target: %w", err)
		}
		if pool.TargetCents <= 0 {
			return ErrNothingToPay
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payment_pool (id, session_id, opened_by, target_cents, currency, status, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, 'open', $6, $7)`,
			pool.ID, sessionID, guestID, pool.TargetCents, s.currency, pool.ExpiresAt, now,
		); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrPoolExists
			}
			return fmt.Errorf("failed to create pool: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET pool_id = $1, updated_at = $2
			WHERE session_id = $3 AND `+unsettled, pool.ID, now, sessionID,
		); err != nil {
			return fmt.Errorf("failed to lock orders: %w", err)
		}

		var locked int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_cents), 0) FROM orders WHERE pool_id = $1`, pool.ID,
		).Scan(&locked); err != nil {
			return fmt.Errorf("failed to verify locked orders: %w", err)
		}
		if locked != pool.TargetCents {
			return ErrConflict
		}

		return nil
	})
	if err != nil {
		return models.PaymentPool{}, err
	}

	slog.InfoContext(ctx, "payment pool opened", "pool_id", pool.ID, "session_id", sessionID, "target", pool.TargetCents)
	s.publish(ctx, sessionID, events.TypePoolUpdated, map[string]string{"pool_id": pool.ID, "status": pool.Status})
	return pool, nil
}

// Contribute places a card hold for one guest's share of the open pool.
// Each guest contributes once per pool; a failed or cancelled contribution
// may be replaced.
func (s *Service) Contribute(ctx context.Context, sessionID, guestID string, amountCents, tipCents int64) (models.ContributeResponse, error) {
	if amountCents <= 0 || tipCents < 0 {
		return models.ContributeResponse{}, ErrInvalidAmount
	}
	contributionID, err := auth.GenerateID(16)
	if err != nil {
		return models.ContributeResponse{}, fmt.Errorf("failed to generate contribution ID: %w", err)
	}

	now := s.now()
	var poolID string
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := LockOpenSession(ctx, tx, sessionID, now); err != nil {
			return err
		}

		var target int64
		var pool models.PaymentPool
		err := tx.QueryRowContext(ctx, `
			SELECT id, target_cents, expires_at FROM payment_pool
			WHERE session_id = $1 AND status = 'open'`, sessionID,
		).Scan(&pool.ID, &target, &pool.ExpiresAt)
		if err == sql.ErrNoRows {
			return ErrNoPool
		}
		if err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}
		if now.After(pool.ExpiresAt) {
			return ErrPoolClosed
		}
		poolID = pool.ID

		var covered int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(amount_cents), 0) FROM pool_contribution
			WHERE pool_id = $1 AND status IN ('authorized', 'captured')`, poolID,
		).Scan(&covered); err != nil {
			return fmt.Errorf("failed to sum contributions: %w", err)
		}
		if remaining := target - covered; amountCents > remaining {
			return fmt.Errorf("%w: only %d still needed", ErrInvalidAmount, remaining)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM pool_contribution
			WHERE pool_id = $1 AND guest_id = $2 AND status IN ('failed', 'cancelled')`,
			poolID, guestID,
		); err != nil {
			return fmt.Errorf("failed to clear previous contribution: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pool_contribution (id, pool_id, guest_id, amount_cents, tip_cents, status, created_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6)`,
			contributionID, poolID, guestID, amountCents, tipCents, now,
		); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyContributed
			}
			return fmt.Errorf("failed to create contribution: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.ContributeResponse{}, err
	}

	intent, err := s.gateway.CreateHold(ctx, payments.HoldRequest{
		AmountCents: amountCents + tipCents,
		Currency:    s.currency,
		Description: "Shared table bill",
		Metadata: map[string]string{
			"contribution_id": contributionID,
			"pool_id":         poolID,
			"session_id":      sessionID,
		},
	})
	if err != nil {
		if _, uerr := s.db.ExecContext(ctx, `
			UPDATE pool_contribution SET status = 'failed' WHERE id = $1 AND status = 'pending'`, contributionID); uerr != nil {
			slog.ErrorContext(ctx, "failed to mark contribution failed", "contribution_id", contributionID, "error", uerr)
		}
		return models.ContributeResponse{}, fmt.Errorf("failed to place card hold: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE pool_contribution SET intent_id = $1 WHERE id = $2`, intent.ID, contributionID); err != nil {
		s.cancelHold(ctx, intent.ID)
		return models.ContributeResponse{}, fmt.Errorf("failed to record intent: %w", err)
	}

	// The pool may have closed while the hold was being placed
	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM pool_contribution WHERE id = $1`, contributionID).Scan(&status); err != nil {
		slog.ErrorContext(ctx, "failed to re-read contribution", "contribution_id", contributionID, "error", err)
	} else if status == models.ContributionCancelled {
		s.cancelHold(ctx, intent.ID)
		return models.ContributeResponse{}, ErrPoolClosed
	}

	slog.InfoContext(ctx, "pool contribution started",
		"contribution_id", contributionID, "pool_id", poolID, "amount", amountCents, "tip", tipCents)
	s.publish(ctx, sessionID, events.TypePoolUpdated, map[string]string{"pool_id": poolID})

	return models.ContributeResponse{
		ContributionID: contributionID,
		IntentID:       intent.ID,
		ClientSecret:   intent.ClientSecret,
		AmountCents:    amountCents,
		TipCents:       tipCents,
		Currency:       s.currency,
	}, nil
}

const contributionSelect = `
	SELECT c.id, c.pool_id, c.guest_id, g.name, COALESCE(c.intent_id, ''), c.amount_cents, c.tip_cents,
	       c.captured_cents, c.status, c.authorized_at, c.created_at
	FROM pool_contribution c
	JOIN guest g ON g.id = c.guest_id`

func scanContribution(scan func(dest ...any) error) (models.PoolContribution, error) {
	var c models.PoolContribution
	err := scan(&c.ID, &c.PoolID, &c.GuestID, &c.GuestName, &c.IntentID, &c.AmountCents, &c.TipCents,
		&c.CapturedCents, &c.Status, &c.AuthorizedAt, &c.CreatedAt)
	return c, err
}

func (s *Service) contributionByIntent(ctx context.Context, intentID string) (models.PoolContribution, error) {
	c, err := scanContribution(s.db.QueryRowContext(ctx, contributionSelect+` WHERE c.intent_id = $1`, intentID).Scan)
	if err == sql.ErrNoRows {
		return models.PoolContribution{}, ErrNotFound
	}
	if err != nil {
		return models.PoolContribution{}, fmt.Errorf("failed to load contribution: %w", err)
	}
	return c, nil
}

func (s *Service) poolSession(ctx context.Context, poolID string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM payment_pool WHERE id = $1`, poolID).Scan(&sessionID)
	return sessionID, err
}

func (s *Service) authorizeContribution(ctx context.Context, c models.PoolContribution) error {
	switch c.Status {
	case models.ContributionPending:
	case models.ContributionCancelled, models.ContributionFailed:
		// authorized after the pool no longer needed it
		s.cancelHold(ctx, c.IntentID)
		return nil
	default:
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pool_contribution SET status = 'authorized', authorized_at = $1
		WHERE id = $2 AND status = 'pending'`, s.now(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to authorize contribution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	var status, sessionID string
	if err := s.db.QueryRowContext(ctx, `SELECT status, session_id FROM payment_pool WHERE id = $1`, c.PoolID).Scan(&status, &sessionID); err != nil {
		return fmt.Errorf("failed to load pool: %w", err)
	}
	s.publish(ctx, sessionID, events.TypePoolUpdated, map[string]string{"pool_id": c.PoolID})

	switch status {
	case models.PoolOpen:
		return s.CapturePoolIfFunded(ctx, c.PoolID)
	case models.PoolCapturing:
		// the capturing call releases holds it did not need
		return nil
	default:
		s.releaseContribution(ctx, c.ID, c.IntentID)
		return nil
	}
}

// releaseContribution cancels a contribution that is not needed any more
func (s *Service) releaseContribution(ctx context.Context, contributionID, intentID string) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pool_contribution SET status = 'cancelled'
		WHERE id = $1 AND status IN ('pending', 'authorized')`, contributionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to cancel contribution", "contribution_id", contributionID, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.cancelHold(ctx, intentID)
	}
}

// CapturePoolIfFunded captures the pool once authorized contributions cover
// its target. The open -> capturing transition is a conditional update, so
// exactly one concurrent caller performs the captures.
func (s *Service) CapturePoolIfFunded(ctx context.Context, poolID string) error {
	var target, alreadyCaptured int64
	var won bool

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx, `
			SELECT target_cents, captured_cents, status FROM payment_pool WHERE id = $1`, poolID,
		).Scan(&target, &alreadyCaptured, &status); err != nil {
			return fmt.Errorf("failed to load pool: %w", err)
		}
		if status != models.PoolOpen {
			return nil
		}

		var covered int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(amount_cents), 0) FROM pool_contribution
			WHERE pool_id = $1 AND status IN ('authorized', 'captured')`, poolID,
		).Scan(&covered); err != nil {
			return fmt.Errorf("failed to sum contributions: %w", err)
		}
		if covered < target {
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE payment_pool SET status = 'capturing' WHERE id = $1 AND status = 'open'`, poolID)
		if err != nil {
			return fmt.Errorf("failed to start pool capture: %w", err)
		}
		n, _ := res.RowsAffected()
		won = n == 1
		return nil
	})
	if err != nil || !won {
		return err
	}

	return s.capturePool(ctx, poolID, target-alreadyCaptured)
}

type heldContribution struct {
	id       string
	intentID string
	amount   int64
	tip      int64
}

func (s *Service) capturePool(ctx context.Context, poolID string, remaining int64) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(intent_id, ''), amount_cents, tip_cents FROM pool_contribution
		WHERE pool_id = $1 AND status = 'authorized'
		ORDER BY authorized_at, id`, poolID)
	if err != nil {
		s.reopenPool(ctx, poolID)
		return fmt.Errorf("failed to load contributions: %w", err)
	}
	var held []heldContribution
	for rows.Next() {
		var h heldContribution
		if err := rows.Scan(&h.id, &h.intentID, &h.amount, &h.tip); err != nil {
			rows.Close()
			s.reopenPool(ctx, poolID)
			return fmt.Errorf("failed to scan contribution: %w", err)
		}
		held = append(held, h)
	}
	rows.Close()

	for _, h := range held {
		if remaining <= 0 {
			s.releaseContribution(ctx, h.id, h.intentID)
			continue
		}

		share := min(h.amount, remaining)
		if _, err := s.gateway.Capture(ctx, h.intentID, share+h.tip); err != nil {
			slog.WarnContext(ctx, "pool contribution capture failed",
				"pool_id", poolID, "contribution_id", h.id, "error", err)
			s.cancelHold(ctx, h.intentID)
			if err := s.markContribution(ctx, h.id, models.ContributionAuthorized, models.ContributionFailed); err != nil {
				// the next capture attempt fails on the cancelled hold and retries the write
				s.reopenPool(ctx, poolID)
				return fmt.Errorf("failed to mark contribution %s failed: %w", h.id, err)
			}
			continue
		}

		err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				UPDATE pool_contribution SET status = 'captured', captured_cents = $1 WHERE id = $2`,
				share, h.id); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE payment_pool SET captured_cents = captured_cents + $1 WHERE id = $2`,
				share, poolID)
			return err
		})
		if err != nil {
			// money moved; keep going so the pool total stays consistent
			slog.ErrorContext(ctx, "failed to record pool capture", "pool_id", poolID, "contribution_id", h.id, "error", err)
		}
		remaining -= share
		s.metrics.PaymentCaptured(ctx, models.MethodPool, share+h.tip)
	}

	sessionID, err := s.poolSession(ctx, poolID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load pool session", "pool_id", poolID, "error", err)
	}

	if remaining > 0 {
		s.reopenPool(ctx, poolID)
		slog.WarnContext(ctx, "pool short after capture failures", "pool_id", poolID, "remaining", remaining)
		s.publish(ctx, sessionID, events.TypePoolUpdated, map[string]string{"pool_id": poolID, "status": models.PoolOpen})
		return nil
	}

	now := s.now()
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE payment_pool SET status = 'captured', completed_at = $1
			WHERE id = $2 AND status = 'capturing'`, now, poolID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE orders SET paid_at = $1, paid_method = 'pool', updated_at = $1
			WHERE pool_id = $2 AND paid_at IS NULL`, now, poolID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to complete pool: %w", err)
	}

	// holds placed or authorized while capturing are not needed
	leftovers, err := s.openContributions(ctx, poolID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list leftover contributions", "pool_id", poolID, "error", err)
	}
	for _, h := range leftovers {
		s.releaseContribution(ctx, h.id, h.intentID)
	}

	slog.InfoContext(ctx, "payment pool captured", "pool_id", poolID, "session_id", sessionID)
	s.metrics.PoolCaptured(ctx)
	s.publish(ctx, sessionID, events.TypePoolUpdated, map[string]string{"pool_id": poolID, "status": models.PoolCaptured})
	return nil
}

func (s *Service) reopenPool(ctx context.Context, poolID string) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE payment_pool SET status = 'open' WHERE id = $1 AND status = 'capturing'`, poolID); err != nil {
		slog.ErrorContext(ctx, "failed to reopen pool", "pool_id", poolID, "error", err)
	}
}

func (s *Service) openContributions(ctx context.Context, poolID string) ([]heldContribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(intent_id, ''), amount_cents, tip_cents FROM pool_contribution
		WHERE pool_id = $1 AND status IN ('pending', 'authorized')`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var held []heldContribution
	for rows.Next() {
		var h heldContribution
		if err := rows.Scan(&h.id, &h.intentID, &h.amount, &h.tip); err != nil {
			return nil, err
		}
		held = append(held, h)
	}
	return held, rows.Err()
}

func (s *Service) capturedContributions(ctx context.Context, poolID string) ([]heldContribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(intent_id, ''), captured_cents, tip_cents FROM pool_contribution
		WHERE pool_id = $1 AND status = 'captured'`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var held []heldContribution
	for rows.Next() {
		var h heldContribution
		if err := rows.Scan(&h.id, &h.intentID, &h.amount, &h.tip); err != nil {
			return nil, err
		}
		held = append(held, h)
	}
	return held, rows.Err()
}

// markContribution moves a contribution between two states
func (s *Service) markContribution(ctx context.Context, contributionID, from, to string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pool_contribution SET status = $1 WHERE id = $2 AND status = $3`, to, contributionID, from)
	return err
}

// CancelPool closes an open pool, releases its orders and every card hold.
func (s *Service) CancelPool(ctx context.Context, poolID string) error {
	return s.releasePool(ctx, poolID, models.PoolCancelled)
}

func (s *Service) releasePool(ctx context.Context, poolID, status string) error {
	now := s.now()
	var sessionID string
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment_pool SET status = $1, completed_at = $2
			WHERE id = $3 AND status = 'open'`, status, now, poolID)
		if err != nil {
			return fmt.Errorf("failed to close pool: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrPoolClosed
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET pool_id = NULL, updated_at = $1
			WHERE pool_id = $2 AND paid_at IS NULL`, now, poolID); err != nil {
			return fmt.Errorf("failed to release orders: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT session_id FROM payment_pool WHERE id = $1`, poolID).Scan(&sessionID)
	})
	if err != nil {
		return err
	}

	held, err := s.openContributions(ctx, poolID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list pool contributions", "pool_id", poolID, "error", err)
	}
	for _, h := range held {
		s.releaseContribution(ctx, h.id, h.intentID)
	}

	// a pool reopened after a partial capture may already hold money
	captured, err := s.capturedContributions(ctx, poolID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list captured contributions", "pool_id", poolID, "error", err)
	}
	for _, h := range captured {
		if _, err := s.gateway.Refund(ctx, h.intentID, h.amount+h.tip); err != nil {
			slog.ErrorContext(ctx, "failed to refund pool contribution", "contribution_id", h.id, "error", err)
			continue
		}
		if err := s.markContribution(ctx, h.id, models.ContributionCaptured, models.ContributionCancelled); err != nil {
			slog.ErrorContext(ctx, "failed to mark refunded contribution", "contribution_id", h.id, "error", err)
		}
	}

	slog.InfoContext(ctx, "payment pool closed", "pool_id", poolID, "status", status)
	s.publish(ctx, sessionID, events.TypePoolUpdated, map[string]string{"pool_id": poolID, "status": status})
	return nil
}

// PoolStatus returns the session's most recent pool with its contributions
func (s *Service) PoolStatus(ctx context.Context, sessionID string) (models.PoolView, error) {
	var view models.PoolView
	p := &view.Pool
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, opened_by, target_cents, captured_cents, currency, status,
		       expires_at, created_at, completed_at
		FROM payment_pool WHERE session_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, sessionID,
	).Scan(&p.ID, &p.SessionID, &p.OpenedBy, &p.TargetCents, &p.CapturedCents, &p.Currency, &p.Status,
		&p.ExpiresAt, &p.CreatedAt, &p.CompletedAt)
	if err == sql.ErrNoRows {
		return models.PoolView{}, ErrNoPool
	}
	if err != nil {
		return models.PoolView{}, fmt.Errorf("failed to load pool: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, contributionSelect+` WHERE c.pool_id = $1 ORDER BY c.created_at, c.id`, p.ID)
	if err != nil {
		return models.PoolView{}, fmt.Errorf("failed to load contributions: %w", err)
	}
	defer rows.Close()

	view.Contributions = []models.PoolContribution{}
	contributing := map[string]bool{}
	for rows.Next() {
		c, err := scanContribution(rows.Scan)
		if err != nil {
			return models.PoolView{}, fmt.Errorf("failed to scan contribution: %w", err)
		}
		switch c.Status {
		case models.ContributionAuthorized, models.ContributionCaptured:
			view.AuthorizedCents += c.AmountCents
			contributing[c.GuestID] = true
		case models.ContributionPending:
			contributing[c.GuestID] = true
		}
		view.Contributions = append(view.Contributions, c)
	}
	if err := rows.Err(); err != nil {
		return models.PoolView{}, err
	}
	rows.Close()

	view.RemainingCents = max(p.TargetCents-view.AuthorizedCents, 0)
	if p.Status != models.PoolOpen {
		view.RemainingCents = 0
	}

	var guests int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guest WHERE session_id = $1`, sessionID).Scan(&guests); err != nil {
		return models.PoolView{}, fmt.Errorf("failed to count guests: %w", err)
	}
	view.SuggestedCents = SplitEvenly(view.RemainingCents, guests-len(contributing))
	return view, nil
}

// ActivePoolID returns the id of the session's open pool
func (s *Service) ActivePoolID(ctx context.Context, sessionID string) (string, string, error) {
	var id, openedBy string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, opened_by FROM payment_pool WHERE session_id = $1 AND status = 'open'`, sessionID,
	).Scan(&id, &openedBy)
	if err == sql.ErrNoRows {
		return "", "", ErrNoPool
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load pool: %w", err)
	}
	return id, openedBy, nil
}
