// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	"github.com/danielhkuo/tablepay/models"
)

const sweepLockKey = "tablepay:lock:sweep"

type SweeperConfig struct {
	PaymentTTL     time.Duration
	SessionIdleTTL time.Duration
	Interval       time.Duration
	// Locker keeps concurrent API instances from sweeping at the same time.
	// Nil means a single instance.
	Locker *redislock.Client
}

// Sweeper periodically expires abandoned pools, fails stale card payments and
// closes idle sessions that have nothing left to pay.
type Sweeper struct {
	svc *Service
	cfg SweeperConfig
}

func NewSweeper(svc *Service, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sweeper{svc: svc, cfg: cfg}
}

// Run sweeps every interval until ctx is cancelled
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce runs a single pass. With a locker configured, a pass that cannot
// obtain the lock does nothing.
func (w *Sweeper) SweepOnce(ctx context.Context) (models.SweepResult, error) {
	var result models.SweepResult

	if w.cfg.Locker != nil {
		lock, err := w.cfg.Locker.Obtain(ctx, sweepLockKey, w.cfg.Interval, nil)
		if err == redislock.ErrNotObtained {
			slog.DebugContext(ctx, "sweep lock held elsewhere")
			return result, nil
		} else if err != nil {
			return result, fmt.Errorf("failed to obtain sweep lock: %w", err)
		}
		defer func() {
			_ = lock.Release(ctx)
		}()
	}

	var errs []error
	var err error
	if result.ExpiredPools, err = w.sweepPools(ctx); err != nil {
		errs = append(errs, err)
	}
	if result.FailedPayments, result.RecoveredPayments, err = w.sweepPayments(ctx); err != nil {
		errs = append(errs, err)
	}
	if result.ClosedSessions, err = w.sweepSessions(ctx); err != nil {
		errs = append(errs, err)
	}

	w.svc.metrics.Swept(ctx, "pools", result.ExpiredPools)
	w.svc.metrics.Swept(ctx, "payments", result.FailedPayments)
	w.svc.metrics.Swept(ctx, "recovered_payments", result.RecoveredPayments)
	w.svc.metrics.Swept(ctx, "sessions", result.ClosedSessions)
	if result != (models.SweepResult{}) {
		slog.InfoContext(ctx, "sweep finished",
			"expired_pools", result.ExpiredPools,
			"failed_payments", result.FailedPayments,
			"recovered_payments", result.RecoveredPayments,
			"closed_sessions", result.ClosedSessions)
	}
	return result, errors.Join(errs...)
}

func (w *Sweeper) sweepPools(ctx context.Context) (int, error) {
	rows, err := w.svc.db.QueryContext(ctx, `SELECT id, expires_at FROM payment_pool WHERE status = 'open'`)
	if err != nil {
		return 0, fmt.Errorf("failed to list open pools: %w", err)
	}
	type openPool struct {
		id        string
		expiresAt time.Time
	}
	var pools []openPool
	for rows.Next() {
		var p openPool
		if err := rows.Scan(&p.id, &p.expiresAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	rows.Close()

	now := w.svc.now()
	expired := 0
	for _, p := range pools {
		if now.Before(p.expiresAt) {
			// retry pools left funded by an earlier capture failure
			if err := w.svc.CapturePoolIfFunded(ctx, p.id); err != nil {
				slog.WarnContext(ctx, "pool capture retry failed", "pool_id", p.id, "error", err)
			}
			continue
		}
		err := w.svc.releasePool(ctx, p.id, models.PoolExpired)
		if errors.Is(err, ErrPoolClosed) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// sweepPayments fails card payments stuck in pending and finishes those left
// authorized by an interrupted capture. It returns how many were failed and
// how many were recovered as captured.
func (w *Sweeper) sweepPayments(ctx context.Context) (failed, recovered int, err error) {
	if w.cfg.PaymentTTL <= 0 {
		return 0, 0, nil
	}
	rows, err := w.svc.db.QueryContext(ctx, paymentSelect+` WHERE status IN ('pending', 'authorized')`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list in-flight payments: %w", err)
	}
	var stale []models.Payment
	cutoff := w.svc.now().Add(-w.cfg.PaymentTTL)
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan payment: %w", err)
		}
		// authorized payments age from the authorization, pending ones from creation
		since := p.CreatedAt
		if p.Status == models.PaymentAuthorized {
			since = p.UpdatedAt
		}
		if since.Before(cutoff) {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("failed to list in-flight payments: %w", err)
	}
	rows.Close()

	for _, p := range stale {
		if p.Status == models.PaymentAuthorized {
			status, err := w.svc.reconcileAuthorized(ctx, p)
			if err != nil {
				slog.WarnContext(ctx, "failed to reconcile payment", "payment_id", p.ID, "error", err)
				continue
			}
			switch status {
			case models.PaymentCaptured:
				recovered++
			case models.PaymentFailed:
				failed++
			}
			continue
		}

		if p.IntentID != "" {
			// the webhook may have been lost
			if _, err := w.svc.SyncIntent(ctx, p.IntentID); err != nil {
				slog.WarnContext(ctx, "failed to sync stale payment", "payment_id", p.ID, "error", err)
			}
		}
		if w.svc.failPayment(ctx, p.ID, "expired") {
			w.svc.cancelHold(ctx, p.IntentID)
			failed++
		}
	}
	return failed, recovered, nil
}

func (w *Sweeper) sweepSessions(ctx context.Context) (int, error) {
	if w.cfg.SessionIdleTTL <= 0 {
		return 0, nil
	}
	rows, err := w.svc.db.QueryContext(ctx, `SELECT id, last_active_at FROM table_session WHERE status = 'open'`)
	if err != nil {
		return 0, fmt.Errorf("failed to list open sessions: %w", err)
	}
	var idle []string
	cutoff := w.svc.now().Add(-w.cfg.SessionIdleTTL)
	for rows.Next() {
		var id string
		var lastActive time.Time
		if err := rows.Scan(&id, &lastActive); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan session: %w", err)
		}
		if lastActive.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	rows.Close()

	closed := 0
	for _, id := range idle {
		_, err := w.svc.CloseSession(ctx, id, false)
		switch {
		case err == nil:
			closed++
		case errors.Is(err, ErrUnpaidOrders), errors.Is(err, ErrSessionClosed):
		default:
			return closed, err
		}
	}
	return closed, nil
}
