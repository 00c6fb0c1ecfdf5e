// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/testutil"
)

func (f *fixture) advance(d time.Duration) {
	base := time.Now().UTC().Add(d)
	f.svc.now = func() time.Time { return base }
}

func TestSweeper_ExpiresPools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, f.alice, f.burger, 1)

	f.svc.OpenPool(ctx, f.sessionID, f.alice)
	c, _ := f.svc.Contribute(ctx, f.sessionID, f.bob, 500, 0)

	w := NewSweeper(f.svc, SweeperConfig{PaymentTTL: 20 * time.Minute, SessionIdleTTL: 6 * time.Hour})

	res, err := w.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.ExpiredPools != 0 {
		t.Errorf("fresh pool expired")
	}

	f.advance(31 * time.Minute)
	res, err = w.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.ExpiredPools != 1 {
		t.Errorf("ExpiredPools = %d, want 1", res.ExpiredPools)
	}

	view, _ := f.svc.PoolStatus(ctx, f.sessionID)
	if view.Pool.Status != models.PoolExpired {
		t.Errorf("pool status = %s", view.Pool.Status)
	}
	if !f.gw.Cancelled(c.IntentID) {
		t.Error("contribution hold should be cancelled")
	}
	if _, poolID, _, _ := f.orderState(t, orderID); poolID.Valid {
		t.Error("order should be released")
	}
}

func TestSweeper_FailsStalePayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)
	f.order(t, f.bob, f.fries, 1)

	stale, _ := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0)
	lost, _ := f.svc.StartIndividualPayment(ctx, f.sessionID, f.bob, 0, 0)
	// Bob's card went through but the webhook never arrived
	f.gw.Authorize(lost.IntentID)

	w := NewSweeper(f.svc, SweeperConfig{PaymentTTL: 20 * time.Minute})
	f.advance(21 * time.Minute)

	res, err := w.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.FailedPayments != 1 {
		t.Errorf("FailedPayments = %d, want 1", res.FailedPayments)
	}

	p, _ := f.svc.GetPayment(ctx, stale.PaymentID)
	if p.Status != models.PaymentFailed {
		t.Errorf("stale payment status = %s", p.Status)
	}
	p, _ = f.svc.GetPayment(ctx, lost.PaymentID)
	if p.Status != models.PaymentCaptured {
		t.Errorf("recovered payment status = %s", p.Status)
	}
}

func TestSweeper_ClosesIdleSettledSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg := testutil.GetTestConfig()
	otherTable, _ := testutil.CreateTestTable(t, f.db, cfg, "T2")
	busy := testutil.OpenTestSession(t, f.db, otherTable)
	guest, _ := testutil.CreateTestGuest(t, f.db, busy, "Dan")
	testutil.CreateTestOrder(t, f.db, busy, guest, f.burger, 1)

	w := NewSweeper(f.svc, SweeperConfig{SessionIdleTTL: time.Hour})
	f.advance(2 * time.Hour)

	res, err := w.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.ClosedSessions != 1 {
		t.Errorf("ClosedSessions = %d, want 1", res.ClosedSessions)
	}

	var status string
	f.db.QueryRow(`SELECT status FROM table_session WHERE id = $1`, f.sessionID).Scan(&status)
	if status != models.SessionClosed {
		t.Errorf("settled session status = %s", status)
	}
	f.db.QueryRow(`SELECT status FROM table_session WHERE id = $1`, busy).Scan(&status)
	if status != models.SessionOpen {
		t.Errorf("session with unpaid orders should stay open, got %s", status)
	}
}

func TestSweeper_RecoversAuthorizedPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol, _ := testutil.CreateTestGuest(t, f.db, f.sessionID, "Carol")
	aliceOrder := f.order(t, f.alice, f.burger, 1)
	bobOrder := f.order(t, f.bob, f.fries, 1)
	carolOrder := f.order(t, carol, f.fries, 1)

	// each payment reached authorized but the capture never finished
	interrupted := func(guestID string) models.StartPaymentResponse {
		t.Helper()
		resp, err := f.svc.StartIndividualPayment(ctx, f.sessionID, guestID, 0, 0)
		if err != nil {
			t.Fatalf("StartIndividualPayment: %v", err)
		}
		f.gw.Authorize(resp.IntentID)
		if _, err := f.db.Exec(`UPDATE payment SET status = 'authorized', updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), resp.PaymentID); err != nil {
			t.Fatalf("Failed to mark payment authorized: %v", err)
		}
		return resp
	}
	uncaptured := interrupted(f.alice)
	captured := interrupted(f.bob)
	if _, err := f.gw.Capture(ctx, captured.IntentID, 450); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	cancelled := interrupted(carol)
	if _, err := f.gw.Cancel(ctx, cancelled.IntentID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	w := NewSweeper(f.svc, SweeperConfig{PaymentTTL: 20 * time.Minute})

	res, err := w.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.RecoveredPayments != 0 || res.FailedPayments != 0 {
		t.Errorf("fresh authorizations must be left alone: %+v", res)
	}

	f.advance(21 * time.Minute)
	res, err = w.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.RecoveredPayments != 2 || res.FailedPayments != 1 {
		t.Errorf("got %+v, want 2 recovered and 1 failed", res)
	}

	tests := []struct {
		name      string
		paymentID string
		orderID   string
		status    string
		paid      bool
	}{
		{"capture retried", uncaptured.PaymentID, aliceOrder, models.PaymentCaptured, true},
		{"capture already made", captured.PaymentID, bobOrder, models.PaymentCaptured, true},
		{"hold cancelled", cancelled.PaymentID, carolOrder, models.PaymentFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.GetPayment(ctx, tt.paymentID)
			if err != nil {
				t.Fatalf("GetPayment: %v", err)
			}
			if p.Status != tt.status {
				t.Errorf("payment status = %s, want %s", p.Status, tt.status)
			}
			paymentID, _, _, paid := f.orderState(t, tt.orderID)
			if paid != tt.paid {
				t.Errorf("order paid = %v, want %v", paid, tt.paid)
			}
			if !tt.paid && paymentID.Valid {
				t.Error("order should be released from the failed payment")
			}
		})
	}

	if got := f.gw.Captures[uncaptured.IntentID]; got != 1200 {
		t.Errorf("captured %d for the retried payment, want 1200", got)
	}
	if _, err := f.svc.CloseSession(ctx, f.sessionID, false); !errors.Is(err, ErrUnpaidOrders) {
		t.Errorf("Carol's released order should still block a close, got %v", err)
	}
}
