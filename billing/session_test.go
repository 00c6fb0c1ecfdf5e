// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/testutil"
)

func TestCloseSession_RefusesUnpaid(t *testing.T) {
	f := newFixture(t)
	f.order(t, f.alice, f.burger, 1)

	if _, err := f.svc.CloseSession(context.Background(), f.sessionID, false); !errors.Is(err, ErrUnpaidOrders) {
		t.Errorf("expected ErrUnpaidOrders, got %v", err)
	}
	if _, err := f.svc.LoadReceipt(context.Background(), f.sessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("receipt must not exist before close, got %v", err)
	}
}

func TestCloseSession_WritesReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)
	f.order(t, f.bob, f.fries, 2)

	resp, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 240, 0)
	if err != nil {
		t.Fatalf("StartIndividualPayment: %v", err)
	}
	f.gw.Authorize(resp.IntentID)
	if err := f.svc.MarkAuthorized(ctx, resp.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if _, err := f.svc.RecordCash(ctx, f.sessionID, f.waiter); err != nil {
		t.Fatalf("RecordCash: %v", err)
	}

	receipt, err := f.svc.CloseSession(ctx, f.sessionID, false)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if receipt.TableLabel != "T1" {
		t.Errorf("TableLabel = %q", receipt.TableLabel)
	}
	if receipt.TotalCents != 2100 || receipt.PaidCents != 2100 || receipt.TipCents != 240 {
		t.Errorf("unexpected totals: total=%d paid=%d tip=%d", receipt.TotalCents, receipt.PaidCents, receipt.TipCents)
	}
	if len(receipt.Lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(receipt.Lines))
	}

	methods := map[string]int64{}
	for _, p := range receipt.Payments {
		methods[p.Method] += p.AmountCents
	}
	if methods[models.MethodCard] != 1200 || methods[models.MethodCash] != 900 {
		t.Errorf("unexpected payment breakdown %v", methods)
	}

	stored, err := f.svc.LoadReceipt(ctx, f.sessionID)
	if err != nil {
		t.Fatalf("LoadReceipt: %v", err)
	}
	if stored.ID != receipt.ID || stored.PaidCents != receipt.PaidCents {
		t.Errorf("stored receipt differs: %+v", stored)
	}

	if _, err := f.svc.CloseSession(ctx, f.sessionID, false); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second close: expected ErrSessionClosed, got %v", err)
	}
	if _, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("payment after close: expected ErrSessionClosed, got %v", err)
	}
}

func TestCloseSession_ForceCancelsInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)
	f.order(t, f.bob, f.fries, 1)

	payment, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0)
	if err != nil {
		t.Fatalf("StartIndividualPayment: %v", err)
	}
	if _, err := f.svc.OpenPool(ctx, f.sessionID, f.bob); err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	contribution, err := f.svc.Contribute(ctx, f.sessionID, f.bob, 450, 0)
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}

	receipt, err := f.svc.CloseSession(ctx, f.sessionID, true)
	if err != nil {
		t.Fatalf("forced CloseSession: %v", err)
	}
	if receipt.PaidCents != 0 || receipt.TotalCents != 1650 {
		t.Errorf("unexpected totals: paid=%d total=%d", receipt.PaidCents, receipt.TotalCents)
	}
	if !f.gw.Cancelled(payment.IntentID) || !f.gw.Cancelled(contribution.IntentID) {
		t.Error("in-flight holds should be cancelled")
	}

	p, _ := f.svc.GetPayment(ctx, payment.PaymentID)
	if p.Status != models.PaymentFailed {
		t.Errorf("payment status = %s", p.Status)
	}
}

func TestCloseSession_OrderArrivingDuringClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// an order commits after the close has started but before it writes
	var once sync.Once
	f.svc.now = func() time.Time {
		once.Do(func() {
			testutil.CreateTestOrder(t, f.db, f.sessionID, f.bob, f.burger, 1)
		})
		return time.Now().UTC()
	}

	if _, err := f.svc.CloseSession(ctx, f.sessionID, false); !errors.Is(err, ErrUnpaidOrders) {
		t.Fatalf("expected ErrUnpaidOrders, got %v", err)
	}

	var status string
	if err := f.db.QueryRow(`SELECT status FROM table_session WHERE id = $1`, f.sessionID).Scan(&status); err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if status != models.SessionOpen {
		t.Errorf("session status = %s, want open", status)
	}
	if _, err := f.svc.LoadReceipt(ctx, f.sessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("no receipt should be written, got %v", err)
	}

	// once paid the close goes through and the receipt lists the late order
	if _, err := f.svc.RecordCash(ctx, f.sessionID, f.waiter); err != nil {
		t.Fatalf("RecordCash: %v", err)
	}
	receipt, err := f.svc.CloseSession(ctx, f.sessionID, false)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if len(receipt.Lines) != 1 || receipt.TotalCents != 1200 || receipt.PaidCents != 1200 {
		t.Errorf("unexpected receipt: lines=%d total=%d paid=%d", len(receipt.Lines), receipt.TotalCents, receipt.PaidCents)
	}
}

func TestCloseSession_BlocksLaterWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CloseSession(ctx, f.sessionID, false); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if err := LockOpenSession(ctx, f.db, f.sessionID, time.Now().UTC()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := LockOpenSession(ctx, f.db, "missing", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
