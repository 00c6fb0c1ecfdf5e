// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/testutil"
)

type fixture struct {
	db        *sql.DB
	gw        *testutil.FakeGateway
	hub       *events.MemoryHub
	svc       *Service
	sessionID string
	alice     string
	bob       string
	burger    string // 1200
	fries     string // 450
	waiter    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	gw := testutil.NewFakeGateway()
	hub := events.NewMemoryHub()

	tableID, _ := testutil.CreateTestTable(t, conn, cfg, "T1")
	sessionID := testutil.OpenTestSession(t, conn, tableID)
	alice, _ := testutil.CreateTestGuest(t, conn, sessionID, "Alice")
	bob, _ := testutil.CreateTestGuest(t, conn, sessionID, "Bob")
	cat := testutil.CreateTestCategory(t, conn, "Mains")

	return &fixture{
		db:        conn,
		gw:        gw,
		hub:       hub,
		svc:       NewService(conn, gw, Options{Currency: "usd", PoolTTL: 30 * time.Minute, Hub: hub}),
		sessionID: sessionID,
		alice:     alice,
		bob:       bob,
		burger:    testutil.CreateTestMenuItem(t, conn, cat, "Burger", 1200),
		fries:     testutil.CreateTestMenuItem(t, conn, cat, "Fries", 450),
		waiter:    testutil.CreateTestStaff(t, conn, "floor@example.com", "waiter"),
	}
}

func (f *fixture) order(t *testing.T, guestID, itemID string, qty int) string {
	t.Helper()
	return testutil.CreateTestOrder(t, f.db, f.sessionID, guestID, itemID, qty)
}

func (f *fixture) orderState(t *testing.T, orderID string) (paymentID, poolID, paidMethod sql.NullString, paid bool) {
	t.Helper()
	var paidAt sql.NullTime
	err := f.db.QueryRow(`SELECT payment_id, pool_id, paid_method, paid_at FROM orders WHERE id = $1`, orderID).
		Scan(&paymentID, &poolID, &paidMethod, &paidAt)
	if err != nil {
		t.Fatalf("Failed to load order: %v", err)
	}
	return paymentID, poolID, paidMethod, paidAt.Valid
}

func TestStartIndividualPayment_CaptureOnAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o1 := f.order(t, f.alice, f.burger, 1)
	o2 := f.order(t, f.alice, f.fries, 2)
	bobOrder := f.order(t, f.bob, f.burger, 1)

	sub := f.hub.Subscribe(events.SessionTopic(f.sessionID))
	defer sub.Close()

	resp, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 10)
	if err != nil {
		t.Fatalf("StartIndividualPayment: %v", err)
	}
	if resp.AmountCents != 2100 {
		t.Errorf("AmountCents = %d, want 2100", resp.AmountCents)
	}
	if resp.TipCents != 210 {
		t.Errorf("TipCents = %d, want 210", resp.TipCents)
	}
	if resp.ClientSecret == "" || resp.IntentID == "" {
		t.Errorf("missing intent details: %+v", resp)
	}

	for _, id := range []string{o1, o2} {
		if paymentID, _, _, _ := f.orderState(t, id); paymentID.String != resp.PaymentID {
			t.Errorf("order %s not locked to payment", id)
		}
	}
	if paymentID, _, _, _ := f.orderState(t, bobOrder); paymentID.Valid {
		t.Error("Bob's order must not be locked by Alice's payment")
	}

	f.gw.Authorize(resp.IntentID)
	if err := f.svc.MarkAuthorized(ctx, resp.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	// webhook and client confirmation may both arrive
	if err := f.svc.MarkAuthorized(ctx, resp.IntentID); err != nil {
		t.Fatalf("second MarkAuthorized: %v", err)
	}

	if got := f.gw.Captures[resp.IntentID]; got != 2310 {
		t.Errorf("captured %d, want 2310", got)
	}
	p, err := f.svc.GetPayment(ctx, resp.PaymentID)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if p.Status != models.PaymentCaptured {
		t.Errorf("payment status = %s", p.Status)
	}
	for _, id := range []string{o1, o2} {
		if _, _, method, paid := f.orderState(t, id); !paid || method.String != models.MethodCard {
			t.Errorf("order %s not paid by card", id)
		}
	}

	select {
	case ev := <-sub.C:
		if ev.Type != events.TypePaymentUpdated {
			t.Errorf("unexpected event %s", ev.Type)
		}
	default:
		t.Error("expected a payment event")
	}
}

func TestStartIndividualPayment_NothingToPay(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartIndividualPayment(context.Background(), f.sessionID, f.alice, 0, 0)
	if !errors.Is(err, ErrNothingToPay) {
		t.Errorf("expected ErrNothingToPay, got %v", err)
	}
}

func TestStartIndividualPayment_RestartAbandonsPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, f.alice, f.burger, 1)

	first, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0)
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	second, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 100, 0)
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}

	if !f.gw.Cancelled(first.IntentID) {
		t.Error("abandoned hold should be cancelled")
	}
	old, _ := f.svc.GetPayment(ctx, first.PaymentID)
	if old.Status != models.PaymentCancelled {
		t.Errorf("old payment status = %s", old.Status)
	}
	if paymentID, _, _, _ := f.orderState(t, orderID); paymentID.String != second.PaymentID {
		t.Error("order should be locked to the new payment")
	}

	// a late authorization of the abandoned hold must not charge the card
	f.gw.Authorize(first.IntentID)
	if err := f.svc.MarkAuthorized(ctx, first.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if _, captured := f.gw.Captures[first.IntentID]; captured {
		t.Error("abandoned hold was captured")
	}
}

func TestStartIndividualPayment_HoldFailureReleasesOrders(t *testing.T) {
	f := newFixture(t)
	orderID := f.order(t, f.alice, f.burger, 1)
	f.gw.CreateErr = errors.New("gateway down")

	if _, err := f.svc.StartIndividualPayment(context.Background(), f.sessionID, f.alice, 0, 0); err == nil {
		t.Fatal("expected error")
	}
	if paymentID, _, _, _ := f.orderState(t, orderID); paymentID.Valid {
		t.Error("order should be unlocked after hold failure")
	}
}

func TestMarkFailed_ReleasesOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, f.alice, f.burger, 1)

	resp, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0)
	if err != nil {
		t.Fatalf("StartIndividualPayment: %v", err)
	}

	f.gw.Decline(resp.IntentID, "card declined")
	intent, err := f.svc.SyncIntent(ctx, resp.IntentID)
	if err != nil {
		t.Fatalf("SyncIntent: %v", err)
	}
	if !intent.Failed() {
		t.Fatalf("intent should be failed, status %s", intent.Status)
	}

	p, _ := f.svc.GetPayment(ctx, resp.PaymentID)
	if p.Status != models.PaymentFailed || p.FailureReason == nil || *p.FailureReason != "card declined" {
		t.Errorf("unexpected payment %+v", p)
	}
	if paymentID, _, _, paid := f.orderState(t, orderID); paymentID.Valid || paid {
		t.Error("order should be unlocked and unpaid")
	}

	// guest can try again
	if _, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0); err != nil {
		t.Errorf("retry after decline: %v", err)
	}
}

func TestMarkAuthorized_CaptureFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, f.alice, f.burger, 1)

	resp, _ := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0)
	f.gw.Authorize(resp.IntentID)
	f.gw.CaptureErr[resp.IntentID] = errors.New("processor unavailable")

	if err := f.svc.MarkAuthorized(ctx, resp.IntentID); err == nil {
		t.Fatal("expected capture error")
	}
	p, _ := f.svc.GetPayment(ctx, resp.PaymentID)
	if p.Status != models.PaymentFailed {
		t.Errorf("status = %s, want failed", p.Status)
	}
	if paymentID, _, _, _ := f.orderState(t, orderID); paymentID.Valid {
		t.Error("order should be released")
	}
}

func TestMarkAuthorized_UnknownIntent(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.MarkAuthorized(context.Background(), "pi_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordCash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.order(t, f.alice, f.burger, 1)
	o2 := f.order(t, f.bob, f.fries, 1)

	// Alice is mid card payment; cash only settles the rest
	if _, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0); err != nil {
		t.Fatalf("StartIndividualPayment: %v", err)
	}

	amount, err := f.svc.RecordCash(ctx, f.sessionID, f.waiter)
	if err != nil {
		t.Fatalf("RecordCash: %v", err)
	}
	if amount != 450 {
		t.Errorf("cash amount = %d, want 450", amount)
	}
	if _, _, method, paid := f.orderState(t, o2); !paid || method.String != models.MethodCash {
		t.Error("Bob's order should be paid in cash")
	}
	if _, _, _, paid := f.orderState(t, o1); paid {
		t.Error("Alice's locked order must not be settled in cash")
	}

	var collectedBy sql.NullString
	if err := f.db.QueryRow(`SELECT collected_by FROM orders WHERE id = $1`, o2).Scan(&collectedBy); err != nil {
		t.Fatalf("Failed to load order: %v", err)
	}
	if collectedBy.String != f.waiter {
		t.Errorf("collected_by = %q, want %q", collectedBy.String, f.waiter)
	}
	if _, err := f.svc.RecordCash(ctx, f.sessionID, ""); !errors.Is(err, ErrStaffRequired) {
		t.Errorf("expected ErrStaffRequired without a collector, got %v", err)
	}

	if _, err := f.svc.RecordCash(ctx, f.sessionID, f.waiter); !errors.Is(err, ErrNothingToPay) {
		t.Errorf("expected ErrNothingToPay, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)

	resp, _ := f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 300, 0)

	if _, err := f.svc.Refund(ctx, resp.PaymentID); !errors.Is(err, ErrNotRefundable) {
		t.Errorf("pending payment refund: expected ErrNotRefundable, got %v", err)
	}

	f.gw.Authorize(resp.IntentID)
	if err := f.svc.MarkAuthorized(ctx, resp.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}

	p, err := f.svc.Refund(ctx, resp.PaymentID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if p.Status != models.PaymentRefunded {
		t.Errorf("status = %s", p.Status)
	}
	if f.gw.Refunds[resp.IntentID] != 1500 {
		t.Errorf("refunded %d, want 1500", f.gw.Refunds[resp.IntentID])
	}

	if _, err := f.svc.Refund(ctx, resp.PaymentID); !errors.Is(err, ErrNotRefundable) {
		t.Errorf("double refund: expected ErrNotRefundable, got %v", err)
	}
}

func TestBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)
	f.order(t, f.bob, f.fries, 2)
	cancelled := f.order(t, f.bob, f.burger, 1)
	f.db.Exec(`UPDATE orders SET status = 'cancelled' WHERE id = $1`, cancelled)

	f.svc.StartIndividualPayment(ctx, f.sessionID, f.alice, 0, 0)

	bill, err := f.svc.Bill(ctx, f.sessionID)
	if err != nil {
		t.Fatalf("Bill: %v", err)
	}
	if bill.TotalCents != 2100 {
		t.Errorf("TotalCents = %d, want 2100", bill.TotalCents)
	}
	if bill.LockedCents != 1200 {
		t.Errorf("LockedCents = %d, want 1200", bill.LockedCents)
	}
	if bill.OutstandingCents != 2100 || bill.PaidCents != 0 {
		t.Errorf("Outstanding/Paid = %d/%d", bill.OutstandingCents, bill.PaidCents)
	}
	if bill.GuestCount != 2 || len(bill.EvenSplitCents) != 2 || bill.EvenSplitCents[0] != 1050 {
		t.Errorf("unexpected split %v for %d guests", bill.EvenSplitCents, bill.GuestCount)
	}
	if len(bill.Orders) != 3 {
		t.Errorf("expected 3 orders listed, got %d", len(bill.Orders))
	}
	if len(bill.Orders[0].Items) != 1 || bill.Orders[0].Items[0].Name != "Burger" {
		t.Errorf("order items not loaded: %+v", bill.Orders[0].Items)
	}
}
