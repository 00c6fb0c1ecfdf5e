// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/testutil"
)

func TestOpenPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.order(t, f.alice, f.burger, 1)
	o2 := f.order(t, f.bob, f.fries, 2)

	pool, err := f.svc.OpenPool(ctx, f.sessionID, f.alice)
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	if pool.TargetCents != 2100 {
		t.Errorf("TargetCents = %d, want 2100", pool.TargetCents)
	}
	for _, id := range []string{o1, o2} {
		if _, poolID, _, _ := f.orderState(t, id); poolID.String != pool.ID {
			t.Errorf("order %s not locked to pool", id)
		}
	}

	if _, err := f.svc.OpenPool(ctx, f.sessionID, f.bob); !errors.Is(err, ErrPoolExists) {
		t.Errorf("second pool: expected ErrPoolExists, got %v", err)
	}

	// locked orders cannot be paid individually
	if _, err := f.svc.StartIndividualPayment(ctx, f.sessionID, f.bob, 0, 0); !errors.Is(err, ErrNothingToPay) {
		t.Errorf("expected ErrNothingToPay for pooled orders, got %v", err)
	}
}

func TestOpenPool_NothingToPay(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.OpenPool(context.Background(), f.sessionID, f.alice); !errors.Is(err, ErrNothingToPay) {
		t.Errorf("expected ErrNothingToPay, got %v", err)
	}
}

func TestContribute_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Contribute(ctx, f.sessionID, f.alice, 500, 0); !errors.Is(err, ErrNoPool) {
		t.Errorf("expected ErrNoPool, got %v", err)
	}

	f.order(t, f.alice, f.burger, 1)
	if _, err := f.svc.OpenPool(ctx, f.sessionID, f.alice); err != nil {
		t.Fatalf("OpenPool: %v", err)
	}

	tests := []struct {
		name    string
		guest   string
		amount  int64
		wantErr error
	}{
		{"zero amount", f.alice, 0, ErrInvalidAmount},
		{"over target", f.alice, 1201, ErrInvalidAmount},
		{"valid", f.alice, 600, nil},
		{"second contribution same guest", f.alice, 100, ErrAlreadyContributed},
		{"other guest", f.bob, 600, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Contribute(ctx, f.sessionID, tt.guest, tt.amount, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Contribute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPool_CapturesExactlyTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol, _ := testutil.CreateTestGuest(t, f.db, f.sessionID, "Carol")

	o1 := f.order(t, f.alice, f.burger, 1)
	o2 := f.order(t, f.bob, f.burger, 1)
	o3 := f.order(t, carol, f.fries, 2)

	pool, err := f.svc.OpenPool(ctx, f.sessionID, f.alice)
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	if pool.TargetCents != 3300 {
		t.Fatalf("TargetCents = %d, want 3300", pool.TargetCents)
	}

	a, err := f.svc.Contribute(ctx, f.sessionID, f.alice, 2000, 200)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	b, err := f.svc.Contribute(ctx, f.sessionID, f.bob, 2000, 0)
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	c, err := f.svc.Contribute(ctx, f.sessionID, carol, 500, 0)
	if err != nil {
		t.Fatalf("carol: %v", err)
	}

	f.gw.Authorize(a.IntentID)
	if err := f.svc.MarkAuthorized(ctx, a.IntentID); err != nil {
		t.Fatalf("authorize alice: %v", err)
	}
	view, _ := f.svc.PoolStatus(ctx, f.sessionID)
	if view.Pool.Status != models.PoolOpen || view.AuthorizedCents != 2000 || view.RemainingCents != 1300 {
		t.Fatalf("unexpected pool view after first hold: %+v", view)
	}

	f.gw.Authorize(b.IntentID)
	if err := f.svc.MarkAuthorized(ctx, b.IntentID); err != nil {
		t.Fatalf("authorize bob: %v", err)
	}

	// Alice in full with tip, Bob partially, Carol's pending hold released
	if got := f.gw.Captures[a.IntentID]; got != 2200 {
		t.Errorf("alice captured %d, want 2200", got)
	}
	if got := f.gw.Captures[b.IntentID]; got != 1300 {
		t.Errorf("bob captured %d, want 1300", got)
	}
	if _, ok := f.gw.Captures[c.IntentID]; ok {
		t.Error("carol's hold should not be captured")
	}
	if !f.gw.Cancelled(c.IntentID) {
		t.Error("carol's hold should be cancelled")
	}

	view, err = f.svc.PoolStatus(ctx, f.sessionID)
	if err != nil {
		t.Fatalf("PoolStatus: %v", err)
	}
	if view.Pool.Status != models.PoolCaptured {
		t.Errorf("pool status = %s", view.Pool.Status)
	}
	if view.Pool.CapturedCents != view.Pool.TargetCents {
		t.Errorf("captured %d of target %d", view.Pool.CapturedCents, view.Pool.TargetCents)
	}
	for _, id := range []string{o1, o2, o3} {
		if _, _, method, paid := f.orderState(t, id); !paid || method.String != models.MethodPool {
			t.Errorf("order %s not paid by pool", id)
		}
	}

	// Carol's card clears late
	f.gw.Authorize(c.IntentID)
	if err := f.svc.MarkAuthorized(ctx, c.IntentID); err != nil {
		t.Fatalf("late authorize: %v", err)
	}
	if _, ok := f.gw.Captures[c.IntentID]; ok {
		t.Error("late hold must not be captured")
	}
}

func TestPool_ConcurrentAuthorizationsCaptureOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	guests := []string{f.alice, f.bob}
	for i := 0; i < 4; i++ {
		g, _ := testutil.CreateTestGuest(t, f.db, f.sessionID, "Guest"+string(rune('A'+i)))
		guests = append(guests, g)
	}
	for _, g := range guests {
		f.order(t, g, f.fries, 1)
	}

	pool, err := f.svc.OpenPool(ctx, f.sessionID, f.alice)
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}

	// each guest pledges the whole remaining bill so any two overfund it
	var intents []string
	for _, g := range guests {
		resp, err := f.svc.Contribute(ctx, f.sessionID, g, pool.TargetCents, 0)
		if err != nil {
			t.Fatalf("Contribute: %v", err)
		}
		intents = append(intents, resp.IntentID)
		f.gw.Authorize(resp.IntentID)
	}

	var wg sync.WaitGroup
	for _, id := range intents {
		wg.Add(1)
		go func(intentID string) {
			defer wg.Done()
			if err := f.svc.MarkAuthorized(ctx, intentID); err != nil {
				t.Errorf("MarkAuthorized(%s): %v", intentID, err)
			}
		}(id)
	}
	wg.Wait()

	if got := f.gw.CapturedTotal(); got != pool.TargetCents {
		t.Errorf("captured %d in total, want exactly %d", got, pool.TargetCents)
	}
	if len(f.gw.Captures) != 1 {
		t.Errorf("expected a single captured hold, got %d", len(f.gw.Captures))
	}

	view, _ := f.svc.PoolStatus(ctx, f.sessionID)
	if view.Pool.Status != models.PoolCaptured {
		t.Errorf("pool status = %s", view.Pool.Status)
	}
	for _, c := range view.Contributions {
		if c.Status == models.ContributionAuthorized || c.Status == models.ContributionPending {
			t.Errorf("contribution %s left in %s", c.ID, c.Status)
		}
	}
}

func TestPool_CaptureFailureReopens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)

	f.svc.OpenPool(ctx, f.sessionID, f.alice)
	a, _ := f.svc.Contribute(ctx, f.sessionID, f.alice, 1200, 0)
	f.gw.Authorize(a.IntentID)
	f.gw.CaptureErr[a.IntentID] = errors.New("issuer unavailable")

	if err := f.svc.MarkAuthorized(ctx, a.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}

	view, _ := f.svc.PoolStatus(ctx, f.sessionID)
	if view.Pool.Status != models.PoolOpen {
		t.Errorf("pool should reopen, status %s", view.Pool.Status)
	}
	if view.RemainingCents != 1200 {
		t.Errorf("RemainingCents = %d", view.RemainingCents)
	}

	// Alice can pledge again with another card
	b, err := f.svc.Contribute(ctx, f.sessionID, f.alice, 1200, 0)
	if err != nil {
		t.Fatalf("re-contribute: %v", err)
	}
	f.gw.Authorize(b.IntentID)
	if err := f.svc.MarkAuthorized(ctx, b.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	view, _ = f.svc.PoolStatus(ctx, f.sessionID)
	if view.Pool.Status != models.PoolCaptured {
		t.Errorf("pool status = %s", view.Pool.Status)
	}
}

func TestCancelPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.order(t, f.alice, f.burger, 1)

	pool, _ := f.svc.OpenPool(ctx, f.sessionID, f.alice)
	a, _ := f.svc.Contribute(ctx, f.sessionID, f.bob, 500, 0)
	f.gw.Authorize(a.IntentID)
	f.svc.MarkAuthorized(ctx, a.IntentID)

	if err := f.svc.CancelPool(ctx, pool.ID); err != nil {
		t.Fatalf("CancelPool: %v", err)
	}
	if err := f.svc.CancelPool(ctx, pool.ID); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("second cancel: expected ErrPoolClosed, got %v", err)
	}

	if !f.gw.Cancelled(a.IntentID) {
		t.Error("contribution hold should be cancelled")
	}
	if _, poolID, _, _ := f.orderState(t, orderID); poolID.Valid {
		t.Error("order should be released from the pool")
	}

	// a new pool can be opened afterwards
	if _, err := f.svc.OpenPool(ctx, f.sessionID, f.bob); err != nil {
		t.Errorf("reopen: %v", err)
	}
}

func TestOpenPool_ConcurrentOpenersGetOnePool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)
	f.order(t, f.bob, f.fries, 1)

	guests := []string{f.alice, f.bob}
	for i := 0; i < 4; i++ {
		g, _ := testutil.CreateTestGuest(t, f.db, f.sessionID, "Opener"+string(rune('A'+i)))
		guests = append(guests, g)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(guests))
	for _, g := range guests {
		wg.Add(1)
		go func(guestID string) {
			defer wg.Done()
			_, err := f.svc.OpenPool(ctx, f.sessionID, guestID)
			errs <- err
		}(g)
	}
	wg.Wait()
	close(errs)

	opened := 0
	for err := range errs {
		switch {
		case err == nil:
			opened++
		case errors.Is(err, ErrPoolExists):
		default:
			t.Errorf("unexpected OpenPool error: %v", err)
		}
	}
	if opened != 1 {
		t.Fatalf("expected exactly one pool to open, got %d", opened)
	}

	var active int
	if err := f.db.QueryRow(`
		SELECT COUNT(*) FROM payment_pool WHERE session_id = $1 AND status = 'open'`, f.sessionID,
	).Scan(&active); err != nil {
		t.Fatalf("Failed to count pools: %v", err)
	}
	if active != 1 {
		t.Errorf("open pools = %d, want 1", active)
	}
}

func TestCancelPool_RefundsPartialCapture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.alice, f.burger, 1)
	f.order(t, f.bob, f.fries, 1)

	pool, err := f.svc.OpenPool(ctx, f.sessionID, f.alice)
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	a, _ := f.svc.Contribute(ctx, f.sessionID, f.alice, 1200, 0)
	b, _ := f.svc.Contribute(ctx, f.sessionID, f.bob, 450, 50)
	f.gw.Authorize(a.IntentID)
	f.gw.Authorize(b.IntentID)
	f.gw.CaptureErr[b.IntentID] = errors.New("card expired")

	if err := f.svc.MarkAuthorized(ctx, a.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if err := f.svc.MarkAuthorized(ctx, b.IntentID); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}

	// Alice's share went through, Bob's failed hold no longer counts
	view, _ := f.svc.PoolStatus(ctx, f.sessionID)
	if view.Pool.Status != models.PoolOpen || view.Pool.CapturedCents != 1200 {
		t.Fatalf("pool = %s captured %d, want open with 1200", view.Pool.Status, view.Pool.CapturedCents)
	}
	if view.RemainingCents != 450 {
		t.Errorf("RemainingCents = %d, want 450", view.RemainingCents)
	}
	if !f.gw.Cancelled(b.IntentID) {
		t.Error("failed hold should be released")
	}

	if err := f.svc.CancelPool(ctx, pool.ID); err != nil {
		t.Fatalf("CancelPool: %v", err)
	}
	if got := f.gw.Refunds[a.IntentID]; got != 1200 {
		t.Errorf("refunded %d to Alice, want 1200", got)
	}

	view, _ = f.svc.PoolStatus(ctx, f.sessionID)
	statuses := map[string]string{}
	for _, c := range view.Contributions {
		statuses[c.GuestID] = c.Status
	}
	if statuses[f.alice] != models.ContributionCancelled {
		t.Errorf("refunded contribution status = %s", statuses[f.alice])
	}
	if statuses[f.bob] != models.ContributionFailed {
		t.Errorf("failed contribution status = %s", statuses[f.bob])
	}
}
