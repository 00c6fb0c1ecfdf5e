// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package telemetry

import (
	"context"
	"testing"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.OrderPlaced(ctx)
	m.PaymentCaptured(ctx, "card", 100)
	m.PoolCaptured(ctx)
	m.Swept(ctx, "pools", 2)
}

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.OrderPlaced(ctx)
	m.PaymentCaptured(ctx, "pool", 2500)
	m.Swept(ctx, "sessions", 0)
}
