// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/danielhkuo/tablepay"

// Metrics holds the business counters. The zero value of *Metrics is usable
// and records nothing.
type Metrics struct {
	ordersPlaced     metric.Int64Counter
	paymentsCaptured metric.Int64Counter
	capturedCents    metric.Int64Counter
	poolsCaptured    metric.Int64Counter
	sweeps           metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.ordersPlaced, err = meter.Int64Counter("tablepay.orders.placed",
		metric.WithDescription("Orders placed by guests")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.paymentsCaptured, err = meter.Int64Counter("tablepay.payments.captured",
		metric.WithDescription("Captured card payments and pool contributions")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.capturedCents, err = meter.Int64Counter("tablepay.payments.captured_amount",
		metric.WithUnit("{cent}"),
		metric.WithDescription("Captured amount in minor currency units")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.poolsCaptured, err = meter.Int64Counter("tablepay.pools.captured",
		metric.WithDescription("Payment pools that reached their target")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.sweeps, err = meter.Int64Counter("tablepay.sweeps",
		metric.WithDescription("Cleanup sweep results")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) OrderPlaced(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1)
}

func (m *Metrics) PaymentCaptured(ctx context.Context, method string, cents int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("method", method))
	m.paymentsCaptured.Add(ctx, 1, attrs)
	m.capturedCents.Add(ctx, cents, attrs)
}

func (m *Metrics) PoolCaptured(ctx context.Context) {
	if m == nil {
		return
	}
	m.poolsCaptured.Add(ctx, 1)
}

func (m *Metrics) Swept(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweeps.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
