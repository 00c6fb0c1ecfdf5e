// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/danielhkuo/tablepay/payments"
)

// FakeGateway is an in-memory payments.Gateway that records every call
type FakeGateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*payments.Intent

	Captures map[string]int64
	Cancels  []string
	Refunds  map[string]int64

	// CreateErr fails every CreateHold; CaptureErr fails Capture per intent
	CreateErr  error
	CaptureErr map[string]error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		intents:    make(map[string]*payments.Intent),
		Captures:   make(map[string]int64),
		Refunds:    make(map[string]int64),
		CaptureErr: make(map[string]error),
	}
}

func (g *FakeGateway) CreateHold(_ context.Context, req payments.HoldRequest) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.CreateErr != nil {
		return payments.Intent{}, g.CreateErr
	}
	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	intent := &payments.Intent{
		ID:           id,
		Status:       payments.StatusRequiresPaymentMethod,
		Amount:       req.AmountCents,
		Currency:     req.Currency,
		ClientSecret: id + "_secret",
		Metadata:     req.Metadata,
	}
	g.intents[id] = intent
	return *intent, nil
}

func (g *FakeGateway) GetIntent(_ context.Context, intentID string) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return payments.Intent{}, &payments.GatewayError{StatusCode: 404, Code: "resource_missing", Message: "no such intent"}
	}
	return *intent, nil
}

func (g *FakeGateway) Capture(_ context.Context, intentID string, amountCents int64) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.CaptureErr[intentID]; err != nil {
		return payments.Intent{}, err
	}
	intent, ok := g.intents[intentID]
	if !ok || intent.Status != payments.StatusRequiresCapture {
		return payments.Intent{}, &payments.GatewayError{StatusCode: 400, Code: "payment_intent_unexpected_state"}
	}
	if amountCents > intent.AmountCapturable {
		return payments.Intent{}, &payments.GatewayError{StatusCode: 400, Code: "amount_too_large"}
	}
	intent.Status = payments.StatusSucceeded
	intent.AmountReceived = amountCents
	intent.AmountCapturable = 0
	g.Captures[intentID] = amountCents
	return *intent, nil
}

func (g *FakeGateway) Cancel(_ context.Context, intentID string) (payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Cancels = append(g.Cancels, intentID)
	intent, ok := g.intents[intentID]
	if !ok {
		return payments.Intent{}, &payments.GatewayError{StatusCode: 404, Code: "resource_missing"}
	}
	intent.Status = payments.StatusCanceled
	intent.AmountCapturable = 0
	return *intent, nil
}

func (g *FakeGateway) Refund(_ context.Context, intentID string, amountCents int64) (payments.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Refunds[intentID] += amountCents
	return payments.Refund{ID: "re_" + intentID, Amount: amountCents, Status: "succeeded", PaymentIntent: intentID}, nil
}

// Authorize simulates the guest completing card entry: the hold is placed
func (g *FakeGateway) Authorize(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if intent, ok := g.intents[intentID]; ok {
		intent.Status = payments.StatusRequiresCapture
		intent.AmountCapturable = intent.Amount
	}
}

// Decline simulates a declined card
func (g *FakeGateway) Decline(intentID, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if intent, ok := g.intents[intentID]; ok {
		intent.Status = payments.StatusRequiresPaymentMethod
		intent.LastPaymentError = &struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}{Code: "card_declined", Message: message}
	}
}

// CapturedTotal sums every captured amount
func (g *FakeGateway) CapturedTotal() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var total int64
	for _, v := range g.Captures {
		total += v
	}
	return total
}

// Cancelled reports whether Cancel was called for intentID
func (g *FakeGateway) Cancelled(intentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.Cancels {
		if id == intentID {
			return true
		}
	}
	return false
}
