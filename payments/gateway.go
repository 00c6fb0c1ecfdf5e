// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package payments

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotConfigured = errors.New("payment gateway not configured")

// Intent statuses reported by the gateway
const (
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusRequiresAction        = "requires_action"
	StatusProcessing            = "processing"
	StatusRequiresCapture       = "requires_capture"
	StatusSucceeded             = "succeeded"
	StatusCanceled              = "canceled"
)

// Gateway is the card-payment provider. Every intent is created with manual
// capture so the card is only held until Capture is called.
type Gateway interface {
	CreateHold(ctx context.Context, req HoldRequest) (Intent, error)
	GetIntent(ctx context.Context, intentID string) (Intent, error)
	Capture(ctx context.Context, intentID string, amountCents int64) (Intent, error)
	Cancel(ctx context.Context, intentID string) (Intent, error)
	Refund(ctx context.Context, intentID string, amountCents int64) (Refund, error)
}

type HoldRequest struct {
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

type Intent struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	AmountCapturable int64             `json:"amount_capturable"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	ClientSecret     string            `json:"client_secret"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Authorized reports whether the card hold is in place and can be captured
func (i Intent) Authorized() bool {
	return i.Status == StatusRequiresCapture
}

// Failed reports whether the intent can no longer be captured
func (i Intent) Failed() bool {
	return i.Status == StatusCanceled ||
		(i.Status == StatusRequiresPaymentMethod && i.LastPaymentError != nil)
}

// FailureReason returns the gateway's message for a failed intent
func (i Intent) FailureReason() string {
	if i.LastPaymentError != nil && i.LastPaymentError.Message != "" {
		return i.LastPaymentError.Message
	}
	return i.Status
}

type Refund struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	PaymentIntent string `json:"payment_intent"`
}

// GatewayError is the error body returned by the gateway API
type GatewayError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}
