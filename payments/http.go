// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package payments

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// HTTPGateway talks to a Stripe-compatible PaymentIntents API
type HTTPGateway struct {
	client *resty.Client
}

// NewHTTPGateway builds a gateway client. transport may be nil; main passes
// an otelhttp transport so gateway calls show up in traces.
func NewHTTPGateway(baseURL, secretKey string, transport http.RoundTripper) *HTTPGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(secretKey).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		SetHeader("Accept", "application/json")
	if transport != nil {
		client.SetTransport(transport)
	}
	return &HTTPGateway{client: client}
}

type errorEnvelope struct {
	Error GatewayError `json:"error"`
}

func (g *HTTPGateway) CreateHold(ctx context.Context, req HoldRequest) (Intent, error) {
	form := map[string]string{
		"amount":                             strconv.FormatInt(req.AmountCents, 10),
		"currency":                           req.Currency,
		"capture_method":                     "manual",
		"automatic_payment_methods[enabled]": "true",
	}
	if req.Description != "" {
		form["description"] = req.Description
	}
	for k, v := range req.Metadata {
		form["metadata["+k+"]"] = v
	}

	var intent Intent
	if err := g.post(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return Intent{}, fmt.Errorf("failed to create hold: %w", err)
	}
	slog.InfoContext(ctx, "gateway hold created", "intent_id", intent.ID, "amount", req.AmountCents)
	return intent, nil
}

func (g *HTTPGateway) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	var intent Intent
	var envelope errorEnvelope
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", intentID).
		SetResult(&intent).
		SetError(&envelope).
		Get("/v1/payment_intents/{id}")
	if err != nil {
		return Intent{}, fmt.Errorf("failed to fetch intent: %w", err)
	}
	if resp.IsError() {
		envelope.Error.StatusCode = resp.StatusCode()
		return Intent{}, &envelope.Error
	}
	return intent, nil
}

func (g *HTTPGateway) Capture(ctx context.Context, intentID string, amountCents int64) (Intent, error) {
	form := map[string]string{
		"amount_to_capture": strconv.FormatInt(amountCents, 10),
	}
	var intent Intent
	if err := g.post(ctx, "/v1/payment_intents/"+intentID+"/capture", form, &intent); err != nil {
		return Intent{}, fmt.Errorf("failed to capture %s: %w", intentID, err)
	}
	slog.InfoContext(ctx, "gateway hold captured", "intent_id", intentID, "amount", amountCents)
	return intent, nil
}

func (g *HTTPGateway) Cancel(ctx context.Context, intentID string) (Intent, error) {
	var intent Intent
	if err := g.post(ctx, "/v1/payment_intents/"+intentID+"/cancel", map[string]string{}, &intent); err != nil {
		return Intent{}, fmt.Errorf("failed to cancel %s: %w", intentID, err)
	}
	slog.InfoContext(ctx, "gateway hold cancelled", "intent_id", intentID)
	return intent, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, intentID string, amountCents int64) (Refund, error) {
	form := map[string]string{
		"payment_intent": intentID,
		"amount":         strconv.FormatInt(amountCents, 10),
	}
	var refund Refund
	if err := g.post(ctx, "/v1/refunds", form, &refund); err != nil {
		return Refund{}, fmt.Errorf("failed to refund %s: %w", intentID, err)
	}
	slog.InfoContext(ctx, "gateway refund created", "intent_id", intentID, "refund_id", refund.ID, "amount", amountCents)
	return refund, nil
}

// post sends a form-encoded mutation. A fresh idempotency key per call lets
// resty retry network failures without charging twice.
func (g *HTTPGateway) post(ctx context.Context, path string, form map[string]string, result interface{}) error {
	var envelope errorEnvelope
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetFormData(form).
		SetResult(result).
		SetError(&envelope).
		Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		envelope.Error.StatusCode = resp.StatusCode()
		return &envelope.Error
	}
	return nil
}

// DisabledGateway is used when no gateway key is configured
type DisabledGateway struct{}

func (DisabledGateway) CreateHold(context.Context, HoldRequest) (Intent, error) {
	return Intent{}, ErrNotConfigured
}

func (DisabledGateway) GetIntent(context.Context, string) (Intent, error) {
	return Intent{}, ErrNotConfigured
}

func (DisabledGateway) Capture(context.Context, string, int64) (Intent, error) {
	return Intent{}, ErrNotConfigured
}

func (DisabledGateway) Cancel(context.Context, string) (Intent, error) {
	return Intent{}, ErrNotConfigured
}

func (DisabledGateway) Refund(context.Context, string, int64) (Refund, error) {
	return Refund{}, ErrNotConfigured
}
