// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "Stripe-Signature"

// Webhook event types the service reacts to
const (
	EventAmountCapturable = "payment_intent.amount_capturable_updated"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventCanceled         = "payment_intent.canceled"
	EventSucceeded        = "payment_intent.succeeded"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks a "t=<unix>,v1=<hex hmac>" signature header. The
// signed content is "<t>.<payload>".
func VerifyWebhook(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrNotConfigured
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrStaleSignature
		}
	}

	expected := SignPayload(payload, secret, ts)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignPayload computes the v1 signature for payload at unix time ts
func SignPayload(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a header value accepted by VerifyWebhook
func SignatureHeaderValue(payload []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), SignPayload(payload, secret, ts.Unix()))
}

// Handled reports whether the event type is one the service acts on
func (ev Event) Handled() bool {
	switch ev.Type {
	case EventAmountCapturable, EventPaymentFailed, EventCanceled:
		return true
	}
	return false
}

// ParseEvent decodes a webhook body. Only handled event types must carry a
// payment intent; other types pass through so the caller can acknowledge them.
func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("event missing type")
	}
	if ev.Handled() && ev.Data.Object.ID == "" {
		return Event{}, errors.New("event missing payment intent")
	}
	return ev, nil
}
