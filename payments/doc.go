// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package payments integrates the card-payment gateway.

All charges are created as manual-capture payment intents ("holds"). The
billing package decides when a hold is captured, partially captured or
cancelled; this package only speaks the gateway's wire protocol.

# Gateway

[HTTPGateway] talks to a Stripe-compatible PaymentIntents API using resty.
Mutating calls carry a random Idempotency-Key so transport retries never
double-charge. Non-2xx answers are returned as [*GatewayError].

When no secret key is configured, [DisabledGateway] answers every call with
[ErrNotConfigured] and the HTTP layer maps that to 503.

# Webhooks

[VerifyWebhook] validates the "t=...,v1=..." signature header and
[ParseEvent] decodes the event body. The handlers react to
amount_capturable_updated (hold placed), payment_failed and canceled.
*/
package payments
