// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package billing

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrSessionClosed       = errors.New("table session is closed")
	ErrNothingToPay        = errors.New("nothing left to pay")
	ErrConflict            = errors.New("orders changed while starting payment, try again")
	ErrPoolExists          = errors.New("a payment pool is already open for this table")
	ErrNoPool              = errors.New("no open payment pool")
	ErrPoolClosed          = errors.New("payment pool is no longer open")
	ErrAlreadyContributed  = errors.New("guest already contributed to this pool")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnpaidOrders        = errors.New("session has unpaid orders")
	ErrNotRefundable       = errors.New("payment cannot be refunded")
	ErrPaymentsUnavailable = errors.New("card payments are not available")
	ErrStaffRequired       = errors.New("cash must be recorded by a staff member")
)
