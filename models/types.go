// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Table session status constants
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// Order status constants
const (
	OrderPending   = "pending"
	OrderPreparing = "preparing"
	OrderReady     = "ready"
	OrderServed    = "served"
	OrderCancelled = "cancelled"
)

// Payment (individual card payment) status constants
const (
	PaymentPending    = "pending"
	PaymentAuthorized = "authorized"
	PaymentCaptured   = "captured"
	PaymentFailed     = "failed"
	PaymentCancelled  = "cancelled"
	PaymentRefunded   = "refunded"
)

// Pool status constants
const (
	PoolOpen      = "open"
	PoolCapturing = "capturing"
	PoolCaptured  = "captured"
	PoolCancelled = "cancelled"
	PoolExpired   = "expired"
)

// Pool contribution status constants. A contribution moves through the same
// states as a payment; captured contributions may be partially captured.
const (
	ContributionPending    = "pending"
	ContributionAuthorized = "authorized"
	ContributionCaptured   = "captured"
	ContributionFailed     = "failed"
	ContributionCancelled  = "cancelled"
)

// Payment methods recorded on paid orders
const (
	MethodCard = "card"
	MethodPool = "pool"
	MethodCash = "cash"
)

// Staff roles
const (
	RoleAdmin   = "admin"
	RoleWaiter  = "waiter"
	RoleKitchen = "kitchen"
)

// Service request kinds
const (
	RequestWaiter = "waiter"
	RequestBill   = "bill"
)

// Request types

type JoinTableRequest struct {
	Name string `json:"name" validate:"required,min=1,max=40"`
}

type OrderItemRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1,max=50"`
	Notes      string `json:"notes" validate:"max=200"`
}

type PlaceOrderRequest struct {
	Items []OrderItemRequest `json:"items" validate:"required,min=1,max=30,dive"`
}

type ServiceRequestRequest struct {
	Kind string `json:"kind" validate:"required,oneof=waiter bill"`
}

// Either TipCents or TipPercent may be set; TipCents wins when both are.
type StartPaymentRequest struct {
	TipCents   int64   `json:"tip_cents" validate:"min=0"`
	TipPercent float64 `json:"tip_percent" validate:"min=0,max=100"`
}

type ContributeRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,min=1"`
	TipCents    int64 `json:"tip_cents" validate:"min=0"`
}

type StaffLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=preparing ready served cancelled"`
}

type CloseSessionRequest struct {
	Force bool `json:"force"`
}

type CreateTableRequest struct {
	Label string `json:"label" validate:"required,max=40"`
	Seats int    `json:"seats" validate:"min=0,max=100"`
}

type SetTableActiveRequest struct {
	Active bool `json:"active"`
}

type CreateCategoryRequest struct {
	Name      string `json:"name" validate:"required,max=60"`
	SortOrder int    `json:"sort_order"`
}

type CreateMenuItemRequest struct {
	CategoryID  string `json:"category_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=500"`
	PriceCents  int64  `json:"price_cents" validate:"required,min=1"`
	SortOrder   int    `json:"sort_order"`
}

// Nil fields are left unchanged.
type UpdateMenuItemRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=80"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,min=1"`
	Available   *bool   `json:"available"`
	SortOrder   *int    `json:"sort_order"`
}

type CreateStaffRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=60"`
	Role     string `json:"role" validate:"required,oneof=admin waiter kitchen"`
	Password string `json:"password" validate:"required,min=8"`
}

// Response types

type JoinTableResponse struct {
	SessionID  string `json:"session_id"`
	GuestID    string `json:"guest_id"`
	GuestToken string `json:"guest_token"`
	IsNew      bool   `json:"is_new"`
}

type PlaceOrderResponse struct {
	Order Order `json:"order"`
}

type StaffLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Staff     Staff     `json:"staff"`
}

type StartPaymentResponse struct {
	PaymentID    string `json:"payment_id"`
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	TipCents     int64  `json:"tip_cents"`
	Currency     string `json:"currency"`
}

type ContributeResponse struct {
	ContributionID string `json:"contribution_id"`
	IntentID       string `json:"intent_id"`
	ClientSecret   string `json:"client_secret"`
	AmountCents    int64  `json:"amount_cents"`
	TipCents       int64  `json:"tip_cents"`
	Currency       string `json:"currency"`
}

type ConfirmPaymentResponse struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}

type TableView struct {
	Table   DiningTable  `json:"table"`
	Session *SessionView `json:"session,omitempty"`
}

type SessionView struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	GuestCount int       `json:"guest_count"`
	OpenedAt   time.Time `json:"opened_at"`
}

type GuestView struct {
	Guest    Guest   `json:"guest"`
	Orders   []Order `json:"orders"`
	DueCents int64   `json:"due_cents"`
}

type BillView struct {
	SessionID        string  `json:"session_id"`
	Currency         string  `json:"currency"`
	TotalCents       int64   `json:"total_cents"`
	PaidCents        int64   `json:"paid_cents"`
	LockedCents      int64   `json:"locked_cents"`
	OutstandingCents int64   `json:"outstanding_cents"`
	GuestCount       int     `json:"guest_count"`
	EvenSplitCents   []int64 `json:"even_split_cents"`
	Orders           []Order `json:"orders"`
}

type PoolView struct {
	Pool            PaymentPool        `json:"pool"`
	AuthorizedCents int64              `json:"authorized_cents"`
	RemainingCents  int64              `json:"remaining_cents"`
	SuggestedCents  []int64            `json:"suggested_cents"`
	Contributions   []PoolContribution `json:"contributions"`
}

type TableSummary struct {
	TableID          string     `json:"table_id"`
	Label            string     `json:"label"`
	Code             string     `json:"code"`
	SessionID        *string    `json:"session_id,omitempty"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	GuestCount       int        `json:"guest_count"`
	OrderCount       int        `json:"order_count"`
	TotalCents       int64      `json:"total_cents"`
	PaidCents        int64      `json:"paid_cents"`
	OutstandingCents int64      `json:"outstanding_cents"`
	OpenRequests     int        `json:"open_requests"`
}

type SalesReport struct {
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	Currency      string           `json:"currency"`
	SessionCount  int              `json:"session_count"`
	OrderCount    int              `json:"order_count"`
	GrossCents    int64            `json:"gross_cents"`
	TipCents      int64            `json:"tip_cents"`
	RefundedCents int64            `json:"refunded_cents"`
	ByMethod      map[string]int64 `json:"by_method"`
	Items         []ItemSales      `json:"items"`
}

type ItemSales struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	GrossCents int64  `json:"gross_cents"`
}

type SweepResult struct {
	ExpiredPools      int `json:"expired_pools"`
	FailedPayments    int `json:"failed_payments"`
	RecoveredPayments int `json:"recovered_payments"`
	ClosedSessions    int `json:"closed_sessions"`
}

// Domain types

type Staff struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type DiningTable struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Code      string    `json:"code"`
	Seats     int       `json:"seats"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type MenuCategory struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	SortOrder int        `json:"sort_order"`
	Items     []MenuItem `json:"items"`
}

type MenuItem struct {
	ID          string `json:"id"`
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Available   bool   `json:"available"`
	SortOrder   int    `json:"sort_order"`
}

type TableSession struct {
	ID         string     `json:"id"`
	TableID    string     `json:"table_id"`
	Status     string     `json:"status"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	LastActive time.Time  `json:"last_active_at"`
}

type Guest struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Name       string    `json:"name"`
	Token      string    `json:"-"` // Never expose in JSON
	DeviceUUID *string   `json:"-"`
	IPHash     *string   `json:"-"`
	JoinedAt   time.Time `json:"joined_at"`
}

type Order struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	GuestID    string      `json:"guest_id"`
	GuestName  string      `json:"guest_name,omitempty"`
	TableLabel string      `json:"table_label,omitempty"`
	Status     string      `json:"status"`
	TotalCents int64       `json:"total_cents"`
	PaymentID  *string     `json:"payment_id,omitempty"`
	PoolID     *string     `json:"pool_id,omitempty"`
	PaidAt     *time.Time  `json:"paid_at,omitempty"`
	PaidMethod *string     `json:"paid_method,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Items      []OrderItem `json:"items"`
}

type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	MenuItemID     string `json:"menu_item_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Notes          string `json:"notes,omitempty"`
}

type Payment struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	GuestID       string    `json:"guest_id"`
	IntentID      string    `json:"intent_id"`
	AmountCents   int64     `json:"amount_cents"`
	TipCents      int64     `json:"tip_cents"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type PaymentPool struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	OpenedBy      string     `json:"opened_by"`
	TargetCents   int64      `json:"target_cents"`
	CapturedCents int64      `json:"captured_cents"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type PoolContribution struct {
	ID            string     `json:"id"`
	PoolID        string     `json:"pool_id"`
	GuestID       string     `json:"guest_id"`
	GuestName     string     `json:"guest_name,omitempty"`
	IntentID      string     `json:"intent_id"`
	AmountCents   int64      `json:"amount_cents"`
	TipCents      int64      `json:"tip_cents"`
	CapturedCents int64      `json:"captured_cents"`
	Status        string     `json:"status"`
	AuthorizedAt  *time.Time `json:"authorized_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ServiceRequest struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	TableLabel string     `json:"table_label,omitempty"`
	GuestID    string     `json:"guest_id"`
	GuestName  string     `json:"guest_name,omitempty"`
	Kind       string     `json:"kind"`
	CreatedAt  time.Time  `json:"created_at"`
	AckedAt    *time.Time `json:"acked_at,omitempty"`
	AckedBy    *string    `json:"acked_by,omitempty"`
}

// Receipt is the immutable settlement record written when a session closes.
type Receipt struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	TableLabel string         `json:"table_label"`
	Currency   string         `json:"currency"`
	ClosedAt   time.Time      `json:"closed_at"`
	Lines      []ReceiptLine  `json:"lines"`
	Payments   []ReceiptEntry `json:"payments"`
	TotalCents int64          `json:"total_cents"`
	TipCents   int64          `json:"tip_cents"`
	PaidCents  int64          `json:"paid_cents"`
}

type ReceiptLine struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	GuestName      string `json:"guest_name"`
}

type ReceiptEntry struct {
	Method      string `json:"method"`
	GuestName   string `json:"guest_name,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	TipCents    int64  `json:"tip_cents"`
}

// Error response

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}
