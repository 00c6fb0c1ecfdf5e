// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON, validated with go-playground/validator
struct tags:

  - JoinTableRequest: name
  - PlaceOrderRequest: items (menu_item_id, quantity, notes)
  - ServiceRequestRequest: kind (waiter or bill)
  - StartPaymentRequest: tip_cents or tip_percent
  - ContributeRequest: amount_cents, tip_cents
  - StaffLoginRequest, CreateStaffRequest
  - UpdateOrderStatusRequest, CloseSessionRequest
  - CreateTableRequest, SetTableActiveRequest
  - CreateCategoryRequest, CreateMenuItemRequest, UpdateMenuItemRequest

# Response Types

  - JoinTableResponse: session_id, guest_id, guest_token, is_new
  - StartPaymentResponse, ContributeResponse: intent and client secret
  - ConfirmPaymentResponse: intent_id, status
  - TableView, GuestView, BillView, PoolView, TableSummary
  - SalesReport, SweepResult
  - ErrorResponse: error, message, details

# Domain Types

  - DiningTable, TableSession, Guest
  - MenuCategory, MenuItem
  - Order, OrderItem: prices are snapshots taken when the order is placed
  - Payment, PaymentPool, PoolContribution
  - ServiceRequest
  - Receipt: immutable settlement record written on close

All money is an int64 count of the currency's minor unit (cents).

# Constants

Session, order, payment, pool and contribution status values, settlement
methods (card, pool, cash), staff roles (admin, waiter, kitchen) and service
request kinds (waiter, bill).
*/
package models
