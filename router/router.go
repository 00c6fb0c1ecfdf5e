// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/handlers"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/telemetry"
)

// Deps are the long-lived services handlers share
type Deps struct {
	Billing *billing.Service
	Sweeper *billing.Sweeper
	Hub     events.Hub
	Metrics *telemetry.Metrics
}

func NewRouter(db *sql.DB, cfg cliparse.Config, deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	tableHandler := handlers.NewTableHandler(db, cfg, deps.Hub)
	menuHandler := handlers.NewMenuHandler(db, cfg, deps.Hub)
	orderHandler := handlers.NewOrderHandler(db, cfg, deps.Hub, deps.Metrics)
	paymentHandler := handlers.NewPaymentHandler(db, cfg, deps.Billing)
	staffHandler := handlers.NewStaffHandler(db, cfg, deps.Billing, deps.Hub)
	adminHandler := handlers.NewAdminHandler(db, cfg, deps.Billing, deps.Sweeper, deps.Hub)
	reportHandler := handlers.NewReportHandler(db, cfg)
	streamHandler := handlers.NewStreamHandler(db, cfg, deps.Hub)

	log := middleware.WithLogging
	anyStaff := middleware.RequireStaff(cfg.JWTSecret)
	kitchen := middleware.RequireStaff(cfg.JWTSecret, models.RoleKitchen, models.RoleWaiter)
	waiter := middleware.RequireStaff(cfg.JWTSecret, models.RoleWaiter)
	admin := middleware.RequireStaff(cfg.JWTSecret, models.RoleAdmin)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Guest operations (authenticated by table code + guest token)
	mux.HandleFunc("GET /menu", log(menuHandler.GetMenu))
	mux.HandleFunc("GET /t/{code}", log(tableHandler.GetTable))
	mux.HandleFunc("POST /t/{code}/join", log(tableHandler.Join))
	mux.HandleFunc("GET /t/{code}/me", log(tableHandler.Me))
	mux.HandleFunc("POST /t/{code}/requests", log(tableHandler.CreateRequest))
	mux.HandleFunc("POST /t/{code}/orders", log(orderHandler.PlaceOrder))
	mux.HandleFunc("GET /t/{code}/orders", log(orderHandler.ListOrders))
	mux.HandleFunc("POST /t/{code}/orders/{id}/cancel", log(orderHandler.CancelOrder))

	// Paying
	mux.HandleFunc("GET /t/{code}/bill", log(paymentHandler.GetBill))
	mux.HandleFunc("POST /t/{code}/payments", log(paymentHandler.StartPayment))
	mux.HandleFunc("POST /t/{code}/pool", log(paymentHandler.OpenPool))
	mux.HandleFunc("GET /t/{code}/pool", log(paymentHandler.GetPool))
	mux.HandleFunc("POST /t/{code}/pool/cancel", log(paymentHandler.CancelPool))
	mux.HandleFunc("POST /t/{code}/pool/contributions", log(paymentHandler.Contribute))
	mux.HandleFunc("GET /t/{code}/receipt", log(paymentHandler.GetReceipt))
	mux.HandleFunc("POST /payments/{intent}/confirm", log(paymentHandler.Confirm))
	mux.HandleFunc("POST /webhooks/gateway", log(paymentHandler.Webhook))

	// Staff
	mux.HandleFunc("POST /staff/login", log(staffHandler.Login))
	mux.HandleFunc("GET /staff/tables", log(waiter(staffHandler.Tables)))
	mux.HandleFunc("GET /staff/requests", log(waiter(staffHandler.Requests)))
	mux.HandleFunc("POST /staff/requests/{id}/ack", log(waiter(staffHandler.AckRequest)))
	mux.HandleFunc("POST /staff/sessions/{id}/cash", log(waiter(staffHandler.RecordCash)))
	mux.HandleFunc("POST /staff/sessions/{id}/close", log(waiter(staffHandler.CloseSession)))

	// Kitchen
	mux.HandleFunc("GET /kitchen/orders", log(kitchen(orderHandler.KitchenOrders)))
	mux.HandleFunc("POST /kitchen/orders/{id}/status", log(kitchen(orderHandler.UpdateStatus)))

	// Admin
	mux.HandleFunc("POST /admin/tables", log(admin(adminHandler.CreateTable)))
	mux.HandleFunc("GET /admin/tables", log(admin(adminHandler.ListTables)))
	mux.HandleFunc("POST /admin/tables/{id}/active", log(admin(adminHandler.SetTableActive)))
	mux.HandleFunc("POST /admin/menu/categories", log(admin(menuHandler.CreateCategory)))
	mux.HandleFunc("POST /admin/menu/items", log(admin(menuHandler.CreateItem)))
	mux.HandleFunc("PATCH /admin/menu/items/{id}", log(admin(menuHandler.UpdateItem)))
	mux.HandleFunc("POST /admin/staff", log(admin(adminHandler.CreateStaff)))
	mux.HandleFunc("POST /admin/payments/{id}/refund", log(admin(adminHandler.Refund)))
	mux.HandleFunc("POST /admin/sweep", log(admin(adminHandler.Sweep)))
	mux.HandleFunc("GET /admin/reports/sales", log(admin(reportHandler.Sales)))
	mux.HandleFunc("GET /admin/reports/sales.xlsx", log(admin(reportHandler.SalesXLSX)))

	// Live updates
	mux.HandleFunc("GET /ws/t/{code}", log(streamHandler.Session))
	mux.HandleFunc("GET /ws/kitchen", log(kitchen(streamHandler.Kitchen)))
	mux.HandleFunc("GET /ws/staff", log(anyStaff(streamHandler.Staff)))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tablepay API v1"))
	})

	return mux
}
