// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
)

// ErrTableExists is returned by InsertTable for a duplicate label
var ErrTableExists = errors.New("table label already exists")

type AdminHandler struct {
	db      *sql.DB
	cfg     cliparse.Config
	svc     *billing.Service
	sweeper *billing.Sweeper
	hub     events.Hub
}

func NewAdminHandler(db *sql.DB, cfg cliparse.Config, svc *billing.Service, sweeper *billing.Sweeper, hub events.Hub) *AdminHandler {
	return &AdminHandler{db: db, cfg: cfg, svc: svc, sweeper: sweeper, hub: hub}
}

// InsertTable creates a dining table and derives its QR code
func InsertTable(ctx context.Context, q db.Querier, salt, label string, seats int) (models.DiningTable, error) {
	id, err := auth.GenerateID(12)
	if err != nil {
		return models.DiningTable{}, err
	}
	t := models.DiningTable{
		ID:        id,
		Label:     strings.TrimSpace(label),
		Code:      auth.GenerateTableCode(id, salt),
		Seats:     seats,
		Active:    true,
		CreatedAt: now(),
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO dining_table (id, label, code, seats, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Label, t.Code, t.Seats, t.Active, t.CreatedAt)
	if db.IsUniqueViolation(err) {
		return models.DiningTable{}, ErrTableExists
	}
	if err != nil {
		return models.DiningTable{}, fmt.Errorf("failed to insert table: %w", err)
	}
	return t, nil
}

// ListTables returns every table, active or not, ordered by label
func ListTables(ctx context.Context, q db.Querier) ([]models.DiningTable, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, label, code, seats, active, created_at FROM dining_table ORDER BY label
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []models.DiningTable{}
	for rows.Next() {
		var t models.DiningTable
		if err := rows.Scan(&t.ID, &t.Label, &t.Code, &t.Seats, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// CreateTable handles POST /admin/tables
func (h *AdminHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTableRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := InsertTable(r.Context(), h.db, h.cfg.TableCodeSalt, req.Label, req.Seats)
	if errors.Is(err, ErrTableExists) {
		middleware.ErrorResponse(w, http.StatusConflict, "A table with that label already exists")
		return
	}
	if err != nil {
		slog.Error("failed to create table", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create table")
		return
	}

	slog.Info("table created", "table_id", t.ID, "label", t.Label)
	middleware.JSONResponse(w, http.StatusCreated, t)
}

// ListTables handles GET /admin/tables
func (h *AdminHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := ListTables(r.Context(), h.db)
	if err != nil {
		slog.Error("failed to list tables", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, tables)
}

// SetTableActive handles POST /admin/tables/{id}/active. Deactivating stops
// new guests from joining; a sitting in progress is left alone.
func (h *AdminHandler) SetTableActive(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("id")
	var req models.SetTableActiveRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.db.ExecContext(r.Context(), `UPDATE dining_table SET active = $1 WHERE id = $2`, req.Active, tableID)
	if err != nil {
		slog.Error("failed to update table", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update table")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Table not found")
		return
	}

	slog.Info("table active changed", "table_id", tableID, "active", req.Active)
	events.PublishAll(r.Context(), h.hub, events.TypeTableStateChanged,
		map[string]interface{}{"table_id": tableID, "active": req.Active}, events.TopicStaff)

	middleware.JSONResponse(w, http.StatusOK, map[string]interface{}{"table_id": tableID, "active": req.Active})
}

// CreateStaff handles POST /admin/staff
func (h *AdminHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStaffRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	st, err := InsertStaff(r.Context(), h.db, req)
	if errors.Is(err, ErrStaffExists) {
		middleware.ErrorResponse(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		slog.Error("failed to create staff", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create staff")
		return
	}

	slog.Info("staff created", "staff_id", st.ID, "role", st.Role)
	middleware.JSONResponse(w, http.StatusCreated, st)
}

// Refund handles POST /admin/payments/{id}/refund
func (h *AdminHandler) Refund(w http.ResponseWriter, r *http.Request) {
	payment, err := h.svc.Refund(r.Context(), r.PathValue("id"))
	if err != nil {
		billingError(w, err, "refund payment")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, payment)
}

// Sweep handles POST /admin/sweep: one cleanup pass on demand
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.SweepOnce(r.Context())
	if err != nil {
		slog.Error("manual sweep failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Sweep failed")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, result)
}
