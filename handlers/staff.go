// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
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

// ErrStaffExists is returned by InsertStaff for a duplicate email
var ErrStaffExists = errors.New("staff email already registered")

type StaffHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	svc *billing.Service
	hub events.Hub
}

func NewStaffHandler(db *sql.DB, cfg cliparse.Config, svc *billing.Service, hub events.Hub) *StaffHandler {
	return &StaffHandler{db: db, cfg: cfg, svc: svc, hub: hub}
}

// InsertStaff creates a staff account with a hashed password
func InsertStaff(ctx context.Context, q db.Querier, req models.CreateStaffRequest) (models.Staff, error) {
	id, err := auth.GenerateID(12)
	if err != nil {
		return models.Staff{}, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.Staff{}, fmt.Errorf("failed to hash password: %w", err)
	}

	st := models.Staff{
		ID:        id,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Name:      req.Name,
		Role:      req.Role,
		Active:    true,
		CreatedAt: now(),
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO staff (id, email, name, role, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, st.ID, st.Email, st.Name, st.Role, hash, st.Active, st.CreatedAt)
	if db.IsUniqueViolation(err) {
		return models.Staff{}, ErrStaffExists
	}
	if err != nil {
		return models.Staff{}, fmt.Errorf("failed to insert staff: %w", err)
	}
	return st, nil
}

// BootstrapAdmin creates the configured admin account on first start
func BootstrapAdmin(ctx context.Context, conn *sql.DB, email, password string) error {
	if email == "" {
		return nil
	}
	_, err := InsertStaff(ctx, conn, models.CreateStaffRequest{
		Email:    email,
		Name:     "Administrator",
		Role:     models.RoleAdmin,
		Password: password,
	})
	if errors.Is(err, ErrStaffExists) {
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("bootstrap admin created", "email", email)
	return nil
}

// Login handles POST /staff/login
func (h *StaffHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.StaffLoginRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	var st models.Staff
	var hash string
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, email, name, role, active, created_at, password_hash
		FROM staff WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(req.Email))).Scan(&st.ID, &st.Email, &st.Name, &st.Role, &st.Active, &st.CreatedAt, &hash)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		slog.Error("failed to query staff", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := auth.CheckPassword(hash, req.Password); err != nil {
		slog.Warn("failed staff login", "email", st.Email, "remote", middleware.GetClientIP(r))
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !st.Active {
		middleware.ErrorResponse(w, http.StatusForbidden, "Account is disabled")
		return
	}

	token, expiresAt, err := auth.IssueStaffToken(st.ID, st.Name, st.Role, h.cfg.JWTSecret, h.cfg.TokenTTL)
	if err != nil {
		slog.Error("failed to issue staff token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	slog.Info("staff logged in", "staff_id", st.ID, "role", st.Role)
	middleware.JSONResponse(w, http.StatusOK, models.StaffLoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Staff:     st,
	})
}

// Tables handles GET /staff/tables: every active table with its open session
func (h *StaffHandler) Tables(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT t.id, t.label, t.code, s.id, s.opened_at,
		       (SELECT COUNT(*) FROM guest g WHERE g.session_id = s.id),
		       (SELECT COUNT(*) FROM orders o WHERE o.session_id = s.id AND o.status <> 'cancelled'),
		       (SELECT COALESCE(SUM(o.total_cents), 0) FROM orders o
		         WHERE o.session_id = s.id AND o.status <> 'cancelled'),
		       (SELECT COALESCE(SUM(o.total_cents), 0) FROM orders o
		         WHERE o.session_id = s.id AND o.status <> 'cancelled' AND o.paid_at IS NOT NULL),
		       (SELECT COUNT(*) FROM service_request sr WHERE sr.session_id = s.id AND sr.acked_at IS NULL)
		FROM dining_table t
		LEFT JOIN table_session s ON s.table_id = t.id AND s.status = 'open'
		WHERE t.active = TRUE
		ORDER BY t.label
	`)
	if err != nil {
		slog.Error("failed to query tables", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	tables := []models.TableSummary{}
	for rows.Next() {
		var ts models.TableSummary
		if err := rows.Scan(&ts.TableID, &ts.Label, &ts.Code, &ts.SessionID, &ts.OpenedAt,
			&ts.GuestCount, &ts.OrderCount, &ts.TotalCents, &ts.PaidCents, &ts.OpenRequests); err != nil {
			slog.Error("failed to scan table summary", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		ts.OutstandingCents = ts.TotalCents - ts.PaidCents
		tables = append(tables, ts)
	}
	if err := rows.Err(); err != nil {
		slog.Error("failed to read tables", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, tables)
}

// Requests handles GET /staff/requests. Acknowledged requests are included
// with ?all=true.
func (h *StaffHandler) Requests(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT sr.id, sr.session_id, t.label, sr.guest_id, g.name, sr.kind, sr.created_at, sr.acked_at, sr.acked_by
		FROM service_request sr
		JOIN guest g ON g.id = sr.guest_id
		JOIN table_session s ON s.id = sr.session_id
		JOIN dining_table t ON t.id = s.table_id
		WHERE s.status = 'open'`
	if r.URL.Query().Get("all") != "true" {
		query += ` AND sr.acked_at IS NULL`
	}
	query += ` ORDER BY sr.created_at, sr.id`

	rows, err := h.db.QueryContext(r.Context(), query)
	if err != nil {
		slog.Error("failed to query service requests", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	defer rows.Close()

	requests := []models.ServiceRequest{}
	for rows.Next() {
		var sr models.ServiceRequest
		if err := rows.Scan(&sr.ID, &sr.SessionID, &sr.TableLabel, &sr.GuestID, &sr.GuestName,
			&sr.Kind, &sr.CreatedAt, &sr.AckedAt, &sr.AckedBy); err != nil {
			slog.Error("failed to scan service request", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		requests = append(requests, sr)
	}
	if err := rows.Err(); err != nil {
		slog.Error("failed to iterate service requests", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, requests)
}

// AckRequest handles POST /staff/requests/{id}/ack
func (h *StaffHandler) AckRequest(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	claims, _ := middleware.StaffFromContext(r.Context())

	ackedBy := ""
	if claims != nil {
		ackedBy = claims.Name
	}

	ctx := r.Context()
	res, err := h.db.ExecContext(ctx, `
		UPDATE service_request SET acked_at = $1, acked_by = $2
		WHERE id = $3 AND acked_at IS NULL
	`, now(), ackedBy, requestID)
	if err != nil {
		slog.Error("failed to ack service request", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to acknowledge request")
		return
	}

	var sessionID string
	err = h.db.QueryRowContext(ctx, `SELECT session_id FROM service_request WHERE id = $1`, requestID).Scan(&sessionID)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Request not found")
		return
	}
	if err != nil {
		slog.Error("failed to query service request", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		middleware.ErrorResponse(w, http.StatusConflict, "Request already acknowledged")
		return
	}

	payload := map[string]string{"request_id": requestID, "acked_by": ackedBy}
	events.PublishAll(ctx, h.hub, events.TypeRequestAcked, payload, events.TopicStaff, events.SessionTopic(sessionID))

	middleware.JSONResponse(w, http.StatusOK, payload)
}

// RecordCash handles POST /staff/sessions/{id}/cash
func (h *StaffHandler) RecordCash(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	claims, ok := middleware.StaffFromContext(r.Context())
	if !ok {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Staff token required")
		return
	}

	amount, err := h.svc.RecordCash(r.Context(), sessionID, claims.StaffID)
	if err != nil {
		billingError(w, err, "record cash")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, map[string]interface{}{
		"session_id":   sessionID,
		"amount_cents": amount,
		"currency":     h.svc.Currency(),
		"collected_by": claims.StaffID,
	})
}

// CloseSession handles POST /staff/sessions/{id}/close. Only admins may
// force-close a session with unpaid orders.
func (h *StaffHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req models.CloseSessionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	claims, _ := middleware.StaffFromContext(r.Context())
	if req.Force && (claims == nil || claims.Role != models.RoleAdmin) {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only admins can force-close a session")
		return
	}

	receipt, err := h.svc.CloseSession(r.Context(), sessionID, req.Force)
	if err != nil {
		billingError(w, err, "close session")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, receipt)
}
