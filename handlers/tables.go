// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
)

var errNameTaken = errors.New("name already taken")

type TableHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub events.Hub
}

func NewTableHandler(db *sql.DB, cfg cliparse.Config, hub events.Hub) *TableHandler {
	return &TableHandler{db: db, cfg: cfg, hub: hub}
}

// GetTable handles GET /t/{code}
func (h *TableHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	table, err := findTable(r.Context(), h.db, r.PathValue("code"))
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Table not found")
		return
	}
	if err != nil {
		slog.Error("failed to query table", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	view := models.TableView{Table: table}

	var s models.SessionView
	err = h.db.QueryRowContext(r.Context(), `
		SELECT s.id, s.status, s.opened_at, (SELECT COUNT(*) FROM guest g WHERE g.session_id = s.id)
		FROM table_session s
		WHERE s.table_id = $1 AND s.status = 'open'
	`, table.ID).Scan(&s.ID, &s.Status, &s.OpenedAt, &s.GuestCount)
	switch {
	case err == nil:
		view.Session = &s
	case err != sql.ErrNoRows:
		slog.Error("failed to query session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, view)
}

// Join handles POST /t/{code}/join
func (h *TableHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req models.JoinTableRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	ctx := r.Context()
	table, err := findTable(ctx, h.db, r.PathValue("code"))
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Table not found")
		return
	}
	if err != nil {
		slog.Error("failed to query table", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !table.Active {
		middleware.ErrorResponse(w, http.StatusConflict, "Table is not taking orders")
		return
	}

	// A device that already joined this sitting gets its guest back
	var deviceUUID *string
	if raw := r.Header.Get("X-Device-UUID"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "X-Device-UUID must be a UUID")
			return
		}
		s := parsed.String()
		deviceUUID = &s

		resp, found, err := h.existingGuest(ctx, table.ID, s)
		if err != nil {
			slog.Error("failed to look up device guest", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		if found {
			middleware.JSONResponse(w, http.StatusOK, resp)
			return
		}
	}

	guestID, err := auth.GenerateID(12)
	if err != nil {
		slog.Error("failed to generate guest ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join table")
		return
	}
	token, err := auth.GenerateGuestToken()
	if err != nil {
		slog.Error("failed to generate guest token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join table")
		return
	}
	guest := newGuest{
		id:         guestID,
		name:       name,
		token:      token,
		deviceUUID: deviceUUID,
		ipHash:     auth.HashIP(middleware.GetClientIP(r), h.cfg.TableCodeSalt),
	}

	var sessionID string
	var opened bool
	for attempt := 0; ; attempt++ {
		sessionID, opened, err = h.openSession(ctx, table.ID)
		if err != nil {
			slog.Error("failed to open table session", "error", err, "table_id", table.ID)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join table")
			return
		}
		err = h.claimName(ctx, sessionID, guest)
		// the sweeper may close an idle sitting between lookup and claim
		if errors.Is(err, billing.ErrSessionClosed) && attempt < 2 {
			continue
		}
		break
	}
	switch {
	case errors.Is(err, errNameTaken):
		middleware.ErrorResponse(w, http.StatusConflict, "Name already taken at this table")
		return
	case errors.Is(err, billing.ErrSessionClosed):
		middleware.ErrorResponse(w, http.StatusConflict, "Table session closed, please try again")
		return
	case err != nil:
		slog.Error("failed to insert guest", "error", err, "session_id", sessionID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join table")
		return
	}

	slog.Info("guest joined", "table", table.Label, "session_id", sessionID, "guest_id", guestID)

	events.PublishAll(ctx, h.hub, events.TypeGuestJoined,
		map[string]string{"guest_id": guestID, "name": name},
		events.SessionTopic(sessionID), events.TopicStaff)
	if opened {
		events.PublishAll(ctx, h.hub, events.TypeTableStateChanged,
			map[string]string{"table_id": table.ID, "session_id": sessionID, "status": models.SessionOpen},
			events.TopicStaff)
	}

	middleware.JSONResponse(w, http.StatusCreated, models.JoinTableResponse{
		SessionID:  sessionID,
		GuestID:    guestID,
		GuestToken: token,
		IsNew:      true,
	})
}

type newGuest struct {
	id         string
	name       string
	token      string
	deviceUUID *string
	ipHash     string
}

// claimName adds the guest to an open session. The session row is locked
// before the insert so a guest never lands in a sitting closed concurrently.
func (h *TableHandler) claimName(ctx context.Context, sessionID string, g newGuest) error {
	return db.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		joinedAt := now()
		if err := billing.LockOpenSession(ctx, tx, sessionID, joinedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guest (id, session_id, name, token, device_uuid, ip_hash, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, g.id, sessionID, g.name, g.token, g.deviceUUID, g.ipHash, joinedAt)
		if db.IsUniqueViolation(err) {
			return errNameTaken
		}
		return err
	})
}

func (h *TableHandler) existingGuest(ctx context.Context, tableID, deviceUUID string) (models.JoinTableResponse, bool, error) {
	var resp models.JoinTableResponse
	err := h.db.QueryRowContext(ctx, `
		SELECT g.session_id, g.id, g.token
		FROM guest g
		JOIN table_session s ON s.id = g.session_id
		WHERE s.table_id = $1 AND s.status = 'open' AND g.device_uuid = $2
	`, tableID, deviceUUID).Scan(&resp.SessionID, &resp.GuestID, &resp.GuestToken)
	if err == sql.ErrNoRows {
		return resp, false, nil
	}
	if err != nil {
		return resp, false, err
	}
	return resp, true, nil
}

// openSession returns the table's open session, creating one if needed.
// Two guests scanning at once race on the one-open-session index; the loser
// reads the winner's row.
func (h *TableHandler) openSession(ctx context.Context, tableID string) (string, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var sessionID string
		err := h.db.QueryRowContext(ctx, `
			SELECT id FROM table_session WHERE table_id = $1 AND status = 'open'
		`, tableID).Scan(&sessionID)
		if err == nil {
			return sessionID, false, nil
		}
		if err != sql.ErrNoRows {
			return "", false, err
		}

		sessionID, err = auth.GenerateID(16)
		if err != nil {
			return "", false, err
		}
		openedAt := now()
		_, err = h.db.ExecContext(ctx, `
			INSERT INTO table_session (id, table_id, status, opened_at, last_active_at)
			VALUES ($1, $2, 'open', $3, $3)
		`, sessionID, tableID, openedAt)
		if err == nil {
			slog.Info("table session opened", "table_id", tableID, "session_id", sessionID)
			return sessionID, true, nil
		}
		if !db.IsUniqueViolation(err) {
			return "", false, err
		}
	}
	return "", false, errors.New("could not settle on an open session")
}

// Me handles GET /t/{code}/me
func (h *TableHandler) Me(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}

	ctx := r.Context()
	orders, err := billing.ListOrders(ctx, h.db, billing.OrderFilter{SessionID: g.Guest.SessionID, GuestID: g.Guest.ID})
	if err != nil {
		slog.Error("failed to list guest orders", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	due, err := billing.GuestDue(ctx, h.db, g.Guest.SessionID, g.Guest.ID)
	if err != nil {
		slog.Error("failed to sum guest due", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.GuestView{
		Guest:    g.Guest,
		Orders:   orders,
		DueCents: due,
	})
}

// CreateRequest handles POST /t/{code}/requests
func (h *TableHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	var req models.ServiceRequestRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	if !g.sessionOpen() {
		middleware.ErrorResponse(w, http.StatusConflict, "Table session is closed")
		return
	}

	id, err := auth.GenerateID(12)
	if err != nil {
		slog.Error("failed to generate request ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create request")
		return
	}

	sr := models.ServiceRequest{
		ID:         id,
		SessionID:  g.Guest.SessionID,
		TableLabel: g.TableLabel,
		GuestID:    g.Guest.ID,
		GuestName:  g.Guest.Name,
		Kind:       req.Kind,
		CreatedAt:  now(),
	}
	_, err = h.db.ExecContext(r.Context(), `
		INSERT INTO service_request (id, session_id, guest_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sr.ID, sr.SessionID, sr.GuestID, sr.Kind, sr.CreatedAt)
	if err != nil {
		slog.Error("failed to insert service request", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create request")
		return
	}

	slog.Info("service request created", "table", g.TableLabel, "kind", sr.Kind)
	events.PublishAll(r.Context(), h.hub, events.TypeServiceRequest, sr,
		events.TopicStaff, events.SessionTopic(sr.SessionID))

	middleware.JSONResponse(w, http.StatusCreated, sr)
}
