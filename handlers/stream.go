// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type StreamHandler struct {
	db       *sql.DB
	cfg      cliparse.Config
	hub      events.Hub
	upgrader websocket.Upgrader
}

func NewStreamHandler(db *sql.DB, cfg cliparse.Config, hub events.Hub) *StreamHandler {
	h := &StreamHandler{db: db, cfg: cfg, hub: hub}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == cfg.PublicBaseURL
		},
	}
	return h
}

// Session handles GET /ws/t/{code}. Browsers cannot set headers on a
// WebSocket, so the guest token comes as ?guest_token=.
func (h *StreamHandler) Session(w http.ResponseWriter, r *http.Request) {
	g, ok := resolveGuest(w, r, h.db)
	if !ok {
		return
	}
	h.serve(w, r, events.SessionTopic(g.Guest.SessionID))
}

// Kitchen handles GET /ws/kitchen
func (h *StreamHandler) Kitchen(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, events.TopicKitchen)
}

// Staff handles GET /ws/staff
func (h *StreamHandler) Staff(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, events.TopicStaff)
}

// serve upgrades the connection and forwards hub events until either side
// goes away
func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, topics ...string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(topics...)
	defer sub.Close()

	slog.Info("stream opened", "topics", topics, "remote", r.RemoteAddr)

	// The reader only exists to notice the client leaving and to handle pongs
	done := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			slog.Info("stream closed", "topics", topics)
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
