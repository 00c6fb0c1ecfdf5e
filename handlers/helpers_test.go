// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/tablepay/billing"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/testutil"
)

// testEnv is one table with an open session, two guests and a small menu
type testEnv struct {
	db  *sql.DB
	cfg cliparse.Config
	gw  *testutil.FakeGateway
	hub *events.MemoryHub
	svc *billing.Service

	tableID    string
	code       string
	sessionID  string
	alice      string
	aliceToken string
	bob        string
	bobToken   string
	burger     string // 1200
	fries      string // 450
	waiter     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	gw := testutil.NewFakeGateway()
	hub := events.NewMemoryHub()

	e := &testEnv{
		db:  conn,
		cfg: cfg,
		gw:  gw,
		hub: hub,
		svc: billing.NewService(conn, gw, billing.Options{Currency: cfg.Currency, PoolTTL: cfg.PoolTTL, Hub: hub}),
	}
	e.tableID, e.code = testutil.CreateTestTable(t, conn, cfg, "T1")
	e.sessionID = testutil.OpenTestSession(t, conn, e.tableID)
	e.alice, e.aliceToken = testutil.CreateTestGuest(t, conn, e.sessionID, "Alice")
	e.bob, e.bobToken = testutil.CreateTestGuest(t, conn, e.sessionID, "Bob")

	cat := testutil.CreateTestCategory(t, conn, "Mains")
	e.burger = testutil.CreateTestMenuItem(t, conn, cat, "Burger", 1200)
	e.fries = testutil.CreateTestMenuItem(t, conn, cat, "Fries", 450)
	e.waiter = testutil.CreateTestStaff(t, conn, "floor@example.com", "waiter")
	return e
}

// guestRequest builds a request on a /t/{code} route for a guest
func (e *testEnv) guestRequest(method, path string, body interface{}, token string) *http.Request {
	headers := map[string]string{}
	if token != "" {
		headers[guestTokenHeader] = token
	}
	req := testutil.MakeRequest(method, path, body, headers)
	req.SetPathValue("code", e.code)
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, req)
	return w
}
