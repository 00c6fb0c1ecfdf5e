// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/db"
)

// SetupTestDB opens a fresh SQLite database with the full schema. The file
// lives in a per-test temp dir so parallel connections see the same data.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tablepay_test.db")
	conn, err := db.Open(db.TypeSQLite, path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:           3318,
		DatabaseURL:    "test.db",
		DatabaseType:   db.TypeSQLite,
		TableCodeSalt:  "test-code-salt",
		JWTSecret:      "test-jwt-secret",
		TokenTTL:       time.Hour,
		GatewayURL:     "http://gateway.invalid",
		GatewayKey:     "sk_test",
		WebhookSecret:  "whsec_test",
		Currency:       "usd",
		PoolTTL:        30 * time.Minute,
		PaymentTTL:     20 * time.Minute,
		SessionIdleTTL: 6 * time.Hour,
		SweepInterval:  time.Minute,
		PublicBaseURL:  "http://localhost:5173",
	}
}

// CreateTestTable creates an active dining table and returns its ID and code
func CreateTestTable(t *testing.T, conn *sql.DB, cfg cliparse.Config, label string) (tableID, code string) {
	t.Helper()

	tableID, _ = auth.GenerateID(12)
	code = auth.GenerateTableCode(tableID, cfg.TableCodeSalt)
	_, err := conn.Exec(`
		INSERT INTO dining_table (id, label, code, seats, active, created_at)
		VALUES ($1, $2, $3, 4, TRUE, $4)
	`, tableID, label, code, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}

	return tableID, code
}

// OpenTestSession opens a session at a table
func OpenTestSession(t *testing.T, conn *sql.DB, tableID string) string {
	t.Helper()

	sessionID, _ := auth.GenerateID(16)
	now := time.Now().UTC()
	_, err := conn.Exec(`
		INSERT INTO table_session (id, table_id, status, opened_at, last_active_at)
		VALUES ($1, $2, 'open', $3, $3)
	`, sessionID, tableID, now)
	if err != nil {
		t.Fatalf("Failed to open test session: %v", err)
	}

	return sessionID
}

// CreateTestGuest adds a guest to a session and returns the guest ID and token
func CreateTestGuest(t *testing.T, conn *sql.DB, sessionID, name string) (guestID, token string) {
	t.Helper()

	guestID, _ = auth.GenerateID(12)
	token, _ = auth.GenerateGuestToken()
	_, err := conn.Exec(`
		INSERT INTO guest (id, session_id, name, token, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, guestID, sessionID, name, token, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test guest: %v", err)
	}

	return guestID, token
}

// CreateTestCategory creates a menu category
func CreateTestCategory(t *testing.T, conn *sql.DB, name string) string {
	t.Helper()

	id, _ := auth.GenerateID(12)
	if _, err := conn.Exec(`INSERT INTO menu_category (id, name, sort_order) VALUES ($1, $2, 0)`, id, name); err != nil {
		t.Fatalf("Failed to create test category: %v", err)
	}
	return id
}

// CreateTestMenuItem creates an available menu item
func CreateTestMenuItem(t *testing.T, conn *sql.DB, categoryID, name string, priceCents int64) string {
	t.Helper()

	id, _ := auth.GenerateID(12)
	_, err := conn.Exec(`
		INSERT INTO menu_item (id, category_id, name, description, price_cents, available, sort_order)
		VALUES ($1, $2, $3, '', $4, TRUE, 0)
	`, id, categoryID, name, priceCents)
	if err != nil {
		t.Fatalf("Failed to create test menu item: %v", err)
	}
	return id
}

// CreateTestOrder places a pending order of quantity x menu item for a guest
// and returns the order ID
func CreateTestOrder(t *testing.T, conn *sql.DB, sessionID, guestID, menuItemID string, quantity int) string {
	t.Helper()

	var name string
	var price int64
	if err := conn.QueryRow(`SELECT name, price_cents FROM menu_item WHERE id = $1`, menuItemID).Scan(&name, &price); err != nil {
		t.Fatalf("Failed to load menu item: %v", err)
	}

	orderID, _ := auth.GenerateID(16)
	itemID, _ := auth.GenerateID(12)
	now := time.Now().UTC()

	_, err := conn.Exec(`
		INSERT INTO orders (id, session_id, guest_id, status, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, $5, $5)
	`, orderID, sessionID, guestID, price*int64(quantity), now)
	if err != nil {
		t.Fatalf("Failed to create test order: %v", err)
	}

	_, err = conn.Exec(`
		INSERT INTO order_item (id, order_id, menu_item_id, name, quantity, unit_price_cents, notes)
		VALUES ($1, $2, $3, $4, $5, $6, '')
	`, itemID, orderID, menuItemID, name, quantity, price)
	if err != nil {
		t.Fatalf("Failed to create test order item: %v", err)
	}

	return orderID
}

// CreateTestStaff creates a staff account; the password is "password123"
func CreateTestStaff(t *testing.T, conn *sql.DB, email, role string) string {
	t.Helper()

	id, _ := auth.GenerateID(12)
	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	_, err = conn.Exec(`
		INSERT INTO staff (id, email, name, role, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`, id, email, role+" user", role, hash, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test staff: %v", err)
	}
	return id
}

// StaffToken issues a bearer token for a staff member
func StaffToken(t *testing.T, cfg cliparse.Config, staffID, role string) string {
	t.Helper()

	token, _, err := auth.IssueStaffToken(staffID, role+" user", role, cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		t.Fatalf("Failed to issue staff token: %v", err)
	}
	return token
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
