// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/models"
	"github.com/danielhkuo/tablepay/testutil"
)

func TestGetMenu(t *testing.T) {
	e := newTestEnv(t)
	handler := NewMenuHandler(e.db, e.cfg, e.hub)

	e.db.Exec(`UPDATE menu_item SET available = FALSE WHERE id = $1`, e.fries)
	testutil.CreateTestCategory(t, e.db, "Drinks")

	w := serve(handler.GetMenu, testutil.MakeRequest("GET", "/menu", nil, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var menu []models.MenuCategory
	testutil.AssertJSON(t, w, &menu)
	if len(menu) != 2 {
		t.Fatalf("Expected 2 categories, got %d", len(menu))
	}
	// Both have sort_order 0, so names decide
	if menu[0].Name != "Drinks" || len(menu[0].Items) != 0 {
		t.Errorf("Expected an empty Drinks category first, got %+v", menu[0])
	}
	if len(menu[1].Items) != 1 || menu[1].Items[0].ID != e.burger {
		t.Errorf("Expected only the burger to be listed, got %+v", menu[1].Items)
	}
}

func TestCreateCategory(t *testing.T) {
	e := newTestEnv(t)
	handler := NewMenuHandler(e.db, e.cfg, e.hub)

	tests := []struct {
		name           string
		body           models.CreateCategoryRequest
		expectedStatus int
	}{
		{"new category", models.CreateCategoryRequest{Name: "Desserts", SortOrder: 5}, http.StatusCreated},
		{"duplicate", models.CreateCategoryRequest{Name: "Mains"}, http.StatusConflict},
		{"missing name", models.CreateCategoryRequest{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler.CreateCategory, testutil.MakeRequest("POST", "/admin/menu/categories", tt.body, nil))
			testutil.AssertStatus(t, w, tt.expectedStatus)
		})
	}
}

func TestCreateItem(t *testing.T) {
	e := newTestEnv(t)
	handler := NewMenuHandler(e.db, e.cfg, e.hub)
	cat := testutil.CreateTestCategory(t, e.db, "Drinks")

	sub := e.hub.Subscribe(events.TopicKitchen)
	defer sub.Close()

	tests := []struct {
		name           string
		body           models.CreateMenuItemRequest
		expectedStatus int
	}{
		{"valid", models.CreateMenuItemRequest{CategoryID: cat, Name: "Lemonade", PriceCents: 350}, http.StatusCreated},
		{"unknown category", models.CreateMenuItemRequest{CategoryID: "nope", Name: "Tea", PriceCents: 300}, http.StatusNotFound},
		{"free item", models.CreateMenuItemRequest{CategoryID: cat, Name: "Water", PriceCents: 0}, http.StatusBadRequest},
		{"negative price", models.CreateMenuItemRequest{CategoryID: cat, Name: "Refund", PriceCents: -100}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler.CreateItem, testutil.MakeRequest("POST", "/admin/menu/items", tt.body, nil))
			testutil.AssertStatus(t, w, tt.expectedStatus)
		})
	}

	select {
	case ev := <-sub.C:
		if ev.Type != events.TypeMenuChanged {
			t.Errorf("Expected %s, got %s", events.TypeMenuChanged, ev.Type)
		}
	case <-time.After(time.Second):
		t.Error("Kitchen was not told about the new item")
	}
}

func TestUpdateItem(t *testing.T) {
	e := newTestEnv(t)
	handler := NewMenuHandler(e.db, e.cfg, e.hub)

	// An order placed before the price change keeps its price
	orderID := testutil.CreateTestOrder(t, e.db, e.sessionID, e.alice, e.burger, 1)

	price := int64(1500)
	available := false
	req := testutil.MakeRequest("PATCH", "/admin/menu/items/"+e.burger,
		models.UpdateMenuItemRequest{PriceCents: &price, Available: &available}, nil)
	req.SetPathValue("id", e.burger)
	w := serve(handler.UpdateItem, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var item models.MenuItem
	testutil.AssertJSON(t, w, &item)
	if item.PriceCents != 1500 || item.Available || item.Name != "Burger" {
		t.Errorf("Unexpected item after update: %+v", item)
	}

	var total int64
	e.db.QueryRow(`SELECT total_cents FROM orders WHERE id = $1`, orderID).Scan(&total)
	if total != 1200 {
		t.Errorf("Existing order total changed to %d", total)
	}

	req = testutil.MakeRequest("PATCH", "/admin/menu/items/missing", models.UpdateMenuItemRequest{Available: &available}, nil)
	req.SetPathValue("id", "missing")
	testutil.AssertStatus(t, serve(handler.UpdateItem, req), http.StatusNotFound)

	zero := int64(0)
	req = testutil.MakeRequest("PATCH", "/admin/menu/items/"+e.burger, models.UpdateMenuItemRequest{PriceCents: &zero}, nil)
	req.SetPathValue("id", e.burger)
	testutil.AssertStatus(t, serve(handler.UpdateItem, req), http.StatusBadRequest)
}
