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

	"github.com/danielhkuo/tablepay/auth"
	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/events"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
)

type MenuHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub events.Hub
}

func NewMenuHandler(db *sql.DB, cfg cliparse.Config, hub events.Hub) *MenuHandler {
	return &MenuHandler{db: db, cfg: cfg, hub: hub}
}

// LoadMenu returns categories with their items. Unavailable items are
// dropped unless includeUnavailable is set.
func LoadMenu(ctx context.Context, q db.Querier, includeUnavailable bool) ([]models.MenuCategory, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, sort_order FROM menu_category ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	categories := []models.MenuCategory{}
	index := map[string]int{}
	for rows.Next() {
		c := models.MenuCategory{Items: []models.MenuItem{}}
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder); err != nil {
			rows.Close()
			return nil, err
		}
		index[c.ID] = len(categories)
		categories = append(categories, c)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT id, category_id, name, description, price_cents, available, sort_order
		FROM menu_item ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.MenuItem
		if err := rows.Scan(&it.ID, &it.CategoryID, &it.Name, &it.Description, &it.PriceCents, &it.Available, &it.SortOrder); err != nil {
			return nil, err
		}
		if !it.Available && !includeUnavailable {
			continue
		}
		if i, ok := index[it.CategoryID]; ok {
			categories[i].Items = append(categories[i].Items, it)
		}
	}
	return categories, rows.Err()
}

// ErrCategoryExists is returned by InsertCategory for a duplicate name
var ErrCategoryExists = errors.New("menu category already exists")

// InsertCategory creates an empty menu category
func InsertCategory(ctx context.Context, q db.Querier, name string, sortOrder int) (models.MenuCategory, error) {
	id, err := auth.GenerateID(12)
	if err != nil {
		return models.MenuCategory{}, err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO menu_category (id, name, sort_order) VALUES ($1, $2, $3)
	`, id, name, sortOrder)
	if db.IsUniqueViolation(err) {
		return models.MenuCategory{}, ErrCategoryExists
	}
	if err != nil {
		return models.MenuCategory{}, fmt.Errorf("failed to insert category: %w", err)
	}
	return models.MenuCategory{ID: id, Name: name, SortOrder: sortOrder, Items: []models.MenuItem{}}, nil
}

// InsertMenuItem stores item under a fresh ID and returns it
func InsertMenuItem(ctx context.Context, q db.Querier, item models.MenuItem) (models.MenuItem, error) {
	id, err := auth.GenerateID(12)
	if err != nil {
		return models.MenuItem{}, err
	}
	item.ID = id
	_, err = q.ExecContext(ctx, `
		INSERT INTO menu_item (id, category_id, name, description, price_cents, available, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.CategoryID, item.Name, item.Description, item.PriceCents, item.Available, item.SortOrder)
	if err != nil {
		return models.MenuItem{}, fmt.Errorf("failed to insert menu item: %w", err)
	}
	return item, nil
}

// GetMenu handles GET /menu
func (h *MenuHandler) GetMenu(w http.ResponseWriter, r *http.Request) {
	categories, err := LoadMenu(r.Context(), h.db, false)
	if err != nil {
		slog.Error("failed to load menu", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, categories)
}

// CreateCategory handles POST /admin/menu/categories
func (h *MenuHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCategoryRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	cat, err := InsertCategory(r.Context(), h.db, req.Name, req.SortOrder)
	if errors.Is(err, ErrCategoryExists) {
		middleware.ErrorResponse(w, http.StatusConflict, "Category already exists")
		return
	}
	if err != nil {
		slog.Error("failed to insert category", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create category")
		return
	}

	slog.Info("menu category created", "category_id", cat.ID, "name", cat.Name)
	middleware.JSONResponse(w, http.StatusCreated, cat)
}

// CreateItem handles POST /admin/menu/items
func (h *MenuHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMenuItemRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	var exists bool
	err := h.db.QueryRowContext(r.Context(), `
		SELECT EXISTS(SELECT 1 FROM menu_category WHERE id = $1)
	`, req.CategoryID).Scan(&exists)
	if err != nil {
		slog.Error("failed to query category", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if !exists {
		middleware.ErrorResponse(w, http.StatusNotFound, "Category not found")
		return
	}

	item, err := InsertMenuItem(r.Context(), h.db, models.MenuItem{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Available:   true,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		slog.Error("failed to insert menu item", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create item")
		return
	}

	slog.Info("menu item created", "item_id", item.ID, "name", item.Name, "price_cents", item.PriceCents)
	events.PublishAll(r.Context(), h.hub, events.TypeMenuChanged, item, events.TopicStaff, events.TopicKitchen)

	middleware.JSONResponse(w, http.StatusCreated, item)
}

// UpdateItem handles PATCH /admin/menu/items/{id}. Price changes never touch
// orders already placed; those carry their own snapshot.
func (h *MenuHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	var req models.UpdateMenuItemRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	var item models.MenuItem
	err := db.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id, category_id, name, description, price_cents, available, sort_order
			FROM menu_item WHERE id = $1
		`, itemID).Scan(&item.ID, &item.CategoryID, &item.Name, &item.Description, &item.PriceCents, &item.Available, &item.SortOrder)
		if err != nil {
			return err
		}

		if req.Name != nil {
			item.Name = *req.Name
		}
		if req.Description != nil {
			item.Description = *req.Description
		}
		if req.PriceCents != nil {
			item.PriceCents = *req.PriceCents
		}
		if req.Available != nil {
			item.Available = *req.Available
		}
		if req.SortOrder != nil {
			item.SortOrder = *req.SortOrder
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE menu_item
			SET name = $1, description = $2, price_cents = $3, available = $4, sort_order = $5
			WHERE id = $6
		`, item.Name, item.Description, item.PriceCents, item.Available, item.SortOrder, item.ID)
		return err
	})
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Menu item not found")
		return
	}
	if err != nil {
		slog.Error("failed to update menu item", "error", err, "item_id", itemID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update item")
		return
	}

	slog.Info("menu item updated", "item_id", item.ID, "available", item.Available)
	events.PublishAll(ctx, h.hub, events.TypeMenuChanged, item, events.TopicStaff, events.TopicKitchen)

	middleware.JSONResponse(w, http.StatusOK, item)
}
