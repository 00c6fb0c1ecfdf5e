// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/danielhkuo/tablepay/db"
	"github.com/danielhkuo/tablepay/handlers"
	"github.com/danielhkuo/tablepay/models"
)

// menuFile is the YAML layout accepted by "menu import":
//
//	categories:
//	  - name: Mains
//	    sort_order: 1
//	    items:
//	      - name: Burger
//	        price: "12.00"
type menuFile struct {
	Categories []menuCategory `yaml:"categories"`
}

type menuCategory struct {
	Name      string     `yaml:"name"`
	SortOrder int        `yaml:"sort_order"`
	Items     []menuItem `yaml:"items"`
}

type menuItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Available   *bool  `yaml:"available"`
	SortOrder   int    `yaml:"sort_order"`

	priceCents int64
}

type importResult struct {
	categories int
	created    int
	updated    int
}

// parseMenuFile decodes and checks a menu file, converting prices to cents
func parseMenuFile(raw []byte) (menuFile, error) {
	var file menuFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return menuFile{}, fmt.Errorf("invalid menu YAML: %w", err)
	}
	if len(file.Categories) == 0 {
		return menuFile{}, errors.New("menu has no categories")
	}

	for ci := range file.Categories {
		c := &file.Categories[ci]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return menuFile{}, fmt.Errorf("category %d has no name", ci+1)
		}
		seen := map[string]bool{}
		for ii := range c.Items {
			it := &c.Items[ii]
			it.Name = strings.TrimSpace(it.Name)
			if it.Name == "" {
				return menuFile{}, fmt.Errorf("%s: item %d has no name", c.Name, ii+1)
			}
			if seen[it.Name] {
				return menuFile{}, fmt.Errorf("%s: %s listed twice", c.Name, it.Name)
			}
			seen[it.Name] = true

			cents, err := priceToCents(it.Price)
			if err != nil {
				return menuFile{}, fmt.Errorf("%s: %s: %w", c.Name, it.Name, err)
			}
			it.priceCents = cents
		}
	}
	return file, nil
}

// priceToCents parses a decimal price such as "12.5" into 1250
func priceToCents(price string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", price)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("price %q has more than two decimals", price)
	}
	if !cents.IsPositive() {
		return 0, fmt.Errorf("price %q must be positive", price)
	}
	return cents.IntPart(), nil
}

// importMenu creates missing categories and items and updates items that
// already exist by name within their category
func importMenu(ctx context.Context, q db.Querier, file menuFile) (importResult, error) {
	var res importResult

	for _, c := range file.Categories {
		var categoryID string
		err := q.QueryRowContext(ctx, `SELECT id FROM menu_category WHERE name = $1`, c.Name).Scan(&categoryID)
		if err == sql.ErrNoRows {
			cat, err := handlers.InsertCategory(ctx, q, c.Name, c.SortOrder)
			if err != nil {
				return res, err
			}
			categoryID = cat.ID
			res.categories++
		} else if err != nil {
			return res, fmt.Errorf("failed to look up category %s: %w", c.Name, err)
		}

		for _, it := range c.Items {
			available := it.Available == nil || *it.Available

			var itemID string
			err := q.QueryRowContext(ctx, `
				SELECT id FROM menu_item WHERE category_id = $1 AND name = $2
			`, categoryID, it.Name).Scan(&itemID)
			if err == sql.ErrNoRows {
				if _, err := handlers.InsertMenuItem(ctx, q, models.MenuItem{
					CategoryID:  categoryID,
					Name:        it.Name,
					Description: it.Description,
					PriceCents:  it.priceCents,
					Available:   available,
					SortOrder:   it.SortOrder,
				}); err != nil {
					return res, err
				}
				res.created++
				continue
			}
			if err != nil {
				return res, fmt.Errorf("failed to look up item %s: %w", it.Name, err)
			}

			if _, err := q.ExecContext(ctx, `
				UPDATE menu_item SET description = $1, price_cents = $2, available = $3, sort_order = $4
				WHERE id = $5
			`, it.Description, it.priceCents, available, it.SortOrder, itemID); err != nil {
				return res, fmt.Errorf("failed to update item %s: %w", it.Name, err)
			}
			res.updated++
		}
	}
	return res, nil
}
