// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/danielhkuo/tablepay/cliparse"
	"github.com/danielhkuo/tablepay/middleware"
	"github.com/danielhkuo/tablepay/models"
)

const dateLayout = "2006-01-02"

// unpaidMethod buckets orders left unpaid by a forced close
const unpaidMethod = "unpaid"

type ReportHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewReportHandler(db *sql.DB, cfg cliparse.Config) *ReportHandler {
	return &ReportHandler{db: db, cfg: cfg}
}

// reportRange reads ?from=YYYY-MM-DD&to=YYYY-MM-DD. Both days are included;
// the default is the last seven days.
func reportRange(r *http.Request) (time.Time, time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := today.AddDate(0, 0, -6), today

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from must be YYYY-MM-DD")
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to must be YYYY-MM-DD")
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to is before from")
	}
	return from, to, nil
}

// BuildSalesReport aggregates sessions closed between from and to (whole
// days, UTC). Timestamps are compared in Go so the same queries run on both
// databases.
func BuildSalesReport(ctx context.Context, conn *sql.DB, currency string, from, to time.Time) (models.SalesReport, error) {
	report := models.SalesReport{
		From:     from,
		To:       to,
		Currency: currency,
		ByMethod: map[string]int64{},
		Items:    []models.ItemSales{},
	}
	end := to.AddDate(0, 0, 1)
	inRange := func(t time.Time) bool {
		return !t.Before(from) && t.Before(end)
	}

	rows, err := conn.QueryContext(ctx, `SELECT id, closed_at FROM table_session WHERE status = 'closed'`)
	if err != nil {
		return report, fmt.Errorf("failed to query sessions: %w", err)
	}
	for rows.Next() {
		var id string
		var closedAt time.Time
		if err := rows.Scan(&id, &closedAt); err != nil {
			rows.Close()
			return report, fmt.Errorf("failed to scan session: %w", err)
		}
		if inRange(closedAt) {
			report.SessionCount++
		}
	}
	rows.Close()

	rows, err = conn.QueryContext(ctx, `
		SELECT o.total_cents, o.paid_method, s.closed_at
		FROM orders o
		JOIN table_session s ON s.id = o.session_id
		WHERE s.status = 'closed' AND o.status <> 'cancelled'
	`)
	if err != nil {
		return report, fmt.Errorf("failed to query orders: %w", err)
	}
	for rows.Next() {
		var total int64
		var method sql.NullString
		var closedAt time.Time
		if err := rows.Scan(&total, &method, &closedAt); err != nil {
			rows.Close()
			return report, fmt.Errorf("failed to scan order: %w", err)
		}
		if !inRange(closedAt) {
			continue
		}
		report.OrderCount++
		if !method.Valid {
			report.ByMethod[unpaidMethod] += total
			continue
		}
		report.GrossCents += total
		report.ByMethod[method.String] += total
	}
	rows.Close()

	// Queried separately: SQLite drops the column type of a compound SELECT
	settled := []string{`
		SELECT p.amount_cents, p.tip_cents, p.status, s.closed_at
		FROM payment p
		JOIN table_session s ON s.id = p.session_id
		WHERE s.status = 'closed' AND p.status IN ('captured', 'refunded')`, `
		SELECT c.captured_cents, c.tip_cents, c.status, s.closed_at
		FROM pool_contribution c
		JOIN payment_pool pp ON pp.id = c.pool_id
		JOIN table_session s ON s.id = pp.session_id
		WHERE s.status = 'closed' AND c.status = 'captured'`}
	for _, query := range settled {
		rows, err = conn.QueryContext(ctx, query)
		if err != nil {
			return report, fmt.Errorf("failed to query payments: %w", err)
		}
		for rows.Next() {
			var amount, tip int64
			var status string
			var closedAt time.Time
			if err := rows.Scan(&amount, &tip, &status, &closedAt); err != nil {
				rows.Close()
				return report, fmt.Errorf("failed to scan payment: %w", err)
			}
			if !inRange(closedAt) {
				continue
			}
			if status == models.PaymentRefunded {
				report.RefundedCents += amount + tip
				continue
			}
			report.TipCents += tip
		}
		rows.Close()
	}

	rows, err = conn.QueryContext(ctx, `
		SELECT oi.menu_item_id, oi.name, oi.quantity, oi.unit_price_cents, s.closed_at
		FROM order_item oi
		JOIN orders o ON o.id = oi.order_id
		JOIN table_session s ON s.id = o.session_id
		WHERE s.status = 'closed' AND o.status <> 'cancelled'
	`)
	if err != nil {
		return report, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := map[string]*models.ItemSales{}
	for rows.Next() {
		var it models.ItemSales
		var unit int64
		var closedAt time.Time
		if err := rows.Scan(&it.MenuItemID, &it.Name, &it.Quantity, &unit, &closedAt); err != nil {
			return report, fmt.Errorf("failed to scan item: %w", err)
		}
		if !inRange(closedAt) {
			continue
		}
		agg, ok := items[it.MenuItemID]
		if !ok {
			agg = &models.ItemSales{MenuItemID: it.MenuItemID, Name: it.Name}
			items[it.MenuItemID] = agg
		}
		agg.Quantity += it.Quantity
		agg.GrossCents += int64(it.Quantity) * unit
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	for _, it := range items {
		report.Items = append(report.Items, *it)
	}
	sort.Slice(report.Items, func(i, j int) bool {
		if report.Items[i].GrossCents != report.Items[j].GrossCents {
			return report.Items[i].GrossCents > report.Items[j].GrossCents
		}
		return report.Items[i].Name < report.Items[j].Name
	})
	return report, nil
}

// Sales handles GET /admin/reports/sales
func (h *ReportHandler) Sales(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := BuildSalesReport(r.Context(), h.db, h.cfg.Currency, from, to)
	if err != nil {
		slog.Error("failed to build sales report", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to build report")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, report)
}

// SalesXLSX handles GET /admin/reports/sales.xlsx
func (h *ReportHandler) SalesXLSX(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := BuildSalesReport(r.Context(), h.db, h.cfg.Currency, from, to)
	if err != nil {
		slog.Error("failed to build sales report", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to build report")
		return
	}

	f, err := SalesWorkbook(report)
	if err != nil {
		slog.Error("failed to build workbook", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to build report")
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("sales_%s_%s.xlsx", from.Format(dateLayout), to.Format(dateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(w); err != nil {
		slog.Error("failed to write workbook", "error", err)
	}
}

// money converts cents to a currency amount for spreadsheet cells
func money(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// SalesWorkbook lays a report out as a Summary sheet and an Items sheet
func SalesWorkbook(report models.SalesReport) (*excelize.File, error) {
	const summary, itemsSheet = "Summary", "Items"

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	rows := [][]interface{}{
		{"From", report.From.Format(dateLayout)},
		{"To", report.To.Format(dateLayout)},
		{"Currency", report.Currency},
		{"Sessions", report.SessionCount},
		{"Orders", report.OrderCount},
		{"Gross", money(report.GrossCents)},
		{"Tips", money(report.TipCents)},
		{"Refunded", money(report.RefundedCents)},
	}
	methods := make([]string, 0, len(report.ByMethod))
	for m := range report.ByMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		rows = append(rows, []interface{}{"Paid by " + m, money(report.ByMethod[m])})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summary, cell, &row); err != nil {
			return nil, err
		}
	}

	f.SetCellValue(itemsSheet, "A1", "Item")
	f.SetCellValue(itemsSheet, "B1", "Quantity")
	f.SetCellValue(itemsSheet, "C1", "Gross")
	for i, it := range report.Items {
		f.SetCellValue(itemsSheet, "A"+fmt.Sprint(i+2), it.Name)
		f.SetCellValue(itemsSheet, "B"+fmt.Sprint(i+2), it.Quantity)
		f.SetCellValue(itemsSheet, "C"+fmt.Sprint(i+2), money(it.GrossCents))
	}
	return f, nil
}
