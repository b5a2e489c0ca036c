package dataset

import (
	"context"
	"fmt"
	"sort"
)

const maxProductList = 500

// totalsRow is a per-product metric total over a date range.
type totalsRow struct {
	id    string
	name  string
	value float64
}

// ListProducts returns catalog rows, optionally filtered by category.
// Limit is clamped to 500; zero or negative means the full cap.
func (d *DB) ListProducts(ctx context.Context, category string, limit int) ([]Product, error) {
	if limit <= 0 || limit > maxProductList {
		limit = maxProductList
	}

	query := "SELECT id, name, category FROM products"
	args := []any{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TopProducts ranks products by their metric total over [startDate,
// endDate], descending. Products with no source rows in the range do not
// appear, so an out-of-window range yields an empty result rather than a
// zero-filled one.
func (d *DB) TopProducts(ctx context.Context, metric, startDate, endDate string, limit int) ([]TopRow, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	totals, err := d.rangeTotals(ctx, metric, startDate, endDate, "")
	if err != nil {
		return nil, err
	}

	out := make([]TopRow, 0, limit)
	for i, t := range totals {
		if i >= limit {
			break
		}
		out = append(out, TopRow{
			ProductID:   t.id,
			ProductName: t.name,
			Metric:      metric,
			MetricValue: t.value,
		})
	}
	return out, nil
}

// Timeseries returns the daily series for each requested product. Days
// without source rows are omitted, not zero-filled.
func (d *DB) Timeseries(ctx context.Context, metric string, productIDs []string, startDate, endDate string) ([]Series, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("timeseries requires at least one product id")
	}

	out := make([]Series, 0, len(productIDs))
	for _, id := range productIDs {
		points, err := d.dailyPoints(ctx, metric, id, startDate, endDate)
		if err != nil {
			return nil, err
		}
		out = append(out, Series{ProductID: id, Metric: metric, Points: points})
	}
	return out, nil
}

// Benchmark averages the per-product metric totals across a category.
func (d *DB) Benchmark(ctx context.Context, metric, category, startDate, endDate string) (*BenchmarkResult, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	if category == "" {
		return nil, fmt.Errorf("benchmark requires a category")
	}

	totals, err := d.rangeTotals(ctx, metric, startDate, endDate, category)
	if err != nil {
		return nil, err
	}
	if len(totals) == 0 {
		return nil, fmt.Errorf("no data for category %q in range %s..%s", category, startDate, endDate)
	}

	var sum float64
	for _, t := range totals {
		sum += t.value
	}

	return &BenchmarkResult{
		Category:     category,
		Metric:       metric,
		Average:      sum / float64(len(totals)),
		ProductCount: len(totals),
	}, nil
}

// rangeTotals computes per-product totals for a metric over a range,
// sorted by value descending with product id as the tie-break.
func (d *DB) rangeTotals(ctx context.Context, metric, startDate, endDate, category string) ([]totalsRow, error) {
	var (
		query string
		args  []any
	)

	switch metric {
	case MetricSales, MetricUnits:
		col := "SUM(o.sales)"
		if metric == MetricUnits {
			col = "SUM(o.units)"
		}
		query = `SELECT p.id, p.name, ` + col + `
			FROM orders o JOIN products p ON p.id = o.product_id
			WHERE o.day >= ? AND o.day <= ?`
		args = []any{startDate, endDate}
		if category != "" {
			query += " AND p.category = ?"
			args = append(args, category)
		}
		query += " GROUP BY p.id, p.name"

	case MetricSessions:
		query = `SELECT p.id, p.name, SUM(t.sessions)
			FROM traffic t JOIN products p ON p.id = t.product_id
			WHERE t.day >= ? AND t.day <= ?`
		args = []any{startDate, endDate}
		if category != "" {
			query += " AND p.category = ?"
			args = append(args, category)
		}
		query += " GROUP BY p.id, p.name"

	case MetricConversionRate:
		query = `SELECT p.id, p.name,
			CASE WHEN t.sessions_sum > 0 THEN CAST(o.units_sum AS REAL) / t.sessions_sum ELSE 0 END
			FROM products p
			JOIN (SELECT product_id, SUM(units) AS units_sum FROM orders
				WHERE day >= ? AND day <= ? GROUP BY product_id) o ON o.product_id = p.id
			JOIN (SELECT product_id, SUM(sessions) AS sessions_sum FROM traffic
				WHERE day >= ? AND day <= ? GROUP BY product_id) t ON t.product_id = p.id`
		args = []any{startDate, endDate, startDate, endDate}
		if category != "" {
			query += " WHERE p.category = ?"
			args = append(args, category)
		}

	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", metric, err)
	}
	defer rows.Close()

	var out []totalsRow
	for rows.Next() {
		var t totalsRow
		if err := rows.Scan(&t.id, &t.name, &t.value); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].id < out[j].id
	})
	return out, nil
}

// dailyPoints returns one product's daily metric values within a range.
func (d *DB) dailyPoints(ctx context.Context, metric, productID, startDate, endDate string) ([]Point, error) {
	switch metric {
	case MetricSales, MetricUnits:
		col := "SUM(sales)"
		if metric == MetricUnits {
			col = "SUM(units)"
		}
		return d.scanPoints(ctx,
			`SELECT day, `+col+` FROM orders
			 WHERE product_id = ? AND day >= ? AND day <= ?
			 GROUP BY day ORDER BY day`,
			productID, startDate, endDate)

	case MetricSessions:
		return d.scanPoints(ctx,
			`SELECT day, SUM(sessions) FROM traffic
			 WHERE product_id = ? AND day >= ? AND day <= ?
			 GROUP BY day ORDER BY day`,
			productID, startDate, endDate)

	case MetricConversionRate:
		units, err := d.dayMap(ctx,
			`SELECT day, SUM(units) FROM orders
			 WHERE product_id = ? AND day >= ? AND day <= ? GROUP BY day`,
			productID, startDate, endDate)
		if err != nil {
			return nil, err
		}
		sessions, err := d.dayMap(ctx,
			`SELECT day, SUM(sessions) FROM traffic
			 WHERE product_id = ? AND day >= ? AND day <= ? GROUP BY day`,
			productID, startDate, endDate)
		if err != nil {
			return nil, err
		}

		days := make([]string, 0, len(sessions))
		for day := range sessions {
			days = append(days, day)
		}
		sort.Strings(days)

		points := make([]Point, 0, len(days))
		for _, day := range days {
			var v float64
			if s := sessions[day]; s > 0 {
				v = units[day] / s
			}
			points = append(points, Point{Date: day, Value: v})
		}
		return points, nil
	}
	return nil, fmt.Errorf("unknown metric %q", metric)
}

func (d *DB) scanPoints(ctx context.Context, query string, args ...any) ([]Point, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) dayMap(ctx context.Context, query string, args ...any) (map[string]float64, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query day map: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var day string
		var v float64
		if err := rows.Scan(&day, &v); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		out[day] = v
	}
	return out, rows.Err()
}
