// Package dataset owns the seller analytics tables (products, orders,
// traffic) and the read-only aggregation surface the tool registry
// executes against.
package dataset

import (
	"context"
	"errors"
	"fmt"
)

// Metric names accepted by every aggregation.
const (
	MetricSales          = "sales"
	MetricUnits          = "units"
	MetricSessions       = "sessions"
	MetricConversionRate = "conversion_rate"
)

// ValidMetric reports whether m is a recognized metric.
func ValidMetric(m string) bool {
	switch m {
	case MetricSales, MetricUnits, MetricSessions, MetricConversionRate:
		return true
	}
	return false
}

// Product is one catalog row.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// TopRow is one ranked row of a top-products aggregation.
type TopRow struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Metric      string  `json:"metric"`
	MetricValue float64 `json:"metricValue"`
}

// Point is a single dated value in a timeseries.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Series is the daily timeseries for one product.
type Series struct {
	ProductID string  `json:"productId"`
	Metric    string  `json:"metric"`
	Points    []Point `json:"points"`
}

// BenchmarkResult is the category average of a metric over a range.
type BenchmarkResult struct {
	Category     string  `json:"category"`
	Metric       string  `json:"metric"`
	Average      float64 `json:"average"`
	ProductCount int     `json:"productCount"`
}

// Changes summarizes the movement between the first and last point of a
// series.
type Changes struct {
	StartValue float64 `json:"startValue"`
	EndValue   float64 `json:"endValue"`
	AbsChange  float64 `json:"absChange"`
	PctChange  float64 `json:"pctChange"`
}

// Query is the read-only surface consumed by the tool registry. The core
// does not own the schema behind it.
type Query interface {
	ListProducts(ctx context.Context, category string, limit int) ([]Product, error)
	TopProducts(ctx context.Context, metric, startDate, endDate string, limit int) ([]TopRow, error)
	Timeseries(ctx context.Context, metric string, productIDs []string, startDate, endDate string) ([]Series, error)
	Benchmark(ctx context.Context, metric, category, startDate, endDate string) (*BenchmarkResult, error)
}

// ErrTooFewPoints is returned by ComputeChanges for inputs under two points.
var ErrTooFewPoints = errors.New("compute_changes requires at least 2 points")

// ComputeChanges is a pure computation over an ordered point series.
// PctChange is 1.0 when the series starts at zero and ends elsewhere, and
// 0.0 when it starts and ends at zero.
func ComputeChanges(points []Point) (*Changes, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrTooFewPoints, len(points))
	}

	start := points[0].Value
	end := points[len(points)-1].Value

	var pct float64
	switch {
	case start == 0 && end == 0:
		pct = 0
	case start == 0:
		pct = 1.0
	default:
		pct = (end - start) / start
	}

	return &Changes{
		StartValue: start,
		EndValue:   end,
		AbsChange:  end - start,
		PctChange:  pct,
	}, nil
}
