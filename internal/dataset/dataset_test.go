package dataset

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openSeeded(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	err = d.Seed(SeedConfig{Seed: 7, StartDay: "2026-01-01", Days: 14})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return d
}

func TestSeedDeterminism(t *testing.T) {
	ctx := context.Background()
	a := openSeeded(t)
	b := openSeeded(t)

	rowsA, err := a.TopProducts(ctx, MetricSales, "2026-01-01", "2026-01-14", 24)
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	rowsB, err := b.TopProducts(ctx, MetricSales, "2026-01-01", "2026-01-14", 24)
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if diff := cmp.Diff(rowsA, rowsB); diff != "" {
		t.Errorf("same seed should produce identical data (-a +b):\n%s", diff)
	}
}

func TestSeedIsSeeded(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	seeded, err := d.IsSeeded()
	if err != nil {
		t.Fatalf("IsSeeded: %v", err)
	}
	if seeded {
		t.Error("fresh db should not be seeded")
	}

	if err := d.Seed(SeedConfig{Seed: 1, StartDay: "2026-01-01", Days: 3}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	seeded, err = d.IsSeeded()
	if err != nil {
		t.Fatalf("IsSeeded: %v", err)
	}
	if !seeded {
		t.Error("db should report seeded")
	}
}

func TestSeedRejectsBadConfig(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if err := d.Seed(SeedConfig{Seed: 1, StartDay: "January", Days: 3}); err == nil {
		t.Error("bad start day should fail")
	}
	if err := d.Seed(SeedConfig{Seed: 1, StartDay: "2026-01-01", Days: 0}); err == nil {
		t.Error("zero days should fail")
	}
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	d := openSeeded(t)

	all, err := d.ListProducts(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(all) != 24 {
		t.Errorf("catalog size = %d, want 24", len(all))
	}

	toys, err := d.ListProducts(ctx, "toys", 0)
	if err != nil {
		t.Fatalf("ListProducts(toys): %v", err)
	}
	if len(toys) != 4 {
		t.Errorf("toys count = %d, want 4", len(toys))
	}
	for _, p := range toys {
		if p.Category != "toys" {
			t.Errorf("product %s category = %s", p.ID, p.Category)
		}
	}

	two, err := d.ListProducts(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListProducts(limit 2): %v", err)
	}
	if len(two) != 2 {
		t.Errorf("limited count = %d, want 2", len(two))
	}
}

func TestTopProductsOrdering(t *testing.T) {
	ctx := context.Background()
	d := openSeeded(t)

	rows, err := d.TopProducts(ctx, MetricSales, "2026-01-01", "2026-01-14", 10)
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("row count = %d, want 10", len(rows))
	}
	for i, r := range rows {
		if r.Metric != MetricSales {
			t.Errorf("row %d metric = %s", i, r.Metric)
		}
		if r.MetricValue <= 0 {
			t.Errorf("row %d value = %f, want positive", i, r.MetricValue)
		}
		if i > 0 && rows[i-1].MetricValue < r.MetricValue {
			t.Errorf("rows not descending at %d: %f < %f", i, rows[i-1].MetricValue, r.MetricValue)
		}
	}
}

func TestTopProductsConversionRateBounded(t *testing.T) {
	ctx := context.Background()
	d := openSeeded(t)

	rows, err := d.TopProducts(ctx, MetricConversionRate, "2026-01-01", "2026-01-14", 24)
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected conversion rows")
	}
	for _, r := range rows {
		if r.MetricValue <= 0 || r.MetricValue >= 1 {
			t.Errorf("conversion rate for %s = %f, want (0,1)", r.ProductID, r.MetricValue)
		}
	}
}

func TestTopProductsOutOfWindowIsEmpty(t *testing.T) {
	ctx := context.Background()
	d := openSeeded(t)

	rows, err := d.TopProducts(ctx, MetricSales, "2020-01-01", "2020-01-31", 10)
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("out-of-window range returned %d rows, want 0", len(rows))
	}
}

func TestTopProductsUnknownMetric(t *testing.T) {
	d := openSeeded(t)
	if _, err := d.TopProducts(context.Background(), "margin", "2026-01-01", "2026-01-14", 10); err == nil {
		t.Error("unknown metric should fail")
	}
}

func TestTimeseries(t *testing.T) {
	ctx := context.Background()
	d := openSeeded(t)

	series, err := d.Timeseries(ctx, MetricSessions, []string{"P001", "P024"}, "2026-01-03", "2026-01-07")
	if err != nil {
		t.Fatalf("Timeseries: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("series count = %d, want 2", len(series))
	}

	for _, s := range series {
		if s.Metric != MetricSessions {
			t.Errorf("series metric = %s", s.Metric)
		}
		if len(s.Points) != 5 {
			t.Errorf("series %s point count = %d, want 5", s.ProductID, len(s.Points))
		}
		for _, p := range s.Points {
			if p.Date < "2026-01-03" || p.Date > "2026-01-07" {
				t.Errorf("point %s outside range", p.Date)
			}
			if p.Value < 1 {
				t.Errorf("sessions on %s = %f, want >= 1", p.Date, p.Value)
			}
		}
	}
}

func TestTimeseriesConversionRate(t *testing.T) {
	ctx := context.Background()
	d := openSeeded(t)

	series, err := d.Timeseries(ctx, MetricConversionRate, []string{"P017"}, "2026-01-01", "2026-01-14")
	if err != nil {
		t.Fatalf("Timeseries: %v", err)
	}
	if len(series) != 1 || len(series[0].Points) != 14 {
		t.Fatalf("unexpected series shape: %+v", series)
	}
	for _, p := range series[0].Points {
		if p.Value < 0 || p.Value >= 1 {
			t.Errorf("conversion on %s = %f, want [0,1)", p.Date, p.Value)
		}
	}
}

func TestTimeseriesRequiresProducts(t *testing.T) {
	d := openSeeded(t)
	if _, err := d.Timeseries(context.Background(), MetricSales, nil, "2026-01-01", "2026-01-14"); err == nil {
		t.Error("empty product list should fail")
	}
}

func TestBenchmark(t *testing.T) {
	ctx := context.Background()
	d := openSeeded(t)

	bench, err := d.Benchmark(ctx, MetricSales, "electronics", "2026-01-01", "2026-01-14")
	if err != nil {
		t.Fatalf("Benchmark: %v", err)
	}
	if bench.ProductCount != 4 {
		t.Errorf("product count = %d, want 4", bench.ProductCount)
	}
	if bench.Average <= 0 {
		t.Errorf("average = %f, want positive", bench.Average)
	}

	// Cross-check against per-product totals.
	totals, err := d.rangeTotals(ctx, MetricSales, "2026-01-01", "2026-01-14", "electronics")
	if err != nil {
		t.Fatalf("rangeTotals: %v", err)
	}
	var sum float64
	for _, tr := range totals {
		sum += tr.value
	}
	want := sum / float64(len(totals))
	if diff := bench.Average - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("average = %f, want %f", bench.Average, want)
	}
}

func TestBenchmarkUnknownCategory(t *testing.T) {
	d := openSeeded(t)
	if _, err := d.Benchmark(context.Background(), MetricSales, "vehicles", "2026-01-01", "2026-01-14"); err == nil {
		t.Error("unknown category should fail")
	}
}

func TestComputeChanges(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   Changes
	}{
		{
			name:   "growth",
			points: []Point{{Date: "2026-01-01", Value: 10}, {Date: "2026-01-02", Value: 12}, {Date: "2026-01-03", Value: 15}},
			want:   Changes{StartValue: 10, EndValue: 15, AbsChange: 5, PctChange: 0.5},
		},
		{
			name:   "decline",
			points: []Point{{Date: "2026-01-01", Value: 20}, {Date: "2026-01-02", Value: 15}},
			want:   Changes{StartValue: 20, EndValue: 15, AbsChange: -5, PctChange: -0.25},
		},
		{
			name:   "zero start",
			points: []Point{{Date: "2026-01-01", Value: 0}, {Date: "2026-01-02", Value: 5}},
			want:   Changes{StartValue: 0, EndValue: 5, AbsChange: 5, PctChange: 1.0},
		},
		{
			name:   "flat zero",
			points: []Point{{Date: "2026-01-01", Value: 0}, {Date: "2026-01-02", Value: 0}},
			want:   Changes{StartValue: 0, EndValue: 0, AbsChange: 0, PctChange: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeChanges(tt.points)
			if err != nil {
				t.Fatalf("ComputeChanges: %v", err)
			}
			if *got != tt.want {
				t.Errorf("ComputeChanges = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestComputeChangesTooFewPoints(t *testing.T) {
	if _, err := ComputeChanges([]Point{{Date: "2026-01-01", Value: 1}}); err == nil {
		t.Error("single point should fail")
	}
	if _, err := ComputeChanges(nil); err == nil {
		t.Error("nil points should fail")
	}
}
