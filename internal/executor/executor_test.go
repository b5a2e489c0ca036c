package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"datanerd/internal/dataset"
	"datanerd/internal/store"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingQuery counts invocations so cache tests can prove steps were
// not re-computed.
type countingQuery struct {
	mu        sync.Mutex
	topCalls  int
	listCalls int
	failTop   bool
}

func (q *countingQuery) ListProducts(ctx context.Context, category string, limit int) ([]dataset.Product, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listCalls++
	return []dataset.Product{{ID: "p1", Name: "Widget", Category: "gadgets"}}, nil
}

func (q *countingQuery) TopProducts(ctx context.Context, metric, startDate, endDate string, limit int) ([]dataset.TopRow, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failTop {
		return nil, errors.New("aggregation failed")
	}
	q.topCalls++
	return []dataset.TopRow{{
		ProductID:   fmt.Sprintf("p%d", q.topCalls),
		ProductName: "Widget",
		Metric:      metric,
		MetricValue: float64(100 * q.topCalls),
	}}, nil
}

func (q *countingQuery) Timeseries(ctx context.Context, metric string, productIDs []string, startDate, endDate string) ([]dataset.Series, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return []dataset.Series{{ProductID: productIDs[0], Metric: metric}}, nil
}

func (q *countingQuery) Benchmark(ctx context.Context, metric, category, startDate, endDate string) (*dataset.BenchmarkResult, error) {
	return &dataset.BenchmarkResult{Category: category, Metric: metric, Average: 5, ProductCount: 2}, nil
}

func (q *countingQuery) calls() (top, list int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.topCalls, q.listCalls
}

func newTestExecutor(t *testing.T) (*Executor, *countingQuery, *store.StateStore) {
	t.Helper()
	q := &countingQuery{}
	reg, err := tools.New(q)
	require.NoError(t, err)
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(reg, st, nil), q, st
}

func topStep(startDate, endDate string) types.PlanStep {
	return types.PlanStep{
		Tool: "top_products",
		Args: map[string]any{
			"metric":    "sales",
			"startDate": startDate,
			"endDate":   endDate,
			"limit":     10,
		},
	}
}

func TestRunExecutesPlanSteps(t *testing.T) {
	exec, q, _ := newTestExecutor(t)
	plan := &types.Plan{
		Route: types.RouteDataPresenter,
		Steps: []types.PlanStep{
			topStep("2026-01-01", "2026-01-31"),
			{Tool: "list_products", Args: map[string]any{"limit": 20}},
		},
	}

	records, results, err := exec.Run(context.Background(), plan, false)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "top_products", first.Tool)
	assert.False(t, first.Cached)
	assert.Contains(t, first.Signature, "top_products:")
	assert.NotEmpty(t, first.StartedAt)
	assert.GreaterOrEqual(t, first.DurationMs, int64(0))
	// Canonicalized args: numbers come back as float64.
	assert.Equal(t, float64(10), first.Args["limit"])

	require.Contains(t, results, "top_products")
	require.Contains(t, results, "list_products")
	top, ok := results["top_products"].(*tools.TopProductsResult)
	require.True(t, ok)
	require.Len(t, top.Rows, 1)
	assert.Equal(t, "p1", top.Rows[0].ProductID)

	topCalls, listCalls := q.calls()
	assert.Equal(t, 1, topCalls)
	assert.Equal(t, 1, listCalls)
}

func TestRunTruncatesLongPlans(t *testing.T) {
	exec, q, _ := newTestExecutor(t)
	var steps []types.PlanStep
	for i := 0; i < types.MaxPlanSteps+2; i++ {
		steps = append(steps, types.PlanStep{Tool: "list_products", Args: map[string]any{"limit": 20}})
	}

	records, _, err := exec.Run(context.Background(), &types.Plan{Route: types.RouteDataPresenter, Steps: steps}, false)
	require.NoError(t, err)
	assert.Len(t, records, types.MaxPlanSteps)

	_, listCalls := q.calls()
	assert.Equal(t, types.MaxPlanSteps, listCalls)
}

func TestRunCacheMissThenHit(t *testing.T) {
	exec, q, st := newTestExecutor(t)
	plan := &types.Plan{Route: types.RouteDataPresenter, Steps: []types.PlanStep{topStep("2026-01-01", "2026-01-31")}}

	records, _, err := exec.Run(context.Background(), plan, true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Cached)

	n, err := st.CountToolCache()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, results, err := exec.Run(context.Background(), plan, true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Cached)

	topCalls, _ := q.calls()
	assert.Equal(t, 1, topCalls, "cache hit must not re-run the aggregation")

	// Cache-served results are decoded JSON, recovered via DecodeResult.
	var top tools.TopProductsResult
	require.NoError(t, tools.DecodeResult(results["top_products"], &top))
	require.Len(t, top.Rows, 1)
	assert.Equal(t, "p1", top.Rows[0].ProductID)
	assert.Equal(t, float64(100), top.Rows[0].MetricValue)
}

func TestRunCacheKeyIgnoresArgSpelling(t *testing.T) {
	exec, q, _ := newTestExecutor(t)

	// Aliased, string-typed args must land on the same signature as the
	// canonical spelling.
	aliased := &types.Plan{Route: types.RouteDataPresenter, Steps: []types.PlanStep{{
		Tool: "top_products",
		Args: map[string]any{
			"metric":     "revenue",
			"start_date": "2026-01-01",
			"end_date":   "2026-01-31",
			"limit":      "10",
		},
	}}}
	canonical := &types.Plan{Route: types.RouteDataPresenter, Steps: []types.PlanStep{topStep("2026-01-01", "2026-01-31")}}

	recA, _, err := exec.Run(context.Background(), aliased, true)
	require.NoError(t, err)
	recB, _, err := exec.Run(context.Background(), canonical, true)
	require.NoError(t, err)

	assert.Equal(t, recA[0].Signature, recB[0].Signature)
	assert.True(t, recB[0].Cached)
	topCalls, _ := q.calls()
	assert.Equal(t, 1, topCalls)
}

func TestRunCacheDisabledNeverStores(t *testing.T) {
	exec, q, st := newTestExecutor(t)
	plan := &types.Plan{Route: types.RouteDataPresenter, Steps: []types.PlanStep{topStep("2026-01-01", "2026-01-31")}}

	_, _, err := exec.Run(context.Background(), plan, false)
	require.NoError(t, err)
	_, _, err = exec.Run(context.Background(), plan, false)
	require.NoError(t, err)

	topCalls, _ := q.calls()
	assert.Equal(t, 2, topCalls)
	n, err := st.CountToolCache()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunLastWinsResults(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	plan := &types.Plan{Route: types.RouteInsightGenerator, Steps: []types.PlanStep{
		topStep("2026-02-02", "2026-02-08"),
		topStep("2026-01-26", "2026-02-01"),
	}}

	records, results, err := exec.Run(context.Background(), plan, false)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// The collapsed map keeps only the second call's rows.
	top, ok := results["top_products"].(*tools.TopProductsResult)
	require.True(t, ok)
	require.Len(t, top.Rows, 1)
	assert.Equal(t, "p2", top.Rows[0].ProductID)
}

func TestRunToolErrorAborts(t *testing.T) {
	exec, q, _ := newTestExecutor(t)
	q.failTop = true
	plan := &types.Plan{Route: types.RouteDataPresenter, Steps: []types.PlanStep{topStep("2026-01-01", "2026-01-31")}}

	records, results, err := exec.Run(context.Background(), plan, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregation failed")
	assert.Nil(t, records)
	assert.Nil(t, results)
}

func TestRunInvalidArgsAbort(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	plan := &types.Plan{Route: types.RouteDataPresenter, Steps: []types.PlanStep{{
		Tool: "top_products",
		Args: map[string]any{"metric": "sales", "startDate": "2026-01-01", "endDate": "2026-01-31", "limit": 101},
	}}}

	_, _, err := exec.Run(context.Background(), plan, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, tools.ErrInvalidArgs)
}
