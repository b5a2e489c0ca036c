package scenario

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanerd/internal/dataset"
	"datanerd/internal/llm"
	"datanerd/internal/orchestrator"
	"datanerd/internal/runlog"
	"datanerd/internal/store"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

// ===== SEEDED END-TO-END RUNS =====
//
// These tests run the real pipeline against the deterministic dataset:
// seed 42, 120 days from 2025-10-01. With the clock pinned to
// 2026-02-04, "last month" is January 2026 and fully covered by data.

const fixtureToday = "2026-02-04"

func seededRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	db, err := dataset.Open(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Seed(dataset.SeedConfig{
		Seed:     42,
		StartDay: "2025-10-01",
		Days:     120,
	}))
	return newRegistry(t, db)
}

func runsForMode(t *testing.T, dir string, mode types.MemoryMode) []types.Run {
	t.Helper()
	all, err := runlog.ReadAll(dir)
	require.NoError(t, err)
	var out []types.Run
	for _, run := range all {
		if run.Config.MemoryMode == mode {
			out = append(out, run)
		}
	}
	return out
}

func productIDArgs(t *testing.T, args map[string]any) []string {
	t.Helper()
	raw, ok := args["productIds"].([]any)
	require.True(t, ok, "productIds missing from args: %v", args)
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, v.(string))
	}
	return ids
}

func TestSeededTopProductsRunScoresPerfect(t *testing.T) {
	reg := seededRegistry(t)
	sc := &Scenario{
		ID:    "seeded-top",
		Today: fixtureToday,
		Steps: []Step{{ID: "top", Query: "What were the sales for my top 10 products last month?"}},
	}

	report, err := Run(context.Background(), Options{
		Scenario: sc,
		Registry: reg,
		Configs:  []types.MemoryMode{types.MemoryModeBaseline},
	})
	require.NoError(t, err)

	require.Len(t, report.Summaries, 1)
	require.Len(t, report.Summaries[0].Runs, 1)
	stats := report.Summaries[0].Runs[0]

	assert.Empty(t, stats.Error)
	assert.False(t, stats.OOD)
	assert.Equal(t, 1, stats.ToolCalls)
	require.NotNil(t, stats.Scores)
	assert.Greater(t, stats.Scores.Quality, 0.95)
	assert.Equal(t, 1.0, stats.Scores.Correctness)
	assert.Equal(t, 1.0, stats.Scores.Relevance)
	require.NotNil(t, stats.QuestionLevelAcc)
	assert.True(t, *stats.QuestionLevelAcc)
}

// confusedPlanner plans top products by units unless the prompt carries
// a memory card, in which case it plans by sales.
type confusedPlanner struct{}

func (confusedPlanner) Name() string { return "fake:confused-planner" }

func (confusedPlanner) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	metric := "units"
	if strings.Contains(req.Instructions, "MEMORY CARD") {
		metric = "sales"
	}
	text := `OUTPUT_JSON_PLAN {"route":"data_presenter",` +
		`"timeRange":{"startDate":"2026-01-01","endDate":"2026-01-31"},` +
		`"steps":[{"tool":"top_products","args":{"metric":"` + metric + `",` +
		`"startDate":"2026-01-01","endDate":"2026-01-31","limit":10}}]}`
	return &llm.CompletionResponse{Text: text, LatencyMs: 1}, nil
}

func TestMemoryCardFixesConfusedPlanner(t *testing.T) {
	reg := seededRegistry(t)
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.db")

	// Only the read config's store holds the rule the planner needs.
	st, err := store.Open(filepath.Join(dir, "state-read.db"))
	require.NoError(t, err)
	_, err = st.UpsertMemoryItem(types.MemoryUpsert{
		Scope:      types.ScopeGlobal,
		Kind:       types.KindDomainRule,
		Text:       "Last month refers to the previous calendar month.",
		Importance: 0.8,
		Quality:    1,
	}, "2026-02-04T00:00:00.000Z")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	sc := &Scenario{
		ID:    "confused-planner",
		Today: fixtureToday,
		Steps: []Step{{ID: "top", Query: "What were the sales for my top 10 products last month?"}},
	}

	report, err := Run(context.Background(), Options{
		Scenario:  sc,
		Registry:  reg,
		NewClient: func() llm.Client { return confusedPlanner{} },
		Configs:   []types.MemoryMode{types.MemoryModeBaseline, types.MemoryModeRead},
		StatePath: statePath,
		RunLogDir: filepath.Join(dir, "runs"),
	})
	require.NoError(t, err)

	require.Len(t, report.Summaries, 2)
	baseline, read := report.Summaries[0], report.Summaries[1]
	require.NotNil(t, baseline.Aggregate.AvgQuality)
	require.NotNil(t, read.Aggregate.AvgQuality)

	// Without the card the planner picks units: wrong args, wrong rows.
	assert.Less(t, *baseline.Aggregate.AvgQuality, 0.6)
	assert.Greater(t, *read.Aggregate.AvgQuality, 0.95)
	assert.Greater(t, *read.Aggregate.AvgQuality, *baseline.Aggregate.AvgQuality)

	readRuns := runsForMode(t, filepath.Join(dir, "runs"), types.MemoryModeRead)
	require.Len(t, readRuns, 1)
	var planCards []types.MemoryCard
	for _, injected := range readRuns[0].MemoryInjected {
		if injected.Stage == "workflow_plan" {
			planCards = injected.Cards
		}
	}
	require.NotEmpty(t, planCards, "read run should inject plan-stage memory")
	assert.True(t, strings.HasPrefix(planCards[0].Text, "MEMORY CARD [domain_rule] (global)"),
		"card text: %s", planCards[0].Text)

	baselineRuns := runsForMode(t, filepath.Join(dir, "runs"), types.MemoryModeBaseline)
	require.Len(t, baselineRuns, 1)
	assert.Empty(t, baselineRuns[0].MemoryInjected)
}

func TestWeatherQueryIsOutOfDomain(t *testing.T) {
	reg := seededRegistry(t)
	dir := t.TempDir()

	sc := &Scenario{
		ID:    "ood-gate",
		Today: fixtureToday,
		Steps: []Step{{ID: "weather", Query: "What's the weather tomorrow?"}},
	}

	report, err := Run(context.Background(), Options{
		Scenario:  sc,
		Registry:  reg,
		Configs:   []types.MemoryMode{types.MemoryModeReadWrite},
		StatePath: filepath.Join(dir, "state.db"),
		RunLogDir: filepath.Join(dir, "runs"),
	})
	require.NoError(t, err)

	stats := report.Summaries[0].Runs[0]
	assert.Empty(t, stats.Error)
	assert.True(t, stats.OOD)
	assert.Equal(t, 0, stats.ToolCalls)
	assert.Nil(t, stats.Scores)

	runs := runsForMode(t, filepath.Join(dir, "runs"), types.MemoryModeReadWrite)
	require.Len(t, runs, 1)
	assert.Equal(t, orchestrator.OODResponse, runs[0].Response)
	assert.Empty(t, runs[0].ToolCalls)

	// The refusal is still a recorded run.
	st, err := store.Open(filepath.Join(dir, "state-readwrite.db"))
	require.NoError(t, err)
	defer st.Close()
	count, err := st.CountRuns()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSelectionFlowsFromTopProductsToTimeseries(t *testing.T) {
	reg := seededRegistry(t)
	dir := t.TempDir()

	sc := &Scenario{
		ID:    "session-continuity",
		Today: fixtureToday,
		Steps: []Step{
			{ID: "top", Query: "top 5 products by sales last month"},
			{ID: "traffic", Query: "show traffic for those products last month"},
		},
	}

	report, err := Run(context.Background(), Options{
		Scenario:  sc,
		Registry:  reg,
		Configs:   []types.MemoryMode{types.MemoryModeReadWrite},
		StatePath: filepath.Join(dir, "state.db"),
		RunLogDir: filepath.Join(dir, "runs"),
	})
	require.NoError(t, err)
	for _, stats := range report.Summaries[0].Runs {
		require.Empty(t, stats.Error)
	}

	runs := runsForMode(t, filepath.Join(dir, "runs"), types.MemoryModeReadWrite)
	require.Len(t, runs, 2)

	first, second := runs[0], runs[1]
	require.Len(t, first.ToolCalls, 1)
	assert.Equal(t, "top_products", first.ToolCalls[0].Tool)
	require.Len(t, first.Session.SelectedProductIDs, 5)

	require.Len(t, second.ToolCalls, 1)
	assert.Equal(t, "timeseries", second.ToolCalls[0].Tool)
	assert.Equal(t, first.Session.SelectedProductIDs, productIDArgs(t, second.ToolCalls[0].Args))

	// The follow-up still scores: sessions over January for 5 products.
	stats := report.Summaries[0].Runs[1]
	require.NotNil(t, stats.Scores)
	require.NotNil(t, stats.QuestionLevelAcc)
	assert.True(t, *stats.QuestionLevelAcc)
}

func TestSecondIdenticalQueryHitsToolCache(t *testing.T) {
	reg := seededRegistry(t)
	dir := t.TempDir()

	sc := &Scenario{
		ID:    "cache-hit",
		Today: fixtureToday,
		Steps: []Step{
			{ID: "first", Query: topQuery},
			{ID: "second", Query: topQuery},
		},
	}

	report, err := Run(context.Background(), Options{
		Scenario:  sc,
		Registry:  reg,
		Configs:   []types.MemoryMode{types.MemoryModeReadWriteCache},
		StatePath: filepath.Join(dir, "state.db"),
		RunLogDir: filepath.Join(dir, "runs"),
	})
	require.NoError(t, err)

	runs := report.Summaries[0].Runs
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0].CachedToolCalls)
	assert.GreaterOrEqual(t, runs[1].CachedToolCalls, 1)

	logged := runsForMode(t, filepath.Join(dir, "runs"), types.MemoryModeReadWriteCache)
	require.Len(t, logged, 2)
	require.Len(t, logged[1].ToolCalls, 1)
	assert.True(t, logged[1].ToolCalls[0].Cached)

	// The cached record replays the first run's rows.
	var first, second tools.TopProductsResult
	require.NoError(t, tools.DecodeResult(logged[0].ToolCalls[0].Result, &first))
	require.NoError(t, tools.DecodeResult(logged[1].ToolCalls[0].Result, &second))
	require.NotEmpty(t, first.Rows)
	assert.Equal(t, first.Rows, second.Rows)
}
