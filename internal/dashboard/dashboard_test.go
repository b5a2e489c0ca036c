package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanerd/internal/runlog"
	"datanerd/internal/store"
	"datanerd/internal/types"
)

// testRun builds a minimal run record. quality < 0 leaves the run
// unscored.
func testRun(id string, mode types.MemoryMode, quality float64) types.Run {
	run := types.Run{
		ID:        id,
		CreatedAt: "2026-02-04T10:15:00.000Z",
		UserID:    "demo",
		Config:    types.RunConfig{MemoryMode: mode},
		Query:     "What were my top 10 products by sales last month?",
		Route:     types.RouteDataPresenter,
		Response:  "Top products by sales",
		Latencies: types.Latencies{ManagerRouteMs: 1, WorkerTotalMs: 8, EvalMs: 3},
	}
	if quality >= 0 {
		run.Eval = &types.EvalResult{Scores: &types.EvalScores{
			Correctness: quality, Completeness: quality, Relevance: quality, Quality: quality,
		}}
	}
	return run
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", sparkline(nil))
	assert.Equal(t, "▁▅█", sparkline([]float64{0, 0.5, 1}))
	// Out-of-range values clamp instead of panicking.
	assert.Equal(t, "▁█", sparkline([]float64{-3, 7}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 80))
	long := strings.Repeat("q", 100)
	got := truncate(long, 80)
	assert.Len(t, []rune(got), 80)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestWhenLabel(t *testing.T) {
	assert.Equal(t, "2026-02-04 10:15", whenLabel("2026-02-04T10:15:00.000Z"))
	assert.Equal(t, "short", whenLabel("short"))
}

func TestBuildView(t *testing.T) {
	runs := []types.Run{
		testRun("run-1", types.MemoryModeBaseline, 0.4),
		testRun("run-2", types.MemoryModeBaseline, -1),
		testRun("run-3", types.MemoryModeReadWriteCache, 1.0),
		testRun("run-4", types.MemoryModeReadWriteCache, 0.8),
	}

	view := buildView(runs, nil, 3, time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-02-04 12:00:00 UTC", view.GeneratedAt)
	assert.Equal(t, 4, view.RunCount)

	require.Len(t, view.Configs, 2)
	baseline, cached := view.Configs[0], view.Configs[1]

	assert.Equal(t, "baseline", baseline.Mode)
	assert.Equal(t, 2, baseline.Runs)
	assert.Equal(t, 1, baseline.Scored)
	assert.Equal(t, "0.40", baseline.AvgQuality)
	assert.Equal(t, "0%", baseline.AccRate)
	assert.Equal(t, "▄", baseline.Trend)

	assert.Equal(t, "readwrite_cache", cached.Mode)
	assert.Equal(t, 2, cached.Scored)
	assert.Equal(t, "0.90", cached.AvgQuality)
	// Sub-scores of exactly 0.8 miss the accuracy bar.
	assert.Equal(t, "50%", cached.AccRate)
	assert.Equal(t, "█▇", cached.Trend)

	require.Len(t, view.Recent, 3, "recent limit caps the table")
	assert.Equal(t, "0.80", view.Recent[0].Quality)
	assert.Equal(t, "1.00", view.Recent[1].Quality)
	assert.Equal(t, "n/a", view.Recent[2].Quality)
}

func TestBuildViewMarksOOD(t *testing.T) {
	run := testRun("run-1", types.MemoryModeBaseline, -1)
	run.OOD = true
	run.Route = ""

	view := buildView([]types.Run{run}, nil, 10, time.Now())
	require.Len(t, view.Recent, 1)
	assert.Equal(t, "ood", view.Recent[0].Route)
}

func TestBuildWritesHTML(t *testing.T) {
	dir := t.TempDir()
	writer := runlog.NewWriter(dir)

	run := testRun("run-1", types.MemoryModeBaseline, 1.0)
	run.Query = `Top <script>alert("x")</script> products?`
	require.NoError(t, writer.Append(&run))

	b := NewBuilder(Options{RunsDir: dir})
	assert.Equal(t, filepath.Join(dir, "index.html"), b.OutPath())
	require.NoError(t, b.Build())

	raw, err := os.ReadFile(b.OutPath())
	require.NoError(t, err)
	page := string(raw)

	assert.Contains(t, page, "<!DOCTYPE html>")
	assert.Contains(t, page, "baseline")
	assert.Contains(t, page, "1 run(s) on record")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "<script>alert")
}

func TestBuildEmptyRunsDir(t *testing.T) {
	b := NewBuilder(Options{RunsDir: t.TempDir()})
	require.NoError(t, b.Build())

	raw, err := os.ReadFile(b.OutPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "no runs recorded yet")
}

func TestBuildIncludesMemoryStats(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.UpsertMemoryItem(types.MemoryUpsert{
		Scope:      types.ScopeGlobal,
		Kind:       types.KindDomainRule,
		Text:       "weeks are Mon-Sun",
		Importance: 0.9,
		Quality:    1,
	}, "2026-02-04T00:00:00.000Z")
	require.NoError(t, err)

	b := NewBuilder(Options{RunsDir: t.TempDir(), Store: st})
	require.NoError(t, b.Build())

	raw, err := os.ReadFile(b.OutPath())
	require.NoError(t, err)
	page := string(raw)
	assert.Contains(t, page, "Memory items")
	assert.Contains(t, page, "domain_rule")
	assert.Contains(t, page, "global")
}

func TestRelevantEvent(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"jsonl write", fsnotify.Event{Name: "runs-20260204.jsonl", Op: fsnotify.Write}, true},
		{"jsonl create", fsnotify.Event{Name: "runs-20260204.jsonl", Op: fsnotify.Create}, true},
		{"jsonl remove", fsnotify.Event{Name: "runs-20260204.jsonl", Op: fsnotify.Remove}, false},
		{"jsonl chmod", fsnotify.Event{Name: "runs-20260204.jsonl", Op: fsnotify.Chmod}, false},
		{"rebuilt page", fsnotify.Event{Name: "index.html", Op: fsnotify.Write}, false},
		{"temp file", fsnotify.Event{Name: "runs.tmp", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevantEvent(tt.event))
		})
	}
}

func TestWatcherRebuildsOnAppend(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(Options{RunsDir: dir})

	w, err := NewWatcher(b, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writer := runlog.NewWriter(dir)
	run := testRun("run-1", types.MemoryModeBaseline, 1.0)
	require.NoError(t, writer.Append(&run))

	require.Eventually(t, func() bool { return w.Rebuilds() > 0 },
		3*time.Second, 25*time.Millisecond)

	raw, err := os.ReadFile(b.OutPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "run(s) on record")
}
