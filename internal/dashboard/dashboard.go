// Package dashboard renders the JSONL run logs into a single static
// index.html: quality trend per memory config, the most recent runs,
// and a memory-store census when a store is attached.
package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"datanerd/internal/logging"
	"datanerd/internal/runlog"
	"datanerd/internal/store"
	"datanerd/internal/types"
)

const (
	defaultRecentLimit = 20
	trendWindow        = 30
	queryPreviewRunes  = 80
)

// Options configures the builder. RunsDir is required; OutPath defaults
// to index.html inside RunsDir. Store is optional and only feeds the
// memory census section.
type Options struct {
	RunsDir     string
	OutPath     string
	Store       *store.StateStore
	RecentLimit int
}

// Builder produces the static dashboard file.
type Builder struct {
	opts Options
}

// NewBuilder applies defaults and returns a builder.
func NewBuilder(opts Options) *Builder {
	if opts.OutPath == "" {
		opts.OutPath = filepath.Join(opts.RunsDir, "index.html")
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = defaultRecentLimit
	}
	return &Builder{opts: opts}
}

// OutPath returns where Build writes the page.
func (b *Builder) OutPath() string { return b.opts.OutPath }

// Build reads every run on record and rewrites the dashboard page.
func (b *Builder) Build() error {
	runs, err := runlog.ReadAll(b.opts.RunsDir)
	if err != nil {
		return fmt.Errorf("dashboard: read runs: %w", err)
	}

	var stats []types.MemoryStat
	if b.opts.Store != nil {
		stats, err = b.opts.Store.MemoryStats()
		if err != nil {
			return fmt.Errorf("dashboard: memory stats: %w", err)
		}
	}

	view := buildView(runs, stats, b.opts.RecentLimit, time.Now().UTC())

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		return fmt.Errorf("dashboard: render: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.opts.OutPath), 0755); err != nil {
		return fmt.Errorf("dashboard: create output dir: %w", err)
	}
	if err := os.WriteFile(b.opts.OutPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("dashboard: write page: %w", err)
	}

	logging.Dashboard("built %s from %d run(s)", b.opts.OutPath, len(runs))
	return nil
}

// ===== VIEW MODEL =====

// View is the template input.
type View struct {
	GeneratedAt string
	RunCount    int
	Configs     []ConfigRow
	Recent      []RunRow
	Memory      []types.MemoryStat
}

// ConfigRow aggregates one memory config's quality history.
type ConfigRow struct {
	Mode       string
	Runs       int
	Scored     int
	AvgQuality string
	AccRate    string
	Trend      string
}

// RunRow is one line of the recent-runs table.
type RunRow struct {
	When      string
	Mode      string
	Route     string
	Query     string
	Quality   string
	ToolCalls int
	Cached    int
	LatencyMs int64
}

// buildView folds the chronological run list into the page model.
func buildView(runs []types.Run, stats []types.MemoryStat, recentLimit int, now time.Time) View {
	view := View{
		GeneratedAt: now.Format("2006-01-02 15:04:05 UTC"),
		RunCount:    len(runs),
		Memory:      stats,
	}

	type configAgg struct {
		runs       int
		scored     int
		accurate   int
		qualitySum float64
		trend      []float64
	}
	byMode := make(map[string]*configAgg)
	for _, run := range runs {
		mode := string(run.Config.MemoryMode)
		agg := byMode[mode]
		if agg == nil {
			agg = &configAgg{}
			byMode[mode] = agg
		}
		agg.runs++
		if run.Eval == nil || run.Eval.Scores == nil {
			continue
		}
		agg.scored++
		agg.qualitySum += run.Eval.Scores.Quality
		if run.Eval.Scores.QuestionLevelAcc() {
			agg.accurate++
		}
		agg.trend = append(agg.trend, run.Eval.Scores.Quality)
	}

	modes := make([]string, 0, len(byMode))
	for mode := range byMode {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	for _, mode := range modes {
		agg := byMode[mode]
		row := ConfigRow{
			Mode:       mode,
			Runs:       agg.runs,
			Scored:     agg.scored,
			AvgQuality: "n/a",
			AccRate:    "n/a",
		}
		if agg.scored > 0 {
			row.AvgQuality = fmt.Sprintf("%.2f", agg.qualitySum/float64(agg.scored))
			row.AccRate = fmt.Sprintf("%.0f%%", 100*float64(agg.accurate)/float64(agg.scored))
		}
		trend := agg.trend
		if len(trend) > trendWindow {
			trend = trend[len(trend)-trendWindow:]
		}
		row.Trend = sparkline(trend)
		view.Configs = append(view.Configs, row)
	}

	// Newest first.
	for i := len(runs) - 1; i >= 0 && len(view.Recent) < recentLimit; i-- {
		view.Recent = append(view.Recent, runRow(runs[i]))
	}
	return view
}

func runRow(run types.Run) RunRow {
	row := RunRow{
		When:      whenLabel(run.CreatedAt),
		Mode:      string(run.Config.MemoryMode),
		Route:     string(run.Route),
		Query:     truncate(run.Query, queryPreviewRunes),
		Quality:   "n/a",
		ToolCalls: len(run.ToolCalls),
		LatencyMs: run.Latencies.ManagerRouteMs + run.Latencies.WorkerTotalMs + run.Latencies.EvalMs,
	}
	if run.OOD {
		row.Route = "ood"
	}
	for _, tc := range run.ToolCalls {
		if tc.Cached {
			row.Cached++
		}
	}
	if run.Eval != nil && run.Eval.Scores != nil {
		row.Quality = fmt.Sprintf("%.2f", run.Eval.Scores.Quality)
	}
	return row
}

// whenLabel trims an RFC 3339 timestamp down to minute precision.
func whenLabel(iso string) string {
	const minutePrefix = len("2006-01-02T15:04")
	if len(iso) < minutePrefix {
		return iso
	}
	return strings.Replace(iso[:minutePrefix], "T", " ", 1)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline renders 0..1 quality values as one block glyph per run.
func sparkline(values []float64) string {
	var sb strings.Builder
	for _, v := range values {
		v = math.Max(0, math.Min(1, v))
		sb.WriteRune(sparkLevels[int(math.Round(v*float64(len(sparkLevels)-1)))])
	}
	return sb.String()
}

// ===== TEMPLATE =====

var pageTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>datanerd runs</title>
<style>
  body { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; margin: 2rem; background: #fafafa; color: #222; }
  h1 { font-size: 1.3rem; margin-bottom: .2rem; }
  h2 { font-size: 1rem; margin-top: 2rem; }
  table { border-collapse: collapse; margin-top: .5rem; }
  th, td { border: 1px solid #ccc; padding: .3rem .6rem; text-align: left; font-size: .85rem; }
  th { background: #eee; font-weight: 600; }
  td.num { text-align: right; }
  .spark { font-size: 1rem; letter-spacing: 1px; }
  .muted { color: #888; }
</style>
</head>
<body>
<h1>datanerd runs</h1>
<p class="muted">generated {{.GeneratedAt}} &middot; {{.RunCount}} run(s) on record</p>

{{if .Configs}}
<h2>Quality by config</h2>
<table>
<tr><th>config</th><th>runs</th><th>scored</th><th>avg quality</th><th>accuracy</th><th>trend</th></tr>
{{range .Configs}}
<tr><td>{{.Mode}}</td><td class="num">{{.Runs}}</td><td class="num">{{.Scored}}</td><td class="num">{{.AvgQuality}}</td><td class="num">{{.AccRate}}</td><td class="spark">{{.Trend}}</td></tr>
{{end}}
</table>
{{end}}

<h2>Recent runs</h2>
{{if .Recent}}
<table>
<tr><th>when</th><th>config</th><th>route</th><th>query</th><th>quality</th><th>tools</th><th>cached</th><th>ms</th></tr>
{{range .Recent}}
<tr><td>{{.When}}</td><td>{{.Mode}}</td><td>{{.Route}}</td><td>{{.Query}}</td><td class="num">{{.Quality}}</td><td class="num">{{.ToolCalls}}</td><td class="num">{{.Cached}}</td><td class="num">{{.LatencyMs}}</td></tr>
{{end}}
</table>
{{else}}
<p class="muted">no runs recorded yet</p>
{{end}}

{{if .Memory}}
<h2>Memory items</h2>
<table>
<tr><th>scope</th><th>kind</th><th>count</th></tr>
{{range .Memory}}
<tr><td>{{.Scope}}</td><td>{{.Kind}}</td><td class="num">{{.Count}}</td></tr>
{{end}}
</table>
{{end}}
</body>
</html>
`))
