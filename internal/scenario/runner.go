package scenario

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"datanerd/internal/clock"
	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/orchestrator"
	"datanerd/internal/runlog"
	"datanerd/internal/store"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

// Options configures a scenario run.
type Options struct {
	Scenario *Scenario
	Registry *tools.Registry // shared read-only dataset surface
	// NewClient builds one LLM client per config, so stateful fakes do
	// not bleed across configs. Nil runs the heuristic-only pipeline.
	NewClient func() llm.Client
	UserID    string // defaults to "demo"
	Configs   []types.MemoryMode
	Repeat    int // defaults to 1
	// StatePath is the base state-db path; each config gets its own file
	// with the config name infixed. Empty (or ":memory:") keeps every
	// config in its own in-memory store.
	StatePath string
	RunLogDir string // optional JSONL run logging
}

// Run executes the scenario once per config, configs in parallel, and
// returns the comparison report. Summary order follows opts.Configs.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Scenario == nil {
		return nil, fmt.Errorf("scenario run: scenario is required")
	}
	if err := opts.Scenario.Validate(); err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("scenario run: tool registry is required")
	}
	if len(opts.Configs) == 0 {
		return nil, fmt.Errorf("scenario run: at least one config is required")
	}
	for _, mode := range opts.Configs {
		if !mode.Valid() {
			return nil, fmt.Errorf("scenario run: invalid config %q", mode)
		}
	}
	if opts.UserID == "" {
		opts.UserID = "demo"
	}
	if opts.Repeat <= 0 {
		opts.Repeat = 1
	}

	clk := clock.System()
	if opts.Scenario.Today != "" {
		fixed, err := clock.Fixed(opts.Scenario.Today)
		if err != nil {
			return nil, err
		}
		clk = fixed
	}

	logging.Scenario("running %s: %d step(s) x %d pass(es) across %d config(s)",
		opts.Scenario.ID, len(opts.Scenario.Steps), opts.Repeat, len(opts.Configs))

	summaries := make([]ConfigSummary, len(opts.Configs))
	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range opts.Configs {
		g.Go(func() error {
			summary, err := runConfig(gctx, opts, mode, clk)
			if err != nil {
				return fmt.Errorf("config %s: %w", mode, err)
			}
			summaries[i] = *summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		Scenario:  opts.Scenario.ID,
		Title:     opts.Scenario.Title,
		Today:     opts.Scenario.Today,
		Repeat:    opts.Repeat,
		Summaries: summaries,
	}, nil
}

// runConfig owns one config end to end: its own store file, orchestrator
// and session. A failed step is recorded and the pass moves on.
func runConfig(ctx context.Context, opts Options, mode types.MemoryMode, clk clock.Clock) (*ConfigSummary, error) {
	st, err := store.Open(statePathFor(opts.StatePath, mode))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var client llm.Client
	if opts.NewClient != nil {
		client = opts.NewClient()
	}
	var logWriter *runlog.Writer
	if opts.RunLogDir != "" {
		logWriter = runlog.NewWriter(opts.RunLogDir)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Store:    st,
		Registry: opts.Registry,
		Client:   client,
		Clock:    clk,
		RunLog:   logWriter,
		UserID:   opts.UserID,
		Mode:     mode,
	})
	if err != nil {
		return nil, err
	}

	summary := &ConfigSummary{Config: mode}
	for pass := 0; pass < opts.Repeat; pass++ {
		session := types.SessionState{} // fresh per pass
		for idx, step := range opts.Scenario.Steps {
			stats := StepStats{Step: stepName(step, idx), Query: step.Query}

			started := time.Now()
			run, err := orch.Ask(ctx, step.Query, session)
			stats.LatencyMs = time.Since(started).Milliseconds()

			if err != nil {
				stats.Error = err.Error()
				logging.Scenario("config %s %s: step failed: %v", mode, stats.Step, err)
				summary.Runs = append(summary.Runs, stats)
				continue
			}

			session = run.Session
			stats.RunID = run.ID
			stats.OOD = run.OOD
			stats.Route = run.Route
			stats.ToolCalls = len(run.ToolCalls)
			for _, tc := range run.ToolCalls {
				if tc.Cached {
					stats.CachedToolCalls++
				}
			}
			if run.Eval != nil && run.Eval.Scores != nil {
				scores := *run.Eval.Scores
				stats.Scores = &scores
				acc := scores.QuestionLevelAcc()
				stats.QuestionLevelAcc = &acc
			}
			summary.Runs = append(summary.Runs, stats)
		}
	}

	summary.Aggregate = aggregate(summary.Runs)
	logging.Scenario("config %s: %d run(s), %d tool call(s), %d cached",
		mode, len(summary.Runs), summary.Aggregate.ToolCallsTotal, summary.Aggregate.CachedToolCallsTotal)
	return summary, nil
}

func stepName(step Step, idx int) string {
	if step.ID != "" {
		return step.ID
	}
	return fmt.Sprintf("s%d", idx+1)
}

// statePathFor isolates each config in its own store file.
func statePathFor(base string, mode types.MemoryMode) string {
	if base == "" || base == ":memory:" {
		return ":memory:"
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + string(mode) + ext
}
