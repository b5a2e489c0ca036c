// Package executor runs validated plan steps against the tool registry,
// short-circuiting through the tool-result cache when the run's memory
// mode allows it.
package executor

import (
	"context"
	"fmt"

	"datanerd/internal/clock"
	"datanerd/internal/logging"
	"datanerd/internal/signature"
	"datanerd/internal/store"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

// CacheNamespace scopes tool-call signatures to the tool cache table.
const CacheNamespace = "tool_cache"

// Cache is the slice of the state store the executor needs.
type Cache interface {
	GetToolCache(sig string) (*store.CacheEntry, error)
	SetToolCache(tool, sig string, args map[string]any, result any, nowISO string) error
}

// Executor turns a plan into tool call records. Tool and storage errors
// abort the run; the caller decides what that means for the scenario.
type Executor struct {
	registry *tools.Registry
	cache    Cache
	clk      clock.Clock
}

// New creates an Executor. A nil clk falls back to the system clock.
func New(registry *tools.Registry, cache Cache, clk clock.Clock) *Executor {
	if clk == nil {
		clk = clock.System()
	}
	return &Executor{registry: registry, cache: cache, clk: clk}
}

// Run executes up to the first types.MaxPlanSteps steps of the plan and
// returns the ordered call records plus a last-wins collapse of results
// keyed by tool name. Cached results are decoded JSON values, so
// consumers must go through tools.DecodeResult rather than type-assert.
func (e *Executor) Run(ctx context.Context, plan *types.Plan, useCache bool) ([]types.ToolCallRecord, map[string]any, error) {
	steps := plan.Steps
	if len(steps) > types.MaxPlanSteps {
		logging.ExecutorDebug("plan has %d steps, executing first %d", len(steps), types.MaxPlanSteps)
		steps = steps[:types.MaxPlanSteps]
	}

	records := make([]types.ToolCallRecord, 0, len(steps))
	results := make(map[string]any, len(steps))

	for i, step := range steps {
		canonical, err := e.registry.ValidateArgs(step.Tool, step.Args)
		if err != nil {
			return nil, nil, fmt.Errorf("step %d (%s): %w", i, step.Tool, err)
		}
		sig, err := signature.Compute(CacheNamespace, step.Tool, canonical)
		if err != nil {
			return nil, nil, fmt.Errorf("step %d (%s): %w", i, step.Tool, err)
		}

		startMs := e.clk.NowMs()
		rec := types.ToolCallRecord{
			Tool:      step.Tool,
			Args:      canonical,
			Signature: sig,
			StartedAt: clock.ISO(startMs),
		}

		if useCache {
			entry, err := e.cache.GetToolCache(sig)
			if err != nil {
				return nil, nil, fmt.Errorf("step %d (%s): cache read: %w", i, step.Tool, err)
			}
			if entry != nil {
				rec.Cached = true
				rec.Result = entry.Result
				rec.DurationMs = e.clk.NowMs() - startMs
				records = append(records, rec)
				results[step.Tool] = entry.Result
				logging.ExecutorDebug("cache hit for %s", sig)
				continue
			}
		}

		out, err := e.registry.Execute(ctx, step.Tool, canonical)
		if err != nil {
			return nil, nil, fmt.Errorf("step %d (%s): %w", i, step.Tool, err)
		}
		rec.DurationMs = e.clk.NowMs() - startMs
		rec.Result = out
		records = append(records, rec)
		results[step.Tool] = out

		if useCache {
			if err := e.cache.SetToolCache(step.Tool, sig, canonical, out, clock.ISO(e.clk.NowMs())); err != nil {
				return nil, nil, fmt.Errorf("step %d (%s): cache write: %w", i, step.Tool, err)
			}
		}
	}

	logging.Executor("executed %d steps (%d tools distinct)", len(records), len(results))
	return records, results, nil
}
