// Package agents holds the two worker agents behind the manager. The
// data presenter renders tool results deterministically; the insight
// generator narrates them through the LLM. Both share the same
// plan-then-execute front half.
package agents

import (
	"context"

	"datanerd/internal/clock"
	"datanerd/internal/executor"
	"datanerd/internal/planner"
	"datanerd/internal/types"
)

// Input is what a worker agent receives for one query.
type Input struct {
	Query          string
	AugmentedQuery string
	TimeContext    clock.TimeContext
	Session        types.SessionState
	// PlanCards feed the planner prompt; InsightCards feed the insight
	// narrative prompt and are ignored by the presenter.
	PlanCards    []types.MemoryCard
	InsightCards []types.MemoryCard
	UseCache     bool
}

// Output is a worker agent's contribution to the run record. Session is
// a copy; the presenter rewrites its product selection, the insight
// generator leaves it untouched.
type Output struct {
	Plan         *types.Plan
	UsedFallback bool
	RawPlanText  string
	ToolCalls    []types.ToolCallRecord
	Results      map[string]any
	Response     string
	Session      types.SessionState
}

// Worker is implemented by both agents.
type Worker interface {
	Handle(ctx context.Context, in Input) (*Output, error)
}

// planAndExecute runs the shared front half of both agents.
func planAndExecute(ctx context.Context, pl *planner.Planner, ex *executor.Executor, route types.Route, in Input) (*Output, error) {
	res, err := pl.Build(ctx, planner.Input{
		Route:          route,
		Query:          in.Query,
		AugmentedQuery: in.AugmentedQuery,
		TimeContext:    in.TimeContext,
		Session:        in.Session,
		MemoryCards:    in.PlanCards,
	})
	if err != nil {
		return nil, err
	}

	records, results, err := ex.Run(ctx, res.Plan, in.UseCache)
	if err != nil {
		return nil, err
	}

	return &Output{
		Plan:         res.Plan,
		UsedFallback: res.UsedFallback,
		RawPlanText:  res.RawText,
		ToolCalls:    records,
		Results:      results,
		Session:      in.Session.Clone(),
	}, nil
}
