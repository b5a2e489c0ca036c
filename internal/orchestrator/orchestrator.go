// Package orchestrator drives one query through the pipeline:
// Start → Augment → ManagerRoute → [OOD | WorkerDispatch] → Evaluate →
// (MaybeWrite) → Record. One instance processes one query at a time;
// callers thread session state between runs explicitly.
package orchestrator

import (
	"context"
	"fmt"

	"datanerd/internal/agents"
	"datanerd/internal/clock"
	"datanerd/internal/evaluator"
	"datanerd/internal/executor"
	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/manager"
	"datanerd/internal/planner"
	"datanerd/internal/redact"
	"datanerd/internal/retrieval"
	"datanerd/internal/runlog"
	"datanerd/internal/store"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

// OODResponse is the fixed reply for out-of-domain queries.
const OODResponse = "Out of scope: I can help with seller analytics (sales, traffic, benchmarks)."

// weekConventionRule is the global domain rule seeded at construction so
// every run shares the same calendar reading.
const weekConventionRule = "weeks are Mon-Sun; last week/month refers to the previous calendar week/month"

// Options wires an orchestrator. Store and Registry are required. A nil
// Client falls back to heuristic routing and planning plus the insight
// placeholder; a nil Clock uses the system clock; a nil RunLog disables
// JSONL logging.
type Options struct {
	Store    *store.StateStore
	Registry *tools.Registry
	Client   llm.Client
	Clock    clock.Clock
	RunLog   *runlog.Writer
	UserID   string
	Mode     types.MemoryMode
}

// Orchestrator executes queries end to end against one user's memory.
type Orchestrator struct {
	store     *store.StateStore
	leverager *retrieval.Leverager
	manager   *manager.Manager
	presenter *agents.Presenter
	insight   *agents.InsightGenerator
	evaluator *evaluator.Evaluator
	runLog    *runlog.Writer
	clk       clock.Clock
	userID    string
	mode      types.MemoryMode
}

// New assembles the pipeline and seeds the global calendar-week rule.
// Re-seeding on every construction is safe: the upsert dedupes.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("orchestrator: tool registry is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("orchestrator: user id is required")
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("orchestrator: invalid memory mode %q", opts.Mode)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}

	pl := planner.New(opts.Registry, opts.Client)
	ex := executor.New(opts.Registry, opts.Store, clk)

	o := &Orchestrator{
		store:     opts.Store,
		leverager: retrieval.New(opts.Store),
		manager:   manager.New(opts.Client),
		presenter: agents.NewPresenter(pl, ex),
		insight:   agents.NewInsightGenerator(pl, ex, opts.Client),
		evaluator: evaluator.New(opts.Registry),
		runLog:    opts.RunLog,
		clk:       clk,
		userID:    opts.UserID,
		mode:      opts.Mode,
	}

	if _, err := opts.Store.UpsertMemoryItem(types.MemoryUpsert{
		Scope:      types.ScopeGlobal,
		Kind:       types.KindDomainRule,
		Text:       weekConventionRule,
		Importance: 0.9,
		Quality:    1,
	}, clock.ISO(clk.NowMs())); err != nil {
		return nil, fmt.Errorf("orchestrator: seed domain rule: %w", err)
	}

	logging.Orchestrator("ready: user=%s mode=%s", opts.UserID, opts.Mode)
	return o, nil
}

// Mode returns the memory mode this orchestrator runs under.
func (o *Orchestrator) Mode() types.MemoryMode { return o.mode }

// Ask runs one query end to end and records the run. The returned run
// carries the response text and the post-run session state; an error
// means the run was aborted and not recorded.
func (o *Orchestrator) Ask(ctx context.Context, query string, session types.SessionState) (*types.Run, error) {
	startMs := o.clk.NowMs()
	tc := o.clk.TimeContext()

	run := &types.Run{
		ID:             types.NewID("run", startMs),
		CreatedAt:      clock.ISO(startMs),
		UserID:         o.userID,
		Config:         types.RunConfig{MemoryMode: o.mode, Today: o.clk.Today()},
		Query:          query,
		AugmentedQuery: augment(query, tc),
		Session:        session.Clone(),
	}

	routeCards, err := o.retrieve(retrieval.StageManagerRoute, query, run)
	if err != nil {
		return nil, err
	}
	routeStart := o.clk.NowMs()
	decision := o.manager.Route(ctx, query, routeCards)
	run.Latencies.ManagerRouteMs = o.clk.NowMs() - routeStart

	if decision.OOD {
		run.OOD = true
		run.Response = redact.Apply(OODResponse)
		logging.Orchestrator("run %s: out of domain (%s)", run.ID, decision.Reason)
		if err := o.record(run); err != nil {
			return nil, err
		}
		return run, nil
	}
	run.Route = decision.Route

	workerStart := o.clk.NowMs()
	planCards, err := o.retrieve(retrieval.StageWorkflowPlan, query, run)
	if err != nil {
		return nil, err
	}
	var insightCards []types.MemoryCard
	if decision.Route == types.RouteInsightGenerator {
		if insightCards, err = o.retrieve(retrieval.StageInsightGenerate, query, run); err != nil {
			return nil, err
		}
	}

	var worker agents.Worker = o.presenter
	if decision.Route == types.RouteInsightGenerator {
		worker = o.insight
	}
	out, err := worker.Handle(ctx, agents.Input{
		Query:          query,
		AugmentedQuery: run.AugmentedQuery,
		TimeContext:    tc,
		Session:        session.Clone(),
		PlanCards:      planCards,
		InsightCards:   insightCards,
		UseCache:       o.mode.CacheEnabled(),
	})
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", decision.Route, err)
	}
	run.Latencies.WorkerTotalMs = o.clk.NowMs() - workerStart

	run.Plan = out.Plan
	run.UsedFallback = out.UsedFallback
	run.RawPlanText = out.RawPlanText
	run.ToolCalls = out.ToolCalls
	run.Response = redact.Apply(out.Response)
	run.Session = out.Session

	evalStart := o.clk.NowMs()
	evalResult, err := o.evaluator.Evaluate(ctx, query, o.clk.Today(), run.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("evaluate run: %w", err)
	}
	run.Latencies.EvalMs = o.clk.NowMs() - evalStart
	run.Eval = evalResult

	if o.mode.WritesEnabled() {
		o.writeMemory(run)
	}

	if err := o.record(run); err != nil {
		return nil, err
	}
	return run, nil
}

// augment appends the calendar snapshot so downstream prompts share one
// notion of today.
func augment(query string, tc clock.TimeContext) string {
	return query + "\n[time context] " + tc.Describe()
}

// retrieve pulls stage cards and snapshots them on the run. Baseline
// mode retrieves nothing.
func (o *Orchestrator) retrieve(stage retrieval.Stage, query string, run *types.Run) ([]types.MemoryCard, error) {
	if !o.mode.RetrievalEnabled() {
		return nil, nil
	}
	cards, err := o.leverager.Retrieve(stage, query, o.userID, clock.ISO(o.clk.NowMs()))
	if err != nil {
		return nil, fmt.Errorf("retrieve %s memory: %w", stage, err)
	}
	if len(cards) > 0 {
		run.MemoryInjected = append(run.MemoryInjected, types.StageMemory{Stage: string(stage), Cards: cards})
	}
	return cards, nil
}

// writeMemory persists evaluator proposals and sweeps expired items.
// Both are best-effort; a failed write never invalidates the answer.
func (o *Orchestrator) writeMemory(run *types.Run) {
	now := clock.ISO(o.clk.NowMs())
	if run.Eval != nil {
		for _, p := range evaluator.Proposals(o.userID, run.Query, run.Eval, run.Plan, run.ToolCalls) {
			if _, err := o.store.UpsertMemoryItem(p, now); err != nil {
				logging.OrchestratorWarn("memory write failed: %v", err)
			}
		}
	}
	if _, err := o.store.Maintenance(now); err != nil {
		logging.OrchestratorWarn("maintenance failed: %v", err)
	}
}

func (o *Orchestrator) record(run *types.Run) error {
	if err := o.store.InsertRun(run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if o.runLog != nil {
		if err := o.runLog.Append(run); err != nil {
			logging.OrchestratorWarn("run log append failed: %v", err)
		}
	}
	logging.OrchestratorDebug("recorded run %s: route=%s ood=%v tools=%d",
		run.ID, run.Route, run.OOD, len(run.ToolCalls))
	return nil
}
