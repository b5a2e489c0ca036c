// Package planner turns a routed query into an executable tool plan.
// The primary path asks the LLM for a JSON plan and validates every
// candidate object found in its reply; a deterministic rule-based
// fallback covers model failures and LLM-free runs.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"datanerd/internal/clock"
	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

// Marker precedes the JSON plan object in the model's reply.
const Marker = "OUTPUT_JSON_PLAN"

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Input carries everything the planner needs for one query.
type Input struct {
	Route          types.Route
	Query          string
	AugmentedQuery string
	TimeContext    clock.TimeContext
	Session        types.SessionState
	MemoryCards    []types.MemoryCard
}

// Result is the planner's verdict. RawText is the unparsed model reply,
// kept even when every candidate in it was rejected.
type Result struct {
	Plan         *types.Plan
	RawText      string
	UsedFallback bool
}

// Config holds planner tuning knobs.
type Config struct {
	MaxOutputTokens int
}

// DefaultConfig returns the default planner configuration.
func DefaultConfig() Config {
	return Config{MaxOutputTokens: 1024}
}

// Planner builds tool plans against a registry. A nil client skips the
// LLM path entirely and every plan comes from the heuristic builder.
type Planner struct {
	registry *tools.Registry
	client   llm.Client
	cfg      Config
}

// New creates a Planner with default configuration.
func New(registry *tools.Registry, client llm.Client) *Planner {
	return NewWithConfig(registry, client, DefaultConfig())
}

// NewWithConfig creates a Planner with custom configuration.
func NewWithConfig(registry *tools.Registry, client llm.Client, cfg Config) *Planner {
	def := DefaultConfig()
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	return &Planner{registry: registry, client: client, cfg: cfg}
}

// Build produces a plan for the input. It only fails on context
// cancellation; any model-side problem degrades to the heuristic plan.
func (p *Planner) Build(ctx context.Context, in Input) (*Result, error) {
	if p.client == nil {
		return &Result{Plan: p.heuristicPlan(in), UsedFallback: true}, nil
	}

	query := in.AugmentedQuery
	if query == "" {
		query = in.Query
	}

	timer := logging.StartTimer(logging.CategoryPlanner, "plan_completion")
	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		Instructions:    p.buildPrompt(in),
		Messages:        []llm.Message{{Role: llm.RoleUser, Content: query}},
		Temperature:     0,
		MaxOutputTokens: p.cfg.MaxOutputTokens,
	})
	timer.Stop()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		logging.PlannerWarn("completion failed, using heuristic plan: %v", err)
		return &Result{Plan: p.heuristicPlan(in), UsedFallback: true}, nil
	}

	for i, candidate := range extractJSONCandidates(resp.Text) {
		plan, err := p.validateCandidate(stripTrailingCommas(candidate))
		if err != nil {
			logging.PlannerDebug("plan candidate %d rejected: %v", i, err)
			continue
		}
		logging.Planner("plan accepted: route=%s steps=%d", plan.Route, len(plan.Steps))
		return &Result{Plan: plan, RawText: resp.Text}, nil
	}

	logging.PlannerWarn("no valid plan in completion, using heuristic plan")
	return &Result{Plan: p.heuristicPlan(in), RawText: resp.Text, UsedFallback: true}, nil
}

// buildPrompt composes the instruction block for the planning call.
func (p *Planner) buildPrompt(in Input) string {
	var sb strings.Builder
	sb.WriteString("You are the planning stage of a seller analytics assistant.\n")
	sb.WriteString("Choose the tool calls that answer the user's question. Reply with the marker ")
	sb.WriteString(Marker)
	sb.WriteString(" followed by exactly one JSON object of this shape:\n")
	sb.WriteString(`{"route":"<route>","timeRange":{"startDate":"YYYY-MM-DD","endDate":"YYYY-MM-DD"},"steps":[{"tool":"<name>","args":{}}]}`)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Target route: %s\n", in.Route))
	sb.WriteString(fmt.Sprintf("Time context: %s\n\n", in.TimeContext.Describe()))
	sb.WriteString("Available tools:\n")
	sb.WriteString(p.registry.Describe())
	sb.WriteString("\n")
	if ids := in.Session.SelectedProductIDs; len(ids) > 0 {
		sb.WriteString("Session hints:\n")
		sb.WriteString(fmt.Sprintf("- selectedProductIds: %s\n\n", strings.Join(ids, ", ")))
	}
	if len(in.MemoryCards) > 0 {
		sb.WriteString("Relevant memory from earlier runs:\n")
		for _, card := range in.MemoryCards {
			sb.WriteString(card.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Dates are inclusive ISO dates. Use at most ")
	sb.WriteString(fmt.Sprintf("%d", types.MaxPlanSteps))
	sb.WriteString(" steps and no prose outside the JSON object.\n")
	return sb.String()
}

// validateCandidate runs one extracted object through the acceptance
// pipeline: JSON parse, plan shape, tool existence, then schema
// validation which also canonicalizes each step's args.
func (p *Planner) validateCandidate(raw string) (*types.Plan, error) {
	var plan types.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if plan.Route != types.RouteDataPresenter && plan.Route != types.RouteInsightGenerator {
		return nil, fmt.Errorf("unknown route %q", plan.Route)
	}
	if len(plan.Steps) == 0 {
		return nil, errors.New("plan has no steps")
	}
	if tr := plan.TimeRange; tr != nil {
		if !isoDateRe.MatchString(tr.StartDate) || !isoDateRe.MatchString(tr.EndDate) {
			return nil, fmt.Errorf("timeRange bounds must be YYYY-MM-DD, got %q..%q", tr.StartDate, tr.EndDate)
		}
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if _, ok := p.registry.Get(step.Tool); !ok {
			return nil, fmt.Errorf("step %d: unknown tool %q", i, step.Tool)
		}
		canonical, err := p.registry.ValidateArgs(step.Tool, step.Args)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Tool, err)
		}
		step.Args = canonical
	}
	return &plan, nil
}
