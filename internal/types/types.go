// Package types provides shared type definitions used across datanerd packages.
// This package exists to break import cycles between the orchestrator, store,
// retrieval, and evaluator packages. Types in this package should be
// foundational data structures with no complex dependencies.
package types

// =============================================================================
// RUN CONFIGURATION
// =============================================================================

// MemoryMode selects how much of the memory system participates in a run.
type MemoryMode string

const (
	MemoryModeBaseline       MemoryMode = "baseline"        // no retrieval, no writes, no cache
	MemoryModeRead           MemoryMode = "read"            // retrieval only
	MemoryModeReadWrite      MemoryMode = "readwrite"       // retrieval + evaluator writes
	MemoryModeReadWriteCache MemoryMode = "readwrite_cache" // readwrite plus tool-result caching
)

// Valid reports whether m is one of the recognized memory modes.
func (m MemoryMode) Valid() bool {
	switch m {
	case MemoryModeBaseline, MemoryModeRead, MemoryModeReadWrite, MemoryModeReadWriteCache:
		return true
	}
	return false
}

// RetrievalEnabled reports whether memory cards are retrieved for this mode.
func (m MemoryMode) RetrievalEnabled() bool {
	return m == MemoryModeRead || m == MemoryModeReadWrite || m == MemoryModeReadWriteCache
}

// WritesEnabled reports whether evaluator memory writes (and the trailing
// maintenance sweep) run in this mode.
func (m MemoryMode) WritesEnabled() bool {
	return m == MemoryModeReadWrite || m == MemoryModeReadWriteCache
}

// CacheEnabled reports whether tool-result caching is active in this mode.
func (m MemoryMode) CacheEnabled() bool {
	return m == MemoryModeReadWriteCache
}

// RunConfig is the per-run configuration snapshot stored with each run.
// Today overrides the clock's notion of the current date (YYYY-MM-DD).
type RunConfig struct {
	MemoryMode MemoryMode `json:"memoryMode"`
	Today      string     `json:"today,omitempty"`
}

// =============================================================================
// ROUTING
// =============================================================================

// Route names the worker agent a query is dispatched to.
type Route string

const (
	RouteDataPresenter    Route = "data_presenter"
	RouteInsightGenerator Route = "insight_generator"
)

// RouteDecision is the manager's verdict on a query.
type RouteDecision struct {
	OOD    bool   `json:"ood"`
	Route  Route  `json:"route,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// PLANS AND TOOL CALLS
// =============================================================================

// MaxPlanSteps bounds how many plan steps the executor will process.
const MaxPlanSteps = 6

// DateRange is an inclusive ISO date interval (YYYY-MM-DD bounds).
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// PlanStep is a single tool invocation requested by a plan.
type PlanStep struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Plan is the executable output of the planner.
type Plan struct {
	Route     Route      `json:"route"`
	TimeRange *DateRange `json:"timeRange,omitempty"`
	Steps     []PlanStep `json:"steps"`
	Notes     string     `json:"notes,omitempty"`
}

// ToolCallRecord captures one executed (or cache-served) plan step.
// Result holds the decoded tool output; for cache hits it is the stored
// JSON value, so consumers must not assume a concrete type.
type ToolCallRecord struct {
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args"`
	Signature  string         `json:"signature"`
	Cached     bool           `json:"cached"`
	StartedAt  string         `json:"startedAt"`
	DurationMs int64          `json:"durationMs"`
	Result     any            `json:"result,omitempty"`
}

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionState is the conversational state threaded across scenario steps.
// SelectedProductIDs is written by the data presenter after a top_products
// result and read by planners when the user says "those products". It is
// passed into and returned from each step explicitly, never held as
// ambient state.
type SessionState struct {
	SelectedProductIDs []string `json:"selectedProductIds,omitempty"`
}

// Clone returns an independent copy of the session state.
func (s SessionState) Clone() SessionState {
	out := SessionState{}
	if len(s.SelectedProductIDs) > 0 {
		out.SelectedProductIDs = make([]string, len(s.SelectedProductIDs))
		copy(out.SelectedProductIDs, s.SelectedProductIDs)
	}
	return out
}

// =============================================================================
// RUN RECORD
// =============================================================================

// Latencies records per-stage wall-clock timings for a run.
type Latencies struct {
	ManagerRouteMs int64 `json:"manager_route_ms"`
	WorkerTotalMs  int64 `json:"worker_total_ms"`
	EvalMs         int64 `json:"eval_ms"`
}

// StageMemory snapshots the memory cards injected at one pipeline stage.
type StageMemory struct {
	Stage string       `json:"stage"`
	Cards []MemoryCard `json:"cards"`
}

// Run is the persisted record of one query execution. Runs are append-only.
type Run struct {
	ID             string           `json:"id"`
	CreatedAt      string           `json:"createdAt"`
	UserID         string           `json:"userId"`
	Config         RunConfig        `json:"config"`
	Query          string           `json:"query"`
	AugmentedQuery string           `json:"augmentedQuery"`
	Route          Route            `json:"route,omitempty"`
	OOD            bool             `json:"ood"`
	Plan           *Plan            `json:"plan,omitempty"`
	UsedFallback   bool             `json:"usedFallback,omitempty"`
	RawPlanText    string           `json:"rawPlanText,omitempty"`
	ToolCalls      []ToolCallRecord `json:"toolCalls,omitempty"`
	Response       string           `json:"response"`
	Eval           *EvalResult      `json:"eval,omitempty"`
	Latencies      Latencies        `json:"latencies"`
	MemoryInjected []StageMemory    `json:"memoryInjected,omitempty"`
	Session        SessionState     `json:"session"`
}
