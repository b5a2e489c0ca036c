package types

// =============================================================================
// EVALUATION
// =============================================================================

// EvalSpecType names the ground-truth template the evaluator inferred from
// the query text.
type EvalSpecType string

const (
	EvalTopProducts EvalSpecType = "top_products"
	EvalTimeseries  EvalSpecType = "timeseries"
	EvalWhyDropWoW  EvalSpecType = "why_drop_wow"
)

// EvalSpec describes what a correct answer to the query required. Which
// fields are set depends on Type: top_products uses Metric/Limit and the
// date range, timeseries uses Metric and the date range, why_drop_wow uses
// Metric plus the two week ranges.
type EvalSpec struct {
	Type      EvalSpecType `json:"type"`
	Metric    string       `json:"metric,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	StartDate string       `json:"startDate,omitempty"`
	EndDate   string       `json:"endDate,omitempty"`
	ThisWeek  *DateRange   `json:"thisWeek,omitempty"`
	LastWeek  *DateRange   `json:"lastWeek,omitempty"`
}

// EvalScores are the three sub-scores and their arithmetic mean.
type EvalScores struct {
	Correctness  float64 `json:"correctness"`
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Quality      float64 `json:"quality"`
}

// QuestionLevelAcc reports whether all three sub-scores clear 0.8.
func (s EvalScores) QuestionLevelAcc() bool {
	return s.Correctness > 0.8 && s.Completeness > 0.8 && s.Relevance > 0.8
}

// EvalResult is the evaluator's verdict on a run. Spec and Scores are nil
// when the query matched no ground-truth template. Notes explain score
// deductions in plain language and seed failure-case memory text.
type EvalResult struct {
	Spec   *EvalSpec   `json:"spec,omitempty"`
	Scores *EvalScores `json:"scores,omitempty"`
	Notes  []string    `json:"notes,omitempty"`
}
