package scenario

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"datanerd/internal/types"
)

// StepStats captures one executed step's measurable outcomes. Scores and
// QuestionLevelAcc are nil when the evaluator had no template for the
// query (or the step failed).
type StepStats struct {
	Step             string            `json:"step"`
	Query            string            `json:"query"`
	RunID            string            `json:"runId,omitempty"`
	OOD              bool              `json:"ood,omitempty"`
	Route            types.Route       `json:"route,omitempty"`
	ToolCalls        int               `json:"toolCalls"`
	CachedToolCalls  int               `json:"cachedToolCalls"`
	LatencyMs        int64             `json:"latencyMs"`
	Scores           *types.EvalScores `json:"scores,omitempty"`
	QuestionLevelAcc *bool             `json:"questionLevelAcc,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Aggregate summarizes one config's runs. Score fields are nil when no
// step produced scores; P90LatencyMs is nil when no step completed.
type Aggregate struct {
	AvgQuality           *float64 `json:"avgQuality"`
	QuestionLevelAccRate *float64 `json:"questionLevelAccRate"`
	ToolCallsTotal       int      `json:"toolCallsTotal"`
	CachedToolCallsTotal int      `json:"cachedToolCallsTotal"`
	P90LatencyMs         *int64   `json:"p90LatencyMs"`
}

// ConfigSummary is one memory mode's full result set.
type ConfigSummary struct {
	Config    types.MemoryMode `json:"config"`
	Runs      []StepStats      `json:"runs"`
	Aggregate Aggregate        `json:"aggregate"`
}

// Report compares memory modes over one scenario.
type Report struct {
	Scenario  string          `json:"scenario"`
	Title     string          `json:"title,omitempty"`
	Today     string          `json:"today,omitempty"`
	Repeat    int             `json:"repeat"`
	Summaries []ConfigSummary `json:"summaries"`
}

// WriteFile writes the report as indented JSON.
func (r *Report) WriteFile(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// P90 returns the 90th percentile by the sorted-index rule
// floor((n-1)*0.9), or nil for empty input.
func P90(latencies []int64) *int64 {
	if len(latencies) == 0 {
		return nil
	}
	sorted := append([]int64(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Floor(float64(len(sorted)-1) * 0.9))
	v := sorted[idx]
	return &v
}

// aggregate folds step stats into the config summary line. Failed steps
// contribute nothing to latency percentiles.
func aggregate(steps []StepStats) Aggregate {
	agg := Aggregate{}
	var latencies []int64
	var qualitySum float64
	scored, accurate := 0, 0

	for _, s := range steps {
		agg.ToolCallsTotal += s.ToolCalls
		agg.CachedToolCallsTotal += s.CachedToolCalls
		if s.Error == "" {
			latencies = append(latencies, s.LatencyMs)
		}
		if s.Scores != nil {
			scored++
			qualitySum += s.Scores.Quality
			if s.Scores.QuestionLevelAcc() {
				accurate++
			}
		}
	}

	if scored > 0 {
		avg := qualitySum / float64(scored)
		rate := float64(accurate) / float64(scored)
		agg.AvgQuality = &avg
		agg.QuestionLevelAccRate = &rate
	}
	agg.P90LatencyMs = P90(latencies)
	return agg
}
