// Package evaluator is the memory write path. It re-derives what a
// correct answer to the query required, scores the actual tool calls
// against ground truth re-queried from the dataset, and proposes memory
// items for the run's outcome.
package evaluator

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"datanerd/internal/clock"
	"datanerd/internal/dataset"
	"datanerd/internal/logging"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

var (
	topWordRe = regexp.MustCompile(`\btop\b`)
	topNRe    = regexp.MustCompile(`\btop\s+(\d+)\b`)
)

// Evaluator scores runs by replaying canonical queries through the tool
// registry. It trusts the dataset, never the planner.
type Evaluator struct {
	registry *tools.Registry
}

// New creates an Evaluator over the given registry.
func New(registry *tools.Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// InferSpec re-derives the assessable shape of a query from its text and
// the calendar. Nil means the query fits no ground-truth template.
func InferSpec(query string, tc clock.TimeContext) *types.EvalSpec {
	q := strings.ToLower(query)

	if topWordRe.MatchString(q) && strings.Contains(q, "products") {
		if dr, ok := calendarPhraseRange(q, tc); ok {
			return &types.EvalSpec{
				Type:      types.EvalTopProducts,
				Metric:    detectMetric(q),
				Limit:     detectLimit(q),
				StartDate: dr.StartDate,
				EndDate:   dr.EndDate,
			}
		}
	}

	if (strings.Contains(q, "traffic") || strings.Contains(q, "sessions")) && strings.Contains(q, "those products") {
		dr, ok := calendarPhraseRange(q, tc)
		if !ok {
			dr = types.DateRange{StartDate: tc.LastMonthStart, EndDate: tc.LastMonthEnd}
		}
		return &types.EvalSpec{
			Type:      types.EvalTimeseries,
			Metric:    "sessions",
			StartDate: dr.StartDate,
			EndDate:   dr.EndDate,
		}
	}

	if strings.Contains(q, "why") && strings.Contains(q, "drop") && strings.Contains(q, "wow") {
		return &types.EvalSpec{
			Type:     types.EvalWhyDropWoW,
			Metric:   detectMetric(q),
			ThisWeek: &types.DateRange{StartDate: tc.ThisWeekStart, EndDate: tc.ThisWeekEnd},
			LastWeek: &types.DateRange{StartDate: tc.LastWeekStart, EndDate: tc.LastWeekEnd},
		}
	}

	return nil
}

// Evaluate scores the run's tool calls against the spec inferred from
// the query. A nil result with nil error means the query was not
// assessable.
func (e *Evaluator) Evaluate(ctx context.Context, query, today string, toolCalls []types.ToolCallRecord) (*types.EvalResult, error) {
	tc, err := clock.ContextFor(today)
	if err != nil {
		return nil, err
	}
	spec := InferSpec(query, tc)
	if spec == nil {
		logging.EvaluatorDebug("no eval spec for query %q", query)
		return nil, nil
	}

	var result *types.EvalResult
	switch spec.Type {
	case types.EvalTopProducts:
		result, err = e.scoreTopProducts(ctx, spec, toolCalls)
	case types.EvalTimeseries:
		result = e.scoreTimeseries(spec, toolCalls)
	case types.EvalWhyDropWoW:
		result, err = e.scoreWhyDropWoW(ctx, spec, toolCalls)
	}
	if err != nil {
		return nil, err
	}
	if result != nil && result.Scores != nil {
		logging.Evaluator("scored %s run: quality=%.2f (c=%.2f p=%.2f r=%.2f)",
			spec.Type, result.Scores.Quality, result.Scores.Correctness, result.Scores.Completeness, result.Scores.Relevance)
	}
	return result, nil
}

func (e *Evaluator) scoreTopProducts(ctx context.Context, spec *types.EvalSpec, calls []types.ToolCallRecord) (*types.EvalResult, error) {
	res := &types.EvalResult{Spec: spec}

	rec := firstCall(calls, "top_products")
	if rec == nil {
		res.Scores = &types.EvalScores{}
		res.Notes = append(res.Notes, "no top_products call in the plan")
		return res, nil
	}
	var actual tools.TopProductsResult
	if err := tools.DecodeResult(rec.Result, &actual); err != nil {
		res.Scores = &types.EvalScores{}
		res.Notes = append(res.Notes, "top_products result could not be decoded")
		return res, nil
	}

	if len(actual.Rows) == 0 {
		res.Scores = scores(0, 0, 0.2)
		res.Notes = append(res.Notes, "top_products returned no rows")
		return res, nil
	}

	relevance := 0.4
	if argsMatchSpec(rec.Args, spec.Metric, spec.StartDate, spec.EndDate) {
		relevance = 1
	} else {
		res.Notes = append(res.Notes, fmt.Sprintf("call args differ from expected %s %s..%s",
			spec.Metric, spec.StartDate, spec.EndDate))
	}

	expected, err := e.topProducts(ctx, spec.Metric, spec.StartDate, spec.EndDate, spec.Limit)
	if err != nil {
		return nil, fmt.Errorf("ground truth top_products: %w", err)
	}

	n := spec.Limit
	if len(expected) < n {
		n = len(expected)
	}
	if len(actual.Rows) < n {
		n = len(actual.Rows)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if expected[i].ProductID == actual.Rows[i].ProductID &&
			nearlyEqual(expected[i].MetricValue, actual.Rows[i].MetricValue, 0.01) {
			matches++
		}
	}
	correctness := 0.0
	if n > 0 {
		correctness = float64(matches) / float64(n)
	}
	if matches < n {
		res.Notes = append(res.Notes, fmt.Sprintf("%d of %d compared rows diverge from ground truth", n-matches, n))
	}

	completeness := math.Min(1, float64(len(actual.Rows))/float64(spec.Limit))
	if len(actual.Rows) < spec.Limit {
		res.Notes = append(res.Notes, fmt.Sprintf("returned %d of %d requested rows", len(actual.Rows), spec.Limit))
	}

	res.Scores = scores(correctness, completeness, relevance)
	return res, nil
}

func (e *Evaluator) scoreTimeseries(spec *types.EvalSpec, calls []types.ToolCallRecord) *types.EvalResult {
	res := &types.EvalResult{Spec: spec}

	rec := firstCall(calls, "timeseries")
	if rec == nil {
		res.Scores = &types.EvalScores{}
		res.Notes = append(res.Notes, "no timeseries call in the plan")
		return res
	}
	var actual tools.TimeseriesResult
	if err := tools.DecodeResult(rec.Result, &actual); err != nil {
		res.Scores = &types.EvalScores{}
		res.Notes = append(res.Notes, "timeseries result could not be decoded")
		return res
	}

	if len(actual.Series) == 0 {
		res.Scores = scores(0, 0, 0.2)
		res.Notes = append(res.Notes, "timeseries returned no series")
		return res
	}

	relevance := 0.4
	if argsMatchSpec(rec.Args, spec.Metric, spec.StartDate, spec.EndDate) {
		relevance = 1
	} else {
		res.Notes = append(res.Notes, fmt.Sprintf("call args differ from expected %s %s..%s",
			spec.Metric, spec.StartDate, spec.EndDate))
	}

	requested := len(argStrings(rec.Args, "productIds"))
	withData := 0
	points, inRange := 0, 0
	for _, s := range actual.Series {
		if len(s.Points) > 0 {
			withData++
		}
		for _, p := range s.Points {
			points++
			if p.Date >= spec.StartDate && p.Date <= spec.EndDate {
				inRange++
			}
		}
	}

	completeness := 0.5
	if requested > 0 {
		completeness = math.Min(1, float64(withData)/float64(requested))
	} else {
		res.Notes = append(res.Notes, "requested product count unknown")
	}
	if withData < len(actual.Series) {
		res.Notes = append(res.Notes, fmt.Sprintf("%d series came back empty", len(actual.Series)-withData))
	}

	correctness := 0.0
	if points > 0 {
		correctness = float64(inRange) / float64(points)
	} else {
		res.Notes = append(res.Notes, "no data points returned")
	}
	if inRange < points {
		res.Notes = append(res.Notes, fmt.Sprintf("%d of %d points fall outside %s..%s",
			points-inRange, points, spec.StartDate, spec.EndDate))
	}

	res.Scores = scores(correctness, completeness, relevance)
	return res
}

func (e *Evaluator) scoreWhyDropWoW(ctx context.Context, spec *types.EvalSpec, calls []types.ToolCallRecord) (*types.EvalResult, error) {
	res := &types.EvalResult{Spec: spec}

	type weekPair struct {
		this, last *types.ToolCallRecord
	}
	pairs := map[string]*weekPair{}
	var metricOrder []string
	hasTimeseries, hasChanges := false, false

	for i := range calls {
		rec := &calls[i]
		switch rec.Tool {
		case "top_products":
			m, _ := rec.Args["metric"].(string)
			start, _ := rec.Args["startDate"].(string)
			end, _ := rec.Args["endDate"].(string)
			p := pairs[m]
			if p == nil {
				p = &weekPair{}
				pairs[m] = p
				metricOrder = append(metricOrder, m)
			}
			if start == spec.ThisWeek.StartDate && end == spec.ThisWeek.EndDate {
				p.this = rec
			}
			if start == spec.LastWeek.StartDate && end == spec.LastWeek.EndDate {
				p.last = rec
			}
		case "timeseries":
			hasTimeseries = true
		case "compute_changes":
			hasChanges = true
		}
	}

	// Pick the metric pair to grade: sales when complete, else the first
	// complete pair in call order.
	var pair *weekPair
	pairMetric := ""
	if p := pairs["sales"]; p != nil && p.this != nil && p.last != nil {
		pair, pairMetric = p, "sales"
	} else {
		for _, m := range metricOrder {
			if p := pairs[m]; p.this != nil && p.last != nil {
				pair, pairMetric = p, m
				break
			}
		}
	}
	strong := pair != nil
	drilldown := hasTimeseries && hasChanges

	relevance := 0.5
	if strong || drilldown {
		relevance = 1
	} else {
		res.Notes = append(res.Notes, "plan neither compares weekly top products nor drills down with timeseries and compute_changes")
	}

	var completeness float64
	switch {
	case drilldown:
		completeness = 0.9
	case strong:
		completeness = 0.8
	case hasTimeseries:
		completeness = 0.5
		res.Notes = append(res.Notes, "timeseries present but no compute_changes step")
	case hasChanges:
		completeness = 0.3
		res.Notes = append(res.Notes, "compute_changes present but no timeseries step")
	default:
		completeness = 0.2
	}

	correctness := 0.2
	if strong {
		matches, comparable := 0, 0
		for _, rec := range []*types.ToolCallRecord{pair.this, pair.last} {
			var got tools.TopProductsResult
			if err := tools.DecodeResult(rec.Result, &got); err != nil || len(got.Rows) == 0 {
				res.Notes = append(res.Notes, fmt.Sprintf("weekly %s call returned no rows", pairMetric))
				continue
			}
			start, _ := rec.Args["startDate"].(string)
			end, _ := rec.Args["endDate"].(string)
			truth, err := e.topProducts(ctx, pairMetric, start, end, 1)
			if err != nil {
				return nil, fmt.Errorf("ground truth weekly leader: %w", err)
			}
			if len(truth) == 0 {
				continue
			}
			comparable++
			if got.Rows[0].ProductID == truth[0].ProductID {
				matches++
			} else {
				res.Notes = append(res.Notes, fmt.Sprintf("leader for %s %s..%s differs from ground truth", pairMetric, start, end))
			}
		}
		if comparable > 0 {
			correctness = float64(matches) / float64(comparable)
		}
	} else if drilldown {
		correctness = 0.6
	}

	res.Scores = scores(correctness, completeness, relevance)
	return res, nil
}

// topProducts replays a canonical ranking query through the registry.
func (e *Evaluator) topProducts(ctx context.Context, metric, startDate, endDate string, limit int) ([]dataset.TopRow, error) {
	out, err := e.registry.Execute(ctx, "top_products", map[string]any{
		"metric":    metric,
		"startDate": startDate,
		"endDate":   endDate,
		"limit":     limit,
	})
	if err != nil {
		return nil, err
	}
	var res tools.TopProductsResult
	if err := tools.DecodeResult(out, &res); err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scores(correctness, completeness, relevance float64) *types.EvalScores {
	return &types.EvalScores{
		Correctness:  correctness,
		Completeness: completeness,
		Relevance:    relevance,
		Quality:      (correctness + completeness + relevance) / 3,
	}
}

// nearlyEqual compares with a relative tolerance against the larger
// magnitude, floored at 1 so tiny values do not explode the ratio.
func nearlyEqual(a, b, tol float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol*scale
}

func argsMatchSpec(args map[string]any, metric, startDate, endDate string) bool {
	m, _ := args["metric"].(string)
	s, _ := args["startDate"].(string)
	e, _ := args["endDate"].(string)
	return m == metric && s == startDate && e == endDate
}

func argStrings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstCall(calls []types.ToolCallRecord, tool string) *types.ToolCallRecord {
	for i := range calls {
		if calls[i].Tool == tool {
			return &calls[i]
		}
	}
	return nil
}

func detectMetric(q string) string {
	switch {
	case strings.Contains(q, "traffic") || strings.Contains(q, "session"):
		return "sessions"
	case strings.Contains(q, "unit"):
		return "units"
	case strings.Contains(q, "conversion"):
		return "conversion_rate"
	}
	return "sales"
}

// detectLimit reads "top N" with a default of 10 and a cap of 100.
func detectLimit(q string) int {
	m := topNRe.FindStringSubmatch(q)
	if m == nil {
		return 10
	}
	n := 0
	fmt.Sscanf(m[1], "%d", &n)
	if n <= 0 {
		return 10
	}
	if n > 100 {
		return 100
	}
	return n
}

// calendarPhraseRange resolves the calendar phrases the ground-truth
// templates recognize. Order matters when a query names several.
func calendarPhraseRange(q string, tc clock.TimeContext) (types.DateRange, bool) {
	switch {
	case strings.Contains(q, "last month"):
		return types.DateRange{StartDate: tc.LastMonthStart, EndDate: tc.LastMonthEnd}, true
	case strings.Contains(q, "this month"):
		return types.DateRange{StartDate: tc.ThisMonthStart, EndDate: tc.ThisMonthEnd}, true
	case strings.Contains(q, "last week"):
		return types.DateRange{StartDate: tc.LastWeekStart, EndDate: tc.LastWeekEnd}, true
	}
	return types.DateRange{}, false
}
