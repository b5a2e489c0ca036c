package planner

import (
	"regexp"
	"strconv"
	"strings"

	"datanerd/internal/clock"
	"datanerd/internal/types"
)

var (
	topNRe        = regexp.MustCompile(`\btop\s+(\d+)\b`)
	whyDropWoWRe  = regexp.MustCompile(`why.*drop.*wow`)
	topProductsRe = regexp.MustCompile(`\btop\b.*\bproducts?\b`)
)

// maxTopLimit mirrors the top_products schema ceiling so heuristic plans
// always pass arg validation.
const maxTopLimit = 100

// heuristicPlan builds a deterministic plan from query keywords. It is
// the terminal fallback and must always produce an executable plan.
func (p *Planner) heuristicPlan(in Input) *types.Plan {
	q := strings.ToLower(in.Query)
	tc := in.TimeContext
	metric := detectMetric(q)
	limit := detectLimit(q)
	dr := detectRange(q, tc)

	switch {
	case strings.Contains(q, "those products") && len(in.Session.SelectedProductIDs) > 0:
		ids := make([]string, len(in.Session.SelectedProductIDs))
		copy(ids, in.Session.SelectedProductIDs)
		return &types.Plan{
			Route:     in.Route,
			TimeRange: &dr,
			Steps: []types.PlanStep{{
				Tool: "timeseries",
				Args: map[string]any{
					"metric":     metric,
					"productIds": ids,
					"startDate":  dr.StartDate,
					"endDate":    dr.EndDate,
				},
			}},
			Notes: "timeseries over products selected earlier in the session",
		}

	case whyDropWoWRe.MatchString(q):
		thisWeek := types.DateRange{StartDate: tc.ThisWeekStart, EndDate: tc.ThisWeekEnd}
		lastWeek := types.DateRange{StartDate: tc.LastWeekStart, EndDate: tc.LastWeekEnd}
		var steps []types.PlanStep
		for _, m := range []string{"sales", "sessions", "units"} {
			for _, week := range []types.DateRange{thisWeek, lastWeek} {
				steps = append(steps, types.PlanStep{
					Tool: "top_products",
					Args: map[string]any{
						"metric":    m,
						"startDate": week.StartDate,
						"endDate":   week.EndDate,
						"limit":     50,
					},
				})
			}
		}
		return &types.Plan{
			Route:     in.Route,
			TimeRange: &thisWeek,
			Steps:     steps,
			Notes:     "week-over-week top product comparison",
		}

	case topProductsRe.MatchString(q):
		args := map[string]any{
			"metric":    metric,
			"startDate": dr.StartDate,
			"endDate":   dr.EndDate,
		}
		if limit > 0 {
			args["limit"] = limit
		}
		return &types.Plan{
			Route:     in.Route,
			TimeRange: &dr,
			Steps:     []types.PlanStep{{Tool: "top_products", Args: args}},
			Notes:     "top products by " + metric,
		}
	}

	return &types.Plan{
		Route:     in.Route,
		TimeRange: &dr,
		Steps:     []types.PlanStep{{Tool: "list_products", Args: map[string]any{"limit": 20}}},
		Notes:     "product listing",
	}
}

// detectMetric maps query keywords onto a canonical metric, defaulting
// to sales.
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

// detectLimit pulls N out of a "top N" phrase. Zero means the query
// named no limit.
func detectLimit(q string) int {
	m := topNRe.FindStringSubmatch(q)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}
	if n > maxTopLimit {
		return maxTopLimit
	}
	return n
}

// detectRange maps calendar phrases onto the precomputed boundaries.
// Default is last month.
func detectRange(q string, tc clock.TimeContext) types.DateRange {
	switch {
	case strings.Contains(q, "this week"):
		return types.DateRange{StartDate: tc.ThisWeekStart, EndDate: tc.ThisWeekEnd}
	case strings.Contains(q, "last week"):
		return types.DateRange{StartDate: tc.LastWeekStart, EndDate: tc.LastWeekEnd}
	case strings.Contains(q, "this month"):
		return types.DateRange{StartDate: tc.ThisMonthStart, EndDate: tc.ThisMonthEnd}
	}
	return types.DateRange{StartDate: tc.LastMonthStart, EndDate: tc.LastMonthEnd}
}
