package agents

import (
	"context"
	"fmt"
	"strings"

	"datanerd/internal/dataset"
	"datanerd/internal/executor"
	"datanerd/internal/logging"
	"datanerd/internal/planner"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

// maxSelectedProducts bounds how many product ids a top_products result
// pins into the session.
const maxSelectedProducts = 20

// Presenter answers data questions with deterministic renderings of the
// tool results, no LLM involved past the planning call.
type Presenter struct {
	planner  *planner.Planner
	executor *executor.Executor
}

// NewPresenter creates the data presenter agent.
func NewPresenter(pl *planner.Planner, ex *executor.Executor) *Presenter {
	return &Presenter{planner: pl, executor: ex}
}

// Handle plans, executes and renders. When a top_products result is
// present the session's selected products are replaced with its leading
// product ids.
func (a *Presenter) Handle(ctx context.Context, in Input) (*Output, error) {
	out, err := planAndExecute(ctx, a.planner, a.executor, types.RouteDataPresenter, in)
	if err != nil {
		return nil, err
	}

	// Rendering priority: ranked products, then timeseries, then the
	// plain catalog listing.
	if raw, ok := out.Results["top_products"]; ok {
		var res tools.TopProductsResult
		if err := tools.DecodeResult(raw, &res); err == nil {
			start, end := rangeFor(out, "top_products")
			out.Response = renderTopProducts(&res, start, end)
			out.Session.SelectedProductIDs = selectProducts(res.Rows)
			return out, nil
		}
		logging.AgentsWarn("undecodable top_products result, falling through")
	}

	if raw, ok := out.Results["timeseries"]; ok {
		var res tools.TimeseriesResult
		if err := tools.DecodeResult(raw, &res); err == nil {
			start, end := rangeFor(out, "timeseries")
			out.Response = renderTimeseries(&res, start, end)
			return out, nil
		}
		logging.AgentsWarn("undecodable timeseries result, falling through")
	}

	if raw, ok := out.Results["list_products"]; ok {
		var res tools.ListProductsResult
		if err := tools.DecodeResult(raw, &res); err == nil {
			out.Response = renderProducts(&res)
			return out, nil
		}
	}

	out.Response = "No results."
	return out, nil
}

// rangeFor finds the date range of the last call to tool, falling back
// to the plan's overall range.
func rangeFor(out *Output, tool string) (string, string) {
	for i := len(out.ToolCalls) - 1; i >= 0; i-- {
		rec := out.ToolCalls[i]
		if rec.Tool != tool {
			continue
		}
		start, _ := rec.Args["startDate"].(string)
		end, _ := rec.Args["endDate"].(string)
		if start != "" || end != "" {
			return start, end
		}
	}
	if out.Plan != nil && out.Plan.TimeRange != nil {
		return out.Plan.TimeRange.StartDate, out.Plan.TimeRange.EndDate
	}
	return "", ""
}

func rangeSuffix(start, end string) string {
	if start == "" && end == "" {
		return ""
	}
	return fmt.Sprintf(" (%s to %s)", start, end)
}

func renderTopProducts(res *tools.TopProductsResult, start, end string) string {
	metric := "sales"
	if len(res.Rows) > 0 && res.Rows[0].Metric != "" {
		metric = res.Rows[0].Metric
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Top products by %s%s:\n", metric, rangeSuffix(start, end)))
	if len(res.Rows) == 0 {
		sb.WriteString("No data returned.")
		return sb.String()
	}
	for i, row := range res.Rows {
		sb.WriteString(fmt.Sprintf("%2d. %s (%s): %.2f\n", i+1, row.ProductName, row.ProductID, row.MetricValue))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderTimeseries(res *tools.TimeseriesResult, start, end string) string {
	metric := ""
	if len(res.Series) > 0 {
		metric = res.Series[0].Metric
	}
	if metric == "" {
		metric = "metric"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s by day%s:\n", metric, rangeSuffix(start, end)))
	if len(res.Series) == 0 {
		sb.WriteString("No data returned.")
		return sb.String()
	}
	for _, s := range res.Series {
		if len(s.Points) == 0 {
			sb.WriteString(fmt.Sprintf("- %s: no data points\n", s.ProductID))
			continue
		}
		last := s.Points[len(s.Points)-1]
		sb.WriteString(fmt.Sprintf("- %s: %d points, last %s = %.2f\n", s.ProductID, len(s.Points), last.Date, last.Value))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderProducts(res *tools.ListProductsResult) string {
	if len(res.Products) == 0 {
		return "No products found."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Products (%d):\n", len(res.Products)))
	for _, p := range res.Products {
		sb.WriteString(fmt.Sprintf("- %s: %s [%s]\n", p.ID, p.Name, p.Category))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func selectProducts(rows []dataset.TopRow) []string {
	ids := make([]string, 0, min(len(rows), maxSelectedProducts))
	for _, row := range rows {
		if len(ids) == maxSelectedProducts {
			break
		}
		ids = append(ids, row.ProductID)
	}
	return ids
}
