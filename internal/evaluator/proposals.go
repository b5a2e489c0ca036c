package evaluator

import (
	"fmt"
	"regexp"
	"strings"

	"datanerd/internal/logging"
	"datanerd/internal/signature"
	"datanerd/internal/types"
)

// Quality thresholds for the write policy.
const (
	goodQuality = 0.8
	poorQuality = 0.5
)

var (
	isoDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	numberRe  = regexp.MustCompile(`\d+`)
	wsRe      = regexp.MustCompile(`\s+`)
)

// CanonicalizeQuery folds a query into a stable retrieval pattern:
// lowercase, ISO dates become <date>, remaining numbers become <n>,
// whitespace collapsed. Dates go first so they do not decay into three
// unrelated numbers.
func CanonicalizeQuery(q string) string {
	s := strings.ToLower(strings.TrimSpace(q))
	s = isoDateRe.ReplaceAllString(s, "<date>")
	s = numberRe.ReplaceAllString(s, "<n>")
	return wsRe.ReplaceAllString(s, " ")
}

// Proposals converts a scored run into memory write candidates, scoped to
// the user. The caller owns the decision to persist them.
func Proposals(userID, query string, result *types.EvalResult, plan *types.Plan, toolCalls []types.ToolCallRecord) []types.MemoryUpsert {
	if result == nil || result.Scores == nil {
		return nil
	}
	scope := types.UserScope(userID)
	canonical := CanonicalizeQuery(query)
	quality := result.Scores.Quality

	switch {
	case quality >= goodQuality:
		out := []types.MemoryUpsert{{
			Scope:      scope,
			Kind:       types.KindQueryPattern,
			Text:       fmt.Sprintf("Query pattern %q is answered well by: %s.", canonical, strings.Join(distinctTools(toolCalls), ", ")),
			Importance: 0.35,
			Quality:    quality,
		}}
		if rec := firstCall(toolCalls, "top_products"); rec != nil {
			argsJSON, err := signature.StableJSON(rec.Args)
			if err != nil {
				logging.EvaluatorWarn("tool template args not serializable: %v", err)
			} else {
				out = append(out, types.MemoryUpsert{
					Scope:      scope,
					Kind:       types.KindToolTemplate,
					Text:       fmt.Sprintf("Proven call for %q: top_products %s", canonical, argsJSON),
					Meta:       map[string]any{"tool": "top_products", "args": rec.Args},
					Importance: 0.45,
					Quality:    quality,
				})
			}
		}
		return out

	case quality <= poorQuality:
		notes := strings.Join(result.Notes, "; ")
		if notes == "" {
			notes = "no diagnostic notes"
		}
		return []types.MemoryUpsert{{
			Scope:      scope,
			Kind:       types.KindFailureCase,
			Text:       fmt.Sprintf("Low-quality run for %q: %s", canonical, notes),
			Meta:       map[string]any{"plan": plan, "toolCalls": toolCalls},
			Importance: 0.4,
			Quality:    quality,
		}}

	default:
		return []types.MemoryUpsert{{
			Scope:      scope,
			Kind:       types.KindQueryPattern,
			Text:       fmt.Sprintf("Query pattern %q produced a middling answer; review the plan before reusing it.", canonical),
			Importance: 0.2,
			Quality:    quality,
		}}
	}
}

// distinctTools lists tool names in first-use order.
func distinctTools(calls []types.ToolCallRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range calls {
		if !seen[c.Tool] {
			seen[c.Tool] = true
			out = append(out, c.Tool)
		}
	}
	return out
}
