// Package manager is the front door of the pipeline: it rejects
// out-of-domain queries and routes the rest to a worker agent. Routing
// is keyword-driven; the LLM is only consulted when the heuristic is
// not confident, which with the current rules never happens.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

var (
	analyticsVocab = []string{
		"sales", "revenue", "units", "sessions", "traffic", "conversion",
		"benchmark", "month", "week", "yoy", "mom", "wow",
	}
	blacklist       = []string{"weather", "recipe", "love", "movie", "music", "politics", "medical"}
	insightKeywords = []string{"why", "perform", "benchmark", "recommend", "improve", "diagnostic", "compare", "insight"}

	topNRe = regexp.MustCompile(`\btop\s+\d+\b`)
)

// Manager decides whether a query is in scope and which worker takes it.
type Manager struct {
	client llm.Client
}

// New creates a Manager. The client may be nil; routing then relies on
// the heuristic alone.
func New(client llm.Client) *Manager {
	return &Manager{client: client}
}

// Route classifies the query. Memory cards ride along for the LLM
// consultation path and are ignored by the heuristic.
func (m *Manager) Route(ctx context.Context, query string, cards []types.MemoryCard) types.RouteDecision {
	decision, confident := heuristicRoute(query)
	if confident || m.client == nil {
		logging.ManagerDebug("heuristic route: ood=%v route=%s (%s)", decision.OOD, decision.Route, decision.Reason)
		return decision
	}

	if consulted, err := m.consult(ctx, query, cards); err == nil {
		return *consulted
	} else {
		logging.Manager("llm consult failed, keeping heuristic route: %v", err)
	}
	return decision
}

// heuristicRoute applies the keyword rules. The second return is the
// confidence hook: it is always true today, and the LLM consult only
// activates once some rule starts reporting false.
func heuristicRoute(query string) (types.RouteDecision, bool) {
	q := strings.ToLower(query)

	for _, w := range blacklist {
		if strings.Contains(q, w) {
			return types.RouteDecision{OOD: true, Reason: fmt.Sprintf("off-topic term %q", w)}, true
		}
	}
	if !hasAnalyticsVocab(q) {
		return types.RouteDecision{OOD: true, Reason: "no analytics vocabulary"}, true
	}

	for _, w := range insightKeywords {
		if strings.Contains(q, w) {
			return types.RouteDecision{
				Route:  types.RouteInsightGenerator,
				Reason: fmt.Sprintf("insight keyword %q", w),
			}, true
		}
	}
	return types.RouteDecision{Route: types.RouteDataPresenter, Reason: "data lookup"}, true
}

func hasAnalyticsVocab(q string) bool {
	for _, w := range analyticsVocab {
		if strings.Contains(q, w) {
			return true
		}
	}
	return topNRe.MatchString(q)
}

// consult asks the LLM for a routing decision. Any transport or parse
// problem is an error; the caller falls back to the heuristic.
func (m *Manager) consult(ctx context.Context, query string, cards []types.MemoryCard) (*types.RouteDecision, error) {
	var sb strings.Builder
	sb.WriteString("You route seller analytics questions. Reply with one JSON object only:\n")
	sb.WriteString(`{"ood": false, "route": "data_presenter|insight_generator", "reason": "..."}` + "\n")
	sb.WriteString("Set ood true when the question is not about seller analytics.\n")
	if len(cards) > 0 {
		sb.WriteString("\nRelevant memory from earlier runs:\n")
		for _, card := range cards {
			sb.WriteString(card.Text)
			sb.WriteString("\n")
		}
	}

	resp, err := m.client.Complete(ctx, llm.CompletionRequest{
		Instructions:    sb.String(),
		Messages:        []llm.Message{{Role: llm.RoleUser, Content: query}},
		Temperature:     0,
		MaxOutputTokens: 256,
	})
	if err != nil {
		return nil, err
	}

	raw := firstJSONObject(resp.Text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var decision types.RouteDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("parse routing reply: %w", err)
	}
	if !decision.OOD && decision.Route != types.RouteDataPresenter && decision.Route != types.RouteInsightGenerator {
		return nil, fmt.Errorf("unknown route %q", decision.Route)
	}
	return &decision, nil
}

// firstJSONObject returns the first balanced {...} span in s, or "".
func firstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
