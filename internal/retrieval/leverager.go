// Package retrieval is the memory read path: it turns a user query into
// an FTS search, blends full-text rank with recency, importance and past
// use, and renders the winners as bounded memory cards for prompt
// injection.
package retrieval

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"datanerd/internal/clock"
	"datanerd/internal/logging"
	"datanerd/internal/store"
	"datanerd/internal/types"
)

// Stage names the pipeline position asking for memory. Each stage sees a
// different slice of the memory kinds.
type Stage string

const (
	StageManagerRoute    Stage = "manager_route"
	StageWorkflowPlan    Stage = "workflow_plan"
	StageInsightGenerate Stage = "insight_generate"
)

var stageKinds = map[Stage][]types.MemoryKind{
	StageManagerRoute: {
		types.KindDomainRule, types.KindQueryPattern, types.KindUserPreference,
	},
	StageWorkflowPlan: {
		types.KindToolTemplate, types.KindQueryPattern, types.KindDomainRule,
		types.KindFailureCase, types.KindUserPreference,
	},
	StageInsightGenerate: {
		types.KindInsightPattern, types.KindUserPreference, types.KindDomainRule,
		types.KindFailureCase, types.KindQueryPattern,
	},
}

// Hybrid ranking weights. FTS rank dominates; recency, importance and a
// dampened use count break ties.
const (
	weightFTS        = 0.55
	weightRecency    = 0.25
	weightImportance = 0.15
	weightUseCount   = 0.05
)

// recencyWindow is both the decay constant and the assumed age of items
// that were never used.
const recencyWindow = 14 * 24 * time.Hour

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "show": true,
	"what": true, "were": true, "last": true, "this": true, "that": true,
	"those": true, "month": true, "week": true, "products": true,
	"product": true, "top": true,
}

var phraseHints = []string{"last month", "last week", "top products"}

var tokenRe = regexp.MustCompile(`[a-z0-9_]+`)

// Store is the slice of the state store the leverager needs.
type Store interface {
	SearchMemory(q store.SearchQuery) ([]types.MemoryHit, error)
	MarkMemoryUsed(ids []string, nowISO string) error
}

// Config bounds retrieval output.
type Config struct {
	K            int // cards kept after ranking
	MaxCardChars int // per-card character budget
	SearchLimit  int // rows fetched from the store before ranking
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{K: 6, MaxCardChars: 600, SearchLimit: 30}
}

// Leverager retrieves and ranks memory for one pipeline stage.
type Leverager struct {
	store Store
	cfg   Config
}

// New creates a leverager with default configuration.
func New(st Store) *Leverager {
	return NewWithConfig(st, DefaultConfig())
}

// NewWithConfig creates a leverager with custom bounds. Zero-value
// fields fall back to defaults.
func NewWithConfig(st Store, cfg Config) *Leverager {
	defaults := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = defaults.K
	}
	if cfg.MaxCardChars <= 0 {
		cfg.MaxCardChars = defaults.MaxCardChars
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaults.SearchLimit
	}
	return &Leverager{store: st, cfg: cfg}
}

// BuildQuery turns free text into an FTS OR-query: quoted phrase hints
// first, then up to 12 unique informative tokens. Falls back to the
// cleaned text when nothing survives filtering.
func BuildQuery(input string) string {
	cleaned := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	if cleaned == "" {
		return ""
	}

	var parts []string
	for _, hint := range phraseHints {
		if strings.Contains(cleaned, hint) {
			parts = append(parts, `"`+hint+`"`)
		}
	}

	seen := make(map[string]bool)
	tokens := 0
	for _, tok := range tokenRe.FindAllString(cleaned, -1) {
		if len(tok) < 3 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		parts = append(parts, tok)
		tokens++
		if tokens == 12 {
			break
		}
	}

	if len(parts) == 0 {
		return cleaned
	}
	return strings.Join(parts, " OR ")
}

// Retrieve returns at most cfg.K memory cards for the stage, strongest
// first. Retrieved items are marked used before the cards are returned,
// so use counts record intent-to-use.
func (l *Leverager) Retrieve(stage Stage, query, userID, nowISO string) ([]types.MemoryCard, error) {
	kinds, ok := stageKinds[stage]
	if !ok {
		return nil, fmt.Errorf("unknown retrieval stage %q", stage)
	}

	ftsQuery := BuildQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	hits, err := l.store.SearchMemory(store.SearchQuery{
		Query:  ftsQuery,
		Scopes: []string{types.ScopeGlobal, types.UserScope(userID)},
		Kinds:  kinds,
		Limit:  l.cfg.SearchLimit,
		NowISO: nowISO,
	})
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}
	if len(hits) == 0 {
		logging.RetrievalDebug("stage=%s no memory matched %q", stage, ftsQuery)
		return nil, nil
	}

	now := time.Now().UTC()
	if t, err := clock.ParseISO(nowISO); err == nil {
		now = t
	}

	type ranked struct {
		hit   types.MemoryHit
		score float64
	}
	scored := make([]ranked, 0, len(hits))
	for _, h := range hits {
		scored = append(scored, ranked{hit: h, score: Score(h, now)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > l.cfg.K {
		scored = scored[:l.cfg.K]
	}

	ids := make([]string, len(scored))
	for i, r := range scored {
		ids[i] = r.hit.Item.ID
	}
	if err := l.store.MarkMemoryUsed(ids, nowISO); err != nil {
		return nil, fmt.Errorf("failed to mark memory used: %w", err)
	}

	cards := make([]types.MemoryCard, len(scored))
	for i, r := range scored {
		cards[i] = types.MemoryCard{
			ItemID: r.hit.Item.ID,
			Kind:   r.hit.Item.Kind,
			Scope:  r.hit.Item.Scope,
			Text:   l.renderCard(r.hit.Item),
			Score:  r.score,
		}
	}

	logging.Retrieval("stage=%s injected %d card(s) for %q", stage, len(cards), ftsQuery)
	return cards, nil
}

// Score blends full-text rank, recency, importance and dampened use
// count into one value. Items never used decay as if they were a full
// window old.
func Score(h types.MemoryHit, now time.Time) float64 {
	age := recencyWindow
	if h.Item.LastUsedAt != "" {
		if t, err := clock.ParseISO(h.Item.LastUsedAt); err == nil {
			age = now.Sub(t)
			if age < 0 {
				age = 0
			}
		}
	}
	recency := math.Exp(-float64(age) / float64(recencyWindow))

	return weightFTS*h.FTSRank +
		weightRecency*recency +
		weightImportance*h.Item.Importance +
		weightUseCount*math.Log1p(float64(h.Item.UseCount))
}

// renderCard produces the three-line card layout:
//
//	MEMORY CARD [<kind>] (<scope>)
//	<body>
//	Signals: q=… imp=… used=… last=…
//
// The body is trimmed so the whole card stays within the budget.
func (l *Leverager) renderCard(item types.MemoryItem) string {
	header := fmt.Sprintf("MEMORY CARD [%s] (%s)", item.Kind, item.Scope)

	last := "never"
	if item.LastUsedAt != "" {
		last = clock.DatePart(item.LastUsedAt)
	}
	signals := fmt.Sprintf("Signals: q=%.2f imp=%.2f used=%d last=%s",
		item.Quality, item.Importance, item.UseCount, last)

	body := strings.Join(strings.Fields(item.Text), " ")
	budget := l.cfg.MaxCardChars - len(header) - len(signals) - 2
	if budget < 1 {
		budget = 1
	}
	if len(body) > budget {
		cut := budget - 1
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "…"
	}

	return header + "\n" + body + "\n" + signals
}
