package types

// =============================================================================
// MEMORY SCOPES AND KINDS
// =============================================================================

// ScopeGlobal is the shared scope visible to every user. Seed rules and
// default conventions live here.
const ScopeGlobal = "global"

// UserScope returns the per-user memory scope for id.
func UserScope(userID string) string {
	return "user:" + userID
}

// MemoryKind tags the intent of a memory item.
type MemoryKind string

const (
	KindToolTemplate   MemoryKind = "tool_template"   // literal tool args that produced a good run
	KindQueryPattern   MemoryKind = "query_pattern"   // canonicalized query with a known outcome
	KindDomainRule     MemoryKind = "domain_rule"     // stable business convention
	KindInsightPattern MemoryKind = "insight_pattern" // reusable narrative structure
	KindFailureCase    MemoryKind = "failure_case"    // low-quality run worth steering away from
	KindUserPreference MemoryKind = "user_preference" // per-user stated preference
)

// AllMemoryKinds lists every recognized kind.
var AllMemoryKinds = []MemoryKind{
	KindToolTemplate,
	KindQueryPattern,
	KindDomainRule,
	KindInsightPattern,
	KindFailureCase,
	KindUserPreference,
}

// Valid reports whether k is a recognized memory kind.
func (k MemoryKind) Valid() bool {
	for _, known := range AllMemoryKinds {
		if k == known {
			return true
		}
	}
	return false
}

// =============================================================================
// MEMORY ITEMS
// =============================================================================

// MemoryItem is a stored memory row. Timestamps are ISO-8601 UTC strings;
// LastUsedAt and ExpiresAt are empty when unset.
type MemoryItem struct {
	ID         string         `json:"id"`
	Scope      string         `json:"scope"`
	Kind       MemoryKind     `json:"kind"`
	Text       string         `json:"text"`
	Meta       map[string]any `json:"meta,omitempty"`
	DedupeKey  string         `json:"dedupeKey"`
	CreatedAt  string         `json:"createdAt"`
	LastUsedAt string         `json:"lastUsedAt,omitempty"`
	UseCount   int64          `json:"useCount"`
	Importance float64        `json:"importance"`
	Quality    float64        `json:"quality"`
	ExpiresAt  string         `json:"expiresAt,omitempty"`
}

// MemoryUpsert is the input to the store's memory upsert. DedupeKey is
// computed from (kind, text) when left empty. Text is PII-redacted before
// it reaches disk.
type MemoryUpsert struct {
	Scope      string
	Kind       MemoryKind
	Text       string
	Meta       map[string]any
	DedupeKey  string
	Importance float64
	Quality    float64
	ExpiresAt  string
}

// MemoryHit is one full-text search result. BM25 is the engine's raw rank
// (lower is better); FTSRank is the normalized 1/(1+bm25) in (0,1].
type MemoryHit struct {
	Item    MemoryItem
	BM25    float64
	FTSRank float64
}

// MemoryCard is a bounded, human-readable rendering of a memory item plus
// its ranking signals, ready for prompt injection.
type MemoryCard struct {
	ItemID string     `json:"itemId"`
	Kind   MemoryKind `json:"kind"`
	Scope  string     `json:"scope"`
	Text   string     `json:"text"`
	Score  float64    `json:"score"`
}

// MemoryStat is one row of the per-(scope, kind) item census.
type MemoryStat struct {
	Scope string `json:"scope"`
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}
