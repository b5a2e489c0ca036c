package tools

import (
	"regexp"
	"strconv"
	"strings"
)

// Planners (LLM and human alike) reach for these spellings constantly, so
// the registry accepts them and rewrites to the canonical form before
// validation.
var keyAliases = map[string]string{
	"start_date":  "startDate",
	"end_date":    "endDate",
	"product_ids": "productIds",
	"n":           "limit",
	"topN":        "limit",
	"top_n":       "limit",
}

var metricSynonyms = map[string]string{
	"revenue":    "sales",
	"gmv":        "sales",
	"traffic":    "sessions",
	"visits":     "sessions",
	"visit":      "sessions",
	"conversion": "conversion_rate",
	"cvr":        "conversion_rate",
}

var isoDatePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Coerce rewrites args into canonical form: snake_case key aliases,
// metric synonyms, grain "daily" to "day", ISO timestamps trimmed to
// their date prefix, and numeric strings for limit. The input map is not
// modified.
func Coerce(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))

	for k, v := range args {
		canonical, ok := keyAliases[k]
		if !ok {
			canonical = k
		}
		// An explicit canonical key wins over an alias of the same name.
		if _, exists := out[canonical]; exists && canonical != k {
			continue
		}
		out[canonical] = v
	}

	if m, ok := out["metric"].(string); ok {
		lower := strings.ToLower(strings.TrimSpace(m))
		if syn, ok := metricSynonyms[lower]; ok {
			lower = syn
		}
		out["metric"] = lower
	}

	if g, ok := out["grain"].(string); ok && strings.EqualFold(g, "daily") {
		out["grain"] = "day"
	}

	for _, key := range []string{"startDate", "endDate"} {
		if s, ok := out[key].(string); ok {
			if isoDatePrefixRe.MatchString(s) && len(s) > 10 {
				out[key] = s[:10]
			}
		}
	}

	if s, ok := out["limit"].(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			out["limit"] = n
		}
	}

	return out
}
