// Package signature fingerprints tool invocations for cache keying. Two
// calls with JSON-equivalent args must produce the same signature
// regardless of map ordering.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StableJSON returns the canonical JSON encoding of v: object keys sorted
// recursively, array order preserved, numbers in their shortest JSON form.
func StableJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for canonicalization: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode for canonicalization: %w", err)
	}
	var b strings.Builder
	writeCanonical(&b, decoded)
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v any) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			writeCanonical(b, x[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	default:
		// Scalars: let encoding/json handle escaping and number forms.
		raw, _ := json.Marshal(x)
		b.Write(raw)
	}
}

// Compute returns the signature id for a tool invocation:
// "<tool>:" + hex(sha256(namespace + "::" + tool + stableJSON(args))).
// The namespace prefix is omitted entirely when namespace is empty.
func Compute(namespace, tool string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	canonical, err := StableJSON(args)
	if err != nil {
		return "", err
	}

	var payload strings.Builder
	if namespace != "" {
		payload.WriteString(namespace)
		payload.WriteString("::")
	}
	payload.WriteString(tool)
	payload.WriteString(canonical)

	sum := sha256.Sum256([]byte(payload.String()))
	return tool + ":" + hex.EncodeToString(sum[:]), nil
}
