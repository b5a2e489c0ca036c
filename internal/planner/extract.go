package planner

import "strings"

// extractJSONCandidates returns every balanced top-level {...} object in
// text, in order of appearance. Brace counting is string-aware inside an
// object: single- and double-quoted spans are skipped, honoring backslash
// escapes, so braces inside string values never unbalance the scan.
// Quotes in prose outside any object are ignored.
func extractJSONCandidates(text string) []string {
	var out []string
	depth := 0
	start := -1
	var quote byte
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			if depth > 0 {
				quote = c
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, text[start:i+1])
				start = -1
			}
		}
	}
	return out
}

// stripTrailingCommas removes commas that directly precede a closing
// brace or bracket, modulo whitespace. Commas inside quoted strings are
// left alone. Models emit these near-misses constantly and
// encoding/json rejects them.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
			b.WriteByte(c)
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
