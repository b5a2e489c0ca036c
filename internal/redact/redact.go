// Package redact strips PII from text before it is stored or returned.
package redact

import "regexp"

// Replacement tokens. These appear verbatim in stored memory text and in
// responses, so downstream consumers can grep for them.
const (
	EmailToken = "[REDACTED_EMAIL]"
	PhoneToken = "[REDACTED_PHONE]"
	CardToken  = "[REDACTED_CARD]"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// Card numbers before phones: a 16-digit run would otherwise lose its
	// first ten digits to the phone pattern.
	cardRe        = regexp.MustCompile(`\b\d{13,19}\b`)
	groupedCardRe = regexp.MustCompile(`\b\d{4}[ -]\d{4}[ -]\d{4}[ -]\d{4}(?:[ -]\d{1,3})?\b`)

	// No \b before \( since "(" never forms a word boundary after a space.
	phoneRe = regexp.MustCompile(`(?:\(\d{3}\)[ .-]?|\b\d{3}[ .-]?)\d{3}[ .-]?\d{4}\b`)
)

// Apply replaces emails, card-like digit sequences, and ten-digit phone
// groupings with their redaction tokens.
func Apply(s string) string {
	if s == "" {
		return s
	}
	s = emailRe.ReplaceAllString(s, EmailToken)
	s = groupedCardRe.ReplaceAllString(s, CardToken)
	s = cardRe.ReplaceAllString(s, CardToken)
	s = phoneRe.ReplaceAllString(s, PhoneToken)
	return s
}
