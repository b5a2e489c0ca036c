package types

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a time-sortable identifier: prefix, a millisecond
// timestamp zero-padded to 13 digits, and a short random suffix.
// Lexicographic order equals creation order for ids sharing a prefix.
func NewID(prefix string, nowMs int64) string {
	return fmt.Sprintf("%s-%013d-%s", prefix, nowMs, uuid.NewString()[:8])
}
