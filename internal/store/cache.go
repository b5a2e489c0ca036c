package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"datanerd/internal/logging"
)

// CacheEntry is one stored tool result, keyed by call signature.
type CacheEntry struct {
	Signature string         `json:"signature"`
	CreatedAt string         `json:"createdAt"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Result    any            `json:"result"`
}

// GetToolCache returns the cached entry for sig, or nil when there is
// none. Cached results come back as decoded JSON values, never as the
// concrete types the tools produce.
func (s *StateStore) GetToolCache(sig string) (*CacheEntry, error) {
	var (
		entry      CacheEntry
		argsJSON   string
		resultJSON string
	)
	err := s.db.QueryRow(
		`SELECT signature, created_at, tool, args_json, result_json FROM tool_cache WHERE signature = ?`,
		sig,
	).Scan(&entry.Signature, &entry.CreatedAt, &entry.Tool, &argsJSON, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tool cache: %w", err)
	}

	if err := json.Unmarshal([]byte(argsJSON), &entry.Args); err != nil {
		return nil, fmt.Errorf("failed to decode cached args: %w", err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &entry, nil
}

// SetToolCache stores (or replaces) the result for a tool call signature.
// Entries live as long as the state file; there is no TTL. An empty
// nowISO falls back to wall clock.
func (s *StateStore) SetToolCache(tool, sig string, args map[string]any, result any, nowISO string) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode cache args: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache result: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO tool_cache (signature, created_at, tool, args_json, result_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(signature) DO UPDATE SET
			created_at = excluded.created_at,
			tool = excluded.tool,
			args_json = excluded.args_json,
			result_json = excluded.result_json`,
		sig, nowOrWallISO(nowISO), tool, string(argsJSON), string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to write tool cache: %w", err)
	}

	logging.StoreDebug("cached %s result under %s", tool, sig)
	return nil
}

// CountToolCache returns the number of cached tool results.
func (s *StateStore) CountToolCache() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tool_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tool cache: %w", err)
	}
	return n, nil
}
