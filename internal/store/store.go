// Package store is the persistent state layer: append-only run records,
// deduplicated memory items with a full-text index, and the tool-result
// cache. Single writer; every operation is individually transactional.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"datanerd/internal/clock"
	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("not found")

// StateStore wraps the SQLite state database.
type StateStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the state database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral instance.
func Open(path string) (*StateStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}

	// Single connection: modernc SQLite serializes writers anyway, and one
	// connection keeps :memory: databases coherent across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &StateStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.StoreDebug("opened state db at %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *StateStore) Path() string {
	return s.path
}

func (s *StateStore) initialize() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			user_id TEXT NOT NULL,
			config_json TEXT NOT NULL,
			query TEXT NOT NULL,
			augmented_query TEXT NOT NULL,
			route TEXT,
			ood INTEGER NOT NULL DEFAULT 0,
			plan_json TEXT,
			tool_calls_json TEXT,
			response TEXT NOT NULL,
			eval_json TEXT,
			latencies_json TEXT NOT NULL,
			memory_injected_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			meta_json TEXT,
			dedupe_key TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_used_at TEXT,
			use_count INTEGER NOT NULL DEFAULT 0,
			importance REAL NOT NULL DEFAULT 0.5,
			quality REAL NOT NULL DEFAULT 0.5,
			expires_at TEXT
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
			id UNINDEXED, text, kind, scope
		)`,
		`CREATE TABLE IF NOT EXISTS tool_cache (
			signature TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			tool TEXT NOT NULL,
			args_json TEXT NOT NULL,
			result_json TEXT NOT NULL
		)`,
	}

	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_dedupe ON memory_items(scope, kind, dedupe_key)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_expires ON memory_items(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			logging.StoreWarn("failed to create state index: %v", err)
		}
	}

	return nil
}

// nowOrWallISO defaults an empty caller-supplied timestamp to wall clock.
func nowOrWallISO(nowISO string) string {
	if nowISO != "" {
		return nowISO
	}
	return clock.ISO(time.Now().UnixMilli())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalOrNull(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// =============================================================================
// RUNS
// =============================================================================

// InsertRun appends a run record. Runs are never updated.
func (s *StateStore) InsertRun(run *types.Run) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}
	latenciesJSON, err := json.Marshal(run.Latencies)
	if err != nil {
		return fmt.Errorf("failed to encode run latencies: %w", err)
	}

	var planJSON, toolCallsJSON, evalJSON, memoryJSON any
	if run.Plan != nil {
		if planJSON, err = marshalOrNull(run.Plan); err != nil {
			return fmt.Errorf("failed to encode run plan: %w", err)
		}
	}
	if len(run.ToolCalls) > 0 {
		if toolCallsJSON, err = marshalOrNull(run.ToolCalls); err != nil {
			return fmt.Errorf("failed to encode run tool calls: %w", err)
		}
	}
	if run.Eval != nil {
		if evalJSON, err = marshalOrNull(run.Eval); err != nil {
			return fmt.Errorf("failed to encode run eval: %w", err)
		}
	}
	if len(run.MemoryInjected) > 0 {
		if memoryJSON, err = marshalOrNull(run.MemoryInjected); err != nil {
			return fmt.Errorf("failed to encode run memory snapshot: %w", err)
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (
			id, created_at, user_id, config_json, query, augmented_query,
			route, ood, plan_json, tool_calls_json, response, eval_json,
			latencies_json, memory_injected_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.UserID, string(configJSON),
		run.Query, run.AugmentedQuery, nullable(string(run.Route)),
		boolToInt(run.OOD), planJSON, toolCallsJSON, run.Response,
		evalJSON, string(latenciesJSON), memoryJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// CountRuns returns the number of persisted runs.
func (s *StateStore) CountRuns() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
