package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"datanerd/internal/clock"
	"datanerd/internal/logging"
	"datanerd/internal/redact"
	"datanerd/internal/types"
)

const (
	maxSearchLimit    = 50
	dedupeTextMaxLen  = 256
	defaultSearchRows = 10
)

// DedupeKey derives the duplicate-collapse key for a memory item:
// sha256 over the kind and the normalized text (lowercased, whitespace
// collapsed, capped at 256 chars).
func DedupeKey(kind types.MemoryKind, text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if len(normalized) > dedupeTextMaxLen {
		normalized = normalized[:dedupeTextMaxLen]
	}
	sum := sha256.Sum256([]byte(string(kind) + normalized))
	return hex.EncodeToString(sum[:])
}

// UpsertMemoryItem inserts in as a new memory item, or collapses it into
// the existing row at (scope, kind, dedupeKey): text, meta, importance,
// quality and expiry are replaced, usage counters bump, the original id
// and createdAt survive. Text is PII-redacted before it reaches disk, and
// the dedupe key is computed over the redacted text when absent. An empty
// nowISO falls back to wall clock.
func (s *StateStore) UpsertMemoryItem(in types.MemoryUpsert, nowISO string) (*types.MemoryItem, error) {
	if in.Scope == "" {
		return nil, fmt.Errorf("memory upsert: scope is required")
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("memory upsert: unknown kind %q", in.Kind)
	}
	text := redact.Apply(strings.TrimSpace(in.Text))
	if text == "" {
		return nil, fmt.Errorf("memory upsert: text is empty")
	}

	now := nowOrWallISO(nowISO)
	key := in.DedupeKey
	if key == "" {
		key = DedupeKey(in.Kind, text)
	}

	var metaJSON any
	if len(in.Meta) > 0 {
		raw, err := json.Marshal(in.Meta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode memory meta: %w", err)
		}
		metaJSON = string(raw)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin memory upsert: %w", err)
	}
	defer tx.Rollback()

	var (
		existingID        string
		existingCreatedAt string
		existingUseCount  int64
	)
	err = tx.QueryRow(
		`SELECT id, created_at, use_count FROM memory_items WHERE scope = ? AND kind = ? AND dedupe_key = ?`,
		in.Scope, string(in.Kind), key,
	).Scan(&existingID, &existingCreatedAt, &existingUseCount)

	item := &types.MemoryItem{
		Scope:      in.Scope,
		Kind:       in.Kind,
		Text:       text,
		Meta:       in.Meta,
		DedupeKey:  key,
		Importance: in.Importance,
		Quality:    in.Quality,
		ExpiresAt:  in.ExpiresAt,
	}

	switch {
	case err == nil:
		// Dedupe hit: the re-proposal counts as a use.
		item.ID = existingID
		item.CreatedAt = existingCreatedAt
		item.UseCount = existingUseCount + 1
		item.LastUsedAt = now

		if _, err := tx.Exec(
			`UPDATE memory_items
			 SET text = ?, meta_json = ?, last_used_at = ?, use_count = ?,
			     importance = ?, quality = ?, expires_at = ?
			 WHERE id = ?`,
			text, metaJSON, now, item.UseCount,
			in.Importance, in.Quality, nullable(in.ExpiresAt), existingID,
		); err != nil {
			return nil, fmt.Errorf("failed to update memory item: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM memory_fts WHERE id = ?`, existingID); err != nil {
			return nil, fmt.Errorf("failed to clear memory fts row: %w", err)
		}

	case err == sql.ErrNoRows:
		item.ID = types.NewID("mem", msFromISO(now))
		item.CreatedAt = now

		if _, err := tx.Exec(
			`INSERT INTO memory_items (
				id, scope, kind, text, meta_json, dedupe_key, created_at,
				last_used_at, use_count, importance, quality, expires_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 0, ?, ?, ?)`,
			item.ID, in.Scope, string(in.Kind), text, metaJSON, key, now,
			in.Importance, in.Quality, nullable(in.ExpiresAt),
		); err != nil {
			return nil, fmt.Errorf("failed to insert memory item: %w", err)
		}

	default:
		return nil, fmt.Errorf("failed to probe memory dedupe key: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO memory_fts (id, text, kind, scope) VALUES (?, ?, ?, ?)`,
		item.ID, text, string(in.Kind), in.Scope,
	); err != nil {
		return nil, fmt.Errorf("failed to index memory item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit memory upsert: %w", err)
	}
	return item, nil
}

func msFromISO(iso string) int64 {
	if t, err := clock.ParseISO(iso); err == nil {
		return t.UnixMilli()
	}
	return time.Now().UnixMilli()
}

// SearchQuery selects memory items by full-text match.
type SearchQuery struct {
	Query  string
	Scopes []string
	Kinds  []types.MemoryKind
	Limit  int
	NowISO string
}

// SearchMemory runs an FTS MATCH over the memory index, filtered to the
// given scopes (and kinds, when set) and to unexpired items. Results come
// back strongest match first; BM25 holds the magnitude of the engine's
// rank, FTSRank its 1/(1+bm25) normalization.
func (s *StateStore) SearchMemory(q SearchQuery) ([]types.MemoryHit, error) {
	if strings.TrimSpace(q.Query) == "" || len(q.Scopes) == 0 {
		return nil, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchRows
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	now := nowOrWallISO(q.NowISO)

	var sb strings.Builder
	sb.WriteString(`
		SELECT m.id, m.scope, m.kind, m.text, m.meta_json, m.dedupe_key,
		       m.created_at, m.last_used_at, m.use_count, m.importance,
		       m.quality, m.expires_at, bm25(memory_fts) AS rank
		FROM memory_fts
		JOIN memory_items m ON m.id = memory_fts.id
		WHERE memory_fts MATCH ?`)

	args := []any{q.Query}

	sb.WriteString(` AND m.scope IN (` + placeholders(len(q.Scopes)) + `)`)
	for _, scope := range q.Scopes {
		args = append(args, scope)
	}

	if len(q.Kinds) > 0 {
		sb.WriteString(` AND m.kind IN (` + placeholders(len(q.Kinds)) + `)`)
		for _, kind := range q.Kinds {
			args = append(args, string(kind))
		}
	}

	sb.WriteString(` AND (m.expires_at IS NULL OR m.expires_at > ?)`)
	args = append(args, now)

	sb.WriteString(` ORDER BY bm25(memory_fts) ASC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search memory: %w", err)
	}
	defer rows.Close()

	var hits []types.MemoryHit
	for rows.Next() {
		var (
			item types.MemoryItem
			raw  float64
		)
		if err := scanMemoryItem(rows, &item, &raw); err != nil {
			return nil, err
		}
		// FTS5 reports better matches as more negative values; store the
		// magnitude so the normalization lands in (0,1].
		bm := math.Abs(raw)
		hits = append(hits, types.MemoryHit{
			Item:    item,
			BM25:    bm,
			FTSRank: 1 / (1 + bm),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory search rows: %w", err)
	}

	logging.StoreDebug("memory search %q matched %d item(s)", q.Query, len(hits))
	return hits, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryItem(r rowScanner, item *types.MemoryItem, rank *float64) error {
	var (
		metaJSON   sql.NullString
		lastUsedAt sql.NullString
		expiresAt  sql.NullString
		kind       string
	)
	dest := []any{
		&item.ID, &item.Scope, &kind, &item.Text, &metaJSON, &item.DedupeKey,
		&item.CreatedAt, &lastUsedAt, &item.UseCount, &item.Importance,
		&item.Quality, &expiresAt,
	}
	if rank != nil {
		dest = append(dest, rank)
	}
	if err := r.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan memory item: %w", err)
	}

	item.Kind = types.MemoryKind(kind)
	item.LastUsedAt = lastUsedAt.String
	item.ExpiresAt = expiresAt.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &item.Meta); err != nil {
			return fmt.Errorf("failed to decode memory meta: %w", err)
		}
	}
	return nil
}

// GetMemoryItem fetches a single item by id.
func (s *StateStore) GetMemoryItem(id string) (*types.MemoryItem, error) {
	row := s.db.QueryRow(
		`SELECT id, scope, kind, text, meta_json, dedupe_key, created_at,
		        last_used_at, use_count, importance, quality, expires_at
		 FROM memory_items WHERE id = ?`, id)

	var item types.MemoryItem
	if err := scanMemoryItem(row, &item, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("memory item %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &item, nil
}

// MarkMemoryUsed bumps lastUsedAt and useCount for each distinct id.
func (s *StateStore) MarkMemoryUsed(ids []string, nowISO string) error {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(ids))
	distinct := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	args := []any{nowOrWallISO(nowISO)}
	for _, id := range distinct {
		args = append(args, id)
	}

	_, err := s.db.Exec(
		`UPDATE memory_items SET last_used_at = ?, use_count = use_count + 1
		 WHERE id IN (`+placeholders(len(distinct))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark memory used: %w", err)
	}
	return nil
}

// MemoryStats returns the per-(scope, kind) item census.
func (s *StateStore) MemoryStats() ([]types.MemoryStat, error) {
	rows, err := s.db.Query(
		`SELECT scope, kind, COUNT(*) FROM memory_items GROUP BY scope, kind ORDER BY scope, kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}
	defer rows.Close()

	var stats []types.MemoryStat
	for rows.Next() {
		var stat types.MemoryStat
		if err := rows.Scan(&stat.Scope, &stat.Kind, &stat.Count); err != nil {
			return nil, fmt.Errorf("failed to scan memory stat: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// Maintenance deletes expired memory items and their index rows,
// returning how many were removed. An empty nowISO falls back to wall
// clock.
func (s *StateStore) Maintenance(nowISO string) (int, error) {
	now := nowOrWallISO(nowISO)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin maintenance: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM memory_fts WHERE id IN (
			SELECT id FROM memory_items WHERE expires_at IS NOT NULL AND expires_at <= ?
		)`, now); err != nil {
		return 0, fmt.Errorf("failed to sweep memory fts rows: %w", err)
	}

	res, err := tx.Exec(
		`DELETE FROM memory_items WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired memory items: %w", err)
	}
	expired, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit maintenance: %w", err)
	}

	if expired > 0 {
		logging.Store("maintenance removed %d expired memory item(s)", expired)
	}
	return int(expired), nil
}
