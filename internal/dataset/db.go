package dataset

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"datanerd/internal/logging"
)

// DB is the SQLite-backed implementation of Query.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the analytics database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral instance.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset db: %w", err)
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

	d := &DB{db: db, path: path}
	if err := d.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.DatasetDebug("opened analytics db at %s", path)
	return d, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

func (d *DB) initialize() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			day TEXT NOT NULL,
			product_id TEXT NOT NULL,
			units INTEGER NOT NULL,
			sales REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS traffic (
			day TEXT NOT NULL,
			product_id TEXT NOT NULL,
			sessions INTEGER NOT NULL
		)`,
	}

	for _, table := range tables {
		if _, err := d.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_orders_product_day ON orders(product_id, day)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_day ON orders(day)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_product_day ON traffic(product_id, day)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_day ON traffic(day)`,
	}
	for _, idx := range indexes {
		if _, err := d.db.Exec(idx); err != nil {
			logging.DatasetWarn("failed to create dataset index: %v", err)
		}
	}

	return nil
}
