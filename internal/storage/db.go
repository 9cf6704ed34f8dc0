package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"picklist/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps upserts serialized under concurrent batches
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS suppliers (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_suppliers_name ON suppliers(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS products (
  id INTEGER PRIMARY KEY,
  description TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_description ON products(description);

CREATE TABLE IF NOT EXISTS supplier_prices (
  product_id INTEGER NOT NULL,
  supplier_id INTEGER NOT NULL,
  price REAL NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE(product_id, supplier_id),
  FOREIGN KEY(product_id) REFERENCES products(id),
  FOREIGN KEY(supplier_id) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS item_preferences (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  item_key TEXT NOT NULL,
  original_item TEXT NOT NULL,
  product_id INTEGER NOT NULL,
  frequency INTEGER NOT NULL DEFAULT 1,
  last_used INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(user_id, item_key)
);

CREATE TABLE IF NOT EXISTS supplier_preferences (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  item_key TEXT NOT NULL,
  original_item TEXT NOT NULL,
  product_id INTEGER NOT NULL DEFAULT 0,
  supplier_id INTEGER NOT NULL CHECK(supplier_id > 0),
  frequency INTEGER NOT NULL DEFAULT 1,
  last_used INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(item_key, product_id, supplier_id)
);
CREATE INDEX IF NOT EXISTS idx_supplier_preferences_item ON supplier_preferences(item_key, product_id);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batch_id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  source TEXT NOT NULL,
  items INTEGER NOT NULL,
  summary_json TEXT NOT NULL,
  duration_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// RunRecord is the audit row written once per generated picklist.
type RunRecord struct {
	BatchID   string
	UserID    string
	Source    string
	Items     int
	Summary   internal.Summary
	Duration  time.Duration
	CreatedAt time.Time
}

func (d *DB) InsertRun(ctx context.Context, run RunRecord) error {
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO runs (batch_id, user_id, source, items, summary_json, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, run.BatchID, run.UserID, run.Source, run.Items, string(summaryJSON), run.Duration.Milliseconds(), toMillis(run.CreatedAt))
	return err
}

func (d *DB) GetRun(ctx context.Context, batchID string) (RunRecord, bool, error) {
	var (
		run         RunRecord
		summaryJSON string
		durationMs  int64
		createdAt   int64
	)
	err := d.conn.QueryRowContext(ctx, `
SELECT batch_id, user_id, source, items, summary_json, duration_ms, created_at
FROM runs WHERE batch_id = ?
`, batchID).Scan(&run.BatchID, &run.UserID, &run.Source, &run.Items, &summaryJSON, &durationMs, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, err
	}
	if err := json.Unmarshal([]byte(summaryJSON), &run.Summary); err != nil {
		return RunRecord{}, false, err
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.CreatedAt = fromMillis(createdAt)
	return run, true, nil
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, toMillis(time.Now()))
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
