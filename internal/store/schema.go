package store

import (
	"context"
	"database/sql"
	"fmt"
)

// tables is the full expected table set, checked by Open against
// sqlite_master.
var tables = []string{
	"runs",
	"raw_items",
	"ambiguity_flags",
	"pattern_instances",
	"failure_modes",
	"override_decisions",
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME,
	dry_run      INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'running',
	items_total  INTEGER NOT NULL DEFAULT 0,
	items_failed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS raw_items (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL DEFAULT '',
	score       INTEGER NOT NULL DEFAULT 0,
	descendants INTEGER NOT NULL DEFAULT 0,
	posted      DATETIME,
	fetched_at  DATETIME NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ambiguity_flags (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	item_id    TEXT NOT NULL REFERENCES raw_items(id),
	score      REAL NOT NULL,
	flagged    INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (run_id, item_id)
);

CREATE TABLE IF NOT EXISTS pattern_instances (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	item_id    TEXT NOT NULL REFERENCES raw_items(id),
	pattern_id TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (run_id, item_id, pattern_id)
);

CREATE TABLE IF NOT EXISTS failure_modes (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_instance_id INTEGER NOT NULL UNIQUE REFERENCES pattern_instances(id),
	risk                REAL NOT NULL,
	mitigation          TEXT NOT NULL,
	reason              TEXT NOT NULL,
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS override_decisions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id            TEXT NOT NULL REFERENCES runs(id),
	item_id           TEXT NOT NULL REFERENCES raw_items(id),
	requires_override INTEGER NOT NULL,
	reason            TEXT NOT NULL,
	resolved          TEXT NOT NULL DEFAULT 'pending'
	                  CHECK (resolved IN ('pending','accept','reject','escalate')),
	operator          TEXT NOT NULL DEFAULT '',
	decided_at        DATETIME,
	created_at        DATETIME NOT NULL,
	UNIQUE (run_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_ambiguity_flags_created ON ambiguity_flags (created_at, id);
CREATE INDEX IF NOT EXISTS idx_pattern_instances_created ON pattern_instances (created_at, id);
CREATE INDEX IF NOT EXISTS idx_override_decisions_resolved ON override_decisions (resolved);
`

// EnsureSchema creates all tables and indexes if absent. Called by the init
// command and by tests; the runtime path assumes the schema already exists.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return &StoreError{Op: "ensure schema", Err: err}
	}
	return nil
}

// verifySchema checks sqlite_master for every expected table and fails fast
// with a *SchemaError naming what is missing.
func verifySchema(ctx context.Context, db *sql.DB) error {
	present := make(map[string]bool, len(tables))
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return &StoreError{Op: "verify schema", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &StoreError{Op: "verify schema", Err: err}
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return &StoreError{Op: "verify schema", Err: fmt.Errorf("scan tables: %w", err)}
	}

	var missing []string
	for _, t := range tables {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}
