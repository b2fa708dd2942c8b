// Package store is the durable, transactional persistence layer and the
// single source of truth for raw items and every stage's output.
//
// Backing is a single-file SQLite database (mattn/go-sqlite3, WAL journal,
// foreign keys on, one writer connection). The six mutation entry points —
// UpsertRawItem, AppendAmbiguity, AppendPattern, AppendFailureMode,
// AppendOverride, ResolveOverride — are the only ways rows change; each runs
// in its own transaction and is idempotent under per-run retry. Reads return
// rows ordered by created_at then id so iteration is deterministic.
//
// Open assumes the schema already exists and fails with a *SchemaError when
// tables are missing; the init command (OpenAndInit) creates them.
package store
