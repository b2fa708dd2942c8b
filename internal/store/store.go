package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// Resolution values for an override decision. A decision starts pending and
// transitions to a terminal value exactly once.
const (
	ResolutionPending  = "pending"
	ResolutionAccept   = "accept"
	ResolutionReject   = "reject"
	ResolutionEscalate = "escalate"
)

// Run is one ingestion + scoring pass.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time // zero until FinishRun
	DryRun      bool
	Status      string
	ItemsTotal  int
	ItemsFailed int
}

// RawItem is a persisted feed item. Engagement signals are refreshed on
// re-fetch; created_at marks the first time the id was seen.
type RawItem struct {
	ID          string
	Title       string
	URL         string
	Author      string
	Score       int
	Descendants int
	Posted      time.Time
	FetchedAt   time.Time
	CreatedAt   time.Time
}

// AmbiguityFlag is one ambiguity-stage record. At most one per (run, item).
type AmbiguityFlag struct {
	ID        int64
	RunID     string
	ItemID    string
	Score     float64
	Flagged   bool
	Reason    string
	CreatedAt time.Time
}

// PatternInstance is one template match. Zero or many per (run, item).
type PatternInstance struct {
	ID         int64
	RunID      string
	ItemID     string
	PatternID  string
	Confidence float64
	CreatedAt  time.Time
}

// FailureMode is the risk assessment of exactly one pattern instance.
type FailureMode struct {
	ID                int64
	PatternInstanceID int64
	Risk              float64
	Mitigation        string
	Reason            string
	CreatedAt         time.Time
}

// OverrideDecision is the gate verdict for one (run, item). DecidedAt stays
// zero while the decision is pending.
type OverrideDecision struct {
	ID               int64
	RunID            string
	ItemID           string
	RequiresOverride bool
	Reason           string
	Resolved         string
	Operator         string
	DecidedAt        time.Time
	CreatedAt        time.Time
}

// Store is the single source of truth. All mutation goes through its
// transactional entry points; nothing else writes to the tables.
type Store struct {
	db  *sql.DB
	now func() time.Time // injectable for deterministic tests
}

// Open opens the database file and verifies the expected schema is present.
// It never creates tables; a missing table surfaces as a *SchemaError.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	// Single writer keeps transactions serialized without lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "set pragma", Err: err}
	}
	if err := verifySchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenAndInit opens the database file and creates any missing tables.
// Used by the init command and by tests.
func OpenAndInit(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "set pragma", Err: err}
	}
	if err := EnsureSchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// inTx runs f inside one transaction and rolls back on any error.
func (s *Store) inTx(ctx context.Context, op string, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: op, Err: fmt.Errorf("begin: %w", err)}
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		if _, ok := err.(*StoreError); ok {
			return err
		}
		return &StoreError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: op, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, r Run) error {
	return s.inTx(ctx, "begin run", func(tx *sql.Tx) error {
		_, err := sq.Insert("runs").
			Columns("id", "started_at", "dry_run", "status").
			Values(r.ID, r.StartedAt.UTC(), r.DryRun, "running").
			RunWith(tx).ExecContext(ctx)
		return err
	})
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id, status string, total, failed int) error {
	return s.inTx(ctx, "finish run", func(tx *sql.Tx) error {
		res, err := sq.Update("runs").
			Set("finished_at", s.now().UTC()).
			Set("status", status).
			Set("items_total", total).
			Set("items_failed", failed).
			Where(sq.Eq{"id": id}).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("unknown run %s", id)
		}
		return nil
	})
}

// UpsertRawItem inserts the item or, when the external id already exists,
// refreshes its engagement signals in place. Repeated upserts of the same id
// never create a second row.
func (s *Store) UpsertRawItem(ctx context.Context, item RawItem) error {
	return s.inTx(ctx, "upsert raw item", func(tx *sql.Tx) error {
		_, err := sq.Insert("raw_items").
			Columns("id", "title", "url", "author", "score", "descendants",
				"posted", "fetched_at", "created_at").
			Values(item.ID, item.Title, item.URL, item.Author, item.Score,
				item.Descendants, nullableTime(item.Posted), item.FetchedAt.UTC(), s.now().UTC()).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				url = excluded.url,
				author = excluded.author,
				score = excluded.score,
				descendants = excluded.descendants,
				posted = excluded.posted,
				fetched_at = excluded.fetched_at`).
			RunWith(tx).ExecContext(ctx)
		return err
	})
}

// AppendAmbiguity records the ambiguity stage's output. A retry within the
// same run is a no-op; the first record wins and its id is returned.
func (s *Store) AppendAmbiguity(ctx context.Context, f AmbiguityFlag) (int64, error) {
	var id int64
	err := s.inTx(ctx, "append ambiguity", func(tx *sql.Tx) error {
		res, err := sq.Insert("ambiguity_flags").
			Columns("run_id", "item_id", "score", "flagged", "reason", "created_at").
			Values(f.RunID, f.ItemID, f.Score, f.Flagged, f.Reason, s.now().UTC()).
			Suffix("ON CONFLICT (run_id, item_id) DO NOTHING").
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}
		id, err = insertedOrExistingID(ctx, tx, res, "ambiguity_flags",
			sq.Eq{"run_id": f.RunID, "item_id": f.ItemID})
		return err
	})
	return id, err
}

// AppendPattern records one template match. Idempotent per
// (run, item, pattern); the surviving row's id is returned for the failure
// mode to reference.
func (s *Store) AppendPattern(ctx context.Context, p PatternInstance) (int64, error) {
	var id int64
	err := s.inTx(ctx, "append pattern", func(tx *sql.Tx) error {
		res, err := sq.Insert("pattern_instances").
			Columns("run_id", "item_id", "pattern_id", "confidence", "created_at").
			Values(p.RunID, p.ItemID, p.PatternID, p.Confidence, s.now().UTC()).
			Suffix("ON CONFLICT (run_id, item_id, pattern_id) DO NOTHING").
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}
		id, err = insertedOrExistingID(ctx, tx, res, "pattern_instances",
			sq.Eq{"run_id": p.RunID, "item_id": p.ItemID, "pattern_id": p.PatternID})
		return err
	})
	return id, err
}

// AppendFailureMode records the risk assessment for a pattern instance.
// Exactly one per instance; a retry returns the existing record's id.
func (s *Store) AppendFailureMode(ctx context.Context, m FailureMode) (int64, error) {
	var id int64
	err := s.inTx(ctx, "append failure mode", func(tx *sql.Tx) error {
		res, err := sq.Insert("failure_modes").
			Columns("pattern_instance_id", "risk", "mitigation", "reason", "created_at").
			Values(m.PatternInstanceID, m.Risk, m.Mitigation, m.Reason, s.now().UTC()).
			Suffix("ON CONFLICT (pattern_instance_id) DO NOTHING").
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}
		id, err = insertedOrExistingID(ctx, tx, res, "failure_modes",
			sq.Eq{"pattern_instance_id": m.PatternInstanceID})
		return err
	})
	return id, err
}

// AppendOverride records the gate verdict for a (run, item). Idempotent; the
// decision always starts pending.
func (s *Store) AppendOverride(ctx context.Context, d OverrideDecision) (int64, error) {
	var id int64
	err := s.inTx(ctx, "append override", func(tx *sql.Tx) error {
		res, err := sq.Insert("override_decisions").
			Columns("run_id", "item_id", "requires_override", "reason",
				"resolved", "created_at").
			Values(d.RunID, d.ItemID, d.RequiresOverride, d.Reason,
				ResolutionPending, s.now().UTC()).
			Suffix("ON CONFLICT (run_id, item_id) DO NOTHING").
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}
		id, err = insertedOrExistingID(ctx, tx, res, "override_decisions",
			sq.Eq{"run_id": d.RunID, "item_id": d.ItemID})
		return err
	})
	return id, err
}

// ResolveOverride transitions a pending decision to a terminal resolution.
// The transition happens exactly once: resolving an already-resolved or
// unknown decision fails and leaves the row unchanged.
func (s *Store) ResolveOverride(ctx context.Context, id int64, resolution, operator string) error {
	switch resolution {
	case ResolutionAccept, ResolutionReject, ResolutionEscalate:
	default:
		return &StoreError{Op: "resolve override",
			Err: fmt.Errorf("invalid resolution %q", resolution)}
	}

	return s.inTx(ctx, "resolve override", func(tx *sql.Tx) error {
		res, err := sq.Update("override_decisions").
			Set("resolved", resolution).
			Set("operator", operator).
			Set("decided_at", s.now().UTC()).
			Where(sq.Eq{"id": id, "resolved": ResolutionPending}).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			return nil
		}

		var current string
		err = sq.Select("resolved").From("override_decisions").
			Where(sq.Eq{"id": id}).
			RunWith(tx).QueryRowContext(ctx).Scan(&current)
		if err == sql.ErrNoRows {
			return &StoreError{Op: "resolve override",
				Err: fmt.Errorf("decision %d not found", id)}
		}
		if err != nil {
			return err
		}
		return &StoreError{Op: "resolve override",
			Err: fmt.Errorf("decision %d already resolved as %s", id, current)}
	})
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// insertedOrExistingID returns the id the insert produced, or, when the
// conflict clause swallowed it, the id of the already-present row.
func insertedOrExistingID(ctx context.Context, tx *sql.Tx, res sql.Result, table string, key sq.Eq) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		return res.LastInsertId()
	}
	var id int64
	err = sq.Select("id").From(table).Where(key).
		RunWith(tx).QueryRowContext(ctx).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup existing %s row: %w", table, err)
	}
	return id, nil
}
