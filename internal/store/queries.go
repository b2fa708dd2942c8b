package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// GetRun returns one run row.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := sq.Select("id", "started_at", "finished_at", "dry_run", "status",
		"items_total", "items_failed").
		From("runs").Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRowContext(ctx)

	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.StartedAt, &finished, &r.DryRun, &r.Status,
		&r.ItemsTotal, &r.ItemsFailed)
	if err != nil {
		return nil, &StoreError{Op: "get run", Err: err}
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}

// RawItemByID returns one persisted item, or a *StoreError wrapping
// sql.ErrNoRows when the id is unknown.
func (s *Store) RawItemByID(ctx context.Context, id string) (*RawItem, error) {
	row := sq.Select("id", "title", "url", "author", "score", "descendants",
		"posted", "fetched_at", "created_at").
		From("raw_items").Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRowContext(ctx)

	item, err := scanRawItem(row)
	if err != nil {
		return nil, &StoreError{Op: "get raw item", Err: err}
	}
	return item, nil
}

// AmbiguityByItem returns the ambiguity record one run produced for an item.
func (s *Store) AmbiguityByItem(ctx context.Context, runID, itemID string) (*AmbiguityFlag, error) {
	row := sq.Select("id", "run_id", "item_id", "score", "flagged", "reason", "created_at").
		From("ambiguity_flags").
		Where(sq.Eq{"run_id": runID, "item_id": itemID}).
		RunWith(s.db).QueryRowContext(ctx)

	var f AmbiguityFlag
	err := row.Scan(&f.ID, &f.RunID, &f.ItemID, &f.Score, &f.Flagged,
		&f.Reason, &f.CreatedAt)
	if err != nil {
		return nil, &StoreError{Op: "get ambiguity", Err: err}
	}
	return &f, nil
}

// PatternsByItem returns every template match one run produced for an item,
// in creation order.
func (s *Store) PatternsByItem(ctx context.Context, runID, itemID string) ([]PatternInstance, error) {
	rows, err := sq.Select("id", "run_id", "item_id", "pattern_id", "confidence", "created_at").
		From("pattern_instances").
		Where(sq.Eq{"run_id": runID, "item_id": itemID}).
		OrderBy("created_at", "id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list patterns", Err: err}
	}
	defer rows.Close()

	var out []PatternInstance
	for rows.Next() {
		var p PatternInstance
		if err := rows.Scan(&p.ID, &p.RunID, &p.ItemID, &p.PatternID,
			&p.Confidence, &p.CreatedAt); err != nil {
			return nil, &StoreError{Op: "list patterns", Err: err}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list patterns", Err: err}
	}
	return out, nil
}

// FailureModeByInstance returns the risk assessment of a pattern instance.
func (s *Store) FailureModeByInstance(ctx context.Context, instanceID int64) (*FailureMode, error) {
	row := sq.Select("id", "pattern_instance_id", "risk", "mitigation", "reason", "created_at").
		From("failure_modes").
		Where(sq.Eq{"pattern_instance_id": instanceID}).
		RunWith(s.db).QueryRowContext(ctx)

	var m FailureMode
	err := row.Scan(&m.ID, &m.PatternInstanceID, &m.Risk, &m.Mitigation,
		&m.Reason, &m.CreatedAt)
	if err != nil {
		return nil, &StoreError{Op: "get failure mode", Err: err}
	}
	return &m, nil
}

// OverrideByItem returns the gate verdict one run produced for an item.
func (s *Store) OverrideByItem(ctx context.Context, runID, itemID string) (*OverrideDecision, error) {
	row := overrideSelect().
		Where(sq.Eq{"run_id": runID, "item_id": itemID}).
		RunWith(s.db).QueryRowContext(ctx)

	d, err := scanOverride(row)
	if err != nil {
		return nil, &StoreError{Op: "get override", Err: err}
	}
	return d, nil
}

// PendingOverrides returns every unresolved decision, oldest first.
func (s *Store) PendingOverrides(ctx context.Context) ([]OverrideDecision, error) {
	rows, err := overrideSelect().
		Where(sq.Eq{"resolved": ResolutionPending}).
		OrderBy("created_at", "id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list pending overrides", Err: err}
	}
	defer rows.Close()
	return collectOverrides(rows)
}

// WeekReport bundles every table's rows for one report week.
type WeekReport struct {
	WeekStart time.Time
	Items     []RawItem
	Flags     []AmbiguityFlag
	Patterns  []PatternInstance
	Failures  []FailureMode
	Overrides []OverrideDecision
}

// WeekRecords returns all records created in [weekStart, weekStart+7d),
// each table ordered by created_at then id. The external brief renderer
// consumes this; the store itself does no formatting.
func (s *Store) WeekRecords(ctx context.Context, weekStart time.Time) (*WeekReport, error) {
	start := weekStart.UTC()
	end := start.AddDate(0, 0, 7)
	window := sq.And{sq.GtOrEq{"created_at": start}, sq.Lt{"created_at": end}}

	report := &WeekReport{WeekStart: start}

	itemRows, err := sq.Select("id", "title", "url", "author", "score",
		"descendants", "posted", "fetched_at", "created_at").
		From("raw_items").Where(window).OrderBy("created_at", "id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, &StoreError{Op: "week items", Err: err}
	}
	defer itemRows.Close()
	for itemRows.Next() {
		item, err := scanRawItem(itemRows)
		if err != nil {
			return nil, &StoreError{Op: "week items", Err: err}
		}
		report.Items = append(report.Items, *item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, &StoreError{Op: "week items", Err: err}
	}

	flagRows, err := sq.Select("id", "run_id", "item_id", "score", "flagged",
		"reason", "created_at").
		From("ambiguity_flags").Where(window).OrderBy("created_at", "id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, &StoreError{Op: "week flags", Err: err}
	}
	defer flagRows.Close()
	for flagRows.Next() {
		var f AmbiguityFlag
		if err := flagRows.Scan(&f.ID, &f.RunID, &f.ItemID, &f.Score,
			&f.Flagged, &f.Reason, &f.CreatedAt); err != nil {
			return nil, &StoreError{Op: "week flags", Err: err}
		}
		report.Flags = append(report.Flags, f)
	}
	if err := flagRows.Err(); err != nil {
		return nil, &StoreError{Op: "week flags", Err: err}
	}

	patternRows, err := sq.Select("id", "run_id", "item_id", "pattern_id",
		"confidence", "created_at").
		From("pattern_instances").Where(window).OrderBy("created_at", "id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, &StoreError{Op: "week patterns", Err: err}
	}
	defer patternRows.Close()
	for patternRows.Next() {
		var p PatternInstance
		if err := patternRows.Scan(&p.ID, &p.RunID, &p.ItemID, &p.PatternID,
			&p.Confidence, &p.CreatedAt); err != nil {
			return nil, &StoreError{Op: "week patterns", Err: err}
		}
		report.Patterns = append(report.Patterns, p)
	}
	if err := patternRows.Err(); err != nil {
		return nil, &StoreError{Op: "week patterns", Err: err}
	}

	failureRows, err := sq.Select("id", "pattern_instance_id", "risk",
		"mitigation", "reason", "created_at").
		From("failure_modes").Where(window).OrderBy("created_at", "id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, &StoreError{Op: "week failures", Err: err}
	}
	defer failureRows.Close()
	for failureRows.Next() {
		var m FailureMode
		if err := failureRows.Scan(&m.ID, &m.PatternInstanceID, &m.Risk,
			&m.Mitigation, &m.Reason, &m.CreatedAt); err != nil {
			return nil, &StoreError{Op: "week failures", Err: err}
		}
		report.Failures = append(report.Failures, m)
	}
	if err := failureRows.Err(); err != nil {
		return nil, &StoreError{Op: "week failures", Err: err}
	}

	overrideRows, err := overrideSelect().Where(window).OrderBy("created_at", "id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, &StoreError{Op: "week overrides", Err: err}
	}
	defer overrideRows.Close()
	report.Overrides, err = collectOverrides(overrideRows)
	if err != nil {
		return nil, err
	}

	return report, nil
}

func overrideSelect() sq.SelectBuilder {
	return sq.Select("id", "run_id", "item_id", "requires_override", "reason",
		"resolved", "operator", "decided_at", "created_at").
		From("override_decisions")
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawItem(row rowScanner) (*RawItem, error) {
	var item RawItem
	var posted sql.NullTime
	err := row.Scan(&item.ID, &item.Title, &item.URL, &item.Author,
		&item.Score, &item.Descendants, &posted, &item.FetchedAt, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if posted.Valid {
		item.Posted = posted.Time
	}
	return &item, nil
}

func scanOverride(row rowScanner) (*OverrideDecision, error) {
	var d OverrideDecision
	var decided sql.NullTime
	err := row.Scan(&d.ID, &d.RunID, &d.ItemID, &d.RequiresOverride, &d.Reason,
		&d.Resolved, &d.Operator, &decided, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if decided.Valid {
		d.DecidedAt = decided.Time
	}
	return &d, nil
}

func collectOverrides(rows *sql.Rows) ([]OverrideDecision, error) {
	var out []OverrideDecision
	for rows.Next() {
		d, err := scanOverride(rows)
		if err != nil {
			return nil, &StoreError{Op: "scan override", Err: err}
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "scan override", Err: err}
	}
	return out, nil
}
