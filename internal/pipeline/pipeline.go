package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/newsreaper/newsreaper/internal/catalog"
	"github.com/newsreaper/newsreaper/internal/config"
	"github.com/newsreaper/newsreaper/internal/feed"
	"github.com/newsreaper/newsreaper/internal/stage"
	"github.com/newsreaper/newsreaper/internal/store"
)

// Run identifies one ingestion + scoring pass. It is threaded explicitly
// through every component so concurrent runs (and tests) never share state.
type Run struct {
	ID        string
	StartedAt time.Time
	DryRun    bool
}

// Summary is the user-visible outcome of a run. Nothing fails silently:
// every failed item appears in Failures with its reason.
type Summary struct {
	RunID           string            `json:"run_id"`
	DryRun          bool              `json:"dry_run"`
	ItemsTotal      int               `json:"items_total"`
	Succeeded       int               `json:"succeeded"`
	Failed          int               `json:"failed"`
	Flagged         int               `json:"flagged"`
	AutoCleared     int               `json:"auto_cleared"`
	PendingOverride int               `json:"pending_override"`
	Failures        map[string]string `json:"failures,omitempty"`
}

// Orchestrator drives one run end to end: ranking fetch, bounded batch
// fetch, then the four stages per item in fixed order, committing each
// stage's record before the next stage reads it.
type Orchestrator struct {
	feed    *feed.Client
	store   *store.Store
	catalog *catalog.Catalog
	cfg     *config.Config

	newRunID func() string
	now      func() time.Time
}

// New builds an Orchestrator over its collaborators.
func New(client *feed.Client, st *store.Store, cat *catalog.Catalog, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		feed:     client,
		store:    st,
		catalog:  cat,
		cfg:      cfg,
		newRunID: uuid.NewString,
		now:      time.Now,
	}
}

// Execute performs one run. Dry-run executes every stage and produces the
// same summary, but suppresses all store writes so the database is
// guaranteed unchanged; reading prior state is still allowed.
//
// Per-item failures are isolated and recorded; only run-level failures
// (unreachable upstream, store unavailable) return an error.
func (o *Orchestrator) Execute(ctx context.Context, dryRun bool) (*Summary, error) {
	run := Run{ID: o.newRunID(), StartedAt: o.now().UTC(), DryRun: dryRun}
	log := slog.With("run_id", run.ID, "dry_run", dryRun)
	log.Info("run started")

	if !dryRun {
		if err := o.store.BeginRun(ctx, store.Run{
			ID: run.ID, StartedAt: run.StartedAt, DryRun: dryRun,
		}); err != nil {
			return nil, fmt.Errorf("pipeline: record run start: %w", err)
		}
	}

	// Fresh cache per run; no cross-run staleness.
	o.feed.ResetCache()

	summary := &Summary{
		RunID:    run.ID,
		DryRun:   dryRun,
		Failures: make(map[string]string),
	}

	ids, err := o.feed.FetchRanking(ctx, o.cfg.Feed.RankingCount)
	if err != nil {
		o.finish(ctx, run, "failed", summary)
		return nil, fmt.Errorf("pipeline: fetch ranking: %w", err)
	}
	summary.ItemsTotal = len(ids)

	for _, result := range o.feed.FetchBatch(ctx, ids) {
		if result.Err != nil {
			o.recordFailure(summary, result.ID, result.Err, log)
			continue
		}
		state, flagged, err := o.processItem(ctx, run, result.Item)
		if err != nil {
			o.recordFailure(summary, result.ID, err, log)
			continue
		}
		summary.Succeeded++
		if flagged {
			summary.Flagged++
		}
		switch state {
		case stage.StateAutoCleared:
			summary.AutoCleared++
		case stage.StatePendingOverride:
			summary.PendingOverride++
		}
	}

	o.finish(ctx, run, "completed", summary)
	log.Info("run finished",
		"total", summary.ItemsTotal, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "flagged", summary.Flagged,
		"auto_cleared", summary.AutoCleared,
		"pending_override", summary.PendingOverride)
	return summary, nil
}

func (o *Orchestrator) recordFailure(summary *Summary, id string, err error, log *slog.Logger) {
	summary.Failed++
	summary.Failures[id] = err.Error()
	log.Warn("item failed", "item_id", id, "err", err)
}

func (o *Orchestrator) finish(ctx context.Context, run Run, status string, summary *Summary) {
	if run.DryRun {
		return
	}
	if err := o.store.FinishRun(ctx, run.ID, status,
		summary.ItemsTotal, summary.Failed); err != nil {
		slog.Error("record run finish", "run_id", run.ID, "err", err)
	}
}

// processItem drives one item through the stage state machine. The raw item
// commits before the ambiguity stage runs, and each stage's record commits
// before the next stage reads it; a stage failure leaves the item in the
// failed state and is reported, never silently skipped.
func (o *Orchestrator) processItem(ctx context.Context, run Run, fetched *feed.RawItem) (stage.State, bool, error) {
	state := stage.StateFetched
	item := store.RawItem{
		ID:          fetched.ID,
		Title:       fetched.Title,
		URL:         fetched.URL,
		Author:      fetched.By,
		Score:       fetched.Score,
		Descendants: fetched.Descendants,
		Posted:      fetched.Posted,
		FetchedAt:   fetched.FetchedAt,
	}

	if !run.DryRun {
		if err := o.store.UpsertRawItem(ctx, item); err != nil {
			return fail(state, false, err)
		}
		// Downstream stages read the committed row, not the in-flight value.
		stored, err := o.store.RawItemByID(ctx, item.ID)
		if err != nil {
			return fail(state, false, err)
		}
		item = *stored
	}

	amb := stage.Ambiguity(item, o.cfg.Stages)
	if !run.DryRun {
		if _, err := o.store.AppendAmbiguity(ctx, store.AmbiguityFlag{
			RunID: run.ID, ItemID: item.ID,
			Score: amb.Value, Flagged: amb.Flagged, Reason: amb.Reason,
		}); err != nil {
			return fail(state, false, err)
		}
	}
	state, _ = stage.Transition(state, stage.StateAmbiguityScored)
	slog.Debug("ambiguity scored", "run_id", run.ID, "item_id", item.ID,
		"score", amb.Value, "flagged", amb.Flagged)

	matches := stage.MinePatterns(item, o.catalog, o.cfg.Stages)
	state, _ = stage.Transition(state, stage.StatePatternMined)

	if len(matches) == 0 {
		state, _ = stage.Transition(state, stage.StateAutoCleared)
		return state, amb.Flagged, nil
	}

	var worst stage.RiskAssessment
	for _, m := range matches {
		var instanceID int64
		if !run.DryRun {
			var err error
			instanceID, err = o.store.AppendPattern(ctx, store.PatternInstance{
				RunID: run.ID, ItemID: item.ID,
				PatternID: m.PatternID, Confidence: m.Confidence,
			})
			if err != nil {
				return fail(state, amb.Flagged, err)
			}
		}

		risk := stage.AnalyzeRisk(item, o.cfg.Stages)
		if !run.DryRun {
			if _, err := o.store.AppendFailureMode(ctx, store.FailureMode{
				PatternInstanceID: instanceID,
				Risk:              risk.Risk,
				Mitigation:        risk.Mitigation,
				Reason:            risk.Reason,
			}); err != nil {
				return fail(state, amb.Flagged, err)
			}
		}
		if risk.Risk >= worst.Risk {
			worst = risk
		}
	}
	state, _ = stage.Transition(state, stage.StateRiskAssessed)

	decision := o.gate(matches, worst.Risk)
	if !decision.RequiresOverride {
		state, _ = stage.Transition(state, stage.StateAutoCleared)
		return state, amb.Flagged, nil
	}

	if !run.DryRun {
		if _, err := o.store.AppendOverride(ctx, store.OverrideDecision{
			RunID: run.ID, ItemID: item.ID,
			RequiresOverride: true, Reason: decision.Reason,
		}); err != nil {
			return fail(state, amb.Flagged, err)
		}
	}
	state, _ = stage.Transition(state, stage.StatePendingOverride)
	slog.Info("item pending override", "run_id", run.ID, "item_id", item.ID,
		"risk", worst.Risk, "reason", decision.Reason)
	return state, amb.Flagged, nil
}

// gate evaluates the override gate across every matched template; any single
// template requiring an override is sufficient.
func (o *Orchestrator) gate(matches []stage.PatternMatch, risk float64) stage.GateDecision {
	last := stage.GateDecision{}
	for _, m := range matches {
		tpl, ok := o.catalog.Get(m.PatternID)
		if !ok {
			continue
		}
		d := stage.EvaluateOverride(tpl, risk, o.cfg.Stages)
		if d.RequiresOverride {
			return d
		}
		last = d
	}
	return last
}

func fail(state stage.State, flagged bool, err error) (stage.State, bool, error) {
	s, _ := stage.Transition(state, stage.StateFailed)
	return s, flagged, err
}
