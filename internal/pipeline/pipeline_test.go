package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsreaper/newsreaper/internal/catalog"
	"github.com/newsreaper/newsreaper/internal/config"
	"github.com/newsreaper/newsreaper/internal/feed"
	"github.com/newsreaper/newsreaper/internal/store"
)

// newUpstream serves a fixed ranking and item set over httptest.
func newUpstream(t *testing.T, ranking string, items map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ranking)
	})
	for id, body := range items {
		body := body
		mux.HandleFunc("/item/"+id+".json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Feed.BaseURL = baseURL
	cfg.Feed.RankingCount = 10
	cfg.Feed.MaxAttempts = 2
	cfg.Feed.RateLimitRPS = 1000
	cfg.Feed.RateBurst = 1000
	cfg.Feed.Concurrency = 2
	cfg.Feed.Timeout = 5 * time.Second
	cfg.Feed.CacheTTL = time.Minute

	cfg.Stages.AmbiguityThreshold = 0.78
	cfg.Stages.MinConfidence = 0.5
	cfg.Stages.OverrideThreshold = 0.9
	cfg.Stages.EngagementWeight = 0.05
	cfg.Stages.SpamWeight = 0.55
	cfg.Stages.SentimentWeight = 0.40
	cfg.Stages.LowEngagementThreshold = 5
	cfg.Stages.SpamDomains = []string{"example.com"}
	cfg.Stages.SensitiveDomains = []string{"financial", "security"}
	return cfg
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{Templates: []catalog.Template{{
		ID:     "clickbait-surge",
		Domain: "general",
		Trigger: catalog.Trigger{
			TitleContains: []string{"you won't believe"},
			MinComments:   10,
		},
		Weights: catalog.Weights{TitleMatch: 0.75, Engagement: 0.25},
	}}}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenAndInit(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const (
	item101 = `{"id": 101, "title": "You won't believe this!!",
		"url": "https://example.com/post", "by": "alice",
		"score": 1, "descendants": 80, "time": 1700000000}`
	item102 = `{"id": 102, "title": "A quiet update to the build system",
		"url": "https://blog.example.org/update", "by": "bob",
		"score": 10, "descendants": 3, "time": 1700000100}`
)

func TestExecute_EndToEnd(t *testing.T) {
	srv := newUpstream(t, "[101, 102]", map[string]string{
		"101": item101, "102": item102,
	})
	cfg := testConfig(srv.URL)
	st := newTestStore(t)
	o := New(feed.NewClient(cfg.Feed), st, testCatalog(), cfg)
	ctx := context.Background()

	summary, err := o.Execute(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ItemsTotal)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Flagged)
	assert.Equal(t, 1, summary.AutoCleared)
	assert.Equal(t, 1, summary.PendingOverride)
	assert.Empty(t, summary.Failures)

	// Item 101: flagged, one pattern instance, high risk, pending override.
	flag, err := st.AmbiguityByItem(ctx, summary.RunID, "101")
	require.NoError(t, err)
	assert.True(t, flag.Flagged)
	assert.GreaterOrEqual(t, flag.Score, 0.78)

	patterns, err := st.PatternsByItem(ctx, summary.RunID, "101")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "clickbait-surge", patterns[0].PatternID)
	assert.Greater(t, patterns[0].Confidence, 0.0)

	failure, err := st.FailureModeByInstance(ctx, patterns[0].ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, failure.Risk, 0.9)
	assert.Equal(t, "auto-defer", failure.Mitigation)

	decision, err := st.OverrideByItem(ctx, summary.RunID, "101")
	require.NoError(t, err)
	assert.True(t, decision.RequiresOverride)
	assert.Equal(t, store.ResolutionPending, decision.Resolved)

	// Item 102: scored but not flagged, no pattern, no decision.
	flag, err = st.AmbiguityByItem(ctx, summary.RunID, "102")
	require.NoError(t, err)
	assert.False(t, flag.Flagged)

	patterns, err = st.PatternsByItem(ctx, summary.RunID, "102")
	require.NoError(t, err)
	assert.Empty(t, patterns)

	_, err = st.OverrideByItem(ctx, summary.RunID, "102")
	assert.Error(t, err, "auto-cleared items have no override decision")

	// Run row records the outcome.
	run, err := st.GetRun(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.ItemsTotal)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestExecute_PartialFailureIsolation(t *testing.T) {
	// Item 103 is in the ranking but missing upstream.
	srv := newUpstream(t, "[101, 103, 102]", map[string]string{
		"101": item101, "102": item102,
	})
	cfg := testConfig(srv.URL)
	st := newTestStore(t)
	o := New(feed.NewClient(cfg.Feed), st, testCatalog(), cfg)
	ctx := context.Background()

	summary, err := o.Execute(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.ItemsTotal)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Contains(t, summary.Failures, "103")
	assert.Contains(t, summary.Failures["103"], "not found")

	// The healthy items still made it through.
	_, err = st.RawItemByID(ctx, "101")
	require.NoError(t, err)
	_, err = st.RawItemByID(ctx, "102")
	require.NoError(t, err)
	_, err = st.RawItemByID(ctx, "103")
	assert.Error(t, err)

	run, err := st.GetRun(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ItemsFailed)
}

func TestExecute_DryRunLeavesStoreUntouched(t *testing.T) {
	srv := newUpstream(t, "[101, 102]", map[string]string{
		"101": item101, "102": item102,
	})
	cfg := testConfig(srv.URL)
	st := newTestStore(t)
	o := New(feed.NewClient(cfg.Feed), st, testCatalog(), cfg)
	ctx := context.Background()

	summary, err := o.Execute(ctx, true)
	require.NoError(t, err)

	// Full scoring report, same shape as a real run.
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Flagged)
	assert.Equal(t, 1, summary.PendingOverride)
	assert.Equal(t, 1, summary.AutoCleared)

	// Nothing was written.
	_, err = st.RawItemByID(ctx, "101")
	assert.Error(t, err)
	pending, err := st.PendingOverrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, err = st.GetRun(ctx, summary.RunID)
	assert.Error(t, err)
}

func TestExecute_RerunIsIdempotentPerRun(t *testing.T) {
	srv := newUpstream(t, "[101]", map[string]string{"101": item101})
	cfg := testConfig(srv.URL)
	st := newTestStore(t)
	o := New(feed.NewClient(cfg.Feed), st, testCatalog(), cfg)
	ctx := context.Background()

	first, err := o.Execute(ctx, false)
	require.NoError(t, err)
	second, err := o.Execute(ctx, false)
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, second.RunID)

	// Same item, two runs: the raw row is shared, stage records are per run.
	item, err := st.RawItemByID(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, "101", item.ID)

	for _, runID := range []string{first.RunID, second.RunID} {
		patterns, err := st.PatternsByItem(ctx, runID, "101")
		require.NoError(t, err)
		assert.Len(t, patterns, 1, "run %s", runID)
	}

	// Scores are deterministic across runs.
	f1, err := st.AmbiguityByItem(ctx, first.RunID, "101")
	require.NoError(t, err)
	f2, err := st.AmbiguityByItem(ctx, second.RunID, "101")
	require.NoError(t, err)
	assert.Equal(t, f1.Score, f2.Score)
}

func TestExecute_CancelMidRunLeavesStoreConsistent(t *testing.T) {
	srv := newUpstream(t, "[101, 102]", map[string]string{
		"101": item101, "102": item102,
	})
	cfg := testConfig(srv.URL)
	// One burst token covers the ranking fetch; every item fetch then
	// blocks on the limiter until the context is cancelled.
	cfg.Feed.MaxAttempts = 1
	cfg.Feed.RateLimitRPS = 0.001
	cfg.Feed.RateBurst = 1
	cfg.Feed.Concurrency = 1
	st := newTestStore(t)
	o := New(feed.NewClient(cfg.Feed), st, testCatalog(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	summary, err := o.Execute(ctx, false)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second, "run must abort promptly")

	// Every in-flight item failed with its context error recorded.
	assert.Equal(t, 2, summary.ItemsTotal)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	require.Contains(t, summary.Failures, "101")
	require.Contains(t, summary.Failures, "102")
	assert.Contains(t, summary.Failures["101"], "context canceled")

	// The store stays self-consistent: the run row is closed with the
	// failure counts, and no partial item or stage rows were committed.
	run, err := st.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.ItemsFailed)
	assert.False(t, run.FinishedAt.IsZero())

	_, err = st.RawItemByID(context.Background(), "101")
	assert.Error(t, err)
	pending, err := st.PendingOverrides(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExecute_RankingFailureAbortsRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	st := newTestStore(t)
	o := New(feed.NewClient(cfg.Feed), st, testCatalog(), cfg)

	_, err := o.Execute(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch ranking")
}
