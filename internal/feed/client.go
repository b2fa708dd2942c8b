package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/newsreaper/newsreaper/internal/config"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
)

// RawItem is one fetched feed item, normalized from the upstream payload.
// Optional upstream fields missing from the payload stay at their zero value.
type RawItem struct {
	ID          string
	Title       string
	URL         string
	By          string
	Score       int
	Descendants int
	Posted      time.Time
	FetchedAt   time.Time
}

// User is an upstream author profile.
type User struct {
	ID      string
	Karma   int
	About   string
	Created time.Time
}

// BatchResult pairs an attempted id with either its item or the error that
// prevented fetching it. Exactly one of Item and Err is set.
type BatchResult struct {
	ID   string
	Item *RawItem
	Err  error
}

// Client fetches the ranked feed and item details over HTTP. Every network
// call first acquires a token from the shared rate limiter; cache hits skip
// both the limiter and the network.
type Client struct {
	cfg     config.FeedConfig
	http    *http.Client
	limiter *rate.Limiter
	cache   *Cache
	now     func() time.Time // injectable for deterministic tests

	// retryBase overrides the initial backoff delay; tests shrink it.
	retryBase time.Duration
}

// NewClient builds a Client from the feed configuration.
func NewClient(cfg config.FeedConfig) *Client {
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateBurst),
		cache:     NewCache(),
		now:       time.Now,
		retryBase: backoffInitial,
	}
}

// ResetCache discards all cached responses. Called at the start of each run.
func (c *Client) ResetCache() {
	c.cache.Reset()
}

// FetchRanking returns the top count external ids of the ranked feed.
// The call is retried with exponential backoff up to the configured attempt
// limit; after that the last *UpstreamError is surfaced.
func (c *Client) FetchRanking(ctx context.Context, count int) ([]string, error) {
	url := c.cfg.BaseURL + "/topstories.json"

	bo := newBackoff(c.retryBase)
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err := c.get(ctx, "ranking", url)
		if errors.Is(err, errStatusNotFound) {
			err = &UpstreamError{Op: "ranking", Status: http.StatusNotFound}
		}
		if err == nil {
			var ids []int64
			if jerr := json.Unmarshal(body, &ids); jerr != nil {
				err = &UpstreamError{Op: "ranking", Err: fmt.Errorf("decode payload: %w", jerr)}
			} else {
				c.cache.Put(url, body, c.cfg.CacheTTL)
				if count < len(ids) {
					ids = ids[:count]
				}
				out := make([]string, len(ids))
				for i, id := range ids {
					out[i] = strconv.FormatInt(id, 10)
				}
				slog.Info("feed: ranking fetched", "count", len(out))
				return out, nil
			}
		}

		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}
		wait := bo.next()
		slog.Warn("feed: ranking fetch failed, will retry",
			"attempt", attempt, "retry_in", wait, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// FetchItem returns the item with the given external id. Deleted or unknown
// ids produce a *NotFoundError; transport and decode failures produce a
// *UpstreamError.
func (c *Client) FetchItem(ctx context.Context, id string) (*RawItem, error) {
	w, err := c.fetchWireItem(ctx, id)
	if err != nil {
		return nil, err
	}

	item := &RawItem{
		ID:          strconv.FormatInt(w.ID, 10),
		Title:       w.Title,
		URL:         w.URL,
		By:          w.By,
		Score:       w.Score,
		Descendants: w.Descendants,
		FetchedAt:   c.now().UTC(),
	}
	if w.Time > 0 {
		item.Posted = time.Unix(w.Time, 0).UTC()
	}
	return item, nil
}

// FetchBatch fans FetchItem out across a bounded worker pool. Every id is
// attempted exactly once; individual failures are recorded in the result
// slice and never abort the batch. Result order matches the input order.
func (c *Client) FetchBatch(ctx context.Context, ids []string) []BatchResult {
	results := make([]BatchResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			item, err := c.FetchItem(gctx, id)
			results[i] = BatchResult{ID: id, Item: item, Err: err}
			return nil // per-id errors stay in the result, the pool keeps going
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.Info("feed: batch fetch complete",
		"total", len(ids), "succeeded", len(ids)-failed, "failed", failed)
	return results
}

// FetchUser returns the author profile for the given username.
func (c *Client) FetchUser(ctx context.Context, id string) (*User, error) {
	url := fmt.Sprintf("%s/user/%s.json", c.cfg.BaseURL, id)

	body, err := c.get(ctx, "user", url)
	if errors.Is(err, errStatusNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	if isNullPayload(body) {
		c.cache.Put(url, body, c.cfg.CacheTTL)
		return nil, &NotFoundError{ID: id}
	}

	var w wireUser
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, &UpstreamError{Op: "user", Err: fmt.Errorf("decode user %s: %w", id, err)}
	}
	c.cache.Put(url, body, c.cfg.CacheTTL)
	u := &User{ID: w.ID, Karma: w.Karma, About: w.About}
	if w.Created > 0 {
		u.Created = time.Unix(w.Created, 0).UTC()
	}
	return u, nil
}

// errStatusNotFound marks an upstream 404; callers translate it into a
// *NotFoundError carrying the id they asked for.
var errStatusNotFound = errors.New("feed: upstream returned 404")

// get performs one cache-checked, rate-limited GET and returns the body.
// It never caches: callers cache the body only after the payload decoded,
// so a malformed response is always re-fetched on retry.
func (c *Client) get(ctx context.Context, op, url string) ([]byte, error) {
	if body, ok := c.cache.Get(url); ok {
		slog.Debug("feed: cache hit", "url", url)
		return body, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errStatusNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Op: op, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// isNullPayload reports whether body is the upstream's empty-result marker.
func isNullPayload(body []byte) bool {
	s := string(body)
	return s == "" || s == "null" || s == "null\n"
}

// wireItem mirrors the upstream item payload. Optional fields tolerate
// absence by staying zero-valued.
type wireItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	By          string  `json:"by"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Time        int64   `json:"time"`
	Kids        []int64 `json:"kids"`
	Text        string  `json:"text"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
}

type wireUser struct {
	ID      string `json:"id"`
	Karma   int    `json:"karma"`
	About   string `json:"about"`
	Created int64  `json:"created"`
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
