// Package feed is the ingestion client for the upstream ranked content feed.
//
// client.go provides Client with FetchRanking (retried with exponential
// backoff), FetchItem (cache-checked, rate-limited), FetchBatch (bounded
// errgroup fan-out with per-id failure isolation), and FetchUser. thread.go
// adds FetchThread, an iterative depth-bounded comment-tree walk.
//
// All outbound requests pass through a shared token-bucket rate limiter;
// cache.go's TTL response cache short-circuits both the limiter and the
// network within a run. Failure taxonomy: *UpstreamError is retryable,
// *NotFoundError is an explicit missing result and never retried.
package feed
