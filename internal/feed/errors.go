package feed

import "fmt"

// UpstreamError reports that the feed API was unreachable, returned a
// non-2xx status, or produced a payload that could not be decoded.
// It is retryable.
type UpstreamError struct {
	Op     string // operation that failed: "ranking", "item", "user"
	Status int    // HTTP status, 0 when the request never completed
	Err    error  // underlying cause, may be nil
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("feed: %s: upstream status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("feed: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NotFoundError reports an individual item that the upstream no longer has
// (deleted or dead). It is not retryable; callers treat it as an explicit
// missing result rather than a failure of the batch.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("feed: item %s not found", e.ID)
}
