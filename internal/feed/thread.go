package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// CommentNode is one node of a fetched comment thread.
type CommentNode struct {
	ID       string
	By       string
	Text     string
	Depth    int
	Children []*CommentNode
}

// FetchThread fetches the comment tree rooted at rootID down to maxDepth
// levels of comments (depth 1 = the root item's direct replies).
//
// The walk is iterative — a work queue with an explicit depth counter per
// node — so memory stays bounded and a malformed or very deep tree cannot
// blow the stack. Upstream ids are assigned monotonically so cycles cannot
// occur, but the depth counter is enforced regardless. Individual comment
// fetch failures prune that subtree and are logged, never fatal.
func (c *Client) FetchThread(ctx context.Context, rootID string, maxDepth int) (*CommentNode, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("feed: thread depth must be positive, got %d", maxDepth)
	}

	rw, err := c.fetchWireItem(ctx, rootID)
	if err != nil {
		return nil, err
	}

	root := &CommentNode{ID: rootID, By: rw.By, Text: rw.Text, Depth: 0}

	// Work queue of (parent node, child ids, child depth) batches.
	type workItem struct {
		parent *CommentNode
		kids   []int64
		depth  int
	}
	queue := []workItem{{parent: root, kids: rw.Kids, depth: 1}}

	var fetched, pruned int
	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]

		if w.depth > maxDepth || len(w.kids) == 0 {
			continue
		}

		ids := make([]string, len(w.kids))
		for i, k := range w.kids {
			ids[i] = strconv.FormatInt(k, 10)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			node, kids, err := c.fetchComment(ctx, id, w.depth)
			if err != nil {
				pruned++
				slog.Warn("feed: comment fetch failed, pruning subtree",
					"id", id, "depth", w.depth, "err", err)
				continue
			}
			fetched++
			w.parent.Children = append(w.parent.Children, node)
			if len(kids) > 0 {
				queue = append(queue, workItem{parent: node, kids: kids, depth: w.depth + 1})
			}
		}
	}

	slog.Info("feed: thread fetched",
		"root", rootID, "comments", fetched, "pruned", pruned, "max_depth", maxDepth)
	return root, nil
}

// fetchComment fetches one comment and returns its node plus child ids.
func (c *Client) fetchComment(ctx context.Context, id string, depth int) (*CommentNode, []int64, error) {
	w, err := c.fetchWireItem(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	node := &CommentNode{
		ID:    strconv.FormatInt(w.ID, 10),
		By:    w.By,
		Text:  w.Text,
		Depth: depth,
	}
	return node, w.Kids, nil
}

// fetchWireItem fetches the raw upstream payload for an id.
func (c *Client) fetchWireItem(ctx context.Context, id string) (*wireItem, error) {
	url := fmt.Sprintf("%s/item/%s.json", c.cfg.BaseURL, id)

	body, err := c.get(ctx, "item", url)
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

	var w wireItem
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, &UpstreamError{Op: "item", Err: fmt.Errorf("decode item %s: %w", id, err)}
	}
	c.cache.Put(url, body, c.cfg.CacheTTL)
	if w.Deleted || w.Dead {
		return nil, &NotFoundError{ID: id}
	}
	return &w, nil
}
