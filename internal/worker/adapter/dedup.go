package adapter

import (
	"container/list"
	"context"
	"sync"

	"fuzoj/internal/worker/formatter"
	"fuzoj/internal/worker/model"
	"fuzoj/internal/worker/workspace"
)

// seenEntry tracks one submission id the cache has already reported a
// result for, in LRU order.
type seenEntry struct {
	submissionID string
}

// dedupCache is a bounded LRU set of submission ids, grounded on the
// gateway's LRUCache but trimmed to a set (no value, no TTL): once a
// submission id is seen it stays seen until evicted for space.
type dedupCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int
}

func newDedupCache(maxSize int) *dedupCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &dedupCache{
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func (c *dedupCache) seen(submissionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[submissionID]; ok {
		c.order.MoveToFront(elem)
		return true
	}
	return false
}

func (c *dedupCache) mark(submissionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[submissionID]; ok {
		c.order.MoveToFront(elem)
		return
	}
	elem := c.order.PushFront(seenEntry{submissionID: submissionID})
	c.items[submissionID] = elem
	if len(c.items) > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			delete(c.items, oldest.Value.(seenEntry).submissionID)
			c.order.Remove(oldest)
		}
	}
}

// cachedAdapter decorates an Adapter with an in-process dedup cache.
// FetchSubmission and FetchProblem pass straight through — duplicate
// delivery is the UI's queue semantics, not the worker's. The cache
// guards ReportResult: once a result for a submission id has been posted
// successfully, a later report for the same id is skipped (nil returned,
// nothing posted) while that id is still in the cache.
type cachedAdapter struct {
	inner Adapter
	seen  *dedupCache
}

// NewCached wraps inner with a dedup cache bounded to maxEntries ids.
func NewCached(inner Adapter, maxEntries int) Adapter {
	return &cachedAdapter{inner: inner, seen: newDedupCache(maxEntries)}
}

func (c *cachedAdapter) FetchSubmission(ctx context.Context, ws workspace.Workspace) (*Fetched, error) {
	return c.inner.FetchSubmission(ctx, ws)
}

func (c *cachedAdapter) FetchProblem(ctx context.Context, problemID string, ws workspace.Workspace) (model.ProblemSpec, error) {
	return c.inner.FetchProblem(ctx, problemID, ws)
}

func (c *cachedAdapter) ReportResult(ctx context.Context, submissionID string, payloads formatter.Payloads) error {
	if c.seen.seen(submissionID) {
		return nil
	}
	if err := c.inner.ReportResult(ctx, submissionID, payloads); err != nil {
		return err
	}
	c.seen.mark(submissionID)
	return nil
}
