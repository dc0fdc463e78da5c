package querycache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
)

// entry is the mutable state behind one query key. Every field is guarded by mu.
type entry struct {
	mu sync.Mutex

	key       cache.QueryKey
	op        *cache.Operation
	status    cache.Status
	pages     []cache.Page
	hasMore   bool
	nextParam any

	err    error
	failed *failedFetch

	lastFetchedAt time.Time
	stale         bool
	// generation is bumped by Invalidate so a page-1 fetch that started before
	// the invalidation does not clear the stale flag.
	generation uint64

	flight    *flight
	listeners map[uint64]Listener
}

// failedFetch records which page to request again on Retry.
type failedFetch struct {
	param any
	first bool
}

// flight is the single outstanding page fetch of an entry. generation is the
// entry generation the fetch started under.
type flight struct {
	param      any
	first      bool
	generation uint64
	prevStatus cache.Status
	startedAt  time.Time
	done       chan struct{}
	err        error
	cancel     context.CancelFunc
}

func newEntry(key cache.QueryKey) *entry {
	return &entry{
		key:       key,
		status:    cache.StatusIdle,
		listeners: map[uint64]Listener{},
	}
}

func (e *entry) listenerList() []Listener {
	out := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		out = append(out, l)
	}
	return out
}

// FetchNext appends the page after the last stored one. It is a no-op returning
// the current entry when a fetch is already outstanding, when the key was never
// fetched, when the last page was terminal, or when page 1 itself failed.
func (c *Cache) FetchNext(ctx context.Context, key cache.QueryKey) (cache.Entry, error) {
	e, ok := c.entries.Load(key.ID())
	if !ok {
		return cache.Entry{Key: key, Status: cache.StatusIdle}, nil
	}

	e.mu.Lock()
	switch {
	case e.flight != nil,
		e.op == nil,
		e.status == cache.StatusIdle,
		!e.hasMore,
		e.status == cache.StatusError && e.failed != nil && e.failed.first:
		snap := c.snapshotLocked(e)
		e.mu.Unlock()
		return snap, nil
	}

	f := c.startLocked(e, e.nextParam, false)
	snap, listeners := c.snapshotLocked(e), e.listenerList()
	e.mu.Unlock()

	notify(listeners, snap)
	return c.wait(ctx, e, f)
}

// startLocked launches a fetch of param. first replaces all pages on success,
// otherwise the page is appended. Callers hold e.mu and have checked that no
// flight is outstanding, which is what keeps page fetches strictly sequential.
func (c *Cache) startLocked(e *entry, param any, first bool) *flight {
	ctx, cancel := context.WithCancel(c.baseContext())
	f := &flight{
		param:      param,
		first:      first,
		generation: e.generation,
		prevStatus: e.status,
		startedAt:  c.clock.Now(),
		done:       make(chan struct{}),
		cancel:     cancel,
	}
	e.flight = f
	if first {
		e.status = cache.StatusLoading
	} else {
		e.status = cache.StatusFetchingNext
	}

	op := *e.op

	c.metrics.IncFlights()
	c.logger.Debug("page fetch started",
		zap.String("key", e.key.String()),
		zap.String("operation", op.Name),
		zap.Any("page_param", param),
		zap.Bool("first_page", first),
	)

	go c.run(ctx, e, op, f)
	return f
}

func (c *Cache) run(ctx context.Context, e *entry, op cache.Operation, f *flight) {
	defer c.metrics.DecFlights()
	defer f.cancel()

	items, err := op.FetchPage(ctx, f.param)

	e.mu.Lock()
	if e.flight != f {
		// Aborted or reset while the request was outstanding.
		e.mu.Unlock()
		return
	}
	e.flight = nil

	phase := "next"
	if f.first {
		phase = "first"
	}
	logger := c.logger.With(
		zap.String("key", e.key.String()),
		zap.String("operation", op.Name),
		zap.Any("page_param", f.param),
		zap.Duration("elapsed", elapsedSince(c.clock, f.startedAt)),
	)

	if err != nil {
		e.status = cache.StatusError
		e.err = err
		e.failed = &failedFetch{param: f.param, first: f.first}
		c.metrics.RecordFetch(phase, "error")
		logger.Warn("page fetch failed", zap.Error(err))
	} else {
		c.storePageLocked(e, op, f, items)
		c.metrics.RecordFetch(phase, "ok")
		logger.Debug("page fetch finished", zap.Int("items", len(items)), zap.Bool("has_more", e.hasMore))
	}

	f.err = err
	close(f.done)
	snap, listeners := c.snapshotLocked(e), e.listenerList()
	e.mu.Unlock()

	notify(listeners, snap)
}

// storePageLocked applies a successful fetch. Stored pages are never modified:
// a first page gets a fresh slice and a next page is appended to a copy. A
// terminal empty page is not stored unless the operation keeps empty pages.
func (c *Cache) storePageLocked(e *entry, op cache.Operation, f *flight, items []any) {
	page := cache.Page{Param: f.param, Items: items}

	var base []cache.Page
	if !f.first {
		base = e.pages
	}
	candidate := make([]cache.Page, len(base), len(base)+1)
	copy(candidate, base)
	candidate = append(candidate, page)

	next, more := op.NextPageParam(page, candidate)
	if !more && len(items) == 0 && !op.KeepEmptyPages {
		candidate = candidate[:len(candidate)-1]
	}

	e.pages = candidate
	e.hasMore = more
	e.nextParam = nil
	if more {
		e.nextParam = next
	}
	e.status = cache.StatusSuccess
	e.err = nil
	e.failed = nil
	e.lastFetchedAt = c.clock.Now()
	if f.first && e.generation == f.generation {
		e.stale = false
	}
}

// abortLocked cancels the outstanding flight. The entry returns to the status it
// had before the flight and is marked stale; waiters receive cause.
func (c *Cache) abortLocked(e *entry, cause error) {
	f := e.flight
	if f == nil {
		return
	}
	e.flight = nil
	f.cancel()

	e.status = f.prevStatus
	e.stale = true
	f.err = cause
	close(f.done)

	phase := "next"
	if f.first {
		phase = "first"
	}
	c.metrics.RecordFetch(phase, "aborted")
	c.logger.Debug("page fetch aborted", zap.String("key", e.key.String()), zap.Error(cause))
}
