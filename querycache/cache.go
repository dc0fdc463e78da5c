// Package querycache is the process-wide store of paginated query results. It
// de-duplicates concurrent fetches per key, serializes page fetches, tracks
// staleness and notifies subscribers of every transition.
package querycache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/failure"
	"github.com/goliatone/go-query-cache/fetcher"
	"github.com/goliatone/go-query-cache/internal/metrics"
)

// ErrNothingToRetry is returned by Retry when the entry holds no failed fetch.
var ErrNothingToRetry = goerrors.New("no failed fetch to retry", goerrors.CategoryOperation).
	WithTextCode("NOTHING_TO_RETRY")

// Listener receives a snapshot after every status or data transition of a key.
type Listener func(cache.Entry)

// Cache owns every query entry and outstanding fetch for a session.
type Cache struct {
	cfg     Config
	logger  *zap.Logger
	clock   clockwork.Clock
	metrics *metrics.Metrics

	entries     *xsync.MapOf[string, *entry]
	details     cache.CacheService
	detailSlots *xsync.MapOf[string, detailSlot]
	detailSeq   atomic.Uint64

	baseMu     sync.RWMutex
	base       context.Context
	cancelBase context.CancelFunc

	listenerSeq atomic.Uint64
}

// New creates the query cache. Call Reset on logout to drop all state.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		cfg:         DefaultConfig(),
		logger:      zap.NewNop(),
		clock:       clockwork.NewRealClock(),
		entries:     xsync.NewMapOf[string, *entry](),
		detailSlots: xsync.NewMapOf[string, detailSlot](),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.details == nil {
		if err := c.cfg.Validate(); err != nil {
			return nil, err
		}
		store, err := cache.NewDetailStore(c.cfg.Store)
		if err != nil {
			return nil, err
		}
		c.details = store
	}

	c.base, c.cancelBase = context.WithCancel(context.Background())
	return c, nil
}

// Config returns the active configuration.
func (c *Cache) Config() Config { return c.cfg }

func (c *Cache) baseContext() context.Context {
	c.baseMu.RLock()
	defer c.baseMu.RUnlock()
	return c.base
}

func (c *Cache) entryFor(key cache.QueryKey) *entry {
	e, _ := c.entries.LoadOrCompute(key.ID(), func() *entry {
		return newEntry(key)
	})
	return e
}

// Read returns the current state of key without fetching. Keys never fetched
// report StatusIdle.
func (c *Cache) Read(key cache.QueryKey) cache.Entry {
	e, ok := c.entries.Load(key.ID())
	if !ok {
		return cache.Entry{Key: key, Status: cache.StatusIdle}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return c.snapshotLocked(e)
}

// Keys lists every key the cache holds an entry for.
func (c *Cache) Keys() []cache.QueryKey {
	keys := make([]cache.QueryKey, 0, c.entries.Size())
	c.entries.Range(func(_ string, e *entry) bool {
		keys = append(keys, e.key)
		return true
	})
	return keys
}

// EnsureFetched loads the first page of op when its entry is idle or stale and
// otherwise returns the cached entry unchanged. A caller arriving while a fetch
// for the key is outstanding waits for that fetch instead of issuing another.
//
// A fetch that started before an Invalidate of the key is never joined: the
// caller waits for it to settle and then fetches page 1 again.
//
// The returned error is the fetch error of the flight the caller waited on.
// Cached failures are reported through Entry.Err with a nil error. Cancelling
// ctx stops the wait but not the fetch.
func (c *Cache) EnsureFetched(ctx context.Context, op cache.Operation) (cache.Entry, error) {
	if err := validateQuery(op); err != nil {
		return cache.Entry{Key: op.Key, Status: cache.StatusIdle}, err
	}

	e := c.entryFor(op.Key)

	for {
		e.mu.Lock()
		e.op = &op

		f := e.flight
		if f == nil {
			break
		}
		if f.generation == e.generation {
			e.mu.Unlock()
			c.metrics.IncDedupWaits()
			c.logger.Debug("joining outstanding fetch", zap.String("key", op.Key.String()))
			return c.wait(ctx, e, f)
		}
		e.mu.Unlock()

		c.logger.Debug("waiting for fetch started before invalidation", zap.String("key", op.Key.String()))
		select {
		case <-f.done:
		case <-ctx.Done():
			e.mu.Lock()
			snap := c.snapshotLocked(e)
			e.mu.Unlock()
			return snap, ctx.Err()
		}
	}

	if e.status != cache.StatusIdle && !c.isStaleLocked(e) {
		snap := c.snapshotLocked(e)
		e.mu.Unlock()
		return snap, nil
	}

	f := c.startLocked(e, op.InitialPageParam, true)
	snap, listeners := c.snapshotLocked(e), e.listenerList()
	e.mu.Unlock()

	notify(listeners, snap)
	return c.wait(ctx, e, f)
}

// Invalidate marks every entry matched by pred stale and drops matching detail
// reads. The next EnsureFetched of a stale entry refetches page 1 and replaces
// all pages. It returns the number of entries and detail reads matched.
func (c *Cache) Invalidate(pred cache.KeyPredicate) int {
	if pred == nil {
		return 0
	}

	n := 0
	c.entries.Range(func(_ string, e *entry) bool {
		if !pred(e.key) {
			return true
		}

		e.mu.Lock()
		e.stale = true
		e.generation++
		snap, listeners := c.snapshotLocked(e), e.listenerList()
		e.mu.Unlock()

		notify(listeners, snap)
		n++
		return true
	})

	n += c.invalidateDetails(pred)

	c.metrics.AddInvalidated(n)
	c.logger.Debug("invalidated entries", zap.Int("count", n))
	return n
}

// Subscribe registers l for key. The returned function removes it and is safe
// to call more than once. Removing the last subscriber while a fetch is
// outstanding aborts that fetch when AbortOnLastUnsubscribe is set.
func (c *Cache) Subscribe(key cache.QueryKey, l Listener) (unsubscribe func()) {
	e := c.entryFor(key)
	id := c.listenerSeq.Add(1)

	e.mu.Lock()
	e.listeners[id] = l
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()

			delete(e.listeners, id)
			if len(e.listeners) == 0 && e.flight != nil && c.cfg.AbortOnLastUnsubscribe {
				c.abortLocked(e, fetcher.NewAborted(fmt.Sprintf("fetch for %s aborted: no subscribers left", key)))
			}
		})
	}
}

// Retry re-runs the exact fetch that failed for key: page 1 or the failed next page.
func (c *Cache) Retry(ctx context.Context, key cache.QueryKey) (cache.Entry, error) {
	e, ok := c.entries.Load(key.ID())
	if !ok {
		return cache.Entry{Key: key, Status: cache.StatusIdle}, ErrNothingToRetry
	}

	e.mu.Lock()
	if f := e.flight; f != nil {
		e.mu.Unlock()
		return c.wait(ctx, e, f)
	}
	if e.status != cache.StatusError || e.failed == nil || e.op == nil {
		snap := c.snapshotLocked(e)
		e.mu.Unlock()
		return snap, ErrNothingToRetry
	}

	c.logger.Debug("retrying failed fetch", zap.String("key", key.String()), zap.Bool("first_page", e.failed.first))
	f := c.startLocked(e, e.failed.param, e.failed.first)
	snap, listeners := c.snapshotLocked(e), e.listenerList()
	e.mu.Unlock()

	notify(listeners, snap)
	return c.wait(ctx, e, f)
}

// Dismiss clears a stored failure. The entry goes back to Success when it holds
// data and to Idle otherwise.
func (c *Cache) Dismiss(key cache.QueryKey) {
	e, ok := c.entries.Load(key.ID())
	if !ok {
		return
	}

	e.mu.Lock()
	if e.status != cache.StatusError {
		e.mu.Unlock()
		return
	}
	e.err = nil
	e.failed = nil
	if e.lastFetchedAt.IsZero() {
		e.status = cache.StatusIdle
	} else {
		e.status = cache.StatusSuccess
	}
	snap, listeners := c.snapshotLocked(e), e.listenerList()
	e.mu.Unlock()

	notify(listeners, snap)
}

// Failure returns the presentation contract for key, or nil when the entry is
// not in StatusError.
func (c *Cache) Failure(key cache.QueryKey) *failure.Failure {
	snap := c.Read(key)
	if snap.Status != cache.StatusError || snap.Err == nil {
		return nil
	}
	return failure.New(snap.Err,
		func(ctx context.Context) error {
			_, err := c.Retry(ctx, key)
			return err
		},
		func() { c.Dismiss(key) },
	)
}

// Prefetch runs EnsureFetched for every op concurrently and returns the first error.
func (c *Cache) Prefetch(ctx context.Context, ops ...cache.Operation) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		op := op
		g.Go(func() error {
			_, err := c.EnsureFetched(gctx, op)
			return err
		})
	}
	return g.Wait()
}

// Reset aborts every outstanding fetch and drops all entries, subscribers and
// detail reads. Listeners are not notified.
func (c *Cache) Reset() {
	c.baseMu.Lock()
	c.cancelBase()
	c.base, c.cancelBase = context.WithCancel(context.Background())
	c.baseMu.Unlock()

	dropped := 0
	c.entries.Range(func(k string, e *entry) bool {
		e.mu.Lock()
		if e.flight != nil {
			c.abortLocked(e, fetcher.NewAborted("query cache reset"))
		}
		e.listeners = map[uint64]Listener{}
		e.mu.Unlock()

		c.entries.Delete(k)
		dropped++
		return true
	})

	c.dropAllDetails()

	c.logger.Info("query cache reset", zap.Int("entries", dropped))
}

// wait blocks until f settles or ctx is done.
func (c *Cache) wait(ctx context.Context, e *entry, f *flight) (cache.Entry, error) {
	select {
	case <-f.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return c.snapshotLocked(e), f.err
	case <-ctx.Done():
		e.mu.Lock()
		defer e.mu.Unlock()
		return c.snapshotLocked(e), ctx.Err()
	}
}

func (c *Cache) isStaleLocked(e *entry) bool {
	if e.stale {
		return true
	}
	if c.cfg.StaleTime <= 0 || e.status != cache.StatusSuccess || e.lastFetchedAt.IsZero() {
		return false
	}
	return c.clock.Since(e.lastFetchedAt) >= c.cfg.StaleTime
}

func (c *Cache) snapshotLocked(e *entry) cache.Entry {
	return cache.Entry{
		Key:           e.key,
		Status:        e.status,
		Pages:         append([]cache.Page(nil), e.pages...),
		Err:           e.err,
		LastFetchedAt: e.lastFetchedAt,
		Stale:         c.isStaleLocked(e),
		HasMore:       e.hasMore,
		NextParam:     e.nextParam,
	}
}

func validateQuery(op cache.Operation) error {
	if op.Kind != cache.KindQuery {
		return goerrors.New(fmt.Sprintf("operation %q is not a query", op.Name), goerrors.CategoryBadInput).
			WithTextCode("NOT_A_QUERY")
	}
	return op.Validate()
}

// notify calls every listener with snap. It must run without holding the entry lock.
func notify(listeners []Listener, snap cache.Entry) {
	for _, l := range listeners {
		l(snap)
	}
}

func elapsedSince(clock clockwork.Clock, t time.Time) time.Duration {
	return clock.Since(t)
}
