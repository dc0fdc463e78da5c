// Package mutation runs create, update and delete operations. A successful
// mutation invalidates the query keys it affects before returning; a failed one
// keeps its variables so it can be retried without the caller resupplying them.
package mutation

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/failure"
	"github.com/goliatone/go-query-cache/internal/metrics"
)

var (
	// ErrMutationInProgress is returned when an entry is asked to run while its
	// previous attempt has not settled.
	ErrMutationInProgress = goerrors.New("mutation already in progress", goerrors.CategoryConflict).
				WithTextCode("MUTATION_IN_PROGRESS")

	// ErrNothingToRetry is returned by Retry when the entry has no failed attempt.
	ErrNothingToRetry = goerrors.New("no failed mutation to retry", goerrors.CategoryOperation).
				WithTextCode("NOTHING_TO_RETRY")
)

// Invalidator marks query entries stale. *querycache.Cache satisfies it.
type Invalidator interface {
	Invalidate(pred cache.KeyPredicate) int
}

// Cache tracks mutation entries for a session.
type Cache struct {
	queries Invalidator
	logger  *zap.Logger
	clock   clockwork.Clock
	metrics *metrics.Metrics

	entries *xsync.MapOf[string, *Entry]
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for UpdatedAt.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMetrics records mutation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a mutation cache that invalidates through queries. queries may be
// nil when no query cache is in use.
func New(queries Invalidator, opts ...Option) *Cache {
	c := &Cache{
		queries: queries,
		logger:  zap.NewNop(),
		clock:   clockwork.NewRealClock(),
		entries: xsync.NewMapOf[string, *Entry](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build registers a new idle entry for op.
func (c *Cache) Build(op cache.Operation) (*Entry, error) {
	if op.Kind != cache.KindMutation {
		return nil, goerrors.New(fmt.Sprintf("operation %q is not a mutation", op.Name), goerrors.CategoryBadInput).
			WithTextCode("NOT_A_MUTATION")
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}

	e := &Entry{
		id:        uuid.NewString(),
		op:        op,
		owner:     c,
		status:    StatusIdle,
		updatedAt: c.clock.Now(),
	}
	c.entries.Store(e.id, e)
	return e, nil
}

// Mutate builds an entry for op and runs it once. A successful entry is
// acknowledged and dropped immediately. On failure the entry stays registered
// and the returned error is a *failure.Failure whose Retry re-sends vars; the
// entry is dropped once a retry succeeds or the failure is dismissed.
func (c *Cache) Mutate(ctx context.Context, op cache.Operation, vars any) (any, error) {
	e, err := c.Build(op)
	if err != nil {
		return nil, err
	}

	result, err := e.Mutate(ctx, vars)
	if err != nil {
		s := e.Snapshot()
		if s.Status != StatusError || s.Err == nil {
			return nil, err
		}
		return nil, failure.New(s.Err,
			func(ctx context.Context) error {
				if _, err := e.Retry(ctx); err != nil {
					return err
				}
				c.entries.Delete(e.id)
				return nil
			},
			func() { _ = e.Reset() },
		)
	}
	c.entries.Delete(e.id)
	return result, nil
}

// Get returns the entry registered under id.
func (c *Cache) Get(id string) (*Entry, bool) {
	return c.entries.Load(id)
}

// Entries returns a snapshot of every registered entry.
func (c *Cache) Entries() []State {
	out := make([]State, 0, c.entries.Size())
	c.entries.Range(func(_ string, e *Entry) bool {
		out = append(out, e.Snapshot())
		return true
	})
	return out
}

// Pending returns the entries with an attempt in progress.
func (c *Cache) Pending() []State {
	var out []State
	for _, s := range c.Entries() {
		if s.Status == StatusPending {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops every entry. Attempts still in progress run to completion but are
// no longer tracked.
func (c *Cache) Reset() {
	n := c.entries.Size()
	c.entries.Clear()
	c.logger.Info("mutation cache reset", zap.Int("entries", n))
}

func (c *Cache) invalidate(preds []cache.KeyPredicate) int {
	if c.queries == nil {
		return 0
	}
	n := 0
	for _, pred := range preds {
		if pred != nil {
			n += c.queries.Invalidate(pred)
		}
	}
	return n
}

func (c *Cache) elapsed(start time.Time) time.Duration {
	return c.clock.Since(start)
}
