package mutation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/failure"
)

// Status is the lifecycle state of a mutation entry.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of an Entry.
type State struct {
	ID        string
	Name      string
	Status    Status
	Variables any
	Result    any
	Err       error
	Attempts  int
	UpdatedAt time.Time
}

// Entry is one mutation instance. It runs at most one attempt at a time.
type Entry struct {
	id    string
	op    cache.Operation
	owner *Cache

	mu        sync.Mutex
	status    Status
	variables any
	result    any
	err       error
	attempts  int
	updatedAt time.Time
}

// ID returns the entry id.
func (e *Entry) ID() string { return e.id }

// Mutate starts a fresh attempt with vars. It returns ErrMutationInProgress if
// the previous attempt has not settled.
func (e *Entry) Mutate(ctx context.Context, vars any) (any, error) {
	if _, err := e.begin(vars, false); err != nil {
		return nil, err
	}
	return e.run(ctx, vars)
}

// Retry re-sends the variables of the last failed attempt.
func (e *Entry) Retry(ctx context.Context) (any, error) {
	vars, err := e.begin(nil, true)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, vars)
}

// begin moves the entry to Pending and returns the variables of the attempt.
// A retry reuses the captured variables and ignores vars.
func (e *Entry) begin(vars any, retry bool) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusPending {
		return nil, fmt.Errorf("mutation %s (%s): %w", e.op.Name, e.id, ErrMutationInProgress)
	}
	if retry {
		if e.status != StatusError {
			return nil, fmt.Errorf("mutation %s (%s) is %s: %w", e.op.Name, e.id, e.status, ErrNothingToRetry)
		}
		vars = e.variables
	}

	e.status = StatusPending
	e.variables = vars
	e.result = nil
	e.err = nil
	e.attempts++
	e.updatedAt = e.owner.clock.Now()
	return vars, nil
}

func (e *Entry) run(ctx context.Context, vars any) (any, error) {
	c := e.owner
	start := c.clock.Now()
	logger := c.logger.With(zap.String("mutation", e.op.Name), zap.String("id", e.id))

	result, err := e.op.Execute(ctx, vars)
	if err != nil {
		e.settle(StatusError, nil, err)
		c.metrics.RecordMutation(e.op.Name, "error")
		logger.Warn("mutation failed", zap.Error(err), zap.Duration("elapsed", c.elapsed(start)))
		return nil, err
	}

	// Invalidation lands before the caller sees the result, so any read after
	// Mutate returns observes the stale entries.
	n := c.invalidate(e.op.InvalidationsFor(vars, result))

	e.settle(StatusSuccess, result, nil)
	c.metrics.RecordMutation(e.op.Name, "ok")
	logger.Debug("mutation succeeded",
		zap.Int("invalidated", n),
		zap.Duration("elapsed", c.elapsed(start)),
	)
	return result, nil
}

func (e *Entry) settle(status Status, result any, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.result = result
	e.err = err
	e.updatedAt = e.owner.clock.Now()
}

// Reset acknowledges a settled entry: it returns to Idle and is dropped from
// its cache.
func (e *Entry) Reset() error {
	e.mu.Lock()
	if e.status == StatusPending {
		e.mu.Unlock()
		return fmt.Errorf("mutation %s (%s): %w", e.op.Name, e.id, ErrMutationInProgress)
	}
	e.status = StatusIdle
	e.variables = nil
	e.result = nil
	e.err = nil
	e.updatedAt = e.owner.clock.Now()
	e.mu.Unlock()

	e.owner.entries.Delete(e.id)
	return nil
}

// Snapshot returns the current state.
func (e *Entry) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		ID:        e.id,
		Name:      e.op.Name,
		Status:    e.status,
		Variables: e.variables,
		Result:    e.result,
		Err:       e.err,
		Attempts:  e.attempts,
		UpdatedAt: e.updatedAt,
	}
}

// Failure returns the presentation contract for a failed entry, or nil when the
// entry is not in StatusError. Retry re-sends the captured variables and
// Dismiss acknowledges the entry.
func (e *Entry) Failure() *failure.Failure {
	s := e.Snapshot()
	if s.Status != StatusError || s.Err == nil {
		return nil
	}
	return failure.New(s.Err,
		func(ctx context.Context) error {
			_, err := e.Retry(ctx)
			return err
		},
		func() { _ = e.Reset() },
	)
}

// Do runs e with vars and returns the result as R.
func Do[R any](ctx context.Context, e *Entry, vars any) (R, error) {
	var zero R
	result, err := e.Mutate(ctx, vars)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("mutation %s returned %T: %w", e.op.Name, result, cache.ErrInvalidResultType)
	}
	return typed, nil
}
