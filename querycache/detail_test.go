package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/fetcher"
)

type post struct {
	ID    int
	Title string
}

func TestDetail_CachesUntilInvalidated(t *testing.T) {
	env := newTestCache(t)
	key := cache.BuildKey("posts", "detail", 5)
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (post, error) {
		n := calls.Add(1)
		return post{ID: 5, Title: "v" + string(rune('0'+n))}, nil
	}

	got, err := Detail(ctx, env.cache, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, post{ID: 5, Title: "v1"}, got)

	got, err = Detail(ctx, env.cache, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title)
	assert.EqualValues(t, 1, calls.Load())
	require.Len(t, env.cache.DetailKeys(), 1)

	n := env.cache.Invalidate(cache.MatchPrefix(cache.BuildKey("posts", "detail")))
	assert.Equal(t, 1, n)
	assert.Empty(t, env.cache.DetailKeys())

	got, err = Detail(ctx, env.cache, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
}

func TestDetail_ConcurrentReadsShareOneFetch(t *testing.T) {
	env := newTestCache(t)
	key := cache.BuildKey("posts", "detail", 7)

	var calls atomic.Int32
	gate := make(chan struct{})
	fetch := func(ctx context.Context) (post, error) {
		calls.Add(1)
		<-gate
		return post{ID: 7}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Detail(context.Background(), env.cache, key, fetch)
			assert.NoError(t, err)
			assert.Equal(t, 7, got.ID)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, timeout, tick)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestDetail_ErrorsAreNotCached(t *testing.T) {
	env := newTestCache(t)
	key := cache.BuildKey("posts", "detail", 9)
	boom := errors.New("boom")

	var calls atomic.Int32
	fetch := func(ctx context.Context) (post, error) {
		if calls.Add(1) == 1 {
			return post{}, boom
		}
		return post{ID: 9}, nil
	}

	_, err := Detail(context.Background(), env.cache, key, fetch)
	require.ErrorIs(t, err, boom)

	got, err := Detail(context.Background(), env.cache, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 9, got.ID)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDetail_ResetDropsReads(t *testing.T) {
	env := newTestCache(t)
	key := cache.BuildKey("posts", "detail", 1)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (post, error) {
		calls.Add(1)
		return post{ID: 1}, nil
	}

	_, err := Detail(context.Background(), env.cache, key, fetch)
	require.NoError(t, err)

	env.cache.Reset()
	assert.Empty(t, env.cache.DetailKeys())

	_, err = Detail(context.Background(), env.cache, key, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDetail_InvalidateDuringFetch(t *testing.T) {
	env := newTestCache(t)
	key := cache.BuildKey("posts", "detail", 3)
	ctx := context.Background()

	var calls atomic.Int32
	gate := make(chan struct{})
	fetch := func(ctx context.Context) (post, error) {
		n := calls.Add(1)
		if n == 1 {
			<-gate
		}
		return post{ID: 3, Title: fmt.Sprintf("v%d", n)}, nil
	}

	first := make(chan post, 1)
	go func() {
		got, err := Detail(ctx, env.cache, key, fetch)
		assert.NoError(t, err)
		first <- got
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, timeout, tick)

	assert.Equal(t, 1, env.cache.Invalidate(cache.MatchExact(key)))

	got, err := Detail(ctx, env.cache, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title, "a read after Invalidate does not join the earlier fetch")

	close(gate)
	assert.Equal(t, "v1", (<-first).Title)

	got, err = Detail(ctx, env.cache, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title, "the earlier fetch does not overwrite newer data")
	assert.EqualValues(t, 2, calls.Load())
	assert.Len(t, env.cache.DetailKeys(), 1)
}

func TestDetail_FetchErrorKeepsItsKind(t *testing.T) {
	env := newTestCache(t)
	key := cache.BuildKey("posts", "detail", 11)

	_, err := Detail(context.Background(), env.cache, key, func(ctx context.Context) (any, error) {
		return nil, fetcher.NewAborted("boom")
	})
	require.Error(t, err)
	assert.True(t, fetcher.IsAborted(err), "expected Aborted, got %v", err)
	assert.Equal(t, fetcher.KindAborted, fetcher.KindOf(err))
}

func TestDetailFailure(t *testing.T) {
	env := newTestCache(t)
	key := cache.BuildKey("posts", "detail", 12)
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (post, error) {
		if calls.Add(1) == 1 {
			return post{}, fetcher.NewAborted("interrupted")
		}
		return post{ID: 12}, nil
	}

	_, err := Detail(ctx, env.cache, key, fetch)
	require.Error(t, err)
	assert.Nil(t, DetailFailure(env.cache, key, nil, fetch))

	f := DetailFailure(env.cache, key, err, fetch)
	require.NotNil(t, f)
	assert.Equal(t, fetcher.KindAborted, f.Kind)
	assert.True(t, f.Retryable())
	require.NoError(t, f.Retry(ctx))

	got, err := Detail(ctx, env.cache, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 12, got.ID)
	assert.EqualValues(t, 2, calls.Load(), "the retry result is cached")

	f.Dismiss()
	assert.Empty(t, env.cache.DetailKeys())
}
