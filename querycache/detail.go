package querycache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/failure"
)

// detailSlot tracks one detail read. Every slot gets its own store key, so a
// fetch that outlives an Invalidate of its slot cannot refill the new slot.
type detailSlot struct {
	key      cache.QueryKey
	storeKey string
}

func (c *Cache) detailSlotFor(key cache.QueryKey) detailSlot {
	slot, _ := c.detailSlots.LoadOrCompute(key.ID(), func() detailSlot {
		return detailSlot{
			key:      key,
			storeKey: fmt.Sprintf("detail:%s:%d", key.Fingerprint(), c.detailSeq.Add(1)),
		}
	})
	return slot
}

// Detail reads a single resource through the detail store. Concurrent callers for
// the same key share one fetch, and the result stays cached until its TTL expires
// or an Invalidate predicate matches key. A read issued after Invalidate never
// joins a fetch that started before it.
func Detail[T any](ctx context.Context, c *Cache, key cache.QueryKey, fetch func(ctx context.Context) (T, error)) (T, error) {
	slot := c.detailSlotFor(key)

	v, err := cache.GetOrFetch(ctx, c.details, slot.storeKey, cache.FetchFn[T](fetch))
	if err != nil {
		c.logger.Debug("detail read failed", zap.String("key", key.String()), zap.Error(err))
		return v, err
	}

	if cur, ok := c.detailSlots.Load(key.ID()); !ok || cur.storeKey != slot.storeKey {
		// Invalidated or reset while the fetch was outstanding.
		_ = c.details.Delete(context.Background(), slot.storeKey)
	}
	return v, nil
}

// DetailFailure wraps a failed Detail read of key in the failure contract.
// Retry runs fetch through Detail again and dismiss drops the tracked read.
func DetailFailure[T any](c *Cache, key cache.QueryKey, err error, fetch func(ctx context.Context) (T, error)) *failure.Failure {
	if err == nil {
		return nil
	}
	return failure.New(err,
		func(ctx context.Context) error {
			_, err := Detail(ctx, c, key, fetch)
			return err
		},
		func() { c.dropDetail(key) },
	)
}

// DetailKeys lists the query keys with a tracked detail read.
func (c *Cache) DetailKeys() []cache.QueryKey {
	keys := make([]cache.QueryKey, 0, c.detailSlots.Size())
	c.detailSlots.Range(func(_ string, slot detailSlot) bool {
		keys = append(keys, slot.key)
		return true
	})
	return keys
}

func (c *Cache) dropDetail(key cache.QueryKey) {
	if slot, ok := c.detailSlots.LoadAndDelete(key.ID()); ok {
		_ = c.details.Delete(context.Background(), slot.storeKey)
	}
}

func (c *Cache) invalidateDetails(pred cache.KeyPredicate) int {
	var matched []string
	c.detailSlots.Range(func(id string, slot detailSlot) bool {
		if !pred(slot.key) {
			return true
		}
		if _, ok := c.detailSlots.LoadAndDelete(id); ok {
			matched = append(matched, slot.storeKey)
		}
		return true
	})
	if len(matched) == 0 {
		return 0
	}

	if err := c.details.InvalidateKeys(context.Background(), matched); err != nil {
		c.logger.Warn("detail invalidation failed", zap.Error(err))
	}
	return len(matched)
}

func (c *Cache) dropAllDetails() {
	c.detailSlots.Range(func(id string, slot detailSlot) bool {
		c.detailSlots.Delete(id)
		_ = c.details.Delete(context.Background(), slot.storeKey)
		return true
	})
}
