package cache

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidResultType is returned by GetOrFetch when the stored value does not
// have the requested type.
var ErrInvalidResultType = goerrors.New("cached value has an unexpected type", goerrors.CategoryInternal).
	WithTextCode("INVALID_RESULT_TYPE")

// KeySerializer builds a cache key from a resource name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(resource string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService is the read-through store backing single-resource (detail) reads.
// Concurrent GetOrFetch calls for one key share a single fetch.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
	Keys() []string
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T

	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("key %s holds %T: %w", key, result, ErrInvalidResultType)
	}
	return typed, nil
}
