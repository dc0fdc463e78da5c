// Package cache defines the identity and data model shared by the query and mutation caches.
//
// # Overview
//
// This package exports the building blocks every other package works with:
//
//   - QueryKey: a stable, structured identifier for a cacheable request
//   - Operation: a tagged query or mutation definition
//   - Entry and Page: read-only snapshots of cached query state
//   - CacheService: the read-through store used for single-resource reads
//   - KeySerializer: turns a resource name and arguments into a flat string key
//
// # Query keys
//
// Keys are built from a resource name and any number of parameters:
//
//	list := cache.BuildKey("posts", "list", map[string]any{"limit": 20})
//	detail := cache.BuildKey("posts", "detail", 5)
//	comments := detail.Extend("comments")
//
// Parameters go through the default key serializer. Maps are sorted by key and
// structs are emitted by exported field name, so the same logical parameters
// always produce the same key:
//
//	cache.BuildKey("posts", map[string]any{"a": 1, "b": 2}).Equal(
//		cache.BuildKey("posts", map[string]any{"b": 2, "a": 1})) // true
//
// Prefix matching is segment-aware: "posts::detail::1" is not a prefix of
// "posts::detail::10". Use MatchPrefix, MatchExact, MatchResource and MatchAny
// to build invalidation predicates.
//
// Funcs and channels only serialize by address, which is not stable across
// processes. BuildKey panics on them. SerializeKey keeps accepting them and
// emits a "func:0x..." segment instead.
//
// # Operations
//
// Queries page through a collection with a typed fetcher:
//
//	op := cache.InfiniteQuery(list, 1, func(ctx context.Context, page any) ([]Post, error) {
//		return api.ListPosts(ctx, page.(int), 20)
//	})
//
// The default page advance rule counts integer pages and stops on the first
// empty page. A short page is not terminal. Supply WithNextPageParam for cursors.
//
// Mutations carry the keys they make stale:
//
//	del := cache.Mutation("delete_post", api.DeletePost,
//		cache.Invalidate[int, struct{}](cache.MatchPrefix(cache.BuildKey("posts"))))
//
// # Detail store
//
// NewDetailStore returns a sturdyc-backed CacheService. Concurrent GetOrFetch calls
// for one key share a single fetch and errors are never cached:
//
//	post, err := cache.GetOrFetch(ctx, store, detail.String(), func(ctx context.Context) (Post, error) {
//		return api.GetPost(ctx, 5)
//	})
package cache
