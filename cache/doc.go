// Package cache provides the cache-aside gateway used by the repository
// decorators.
//
// # Overview
//
// A Gateway fronts any Store (go-cache, sturdyc, redis or a SQL table, see
// NewStore) and adds three behaviours on top of it:
//
//   - Get never fails. A store error is logged and reported as a miss so the
//     caller falls through to the source of truth.
//   - Set always overwrites. Concurrent writers race and the last one wins.
//   - Nothing is invalidated when the source changes. Every entry carries a
//     ttl and staleness is bounded by it.
//
// GetStrict and GetOrFetchStrict exist for callers that cannot accept a
// degraded read and want the store error instead.
//
// # Keys
//
// KeyFor derives keys from request parameters:
//
//	key, err := cache.KeyFor("books:", map[string]any{"q": "dune", "page": 1, "size": 10})
//	// books:4c1f...e9 (64 hex chars)
//
// The parameters are encoded as msgpack with sorted map keys and compact
// numbers, then hashed with SHA-256. The same set of pairs always yields the
// same key regardless of map iteration order, and values can not collide by
// embedding separators.
//
// # Read-through
//
//	books, err := cache.GetOrFetch(ctx, gw, key, time.Minute, func(ctx context.Context) ([]model.Book, error) {
//		return repo.List(ctx)
//	})
//
// Values are stored msgpack encoded. An entry that no longer decodes into T
// is treated as a miss and overwritten by the next fetch. Fetch errors are
// returned and never cached.
//
// Concurrent misses on the same key are not coalesced; each one reaches the
// source.
package cache
