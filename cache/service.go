package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// FetchFn is the function signature GetOrFetch expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// GetOrFetch returns the cached T under key, or calls fetch, stores its
// result for ttl and returns it. A ttl <= 0 uses the gateway default.
//
// Entries that fail to decode are treated as misses. A failed store write
// is logged; the fetched value is still returned. Fetch errors are never
// cached.
func GetOrFetch[T any](ctx context.Context, g *Gateway, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	if raw, found := g.Get(ctx, key); found {
		var cached T
		err := msgpack.Unmarshal(raw, &cached)
		if err == nil {
			return cached, nil
		}
		g.logger.Warn("cache entry undecodable, refetching", zap.String("key", key), zap.Error(err))
	}

	return fetchAndStore(ctx, g, key, ttl, fetch)
}

// GetOrFetchStrict is GetOrFetch for callers that require cache
// consistency: a failing store aborts the read instead of falling through
// to the source.
func GetOrFetchStrict[T any](ctx context.Context, g *Gateway, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	var zero T

	raw, found, err := g.GetStrict(ctx, key)
	if err != nil {
		return zero, err
	}
	if found {
		var cached T
		if err := msgpack.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	return fetchAndStore(ctx, g, key, ttl, fetch)
}

func fetchAndStore[T any](ctx context.Context, g *Gateway, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	raw, err := msgpack.Marshal(value)
	if err != nil {
		g.logger.Warn("cache value not encodable", zap.String("key", key), zap.Error(err))
		return value, nil
	}
	if err := g.Set(ctx, key, raw, ttl); err != nil {
		g.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
