package repositorycache

import (
	"context"
)

type readMode int

const (
	readCached readMode = iota
	// readStrict still uses the cache but fails when the store does.
	readStrict
	// readBypass skips the cache entirely.
	readBypass
)

type readModeContextKey struct{}

// WithConsistentRead marks ctx so cached repositories read from the source
// of truth, neither consulting nor populating the cache.
func WithConsistentRead(ctx context.Context) context.Context {
	return withReadMode(ctx, readBypass)
}

// WithStrictCache marks ctx so a failing cache store is returned as an
// error instead of silently falling through to the source.
func WithStrictCache(ctx context.Context) context.Context {
	return withReadMode(ctx, readStrict)
}

func withReadMode(ctx context.Context, mode readMode) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	// A consistent read is never downgraded.
	if readModeFrom(ctx) > mode {
		return ctx
	}
	return context.WithValue(ctx, readModeContextKey{}, mode)
}

func readModeFrom(ctx context.Context) readMode {
	if ctx == nil {
		return readCached
	}
	if mode, ok := ctx.Value(readModeContextKey{}).(readMode); ok {
		return mode
	}
	return readCached
}
