package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Store is a key-value store with per-entry expiry. A missing key is
// reported with found == false and a nil error; err is reserved for the
// store itself failing.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Gateway fronts a Store for cache-aside reads. Writes are unconditional
// overwrites and nothing is invalidated on source writes: staleness is
// bounded by the ttl of each entry. Concurrent misses on the same key all
// reach the source.
type Gateway struct {
	store      Store
	logger     *zap.Logger
	metrics    *Metrics
	defaultTTL time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the logger used to report degraded store calls.
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics enables outcome counters.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithDefaultTTL sets the ttl used when Set is given a non-positive one.
func WithDefaultTTL(ttl time.Duration) GatewayOption {
	return func(g *Gateway) {
		if ttl > 0 {
			g.defaultTTL = ttl
		}
	}
}

// DefaultTTL is the gateway ttl when none is configured.
const DefaultTTL = 5 * time.Minute

// NewGateway wraps store.
func NewGateway(store Store, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:      store,
		logger:     zap.NewNop(),
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Get returns the cached value for key. A store failure is logged and
// treated as a miss.
func (g *Gateway) Get(ctx context.Context, key string) ([]byte, bool) {
	v, found, err := g.GetStrict(ctx, key)
	if err != nil {
		g.logger.Warn("cache get degraded to miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return v, found
}

// GetStrict is Get for callers that must not proceed on an unknown cache
// state: store failures are returned.
func (g *Gateway) GetStrict(ctx context.Context, key string) ([]byte, bool, error) {
	v, found, err := g.store.Get(ctx, key)
	switch {
	case err != nil:
		g.metrics.request(ResultError)
		return nil, false, err
	case found:
		g.metrics.request(ResultHit)
	default:
		g.metrics.request(ResultMiss)
	}
	return v, found, nil
}

// Set stores value under key for ttl, replacing any previous value.
func (g *Gateway) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = g.defaultTTL
	}
	if err := g.store.Set(ctx, key, value, ttl); err != nil {
		g.metrics.write(ResultError)
		return err
	}
	g.metrics.write(ResultOK)
	return nil
}

// Delete removes key. Nothing calls it on source writes; it exists for
// explicit, caller-driven eviction.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	return g.store.Delete(ctx, key)
}

// Purger is implemented by stores that keep expired entries until told to
// drop them.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// ErrPurgeUnsupported is returned by Purge when the store expires entries
// on its own.
var ErrPurgeUnsupported = errors.New("cache: store does not support purge")

// Purge removes expired entries from stores that implement Purger and
// reports how many were dropped.
func (g *Gateway) Purge(ctx context.Context) (int64, error) {
	p, ok := g.store.(Purger)
	if !ok {
		return 0, ErrPurgeUnsupported
	}
	n, err := p.Purge(ctx)
	if err != nil {
		return 0, err
	}
	g.logger.Debug("cache purged", zap.Int64("entries", n))
	return n, nil
}

// DefaultTTL returns the ttl applied to Set calls without one.
func (g *Gateway) DefaultTTL() time.Duration {
	return g.defaultTTL
}
