package repositorycache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-crudcore/cache"
	"github.com/goliatone/go-crudcore/pagination"
	"github.com/goliatone/go-crudcore/repository"
	"github.com/uptrace/bun"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// getResult wraps the Get tuple so a miss in the source is cached too.
type getResult[T any] struct {
	Record T    `msgpack:"record"`
	Found  bool `msgpack:"found"`
}

// CachedRepository decorates a base repository with read-through caching.
//
// Get, List and Paginate are served from the gateway. Create and Query go
// straight to the base repository and never touch cached entries, so reads
// may be stale for up to the configured ttl after a write.
type CachedRepository[T any] struct {
	base      repository.Repository[T]
	gateway   *cache.Gateway
	namespace string
	ttl       time.Duration
}

// Option configures a CachedRepository.
type Option func(*settings)

type settings struct {
	prefix    string
	namespace string
	ttl       time.Duration
}

// WithPrefix prepends prefix to every key, typically the deployment-wide
// cache prefix.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = prefix
	}
}

// WithNamespace overrides the namespace derived from T's type name.
func WithNamespace(ns string) Option {
	return func(s *settings) {
		s.namespace = ns
	}
}

// WithTTL sets the ttl of entries written by this repository. Zero uses
// the gateway default.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		s.ttl = ttl
	}
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], gateway *cache.Gateway, opts ...Option) *CachedRepository[T] {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	ns := toSnake(s.namespace)
	if ns == "" {
		ns = toSnake(typeName[T]())
	}

	return &CachedRepository[T]{
		base:      base,
		gateway:   gateway,
		namespace: s.prefix + ns + ":",
		ttl:       s.ttl,
	}
}

// Namespace returns the key prefix shared by every entry of this repository.
func (c *CachedRepository[T]) Namespace() string {
	return c.namespace
}

// Create passes through to the base repository. Cached reads are left as
// they are.
func (c *CachedRepository[T]) Create(ctx context.Context, data repository.Fields) (T, error) {
	return c.base.Create(ctx, data)
}

// Get returns the cached lookup for filter, fetching from the base
// repository on a miss. Not found results are cached as well.
func (c *CachedRepository[T]) Get(ctx context.Context, filter repository.Fields) (T, bool, error) {
	var zero T

	if readModeFrom(ctx) == readBypass {
		return c.base.Get(ctx, filter)
	}

	key, err := c.key("get", map[string]any{"filter": normalize(filter)})
	if err != nil {
		return c.base.Get(ctx, filter)
	}

	res, err := read(ctx, c, key, func(ctx context.Context) (getResult[T], error) {
		rec, found, err := c.base.Get(ctx, filter)
		return getResult[T]{Record: rec, Found: found}, err
	})
	if err != nil {
		return zero, false, err
	}
	return res.Record, res.Found, nil
}

// List returns every record, cached as a single entry.
func (c *CachedRepository[T]) List(ctx context.Context) ([]T, error) {
	if readModeFrom(ctx) == readBypass {
		return c.base.List(ctx)
	}

	key, err := c.key("list", map[string]any{})
	if err != nil {
		return c.base.List(ctx)
	}

	return read(ctx, c, key, func(ctx context.Context) ([]T, error) {
		return c.base.List(ctx)
	})
}

// Paginate caches each page under the full set of request parameters.
// Invalid params are rejected before the cache is consulted.
func (c *CachedRepository[T]) Paginate(ctx context.Context, params pagination.Params) (pagination.Page[T], error) {
	if err := params.Validate(); err != nil {
		return pagination.Page[T]{}, err
	}
	if readModeFrom(ctx) == readBypass {
		return c.base.Paginate(ctx, params)
	}

	key, err := c.key("page", map[string]any{
		"q":        params.Query,
		"page":     params.Page,
		"size":     params.Size,
		"order_by": string(params.Order),
	})
	if err != nil {
		return c.base.Paginate(ctx, params)
	}

	return read(ctx, c, key, func(ctx context.Context) (pagination.Page[T], error) {
		return c.base.Paginate(ctx, params)
	})
}

// Query is not cached; the returned query runs against the database.
func (c *CachedRepository[T]) Query() *bun.SelectQuery {
	return c.base.Query()
}

func (c *CachedRepository[T]) key(op string, params map[string]any) (string, error) {
	return cache.KeyFor(c.namespace+op+":", params)
}

func read[T, V any](ctx context.Context, c *CachedRepository[T], key string, fetch cache.FetchFn[V]) (V, error) {
	if readModeFrom(ctx) == readStrict {
		return cache.GetOrFetchStrict(ctx, c.gateway, key, c.ttl, fetch)
	}
	return cache.GetOrFetch(ctx, c.gateway, key, c.ttl, fetch)
}

// normalize makes a nil and an empty filter share a key.
func normalize(filter repository.Fields) map[string]any {
	if filter == nil {
		return map[string]any{}
	}
	return map[string]any(filter)
}

func typeName[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("%v", t)
}
