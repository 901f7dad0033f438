package di

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goliatone/go-crudcore/cache"
	"github.com/goliatone/go-crudcore/config"
	"github.com/goliatone/go-crudcore/internal/dbinfra"
	"github.com/goliatone/go-crudcore/internal/logging"
	"github.com/goliatone/go-crudcore/password"
	"github.com/goliatone/go-crudcore/repository"
	"github.com/goliatone/go-crudcore/repositorycache"
	"github.com/goliatone/go-crudcore/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Container owns the long-lived components built from a config.Config:
// logger, database pool, cache store and gateway, token service and
// password hasher. Repositories are created per model through the
// package-level factories.
type Container struct {
	config  config.Config
	logger  *zap.Logger
	db      *bun.DB
	ownsDB  bool
	store   cache.Store
	gateway *cache.Gateway
	metrics *cache.Metrics
	tokens  *token.Service
	hasher  *password.Argon2
}

// Option configures a Container.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	db         *bun.DB
	registerer prometheus.Registerer
	tokenOpts  []token.Option
}

// WithLogger uses l instead of building one from the log section.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDB uses an already open database. The container does not close it.
func WithDB(db *bun.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithRegisterer registers the cache metrics on reg. Without it no metrics
// are collected.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTokenOptions passes opts to token.New.
func WithTokenOptions(opts ...token.Option) Option {
	return func(o *options) {
		o.tokenOpts = append(o.tokenOpts, opts...)
	}
}

// NewContainer validates cfg and builds every component. On failure
// anything already opened is closed again.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("di: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{config: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if c.logger == nil {
		if c.logger, err = logging.New(cfg.Log); err != nil {
			return nil, err
		}
	}

	c.db = o.db
	if c.db == nil {
		if c.db, err = dbinfra.Open(ctx, cfg.Database); err != nil {
			return nil, fmt.Errorf("di: %w", err)
		}
		c.ownsDB = true
	}

	if c.store, err = cache.NewStore(ctx, cfg.Cache, c.db); err != nil {
		return nil, fmt.Errorf("di: cache store: %w", err)
	}

	gwOpts := []cache.GatewayOption{
		cache.WithLogger(c.logger.Named("cache")),
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
	}
	if o.registerer != nil {
		c.metrics = cache.NewMetrics("crudcore")
		if err = c.metrics.Register(o.registerer); err != nil {
			return nil, fmt.Errorf("di: register metrics: %w", err)
		}
		gwOpts = append(gwOpts, cache.WithMetrics(c.metrics))
	}
	c.gateway = cache.NewGateway(c.store, gwOpts...)

	if c.tokens, err = token.New(cfg.Token, o.tokenOpts...); err != nil {
		return nil, fmt.Errorf("di: %w", err)
	}
	if c.hasher, err = password.NewArgon2(cfg.Password); err != nil {
		return nil, fmt.Errorf("di: %w", err)
	}

	c.logger.Debug("container ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("cache", cfg.Cache.Driver),
	)
	return c, nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the shared logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// DB returns the database pool.
func (c *Container) DB() *bun.DB {
	return c.db
}

// Gateway returns the cache gateway.
func (c *Container) Gateway() *cache.Gateway {
	return c.gateway
}

// Metrics returns the cache counters, or nil when no registerer was given.
func (c *Container) Metrics() *cache.Metrics {
	return c.metrics
}

// Tokens returns the token service.
func (c *Container) Tokens() *token.Service {
	return c.tokens
}

// Hasher returns the password hasher.
func (c *Container) Hasher() *password.Argon2 {
	return c.hasher
}

// Close releases the cache store and, when the container opened it, the
// database.
func (c *Container) Close() error {
	var errs []error
	if closer, ok := c.store.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if c.db != nil && c.ownsDB {
		errs = append(errs, c.db.Close())
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return errors.Join(errs...)
}

// NewRepository creates a repository for model T on the container's
// database, using the configured acquire timeout.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewRepository[model.Book](container, repository.WithSearchColumns("name"))
func NewRepository[T any](c *Container, opts ...repository.Option) (*repository.BunRepository[T], error) {
	opts = append([]repository.Option{repository.WithAcquireTimeout(c.config.Database.AcquireTimeout)}, opts...)
	return repository.New[T](c.db, opts...)
}

// NewCachedRepository wraps base with the container's gateway, keyed under
// the configured cache prefix.
func NewCachedRepository[T any](c *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	opts = append([]repositorycache.Option{repositorycache.WithPrefix(c.config.Cache.Prefix)}, opts...)
	return repositorycache.New(base, c.gateway, opts...)
}
