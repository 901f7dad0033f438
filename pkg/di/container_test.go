package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-crudcore/cache"
	"github.com/goliatone/go-crudcore/config"
	"github.com/goliatone/go-crudcore/model"
	"github.com/goliatone/go-crudcore/pkg/testsupport"
	"github.com/goliatone/go-crudcore/repository"
	"github.com/goliatone/go-crudcore/repositorycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testConfig returns a valid config on a fresh SQLite file with cheap
// argon2 parameters.
func testConfig(t testing.TB) config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Token.Secret = testSecret
	cfg.Database = testsupport.SQLiteConfig(t)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	return cfg
}

func newTestContainer(t testing.TB, cfg config.Config, opts ...Option) *Container {
	t.Helper()

	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	c, err := NewContainer(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContainer(t *testing.T) {
	cfg := testConfig(t)
	container := newTestContainer(t, cfg)

	if container.DB() == nil {
		t.Error("Container should have a non-nil database")
	}
	if container.Gateway() == nil {
		t.Error("Container should have a non-nil gateway")
	}
	if container.Tokens() == nil {
		t.Error("Container should have a non-nil token service")
	}
	if container.Hasher() == nil {
		t.Error("Container should have a non-nil hasher")
	}
	if container.Metrics() != nil {
		t.Error("Metrics should be nil without a registerer")
	}

	stored := container.Config()
	if stored.Cache.Prefix != cfg.Cache.Prefix {
		t.Errorf("Expected prefix %q, got %q", cfg.Cache.Prefix, stored.Cache.Prefix)
	}
	if got := container.Gateway().DefaultTTL(); got != cfg.Cache.DefaultTTL {
		t.Errorf("Expected gateway TTL %v, got %v", cfg.Cache.DefaultTTL, got)
	}
	if got := container.Hasher().Params(); got != cfg.Password {
		t.Errorf("Expected hasher params %+v, got %+v", cfg.Password, got)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing secret", func(c *config.Config) { c.Token.Secret = "" }},
		{"unknown cache driver", func(c *config.Config) { c.Cache.Driver = "memcached" }},
		{"zero pool", func(c *config.Config) { c.Database.MaxOpenConns = 0 }},
		{"bad log level", func(c *config.Config) { c.Log.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)

			c, err := NewContainer(context.Background(), cfg, WithLogger(zap.NewNop()))
			if err == nil {
				t.Fatal("Expected error for invalid config, got nil")
			}
			if c != nil {
				t.Error("Expected nil container on error")
			}
		})
	}
}

func TestNewContainer_UnreachableDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.DSN = "file:" + t.TempDir() + "/missing/dir/db.sqlite?mode=ro"

	if _, err := NewContainer(context.Background(), cfg, WithLogger(zap.NewNop())); err == nil {
		t.Fatal("Expected error opening an unreachable database")
	}
}

func TestNewContainer_SharedDB(t *testing.T) {
	db := testsupport.OpenSQLite(t)
	cfg := testConfig(t)
	cfg.Cache.Driver = cache.DriverSQL

	c, err := NewContainer(context.Background(), cfg, WithDB(db), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if c.DB() != db {
		t.Error("Container should use the supplied database")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// A supplied database stays open after Close.
	if err := db.PingContext(context.Background()); err != nil {
		t.Errorf("Expected shared database to stay open, got %v", err)
	}
}

func TestNewContainer_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Cache.Driver = cache.DriverRedis
	cfg.Cache.Redis.Addr = mr.Addr()

	c := newTestContainer(t, cfg)
	ctx := context.Background()

	key := testsupport.UniqueName("crudcore:probe")
	if err := c.Gateway().Set(ctx, key, []byte("ok"), time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if !mr.Exists(key) {
		t.Error("Expected the entry to reach redis")
	}
}

func TestNewContainer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestContainer(t, testConfig(t), WithRegisterer(reg))
	ctx := context.Background()

	if c.Metrics() == nil {
		t.Fatal("Expected metrics with a registerer")
	}

	c.Gateway().Get(ctx, "missing")
	if got := testutil.ToFloat64(c.Metrics().Requests.WithLabelValues(cache.ResultMiss)); got != 1 {
		t.Errorf("Expected 1 miss, got %v", got)
	}

	// A second container on the same registry shares the collectors.
	newTestContainer(t, testConfig(t), WithRegisterer(reg))
}

func TestNewRepository(t *testing.T) {
	c := newTestContainer(t, testConfig(t))
	ctx := context.Background()

	if err := model.CreateSchema(ctx, c.DB()); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	authors, err := NewRepository[model.Author](c, repository.WithSearchColumns("full_name"))
	if err != nil {
		t.Fatalf("NewRepository() failed: %v", err)
	}
	if authors.TableName() != "authors" {
		t.Errorf("Expected table authors, got %q", authors.TableName())
	}

	if _, err := NewRepository[model.Author](c, repository.WithSearchColumns("nope")); err == nil {
		t.Error("Expected error for unknown search column")
	}
}

func TestNewRepository_UsesConfiguredAcquireTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database = testsupport.SQLiteConfig(t,
		testsupport.WithPoolSize(1),
		testsupport.WithAcquireTimeout(100*time.Millisecond),
	)
	c := newTestContainer(t, cfg)
	ctx := context.Background()
	if err := model.CreateSchema(ctx, c.DB()); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	authors, err := NewRepository[model.Author](c)
	if err != nil {
		t.Fatalf("NewRepository() failed: %v", err)
	}

	held, err := c.DB().Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}
	defer held.Close()

	start := time.Now()
	if _, err := authors.List(ctx); !errors.Is(err, repository.ErrResourceExhausted) {
		t.Fatalf("Expected ErrResourceExhausted, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected the configured timeout to apply, waited %v", elapsed)
	}
}

func TestNewCachedRepository(t *testing.T) {
	c := newTestContainer(t, testConfig(t))
	ctx := context.Background()
	if err := model.CreateSchema(ctx, c.DB()); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	base, err := NewRepository[model.Book](c)
	if err != nil {
		t.Fatalf("NewRepository() failed: %v", err)
	}

	cached := NewCachedRepository[model.Book](c, base)
	if got, want := cached.Namespace(), "crudcore:book:"; got != want {
		t.Errorf("Expected namespace %q, got %q", want, got)
	}

	named := NewCachedRepository[model.Book](c, base, repositorycache.WithNamespace("titles"))
	if got, want := named.Namespace(), "crudcore:titles:"; got != want {
		t.Errorf("Expected namespace %q, got %q", want, got)
	}
}
