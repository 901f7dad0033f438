package testsupport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-crudcore/internal/dbinfra"
	"github.com/uptrace/bun"
)

// DBOption adjusts the configuration used by OpenSQLite.
type DBOption func(*dbinfra.Config)

// WithPoolSize sets MaxOpenConns (and MaxIdleConns) for the test database.
func WithPoolSize(n int) DBOption {
	return func(c *dbinfra.Config) {
		c.MaxOpenConns = n
		c.MaxIdleConns = n
	}
}

// WithAcquireTimeout sets the pool acquisition timeout.
func WithAcquireTimeout(d time.Duration) DBOption {
	return func(c *dbinfra.Config) {
		c.AcquireTimeout = d
	}
}

// SQLiteConfig returns a config for a fresh SQLite file inside t.TempDir()
// with foreign keys enforced.
func SQLiteConfig(t testing.TB, opts ...DBOption) dbinfra.Config {
	t.Helper()

	cfg := dbinfra.DefaultConfig()
	cfg.DSN = "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	cfg.AcquireTimeout = 2 * time.Second
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// OpenSQLite opens a fresh SQLite database that is closed when the test ends.
func OpenSQLite(t testing.TB, opts ...DBOption) *bun.DB {
	t.Helper()

	db, err := dbinfra.Open(context.Background(), SQLiteConfig(t, opts...))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
