package cacheinfra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// SQLConfig configures the SQL table store.
type SQLConfig struct {
	// DefaultTTL applies when Set is called without a TTL.
	DefaultTTL time.Duration
}

// DefaultSQLConfig returns a SQLConfig with sensible defaults.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{DefaultTTL: 5 * time.Minute}
}

// Validate checks if the configuration values are valid.
func (c SQLConfig) Validate() error {
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	return nil
}

// cacheEntry is a row of the cache_entries table.
type cacheEntry struct {
	bun.BaseModel `bun:"table:cache_entries"`

	Key       string    `bun:"key,pk,type:varchar(255)"`
	Value     []byte    `bun:"value,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

// SQLStore keeps entries in a table, for deployments without a cache server.
// Expired rows are ignored on read and overwritten on the next Set.
type SQLStore struct {
	db         *bun.DB
	defaultTTL time.Duration
	now        func() time.Time
}

// NewSQLStore returns a store on db. Call EnsureSchema once before use.
func NewSQLStore(db *bun.DB, cfg SQLConfig) (*SQLStore, error) {
	if db == nil {
		return nil, &ConfigError{Field: "DB", Message: "cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, defaultTTL: cfg.DefaultTTL, now: time.Now}, nil
}

// EnsureSchema creates the cache_entries table if missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*cacheEntry)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create cache_entries: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e := new(cacheEntry)
	err := s.db.NewSelect().
		Model(e).
		Where("? = ?", bun.Ident("key"), key).
		Where("? > ?", bun.Ident("expires_at"), s.now().UTC()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sql cache get: %w", err)
	}
	return e.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if value == nil {
		value = []byte{}
	}

	e := &cacheEntry{Key: key, Value: value, ExpiresAt: s.now().UTC().Add(ttl)}
	q := s.db.NewInsert().Model(e)
	set := "? = EXCLUDED.?"
	if s.db.Dialect().Name() == dialect.MySQL {
		q = q.On("DUPLICATE KEY UPDATE")
		set = "? = VALUES(?)"
	} else {
		q = q.On("CONFLICT (?) DO UPDATE", bun.Ident("key"))
	}
	_, err := q.
		Set(set, bun.Ident("value"), bun.Ident("value")).
		Set(set, bun.Ident("expires_at"), bun.Ident("expires_at")).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sql cache set: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*cacheEntry)(nil)).
		Where("? = ?", bun.Ident("key"), key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sql cache delete: %w", err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*cacheEntry)(nil)).
		Where("? <= ?", bun.Ident("expires_at"), s.now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sql cache purge: %w", err)
	}
	return res.RowsAffected()
}
