package cacheinfra

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryConfig configures the go-cache backed store.
type MemoryConfig struct {
	// DefaultTTL applies when Set is called without a TTL.
	DefaultTTL time.Duration

	// CleanupInterval is how often expired entries are purged. Expired
	// entries are never returned, purging only frees memory.
	CleanupInterval time.Duration
}

// DefaultMemoryConfig returns a MemoryConfig with sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// Validate checks if the configuration values are valid.
func (c MemoryConfig) Validate() error {
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	if c.CleanupInterval < 0 {
		return &ConfigError{Field: "CleanupInterval", Message: "must be non-negative"}
	}
	return nil
}

// MemoryStore is a single process TTL store.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a go-cache backed store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{c: gocache.New(cfg.DefaultTTL, cfg.CleanupInterval)}, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return clone(b), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.c.Set(key, clone(value), ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

// Len returns the number of entries, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	return s.c.ItemCount()
}
