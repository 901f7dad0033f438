package cacheinfra

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdycConfig configures the sharded in-process store.
type SturdycConfig struct {
	Capacity  int
	NumShards int
	// MaxTTL is the client-wide lifetime sturdyc enforces. Per-entry TTLs
	// are honoured up to this value.
	MaxTTL             time.Duration
	EvictionPercentage int
	// EvictionInterval of zero keeps the sturdyc default.
	EvictionInterval time.Duration
}

func DefaultSturdycConfig() SturdycConfig {
	return SturdycConfig{
		Capacity:           10000,
		NumShards:          256,
		MaxTTL:             time.Hour,
		EvictionPercentage: 10,
	}
}

func (c SturdycConfig) Validate() error {
	switch {
	case c.Capacity <= 0:
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	case c.NumShards <= 0:
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	case c.NumShards > c.Capacity:
		return &ConfigError{Field: "NumShards", Message: "must not exceed Capacity"}
	case c.MaxTTL <= 0:
		return &ConfigError{Field: "MaxTTL", Message: "must be greater than 0"}
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	case c.EvictionInterval < 0:
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

func (c SturdycConfig) options() []sturdyc.Option {
	if c.EvictionInterval > 0 {
		return []sturdyc.Option{sturdyc.WithEvictionInterval(c.EvictionInterval)}
	}
	return nil
}

// stamped pairs a value with its own deadline; sturdyc itself only knows
// MaxTTL.
type stamped struct {
	value    []byte
	deadline time.Time
}

// SturdycStore keeps entries in a sturdyc client.
type SturdycStore struct {
	client *sturdyc.Client[stamped]
	maxTTL time.Duration
	now    func() time.Time
}

func NewSturdycStore(cfg SturdycConfig) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[stamped](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage, cfg.options()...)
	return &SturdycStore{client: client, maxTTL: cfg.MaxTTL, now: time.Now}, nil
}

// Get drops and misses entries whose deadline has passed.
func (s *SturdycStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.deadline) {
		s.client.Delete(key)
		return nil, false, nil
	}
	return clone(e.value), true, nil
}

// Set stores a copy of value. A ttl of zero or above MaxTTL becomes MaxTTL.
func (s *SturdycStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.client.Set(key, stamped{value: clone(value), deadline: s.now().Add(ttl)})
	return nil
}

func (s *SturdycStore) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// Len counts held entries, including ones past their deadline that no Get
// has touched yet.
func (s *SturdycStore) Len() int {
	return s.client.Size()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
