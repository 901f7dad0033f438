package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-crudcore/internal/cacheinfra"
	"github.com/uptrace/bun"
)

// Store drivers accepted by Config.Driver.
const (
	DriverMemory  = "memory"
	DriverSturdyc = "sturdyc"
	DriverRedis   = "redis"
	DriverSQL     = "sql"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Driver     string        `koanf:"driver"`
	Prefix     string        `koanf:"prefix"`
	DefaultTTL time.Duration `koanf:"default_ttl"`

	Memory  MemoryConfig  `koanf:"memory"`
	Sturdyc SturdycConfig `koanf:"sturdyc"`
	Redis   RedisConfig   `koanf:"redis"`
}

// MemoryConfig mirrors the go-cache store options.
type MemoryConfig struct {
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// SturdycConfig mirrors the underlying sturdyc options.
type SturdycConfig struct {
	Capacity           int           `koanf:"capacity"`
	NumShards          int           `koanf:"num_shards"`
	MaxTTL             time.Duration `koanf:"max_ttl"`
	EvictionPercentage int           `koanf:"eviction_percentage"`
	EvictionInterval   time.Duration `koanf:"eviction_interval"`
}

// RedisConfig mirrors the go-redis client options.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Username     string        `koanf:"username"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	mem := cacheinfra.DefaultMemoryConfig()
	st := cacheinfra.DefaultSturdycConfig()
	rd := cacheinfra.DefaultRedisConfig()

	return Config{
		Driver:     DriverMemory,
		Prefix:     "crudcore:",
		DefaultTTL: DefaultTTL,
		Memory:     MemoryConfig{CleanupInterval: mem.CleanupInterval},
		Sturdyc: SturdycConfig{
			Capacity:           st.Capacity,
			NumShards:          st.NumShards,
			MaxTTL:             st.MaxTTL,
			EvictionPercentage: st.EvictionPercentage,
			EvictionInterval:   st.EvictionInterval,
		},
		Redis: RedisConfig{
			Addr:         rd.Addr,
			DialTimeout:  rd.DialTimeout,
			ReadTimeout:  rd.ReadTimeout,
			WriteTimeout: rd.WriteTimeout,
		},
	}
}

// Validate checks whether the configuration values are valid for the
// selected driver.
func (c Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return &cacheinfra.ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}

	switch c.Driver {
	case DriverMemory:
		return c.memory().Validate()
	case DriverSturdyc:
		return c.sturdyc().Validate()
	case DriverRedis:
		return c.redis().Validate()
	case DriverSQL:
		return c.sql().Validate()
	default:
		return &cacheinfra.ConfigError{Field: "Driver", Message: fmt.Sprintf("unsupported driver %q", c.Driver)}
	}
}

// NewStore constructs the store selected by cfg.Driver. db is only used by
// the sql driver, which creates its table if needed.
func NewStore(ctx context.Context, cfg Config, db *bun.DB) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverSturdyc:
		store, err = cacheinfra.NewSturdycStore(cfg.sturdyc())
	case DriverRedis:
		store, err = cacheinfra.NewRedisStore(cfg.redis())
	case DriverSQL:
		var s *cacheinfra.SQLStore
		if s, err = cacheinfra.NewSQLStore(db, cfg.sql()); err == nil {
			err = s.EnsureSchema(ctx)
		}
		store = s
	default:
		store, err = cacheinfra.NewMemoryStore(cfg.memory())
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) memory() cacheinfra.MemoryConfig {
	return cacheinfra.MemoryConfig{
		DefaultTTL:      c.DefaultTTL,
		CleanupInterval: c.Memory.CleanupInterval,
	}
}

func (c Config) sturdyc() cacheinfra.SturdycConfig {
	return cacheinfra.SturdycConfig{
		Capacity:           c.Sturdyc.Capacity,
		NumShards:          c.Sturdyc.NumShards,
		MaxTTL:             c.Sturdyc.MaxTTL,
		EvictionPercentage: c.Sturdyc.EvictionPercentage,
		EvictionInterval:   c.Sturdyc.EvictionInterval,
	}
}

func (c Config) redis() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addr:         c.Redis.Addr,
		Username:     c.Redis.Username,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		DialTimeout:  c.Redis.DialTimeout,
		ReadTimeout:  c.Redis.ReadTimeout,
		WriteTimeout: c.Redis.WriteTimeout,
		DefaultTTL:   c.DefaultTTL,
	}
}

func (c Config) sql() cacheinfra.SQLConfig {
	return cacheinfra.SQLConfig{DefaultTTL: c.DefaultTTL}
}
