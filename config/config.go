// Package config loads the module configuration.
//
// Sources are applied in order, later ones overriding earlier ones:
//
//  1. DefaultConfig
//  2. a YAML file, when a path is given
//  3. an optional .env file, whose values become environment variables
//  4. environment variables prefixed with CRUDCORE_
//
// Environment keys use a double underscore between levels, so
// CRUDCORE_CACHE__DEFAULT_TTL=30s sets cache.default_ttl.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-crudcore/cache"
	"github.com/goliatone/go-crudcore/internal/dbinfra"
	"github.com/goliatone/go-crudcore/internal/logging"
	"github.com/goliatone/go-crudcore/password"
	"github.com/goliatone/go-crudcore/token"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix.
const DefaultEnvPrefix = "CRUDCORE_"

// Config is the full module configuration.
type Config struct {
	Token    token.Config    `koanf:"token"`
	Password password.Params `koanf:"password"`
	Database dbinfra.Config  `koanf:"database"`
	Cache    cache.Config    `koanf:"cache"`
	Log      logging.Config  `koanf:"log"`
}

// DefaultConfig returns every section at its defaults. The token secret is
// left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token:    token.DefaultConfig(),
		Password: password.DefaultParams(),
		Database: dbinfra.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Log:      logging.DefaultConfig(),
	}
}

// Validate runs each section's own validation.
func (c Config) Validate() error {
	return validation.Errors{
		"token":    c.Token.Validate(),
		"password": c.Password.Validate(),
		"database": c.Database.Validate(),
		"cache":    c.Cache.Validate(),
		"log":      c.Log.Validate(),
	}.Filter()
}

// Loader reads Config from files and the environment.
type Loader struct {
	envPrefix  string
	filePath   string
	dotenv     []string
	noValidate bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithDotenv loads the given .env files before reading the environment.
// Missing files are skipped. Variables already set are not overwritten.
func WithDotenv(paths ...string) Option {
	return func(l *Loader) {
		l.dotenv = append(l.dotenv, paths...)
	}
}

// WithoutValidation returns the decoded Config without running Validate.
// Callers that only use some sections validate those themselves.
func WithoutValidation() Option {
	return func(l *Loader) {
		l.noValidate = true
	}
}

// NewLoader creates a loader reading CRUDCORE_ variables.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds and, unless WithoutValidation was given, validates a Config.
func (l *Loader) Load() (Config, error) {
	k := koanf.New(".")

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", l.filePath, err)
		}
	}

	for _, path := range l.dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if l.noValidate {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// envKey maps CRUDCORE_CACHE__DEFAULT_TTL to cache.default_ttl.
func (l *Loader) envKey(s string) string {
	s = strings.TrimPrefix(s, l.envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Load is NewLoader(opts...).Load().
func Load(opts ...Option) (Config, error) {
	return NewLoader(opts...).Load()
}
