package dbinfra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Supported values for Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres" // pgx stdlib driver
	DriverPQ       = "pq"       // lib/pq driver
	DriverMySQL    = "mysql"
)

// Config holds the connection and pool settings.
type Config struct {
	// Driver selects the database/sql driver and bun dialect.
	Driver string `koanf:"driver"`

	// DSN is passed to sql.Open unchanged. SQLite DSNs should enable
	// foreign keys (_foreign_keys=on) for cascading deletes to work.
	DSN string `koanf:"dsn"`

	// MaxOpenConns bounds the pool. Must be greater than 0.
	MaxOpenConns int `koanf:"max_open_conns"`

	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`

	// AcquireTimeout bounds how long an operation waits for a pooled
	// connection before giving up.
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`

	// PingTimeout bounds the connectivity check done by Open.
	PingTimeout time.Duration `koanf:"ping_timeout"`
}

// DefaultConfig returns a local SQLite configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "file:crudcore.db?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AcquireTimeout:  5 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if _, _, err := c.driver(); err != nil {
		return err
	}

	if c.DSN == "" {
		return &ConfigError{Field: "DSN", Message: "cannot be empty"}
	}

	if c.MaxOpenConns <= 0 {
		return &ConfigError{Field: "MaxOpenConns", Message: "must be greater than 0"}
	}

	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return &ConfigError{Field: "MaxIdleConns", Message: "must be between 0 and MaxOpenConns"}
	}

	if c.ConnMaxLifetime < 0 {
		return &ConfigError{Field: "ConnMaxLifetime", Message: "must be non-negative"}
	}

	if c.AcquireTimeout <= 0 {
		return &ConfigError{Field: "AcquireTimeout", Message: "must be greater than 0"}
	}

	if c.PingTimeout < 0 {
		return &ConfigError{Field: "PingTimeout", Message: "must be non-negative"}
	}

	return nil
}

func (c Config) driver() (string, schema.Dialect, error) {
	switch c.Driver {
	case DriverSQLite:
		return "sqlite3", sqlitedialect.New(), nil
	case DriverPostgres:
		return "pgx", pgdialect.New(), nil
	case DriverPQ:
		return "postgres", pgdialect.New(), nil
	case DriverMySQL:
		return "mysql", mysqldialect.New(), nil
	default:
		return "", nil, &ConfigError{Field: "Driver", Message: fmt.Sprintf("unsupported driver %q", c.Driver)}
	}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Open connects to the configured database, applies the pool settings and
// pings it once.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driverName, dialect, _ := cfg.driver()

	sqldb, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("dbinfra: open %s: %w", cfg.Driver, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := bun.NewDB(sqldb, dialect)

	if cfg.PingTimeout > 0 {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("dbinfra: ping %s: %w", cfg.Driver, err)
		}
	}

	return db, nil
}
