// Package logging builds the zap loggers used across the module.
package logging

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environments accepted by Config.Env.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Config selects the encoder and level.
type Config struct {
	// Env is "dev" (colored console) or "prod" (JSON).
	Env         string `koanf:"env"`
	Level       string `koanf:"level"`
	ServiceName string `koanf:"service_name"`
}

// DefaultConfig returns a dev console logger at info level.
func DefaultConfig() Config {
	return Config{Env: EnvDev, Level: "info", ServiceName: "crudcore"}
}

// Validate checks the env and level names.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Env, validation.By(func(v any) error {
			return validation.Validate(normalizeEnv(v.(string)), validation.In(EnvDev, EnvProd))
		})),
		validation.Field(&c.Level, validation.By(func(v any) error {
			_, err := ParseLevel(v.(string))
			return err
		})),
	)
}

// normalizeEnv makes env names case-insensitive.
func normalizeEnv(env string) string {
	return strings.ToLower(strings.TrimSpace(env))
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	level, _ := ParseLevel(cfg.Level)

	var (
		l   *zap.Logger
		err error
	)
	if normalizeEnv(cfg.Env) == EnvProd {
		l, err = buildProd(level)
	} else {
		l, err = buildDev(level)
	}
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}

	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	return l, nil
}

func buildDev(level zapcore.Level) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zcfg.DisableStacktrace = true
	zcfg.OutputPaths = []string{"stderr"}

	return zcfg.Build(zap.AddCaller())
}

func buildProd(level zapcore.Level) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return zcfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// ParseLevel maps a level name to its zapcore level. An empty name is info.
func ParseLevel(lvl string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown level %q", lvl)
	}
}
