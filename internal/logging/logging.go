// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentDevelopment Environment = "development"
	EnvironmentLocal       Environment = "local"
)

type Config struct {
	Environment Environment
	Level       string
}

// New returns a logger and a handle that changes its level at runtime.
// Production writes JSON; development and local write console output.
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	var base zap.Config
	switch cfg.Environment {
	case EnvironmentProduction, "":
		base = zap.NewProductionConfig()
		base.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case EnvironmentDevelopment, EnvironmentLocal:
		base = zap.NewDevelopmentConfig()
		base.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log environment %q", cfg.Environment)
	}

	level, err := resolveLevel(cfg)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	base.Level = level
	base.DisableStacktrace = true
	// stdout belongs to command output.
	base.OutputPaths = []string{"stderr"}

	logger, err := base.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return logger, level, nil
}

func resolveLevel(cfg Config) (zap.AtomicLevel, error) {
	if strings.TrimSpace(cfg.Level) != "" {
		var parsed zapcore.Level
		if err := parsed.Set(cfg.Level); err != nil {
			return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		return zap.NewAtomicLevelAt(parsed), nil
	}
	if cfg.Environment == EnvironmentDevelopment || cfg.Environment == EnvironmentLocal {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
}
