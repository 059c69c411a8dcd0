// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and minimum level of the process logger.
type Config struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// New builds a zap.Logger configured for development or production.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		level.SetLevel(parsed)
	}

	if cfg.Development {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.Level = level
		zcfg.EncoderConfig.TimeKey = "ts"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		logger, err := zcfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.DisableStacktrace = true
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}
