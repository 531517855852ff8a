// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process-wide zap logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/doubtrun/internal/config"
)

// ServiceName is attached to every entry.
const ServiceName = "doubtrun"

// Logger pairs a zap logger with the level handle used for hot reload.
type Logger struct {
	*zap.Logger
	Level zap.AtomicLevel
}

// New builds a logger from cfg. "json" selects the production encoder,
// anything else the development console encoder. Unknown levels fall back
// to info. Output goes to stderr so command output on stdout stays clean.
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = ParseLevel(cfg.Level)
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	zapConfig.InitialFields = map[string]interface{}{
		"service": ServiceName,
		"version": version,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger, Level: zapConfig.Level}, nil
}

// ParseLevel returns an atomic level for s, defaulting to info.
func ParseLevel(s string) zap.AtomicLevel {
	level, err := zap.ParseAtomicLevel(s)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

// Apply updates the level in place after a config reload.
func (l *Logger) Apply(cfg config.LoggingConfig) {
	l.Level.SetLevel(ParseLevel(cfg.Level).Level())
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), Level: zap.NewAtomicLevelAt(zap.FatalLevel)}
}
