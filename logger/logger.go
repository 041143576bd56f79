// Package logger builds the process-wide zap logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLoggerConfig selects encoder, level and verbosity.
type ZapLoggerConfig struct {
	IsDevelopment     bool
	Encoding          string // "json" or "console"
	Level             string // debug, info, warn, error
	DisableCaller     bool
	DisableStacktrace bool
}

// ForEnv returns the defaults for an APP_ENV value. Development logs to the
// console at debug; everything else logs JSON at the given level.
func ForEnv(appEnv, level string) *ZapLoggerConfig {
	if appEnv == "development" {
		return &ZapLoggerConfig{IsDevelopment: true, Encoding: "console", Level: "debug"}
	}
	return &ZapLoggerConfig{Encoding: "json", Level: level}
}

// NewZapLogger builds a logger. An unknown level falls back to info.
func NewZapLogger(cfg *ZapLoggerConfig) *zap.Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = zap.NewAtomicLevelAt(parsed)
		}
	}

	var zc zap.Config
	if cfg.IsDevelopment {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	zc.DisableCaller = cfg.DisableCaller
	zc.DisableStacktrace = cfg.DisableStacktrace
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
