package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/warp/partner-settlement/logger"
)

func TestForEnv(t *testing.T) {
	dev := logger.ForEnv("development", "warn")
	assert.True(t, dev.IsDevelopment)
	assert.Equal(t, "console", dev.Encoding)
	assert.Equal(t, "debug", dev.Level)

	prod := logger.ForEnv("production", "warn")
	assert.False(t, prod.IsDevelopment)
	assert.Equal(t, "json", prod.Encoding)
	assert.Equal(t, "warn", prod.Level)
}

func TestNewZapLogger_Level(t *testing.T) {
	l := logger.NewZapLogger(&logger.ZapLoggerConfig{Encoding: "json", Level: "warn"})

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNewZapLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := logger.NewZapLogger(&logger.ZapLoggerConfig{Encoding: "json", Level: "loud"})

	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
