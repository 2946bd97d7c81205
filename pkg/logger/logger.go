package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig controls how NewLogger builds the process logger.
type LoggerConfig struct {
	// Debug switches to the human readable development encoder at debug level.
	Debug bool
}

// NewLogger builds a zap logger. Production mode emits JSON at info level.
func NewLogger(cfg *LoggerConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}

	var zapConfig zap.Config
	if cfg.Debug {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	return zapConfig.Build()
}

// NewTestLogger returns a logger that discards everything, for use in tests.
func NewTestLogger() *zap.Logger {
	return zap.NewNop()
}
