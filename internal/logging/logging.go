// Package logging holds the process-wide zap logger.
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Init builds the global logger. Mode "release" selects the JSON
// production config, anything else the colored development config.
func Init(mode string) error {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := config.Build()
	if err != nil {
		return err
	}

	logger.Store(l)
	return nil
}

// L returns the global logger. It discards everything until Init is called.
func L() *zap.Logger {
	return logger.Load()
}

// Set replaces the global logger, e.g. with zaptest or an observer in tests.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}
