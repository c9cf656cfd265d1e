package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/byefat/backend/config"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// New builds the process logger. Local environments get a colored console
// encoder, everything else gets the production JSON encoder.
func New(env config.Environment, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if env.IsLocal() {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build(zap.Fields(zap.String("env", string(env))))
}

// Init builds the logger for env and installs it as the global logger.
func Init(env config.Environment, level string) error {
	l, err := New(env, level)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
	return nil
}

// L returns the global logger. It is a no-op logger until Init succeeds.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Named returns a child of the global logger for a component.
func Named(component string) *zap.Logger {
	return L().Named(component)
}
