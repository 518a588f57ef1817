package env

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the env package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the env package's logger.
// This must be called before any environment is created.
func SetLogger(l *zap.Logger) {
	logger = l
}

func zapContext(c Context) zap.Field {
	return zap.String("context", string(c))
}
