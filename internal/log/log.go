package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level selects the minimum severity that will be emitted.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	sugar      *zap.SugaredLogger
	loggerOnce sync.Once
	atomLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger builds the global zap logger writing to stderr. Production
// encoder config keeps log lines machine-parseable; timestamps are ISO8601
// for readability under journald.
func initLogger() {
	loggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = atomLevel
		cfg.OutputPaths = []string{"stderr"}
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		logger, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Cannot realistically fail with the settings above; fall back
			// to a no-op logger so callers never hit a nil.
			logger = zap.NewNop()
		}
		sugar = logger.Sugar()
	})
}

// SetLevel adjusts the minimum emitted level at runtime.
func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		atomLevel.SetLevel(zapcore.DebugLevel)
	case LevelError:
		atomLevel.SetLevel(zapcore.ErrorLevel)
	default:
		atomLevel.SetLevel(zapcore.InfoLevel)
	}
}

// Debug logs msg with alternating key/value pairs.
func Debug(msg string, kv ...any) {
	initLogger()
	sugar.Debugw(msg, kv...)
}

// Info logs msg with alternating key/value pairs.
func Info(msg string, kv ...any) {
	initLogger()
	sugar.Infow(msg, kv...)
}

// Error logs msg with the error prepended to the key/value pairs.
func Error(msg string, err error, kv ...any) {
	initLogger()
	extended := append([]any{"err", err}, kv...)
	sugar.Errorw(msg, extended...)
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
