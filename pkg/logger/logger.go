// Package logger provides the process-wide structured logger used across
// vixgo. Initialization is idempotent and happens once, eagerly, on package
// load (logging is process-wide, not per-instance).
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once  sync.Once
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
)

func init() {
	once.Do(func() {
		level = zap.NewAtomicLevel()
		level.SetLevel(parseLevel(os.Getenv("VIX_LOG_LEVEL")))

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		var encoder zapcore.Encoder
		if strings.EqualFold(os.Getenv("VIX_LOG_FORMAT"), "console") {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
				encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
			}
			encoder = zapcore.NewConsoleEncoder(encCfg)
		} else {
			encoder = zapcore.NewJSONEncoder(encCfg)
		}

		var ws zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
		if strings.EqualFold(os.Getenv("VIX_LOG_ASYNC"), "true") {
			// Buffered, time-flushed; when the buffer fills it is flushed
			// synchronously in the caller, so entries are never dropped.
			ws = &zapcore.BufferedWriteSyncer{WS: ws, Size: 256 * 1024}
		}

		core := zapcore.NewCore(encoder, ws, level)
		base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
		sugar = base.Sugar()
	})
}

func parseLevel(v string) zapcore.Level {
	switch strings.ToLower(v) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "critical", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Info logs an informational message using printf-style formatting.
func Info(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Warn logs a warning message using printf-style formatting.
func Warn(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

// Error logs an error message using printf-style formatting.
func Error(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

// Fatal logs a message and exits the process with status 1.
func Fatal(format string, v ...interface{}) {
	sugar.Fatalf(format, v...)
}

// Sync flushes any buffered log entries. Call during shutdown.
func Sync() error {
	return sugar.Sync()
}

// SetLevel adjusts the active log level at runtime (used by tests).
func SetLevel(v string) {
	level.SetLevel(parseLevel(v))
}
