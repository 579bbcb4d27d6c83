// Package logging builds the zap-backed structured logger shared across
// the proxy's components. A *Logger is constructed once at startup and
// passed by reference into every component — there is no global sink.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger scoped to one component, mirroring the
// teacher's "[component] message" prefixing but as structured key/value
// pairs instead of a formatted string.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a root Logger writing at level (DEBUG/INFO/WARNING/ERROR/CRITICAL)
// to stdout and, if file is non-empty, also to that file.
func New(level string, file string) (*Logger, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapLevel),
	}

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", file, err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), zapLevel))
	}

	core := zapcore.NewTee(cores...)
	logger := zap.New(core)
	return &Logger{sugar: logger.Sugar()}, nil
}

// NewNop returns a Logger that discards everything, useful in tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Named returns a child Logger tagged with component, e.g. "server", "socks5".
func (l *Logger) Named(component string) *Logger {
	return &Logger{sugar: l.sugar.Named(component)}
}

func (l *Logger) Debugw(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// Sync flushes any buffered log entries. Safe to ignore the error on stdout.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// CRITICAL has no direct zap equivalent; it is mapped onto zap's DPanic
// level, which logs at error severity in production cores.
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO":
		return zapcore.InfoLevel, nil
	case "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	case "CRITICAL":
		return zapcore.DPanicLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
