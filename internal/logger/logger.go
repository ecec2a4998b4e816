package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// global is the process-wide logger handed out when a context carries none.
	//nolint:gochecknoglobals // One logger per process, shared by every package.
	global *zap.SugaredLogger

	// level is the minimum level the global logger emits. It is atomic so the
	// CLI can adjust verbosity after the logger exists.
	//nolint:gochecknoglobals // Paired with the global logger above.
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

//nolint:gochecknoinits // The logger must exist before any package logs.
func init() {
	global = New(level)
}

// New builds a console logger writing to stderr. Output stays plain text
// without color codes, since agent runs land in journals and cron mail.
// A nil enabler falls back to the shared atomic level.
func New(enabler zapcore.LevelEnabler) *zap.SugaredLogger {
	if enabler == nil {
		enabler = level
	}

	//nolint:exhaustruct // Unset keys are omitted from output on purpose.
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), enabler)

	return zap.New(core).Sugar()
}

// ParseLogLevel resolves a level name like "debug" or "WARN". The boolean
// reports whether the value was recognized.
func ParseLogLevel(value string) (zapcore.Level, bool) {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(value))
	if err != nil {
		return zapcore.InfoLevel, false
	}

	return parsed, true
}

// Level returns the global logger's current minimum level.
func Level() zapcore.Level {
	return level.Level()
}

// SetLevel adjusts the global logger's minimum level.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger replaces the global logger. Not safe against concurrent logging;
// call it during startup or test setup only.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// Debug logs at debug level with the context's logger.
func Debug(ctx context.Context, args ...any) {
	FromContext(ctx).Debug(args...)
}

// Debugf logs a formatted message at debug level with the context's logger.
func Debugf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Debugf(format, args...)
}

// DebugKV logs a message with key-value pairs at debug level.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// Info logs at info level with the context's logger.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// Infof logs a formatted message at info level with the context's logger.
func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Infof(format, args...)
}

// InfoKV logs a message with key-value pairs at info level.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// Warn logs at warn level with the context's logger.
func Warn(ctx context.Context, args ...any) {
	FromContext(ctx).Warn(args...)
}

// Warnf logs a formatted message at warn level with the context's logger.
func Warnf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Warnf(format, args...)
}

// WarnKV logs a message with key-value pairs at warn level.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// Error logs at error level with the context's logger.
func Error(ctx context.Context, args ...any) {
	FromContext(ctx).Error(args...)
}

// Errorf logs a formatted message at error level with the context's logger.
func Errorf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Errorf(format, args...)
}

// ErrorKV logs a message with key-value pairs at error level.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}
