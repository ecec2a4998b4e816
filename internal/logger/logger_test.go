package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and
// handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":  zapcore.DebugLevel,
		"info":   zapcore.InfoLevel,
		"warn":   zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
		"panic":  zapcore.PanicLevel,
		"fatal":  zapcore.FatalLevel,
		" INFO ": zapcore.InfoLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, "level %q", s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)

	_, ok = ParseLogLevel("")
	require.False(t, ok)
}

// TestFromContext_FallsBackToGlobal verifies context round-trip and the
// global fallback.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	require.Same(t, Logger(), FromContext(ctx))

	named := New(nil).Named("test-component")
	ctx = ToContext(ctx, named)
	require.Same(t, named, FromContext(ctx))

	// WithName derives a child, so the stored logger must change.
	derived := WithName(ctx, "inner")
	require.NotSame(t, FromContext(ctx), FromContext(derived))
}

// TestSetLevel verifies the atomic level round-trips through the setters.
func TestSetLevel(t *testing.T) {
	previous := Level()
	defer SetLevel(previous)

	SetLevel(zapcore.WarnLevel)
	require.Equal(t, zapcore.WarnLevel, Level())
}
