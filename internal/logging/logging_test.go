package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	require.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	require.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Info("hello")
	require.Equal(t, 1, logs.Len())

	require.NotNil(t, FromContext(context.Background()))
}

func TestNew(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	l, err := New(Config{Service: "svc", Env: "test", Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.Same(t, l, zap.L())
}
