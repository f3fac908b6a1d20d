package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_SetsLevelAndGlobal(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	log := Init("warn", "development")
	assert.Same(t, log, zap.L())
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	log = Init("bogus", "production")
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	scoped := zap.New(core).With(zap.String("request_id", "r1"))

	ctx := WithContext(context.Background(), scoped)
	FromContext(ctx).Info("hello")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "r1", logs.All()[0].ContextMap()["request_id"])
	assert.Same(t, zap.L(), FromContext(context.Background()))
}
