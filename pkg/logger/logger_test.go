package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Config{Level: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestInitReplacesGlobalLogger(t *testing.T) {
	require.NoError(t, Init(Config{Level: "warn", Encoding: "json"}))
	first := Get()

	require.NoError(t, Init(Config{Level: "debug", Encoding: "console"}))
	second := Get()

	assert.NotSame(t, first, second)
	assert.True(t, second.Core().Enabled(-1), "debug should be enabled")
}

func TestWithContext(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info"}))

	ctx := context.WithValue(context.Background(), RunIDKey, "run-1")
	ctx = context.WithValue(ctx, StageKey, "transform")

	assert.NotNil(t, WithContext(ctx))
	assert.NotNil(t, WithContext(context.Background()))
}
