package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewHonoursLevel(t *testing.T) {
	logger, lvl, err := New(Config{Level: "warn", Format: "console"})
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	lvl.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestDefaults(t *testing.T) {
	logger, lvl, err := New(Default())
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl.Level())
	assert.NotNil(t, logger)

	_, _, err = New(Config{})
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{Level: "loud"}.Validate())
	assert.Error(t, Config{Format: "xml"}.Validate())
	assert.NoError(t, Config{Level: "ERROR", Format: "JSON"}.Validate())
}
