package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewFromSettings(t *testing.T) {
	logger := NewFromSettings("warn", false)
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	// An unparsable level degrades to a no-op logger instead of failing.
	nop := NewFromSettings("chatty", true)
	require.NotNil(t, nop)
	assert.False(t, nop.Core().Enabled(zapcore.ErrorLevel))
}

func TestForApp(t *testing.T) {
	child := Nop().ForApp("weather", "sess_1")
	assert.NotNil(t, child)
}
