package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger(t *testing.T) {
	err := InitLogger()
	require.NoError(t, err)
	assert.NotNil(t, Logger)
	assert.NotNil(t, Logger.logger)
}

func TestInitLogger_WithLogLevel(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Unsetenv("LOG_LEVEL")

	err := InitLogger()
	require.NoError(t, err)
	assert.NotNil(t, Logger)
}

func TestInitLogger_WithInvalidLogLevel(t *testing.T) {
	// Invalid log level should still succeed with the default
	os.Setenv("LOG_LEVEL", "invalid")
	defer os.Unsetenv("LOG_LEVEL")

	err := InitLogger()
	require.NoError(t, err)
	assert.NotNil(t, Logger)
}

func TestSafeLogger_Info(t *testing.T) {
	logger := &SafeLogger{logger: zap.NewNop()}

	// Should not panic
	logger.Info("test message")
	logger.Info("test with fields", zap.String("key", "value"))
}

func TestSafeLogger_Warn(t *testing.T) {
	logger := &SafeLogger{logger: zap.NewNop()}

	logger.Warn("test warning")
	logger.Warn("test warning with fields", zap.Int("count", 42))
}

func TestSafeLogger_NilLogger(t *testing.T) {
	logger := &SafeLogger{logger: nil}

	// All methods should be safe to call with nil logger
	logger.Info("test")
	logger.Warn("test")
	logger.Debug("test")
	logger.Error("test")
}

func TestSafeLogger_NilSafeLogger(t *testing.T) {
	var logger *SafeLogger

	// Should not panic even with a nil SafeLogger
	logger.Info("test")
	logger.Warn("test")
	logger.Debug("test")
	logger.Error("test")
}

func TestSafeLogger_With(t *testing.T) {
	logger := &SafeLogger{logger: zap.NewNop()}

	child := logger.With(zap.String("key", "value"), zap.Int("count", 42))

	require.NotNil(t, child)
	assert.NotNil(t, child.logger)

	child.Info("test message")
}

func TestSafeLogger_With_NilLogger(t *testing.T) {
	var logger *SafeLogger

	child := logger.With(zap.String("key", "value"))
	assert.Nil(t, child)
	child.Info("still safe")
}
