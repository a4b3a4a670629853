package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "debug", Format: "json", Output: &buf})

	logger.WithField("user_id", 42).Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, float64(42), entry["user_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLoggerLevelFallback(t *testing.T) {
	logger := NewLogger(LoggerConfig{Level: "not-a-level"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "warn", Output: &buf})

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestPanicToError(t *testing.T) {
	assert.NoError(t, PanicToError(nil))

	err := PanicToError("boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRecoverPanicDoesNotReraise(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "error", Output: &buf})

	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "test worker")
		panic("boom")
	})
	assert.Contains(t, buf.String(), "Panic recovered")
}

func TestRecoverPanicWithCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "error", Output: &buf})

	called := false
	assert.NotPanics(t, func() {
		defer RecoverPanicWithCallback(logger, "test worker", func() { called = true })
		panic("boom")
	})
	assert.True(t, called)
}
