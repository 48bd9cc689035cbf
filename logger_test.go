package rabbitlink

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFactory_EmitsComponentScopedJSON(t *testing.T) {
	var buf bytes.Buffer
	factory := NewLoggerFactory(LoggerConfig{Out: &buf, Level: "debug"})

	logger := factory("producer")
	logger.Info("started", "queue", "orders")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "producer", line["component"])
	assert.Equal(t, "orders", line["queue"])
	assert.Equal(t, "started", line["message"])
}

func TestZerologLogger_WithAddsPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	factory := NewLoggerFactory(LoggerConfig{Out: &buf, Level: "debug"})

	logger := factory("consumer").With("correlationId", "abc-123")
	logger.Warn("retrying")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc-123", line["correlationId"])
	assert.Equal(t, "consumer", line["component"])
}

func TestNoopLogger_NeverPanics(t *testing.T) {
	logger := NoopLogger()
	logger.Debug("x")
	logger.Info("x", "k", "v")
	logger.Warn("x")
	logger.Error("x")
	logger.With("k", "v").Info("still fine")
}
