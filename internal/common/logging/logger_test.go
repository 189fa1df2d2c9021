package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestZapAdapter_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("row processing begin", String("table", "customers"), Int64("rows", 10))
	logger.Error("node failed", errors.New("boom"), String("node_id", "writer"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "row processing begin")
	assert.Contains(t, out, "customers")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "writer")
}

func TestZapAdapter_JSONWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	ctx := ContextWithExecution(context.Background(), "profile", "exec-1")
	logger.WithContext(ctx).WithFields(String("component", "engine")).Info("started")

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, "profile", entry["job_id"])
	assert.Equal(t, "exec-1", entry["execution_id"])
	assert.Equal(t, "engine", entry["component"])
}

func TestGlobalLogger(t *testing.T) {
	SetGlobalLogger(nil)
	assert.NotNil(t, GetGlobalLogger())

	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf})
	require.NoError(t, err)
	SetGlobalLogger(logger)
	defer SetGlobalLogger(nil)

	GetGlobalLogger().Debug("via global")
	assert.Contains(t, buf.String(), "via global")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("ignored")
	logger.Error("ignored", errors.New("x"))
	assert.Equal(t, logger, logger.WithFields(String("a", "b")))
	assert.Equal(t, logger, logger.WithContext(context.Background()))
}
