package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{
		Level:          LogLevelInfo,
		Format:         LogFormatJSON,
		Output:         &buf,
		ServiceName:    "almanac-worker",
		ServiceVersion: "1.2.0",
	})

	logger.Debug("hidden")
	logger.Info("pass finished", "inserted", 3)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "pass finished", entries[0]["msg"])
	assert.Equal(t, "almanac-worker", entries[0]["service"])
	assert.Equal(t, "1.2.0", entries[0]["version"])
	assert.EqualValues(t, 3, entries[0]["inserted"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

	logger.Info("hidden")
	logger.Warn("source skipped", "source", "work")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "source=work")
}

func TestNewLogger_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf}).
		With("component", "sync").
		WithGroup("pass")

	ctx := WithSource(WithCorrelationID(context.Background(), "corr-1"), "work")
	ctx = WithOperation(ctx, "import")
	logger.InfoContext(ctx, "imported", "items", 2)
	logger.Info("no context")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "sync", entries[0]["component"])
	pass, ok := entries[0]["pass"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "corr-1", pass[CorrelationIDKey])
	assert.Equal(t, "work", pass[SourceKey])
	assert.Equal(t, "import", pass[OperationKey])

	assert.NotContains(t, entries[1], "pass")
}

func TestLogLevel_Level(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  slog.Level
	}{
		{LogLevelDebug, slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{LogLevelWarn, slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{LogLevelError, slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.Level())
		})
	}
}

func TestLogConfigs(t *testing.T) {
	dev := DefaultLogConfig()
	assert.Equal(t, LogFormatText, dev.Format)
	assert.False(t, dev.AddSource)

	prod := ProductionLogConfig()
	assert.Equal(t, LogFormatJSON, prod.Format)
	assert.True(t, prod.AddSource)
}
