package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(NewJSONHandler(&buf, slog.LevelDebug))

	logger.Info("connecting",
		"host", "db-prod-01",
		"passphrase", "hunter2",
		"key_path", "/home/ops/.ssh/id_ed25519",
	)

	entry := logLine(t, &buf)
	assert.Equal(t, "db-prod-01", entry["host"])
	assert.Equal(t, "[REDACTED]", entry["passphrase"])
	// Paths are not secrets, only credential values are redacted
	assert.Equal(t, "/home/ops/.ssh/id_ed25519", entry["key_path"])
}

func TestLogger_RedactionFieldNormalization(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(NewJSONHandler(&buf, slog.LevelDebug))

	logger.Warn("auth failed", "API_Key", "sk-abc123")

	entry := logLine(t, &buf)
	assert.Equal(t, "[REDACTED]", entry["API_Key"])
}

func TestLogger_DebugNotRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(NewJSONHandler(&buf, slog.LevelDebug))

	logger.Debug("resolving", "password", "plain")

	entry := logLine(t, &buf)
	assert.Equal(t, "plain", entry["password"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(NewJSONHandler(&buf, slog.LevelDebug)).With("component", "pool")

	logger.Info("created")

	entry := logLine(t, &buf)
	assert.Equal(t, "pool", entry["component"])
}
