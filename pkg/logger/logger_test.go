package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureDefault(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	SetupWriter(&buf, level, format)
	return &buf
}

func TestFromContextAddsConnFields(t *testing.T) {
	buf := captureDefault(t, "debug", "json")

	ctx := WithConnID(context.Background(), 42, "10.0.0.1:5555")
	FromContext(ctx).Info("query served")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "query served", rec["msg"])
	assert.Equal(t, float64(42), rec["conn_id"])
	assert.Equal(t, "10.0.0.1:5555", rec["remote_addr"])

	id, ok := ConnID(ctx)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)
}

func TestFromContextWithoutConn(t *testing.T) {
	buf := captureDefault(t, "info", "text")
	FromContext(context.Background()).Info("startup")
	assert.NotContains(t, buf.String(), "conn_id")

	_, ok := ConnID(context.Background())
	assert.False(t, ok)
}

func TestLevelFiltering(t *testing.T) {
	buf := captureDefault(t, "warn", "text")
	slog.Info("hidden")
	slog.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
