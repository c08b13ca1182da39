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

func TestNewLogger_AddsContextValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "debug")

	ctx := WithUserID(WithCorrelationID(context.Background(), "cid-1"), "user-9")
	logger.InfoContext(ctx, "fetch done", slog.String("view", "all-posts"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "fetch done", record["msg"])
	assert.Equal(t, "cid-1", record["correlation_id"])
	assert.Equal(t, "user-9", record["user_id"])
	assert.Equal(t, "all-posts", record["view"])
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "development", "warn")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.With(slog.String("component", "x")).Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=x")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestEnsureCorrelationID(t *testing.T) {
	t.Parallel()

	ctx := EnsureCorrelationID(context.Background())
	id := ExtractCorrelationID(ctx)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, ExtractCorrelationID(EnsureCorrelationID(ctx)))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "postly-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	span, ctx := NewClientSpan(context.Background(), "GET /posts")
	span.SetError(assert.AnError)
	span.End()
	assert.NotNil(t, ctx)
}
