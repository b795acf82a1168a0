package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown", "route_id", "15")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "15", line["route_id"])
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	logger := New(&bytes.Buffer{}, slog.LevelInfo)
	ctx := WithLogger(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx))
}

func TestLogHTTPRequest(t *testing.T) {
	var buf bytes.Buffer
	LogHTTPRequest(New(&buf, slog.LevelInfo), "GET", "/v1/routes", 200, 1.5, slog.String("request_id", "abc"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http_request", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, float64(200), line["status"])
	assert.Equal(t, "abc", line["request_id"])

	// nil logger is a no-op
	LogHTTPRequest(nil, "GET", "/", 200, 0)
}
