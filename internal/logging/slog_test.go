package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_TextLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	log.Debug(ctx, "sync tick", "saved", 3)
	log.Info(ctx, "session started", "user", "admin")
	log.Warn(ctx, "approval poll failed", "attempt", 2)
	log.Error(ctx, "logout failed", "status", 503)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "level=DEBUG")
	assert.Contains(t, lines[0], "saved=3")
	assert.Contains(t, lines[1], `msg="session started"`)
	assert.Contains(t, lines[2], "level=WARN")
	assert.Contains(t, lines[3], "status=503")
}

func TestSlogLogger_WithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, FormatJSON, "info").With("component", "approver")

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "request presented", "request_id", "r-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "request presented", rec["msg"])
	assert.Equal(t, "approver", rec["component"])
	assert.Equal(t, "r-1", rec["request_id"])
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, slogLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, slogLevel("error"))
	assert.Equal(t, slog.LevelInfo, slogLevel("loud"))
}

func TestSlogLogger_MasksSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, FormatText, "info").With("cookie", "po_session=abc")

	log.Info(context.Background(), "code login", "access_code", "s3cret", "user", "admin")

	out := buf.String()
	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "po_session=abc")
	assert.Contains(t, out, "access_code="+Redacted)
	assert.Contains(t, out, "user=admin")
}

func TestSlogLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newSlogHandlerLogger(&buf, false, "warn")

	log.Info(context.Background(), "quiet")
	assert.Empty(t, buf.String())

	log.SetLevel("debug")
	log.With("component", "syncer").Debug(context.Background(), "loud")
	assert.Contains(t, buf.String(), "msg=loud")
}

func TestRedactArgs_LeavesInputAlone(t *testing.T) {
	args := []any{"setup_code", "SETUP-1", "user", "admin", "dangling"}

	got := redactArgs(args)

	assert.Equal(t, []any{"setup_code", Redacted, "user", "admin", "dangling"}, got)
	assert.Equal(t, "SETUP-1", args[1])
}
