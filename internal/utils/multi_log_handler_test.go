package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	h := NewMultiLogHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("op", "op-1").WithGroup("engine")

	logger.Debug("queued", "n", 1)
	logger.Warn("retry", "attempt", 2)

	assert.Contains(t, debug.String(), "msg=queued op=op-1 engine.n=1")
	assert.Contains(t, debug.String(), "msg=retry")
	assert.NotContains(t, warn.String(), "queued")
	assert.Contains(t, warn.String(), "msg=retry op=op-1 engine.attempt=2")
}

func TestMultiLogHandler_Enabled(t *testing.T) {
	h := NewMultiLogHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	assert.False(t, h.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, h.Enabled(t.Context(), slog.LevelError))
	assert.False(t, NewMultiLogHandler().Enabled(t.Context(), slog.LevelError))
}
