package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, slog.LevelInfo, "json")
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("published", slog.String("station", "Bucium"))

		output := buf.String()
		assert.NotContains(t, output, "hidden")
		assert.Contains(t, output, `"msg":"published"`)
		assert.Contains(t, output, `"station":"Bucium"`)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, slog.LevelDebug, "text")
		require.NoError(t, err)

		logger.Debug("visible", slog.String("station", "Bucium"))
		assert.Contains(t, buf.String(), "msg=visible station=Bucium")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := NewLogger(&bytes.Buffer{}, slog.LevelInfo, "xml")
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in    string
		level slog.Level
		err   bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	} {
		level, err := ParseLevel(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.level, level)
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)

	LogError(logger, "publish failed", assert.AnError, slog.String("station", "Bucium"))

	output := buf.String()
	assert.Contains(t, output, `"level":"ERROR"`)
	assert.Contains(t, output, `"msg":"publish failed"`)
	assert.Contains(t, output, `"error":"`+assert.AnError.Error()+`"`)
	assert.Contains(t, output, `"station":"Bucium"`)

	// nil logger is a no-op
	LogError(nil, "ignored", assert.AnError)
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)

	ctx := WithLogger(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx))
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
