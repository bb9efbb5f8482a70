package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/retracehq/retrace/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsWithLog(level, rotation string, maxSize int) *conf.Settings {
	settings := &conf.Settings{}
	settings.Main.Log.Level = level
	settings.Main.Log.Rotation = rotation
	settings.Main.Log.MaxSize = maxSize
	return settings
}

func TestPolicyForRotationModes(t *testing.T) {
	t.Parallel()

	daily := policyFor(settingsWithLog("info", "daily", 0))
	assert.Equal(t, 1, daily.maxAge)
	assert.Equal(t, 30, daily.maxBackups)

	weekly := policyFor(settingsWithLog("info", "weekly", 0))
	assert.Equal(t, 7, weekly.maxAge)
	assert.Equal(t, 4, weekly.maxBackups)

	size := policyFor(settingsWithLog("info", "size", 250))
	assert.Equal(t, 250, size.maxSizeMB)
	assert.Equal(t, 28, size.maxAge, "size rotation keeps the default age cap")
}

func TestLevelFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, levelFor(settingsWithLog("debug", "size", 100)))
	assert.Equal(t, slog.LevelWarn, levelFor(settingsWithLog("warn", "size", 100)))
	assert.Equal(t, slog.LevelError, levelFor(settingsWithLog("error", "size", 100)))
	assert.Equal(t, slog.LevelInfo, levelFor(settingsWithLog("", "size", 100)), "unknown levels fall back to info")
}

func TestFormatAttr(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 8, 2, 12, 30, 45, 123456789, time.UTC)
	a := formatAttr(nil, slog.Time(slog.TimeKey, ts))
	assert.Equal(t, "2026-08-02T12:30:45Z", a.Value.String())

	a = formatAttr(nil, slog.Any(slog.LevelKey, slog.LevelWarn))
	assert.Equal(t, "WARN", a.Value.String())

	// A user attribute that collides with the level key must not panic.
	a = formatAttr(nil, slog.String(slog.LevelKey, "loud"))
	assert.Equal(t, "loud", a.Value.String())

	a = formatAttr(nil, slog.Float64("ratio", 0.98765))
	assert.InDelta(t, 0.98, a.Value.Float64(), 0.0001)
}

func TestNewFileLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc", "svc.log")
	levelVar := new(slog.LevelVar)

	logger, closeFn, err := NewFileLogger(path, "svc", levelVar)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	logger.Info("hello", "k", "v")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"svc"`)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
