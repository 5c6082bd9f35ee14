// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/applicant-courier/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// bufferSyncer captures console output without touching the process stdio.
type bufferSyncer struct{ bytes.Buffer }

func (b *bufferSyncer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console output is colorized per level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var out bufferSyncer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "courier",
			Colors:      config.ColorConfig{Info: "green", Warn: "yellow"},
		}, &out)
		GetLogger().Named("pipeline").Info("Candidate processed.", Candidate("Jane Doe"))
		GetLogger().Debug("no color configured")
		Sync()

		text := out.String()
		assert.Contains(t, text, ansiColors["green"]+"INFO"+ansiReset)
		assert.Contains(t, text, "courier.pipeline.")
		assert.Contains(t, text, `"candidate": "Jane Doe"`)
		// Debug has no color in this config, so the plain label is printed.
		assert.Contains(t, text, "\tDEBUG\t")
	})

	t.Run("json output is one object per line", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var out bufferSyncer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, &out)
		GetLogger().Warn("Dedup hit.", DedupKey("https://www.linkedin.com/in/jane"), Status("Skipped duplicate"))
		GetLogger().Debug("filtered by level")
		Sync()

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "Dedup hit.", entry["msg"])
		assert.Equal(t, "https://www.linkedin.com/in/jane", entry[KeyDedupKey])
		assert.Equal(t, "Skipped duplicate", entry[KeyStatus])
	})

	t.Run("log file receives json entries", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		path := filepath.Join(t.TempDir(), "courier.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1}, &bufferSyncer{})
		GetLogger().Error("Run halted.", Status("Paused: 3 consecutive failures"))
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"Run halted."`)
	})

	t.Run("only the first initialization applies", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var out bufferSyncer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, &out)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, &out)

		assert.Same(t, first, GetLogger())
		GetLogger().Info("test")
		Sync()
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
		assert.Nil(t, globalLogger.Load())
	})

	t.Run("returns the stored logger after initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		Initialize(config.LoggerConfig{Level: "info"}, &bufferSyncer{})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestForRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger, id := ForRun(zap.New(core))

	_, err := uuid.Parse(id)
	require.NoError(t, err)

	logger.Info("Run started.", State("Opening"), Tier(2), Attempt(1))
	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, id, ctx[KeyRun])
	assert.Equal(t, "Opening", ctx[KeyState])
	assert.EqualValues(t, 2, ctx[KeyTier])
	assert.EqualValues(t, 1, ctx[KeyAttempt])
}

func TestIgnorableSyncError(t *testing.T) {
	assert.False(t, ignorableSyncError(assert.AnError))
	assert.True(t, ignorableSyncError(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: os.ErrInvalid}))
}
