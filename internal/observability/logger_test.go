package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/config"
)

func TestInitialize_JSON(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "recon-linker"}, zapcore.AddSync(&buf))

	GetLogger().Named("correlate").Info("Correlation finished", zap.Int("created", 3))
	Sync()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "recon-linker.correlate", entry["logger"])
	assert.Equal(t, "Correlation finished", entry["msg"])
	assert.Equal(t, float64(3), entry["created"])
}

func TestInitialize_ConsoleColorsAndLevel(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:  "warn",
		Format: "console",
		Colors: config.ColorConfig{Warn: "yellow"},
	}, zapcore.AddSync(&buf))

	logger := GetLogger()
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, colorMap["yellow"]+"WARN"+colorReset)
}

func TestInitialize_OnlyOnce(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&second))
	GetLogger().Info("once")

	assert.Contains(t, first.String(), "once")
	assert.Empty(t, second.String())
}

func TestInitialize_FileSink(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	logFile := filepath.Join(t.TempDir(), "recon.log")
	var console bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "console", LogFile: logFile, MaxSize: 1}, zapcore.AddSync(&console))
	GetLogger().Info("to file")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"to file"`))
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, GetLogger())
}
