package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/offline-cache-proxy/internal/config"
)

func restoreStandardLogger(t *testing.T) {
	std := logrus.StandardLogger()
	out, level, formatter := std.Out, std.GetLevel(), std.Formatter
	t.Cleanup(func() {
		std.SetOutput(out)
		std.SetLevel(level)
		std.SetFormatter(formatter)
	})
}

func TestInitWritesJSONToFile(t *testing.T) {
	restoreStandardLogger(t)
	logFile := filepath.Join(t.TempDir(), "logs", "proxy.log")

	logger, err := Init(config.LogConfig{Level: "debug", Format: "json", File: logFile, MaxSize: 1})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("store", "app-cache-v1").Info("Installing")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Installing", entry["msg"])
	assert.Equal(t, "app-cache-v1", entry["store"])
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	restoreStandardLogger(t)

	_, err := Init(config.LogConfig{Level: "chatty", Format: "text"})
	assert.Error(t, err)
}
