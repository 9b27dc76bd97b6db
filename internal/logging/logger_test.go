package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger)
}

func TestLoggerWithFieldsAttachesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	sessionLogger := logger.With(logrus.Fields{"session": "client-a", "vmo_id": 3})
	sessionLogger.Info("opened session")

	output := buf.String()
	require.Contains(t, output, "opened session")
	require.Contains(t, output, "session=client-a")
	require.Contains(t, output, "vmo_id=3")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	require.Empty(t, buf.String())

	logger.Warn("should appear")
	require.Contains(t, buf.String(), "should appear")
}

func TestLoggerKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("queued frame", "queue", "rx", "count", 4)
	output := buf.String()
	require.Contains(t, output, "queue=rx")
	require.Contains(t, output, "count=4")
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	require.Contains(t, buf.String(), "debug message")
	require.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Info("info message")
	require.Contains(t, buf.String(), "info message")

	buf.Reset()
	Warn("warning message")
	require.Contains(t, buf.String(), "warning message")

	buf.Reset()
	Error("error message")
	require.Contains(t, buf.String(), "error message")
}
