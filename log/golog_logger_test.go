package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func TestNewGologLogger(t *testing.T) {
	logger := NewGologLogger(golog.New())

	assert.NotNil(t, logger)
	assert.Equal(t, LogLevelInfo, logger.GetLevel())
}

func TestGologLogger_LevelControl(t *testing.T) {
	logger := NewGologLogger(golog.New())

	logger.SetLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, logger.GetLevel())

	logger.SetLevel(LogLevelError)
	assert.Equal(t, LogLevelError, logger.GetLevel())

	logger.SetLevel(LogLevelNone)
	assert.Equal(t, LogLevelNone, logger.GetLevel())
}

func TestGologLogger_FormatsMessages(t *testing.T) {
	var buf bytes.Buffer
	glogger := golog.New()
	glogger.SetOutput(&buf)

	logger := NewGologLogger(glogger)
	logger.SetLevel(LogLevelDebug)

	logger.Debug("index %s requested", "m_docs")
	logger.Error("connect failed: %v", "refused")

	out := buf.String()
	assert.Contains(t, out, "index m_docs requested")
	assert.Contains(t, out, "connect failed: refused")
}

func TestGologLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	glogger := golog.New()
	glogger.SetOutput(&buf)

	logger := NewGologLogger(glogger)
	logger.SetLevel(LogLevelError)

	logger.Debug("filtered debug")
	logger.Info("filtered info")
	logger.Warn("filtered warn")
	logger.Error("kept error")

	out := buf.String()
	assert.NotContains(t, out, "filtered")
	assert.Contains(t, out, "kept error")
}

func TestNewGologLoggerWithLevel(t *testing.T) {
	logger := NewGologLoggerWithLevel(LogLevelWarn)

	assert.Equal(t, LogLevelWarn, logger.GetLevel())
	var _ Logger = logger
}
