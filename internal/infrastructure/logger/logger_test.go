package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/LavaJover/shvark-settlement-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LogConfig{LogLevel: "warn", LogFormat: "json"}, &buf)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept", "pool_id", "p1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "p1", entry["pool_id"])
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LogConfig{LogLevel: "debug", LogFormat: "text"}, &buf)
	require.NoError(t, err)

	log.Debug("reconcile tick")
	assert.Contains(t, buf.String(), "msg=\"reconcile tick\"")
}

func TestNewWithWriterRejectsUnknownSettings(t *testing.T) {
	_, err := NewWithWriter(config.LogConfig{LogLevel: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter(config.LogConfig{LogFormat: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
