package mqttd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(&buf, LogLevelWarn)

	logger.Debug("noise", nil)
	logger.Info("noise", nil)
	assert.Zero(t, buf.Len())

	logger.Warn("slow consumer", LogFields{LogFieldClientID: "c1"})
	logger.Error("store failed", nil)

	out := buf.String()
	assert.Contains(t, out, "[WARN] slow consumer")
	assert.Contains(t, out, "client_id:c1")
	assert.Contains(t, out, "[ERROR] store failed")
}

func TestStdLoggerNone(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLogger(&buf, LogLevelNone)

	logger.Error("suppressed", nil)
	assert.Zero(t, buf.Len())
}
