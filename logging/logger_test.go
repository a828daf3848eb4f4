package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*ConclaveLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf})
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestConclaveLoggerKeyValueArgs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	l.Info("coordination session started", "session_id", "sess-1", "agents", 3)

	entry := decodeLine(t, buf)
	assert.Equal(t, "coordination session started", entry["msg"])
	assert.Equal(t, "sess-1", entry["session_id"])
	assert.Equal(t, float64(3), entry["agents"])
}

func TestConclaveLoggerContextualAttrs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	l.WithComponent("market").WithSession("sess-2", "allocation").Warn("bid solicitation failed", "agent_id", "analyst")

	entry := decodeLine(t, buf)
	assert.Equal(t, "market", entry["component"])
	assert.Equal(t, "sess-2", entry["session_id"])
	assert.Equal(t, "allocation", entry["phase"])
	assert.Equal(t, "analyst", entry["agent_id"])
}

func TestConclaveLoggerLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestWithContextDoesNotMutateParent(t *testing.T) {
	parent, buf := newBufferLogger(LogLevelInfo)
	_ = parent.WithContext("request_id", "req-9")

	parent.Info("plain entry")

	entry := decodeLine(t, buf)
	_, present := entry["request_id"]
	assert.False(t, present)
}

func TestLogOracleCall(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	l.LogOracleCall("Consensus Facilitator", 120*time.Millisecond, true, nil)

	entry := decodeLine(t, buf)
	assert.Equal(t, "Oracle call completed", entry["msg"])
	assert.Equal(t, "Consensus Facilitator", entry["oracle_role"])
	assert.Equal(t, true, entry["success"])

	buf.Reset()
	l.LogOracleCall("Bidder", time.Second, false, errors.New("rate limited"))

	entry = decodeLine(t, buf)
	assert.Equal(t, "Oracle call failed", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "rate limited", entry["error"])
}

func TestLogPhase(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	l.LogPhase("contribution", 3, 250*time.Millisecond, true, nil)

	entry := decodeLine(t, buf)
	assert.Equal(t, "Phase completed", entry["msg"])
	assert.Equal(t, "contribution", entry["phase"])
	assert.Equal(t, float64(3), entry["unit_count"])
}

func TestSlogAdapterPreservesAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Info("leader elected", "leader_id", "architect")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "leader elected", entry["msg"])
	assert.Equal(t, "architect", entry["leader_id"])
}
