package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestRequestContextLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Mode: "prod", Level: "debug", Writer: &buf})

	rc := NewRequestContextWithID(logger, "req-1", "process_item")
	rc.UserID = "user-1"
	rc.Error("completion failed", errors.New("boom"), slog.String(LogFieldErrorCode, "TIMEOUT"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "completion failed", entry["msg"])
	assert.Equal(t, "req-1", entry[LogFieldRequestID])
	assert.Equal(t, "user-1", entry[LogFieldUserID])
	assert.Equal(t, "process_item", entry[LogFieldOperation])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "TIMEOUT", entry[LogFieldErrorCode])
}

func TestRequestContextRoundTrip(t *testing.T) {
	rc := NewRequestContext(nil, "fetch")
	assert.NotEmpty(t, rc.RequestID)

	ctx := WithRequestContext(context.Background(), rc)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, rc, got)
	assert.Same(t, rc, Logger(ctx))

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
	assert.NotNil(t, Logger(context.Background()))
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("process", 20*time.Millisecond, false)
	m.RecordRequest("process", 40*time.Millisecond, true)
	m.RecordRequest("fetch", 10*time.Millisecond, false)
	m.RecordOutcome("created")
	m.RecordOutcome("created")
	m.RecordRecovery()
	m.RecordTruncation()

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.RequestTotal)
	assert.Equal(t, int64(1), s.RequestFailed)
	assert.Equal(t, int64(30), s.Operations["process"].AverageDuration)
	assert.Equal(t, int64(1), s.Operations["process"].ErrorCount)
	assert.Equal(t, int64(2), s.Outcomes["created"])
	assert.Equal(t, int64(1), s.Recoveries)
	assert.Equal(t, int64(1), s.Truncations)
	assert.InDelta(t, 66.66, s.SuccessRate(), 0.1)
	assert.InDelta(t, 100.0, NewMetrics().Snapshot().SuccessRate(), 0.001)
}
