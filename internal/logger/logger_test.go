package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, time.UTC).Module("datastore").Module("sqlite")

	log.Info("prediction logged",
		String("label", "Benign"),
		Float64("confidence", 0.876543),
		Uint64("prediction_id", 42),
		Error(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "module=datastore.sqlite")
	assert.Contains(t, out, `msg="prediction logged"`)
	assert.Contains(t, out, "label=Benign")
	assert.Contains(t, out, "confidence=0.877")
	assert.Contains(t, out, "prediction_id=42")
	assert.Contains(t, out, "error=boom")
	assert.NotContains(t, out, "time=", "console records carry no timestamp")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   LogLevel
		logFunc func(Logger)
		want    bool
	}{
		{"debug suppressed at info", LogLevelInfo, func(l Logger) { l.Debug("msg") }, false},
		{"info passes at info", LogLevelInfo, func(l Logger) { l.Info("msg") }, true},
		{"warn suppressed at error", LogLevelError, func(l Logger) { l.Warn("msg") }, false},
		{"error always passes", LogLevelError, func(l Logger) { l.Error("msg") }, true},
		{"trace passes at trace", LogLevelTrace, func(l Logger) { l.Trace("msg") }, true},
		{"explicit level respects threshold", LogLevelWarn, func(l Logger) { l.Log(LogLevelInfo, "msg") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			tt.logFunc(NewSlogLogger(buf, tt.level, time.UTC))
			assert.Equal(t, tt.want, buf.Len() > 0)
		})
	}
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	NewSlogLogger(buf, LogLevelTrace, time.UTC).Trace("sql query")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestWithAndContext(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := NewSlogLogger(buf, LogLevelInfo, time.UTC)
	child := base.With(String("request_id", "req-1"))

	ctx := WithTraceID(context.Background(), "trace-abc")
	child.WithContext(ctx).Info("handled")
	assert.Contains(t, buf.String(), "request_id=req-1")
	assert.Contains(t, buf.String(), "trace_id=trace-abc")

	buf.Reset()
	base.Info("plain")
	assert.NotContains(t, buf.String(), "request_id", "With must not mutate the parent")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("training").Info("epoch finished", Int("epoch", 3), Float64("val_acc", 0.8125))
	require.NoError(t, cl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var record map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
	assert.Equal(t, "epoch finished", record["msg"])
	assert.Equal(t, "training", record["module"])
	assert.InDelta(t, 3, record["epoch"], 0)
	assert.InDelta(t, 0.813, record["val_acc"], 1e-9)
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestBufferedFileWriterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	w, err := NewBufferedFileWriter(path, WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRedactSensitiveData(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/api/v2/auth/login?password=[REDACTED]&x=1",
		RedactSensitiveData("/api/v2/auth/login?password=hunter2&x=1"))
	assert.Equal(t, "Bearer [REDACTED]", RedactSensitiveData("Bearer eyJhbGciOi.abc.def"))
	assert.True(t, IsSensitiveKey("Authorization"))
	assert.False(t, IsSensitiveKey("patient_id"))
}
