package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var records []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var rec map[string]interface{}
		require.NoError(t, dec.Decode(&rec))
		records = append(records, rec)
	}
	return records
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"DEBUG", DebugLevel, false},
		{"info", InfoLevel, false},
		{"", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"off", Disabled, false},
		{"bogus", InfoLevel, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseFormat(t *testing.T) {
	got, err := ParseFormat("console")
	require.NoError(t, err)
	assert.Equal(t, ConsoleFormat, got)

	got, err = ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, JSONFormat, got)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestLogger_TypedFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = DebugLevel
	log := NewLoggerWithWriter(cfg, &buf)

	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	log.Info("fetch complete",
		String("resource", "events"),
		Int("count", 42),
		Bool("cached", true),
		Float64("elapsed_s", 0.25),
		Duration("ttl", 15*time.Minute),
		Time("fetched_at", when),
		Err(errors.New("partial failure")),
	)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "fetch complete", rec["message"])
	assert.Equal(t, "events", rec["resource"])
	assert.Equal(t, float64(42), rec["count"])
	assert.Equal(t, true, rec["cached"])
	assert.Equal(t, 0.25, rec["elapsed_s"])
	assert.Equal(t, "partial failure", rec["error"])
	assert.NotEmpty(t, rec["time"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = WarnLevel
	log := NewLoggerWithWriter(cfg, &buf)

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept")
	log.Error("also kept")

	records := decodeLines(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, "kept", records[0]["message"])
	assert.Equal(t, "also kept", records[1]["message"])
}

func TestLogger_IsLevelEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = InfoLevel
	log := NewLoggerWithWriter(cfg, &bytes.Buffer{})

	assert.False(t, log.IsLevelEnabled(DebugLevel))
	assert.True(t, log.IsLevelEnabled(InfoLevel))
	assert.True(t, log.IsLevelEnabled(ErrorLevel))
}

func TestLogger_WithSubsystem(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(DefaultConfig(), &buf)

	log.WithSubsystem("cache").Info("entry evicted")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "cache", records[0]["subsystem"])
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(DefaultConfig(), &buf)

	derived := log.WithFields(String("request_id", "req-1"), Int("attempt", 2))
	derived.Info("first")
	derived.Info("second")

	records := decodeLines(t, &buf)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "req-1", rec["request_id"])
		assert.Equal(t, float64(2), rec["attempt"])
	}
}

func TestLogger_Formatted(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(DefaultConfig(), &buf)

	log.Infof("refreshed %d of %d", 3, 5)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "refreshed 3 of 5", records[0]["message"])
}
